package pdf

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/zistudy/zistudy-backend/internal/platform/logger"
)

func TestChunkTextCollapsesWhitespaceAndSplits(t *testing.T) {
	content := "alpha   beta\n\tgamma  delta"
	segments := chunkText(3, content, 11)
	if len(segments) != 3 {
		t.Fatalf("segments = %d, want 3: %v", len(segments), segments)
	}
	joined := strings.Join([]string{segments[0].Content, segments[1].Content, segments[2].Content}, "")
	if strings.Contains(joined, "\n") || strings.Contains(joined, "\t") || strings.Contains(joined, "  ") {
		t.Fatalf("whitespace not collapsed: %q", joined)
	}
	for _, segment := range segments {
		if segment.PageIndex != 3 {
			t.Fatalf("page index = %d", segment.PageIndex)
		}
		if len(segment.Content) > 11 {
			t.Fatalf("segment exceeds chunk size: %q", segment.Content)
		}
	}
}

func TestChunkTextKeepsRuneBoundaries(t *testing.T) {
	content := strings.Repeat("ä", 10)
	segments := chunkText(1, content, 3)
	if len(segments) != 4 {
		t.Fatalf("segments = %d, want 4", len(segments))
	}
	for _, segment := range segments {
		if !utf8.ValidString(segment.Content) {
			t.Fatalf("segment is not valid UTF-8: %q", segment.Content)
		}
	}
	if segments[0].Content != "äää" {
		t.Fatalf("first segment = %q", segments[0].Content)
	}
	if segments[3].Content != "ä" {
		t.Fatalf("final segment = %q", segments[3].Content)
	}
}

func TestChunkTextSkipsBlankContent(t *testing.T) {
	if segments := chunkText(1, "   \n\t  ", 100); len(segments) != 0 {
		t.Fatalf("expected no segments, got %v", segments)
	}
}

func TestTruncateSegmentsTruncatesFinalSegment(t *testing.T) {
	segments := []TextSegment{
		{PageIndex: 1, Content: strings.Repeat("a", 10)},
		{PageIndex: 1, Content: strings.Repeat("b", 10)},
		{PageIndex: 2, Content: strings.Repeat("c", 10)},
	}
	out := truncateSegments(segments, 25)
	if len(out) != 3 {
		t.Fatalf("segments = %d, want 3", len(out))
	}
	if len(out[2].Content) != 5 {
		t.Fatalf("final segment length = %d, want 5", len(out[2].Content))
	}
	if out[2].Content != "ccccc" {
		t.Fatalf("final segment = %q", out[2].Content)
	}
	total := len(out[0].Content) + len(out[1].Content) + len(out[2].Content)
	if total != 25 {
		t.Fatalf("total = %d, want 25", total)
	}
}

func TestTruncateSegmentsKeepsRuneBoundaries(t *testing.T) {
	segments := []TextSegment{
		{PageIndex: 1, Content: strings.Repeat("ü", 8)},
	}
	out := truncateSegments(segments, 5)
	if len(out) != 1 {
		t.Fatalf("segments = %d, want 1", len(out))
	}
	if !utf8.ValidString(out[0].Content) {
		t.Fatalf("truncated segment is not valid UTF-8: %q", out[0].Content)
	}
	if out[0].Content != strings.Repeat("ü", 5) {
		t.Fatalf("truncated segment = %q", out[0].Content)
	}
}

func TestTruncateSegmentsDropsTrailingSegments(t *testing.T) {
	segments := []TextSegment{
		{PageIndex: 1, Content: strings.Repeat("a", 10)},
		{PageIndex: 2, Content: strings.Repeat("b", 10)},
	}
	out := truncateSegments(segments, 10)
	if len(out) != 1 {
		t.Fatalf("segments = %d, want 1", len(out))
	}
	if out[0].PageIndex != 1 {
		t.Fatalf("kept wrong segment: %v", out[0])
	}
}

func TestIngestRejectsInvalidPDF(t *testing.T) {
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	svc := NewService(log)
	_, err = svc.Ingest([]byte("definitely not a pdf"), "bad.pdf")
	if err == nil {
		t.Fatal("expected ingestion error")
	}
	var ingErr *IngestionError
	if !errors.As(err, &ingErr) {
		t.Fatalf("error type %T", err)
	}
	if !errors.Is(err, ErrNotPDF) {
		t.Fatalf("error does not wrap ErrNotPDF: %v", err)
	}
}
