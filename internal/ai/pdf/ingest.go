package pdf

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/image/draw"

	"github.com/zistudy/zistudy-backend/internal/platform/logger"
)

const (
	DefaultTextChunkSize = 1200
	DefaultMaxTextLength = 18000

	// Page rasters above this edge length are downscaled before encoding.
	defaultMaxImageEdge = 1024
	defaultImageDPI     = 96
	defaultMaxImages    = 4
)

// ErrNotPDF marks input bytes that cannot be opened as a PDF document.
var ErrNotPDF = errors.New("payload is not a readable PDF")

// IngestionError reports malformed or unreadable PDF input.
type IngestionError struct {
	Message string
	Err     error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *IngestionError) Unwrap() error { return e.Err }

// TextSegment is one bounded-length chunk of extracted page text.
type TextSegment struct {
	PageIndex int    `json:"page_index"`
	Content   string `json:"content"`
}

// ImageFragment is one rasterised page image, PNG-encoded and base64d.
type ImageFragment struct {
	PageIndex  int    `json:"page_index"`
	MimeType   string `json:"mime_type"`
	DataBase64 string `json:"data_base64"`
}

// IngestionResult is the structured context extracted from one PDF.
type IngestionResult struct {
	Filename     string          `json:"filename,omitempty"`
	TextSegments []TextSegment   `json:"text_segments"`
	Images       []ImageFragment `json:"images"`
	PageCount    int             `json:"page_count"`
}

// Service extracts prompt-ready text and images from PDF byte buffers.
// The work is CPU-bound and synchronous; callers run it off the request
// goroutine.
type Service struct {
	log           *logger.Logger
	textChunkSize int
	maxTextLength int
	maxImageEdge  int
	imageDPI      float64
	maxImages     int
}

type Option func(*Service)

func WithTextChunkSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.textChunkSize = n
		}
	}
}

func WithMaxTextLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTextLength = n
		}
	}
}

func WithMaxImages(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxImages = n
		}
	}
}

func NewService(baseLog *logger.Logger, opts ...Option) *Service {
	s := &Service{
		log:           baseLog.With("service", "DocumentIngestionService"),
		textChunkSize: DefaultTextChunkSize,
		maxTextLength: DefaultMaxTextLength,
		maxImageEdge:  defaultMaxImageEdge,
		imageDPI:      defaultImageDPI,
		maxImages:     defaultMaxImages,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest extracts chunked page text and rasterised page images from the
// buffer. The input bytes are never mutated.
func (s *Service) Ingest(payload []byte, filename string) (*IngestionResult, error) {
	doc, err := fitz.NewFromMemory(payload)
	if err != nil {
		return nil, &IngestionError{Message: "unable to open PDF", Err: fmt.Errorf("%w: %v", ErrNotPDF, err)}
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	var segments []TextSegment
	var images []ImageFragment

	for i := 0; i < pageCount; i++ {
		pageIndex := i + 1

		text, err := doc.Text(i)
		if err != nil {
			s.log.Warn("Page text extraction failed", "pdf_filename", filename, "page", pageIndex, "error", err)
		} else if strings.TrimSpace(text) != "" {
			segments = append(segments, chunkText(pageIndex, text, s.textChunkSize)...)
		}

		if len(images) >= s.maxImages {
			continue
		}
		rendered, err := doc.ImageDPI(i, s.imageDPI)
		if err != nil {
			s.log.Warn("Page render failed", "pdf_filename", filename, "page", pageIndex, "error", err)
			continue
		}
		encoded, err := s.encodePage(rendered)
		if err != nil {
			s.log.Warn("Page encode failed", "pdf_filename", filename, "page", pageIndex, "error", err)
			continue
		}
		images = append(images, ImageFragment{
			PageIndex:  pageIndex,
			MimeType:   "image/png",
			DataBase64: encoded,
		})
	}

	result := &IngestionResult{
		Filename:     filename,
		TextSegments: truncateSegments(segments, s.maxTextLength),
		Images:       images,
		PageCount:    pageCount,
	}
	s.log.Debug("Ingested PDF",
		"pdf_filename", filename,
		"pages", result.PageCount,
		"segments", len(result.TextSegments),
		"images", len(result.Images),
	)
	return result, nil
}

// encodePage composites the raster onto a white background, downscales it
// when oversized, and returns the PNG bytes base64-encoded.
func (s *Service) encodePage(src image.Image) (string, error) {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return "", fmt.Errorf("empty page raster")
	}

	scale := 1.0
	if longest := max(width, height); longest > s.maxImageEdge {
		scale = float64(s.maxImageEdge) / float64(longest)
	}
	outW := int(float64(width) * scale)
	outH := int(float64(height) * scale)
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}

	canvas := image.NewRGBA(image.Rect(0, 0, outW, outH))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.ApproxBiLinear.Scale(canvas, canvas.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// chunkText collapses whitespace runs and splits the page text into
// fixed-size segments so no single prompt part exceeds the chunk size.
// Bounds are measured in runes so a multi-byte character is never split.
func chunkText(pageIndex int, content string, chunkSize int) []TextSegment {
	sanitized := []rune(strings.Join(strings.Fields(content), " "))
	var segments []TextSegment
	for start := 0; start < len(sanitized); start += chunkSize {
		end := start + chunkSize
		if end > len(sanitized) {
			end = len(sanitized)
		}
		segment := strings.TrimSpace(string(sanitized[start:end]))
		if segment != "" {
			segments = append(segments, TextSegment{PageIndex: pageIndex, Content: segment})
		}
	}
	return segments
}

// truncateSegments bounds the total extracted text, truncating the final
// retained segment rather than dropping it. Like chunkText it counts runes,
// keeping every retained segment valid UTF-8.
func truncateSegments(segments []TextSegment, maxTotal int) []TextSegment {
	total := 0
	var out []TextSegment
	for _, segment := range segments {
		if total >= maxTotal {
			break
		}
		remaining := maxTotal - total
		content := []rune(segment.Content)
		if len(content) > remaining {
			content = content[:remaining]
		}
		out = append(out, TextSegment{PageIndex: segment.PageIndex, Content: string(content)})
		total += len(content)
	}
	return out
}
