package ai

import (
	"context"
	"encoding/base64"

	"github.com/zistudy/zistudy-backend/internal/ai/pdf"
	"github.com/zistudy/zistudy-backend/internal/platform/gemini"
	"github.com/zistudy/zistudy-backend/internal/platform/logger"
)

// PDFContext is the bundle a strategy prepares for the agent.
type PDFContext struct {
	Documents  []*pdf.IngestionResult
	ExtraParts []gemini.Part
}

// ContextStrategy decides how uploaded PDFs are represented to the model.
type ContextStrategy interface {
	BuildContext(ctx context.Context, files []UploadedPDF, client gemini.Client) (*PDFContext, error)
}

// Ingestor is the slice of pdf.Service the strategies rely on.
type Ingestor interface {
	Ingest(payload []byte, filename string) (*pdf.IngestionResult, error)
}

// IngestedStrategy relies entirely on extracted text and images folded into
// the prompt by the agent.
type IngestedStrategy struct {
	log      *logger.Logger
	ingestor Ingestor
}

func NewIngestedStrategy(baseLog *logger.Logger, ingestor Ingestor) *IngestedStrategy {
	return &IngestedStrategy{
		log:      baseLog.With("strategy", "IngestedPDFContext"),
		ingestor: ingestor,
	}
}

func (s *IngestedStrategy) BuildContext(ctx context.Context, files []UploadedPDF, client gemini.Client) (*PDFContext, error) {
	s.log.Info("Building ingested PDF context", "file_count", len(files))
	documents := make([]*pdf.IngestionResult, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		document, err := s.ingestor.Ingest(file.Payload, file.Filename)
		if err != nil {
			return nil, err
		}
		documents = append(documents, document)
	}
	return &PDFContext{Documents: documents}, nil
}

// NativeStrategy hands the model the PDF bytes themselves: inline for small
// files, via the file upload API for large ones. Every file is still
// ingested so extracted text remains available as degraded context when an
// upload fails. Uploads are never retried.
type NativeStrategy struct {
	log             *logger.Logger
	ingestor        Ingestor
	inlineThreshold int
}

func NewNativeStrategy(baseLog *logger.Logger, ingestor Ingestor, inlineThreshold int) *NativeStrategy {
	if inlineThreshold <= 0 {
		inlineThreshold = gemini.MaxInlineBytes
	}
	return &NativeStrategy{
		log:             baseLog.With("strategy", "NativePDFContext"),
		ingestor:        ingestor,
		inlineThreshold: inlineThreshold,
	}
}

func (s *NativeStrategy) BuildContext(ctx context.Context, files []UploadedPDF, client gemini.Client) (*PDFContext, error) {
	s.log.Info("Building native PDF context",
		"file_count", len(files),
		"inline_threshold", s.inlineThreshold,
	)
	documents := make([]*pdf.IngestionResult, 0, len(files))
	var extras []gemini.Part

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		document, err := s.ingestor.Ingest(file.Payload, file.Filename)
		if err != nil {
			return nil, err
		}
		documents = append(documents, document)

		if len(file.Payload) > s.inlineThreshold {
			displayName := file.Filename
			if displayName == "" {
				displayName = "uploaded.pdf"
			}
			fileURI, err := client.UploadFile(ctx, file.Payload, "application/pdf", displayName)
			if err != nil {
				s.log.Warn("Upload failed; falling back to extracted text",
					"pdf_filename", file.Filename,
					"pdf_bytes", len(file.Payload),
					"reason", err.Error(),
				)
				continue
			}
			s.log.Debug("Uploaded PDF via file API",
				"pdf_filename", file.Filename,
				"pdf_bytes", len(file.Payload),
				"file_uri", fileURI,
			)
			extras = append(extras, gemini.FilePart{
				MimeType: "application/pdf",
				FileURI:  fileURI,
			})
			continue
		}

		extras = append(extras, gemini.InlineDataPart{
			MimeType: "application/pdf",
			Data:     base64.StdEncoding.EncodeToString(file.Payload),
		})
		s.log.Debug("Embedded PDF inline",
			"pdf_filename", file.Filename,
			"pdf_bytes", len(file.Payload),
		)
	}

	return &PDFContext{Documents: documents, ExtraParts: extras}, nil
}
