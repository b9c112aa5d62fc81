package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zistudy/zistudy-backend/internal/ai"
	"github.com/zistudy/zistudy-backend/internal/middleware"
	"github.com/zistudy/zistudy-backend/internal/platform/dbctx"
	"github.com/zistudy/zistudy-backend/internal/services"
)

// maxUploadBytes caps a single PDF upload.
const maxUploadBytes = 50 * 1024 * 1024

var allowedUploadTypes = map[string]bool{
	"application/pdf":          true,
	"application/x-pdf":        true,
	"application/octet-stream": true,
}

type AIHandler struct {
	jobs services.JobService
}

func NewAIHandler(jobs services.JobService) *AIHandler {
	return &AIHandler{jobs: jobs}
}

// POST /api/ai/study-cards/generate
//
// Multipart form: "payload" carries the JSON generation request, "pdfs"
// carries one or more source documents. The work is queued and a 202 with
// the job row is returned immediately.
func (h *AIHandler) GenerateStudyCards(c *gin.Context) {
	ownerID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "not_authenticated", fmt.Errorf("not authenticated"))
		return
	}

	var req ai.GenerationRequest
	if raw := c.PostForm("payload"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_payload", err)
			return
		}
	}
	if err := req.Validate(); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_payload", err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_form", err)
		return
	}
	fileHeaders := form.File["pdfs"]
	if len(fileHeaders) == 0 {
		RespondError(c, http.StatusBadRequest, "missing_pdfs", fmt.Errorf("at least one PDF is required"))
		return
	}

	files := make([]ai.UploadedPDF, 0, len(fileHeaders))
	for _, header := range fileHeaders {
		if contentType := header.Header.Get("Content-Type"); contentType != "" && !allowedUploadTypes[contentType] {
			RespondError(c, http.StatusBadRequest, "unsupported_file_type",
				fmt.Errorf("%s has unsupported content type %q", header.Filename, contentType))
			return
		}
		if header.Size > maxUploadBytes {
			RespondError(c, http.StatusRequestEntityTooLarge, "pdf_too_large",
				fmt.Errorf("%s exceeds the %d byte upload limit", header.Filename, maxUploadBytes))
			return
		}
		file, err := header.Open()
		if err != nil {
			RespondError(c, http.StatusBadRequest, "unreadable_pdf", err)
			return
		}
		payload, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			RespondError(c, http.StatusBadRequest, "unreadable_pdf", err)
			return
		}
		files = append(files, ai.UploadedPDF{Filename: header.Filename, Payload: payload})
	}

	job, err := h.jobs.EnqueueCardGeneration(dbctx.Context{Ctx: c.Request.Context()}, ownerID, req, files)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "enqueue_failed", err)
		return
	}
	RespondAccepted(c, gin.H{"job": job})
}
