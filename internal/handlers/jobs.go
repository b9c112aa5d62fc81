package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zistudy/zistudy-backend/internal/middleware"
	"github.com/zistudy/zistudy-backend/internal/platform/dbctx"
	"github.com/zistudy/zistudy-backend/internal/services"
)

type JobsHandler struct {
	jobs services.JobService
}

func NewJobsHandler(jobs services.JobService) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

// GET /api/jobs/:id
func (h *JobsHandler) GetJobByID(c *gin.Context) {
	ownerID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "not_authenticated", fmt.Errorf("not authenticated"))
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.GetForOwner(dbctx.Context{Ctx: c.Request.Context()}, ownerID, jobID)
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "job_lookup_failed", err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

// GET /api/jobs
func (h *JobsHandler) ListJobs(c *gin.Context) {
	ownerID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, "not_authenticated", fmt.Errorf("not authenticated"))
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("limit must be between 1 and 200"))
			return
		}
		limit = parsed
	}
	jobs, err := h.jobs.ListForOwner(dbctx.Context{Ctx: c.Request.Context()}, ownerID, limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "job_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"jobs": jobs})
}
