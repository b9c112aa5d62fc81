package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/zistudy/zistudy-backend/internal/ai"
	"github.com/zistudy/zistudy-backend/internal/data/repos"
	types "github.com/zistudy/zistudy-backend/internal/domain"
	domainjobs "github.com/zistudy/zistudy-backend/internal/domain/jobs"
	"github.com/zistudy/zistudy-backend/internal/platform/dbctx"
	"github.com/zistudy/zistudy-backend/internal/platform/logger"
)

var ErrJobNotFound = errors.New("job not found")

// GenericJobFailureMessage is what job owners see when a run fails. The
// concrete cause stays in the logs; model and infrastructure errors are not
// user-actionable and may leak prompt internals.
const GenericJobFailureMessage = "Job failed; please contact support."

type JobService interface {
	EnqueueCardGeneration(dbc dbctx.Context, ownerID uuid.UUID, req ai.GenerationRequest, files []ai.UploadedPDF) (*types.JobRun, error)
	GetForOwner(dbc dbctx.Context, ownerID uuid.UUID, jobID uuid.UUID) (*types.JobRun, error)
	ListForOwner(dbc dbctx.Context, ownerID uuid.UUID, limit int) ([]*types.JobRun, error)
	Shutdown(ctx context.Context) error
}

type jobService struct {
	db        *gorm.DB
	log       *logger.Logger
	repo      repos.JobRunRepo
	generator CardGenerationService
	notify    JobNotifier

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewJobService builds the background runner for card generation jobs.
// concurrency bounds how many generation runs execute at once; each run
// holds a Gemini conversation and PDF rasterisation buffers.
func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.JobRunRepo,
	generator CardGenerationService,
	notify JobNotifier,
	concurrency int,
) JobService {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &jobService{
		db:        db,
		log:       baseLog.With("service", "JobService"),
		repo:      repo,
		generator: generator,
		notify:    notify,
		sem:       semaphore.NewWeighted(int64(concurrency)),
	}
}

// generationJobPayload is the durable form of a queued generation request.
// Document bytes are base64 so the payload stays valid jsonb.
type generationJobPayload struct {
	Request   ai.GenerationRequest    `json:"request"`
	Documents []generationJobDocument `json:"documents"`
}

type generationJobDocument struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

func (s *jobService) EnqueueCardGeneration(dbc dbctx.Context, ownerID uuid.UUID, req ai.GenerationRequest, files []ai.UploadedPDF) (*types.JobRun, error) {
	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("missing owner_user_id")
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("at least one PDF is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload := generationJobPayload{Request: req, Documents: make([]generationJobDocument, 0, len(files))}
	for _, file := range files {
		payload.Documents = append(payload.Documents, generationJobDocument{
			Filename: file.Filename,
			Content:  base64.StdEncoding.EncodeToString(file.Payload),
		})
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}

	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerID,
		JobType:     domainjobs.JobTypeCardGeneration,
		Status:      domainjobs.JobStatusQueued,
		Stage:       domainjobs.JobStageQueued,
		Payload:     datatypes.JSON(payloadJSON),
		Result:      datatypes.JSON([]byte("{}")),
	}
	if err := s.repo.Create(dbc, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Info("Enqueued card generation job",
		"job_id", job.ID,
		"owner_user_id", ownerID,
		"file_count", len(files),
	)
	s.notify.JobCreated(dbc.Ctx, job)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// The request context dies with the HTTP response; the job must not.
		ctx := context.Background()
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer s.sem.Release(1)
		s.run(ctx, job.ID, ownerID)
	}()

	return job, nil
}

func (s *jobService) GetForOwner(dbc dbctx.Context, ownerID uuid.UUID, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, ErrJobNotFound
	}
	job, err := s.repo.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.OwnerUserID != ownerID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (s *jobService) ListForOwner(dbc dbctx.Context, ownerID uuid.UUID, limit int) ([]*types.JobRun, error) {
	return s.repo.ListByOwner(dbc, ownerID, limit)
}

// Shutdown waits for in-flight jobs to finish or the context to expire.
func (s *jobService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *jobService) run(ctx context.Context, jobID uuid.UUID, ownerID uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Job panicked", "job_id", jobID, "panic", fmt.Sprint(r))
			s.fail(ctx, jobID)
		}
	}()

	dbc := dbctx.Context{Ctx: ctx}
	started := time.Now()

	if err := s.repo.MarkRunning(dbc, jobID); err != nil {
		s.log.Error("Mark running failed", "job_id", jobID, "error", err.Error())
		return
	}
	job, err := s.repo.GetByID(dbc, jobID)
	if err != nil || job == nil {
		s.log.Error("Load running job failed", "job_id", jobID)
		return
	}
	s.notify.JobProgress(ctx, job, domainjobs.JobStageIngesting, 10)

	var payload generationJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		s.log.Error("Job payload corrupt", "job_id", jobID, "error", err.Error())
		s.fail(ctx, jobID)
		return
	}
	files := make([]ai.UploadedPDF, 0, len(payload.Documents))
	for _, document := range payload.Documents {
		content, err := base64.StdEncoding.DecodeString(document.Content)
		if err != nil {
			s.log.Error("Job document undecodable", "job_id", jobID, "pdf_filename", document.Filename, "error", err.Error())
			s.fail(ctx, jobID)
			return
		}
		files = append(files, ai.UploadedPDF{Filename: document.Filename, Payload: content})
	}

	if err := s.repo.SetProgress(dbc, jobID, domainjobs.JobStageGenerating, 35); err != nil {
		s.log.Warn("Set progress failed", "job_id", jobID, "error", err.Error())
	}
	s.notify.JobProgress(ctx, job, domainjobs.JobStageGenerating, 35)

	result, err := s.generator.GenerateFromPDFs(dbc, &ownerID, payload.Request, files)
	if err != nil {
		s.log.Error("Card generation failed",
			"job_id", jobID,
			"owner_user_id", ownerID,
			"error", err.Error(),
			"elapsed", time.Since(started).String(),
		)
		s.fail(ctx, jobID)
		return
	}

	if err := s.repo.SetProgress(dbc, jobID, domainjobs.JobStagePersisting, 90); err != nil {
		s.log.Warn("Set progress failed", "job_id", jobID, "error", err.Error())
	}
	s.notify.JobProgress(ctx, job, domainjobs.JobStagePersisting, 90)

	resultJSON, err := json.Marshal(result)
	if err != nil {
		s.log.Error("Job result unencodable", "job_id", jobID, "error", err.Error())
		s.fail(ctx, jobID)
		return
	}
	if err := s.repo.MarkSucceeded(dbc, jobID, datatypes.JSON(resultJSON)); err != nil {
		s.log.Error("Mark succeeded failed", "job_id", jobID, "error", err.Error())
		return
	}
	s.log.Info("Job completed",
		"job_id", jobID,
		"cards_created", result.Summary.CardCount,
		"elapsed", time.Since(started).String(),
	)
	if final, err := s.repo.GetByID(dbc, jobID); err == nil && final != nil {
		s.notify.JobSucceeded(ctx, final)
	}
}

// fail stamps the generic user-facing message; callers have already logged
// the real cause.
func (s *jobService) fail(ctx context.Context, jobID uuid.UUID) {
	dbc := dbctx.Context{Ctx: ctx}
	if err := s.repo.MarkFailed(dbc, jobID, GenericJobFailureMessage); err != nil {
		s.log.Error("Mark failed failed", "job_id", jobID, "error", err.Error())
		return
	}
	if job, err := s.repo.GetByID(dbc, jobID); err == nil && job != nil {
		s.notify.JobFailed(ctx, job, GenericJobFailureMessage)
	}
}
