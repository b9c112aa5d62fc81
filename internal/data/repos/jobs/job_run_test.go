package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/zistudy/zistudy-backend/internal/data/repos/testutil"
	types "github.com/zistudy/zistudy-backend/internal/domain"
	domainjobs "github.com/zistudy/zistudy-backend/internal/domain/jobs"
	"github.com/zistudy/zistudy-backend/internal/platform/dbctx"
)

func TestJobRunRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	ownerID := uuid.New()
	run := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerID,
		JobType:     domainjobs.JobTypeCardGeneration,
		Status:      domainjobs.JobStatusQueued,
		Stage:       domainjobs.JobStageQueued,
		Payload:     datatypes.JSON([]byte(`{"request":{}}`)),
		Result:      datatypes.JSON([]byte("{}")),
	}
	if err := repo.Create(dbc, run); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(dbc, run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.Status != domainjobs.JobStatusQueued {
		t.Fatalf("GetByID: got %+v", got)
	}

	if err := repo.MarkRunning(dbc, run.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	got, err = repo.GetByID(dbc, run.ID)
	if err != nil {
		t.Fatalf("GetByID after MarkRunning: %v", err)
	}
	if got.Status != domainjobs.JobStatusRunning || got.Stage != domainjobs.JobStageIngesting {
		t.Fatalf("after MarkRunning: status=%q stage=%q", got.Status, got.Stage)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", got.Attempts)
	}
	if got.StartedAt == nil {
		t.Fatal("started_at not set")
	}

	if err := repo.SetProgress(dbc, run.ID, domainjobs.JobStageGenerating, 40); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	got, err = repo.GetByID(dbc, run.ID)
	if err != nil {
		t.Fatalf("GetByID after SetProgress: %v", err)
	}
	if got.Stage != domainjobs.JobStageGenerating || got.Progress != 40 {
		t.Fatalf("after SetProgress: stage=%q progress=%d", got.Stage, got.Progress)
	}

	if err := repo.MarkSucceeded(dbc, run.ID, datatypes.JSON([]byte(`{"card_count":3}`))); err != nil {
		t.Fatalf("MarkSucceeded: %v", err)
	}
	got, err = repo.GetByID(dbc, run.ID)
	if err != nil {
		t.Fatalf("GetByID after MarkSucceeded: %v", err)
	}
	if got.Status != domainjobs.JobStatusSucceeded || got.Stage != domainjobs.JobStageDone || got.Progress != 100 {
		t.Fatalf("after MarkSucceeded: %+v", got)
	}
	if got.FinishedAt == nil {
		t.Fatal("finished_at not set")
	}
	if !got.Terminal() {
		t.Fatal("succeeded run must be terminal")
	}
}

func TestJobRunRepoMarkFailed(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	run := testutil.SeedJobRun(t, dbc.Ctx, tx, uuid.New(), domainjobs.JobStatusRunning)
	if err := repo.MarkFailed(dbc, run.ID, "Job failed; please contact support."); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	got, err := repo.GetByID(dbc, run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domainjobs.JobStatusFailed {
		t.Fatalf("status = %q", got.Status)
	}
	if got.Error != "Job failed; please contact support." {
		t.Fatalf("error = %q", got.Error)
	}
	if got.FinishedAt == nil {
		t.Fatal("finished_at not set")
	}
}

func TestJobRunRepoListByOwner(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	ownerID := uuid.New()
	otherID := uuid.New()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		run := &types.JobRun{
			ID:          uuid.New(),
			OwnerUserID: ownerID,
			JobType:     domainjobs.JobTypeCardGeneration,
			Status:      domainjobs.JobStatusQueued,
			Stage:       domainjobs.JobStageQueued,
			Payload:     datatypes.JSON([]byte("{}")),
			Result:      datatypes.JSON([]byte("{}")),
			CreatedAt:   now.Add(time.Duration(-i) * time.Hour),
			UpdatedAt:   now.Add(time.Duration(-i) * time.Hour),
		}
		if err := repo.Create(dbc, run); err != nil {
			t.Fatalf("seed run %d: %v", i, err)
		}
	}
	testutil.SeedJobRun(t, dbc.Ctx, tx, otherID, domainjobs.JobStatusQueued)

	rows, err := repo.ListByOwner(dbc, ownerID, 0)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].CreatedAt.After(rows[i-1].CreatedAt) {
			t.Fatal("rows not ordered created_at DESC")
		}
	}

	limited, err := repo.ListByOwner(dbc, ownerID, 2)
	if err != nil {
		t.Fatalf("ListByOwner limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited rows = %d, want 2", len(limited))
	}
}

func TestJobRunRepoGetByIDMissing(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	got, err := repo.GetByID(dbc, uuid.New())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing row, got %+v", got)
	}
}
