package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/zistudy/zistudy-backend/internal/domain"
	domainjobs "github.com/zistudy/zistudy-backend/internal/domain/jobs"
	"github.com/zistudy/zistudy-backend/internal/platform/dbctx"
	"github.com/zistudy/zistudy-backend/internal/platform/logger"
)

type JobRunRepo interface {
	Create(dbc dbctx.Context, row *types.JobRun) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error)
	ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, limit int) ([]*types.JobRun, error)
	MarkRunning(dbc dbctx.Context, id uuid.UUID) error
	SetProgress(dbc dbctx.Context, id uuid.UUID, stage string, progress int) error
	MarkSucceeded(dbc dbctx.Context, id uuid.UUID, result datatypes.JSON) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID, message string) error
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{db: db, log: baseLog.With("repo", "JobRunRepo")}
}

func (r *jobRunRepo) Create(dbc dbctx.Context, row *types.JobRun) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	return t.WithContext(dbc.Ctx).Create(row).Error
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	row := &types.JobRun{}
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).First(row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

func (r *jobRunRepo) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, limit int) ([]*types.JobRun, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(dbc.Ctx).Where("owner_user_id = ?", ownerID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []*types.JobRun
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *jobRunRepo) MarkRunning(dbc dbctx.Context, id uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	now := time.Now().UTC()
	return t.WithContext(dbc.Ctx).Model(&types.JobRun{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     domainjobs.JobStatusRunning,
			"stage":      domainjobs.JobStageIngesting,
			"attempts":   gorm.Expr("attempts + 1"),
			"started_at": &now,
			"updated_at": now,
		}).Error
}

func (r *jobRunRepo) SetProgress(dbc dbctx.Context, id uuid.UUID, stage string, progress int) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx).Model(&types.JobRun{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stage":      stage,
			"progress":   progress,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *jobRunRepo) MarkSucceeded(dbc dbctx.Context, id uuid.UUID, result datatypes.JSON) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	now := time.Now().UTC()
	return t.WithContext(dbc.Ctx).Model(&types.JobRun{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      domainjobs.JobStatusSucceeded,
			"stage":       domainjobs.JobStageDone,
			"progress":    100,
			"result":      result,
			"finished_at": &now,
			"updated_at":  now,
		}).Error
}

func (r *jobRunRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, message string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	now := time.Now().UTC()
	return t.WithContext(dbc.Ctx).Model(&types.JobRun{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      domainjobs.JobStatusFailed,
			"error":       message,
			"finished_at": &now,
			"updated_at":  now,
		}).Error
}
