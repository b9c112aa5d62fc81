package cards

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/zistudy/zistudy-backend/internal/domain"
	"github.com/zistudy/zistudy-backend/internal/platform/dbctx"
	"github.com/zistudy/zistudy-backend/internal/platform/logger"
)

type StudyCardRepo interface {
	CreateBatch(dbc dbctx.Context, rows []*types.StudyCard) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.StudyCard, error)
	GetMany(dbc dbctx.Context, ids []uuid.UUID) ([]*types.StudyCard, error)
	ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, cardType string, limit int) ([]*types.StudyCard, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type studyCardRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudyCardRepo(db *gorm.DB, baseLog *logger.Logger) StudyCardRepo {
	return &studyCardRepo{db: db, log: baseLog.With("repo", "StudyCardRepo")}
}

func (r *studyCardRepo) CreateBatch(dbc dbctx.Context, rows []*types.StudyCard) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return t.WithContext(dbc.Ctx).Create(rows).Error
}

func (r *studyCardRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.StudyCard, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	row := &types.StudyCard{}
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).First(row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

func (r *studyCardRepo) GetMany(dbc dbctx.Context, ids []uuid.UUID) ([]*types.StudyCard, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []*types.StudyCard
	if err := t.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *studyCardRepo) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, cardType string, limit int) ([]*types.StudyCard, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	q := t.WithContext(dbc.Ctx).Where("owner_user_id = ?", ownerID)
	if cardType != "" {
		q = q.Where("card_type = ?", cardType)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []*types.StudyCard
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *studyCardRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx).Where("id = ?", id).Delete(&types.StudyCard{}).Error
}
