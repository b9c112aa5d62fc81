package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/zistudy/zistudy-backend/internal/data/repos"
	types "github.com/zistudy/zistudy-backend/internal/domain"
	"github.com/zistudy/zistudy-backend/internal/domain/cards"
	"github.com/zistudy/zistudy-backend/internal/platform/dbctx"
	"github.com/zistudy/zistudy-backend/internal/platform/logger"
)

var ErrCardNotFound = errors.New("study card not found")
var ErrForbidden = errors.New("forbidden")

type StudyCardService interface {
	ImportBatch(dbc dbctx.Context, ownerID *uuid.UUID, batch []types.StudyCardCreate) ([]types.StudyCardRead, error)
	GetCard(dbc dbctx.Context, requesterID uuid.UUID, cardID uuid.UUID) (*types.StudyCardRead, error)
	ListCards(dbc dbctx.Context, requesterID uuid.UUID, cardType string, limit int) ([]types.StudyCardRead, error)
	DeleteCard(dbc dbctx.Context, requesterID uuid.UUID, cardID uuid.UUID) error
}

type studyCardService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.StudyCardRepo
}

func NewStudyCardService(db *gorm.DB, baseLog *logger.Logger, repo repos.StudyCardRepo) StudyCardService {
	return &studyCardService{
		db:   db,
		log:  baseLog.With("service", "StudyCardService"),
		repo: repo,
	}
}

// ImportBatch persists a batch of typed cards and returns their read models.
// Every card is validated before anything is written so a bad entry rejects
// the whole batch.
func (s *studyCardService) ImportBatch(dbc dbctx.Context, ownerID *uuid.UUID, batch []types.StudyCardCreate) ([]types.StudyCardRead, error) {
	if len(batch) == 0 {
		return []types.StudyCardRead{}, nil
	}
	rows := make([]*types.StudyCard, 0, len(batch))
	for i, create := range batch {
		if !create.CardType.IsValid() {
			return nil, fmt.Errorf("cards[%d]: unknown card type %q", i, create.CardType)
		}
		if create.Difficulty < 1 || create.Difficulty > 5 {
			return nil, fmt.Errorf("cards[%d]: difficulty %d outside 1..5", i, create.Difficulty)
		}
		raw, err := cards.MarshalCardData(create.Data)
		if err != nil {
			return nil, fmt.Errorf("cards[%d]: encode payload: %w", i, err)
		}
		rows = append(rows, &types.StudyCard{
			ID:          uuid.New(),
			OwnerUserID: ownerID,
			CardType:    string(create.CardType),
			Difficulty:  create.Difficulty,
			Data:        datatypes.JSON(raw),
		})
	}
	if err := s.repo.CreateBatch(dbc, rows); err != nil {
		return nil, fmt.Errorf("import cards: %w", err)
	}
	s.log.Info("Imported study cards", "count", len(rows))
	reads := make([]types.StudyCardRead, 0, len(rows))
	for _, row := range rows {
		reads = append(reads, cards.ReadFromModel(*row))
	}
	return reads, nil
}

func (s *studyCardService) GetCard(dbc dbctx.Context, requesterID uuid.UUID, cardID uuid.UUID) (*types.StudyCardRead, error) {
	row, err := s.repo.GetByID(dbc, cardID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrCardNotFound
	}
	if !canView(row.OwnerUserID, requesterID) {
		return nil, ErrForbidden
	}
	read := cards.ReadFromModel(*row)
	return &read, nil
}

func (s *studyCardService) ListCards(dbc dbctx.Context, requesterID uuid.UUID, cardType string, limit int) ([]types.StudyCardRead, error) {
	if cardType != "" && !types.CardType(cardType).IsValid() {
		return nil, fmt.Errorf("unknown card type %q", cardType)
	}
	rows, err := s.repo.ListByOwner(dbc, requesterID, cardType, limit)
	if err != nil {
		return nil, err
	}
	reads := make([]types.StudyCardRead, 0, len(rows))
	for _, row := range rows {
		reads = append(reads, cards.ReadFromModel(*row))
	}
	return reads, nil
}

func (s *studyCardService) DeleteCard(dbc dbctx.Context, requesterID uuid.UUID, cardID uuid.UUID) error {
	row, err := s.repo.GetByID(dbc, cardID)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrCardNotFound
	}
	if row.OwnerUserID == nil || *row.OwnerUserID != requesterID {
		return ErrForbidden
	}
	return s.repo.Delete(dbc, cardID)
}

// canView allows ownerless cards to any authenticated reader; owned cards
// only to their owner.
func canView(ownerID *uuid.UUID, requesterID uuid.UUID) bool {
	return ownerID == nil || *ownerID == requesterID
}
