package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/zistudy/zistudy-backend/internal/domain"
	domainjobs "github.com/zistudy/zistudy-backend/internal/domain/jobs"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedStudyCard(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, cardType string, difficulty int) *types.StudyCard {
	tb.Helper()
	c := &types.StudyCard{
		ID:          uuid.New(),
		OwnerUserID: PtrUUID(ownerID),
		CardType:    cardType,
		Difficulty:  difficulty,
		Data:        datatypes.JSON([]byte(`{"question":"seed"}`)),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed study card: %v", err)
	}
	return c
}

func SeedStudySet(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, title string) *types.StudySet {
	tb.Helper()
	s := &types.StudySet{
		ID:          uuid.New(),
		OwnerUserID: PtrUUID(ownerID),
		Title:       title,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed study set: %v", err)
	}
	return s
}

func SeedJobRun(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, status string) *types.JobRun {
	tb.Helper()
	j := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerID,
		JobType:     domainjobs.JobTypeCardGeneration,
		Status:      status,
		Stage:       domainjobs.JobStageQueued,
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job run: %v", err)
	}
	return j
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
