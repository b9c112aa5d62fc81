package domain

import (
	"github.com/zistudy/zistudy-backend/internal/domain/cards"
	"github.com/zistudy/zistudy-backend/internal/domain/jobs"
)

type StudyCard = cards.StudyCard
type StudySet = cards.StudySet
type StudySetCard = cards.StudySetCard
type Tag = cards.Tag
type CardTag = cards.CardTag
type StudyCardCreate = cards.StudyCardCreate
type StudyCardRead = cards.StudyCardRead
type CardType = cards.CardType

type JobRun = jobs.JobRun

// AllModels lists every persisted model for migration wiring.
func AllModels() []any {
	return []any{
		&cards.StudyCard{},
		&cards.StudySet{},
		&cards.StudySetCard{},
		&cards.Tag{},
		&cards.CardTag{},
		&jobs.JobRun{},
	}
}
