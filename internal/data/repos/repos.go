package repos

import (
	"gorm.io/gorm"

	"github.com/zistudy/zistudy-backend/internal/data/repos/cards"
	"github.com/zistudy/zistudy-backend/internal/data/repos/jobs"
	"github.com/zistudy/zistudy-backend/internal/platform/logger"
)

type StudyCardRepo = cards.StudyCardRepo
type JobRunRepo = jobs.JobRunRepo

func NewStudyCardRepo(db *gorm.DB, baseLog *logger.Logger) StudyCardRepo {
	return cards.NewStudyCardRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
