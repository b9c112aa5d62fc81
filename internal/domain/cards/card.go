package cards

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type StudyCard struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID *uuid.UUID     `gorm:"type:uuid;column:owner_user_id;index" json:"owner_user_id,omitempty"`
	CardType    string         `gorm:"column:card_type;not null;index" json:"card_type"`
	Difficulty  int            `gorm:"column:difficulty;not null;default:1" json:"difficulty"`
	Data        datatypes.JSON `gorm:"column:data;type:jsonb" json:"data"`
	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (StudyCard) TableName() string { return "study_card" }

type StudySet struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID *uuid.UUID     `gorm:"type:uuid;column:owner_user_id;index" json:"owner_user_id,omitempty"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Description string         `gorm:"column:description" json:"description,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (StudySet) TableName() string { return "study_set" }

type StudySetCard struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	StudySetID uuid.UUID `gorm:"type:uuid;column:study_set_id;not null;index:idx_set_card,unique" json:"study_set_id"`
	CardID     uuid.UUID `gorm:"type:uuid;column:card_id;not null;index:idx_set_card,unique" json:"card_id"`
	Position   int       `gorm:"column:position;not null;default:0" json:"position"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (StudySetCard) TableName() string { return "study_set_card" }

type Tag struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string    `gorm:"column:name;uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Tag) TableName() string { return "tag" }

type CardTag struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CardID    uuid.UUID `gorm:"type:uuid;column:card_id;not null;index:idx_card_tag,unique" json:"card_id"`
	TagID     uuid.UUID `gorm:"type:uuid;column:tag_id;not null;index:idx_card_tag,unique" json:"tag_id"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (CardTag) TableName() string { return "card_tag" }

// StudyCardCreate is the writable representation used by persistence batches.
type StudyCardCreate struct {
	CardType   CardType `json:"card_type"`
	Difficulty int      `json:"difficulty"`
	Data       CardData `json:"data"`
}

// StudyCardRead is the card representation returned by the API and the
// persistence layer.
type StudyCardRead struct {
	ID          uuid.UUID      `json:"id"`
	OwnerUserID *uuid.UUID     `json:"owner_user_id,omitempty"`
	CardType    CardType       `json:"card_type"`
	Difficulty  int            `json:"difficulty"`
	Data        datatypes.JSON `json:"data"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ReadFromModel converts a stored row into its API representation.
func ReadFromModel(model StudyCard) StudyCardRead {
	return StudyCardRead{
		ID:          model.ID,
		OwnerUserID: model.OwnerUserID,
		CardType:    CardType(model.CardType),
		Difficulty:  model.Difficulty,
		Data:        model.Data,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}
