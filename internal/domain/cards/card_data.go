package cards

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CardGeneratorSchemaVersion identifies the typed payload contract. Bump it
// whenever a payload structure changes in a backward-incompatible way.
const CardGeneratorSchemaVersion = "1.0.0"

// CardGeneratorMetadata records the AI run that produced a card payload.
// It is provenance only and never drives business logic.
type CardGeneratorMetadata struct {
	Model              string      `json:"model"`
	Temperature        *float64    `json:"temperature,omitempty"`
	RequestedCardCount *int        `json:"requested_card_count,omitempty"`
	Topics             []string    `json:"topics,omitempty"`
	ClinicalFocus      []string    `json:"clinical_focus,omitempty"`
	LearningObjectives []string    `json:"learning_objectives,omitempty"`
	PreferredCardTypes []string    `json:"preferred_card_types,omitempty"`
	ExistingCardIDs    []uuid.UUID `json:"existing_card_ids,omitempty"`
	Sources            []string    `json:"sources,omitempty"`
	SchemaVersion      string      `json:"schema_version"`
}

// CardOption is a single multiple-choice option.
type CardOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// CardRationale explains the correct answer and why alternatives fail.
type CardRationale struct {
	Primary      string            `json:"primary"`
	Alternatives map[string]string `json:"alternatives,omitempty"`
}

// CardData is the closed set of typed study card payloads, discriminated by
// CardType at exactly one mapping boundary.
type CardData interface {
	Validate() error
}

// QuestionData is implemented by every payload that carries a question stem.
type QuestionData interface {
	QuestionPrompt() string
}

// QuestionFields is embedded by every question-type payload.
type QuestionFields struct {
	Generator       *CardGeneratorMetadata `json:"generator,omitempty"`
	Prompt          string                 `json:"prompt"`
	Rationale       *CardRationale         `json:"rationale,omitempty"`
	Glossary        map[string]string      `json:"glossary,omitempty"`
	Connections     []string               `json:"connections,omitempty"`
	References      []string               `json:"references,omitempty"`
	NumericalRanges []string               `json:"numerical_ranges,omitempty"`
}

func (q QuestionFields) QuestionPrompt() string { return q.Prompt }

type NoteCardData struct {
	Generator *CardGeneratorMetadata `json:"generator,omitempty"`
	Title     string                 `json:"title"`
	Markdown  string                 `json:"markdown"`
}

func (d NoteCardData) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("note card requires a title")
	}
	if strings.TrimSpace(d.Markdown) == "" {
		return fmt.Errorf("note card requires markdown content")
	}
	return nil
}

// MultipleChoiceFields carries the shared MCQ structure and its base
// invariant: every correct id must reference a declared option.
type MultipleChoiceFields struct {
	Options          []CardOption `json:"options"`
	CorrectOptionIDs []string     `json:"correct_option_ids"`
}

func (m MultipleChoiceFields) validateOptionIDs() error {
	if len(m.CorrectOptionIDs) == 0 {
		return fmt.Errorf("at least one correct option identifier is required")
	}
	declared := make(map[string]struct{}, len(m.Options))
	for _, option := range m.Options {
		declared[option.ID] = struct{}{}
	}
	var missing []string
	for _, id := range m.CorrectOptionIDs {
		if _, ok := declared[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("unknown option identifiers referenced: %v", missing)
	}
	return nil
}

type McqSingleCardData struct {
	QuestionFields
	MultipleChoiceFields
}

func (d McqSingleCardData) Validate() error {
	if err := d.validateOptionIDs(); err != nil {
		return err
	}
	if len(d.CorrectOptionIDs) != 1 {
		return fmt.Errorf("mcq_single cards must have exactly one correct option identifier")
	}
	return nil
}

type McqMultiCardData struct {
	QuestionFields
	MultipleChoiceFields
}

func (d McqMultiCardData) Validate() error {
	if err := d.validateOptionIDs(); err != nil {
		return err
	}
	if len(d.CorrectOptionIDs) < 2 {
		return fmt.Errorf("mcq_multi cards must have at least two correct option identifiers")
	}
	return nil
}

type WrittenCardData struct {
	QuestionFields
	ExpectedAnswer *string `json:"expected_answer,omitempty"`
}

func (d WrittenCardData) Validate() error { return nil }

type TrueFalseCardData struct {
	QuestionFields
	CorrectAnswer bool `json:"correct_answer"`
}

func (d TrueFalseCardData) Validate() error { return nil }

type ClozeCardData struct {
	QuestionFields
	ClozeAnswers []string `json:"cloze_answers"`
}

func (d ClozeCardData) Validate() error { return nil }

// EmqMatch pairs an EMQ premise with the option that answers it.
type EmqMatch struct {
	PremiseIndex int `json:"premise_index"`
	OptionIndex  int `json:"option_index"`
}

type EmqCardData struct {
	QuestionFields
	Instructions *string    `json:"instructions,omitempty"`
	Premises     []string   `json:"premises"`
	Options      []string   `json:"options"`
	Matches      []EmqMatch `json:"matches"`
}

func (d EmqCardData) Validate() error { return nil }

// GenericCardData is the fallback container for payloads that cannot be
// normalised into a typed shape.
type GenericCardData struct {
	Generator *CardGeneratorMetadata `json:"generator,omitempty"`
	Payload   map[string]any         `json:"payload,omitempty"`
}

func (d GenericCardData) Validate() error { return nil }

// ParseCardData normalises a stored JSON payload into its typed shape. Types
// without a dedicated shape decode into GenericCardData so older or foreign
// payloads always round-trip.
func ParseCardData(cardType CardType, raw []byte) (CardData, error) {
	decode := func(target CardData) (CardData, error) {
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("invalid study card payload for type %s: %w", cardType, err)
		}
		value := deref(target)
		if err := value.Validate(); err != nil {
			return nil, fmt.Errorf("invalid study card payload for type %s: %w", cardType, err)
		}
		return value, nil
	}
	switch cardType {
	case CardTypeNote:
		return decode(&NoteCardData{})
	case CardTypeMcqSingle:
		return decode(&McqSingleCardData{})
	case CardTypeMcqMulti:
		return decode(&McqMultiCardData{})
	case CardTypeWritten:
		return decode(&WrittenCardData{})
	case CardTypeTrueFalse:
		return decode(&TrueFalseCardData{})
	case CardTypeCloze:
		return decode(&ClozeCardData{})
	case CardTypeEmq:
		return decode(&EmqCardData{})
	default:
		var generic GenericCardData
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("study card payload must be a JSON object: %w", err)
		}
		if generic.Payload == nil {
			payload := map[string]any{}
			if err := json.Unmarshal(raw, &payload); err == nil {
				delete(payload, "generator")
				generic.Payload = payload
			}
		}
		return generic, nil
	}
}

// MarshalCardData renders a typed payload back to its stored JSON form.
func MarshalCardData(data CardData) ([]byte, error) {
	if data == nil {
		return []byte("null"), nil
	}
	return json.Marshal(data)
}

func deref(data CardData) CardData {
	switch typed := data.(type) {
	case *NoteCardData:
		return *typed
	case *McqSingleCardData:
		return *typed
	case *McqMultiCardData:
		return *typed
	case *WrittenCardData:
		return *typed
	case *TrueFalseCardData:
		return *typed
	case *ClozeCardData:
		return *typed
	case *EmqCardData:
		return *typed
	case *GenericCardData:
		return *typed
	default:
		return data
	}
}
