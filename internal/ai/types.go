package ai

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zistudy/zistudy-backend/internal/domain/cards"
)

// ErrExhausted reports that every attempt completed without reaching the
// target card count and no concrete client error was recorded.
var ErrExhausted = errors.New("failed to generate the requested number of distinct study cards")

// ValidationError reports that a generated payload does not match the
// expected card-set shape.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generated card set invalid: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("generated card set invalid: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UploadedPDF is a caller-owned input document.
type UploadedPDF struct {
	Filename string
	Payload  []byte
}

// GenerationRequest describes one study card generation run.
type GenerationRequest struct {
	Topics              []string         `json:"topics,omitempty"`
	ClinicalFocus       []string         `json:"clinical_focus,omitempty"`
	LearningObjectives  []string         `json:"learning_objectives,omitempty"`
	TargetCardCount     int              `json:"target_card_count,omitempty"`
	PreferredCardTypes  []cards.CardType `json:"preferred_card_types,omitempty"`
	DifficultyProfile   string           `json:"difficulty_profile,omitempty"`
	Temperature         *float64         `json:"temperature,omitempty"`
	Model               string           `json:"model,omitempty"`
	IncludeRetentionAid *bool            `json:"include_retention_aid,omitempty"`
	LearnerLevel        string           `json:"learner_level,omitempty"`
	ContextHints        string           `json:"context_hints,omitempty"`
	ExistingCardIDs     []uuid.UUID      `json:"existing_card_ids,omitempty"`
}

// RetentionAidRequested defaults to true when the caller says nothing.
func (r GenerationRequest) RetentionAidRequested() bool {
	return r.IncludeRetentionAid == nil || *r.IncludeRetentionAid
}

// EffectiveDifficultyProfile falls back to the balanced distribution.
func (r GenerationRequest) EffectiveDifficultyProfile() string {
	if r.DifficultyProfile == "" {
		return "balanced"
	}
	return r.DifficultyProfile
}

// Validate applies the request bounds enforced at the API boundary.
func (r GenerationRequest) Validate() error {
	if r.TargetCardCount < 0 || r.TargetCardCount > 60 {
		return fmt.Errorf("target_card_count must be between 1 and 60")
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	switch r.EffectiveDifficultyProfile() {
	case "balanced", "advanced", "foundational":
	default:
		return fmt.Errorf("difficulty_profile must be balanced, advanced, or foundational")
	}
	for _, cardType := range r.PreferredCardTypes {
		if !cardType.IsValid() {
			return fmt.Errorf("unknown card type %q", cardType)
		}
	}
	return nil
}

// GeneratedOption is one option in a model-produced card payload.
type GeneratedOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// GeneratedRationale explains the correct answer in the raw payload.
type GeneratedRationale struct {
	Primary      string            `json:"primary"`
	Alternatives map[string]string `json:"alternatives,omitempty"`
}

// GeneratedPayload is the superset structure the model fills per card.
// Fields irrelevant to a card type stay at their zero value.
type GeneratedPayload struct {
	Question        string             `json:"question"`
	Options         []GeneratedOption  `json:"options,omitempty"`
	CorrectAnswers  []string           `json:"correct_answers,omitempty"`
	Rationale       GeneratedRationale `json:"rationale"`
	Connections     []string           `json:"connections,omitempty"`
	Glossary        map[string]string  `json:"glossary,omitempty"`
	NumericalRanges []string           `json:"numerical_ranges,omitempty"`
	References      []string           `json:"references,omitempty"`
}

// GeneratedCard is the model's raw output unit, not yet persistable.
type GeneratedCard struct {
	CardType   cards.CardType   `json:"card_type"`
	Difficulty int              `json:"difficulty"`
	Payload    GeneratedPayload `json:"payload"`
}

// RetentionAid is the optional markdown summary produced alongside cards.
type RetentionAid struct {
	Markdown string `json:"markdown"`
}

// GeneratedCardSet is the full structured response expected from the model.
type GeneratedCardSet struct {
	Cards        []GeneratedCard `json:"cards"`
	RetentionAid *RetentionAid   `json:"retention_aid,omitempty"`
}

// ParseGeneratedCardSet validates a raw model response against the expected
// card-set shape. This is the single validation boundary; mapping code
// downstream never re-probes the raw JSON.
func ParseGeneratedCardSet(payload map[string]any) (*GeneratedCardSet, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, &ValidationError{Reason: "response is not serialisable", Err: err}
	}
	var set GeneratedCardSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, &ValidationError{Reason: "response does not match the card set schema", Err: err}
	}
	if _, ok := payload["cards"]; !ok {
		return nil, &ValidationError{Reason: "response is missing the cards list"}
	}
	for i, card := range set.Cards {
		if !card.CardType.IsValid() {
			return nil, &ValidationError{Reason: fmt.Sprintf("cards[%d] has unknown card_type %q", i, card.CardType)}
		}
		if card.Difficulty < 1 || card.Difficulty > 5 {
			return nil, &ValidationError{Reason: fmt.Sprintf("cards[%d] difficulty %d outside 1..5", i, card.Difficulty)}
		}
	}
	return &set, nil
}

// AgentConfiguration carries static defaults and safety bounds applied to
// every agent invocation. Supplied once at construction, never mutated.
type AgentConfiguration struct {
	DefaultModel       string
	DefaultTemperature float64
	DefaultCardCount   int
	MaxCardCount       int
	MaxAttempts        int
}

// AgentResult is the agent's terminal output for one generation run.
type AgentResult struct {
	Cards              []GeneratedCard
	RetentionAid       *RetentionAid
	ModelUsed          string
	TemperatureApplied float64
	RequestedCardCount int
}
