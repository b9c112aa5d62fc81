package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/zistudy/zistudy-backend/internal/ai"
	"github.com/zistudy/zistudy-backend/internal/ai/pdf"
	"github.com/zistudy/zistudy-backend/internal/data/repos"
	types "github.com/zistudy/zistudy-backend/internal/domain"
	"github.com/zistudy/zistudy-backend/internal/domain/cards"
	"github.com/zistudy/zistudy-backend/internal/platform/dbctx"
	"github.com/zistudy/zistudy-backend/internal/platform/logger"
)

// ContentValidationError reports a generated artefact that must never be
// persisted silently, such as a note without markdown content.
type ContentValidationError struct {
	Message string
}

func (e *ContentValidationError) Error() string { return e.Message }

// GenerationSummary is the caller-facing digest of one generation run.
type GenerationSummary struct {
	CardCount          int      `json:"card_count"`
	Sources            []string `json:"sources"`
	ModelUsed          string   `json:"model_used"`
	TemperatureApplied float64  `json:"temperature_applied"`
}

// GenerationResult bundles persisted cards with the raw model output so
// clients can audit what the model produced versus what was stored.
type GenerationResult struct {
	Cards         []types.StudyCardRead `json:"cards"`
	RetentionAid  *ai.RetentionAid      `json:"retention_aid,omitempty"`
	Summary       GenerationSummary     `json:"summary"`
	RawGeneration ai.GeneratedCardSet   `json:"raw_generation"`
}

// CardGenerationService is the facade orchestrating PDF context assembly,
// the generation agent, payload mapping, and persistence.
type CardGenerationService interface {
	GenerateFromPDFs(dbc dbctx.Context, ownerID *uuid.UUID, req ai.GenerationRequest, files []ai.UploadedPDF) (*GenerationResult, error)
}

type cardGenerationService struct {
	log      *logger.Logger
	agent    *ai.Agent
	strategy ai.ContextStrategy
	cards    StudyCardService
	repo     repos.StudyCardRepo
}

func NewCardGenerationService(
	baseLog *logger.Logger,
	agent *ai.Agent,
	strategy ai.ContextStrategy,
	cardService StudyCardService,
	repo repos.StudyCardRepo,
) CardGenerationService {
	return &cardGenerationService{
		log:      baseLog.With("service", "CardGenerationService"),
		agent:    agent,
		strategy: strategy,
		cards:    cardService,
		repo:     repo,
	}
}

func (s *cardGenerationService) GenerateFromPDFs(dbc dbctx.Context, ownerID *uuid.UUID, req ai.GenerationRequest, files []ai.UploadedPDF) (*GenerationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.log.Info("Preparing study card generation",
		"file_count", len(files),
		"topics", len(req.Topics),
		"target_cards", req.TargetCardCount,
	)

	pdfContext, err := s.strategy.BuildContext(dbc.Ctx, files, s.agent.Client())
	if err != nil {
		return nil, fmt.Errorf("build PDF context: %w", err)
	}
	s.log.Debug("PDF context prepared",
		"documents", len(pdfContext.Documents),
		"extra_parts", len(pdfContext.ExtraParts),
	)

	existingQuestions, err := s.loadExistingQuestions(dbc, req.ExistingCardIDs)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Loaded existing questions", "existing_questions", len(existingQuestions))

	agentResult, err := s.agent.Generate(dbc.Ctx, req, pdfContext.Documents, existingQuestions, pdfContext.ExtraParts)
	if err != nil {
		return nil, err
	}
	s.log.Info("Agent returned result",
		"generated_cards", len(agentResult.Cards),
		"retention_aid", agentResult.RetentionAid != nil,
	)

	generator := s.cardGeneratorMetadata(req, pdfContext.Documents, agentResult)
	creates := make([]types.StudyCardCreate, 0, len(agentResult.Cards)+1)
	for _, card := range agentResult.Cards {
		data, err := s.mapGeneratedCard(card, generator)
		if err != nil {
			return nil, err
		}
		creates = append(creates, types.StudyCardCreate{
			CardType:   card.CardType,
			Difficulty: card.Difficulty,
			Data:       data,
		})
	}

	includeRetentionNote := agentResult.RetentionAid != nil &&
		req.RetentionAidRequested() &&
		(len(req.PreferredCardTypes) == 0 || containsCardType(req.PreferredCardTypes, cards.CardTypeNote))
	if includeRetentionNote {
		note, err := buildRetentionNote(*agentResult.RetentionAid, generator)
		if err != nil {
			return nil, err
		}
		creates = append(creates, note)
	}

	created, err := s.cards.ImportBatch(dbc, ownerID, creates)
	if err != nil {
		return nil, err
	}
	s.log.Info("Persisted generated cards", "created_cards", len(created))

	var retentionAid *ai.RetentionAid
	if req.RetentionAidRequested() {
		retentionAid = agentResult.RetentionAid
	}
	return &GenerationResult{
		Cards:        created,
		RetentionAid: retentionAid,
		Summary:      buildSummary(pdfContext.Documents, agentResult, len(created)),
		RawGeneration: ai.GeneratedCardSet{
			Cards:        agentResult.Cards,
			RetentionAid: agentResult.RetentionAid,
		},
	}, nil
}

// loadExistingQuestions collects the question prompts of previously stored
// cards so the agent can avoid duplicating them. Unparseable rows are
// skipped, never fatal.
func (s *cardGenerationService) loadExistingQuestions(dbc dbctx.Context, cardIDs []uuid.UUID) ([]string, error) {
	if len(cardIDs) == 0 {
		return nil, nil
	}
	rows, err := s.repo.GetMany(dbc, cardIDs)
	if err != nil {
		return nil, fmt.Errorf("load existing cards: %w", err)
	}
	var questions []string
	for _, row := range rows {
		data, err := cards.ParseCardData(types.CardType(row.CardType), row.Data)
		if err != nil {
			s.log.Debug("Skipping unparseable existing card", "card_id", row.ID, "reason", err.Error())
			continue
		}
		if question, ok := data.(cards.QuestionData); ok {
			if prompt := strings.TrimSpace(question.QuestionPrompt()); prompt != "" {
				questions = append(questions, prompt)
			}
		}
	}
	return questions, nil
}

// mapGeneratedCard transforms one raw model card into its typed payload.
// Cards whose typed validation fails degrade to GenericCardData; only notes
// with unusable content are hard failures.
func (s *cardGenerationService) mapGeneratedCard(card ai.GeneratedCard, generator *cards.CardGeneratorMetadata) (cards.CardData, error) {
	payload := card.Payload
	base := cards.QuestionFields{
		Generator: generator,
		Prompt:    payload.Question,
		Rationale: &cards.CardRationale{
			Primary:      payload.Rationale.Primary,
			Alternatives: payload.Rationale.Alternatives,
		},
		Glossary:        payload.Glossary,
		Connections:     payload.Connections,
		References:      payload.References,
		NumericalRanges: payload.NumericalRanges,
	}

	var data cards.CardData
	switch card.CardType {
	case cards.CardTypeMcqSingle:
		options := mapOptions(payload.Options)
		correctIDs := payload.CorrectAnswers
		if len(correctIDs) == 0 && len(options) > 0 {
			correctIDs = []string{options[0].ID}
		}
		data = cards.McqSingleCardData{
			QuestionFields:       base,
			MultipleChoiceFields: cards.MultipleChoiceFields{Options: options, CorrectOptionIDs: correctIDs},
		}

	case cards.CardTypeMcqMulti:
		options := mapOptions(payload.Options)
		correctIDs := payload.CorrectAnswers
		if len(correctIDs) == 0 {
			for _, option := range options {
				correctIDs = append(correctIDs, option.ID)
				if len(correctIDs) == 2 {
					break
				}
			}
		}
		data = cards.McqMultiCardData{
			QuestionFields:       base,
			MultipleChoiceFields: cards.MultipleChoiceFields{Options: options, CorrectOptionIDs: correctIDs},
		}

	case cards.CardTypeWritten:
		var expected *string
		if len(payload.CorrectAnswers) > 0 {
			expected = &payload.CorrectAnswers[0]
		}
		data = cards.WrittenCardData{QuestionFields: base, ExpectedAnswer: expected}

	case cards.CardTypeTrueFalse:
		answer := parseBooleanAnswer(payload.CorrectAnswers)
		if answer == nil {
			value := true
			answer = &value
		}
		data = cards.TrueFalseCardData{QuestionFields: base, CorrectAnswer: *answer}

	case cards.CardTypeCloze:
		data = cards.ClozeCardData{QuestionFields: base, ClozeAnswers: payload.CorrectAnswers}

	case cards.CardTypeEmq:
		var matches []cards.EmqMatch
		for index, answer := range payload.CorrectAnswers {
			optionIndex, err := parseIndex(answer)
			if err != nil {
				continue
			}
			matches = append(matches, cards.EmqMatch{PremiseIndex: index, OptionIndex: optionIndex})
		}
		var instructions *string
		if len(payload.References) > 0 {
			instructions = &payload.References[0]
		}
		optionTexts := make([]string, 0, len(payload.Options))
		for _, option := range payload.Options {
			optionTexts = append(optionTexts, option.Text)
		}
		data = cards.EmqCardData{
			QuestionFields: base,
			Instructions:   instructions,
			Premises:       payload.Connections,
			Options:        optionTexts,
			Matches:        matches,
		}

	case cards.CardTypeNote:
		markdown := strings.TrimSpace(payload.Rationale.Primary)
		if markdown == "" {
			return nil, &ContentValidationError{Message: "Generated note card contained empty markdown content."}
		}
		title := strings.TrimSpace(payload.Glossary["title"])
		if title == "" {
			title = extractHeading(markdown)
		}
		if title == "" {
			title = "Note"
		}
		return cards.NoteCardData{Generator: generator, Title: title, Markdown: markdown}, nil

	default:
		return genericCardData(card, generator), nil
	}

	if err := data.Validate(); err != nil {
		s.log.Debug("Falling back to generic card data",
			"card_type", card.CardType,
			"reason", err.Error(),
		)
		return genericCardData(card, generator), nil
	}
	return data, nil
}

func mapOptions(options []ai.GeneratedOption) []cards.CardOption {
	mapped := make([]cards.CardOption, 0, len(options))
	for _, option := range options {
		mapped = append(mapped, cards.CardOption{ID: option.ID, Text: option.Text})
	}
	return mapped
}

func genericCardData(card ai.GeneratedCard, generator *cards.CardGeneratorMetadata) cards.GenericCardData {
	payload := map[string]any{
		"question": card.Payload.Question,
		"rationale": map[string]any{
			"primary":      card.Payload.Rationale.Primary,
			"alternatives": card.Payload.Rationale.Alternatives,
		},
	}
	if len(card.Payload.Options) > 0 {
		options := make([]map[string]any, 0, len(card.Payload.Options))
		for _, option := range card.Payload.Options {
			options = append(options, map[string]any{"id": option.ID, "text": option.Text})
		}
		payload["options"] = options
	}
	if len(card.Payload.CorrectAnswers) > 0 {
		payload["correct_answers"] = card.Payload.CorrectAnswers
	}
	if len(card.Payload.Connections) > 0 {
		payload["connections"] = card.Payload.Connections
	}
	if len(card.Payload.Glossary) > 0 {
		payload["glossary"] = card.Payload.Glossary
	}
	if len(card.Payload.NumericalRanges) > 0 {
		payload["numerical_ranges"] = card.Payload.NumericalRanges
	}
	if len(card.Payload.References) > 0 {
		payload["references"] = card.Payload.References
	}
	return cards.GenericCardData{Generator: generator, Payload: payload}
}

// parseBooleanAnswer reads the first answer as a boolean token. Returns nil
// when there is no answer or the token is not recognisable.
func parseBooleanAnswer(answers []string) *bool {
	if len(answers) == 0 {
		return nil
	}
	var value bool
	switch strings.ToLower(strings.TrimSpace(answers[0])) {
	case "true", "t", "1", "yes", "y":
		value = true
	case "false", "f", "0", "no", "n":
		value = false
	default:
		return nil
	}
	return &value
}

func parseIndex(value string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(value))
}

func buildRetentionNote(retention ai.RetentionAid, generator *cards.CardGeneratorMetadata) (types.StudyCardCreate, error) {
	markdown := strings.TrimSpace(retention.Markdown)
	if markdown == "" {
		return types.StudyCardCreate{}, &ContentValidationError{Message: "Retention aids must include markdown content."}
	}
	title := extractHeading(markdown)
	if title == "" {
		title = "Retention Aid"
	}
	return types.StudyCardCreate{
		CardType:   cards.CardTypeNote,
		Difficulty: 1,
		Data:       cards.NoteCardData{Generator: generator, Title: title, Markdown: markdown},
	}, nil
}

func buildSummary(documents []*pdf.IngestionResult, meta *ai.AgentResult, cardCount int) GenerationSummary {
	return GenerationSummary{
		CardCount:          cardCount,
		Sources:            documentSources(documents),
		ModelUsed:          meta.ModelUsed,
		TemperatureApplied: meta.TemperatureApplied,
	}
}

func (s *cardGenerationService) cardGeneratorMetadata(req ai.GenerationRequest, documents []*pdf.IngestionResult, meta *ai.AgentResult) *cards.CardGeneratorMetadata {
	preferred := make([]string, 0, len(req.PreferredCardTypes))
	for _, cardType := range req.PreferredCardTypes {
		preferred = append(preferred, string(cardType))
	}
	temperature := meta.TemperatureApplied
	requested := meta.RequestedCardCount
	return &cards.CardGeneratorMetadata{
		Model:              meta.ModelUsed,
		Temperature:        &temperature,
		RequestedCardCount: &requested,
		Topics:             req.Topics,
		ClinicalFocus:      req.ClinicalFocus,
		LearningObjectives: req.LearningObjectives,
		PreferredCardTypes: preferred,
		ExistingCardIDs:    req.ExistingCardIDs,
		Sources:            documentSources(documents),
		SchemaVersion:      cards.CardGeneratorSchemaVersion,
	}
}

func documentSources(documents []*pdf.IngestionResult) []string {
	sources := make([]string, 0, len(documents))
	for index, document := range documents {
		name := document.Filename
		if name == "" {
			name = fmt.Sprintf("uploaded-%d.pdf", index+1)
		}
		sources = append(sources, name)
	}
	return sources
}

// extractHeading derives a title from markdown: the first heading wins, then
// the first non-blank line truncated to 80 runes.
func extractHeading(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "#") {
			return strings.TrimSpace(strings.TrimLeft(stripped, "#"))
		}
		if stripped != "" {
			runes := []rune(stripped)
			if len(runes) > 80 {
				runes = runes[:80]
			}
			return strings.TrimSpace(string(runes))
		}
	}
	return ""
}

func containsCardType(haystack []cards.CardType, needle cards.CardType) bool {
	for _, cardType := range haystack {
		if cardType == needle {
			return true
		}
	}
	return false
}
