package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zistudy/zistudy-backend/internal/ai/pdf"
	"github.com/zistudy/zistudy-backend/internal/platform/gemini"
	"github.com/zistudy/zistudy-backend/internal/platform/logger"
)

// Agent orchestrates one end-to-end generation run: prompt assembly, client
// dispatch, response validation, and bounded retry with incremental feedback.
type Agent struct {
	log    *logger.Logger
	client gemini.Client
	config AgentConfiguration
}

func NewAgent(baseLog *logger.Logger, client gemini.Client, config AgentConfiguration) *Agent {
	return &Agent{
		log:    baseLog.With("agent", "StudyCardGeneration"),
		client: client,
		config: config,
	}
}

// Client exposes the underlying generative client for collaborators that
// share it, such as the native context strategy.
func (a *Agent) Client() gemini.Client { return a.client }

// loopState carries the mutable accumulation across retry attempts. Keeping
// the transitions on an explicit struct keeps the state machine testable.
type loopState struct {
	accepted         []GeneratedCard
	contextSummaries []string
	retentionAid     *RetentionAid
	feedback         string
	lastErr          error
	attempt          int
}

// Generate drives the bounded retry loop. Attempts that fail with a client
// or validation error become feedback for the next attempt; only exhaustion
// propagates, re-raising the last concrete error when one exists.
func (a *Agent) Generate(
	ctx context.Context,
	req GenerationRequest,
	documents []*pdf.IngestionResult,
	existingQuestions []string,
	extraParts []gemini.Part,
) (*AgentResult, error) {
	target := req.TargetCardCount
	if target <= 0 {
		target = a.config.DefaultCardCount
	}
	if target > a.config.MaxCardCount {
		target = a.config.MaxCardCount
	}
	temperature := a.config.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	model := req.Model
	if model == "" {
		model = a.config.DefaultModel
	}

	schemaJSON, err := json.MarshalIndent(cardSetSchema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render card set schema: %w", err)
	}

	state := &loopState{}
	for _, question := range existingQuestions {
		if trimmed := strings.TrimSpace(question); trimmed != "" {
			state.contextSummaries = append(state.contextSummaries, "- Existing question: "+trimmed)
		}
	}

	a.log.Info("Dispatching generation",
		"requested_cards", target,
		"documents", len(documents),
		"existing_context", len(existingQuestions),
		"model", model,
		"temperature", temperature,
	)

	for state.attempt = 1; state.attempt <= a.config.MaxAttempts; state.attempt++ {
		remaining := target - len(state.accepted)
		if remaining <= 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		instructions := a.renderInstructions(req, remaining, state.feedback)
		schemaInstruction := fmt.Sprintf(
			"%s\n\nReturn a JSON document that matches the following schema:\n```json\n%s\n```",
			instructions, schemaJSON,
		)
		parts := []gemini.Part{gemini.TextPart{Text: schemaInstruction}}
		parts = append(parts, renderDocumentParts(documents)...)
		if len(state.contextSummaries) > 0 {
			parts = append(parts, gemini.TextPart{Text: renderExistingCardsSection(state.contextSummaries)})
		}
		parts = append(parts, extraParts...)

		a.log.Debug("Invoking generate",
			"attempt", state.attempt,
			"remaining", remaining,
			"feedback_supplied", state.feedback != "",
			"extra_parts", len(extraParts),
		)

		temp := temperature
		topP := 0.9
		topK := 32
		candidates := 1
		maxTokens := 6000
		payload, err := a.client.GenerateJSON(ctx, gemini.GenerateJSONInput{
			SystemInstruction: systemPrompt,
			Messages: []gemini.Message{{
				Role:  "user",
				Parts: parts,
			}},
			ResponseSchema: cardSetSchema(),
			Config: &gemini.GenerationConfig{
				Temperature:     &temp,
				TopP:            &topP,
				TopK:            &topK,
				CandidateCount:  &candidates,
				MaxOutputTokens: &maxTokens,
			},
			Model: model,
		})
		var parsed *GeneratedCardSet
		if err == nil {
			parsed, err = ParseGeneratedCardSet(payload)
		}
		if err != nil {
			if !recoverable(err) {
				return nil, err
			}
			state.lastErr = err
			state.feedback = fmt.Sprintf(
				"The previous response could not be processed. Error: %v. Please return valid JSON that matches the schema and contains new questions.",
				err,
			)
			a.log.Warn("Response invalid",
				"attempt", state.attempt,
				"reason", err.Error(),
				"remaining", remaining,
			)
			continue
		}

		batch := make([]GeneratedCard, 0, len(parsed.Cards))
		for _, card := range parsed.Cards {
			batch = append(batch, card)
			if card.CardType.IsQuestion() {
				if question := strings.TrimSpace(card.Payload.Question); question != "" {
					state.contextSummaries = append(state.contextSummaries, formatCardSummary(card, question))
				}
			}
		}

		if len(batch) == 0 {
			a.log.Debug("No distinct cards returned", "attempt", state.attempt)
			state.feedback = "No new distinct cards were produced. Provide entirely new questions that are not duplicates of the context."
			continue
		}

		state.accepted = append(state.accepted, batch...)
		a.log.Debug("Accepted new cards",
			"attempt", state.attempt,
			"batch_size", len(batch),
			"total_generated", len(state.accepted),
		)
		if req.RetentionAidRequested() && parsed.RetentionAid != nil && state.retentionAid == nil {
			state.retentionAid = parsed.RetentionAid
		}
		remaining = target - len(state.accepted)
		if remaining <= 0 {
			break
		}
		state.feedback = fmt.Sprintf(
			"Received %d new card(s). %d additional distinct card(s) are still required.",
			len(batch), remaining,
		)
	}

	if len(state.accepted) < target {
		if state.lastErr != nil {
			a.log.Error("Generation fell short of target",
				"received", len(state.accepted),
				"requested", target,
				"error", state.lastErr.Error(),
			)
			return nil, state.lastErr
		}
		return nil, ErrExhausted
	}

	accepted := state.accepted
	if len(accepted) > target {
		accepted = accepted[:target]
	}
	a.log.Info("Generation completed",
		"produced", len(accepted),
		"retention_aid", state.retentionAid != nil,
		"model", model,
	)
	return &AgentResult{
		Cards:              accepted,
		RetentionAid:       state.retentionAid,
		ModelUsed:          model,
		TemperatureApplied: temperature,
		RequestedCardCount: target,
	}, nil
}

// recoverable reports whether an attempt failure should become feedback for
// the next attempt instead of aborting the run.
func recoverable(err error) bool {
	var clientErr *gemini.ClientError
	if errors.As(err, &clientErr) {
		return true
	}
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

func (a *Agent) renderInstructions(req GenerationRequest, remaining int, feedback string) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Generate %d additional exam-ready study cards.", remaining))
	lines = append(lines, fmt.Sprintf("Difficulty profile: %s.", req.EffectiveDifficultyProfile()))
	if len(req.PreferredCardTypes) > 0 {
		joined := make([]string, 0, len(req.PreferredCardTypes))
		for _, cardType := range req.PreferredCardTypes {
			joined = append(joined, string(cardType))
		}
		lines = append(lines, fmt.Sprintf("Allowed card types: %s.", strings.Join(joined, ", ")))
	}
	if len(req.Topics) > 0 {
		lines = append(lines, "Topics of emphasis:")
		for _, topic := range req.Topics {
			lines = append(lines, "- "+topic)
		}
	}
	if len(req.ClinicalFocus) > 0 {
		lines = append(lines, "Clinical focus areas:")
		for _, focus := range req.ClinicalFocus {
			lines = append(lines, "- "+focus)
		}
	}
	if len(req.LearningObjectives) > 0 {
		lines = append(lines, "Learning objectives:")
		for _, objective := range req.LearningObjectives {
			lines = append(lines, "- "+objective)
		}
	}
	if req.LearnerLevel != "" {
		lines = append(lines, fmt.Sprintf("Learner level: %s. Adapt nuance accordingly.", req.LearnerLevel))
	}
	if strings.TrimSpace(req.ContextHints) != "" {
		lines = append(lines, "Additional priorities:")
		lines = append(lines, strings.TrimSpace(req.ContextHints))
	}
	lines = append(lines, "Ensure retention aids use expressive markdown with headings and emphasised cues.")
	lines = append(lines, "Return only JSON matching the enforced schema.")
	lines = append(lines, "Avoid duplicating any questions already shared in the context.")
	if feedback != "" {
		lines = append(lines, "Previous feedback: "+feedback)
	}
	return strings.Join(lines, "\n")
}

// renderDocumentParts folds each ingested document into one page-tagged text
// block plus one inline part per extracted image.
func renderDocumentParts(documents []*pdf.IngestionResult) []gemini.Part {
	var parts []gemini.Part
	for _, document := range documents {
		if len(document.TextSegments) > 0 {
			name := document.Filename
			if name == "" {
				name = "uploaded.pdf"
			}
			buffer := []string{fmt.Sprintf("# Source document: %s (pages=%d)", name, document.PageCount)}
			for _, segment := range document.TextSegments {
				buffer = append(buffer, fmt.Sprintf("[page %d] %s", segment.PageIndex, segment.Content))
			}
			parts = append(parts, gemini.TextPart{Text: strings.Join(buffer, "\n")})
		}
		for _, image := range document.Images {
			parts = append(parts, gemini.InlineDataPart{
				MimeType: image.MimeType,
				Data:     image.DataBase64,
			})
		}
	}
	return parts
}

func renderExistingCardsSection(summaries []string) string {
	buffer := append([]string{"Existing cards to avoid repeating:"}, summaries...)
	return strings.Join(buffer, "\n")
}

// formatCardSummary builds the dedup line fed back into later attempts.
func formatCardSummary(card GeneratedCard, question string) string {
	return fmt.Sprintf("- %s | difficulty %d | %s", card.CardType, card.Difficulty, strings.TrimSpace(question))
}
