package ai

import "github.com/zistudy/zistudy-backend/internal/domain/cards"

// cardSetSchema describes GeneratedCardSet as a JSON schema with local
// definitions. The generative client inlines the references before dispatch;
// the agent also embeds the rendered schema in the prompt text.
func cardSetSchema() map[string]any {
	cardTypeValues := []any{}
	for _, cardType := range cards.AllCardTypes() {
		cardTypeValues = append(cardTypeValues, string(cardType))
	}
	return map[string]any{
		"type":     "object",
		"required": []any{"cards"},
		"properties": map[string]any{
			"cards": map[string]any{
				"type":  "array",
				"items": map[string]any{"$ref": "#/$defs/GeneratedCard"},
			},
			"retention_aid": map[string]any{"$ref": "#/$defs/RetentionAid"},
		},
		"$defs": map[string]any{
			"GeneratedCard": map[string]any{
				"type":     "object",
				"required": []any{"card_type", "difficulty", "payload"},
				"properties": map[string]any{
					"card_type":  map[string]any{"type": "string", "enum": cardTypeValues},
					"difficulty": map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
					"payload":    map[string]any{"$ref": "#/$defs/GeneratedPayload"},
				},
			},
			"GeneratedPayload": map[string]any{
				"type":     "object",
				"required": []any{"question", "rationale"},
				"properties": map[string]any{
					"question": map[string]any{
						"type":        "string",
						"description": "Full exam-style stem or prompt.",
					},
					"options": map[string]any{
						"type":  "array",
						"items": map[string]any{"$ref": "#/$defs/GeneratedOption"},
					},
					"correct_answers": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Identifiers or textual answers considered correct.",
					},
					"rationale": map[string]any{"$ref": "#/$defs/GeneratedRationale"},
					"connections": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Cross-links to related concepts or clinical pearls.",
					},
					"glossary": map[string]any{
						"type":                 "object",
						"additionalProperties": map[string]any{"type": "string"},
						"description":          "Definitions for uncommon terminology mentioned in the card.",
					},
					"numerical_ranges": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
					"references": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
			},
			"GeneratedOption": map[string]any{
				"type":     "object",
				"required": []any{"id", "text"},
				"properties": map[string]any{
					"id":   map[string]any{"type": "string", "description": "Stable identifier for the option (e.g. letter)."},
					"text": map[string]any{"type": "string"},
				},
			},
			"GeneratedRationale": map[string]any{
				"type":     "object",
				"required": []any{"primary"},
				"properties": map[string]any{
					"primary": map[string]any{"type": "string", "description": "Primary explanation for the correct answer."},
					"alternatives": map[string]any{
						"type":                 "object",
						"additionalProperties": map[string]any{"type": "string"},
						"description":          "Explanation keyed by option id for why alternatives are incorrect.",
					},
				},
			},
			"RetentionAid": map[string]any{
				"type":     "object",
				"required": []any{"markdown"},
				"properties": map[string]any{
					"markdown": map[string]any{"type": "string", "description": "Markdown-formatted retention summary."},
				},
			},
		},
	}
}
