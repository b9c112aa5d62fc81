package gemini

import (
	"errors"
	"strings"
	"testing"
)

func containsKey(node any, key string) bool {
	switch typed := node.(type) {
	case map[string]any:
		for k, v := range typed {
			if k == key || containsKey(v, key) {
				return true
			}
		}
	case []any:
		for _, v := range typed {
			if containsKey(v, key) {
				return true
			}
		}
	}
	return false
}

func TestResolveSchemaInlinesRefs(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cards": map[string]any{
				"type":  "array",
				"items": map[string]any{"$ref": "#/$defs/Card"},
			},
		},
		"$defs": map[string]any{
			"Card": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"payload": map[string]any{"$ref": "#/$defs/Payload"},
				},
			},
			"Payload": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{"type": "string"},
				},
			},
		},
	}

	resolved, err := ResolveSchema(schema)
	if err != nil {
		t.Fatalf("ResolveSchema: %v", err)
	}
	if containsKey(resolved, "$ref") || containsKey(resolved, "$defs") {
		t.Fatalf("resolved schema still contains references: %v", resolved)
	}

	items := resolved["properties"].(map[string]any)["cards"].(map[string]any)["items"].(map[string]any)
	payload := items["properties"].(map[string]any)["payload"].(map[string]any)
	question := payload["properties"].(map[string]any)["question"].(map[string]any)
	if question["type"] != "string" {
		t.Fatalf("nested definition not inlined: %v", payload)
	}
}

func TestResolveSchemaDoesNotMutateInput(t *testing.T) {
	schema := map[string]any{
		"type":  "array",
		"items": map[string]any{"$ref": "#/$defs/Item"},
		"$defs": map[string]any{
			"Item": map[string]any{"type": "string"},
		},
	}
	if _, err := ResolveSchema(schema); err != nil {
		t.Fatalf("ResolveSchema: %v", err)
	}
	if _, ok := schema["$defs"]; !ok {
		t.Fatal("input schema lost its $defs block")
	}
	if ref := schema["items"].(map[string]any)["$ref"]; ref != "#/$defs/Item" {
		t.Fatalf("input schema mutated: %v", ref)
	}
}

func TestResolveSchemaUnknownRef(t *testing.T) {
	schema := map[string]any{
		"items": map[string]any{"$ref": "#/$defs/Missing"},
		"$defs": map[string]any{},
	}
	_, err := ResolveSchema(schema)
	if err == nil {
		t.Fatal("expected error for unknown definition")
	}
	if !strings.Contains(err.Error(), "Missing") {
		t.Fatalf("error = %v", err)
	}
}

func TestResolveSchemaCycle(t *testing.T) {
	schema := map[string]any{
		"items": map[string]any{"$ref": "#/$defs/A"},
		"$defs": map[string]any{
			"A": map[string]any{"items": map[string]any{"$ref": "#/$defs/B"}},
			"B": map[string]any{"items": map[string]any{"$ref": "#/$defs/A"}},
		},
	}
	_, err := ResolveSchema(schema)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("error = %v", err)
	}
}

func TestResolveSchemaRejectsExternalRef(t *testing.T) {
	schema := map[string]any{
		"items": map[string]any{"$ref": "https://example.com/schema.json"},
	}
	if _, err := ResolveSchema(schema); err == nil {
		t.Fatal("expected error for non-local reference")
	}
}

func TestResolveSchemaRejectsNonStringRef(t *testing.T) {
	schema := map[string]any{
		"items": map[string]any{"$ref": 42},
		"$defs": map[string]any{},
	}
	_, err := ResolveSchema(schema)
	if err == nil {
		t.Fatal("expected error for non-string $ref")
	}
	if !strings.Contains(err.Error(), "must be a string") {
		t.Fatalf("error = %v", err)
	}
}

func TestResolveSchemaFailuresAreClientErrors(t *testing.T) {
	cases := []struct {
		name   string
		schema map[string]any
	}{
		{"non-string ref", map[string]any{"items": map[string]any{"$ref": 42}}},
		{"unknown def", map[string]any{"items": map[string]any{"$ref": "#/$defs/Missing"}, "$defs": map[string]any{}}},
		{"external ref", map[string]any{"items": map[string]any{"$ref": "https://example.com/s.json"}}},
		{"cycle", map[string]any{
			"items": map[string]any{"$ref": "#/$defs/A"},
			"$defs": map[string]any{"A": map[string]any{"items": map[string]any{"$ref": "#/$defs/A"}}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ResolveSchema(tc.schema)
			if err == nil {
				t.Fatal("expected resolution failure")
			}
			var ce *ClientError
			if !errors.As(err, &ce) {
				t.Fatalf("error type %T, want *ClientError", err)
			}
		})
	}
}
