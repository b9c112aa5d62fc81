package gemini

import (
	"fmt"
	"strings"
)

// ResolveSchema returns a copy of the JSON schema with every local
// "#/$defs/<name>" reference replaced by the referenced definition and the
// top-level $defs block removed. The API only accepts fully inlined schemas.
// A reference cycle is reported as an error rather than expanded forever.
// All failures are *ClientError so callers treat a bad schema like any other
// unusable client exchange.
func ResolveSchema(schema map[string]any) (map[string]any, error) {
	defsRaw, _ := schema["$defs"].(map[string]any)
	resolved, err := resolveNode(schema, defsRaw, nil)
	if err != nil {
		return nil, err
	}
	out, ok := resolved.(map[string]any)
	if !ok {
		return nil, &ClientError{Message: "schema root must be an object"}
	}
	delete(out, "$defs")
	return out, nil
}

func resolveNode(node any, defs map[string]any, trail []string) (any, error) {
	switch typed := node.(type) {
	case map[string]any:
		if rawRef, ok := typed["$ref"]; ok {
			ref, ok := rawRef.(string)
			if !ok {
				return nil, &ClientError{Message: fmt.Sprintf("schema $ref must be a string, got %T", rawRef)}
			}
			name, err := refName(ref)
			if err != nil {
				return nil, err
			}
			for _, seen := range trail {
				if seen == name {
					return nil, &ClientError{Message: fmt.Sprintf("schema contains a reference cycle through %q", name)}
				}
			}
			target, ok := defs[name]
			if !ok {
				return nil, &ClientError{Message: fmt.Sprintf("schema references unknown definition %q", name)}
			}
			return resolveNode(target, defs, append(trail, name))
		}
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			if key == "$defs" {
				continue
			}
			resolved, err := resolveNode(value, defs, trail)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(typed))
		for _, value := range typed {
			resolved, err := resolveNode(value, defs, trail)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved)
		}
		return out, nil
	default:
		return node, nil
	}
}

func refName(ref string) (string, error) {
	const prefix = "#/$defs/"
	if !strings.HasPrefix(ref, prefix) {
		return "", &ClientError{Message: fmt.Sprintf("unsupported schema reference %q", ref)}
	}
	name := strings.TrimPrefix(ref, prefix)
	if name == "" || strings.Contains(name, "/") {
		return "", &ClientError{Message: fmt.Sprintf("unsupported schema reference %q", ref)}
	}
	return name, nil
}
