package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/basket/astrobot/internal/jsonval"
)

// Validator validates generated payloads against a scenario's JSON Schema.
type Validator struct {
	schema     *jsonschema.Schema
	schemaJSON string
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(schemaJSON string) (*Validator, error) {
	// Use jsonschema.UnmarshalJSON for correct number handling (json.Number).
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema JSON: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema, schemaJSON: schemaJSON}, nil
}

// CoerceSchema compiles a schema as stored: empty, JSON text, or JSON text
// encoded once more as a JSON string. It returns nil when there is no
// schema; a schema that does not compile is reported with a nil validator.
func CoerceSchema(stored string) (*Validator, error) {
	doc := jsonval.NormalizeObject(stored)
	if len(doc) == 0 {
		if s := strings.TrimSpace(stored); s != "" && s != "{}" && s != "null" {
			return nil, fmt.Errorf("schema is not a JSON object")
		}
		return nil, nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encode schema: %w", err)
	}
	return CompileSchema(string(b))
}

// SchemaJSON returns the compact schema text used in repair instructions.
func (v *Validator) SchemaJSON() string {
	return v.schemaJSON
}

// Validate checks JSON text against the schema.
func (v *Validator) Validate(jsonText string) error {
	// Use jsonschema.UnmarshalJSON for correct number handling (json.Number
	// instead of float64), which is required by the validator.
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(jsonText))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := v.schema.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ParseResponse decodes a model reply into an object. A reply that is not
// bare JSON is searched for a fenced block or a balanced object. It returns
// the object and the JSON text it was decoded from.
func ParseResponse(raw string) (map[string]any, string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, "", fmt.Errorf("empty response")
	}
	if m, err := jsonval.Decode(trimmed); err == nil {
		return m, trimmed, nil
	}
	candidate := extractJSON(raw)
	if candidate == "" {
		return nil, "", fmt.Errorf("response does not contain valid JSON")
	}
	m, err := jsonval.Decode(candidate)
	if err != nil {
		return nil, "", err
	}
	return m, candidate, nil
}

// extractJSON finds a JSON object or array in the response text.
func extractJSON(text string) string {
	// 1. Try fenced JSON block: ```json\n...\n```
	if idx := strings.Index(text, "```json"); idx >= 0 {
		start := idx + 7
		// Skip optional newline after ```json
		if start < len(text) && text[start] == '\n' {
			start++
		}
		if end := strings.Index(text[start:], "```"); end >= 0 {
			candidate := strings.TrimSpace(text[start : start+end])
			if candidate != "" {
				return candidate
			}
		}
	}

	// 2. Try generic fenced block: ```\n...\n```
	if idx := strings.Index(text, "```\n"); idx >= 0 {
		start := idx + 4
		if end := strings.Index(text[start:], "```"); end >= 0 {
			candidate := strings.TrimSpace(text[start : start+end])
			if isJSON(candidate) {
				return candidate
			}
		}
	}

	// 3. Try raw JSON: find first { or [ and match closing
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			candidate := extractBalanced(text[i:])
			if candidate != "" && isJSON(candidate) {
				return candidate
			}
		}
	}

	return ""
}

// isJSON checks if a string is valid JSON.
func isJSON(s string) bool {
	var v any
	return json.Unmarshal([]byte(s), &v) == nil
}

// extractBalanced extracts a balanced JSON structure from the start of the string.
func extractBalanced(s string) string {
	if len(s) == 0 {
		return ""
	}

	open := s[0]
	var close byte
	switch open {
	case '{':
		close = '}'
	case '[':
		close = ']'
	default:
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if escaped {
			escaped = false
			continue
		}

		if ch == '\\' && inString {
			escaped = true
			continue
		}

		if ch == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		if ch == open {
			depth++
		} else if ch == close {
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}

	return ""
}
