// Package jsonval normalizes JSON values that may have been stored as text,
// as text holding serialized JSON, or as structured values.
package jsonval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// maxUnwrap bounds how many string layers Normalize peels off.
const maxUnwrap = 2

// Normalize turns a stored JSON value into a structured one.
//
// Accepted inputs are maps, slices, JSON text (string, []byte or
// json.RawMessage), JSON text that itself encodes a JSON string holding
// serialized JSON, and nil. The result is a map[string]any or []any. Anything
// that does not decode to one of those yields an empty object.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return t
	case []any:
		return t
	case json.RawMessage:
		return normalizeText(string(t))
	case []byte:
		return normalizeText(string(t))
	case string:
		return normalizeText(t)
	default:
		// Typed Go values: round-trip through encoding/json.
		b, err := json.Marshal(t)
		if err != nil {
			return map[string]any{}
		}
		return normalizeText(string(b))
	}
}

// NormalizeObject is Normalize restricted to objects.
func NormalizeObject(v any) map[string]any {
	if m, ok := Normalize(v).(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func normalizeText(s string) any {
	cur := strings.TrimSpace(s)
	for i := 0; i <= maxUnwrap; i++ {
		if cur == "" {
			return map[string]any{}
		}
		var out any
		if err := json.Unmarshal([]byte(cur), &out); err != nil {
			return map[string]any{}
		}
		switch t := out.(type) {
		case map[string]any:
			return t
		case []any:
			return t
		case string:
			cur = strings.TrimSpace(t)
		default:
			return map[string]any{}
		}
	}
	return map[string]any{}
}

// Decode parses a model response as a JSON object. Unlike Normalize it
// reports failure instead of substituting an empty object.
func Decode(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(raw))))
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode json: trailing data after value")
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode json: expected object, got %T", out)
	}
	return m, nil
}

// Canonical renders any content as compact JSON text with sorted keys.
// Structured input is marshaled, JSON text is re-encoded after unwrapping,
// and plain text or other scalars are wrapped as {"text": ...}.
func Canonical(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "{}", nil
	case map[string]any, []any:
		return marshal(t)
	case json.RawMessage:
		return canonicalText(string(t))
	case []byte:
		return canonicalText(string(t))
	case string:
		return canonicalText(t)
	case bool, float64, float32, int, int64, int32:
		return marshal(map[string]any{"text": fmt.Sprint(t)})
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", fmt.Errorf("canonical json: %w", err)
		}
		return canonicalText(string(b))
	}
}

func canonicalText(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "{}", nil
	}
	if looksStructured(trimmed) {
		switch n := Normalize(trimmed).(type) {
		case map[string]any:
			if len(n) > 0 || trimmed == "{}" {
				return marshal(n)
			}
		case []any:
			return marshal(n)
		}
	}
	return marshal(map[string]any{"text": s})
}

// looksStructured reports whether s plausibly holds an object or array,
// possibly behind one layer of string encoding.
func looksStructured(s string) bool {
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return true
	}
	if strings.HasPrefix(s, `"`) {
		var inner string
		if json.Unmarshal([]byte(s), &inner) == nil {
			inner = strings.TrimSpace(inner)
			return strings.HasPrefix(inner, "{") || strings.HasPrefix(inner, "[") || strings.HasPrefix(inner, `"`)
		}
	}
	return false
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical json: %w", err)
	}
	return string(b), nil
}

// Text returns the display text of a stored value: the "text" field, then a
// field named after the scenario code, then the value itself when it is not
// a JSON object.
func Text(v any, code string) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		trimmed := strings.TrimSpace(t)
		if !looksStructured(trimmed) {
			return t
		}
		m, ok := Normalize(trimmed).(map[string]any)
		if !ok || len(m) == 0 {
			return t
		}
		return textField(m, code)
	case map[string]any:
		return textField(t, code)
	default:
		return Text(fmt.Sprint(t), code)
	}
}

func textField(m map[string]any, code string) string {
	for _, key := range []string{"text", code} {
		if key == "" {
			continue
		}
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Items returns the string list held by a value shaped as {"items": [...]}
// or as a bare list. Non-string entries are rendered with fmt.
func Items(v any) []string {
	var list []any
	switch n := Normalize(v).(type) {
	case map[string]any:
		list, _ = n["items"].([]any)
	case []any:
		list = n
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		switch s := item.(type) {
		case string:
			out = append(out, s)
		case nil:
		default:
			out = append(out, fmt.Sprint(s))
		}
	}
	return out
}
