package shared

import (
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bearer", "Bearer abc123def456ghi789jkl0", "Bearer [REDACTED]"},
		{"api key keeps prefix", "api_key=abcdef1234567890abcdef", "api_key[REDACTED]"},
		{"openai key", "key sk-abcdefghijklmnopqrstuvwx", "key [REDACTED]"},
		{"telegram token", "token 123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsawq", "token [REDACTED]"},
		{"plain", "nothing to hide", "nothing to hide"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Redact(tc.input); got != tc.want {
				t.Fatalf("Redact(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestRedact_GeminiKey(t *testing.T) {
	input := "key is AIzaSyA1234567890abcdefghijklmnopqrstuvwx"
	if got := Redact(input); strings.Contains(got, "AIza") {
		t.Fatalf("expected redaction, got %q", got)
	}
}

func TestRedactEnvValue(t *testing.T) {
	if RedactEnvValue("TELEGRAM_TOKEN", "x") != redactedPlaceholder {
		t.Fatal("expected token env to be redacted")
	}
	if RedactEnvValue("LLM_MODEL", "gpt") != "gpt" {
		t.Fatal("expected model env to pass through")
	}
}
