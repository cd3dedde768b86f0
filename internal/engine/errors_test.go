package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil", nil, ErrorClassUnknown},
		{"401", errors.New("status 401: unauthorized"), ErrorClassAuth},
		{"invalid api key", errors.New("Invalid API key provided"), ErrorClassAuth},
		{"429", errors.New("429 Too Many Requests"), ErrorClassRateLimit},
		{"quota", errors.New("quota exceeded for project"), ErrorClassRateLimit},
		{"deadline", fmt.Errorf("genkit generate: %w", context.DeadlineExceeded), ErrorClassTimeout},
		{"timed out", errors.New("request timed out"), ErrorClassTimeout},
		{"500", errors.New("500 internal server error"), ErrorClassServer},
		{"overloaded", errors.New("model is overloaded, try later"), ErrorClassServer},
		{"unknown", errors.New("something went wrong"), ErrorClassUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.expected {
				t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(errors.New("503 service unavailable")) {
		t.Fatal("5xx should be transient")
	}
	if IsTransient(errors.New("403 forbidden")) {
		t.Fatal("auth failures are not transient")
	}
	if IsTransient(errors.New("bad request body")) {
		t.Fatal("unknown failures are not transient")
	}
}
