// Package scenario holds the registry of generation topics and the fixed
// mapping from scenario code to storage shape.
package scenario

import (
	"context"
	"errors"
)

// ErrScenarioUnavailable means the code is unknown or disabled. It is a
// configuration problem, never a generation failure.
var ErrScenarioUnavailable = errors.New("scenario unavailable")

// Scenario is one admin-configured generation topic. The prompt template is
// used verbatim; OutputSchema is the schema as stored and may be empty,
// JSON text, or doubly encoded JSON text.
type Scenario struct {
	Code           string `json:"code" yaml:"code"`
	Title          string `json:"title" yaml:"title"`
	PromptTemplate string `json:"prompt" yaml:"prompt"`
	OutputSchema   string `json:"output_schema,omitempty" yaml:"output_schema"`
	Enabled        bool   `json:"enabled" yaml:"enabled"`
}

// Entry is the menu view of an enabled scenario.
type Entry struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// Registry is the read side consumed by generation.
type Registry interface {
	Get(ctx context.Context, code string) (Scenario, error)
	ListEnabled(ctx context.Context) ([]Entry, error)
}
