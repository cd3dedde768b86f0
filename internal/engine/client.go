package engine

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by a client that has no credentials.
var ErrNotConfigured = errors.New("generation client not configured")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Client completes a conversation with a single text reply. When
// Configured is false the generator substitutes a deterministic mock.
type Client interface {
	Complete(ctx context.Context, msgs []Message) (string, error)
	Configured() bool
}
