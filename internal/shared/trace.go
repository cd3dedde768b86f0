package shared

import (
	"context"

	"github.com/google/uuid"
)

type traceKey struct{}
type sessionIDKey struct{}
type scenarioKey struct{}
type userIDKey struct{}

// WithTraceID attaches a trace_id to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID extracts trace_id from context. Returns "-" if absent.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok && v != "" {
		return v
	}
	return "-"
}

// NewTraceID generates a new trace_id.
func NewTraceID() string {
	return uuid.NewString()
}

// EnsureTraceID attaches a fresh trace_id unless one is present.
func EnsureTraceID(ctx context.Context) context.Context {
	if TraceID(ctx) != "-" {
		return ctx
	}
	return WithTraceID(ctx, NewTraceID())
}

func WithSessionID(ctx context.Context, sessionID int64) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// SessionID extracts session_id from context. Returns 0 if absent.
func SessionID(ctx context.Context) int64 {
	if v, ok := ctx.Value(sessionIDKey{}).(int64); ok {
		return v
	}
	return 0
}

func WithScenario(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, scenarioKey{}, code)
}

func Scenario(ctx context.Context) string {
	if v, ok := ctx.Value(scenarioKey{}).(string); ok {
		return v
	}
	return ""
}

// WithUserTGID attaches the chat-platform user id.
func WithUserTGID(ctx context.Context, tgID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, tgID)
}

func UserTGID(ctx context.Context) int64 {
	if v, ok := ctx.Value(userIDKey{}).(int64); ok {
		return v
	}
	return 0
}
