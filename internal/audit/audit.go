// Package audit keeps the generation exchange log: every prompt, raw reply
// and failure marker of a scenario generation.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basket/astrobot/internal/persistence"
	"github.com/basket/astrobot/internal/shared"
)

// Roles recorded in llm_messages.
const (
	RoleSystem        = "system"
	RoleUser          = "user"
	RoleAssistant     = "assistant"
	RoleAssistantRaw  = "assistant_raw"
	RoleAssistantFail = "assistant_fail"
)

// MaxContent bounds stored content, in runes.
const MaxContent = 8000

type Entry struct {
	SessionID int64
	Role      string
	Content   string
	Scenario  string
	SchemaOK  *bool
}

// Appender is satisfied by persistence.Store.
type Appender interface {
	AppendLLMMessage(ctx context.Context, m persistence.LLMMessage) error
}

type line struct {
	Timestamp string `json:"timestamp"`
	TraceID   string `json:"trace_id"`
	SessionID int64  `json:"session_id"`
	Scenario  string `json:"scenario"`
	Role      string `json:"role"`
	SchemaOK  *bool  `json:"schema_ok,omitempty"`
	Content   string `json:"content"`
}

// Trail writes audit entries to llm_messages and mirrors them to
// <home>/logs/llm_audit.jsonl. Write failures are logged and counted, never
// returned: the audit must not break a user turn.
type Trail struct {
	mu       sync.Mutex
	file     *os.File
	store    Appender
	logger   *slog.Logger
	failures atomic.Int64
}

// Open creates a trail. An empty homeDir disables the JSONL mirror.
func Open(homeDir string, store Appender, logger *slog.Logger) (*Trail, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Trail{store: store, logger: logger.With("component", "audit")}
	if homeDir == "" {
		return t, nil
	}
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, "llm_audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	t.file = f
	return t, nil
}

func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

// Failures returns the number of entries that could not be stored.
func (t *Trail) Failures() int64 {
	return t.failures.Load()
}

func (t *Trail) Record(ctx context.Context, e Entry) {
	if t == nil {
		return
	}
	content := Clip(shared.Redact(e.Content))
	traceID := shared.TraceID(ctx)

	if t.store != nil {
		err := t.store.AppendLLMMessage(ctx, persistence.LLMMessage{
			SessionID: e.SessionID,
			Role:      e.Role,
			Content:   content,
			Scenario:  e.Scenario,
			SchemaOK:  e.SchemaOK,
			TraceID:   traceID,
		})
		if err != nil {
			t.failures.Add(1)
			t.logger.Warn("audit store write failed", "session_id", e.SessionID, "role", e.Role, "error", err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return
	}
	b, err := json.Marshal(line{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		TraceID:   traceID,
		SessionID: e.SessionID,
		Scenario:  e.Scenario,
		Role:      e.Role,
		SchemaOK:  e.SchemaOK,
		Content:   content,
	})
	if err != nil {
		return
	}
	if _, err := t.file.Write(append(b, '\n')); err != nil {
		t.failures.Add(1)
	}
}

// Clip keeps the first MaxContent runes and notes how many were dropped.
func Clip(s string) string {
	r := []rune(s)
	if len(r) <= MaxContent {
		return s
	}
	return string(r[:MaxContent]) + fmt.Sprintf("\n[clipped %d chars]", len(r)-MaxContent)
}
