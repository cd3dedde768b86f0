package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LLMMessage is one audit row of a generation exchange.
type LLMMessage struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Scenario  string    `json:"scenario"`
	SchemaOK  *bool     `json:"schema_ok,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) AppendLLMMessage(ctx context.Context, m LLMMessage) error {
	var schemaOK sql.NullInt64
	if m.SchemaOK != nil {
		schemaOK = sql.NullInt64{Int64: int64(boolToInt(*m.SchemaOK)), Valid: true}
	}
	return retryOnBusy(ctx, busyRetries, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO llm_messages (session_id, role, content, scenario, schema_ok, trace_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
		`, m.SessionID, m.Role, m.Content, m.Scenario, schemaOK, m.TraceID)
		if err != nil {
			return fmt.Errorf("insert llm message: %w", err)
		}
		return nil
	})
}

// ListLLMMessages returns the newest audit rows of a session, oldest first.
func (s *Store) ListLLMMessages(ctx context.Context, sessionID int64, limit int) ([]LLMMessage, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, scenario, schema_ok, trace_id, created_at FROM (
			SELECT * FROM llm_messages WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC;
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list llm messages: %w", err)
	}
	defer rows.Close()

	var out []LLMMessage
	for rows.Next() {
		var m LLMMessage
		var schemaOK sql.NullInt64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Scenario, &schemaOK, &m.TraceID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan llm message: %w", err)
		}
		if schemaOK.Valid {
			ok := schemaOK.Int64 == 1
			m.SchemaOK = &ok
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("llm message rows: %w", err)
	}
	return out, nil
}
