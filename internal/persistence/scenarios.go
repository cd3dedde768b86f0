package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ScenarioRow is the stored form of a registry entry. OutputSchema is kept
// as text exactly as the admin saved it.
type ScenarioRow struct {
	Code         string    `json:"code"`
	Title        string    `json:"title"`
	Prompt       string    `json:"prompt"`
	OutputSchema string    `json:"output_schema,omitempty"`
	Enabled      bool      `json:"enabled"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Store) GetScenario(ctx context.Context, code string) (ScenarioRow, error) {
	var r ScenarioRow
	var schema sql.NullString
	var enabled int
	err := s.db.QueryRowContext(ctx, `
		SELECT code, title, prompt, output_schema, enabled, updated_at
		FROM admin_scenarios WHERE code = ?;
	`, code).Scan(&r.Code, &r.Title, &r.Prompt, &schema, &enabled, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ScenarioRow{}, ErrNotFound
		}
		return ScenarioRow{}, fmt.Errorf("get scenario: %w", err)
	}
	r.OutputSchema = schema.String
	r.Enabled = enabled == 1
	return r, nil
}

// ListScenarios returns registry entries ordered by code.
func (s *Store) ListScenarios(ctx context.Context, enabledOnly bool) ([]ScenarioRow, error) {
	q := `SELECT code, title, prompt, output_schema, enabled, updated_at FROM admin_scenarios`
	if enabledOnly {
		q += ` WHERE enabled = 1`
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY code ASC;`)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	var out []ScenarioRow
	for rows.Next() {
		var r ScenarioRow
		var schema sql.NullString
		var enabled int
		if err := rows.Scan(&r.Code, &r.Title, &r.Prompt, &schema, &enabled, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		r.OutputSchema = schema.String
		r.Enabled = enabled == 1
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scenario rows: %w", err)
	}
	return out, nil
}

func (s *Store) UpsertScenario(ctx context.Context, r ScenarioRow) error {
	if r.Code == "" {
		return fmt.Errorf("scenario code is required")
	}
	return retryOnBusy(ctx, busyRetries, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO admin_scenarios (code, title, prompt, output_schema, enabled, updated_at)
			VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(code) DO UPDATE SET
				title = excluded.title,
				prompt = excluded.prompt,
				output_schema = excluded.output_schema,
				enabled = excluded.enabled,
				updated_at = CURRENT_TIMESTAMP;
		`, r.Code, r.Title, r.Prompt, nullString(r.OutputSchema), boolToInt(r.Enabled))
		if err != nil {
			return fmt.Errorf("upsert scenario: %w", err)
		}
		return nil
	})
}

func (s *Store) DeleteScenario(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM admin_scenarios WHERE code = ?;`, code)
	if err != nil {
		return fmt.Errorf("delete scenario: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
