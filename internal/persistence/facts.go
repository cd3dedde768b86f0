package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/basket/astrobot/internal/jsonval"
)

// Fact columns of the canonical projection. Everything else lives in extra.
const (
	ColMission    = "mission"
	ColLove       = "love"
	ColStrengths  = "strengths"
	ColWeaknesses = "weaknesses"
	ColBusiness   = "business"
	ColCountries  = "countries"
)

var factColumns = map[string]bool{
	ColMission: true, ColLove: true, ColStrengths: true,
	ColWeaknesses: true, ColBusiness: true, ColCountries: true,
}

// FactRow is the raw projection row. Empty strings mean NULL.
type FactRow struct {
	SessionID  int64
	Mission    string
	Love       string
	Strengths  string
	Weaknesses string
	Business   string
	Countries  string
	Extra      string
	UpdatedAt  time.Time
}

// FactPatch is a partial update of the projection. Columns holds values for
// known columns and Extra holds keys merged into the extra object. Absent
// entries leave stored values untouched.
type FactPatch struct {
	Columns map[string]string
	Extra   map[string]any
}

type FactVersion struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Scenario  string    `json:"scenario"`
	Content   string    `json:"content"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordFactVersion appends a version and applies the projection patch in one
// transaction. With makeActive, prior active versions of the same
// (session, scenario) pair are deactivated first.
func (s *Store) RecordFactVersion(ctx context.Context, sessionID int64, scenario, content string, makeActive bool, patch FactPatch) (FactVersion, error) {
	for col := range patch.Columns {
		if !factColumns[col] {
			return FactVersion{}, fmt.Errorf("unknown fact column %q", col)
		}
	}
	v := FactVersion{
		SessionID: sessionID,
		Scenario:  scenario,
		Content:   content,
		IsActive:  makeActive,
		CreatedAt: time.Now().UTC(),
	}
	err := retryOnBusy(ctx, busyRetries, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if makeActive {
			if _, err := tx.ExecContext(ctx, `
				UPDATE session_facts_versions SET is_active = 0
				WHERE session_id = ? AND scenario = ? AND is_active = 1;
			`, sessionID, scenario); err != nil {
				return fmt.Errorf("deactivate versions: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO session_facts_versions (session_id, scenario, content, is_active, created_at)
			VALUES (?, ?, ?, ?, ?);
		`, sessionID, scenario, content, boolToInt(makeActive), v.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
		if v.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("version id: %w", err)
		}
		if err := applyFactPatchTx(ctx, tx, sessionID, patch); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return FactVersion{}, err
	}
	return v, nil
}

func applyFactPatchTx(ctx context.Context, tx *sql.Tx, sessionID int64, patch FactPatch) error {
	if len(patch.Columns) == 0 && len(patch.Extra) == 0 {
		return nil
	}
	var extra sql.NullString
	if len(patch.Extra) > 0 {
		var current sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT extra FROM session_facts WHERE session_id = ?;`, sessionID).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read extra: %w", err)
		}
		merged := jsonval.NormalizeObject(current.String)
		for k, val := range patch.Extra {
			merged[k] = val
		}
		b, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("marshal extra: %w", err)
		}
		extra = sql.NullString{String: string(b), Valid: true}
	}
	col := func(name string) sql.NullString {
		v, ok := patch.Columns[name]
		return sql.NullString{String: v, Valid: ok}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO session_facts (session_id, mission, love, strengths, weaknesses, business, countries, extra, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id) DO UPDATE SET
			mission = COALESCE(excluded.mission, session_facts.mission),
			love = COALESCE(excluded.love, session_facts.love),
			strengths = COALESCE(excluded.strengths, session_facts.strengths),
			weaknesses = COALESCE(excluded.weaknesses, session_facts.weaknesses),
			business = COALESCE(excluded.business, session_facts.business),
			countries = COALESCE(excluded.countries, session_facts.countries),
			extra = COALESCE(excluded.extra, session_facts.extra),
			updated_at = CURRENT_TIMESTAMP;
	`, sessionID, col(ColMission), col(ColLove), col(ColStrengths), col(ColWeaknesses),
		col(ColBusiness), col(ColCountries), extra)
	if err != nil {
		return fmt.Errorf("upsert facts: %w", err)
	}
	return nil
}

// ReadFacts returns the projection row. A session that never generated
// anything yields an empty row, not ErrNotFound.
func (s *Store) ReadFacts(ctx context.Context, sessionID int64) (FactRow, error) {
	row := FactRow{SessionID: sessionID}
	var mission, love, strengths, weaknesses, business, countries, extra sql.NullString
	var updated sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT mission, love, strengths, weaknesses, business, countries, extra, updated_at
		FROM session_facts WHERE session_id = ?;
	`, sessionID).Scan(&mission, &love, &strengths, &weaknesses, &business, &countries, &extra, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return row, nil
		}
		return FactRow{}, fmt.Errorf("read facts: %w", err)
	}
	row.Mission = mission.String
	row.Love = love.String
	row.Strengths = strengths.String
	row.Weaknesses = weaknesses.String
	row.Business = business.String
	row.Countries = countries.String
	row.Extra = extra.String
	row.UpdatedAt = updated.Time
	return row, nil
}

// ClearFactColumn sets one canonical column back to NULL.
func (s *Store) ClearFactColumn(ctx context.Context, sessionID int64, column string) error {
	if !factColumns[column] {
		return fmt.Errorf("unknown fact column %q", column)
	}
	// column is whitelisted above.
	_, err := s.db.ExecContext(ctx, `UPDATE session_facts SET `+column+` = NULL, updated_at = CURRENT_TIMESTAMP WHERE session_id = ?;`, sessionID)
	if err != nil {
		return fmt.Errorf("clear fact column: %w", err)
	}
	return nil
}

// ClearFactExtra removes one key from the extra object.
func (s *Store) ClearFactExtra(ctx context.Context, sessionID int64, key string) error {
	return retryOnBusy(ctx, busyRetries, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var current sql.NullString
		err = tx.QueryRowContext(ctx, `SELECT extra FROM session_facts WHERE session_id = ?;`, sessionID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read extra: %w", err)
		}
		merged := jsonval.NormalizeObject(current.String)
		if _, ok := merged[key]; !ok {
			return nil
		}
		delete(merged, key)
		b, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("marshal extra: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE session_facts SET extra = ?, updated_at = CURRENT_TIMESTAMP WHERE session_id = ?;`, string(b), sessionID); err != nil {
			return fmt.Errorf("write extra: %w", err)
		}
		return tx.Commit()
	})
}

// ListFactVersions returns the version history of a pair, oldest first.
func (s *Store) ListFactVersions(ctx context.Context, sessionID int64, scenario string) ([]FactVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, scenario, content, is_active, created_at
		FROM session_facts_versions
		WHERE session_id = ? AND scenario = ?
		ORDER BY id ASC;
	`, sessionID, scenario)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []FactVersion
	for rows.Next() {
		var v FactVersion
		var active int
		if err := rows.Scan(&v.ID, &v.SessionID, &v.Scenario, &v.Content, &active, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		v.IsActive = active == 1
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("versions rows: %w", err)
	}
	return out, nil
}

// ActiveFactVersion returns the single active version of a pair.
func (s *Store) ActiveFactVersion(ctx context.Context, sessionID int64, scenario string) (FactVersion, error) {
	var v FactVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, scenario, content, created_at
		FROM session_facts_versions
		WHERE session_id = ? AND scenario = ? AND is_active = 1;
	`, sessionID, scenario).Scan(&v.ID, &v.SessionID, &v.Scenario, &v.Content, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FactVersion{}, ErrNotFound
		}
		return FactVersion{}, fmt.Errorf("active version: %w", err)
	}
	v.IsActive = true
	return v, nil
}
