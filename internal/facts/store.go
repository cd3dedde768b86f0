package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/basket/astrobot/internal/jsonval"
	"github.com/basket/astrobot/internal/otel"
	"github.com/basket/astrobot/internal/persistence"
	"github.com/basket/astrobot/internal/scenario"
)

// Store writes fact versions and the projection, and rebuilds the session
// summary after every write.
type Store struct {
	db        *persistence.Store
	rebuilder *Rebuilder
	metrics   *otel.Metrics
	logger    *slog.Logger
}

func NewStore(db *persistence.Store, metrics *otel.Metrics, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = otel.MustNoopMetrics()
	}
	return &Store{
		db:        db,
		rebuilder: NewRebuilder(db, logger),
		metrics:   metrics,
		logger:    logger.With("component", "facts"),
	}
}

func (s *Store) Rebuilder() *Rebuilder { return s.rebuilder }

// Record stores content as a new version of (session, code) and routes it
// into the projection. Content may be a mapping, JSON text, raw bytes or
// plain text. A failed summary rebuild is logged; the version stays.
func (s *Store) Record(ctx context.Context, sessionID int64, code string, content any, makeActive bool) (Fact, error) {
	canonical, err := jsonval.Canonical(content)
	if err != nil {
		return Fact{}, fmt.Errorf("record %s: %w", code, err)
	}
	patch := projectionPatch(code, jsonval.Normalize(canonical))
	v, err := s.db.RecordFactVersion(ctx, sessionID, code, canonical, makeActive, patch)
	if err != nil {
		return Fact{}, fmt.Errorf("record %s: %w", code, err)
	}
	otel.Count(ctx, s.metrics.FactWrites, otel.AttrScenario, code)
	s.logger.Debug("fact version recorded", "session_id", sessionID, "scenario", code, "version_id", v.ID, "active", v.IsActive)

	s.rebuild(ctx, sessionID)
	return s.Read(ctx, sessionID)
}

// Read returns the projection with list and extra fields decoded.
func (s *Store) Read(ctx context.Context, sessionID int64) (Fact, error) {
	row, err := s.db.ReadFacts(ctx, sessionID)
	if err != nil {
		return Fact{}, err
	}
	return fromRow(row), nil
}

// Clear empties the cached slot of code so the next open regenerates it.
// Versions are untouched.
func (s *Store) Clear(ctx context.Context, sessionID int64, code string) error {
	slot := scenario.SlotFor(code)
	var err error
	if slot.Column != "" {
		err = s.db.ClearFactColumn(ctx, sessionID, slot.Column)
	} else {
		err = s.db.ClearFactExtra(ctx, sessionID, slot.ExtraKey)
	}
	if err != nil {
		return fmt.Errorf("clear %s: %w", code, err)
	}
	s.rebuild(ctx, sessionID)
	return nil
}

// Versions returns the history of (session, code), oldest first.
func (s *Store) Versions(ctx context.Context, sessionID int64, code string) ([]persistence.FactVersion, error) {
	return s.db.ListFactVersions(ctx, sessionID, code)
}

func (s *Store) rebuild(ctx context.Context, sessionID int64) {
	if _, err := s.rebuilder.Rebuild(ctx, sessionID); err != nil {
		s.logger.Warn("summary rebuild failed", "session_id", sessionID, "error", err)
	}
}

// projectionPatch maps generated content onto the projection. Fields the
// content lacks are left out of the patch so they never erase cached values.
func projectionPatch(code string, v any) persistence.FactPatch {
	patch := persistence.FactPatch{Columns: map[string]string{}, Extra: map[string]any{}}
	m, _ := v.(map[string]any)
	slot := scenario.SlotFor(code)
	switch slot.Kind {
	case scenario.TextSlot:
		if t := jsonval.Text(m, code); strings.TrimSpace(t) != "" {
			patch.Columns[slot.Column] = t
		}
	case scenario.ExtraTextSlot:
		if t := jsonval.Text(m, code); strings.TrimSpace(t) != "" {
			patch.Extra[slot.ExtraKey] = t
		}
	case scenario.ListSlot:
		if !hasList(v) {
			break
		}
		b, err := json.Marshal(map[string]any{"items": jsonval.Items(v)})
		if err == nil {
			patch.Columns[slot.Column] = string(b)
		}
	default:
		switch t := v.(type) {
		case map[string]any:
			if len(t) > 0 {
				patch.Extra[slot.ExtraKey] = t
			}
		case []any:
			patch.Extra[slot.ExtraKey] = t
		}
	}
	return patch
}

func hasList(v any) bool {
	switch t := v.(type) {
	case []any:
		return true
	case map[string]any:
		_, ok := t["items"].([]any)
		return ok
	}
	return false
}
