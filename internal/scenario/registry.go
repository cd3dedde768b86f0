package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/basket/astrobot/internal/persistence"
)

// StoreRegistry serves the registry from the admin_scenarios table and
// exposes the admin CRUD surface.
type StoreRegistry struct {
	store *persistence.Store
}

func NewStoreRegistry(store *persistence.Store) *StoreRegistry {
	return &StoreRegistry{store: store}
}

func (r *StoreRegistry) Get(ctx context.Context, code string) (Scenario, error) {
	row, err := r.store.GetScenario(ctx, strings.TrimSpace(code))
	if errors.Is(err, persistence.ErrNotFound) {
		return Scenario{}, fmt.Errorf("%w: %s", ErrScenarioUnavailable, code)
	}
	if err != nil {
		return Scenario{}, err
	}
	if !row.Enabled {
		return Scenario{}, fmt.Errorf("%w: %s is disabled", ErrScenarioUnavailable, code)
	}
	return fromRow(row), nil
}

func (r *StoreRegistry) ListEnabled(ctx context.Context) ([]Entry, error) {
	rows, err := r.store.ListScenarios(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, Entry{Code: row.Code, Title: row.Title})
	}
	return out, nil
}

// Title returns the scenario title, or the code itself when unknown.
func (r *StoreRegistry) Title(ctx context.Context, code string) string {
	row, err := r.store.GetScenario(ctx, code)
	if err != nil || row.Title == "" {
		return code
	}
	return row.Title
}

// List returns every entry including disabled ones.
func (r *StoreRegistry) List(ctx context.Context) ([]Scenario, error) {
	rows, err := r.store.ListScenarios(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]Scenario, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func (r *StoreRegistry) Upsert(ctx context.Context, s Scenario) error {
	s.Code = strings.TrimSpace(s.Code)
	if s.Code == "" {
		return fmt.Errorf("scenario code is required")
	}
	if strings.TrimSpace(s.Title) == "" {
		s.Title = s.Code
	}
	return r.store.UpsertScenario(ctx, persistence.ScenarioRow{
		Code:         s.Code,
		Title:        s.Title,
		Prompt:       s.PromptTemplate,
		OutputSchema: s.OutputSchema,
		Enabled:      s.Enabled,
	})
}

func (r *StoreRegistry) Delete(ctx context.Context, code string) error {
	return r.store.DeleteScenario(ctx, code)
}

func fromRow(row persistence.ScenarioRow) Scenario {
	return Scenario{
		Code:           row.Code,
		Title:          row.Title,
		PromptTemplate: row.Prompt,
		OutputSchema:   row.OutputSchema,
		Enabled:        row.Enabled,
	}
}
