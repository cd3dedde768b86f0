package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/basket/astrobot/internal/config"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Scenarios []seedEntry `yaml:"scenarios"`
}

type seedEntry struct {
	Code    string `yaml:"code"`
	Title   string `yaml:"title"`
	Prompt  string `yaml:"prompt"`
	Enabled *bool  `yaml:"enabled"`
	// OutputSchema may be written as a YAML mapping or as JSON text.
	OutputSchema any `yaml:"output_schema"`
}

// LoadFile parses a registry seed. Entries without enabled default to true.
func LoadFile(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios seed: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scenarios seed: %w", err)
	}
	out := make([]Scenario, 0, len(f.Scenarios))
	for i, e := range f.Scenarios {
		if e.Code == "" {
			return nil, fmt.Errorf("scenarios seed entry %d: code is required", i)
		}
		s := Scenario{Code: e.Code, Title: e.Title, PromptTemplate: e.Prompt, Enabled: true}
		if e.Enabled != nil {
			s.Enabled = *e.Enabled
		}
		switch v := e.OutputSchema.(type) {
		case nil:
		case string:
			s.OutputSchema = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("scenarios seed entry %s: schema: %w", e.Code, err)
			}
			s.OutputSchema = string(b)
		}
		out = append(out, s)
	}
	return out, nil
}

// Sync upserts every seed entry into the registry. Entries that exist only
// in the database are left alone so admin-created scenarios survive.
func Sync(ctx context.Context, reg *StoreRegistry, path string) (int, error) {
	items, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	for _, s := range items {
		if err := reg.Upsert(ctx, s); err != nil {
			return 0, fmt.Errorf("sync scenario %s: %w", s.Code, err)
		}
	}
	return len(items), nil
}

// Syncer re-applies the seed whenever the watcher reports a change to it.
type Syncer struct {
	reg    *StoreRegistry
	path   string
	logger *slog.Logger
}

func NewSyncer(reg *StoreRegistry, path string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{reg: reg, path: path, logger: logger.With("component", "scenario_seed")}
}

// Run blocks until ctx is done or events is closed.
func (s *Syncer) Run(ctx context.Context, events <-chan config.ReloadEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Path) != filepath.Clean(s.path) {
				continue
			}
			n, err := Sync(ctx, s.reg, s.path)
			if err != nil {
				s.logger.Error("scenario seed resync failed", "path", s.path, "error", err)
				continue
			}
			s.logger.Info("scenario seed resynced", "path", s.path, "count", n)
		}
	}
}
