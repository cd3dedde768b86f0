// Package readings is the surface the chat layer talks to: it runs
// scenarios, serves cached readings behind the access gates and completes
// onboarding.
package readings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/basket/astrobot/internal/facts"
	"github.com/basket/astrobot/internal/gate"
	"github.com/basket/astrobot/internal/keylock"
	"github.com/basket/astrobot/internal/otel"
	"github.com/basket/astrobot/internal/persistence"
	"github.com/basket/astrobot/internal/regen"
	"github.com/basket/astrobot/internal/scenario"
	"github.com/basket/astrobot/internal/settings"
)

// ErrNoSession means the user has no active session or the id is unknown.
var ErrNoSession = errors.New("no active session")

// Catalog is satisfied by *scenario.StoreRegistry.
type Catalog interface {
	scenario.Registry
	Title(ctx context.Context, code string) string
}

// Generator is satisfied by *engine.Generator.
type Generator interface {
	Generate(ctx context.Context, sessionID int64, code string) (map[string]any, error)
}

type Config struct {
	DB          *persistence.Store
	Catalog     Catalog
	Generator   Generator
	Facts       *facts.Store
	Gate        *gate.Gate
	Locker      keylock.Locker
	Oracle      ChartOracle
	BotUsername string
	Metrics     *otel.Metrics
	Logger      *slog.Logger
}

type Service struct {
	db          *persistence.Store
	catalog     Catalog
	gen         Generator
	facts       *facts.Store
	gate        *gate.Gate
	refresher   *regen.Refresher
	locker      keylock.Locker
	oracle      ChartOracle
	botUsername string
	metrics     *otel.Metrics
	logger      *slog.Logger

	flight singleflight.Group
}

func New(cfg Config) *Service {
	s := &Service{
		db:          cfg.DB,
		catalog:     cfg.Catalog,
		gen:         cfg.Generator,
		facts:       cfg.Facts,
		gate:        cfg.Gate,
		locker:      cfg.Locker,
		oracle:      cfg.Oracle,
		botUsername: cfg.BotUsername,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "readings")
	if s.metrics == nil {
		s.metrics = otel.MustNoopMetrics()
	}
	if s.locker == nil {
		s.locker = keylock.NewMemory()
	}
	if s.facts == nil {
		s.facts = facts.NewStore(cfg.DB, s.metrics, s.logger)
	}
	if s.gate == nil {
		s.gate = gate.New(cfg.DB, nil, cfg.DB, s.metrics, s.logger)
	}
	s.refresher = regen.NewRefresher(s, s.facts, s.logger)
	return s
}

// RunScenario generates the payload for (session, code), records it as the
// active version and rebuilds the summary. Generation failures degrade to an
// empty payload, which is not recorded, so the previous active version
// stays in place. Errors are returned only for an unknown session or an
// unavailable scenario. Concurrent calls for the same pair share one
// generation.
func (s *Service) RunScenario(ctx context.Context, sessionID int64, code string) (map[string]any, error) {
	if _, err := s.session(ctx, sessionID); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%d:%s", sessionID, code)
	v, err, shared := s.flight.Do(key, func() (any, error) {
		release, err := s.locker.Acquire(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		defer release()

		data, err := s.gen.Generate(ctx, sessionID, code)
		if err != nil {
			return nil, err
		}
		if emptyValue(data) {
			s.logger.Warn("generation produced nothing acceptable; keeping active version", "session_id", sessionID, "scenario", code)
			return data, nil
		}
		if _, err := s.facts.Record(ctx, sessionID, code, data, true); err != nil {
			s.logger.Error("record generated payload failed", "session_id", sessionID, "scenario", code, "error", err)
		}
		return data, nil
	})
	if shared {
		otel.Count(ctx, s.metrics.LockContention, otel.AttrScenario, code)
	}
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

// Generate lets the year refresher run through the same dedupe and lock
// path without recording, since the refresher records accepted text itself.
func (s *Service) Generate(ctx context.Context, sessionID int64, code string) (map[string]any, error) {
	key := fmt.Sprintf("%d:%s:refresh", sessionID, code)
	v, err, _ := s.flight.Do(key, func() (any, error) {
		release, err := s.locker.Acquire(ctx, fmt.Sprintf("%d:%s", sessionID, code))
		if err != nil {
			return nil, err
		}
		defer release()
		return s.gen.Generate(ctx, sessionID, code)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

// Locks returns the lock map for the main menu.
func (s *Service) Locks(ctx context.Context, user gate.User) map[string]bool {
	return s.gate.Locks(ctx, user)
}

// SessionSummary returns the stored summary, or "" when none exists.
func (s *Service) SessionSummary(ctx context.Context, sessionID int64) string {
	text, err := s.db.LoadSummary(ctx, sessionID)
	if err != nil {
		s.logger.Warn("load summary failed", "session_id", sessionID, "error", err)
		return ""
	}
	return text
}

// ActiveSessionID returns the user's active session.
func (s *Service) ActiveSessionID(ctx context.Context, userID int64) (int64, error) {
	sess, err := s.db.ActiveSession(ctx, userID)
	if errors.Is(err, persistence.ErrNotFound) {
		return 0, ErrNoSession
	}
	if err != nil {
		return 0, err
	}
	return sess.ID, nil
}

// Menu lists enabled scenarios with their lock state.
func (s *Service) Menu(ctx context.Context, user gate.User) ([]MenuItem, error) {
	entries, err := s.catalog.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	locks := s.Locks(ctx, user)
	out := make([]MenuItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, MenuItem{Code: e.Code, Title: e.Title, Locked: locks[e.Code]})
	}
	return out, nil
}

// Greeting returns the admin greeting text.
func (s *Service) Greeting(ctx context.Context) string {
	return settings.String(ctx, s.db, settings.KeyGreetingText, settings.DefaultGreeting)
}

// User resolves a chat-platform user for gate checks.
func (s *Service) User(ctx context.Context, tgID int64) (gate.User, error) {
	u, err := s.db.UserByTGID(ctx, tgID)
	if errors.Is(err, persistence.ErrNotFound) {
		return gate.User{TGID: tgID}, nil
	}
	if err != nil {
		return gate.User{}, err
	}
	return gate.User{ID: u.ID, TGID: u.TGID}, nil
}

func (s *Service) session(ctx context.Context, sessionID int64) (persistence.Session, error) {
	sess, err := s.db.GetSession(ctx, sessionID)
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.Session{}, fmt.Errorf("%w: session %d", ErrNoSession, sessionID)
	}
	if err != nil {
		return persistence.Session{}, err
	}
	return sess, nil
}

// resolveSession falls back to the user's active session when sessionID is 0.
func (s *Service) resolveSession(ctx context.Context, user gate.User, sessionID int64) (int64, error) {
	if sessionID > 0 {
		return sessionID, nil
	}
	if user.ID == 0 {
		return 0, ErrNoSession
	}
	return s.ActiveSessionID(ctx, user.ID)
}
