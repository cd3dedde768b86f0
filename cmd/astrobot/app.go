package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	"github.com/basket/astrobot/internal/audit"
	"github.com/basket/astrobot/internal/channels"
	"github.com/basket/astrobot/internal/config"
	"github.com/basket/astrobot/internal/engine"
	"github.com/basket/astrobot/internal/facts"
	"github.com/basket/astrobot/internal/gate"
	"github.com/basket/astrobot/internal/keylock"
	"github.com/basket/astrobot/internal/otel"
	"github.com/basket/astrobot/internal/persistence"
	"github.com/basket/astrobot/internal/readings"
	"github.com/basket/astrobot/internal/scenario"
	"github.com/basket/astrobot/internal/settings"
	"github.com/basket/astrobot/internal/telemetry"
)

// startupError carries a reason code for the structured fatal line.
type startupError struct {
	Code string
	Err  error
}

func (e *startupError) Error() string { return e.Code + ": " + e.Err.Error() }
func (e *startupError) Unwrap() error { return e.Err }

func fail(code string, err error) error {
	return &startupError{Code: code, Err: err}
}

type appOptions struct {
	quiet bool
	// telegram creates the bot client, needed for serving and membership checks.
	telegram bool
}

// app is the wired object graph shared by all commands.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	otel     *otel.Provider
	metrics  *otel.Metrics
	store    *persistence.Store
	registry *scenario.StoreRegistry
	audit    *audit.Trail
	facts    *facts.Store
	gen      *engine.Generator
	locker   keylock.Locker
	bot      *tgbotapi.BotAPI
	svc      *readings.Service

	closers []func()
}

func newApp(ctx context.Context, root *rootOptions, opts appOptions) (*app, error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, fail("E_CONFIG_LOAD", err)
	}
	a := &app{cfg: cfg}

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, opts.quiet)
	if err != nil {
		return nil, fail("E_LOGGER_INIT", err)
	}
	a.onClose(func() { _ = closer.Close() })
	slog.SetDefault(logger)
	a.logger = logger
	logger.Info("startup phase", "phase", "config_loaded", "home", cfg.HomeDir, "fingerprint", cfg.Fingerprint())

	// Initialize OpenTelemetry (no-op when disabled).
	a.otel, err = otel.Init(ctx, otel.Config{
		Enabled:     cfg.OTel.Enabled,
		Exporter:    cfg.OTel.Exporter,
		Endpoint:    cfg.OTel.Endpoint,
		ServiceName: cfg.OTel.ServiceName,
		SampleRate:  cfg.OTel.SampleRate,
	})
	if err != nil {
		a.Close()
		return nil, fail("E_OTEL_INIT", err)
	}
	a.onClose(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.otel.Shutdown(sctx)
	})
	if a.metrics, err = otel.NewMetrics(a.otel.Meter); err != nil {
		a.Close()
		return nil, fail("E_OTEL_INIT", err)
	}

	a.store, err = persistence.Open(cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, fail("E_STORE_OPEN", err)
	}
	a.onClose(func() { _ = a.store.Close() })
	logger.Info("startup phase", "phase", "schema_migrated", "db_path", cfg.DBPath)

	if err := settings.Seed(ctx, a.store, cfg.AdminDefaults); err != nil {
		a.Close()
		return nil, fail("E_SETTINGS_SEED", err)
	}

	a.registry = scenario.NewStoreRegistry(a.store)
	if path := cfg.ScenariosPath(); path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			n, err := scenario.Sync(ctx, a.registry, path)
			if err != nil {
				a.Close()
				return nil, fail("E_SCENARIOS_SYNC", err)
			}
			logger.Info("startup phase", "phase", "scenarios_synced", "path", path, "count", n)
		}
	}

	a.audit, err = audit.Open(cfg.HomeDir, a.store, logger)
	if err != nil {
		a.Close()
		return nil, fail("E_AUDIT_INIT", err)
	}
	a.onClose(func() { _ = a.audit.Close() })

	provider, model, apiKey := cfg.ResolveLLMConfig()
	client := engine.NewGenkitClient(ctx, engine.ClientConfig{
		Provider: provider,
		Model:    model,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   apiKey,
	}, logger)

	a.facts = facts.NewStore(a.store, a.metrics, logger)
	a.gen = engine.NewGenerator(engine.GeneratorConfig{
		Registry:    a.registry,
		Context:     facts.NewAssembler(a.store, a.facts),
		Client:      client,
		Settings:    a.store,
		Audit:       a.audit,
		Tracer:      a.otel.Tracer,
		Metrics:     a.metrics,
		Logger:      logger,
		MaxAttempts: cfg.Generation.MaxAttempts,
		CallTimeout: time.Duration(cfg.Generation.CallTimeoutSeconds) * time.Second,
		BackoffBase: time.Duration(cfg.Generation.BackoffBaseMillis) * time.Millisecond,
	})

	a.locker = a.newLocker(ctx)

	var members gate.MembershipChecker
	botUsername := cfg.Telegram.BotUsername
	if opts.telegram && cfg.Telegram.Token != "" {
		a.bot, err = tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			a.Close()
			return nil, fail("E_TELEGRAM_INIT", err)
		}
		members = channels.NewMembership(a.bot)
		if botUsername == "" {
			botUsername = a.bot.Self.UserName
		}
	}

	a.svc = readings.New(readings.Config{
		DB:          a.store,
		Catalog:     a.registry,
		Generator:   a.gen,
		Facts:       a.facts,
		Gate:        gate.New(a.store, members, a.store, a.metrics, logger),
		Locker:      a.locker,
		BotUsername: botUsername,
		Metrics:     a.metrics,
		Logger:      logger,
	})
	logger.Info("startup phase", "phase", "services_ready", "llm_configured", client.Configured(), "model", client.Model())
	return a, nil
}

// newLocker prefers Redis when configured and reachable, else the
// in-process lock.
func (a *app) newLocker(ctx context.Context) keylock.Locker {
	rc := a.cfg.Redis
	if rc.Addr == "" {
		return keylock.NewMemory()
	}
	client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	l := keylock.NewRedis(client, time.Duration(rc.LockTTLSeconds)*time.Second, a.logger)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := l.Ping(pctx); err != nil {
		a.logger.Warn("redis unreachable; using in-process generation lock", "addr", rc.Addr, "error", err)
		_ = client.Close()
		return keylock.NewMemory()
	}
	a.onClose(func() { _ = client.Close() })
	a.logger.Info("redis generation lock enabled", "addr", rc.Addr)
	return l
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// reportStartup writes a structured fatal line for startup failures.
func reportStartup(w io.Writer, err error) {
	var se *startupError
	if !errors.As(err, &se) {
		return
	}
	fmt.Fprintf(w,
		`{"timestamp":"%s","level":"ERROR","component":"runtime","trace_id":"-","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
		time.Now().UTC().Format(time.RFC3339Nano),
		se.Code,
		se.Err.Error(),
	)
}
