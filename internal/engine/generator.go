package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/basket/astrobot/internal/audit"
	"github.com/basket/astrobot/internal/facts"
	"github.com/basket/astrobot/internal/otel"
	"github.com/basket/astrobot/internal/safety"
	"github.com/basket/astrobot/internal/scenario"
	"github.com/basket/astrobot/internal/settings"
	"github.com/basket/astrobot/internal/shared"
	"github.com/basket/astrobot/internal/telemetry"
)

const (
	// DefaultMaxAttempts is also the ceiling; larger values are clamped.
	DefaultMaxAttempts = 3
	DefaultCallTimeout = 60 * time.Second
	DefaultBackoffBase = 400 * time.Millisecond
)

// Outcome is the result of a single attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeSchemaInvalid
	OutcomeParseFailed
	OutcomeServiceUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSchemaInvalid:
		return "schema_invalid"
	case OutcomeParseFailed:
		return "parse_failed"
	case OutcomeServiceUnavailable:
		return "service_unavailable"
	}
	return "unknown"
}

// Result describes a finished generation. Data is never nil.
type Result struct {
	Data     map[string]any
	Outcome  Outcome // outcome of the last attempt
	Attempts int
	Accepted bool // false when attempts ran out or a lenient failure returned early
	Mock     bool
}

// Recorder is satisfied by *audit.Trail.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// ContextSource is satisfied by *facts.Assembler.
type ContextSource interface {
	Assemble(ctx context.Context, sessionID int64) (facts.GenerationContext, error)
}

type GeneratorConfig struct {
	Registry scenario.Registry
	Context  ContextSource
	Client   Client
	Settings settings.Reader
	Audit    Recorder
	Tracer   trace.Tracer
	Metrics  *otel.Metrics
	Logger   *slog.Logger

	MaxAttempts int
	CallTimeout time.Duration
	BackoffBase time.Duration
}

// Generator produces JSON payloads for scenarios. Generation failures never
// surface as errors; they degrade to an empty payload.
type Generator struct {
	registry scenario.Registry
	context  ContextSource
	client   Client
	settings settings.Reader
	audit    Recorder
	leaks    *safety.LeakDetector
	tracer   trace.Tracer
	metrics  *otel.Metrics
	logger   *slog.Logger

	maxAttempts int
	callTimeout time.Duration
	backoffBase time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	g := &Generator{
		registry:    cfg.Registry,
		context:     cfg.Context,
		client:      cfg.Client,
		settings:    cfg.Settings,
		audit:       cfg.Audit,
		leaks:       safety.NewLeakDetector(),
		tracer:      cfg.Tracer,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		maxAttempts: cfg.MaxAttempts,
		callTimeout: cfg.CallTimeout,
		backoffBase: cfg.BackoffBase,
		sleep:       sleepCtx,
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("component", "generator")
	if g.tracer == nil {
		g.tracer = otel.Noop().Tracer
	}
	if g.metrics == nil {
		g.metrics = otel.MustNoopMetrics()
	}
	if g.audit == nil {
		g.audit = (*audit.Trail)(nil)
	}
	if g.maxAttempts <= 0 || g.maxAttempts > DefaultMaxAttempts {
		g.maxAttempts = DefaultMaxAttempts
	}
	if g.callTimeout <= 0 {
		g.callTimeout = DefaultCallTimeout
	}
	if g.backoffBase <= 0 {
		g.backoffBase = DefaultBackoffBase
	}
	return g
}

// Generate returns the accepted payload for (session, code), or an empty
// map when nothing acceptable was produced. The only error is
// scenario.ErrScenarioUnavailable.
func (g *Generator) Generate(ctx context.Context, sessionID int64, code string) (map[string]any, error) {
	res, err := g.Run(ctx, sessionID, code)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Run is Generate with the attempt details.
func (g *Generator) Run(ctx context.Context, sessionID int64, code string) (Result, error) {
	sc, err := g.registry.Get(ctx, code)
	if err != nil {
		if errors.Is(err, scenario.ErrScenarioUnavailable) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %s: %v", scenario.ErrScenarioUnavailable, code, err)
	}

	ctx = shared.WithScenario(shared.WithSessionID(shared.EnsureTraceID(ctx), sessionID), sc.Code)
	ctx, span := otel.StartSpan(ctx, g.tracer, "scenario.generate",
		otel.AttrSessionID.Int64(sessionID),
		otel.AttrScenario.String(sc.Code),
	)
	defer span.End()
	logger := telemetry.ForTurn(ctx, g.logger).With("scenario", sc.Code)
	start := time.Now()

	var gc facts.GenerationContext
	if g.context != nil {
		if gc, err = g.context.Assemble(ctx, sessionID); err != nil {
			logger.Warn("generation context unavailable", "error", err)
		}
	}
	validator, err := CoerceSchema(sc.OutputSchema)
	if err != nil {
		logger.Warn("scenario schema unusable; validation skipped", "error", err)
		validator = nil
	}
	strict := settings.Bool(ctx, g.settings, settings.KeyStrictJSON, true)
	msgs := Compose(sc, gc, settings.String(ctx, g.settings, settings.KeySystemPrompt, ""))

	g.record(ctx, sessionID, sc.Code, audit.RoleSystem, msgs[0].Content, nil)
	g.record(ctx, sessionID, sc.Code, audit.RoleAssistant, contextDump(gc), nil)
	g.record(ctx, sessionID, sc.Code, audit.RoleUser, msgs[len(msgs)-1].Content, nil)

	res := g.loop(ctx, logger, sessionID, sc.Code, msgs, validator, strict)

	state := "accepted"
	if !res.Accepted {
		state = "rejected"
		span.SetStatus(codes.Error, res.Outcome.String())
	}
	span.SetAttributes(
		otel.AttrOutcome.String(res.Outcome.String()),
		otel.AttrMock.Bool(res.Mock),
		attribute.Int("astrobot.generation.attempts", res.Attempts),
	)
	g.metrics.GenerationDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(otel.AttrScenario.String(sc.Code)))
	otel.Count(ctx, g.metrics.GenerationOutcomes, otel.AttrOutcome, state)
	logger.Info("generation finished",
		"state", state,
		"outcome", res.Outcome.String(),
		"attempts", res.Attempts,
		"mock", res.Mock,
		"strict", strict,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (g *Generator) loop(ctx context.Context, logger *slog.Logger, sessionID int64, code string, msgs []Message, validator *Validator, strict bool) Result {
	res := Result{Data: map[string]any{}, Outcome: OutcomeServiceUnavailable}
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		res.Attempts = attempt
		raw, mock, err := g.call(ctx, code, msgs, attempt)
		res.Mock = mock
		if err != nil {
			res.Outcome = OutcomeServiceUnavailable
			g.attempt(ctx, logger, attempt, res.Outcome, "error", err, "error_class", ClassifyError(err))
			g.record(ctx, sessionID, code, audit.RoleAssistantFail, fmt.Sprintf("service_error: %s: %v", ClassifyError(err), err), nil)
			if ctx.Err() != nil {
				break
			}
			if IsTransient(err) && attempt < g.maxAttempts {
				if g.sleep(ctx, g.backoff(attempt)) != nil {
					break
				}
			}
			continue
		}
		g.record(ctx, sessionID, code, audit.RoleAssistantRaw, raw, nil)
		if findings := g.leaks.Scan(raw); len(findings) > 0 {
			logger.Warn("leak detector triggered on generated output", "findings_count", len(findings), "first_pattern", findings[0].Pattern)
		}

		data, jsonText, err := ParseResponse(raw)
		if err != nil {
			res.Outcome = OutcomeParseFailed
			g.attempt(ctx, logger, attempt, res.Outcome, "error", err)
			g.record(ctx, sessionID, code, audit.RoleAssistantFail, "json_parse_error\nraw:\n"+raw, boolPtr(false))
			if !strict {
				return res
			}
			msgs = append(msgs, Message{Role: RoleUser, Content: parseRepair})
			continue
		}

		if validator != nil {
			if verr := validator.Validate(jsonText); verr != nil {
				res.Outcome = OutcomeSchemaInvalid
				g.attempt(ctx, logger, attempt, res.Outcome, "error", verr)
				g.record(ctx, sessionID, code, audit.RoleAssistantFail, fmt.Sprintf("validation_error: %v\nraw:\n%s", verr, raw), boolPtr(false))
				if !strict {
					res.Data = data
					return res
				}
				msgs = append(msgs, schemaRepair(validator.SchemaJSON(), raw))
				continue
			}
		}

		res.Outcome = OutcomeOK
		res.Accepted = true
		res.Data = data
		g.attempt(ctx, logger, attempt, res.Outcome)
		g.record(ctx, sessionID, code, audit.RoleAssistant, jsonText, boolPtr(true))
		return res
	}
	return res
}

// call invokes the client, or returns the mock payload when none is
// configured.
func (g *Generator) call(ctx context.Context, code string, msgs []Message, attempt int) (string, bool, error) {
	if g.client == nil || !g.client.Configured() {
		return MockResponse(code), true, nil
	}
	cctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()
	cctx, span := otel.StartClientSpan(cctx, g.tracer, "llm.complete", otel.AttrAttempt.Int(attempt))
	defer span.End()

	start := time.Now()
	raw, err := g.client.Complete(cctx, msgs)
	g.metrics.LLMCallDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(otel.AttrScenario.String(code)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(ClassifyError(err)))
		return "", false, err
	}
	return raw, false, nil
}

func (g *Generator) attempt(ctx context.Context, logger *slog.Logger, attempt int, outcome Outcome, args ...any) {
	otel.Count(ctx, g.metrics.GenerationAttempts, otel.AttrOutcome, outcome.String())
	level := slog.LevelWarn
	if outcome == OutcomeOK {
		level = slog.LevelDebug
	}
	logger.Log(ctx, level, "generation attempt", append([]any{"attempt", attempt, "outcome", outcome.String()}, args...)...)
}

func (g *Generator) record(ctx context.Context, sessionID int64, code, role, content string, schemaOK *bool) {
	g.audit.Record(ctx, audit.Entry{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Scenario:  code,
		SchemaOK:  schemaOK,
	})
}

// backoff doubles per attempt: base, 2*base, 4*base.
func (g *Generator) backoff(attempt int) time.Duration {
	return g.backoffBase << uint(attempt-1)
}

func contextDump(gc facts.GenerationContext) string {
	return dumpJSON(map[string]any{
		"summary":    gc.Summary,
		"facts":      gc.Facts.Map(),
		"astro_json": gc.Chart,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func boolPtr(b bool) *bool { return &b }
