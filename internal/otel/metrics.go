package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the readings pipeline instruments.
type Metrics struct {
	GenerationDuration metric.Float64Histogram
	LLMCallDuration    metric.Float64Histogram
	GenerationAttempts metric.Int64Counter
	GenerationOutcomes metric.Int64Counter
	FactWrites         metric.Int64Counter
	GateBlocks         metric.Int64Counter
	LockContention     metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.GenerationDuration, err = meter.Float64Histogram("astrobot.generation.duration",
		metric.WithDescription("Scenario generation duration in seconds, all attempts included"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.LLMCallDuration, err = meter.Float64Histogram("astrobot.llm.duration",
		metric.WithDescription("Generation client call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.GenerationAttempts, err = meter.Int64Counter("astrobot.generation.attempts",
		metric.WithDescription("Generation attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.GenerationOutcomes, err = meter.Int64Counter("astrobot.generation.results",
		metric.WithDescription("Finished generations by terminal state"),
	)
	if err != nil {
		return nil, err
	}

	m.FactWrites, err = meter.Int64Counter("astrobot.facts.writes",
		metric.WithDescription("Fact versions recorded"),
	)
	if err != nil {
		return nil, err
	}

	m.GateBlocks, err = meter.Int64Counter("astrobot.gate.blocks",
		metric.WithDescription("Scenario openings blocked by an access gate"),
	)
	if err != nil {
		return nil, err
	}

	m.LockContention, err = meter.Int64Counter("astrobot.lock.contention",
		metric.WithDescription("Generations that waited on another holder of the same key"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// MustNoopMetrics returns instruments backed by the no-op meter.
func MustNoopMetrics() *Metrics {
	m, err := NewMetrics(Noop().Meter)
	if err != nil {
		panic(err)
	}
	return m
}

// Count adds one to a counter with a single string attribute. Nil-safe.
func Count(ctx context.Context, c metric.Int64Counter, key attribute.Key, value string) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(key.String(value)))
}
