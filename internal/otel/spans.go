package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for astrobot spans and metrics.
var (
	AttrSessionID = attribute.Key("astrobot.session.id")
	AttrScenario  = attribute.Key("astrobot.scenario")
	AttrAttempt   = attribute.Key("astrobot.generation.attempt")
	AttrOutcome   = attribute.Key("astrobot.generation.outcome")
	AttrModel     = attribute.Key("astrobot.llm.model")
	AttrGate      = attribute.Key("astrobot.gate")
	AttrMock      = attribute.Key("astrobot.generation.mock")
)

// StartSpan starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartClientSpan starts a span for an outbound call (LLM API, membership check).
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
