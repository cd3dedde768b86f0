package otel

import (
	"context"
	"testing"
)

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	p, err := Init(context.Background(), Config{
		Enabled:  true,
		Exporter: "none",
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	if m.GenerationDuration == nil {
		t.Error("GenerationDuration is nil")
	}
	if m.LLMCallDuration == nil {
		t.Error("LLMCallDuration is nil")
	}
	if m.GenerationAttempts == nil {
		t.Error("GenerationAttempts is nil")
	}
	if m.GenerationOutcomes == nil {
		t.Error("GenerationOutcomes is nil")
	}
	if m.FactWrites == nil {
		t.Error("FactWrites is nil")
	}
	if m.GateBlocks == nil {
		t.Error("GateBlocks is nil")
	}
	if m.LockContention == nil {
		t.Error("LockContention is nil")
	}
}

func TestMustNoopMetrics_Count(t *testing.T) {
	m := MustNoopMetrics()
	Count(context.Background(), m.GateBlocks, AttrGate, "channel")
	Count(context.Background(), nil, AttrGate, "referral")
}
