package otel

import (
	"context"
	"testing"
	"time"

	"github.com/muhadif/culverin/internal/telemetry"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Enabled {
		t.Error("expected Enabled to be false by default")
	}
	if cfg.ServiceName != "culverin" {
		t.Errorf("expected ServiceName 'culverin', got %q", cfg.ServiceName)
	}
	if cfg.ExporterType != ExporterNone {
		t.Errorf("expected ExporterType 'none', got %q", cfg.ExporterType)
	}
	if cfg.Interval != time.Second {
		t.Errorf("expected 1s interval, got %v", cfg.Interval)
	}
}

func TestConfigFromAddr(t *testing.T) {
	cfg := ConfigFromAddr("", "run1")
	if cfg.Enabled {
		t.Error("empty addr should disable export")
	}

	cfg = ConfigFromAddr("stdout", "run1")
	if !cfg.Enabled || cfg.ExporterType != ExporterStdout {
		t.Errorf("stdout addr mapped to %+v", cfg)
	}

	cfg = ConfigFromAddr("collector:4317", "run1")
	if !cfg.Enabled || cfg.ExporterType != ExporterOTLPGRPC || cfg.Endpoint != "collector:4317" || !cfg.Insecure {
		t.Errorf("endpoint addr mapped to %+v", cfg)
	}
	if cfg.AttackName != "run1" {
		t.Errorf("attack name not carried: %+v", cfg)
	}
}

func TestPublisherDisabled(t *testing.T) {
	ctx := context.Background()
	agg := telemetry.NewAggregator()

	p, err := NewPublisher(ctx, DefaultConfig(), agg)
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}

	if p.Enabled() {
		t.Error("expected publisher to be disabled")
	}

	// Start and Stop must be safe no-ops when disabled.
	p.Start(ctx)
	if err := p.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestPublisherStopIdempotent(t *testing.T) {
	ctx := context.Background()

	p, err := NewPublisher(ctx, nil, telemetry.NewAggregator())
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}

	if err := p.Stop(ctx); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if err := p.Stop(ctx); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}
