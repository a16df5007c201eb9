// Package otel publishes the aggregator's pull snapshot as OpenTelemetry
// metrics. The engine itself never touches the SDK; it only exposes
// snapshots.
package otel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/muhadif/culverin/internal/config"
	"github.com/muhadif/culverin/internal/telemetry"
)

// ExporterType selects the metrics exporter.
type ExporterType string

const (
	ExporterNone     ExporterType = "none"
	ExporterStdout   ExporterType = "stdout"
	ExporterOTLPGRPC ExporterType = "otlp-grpc"
	ExporterOTLPHTTP ExporterType = "otlp-http"
)

// Config holds configuration for the metrics publisher.
type Config struct {
	// Enabled controls whether metrics export is active. Default: false.
	Enabled bool

	// ServiceName is the name of the service for metric attribution.
	ServiceName string

	// AttackName labels all metrics when non-empty.
	AttackName string

	// ExporterType specifies which exporter to use.
	ExporterType ExporterType

	// Endpoint is the collector endpoint for OTLP exporters.
	Endpoint string

	// Insecure disables TLS for OTLP connections.
	Insecure bool

	// Interval is the delta-publish cadence.
	Interval time.Duration
}

// DefaultConfig returns a configuration with export disabled.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:  "culverin",
		ExporterType: ExporterNone,
		Interval:     config.DefaultPublishInterval,
	}
}

// ConfigFromAddr maps the opentelemetry_addr attack setting to a publisher
// config: empty disables export, "stdout" writes to standard output,
// anything else is an insecure OTLP/gRPC endpoint.
func ConfigFromAddr(addr, attackName string) *Config {
	cfg := DefaultConfig()
	cfg.AttackName = attackName
	switch addr {
	case "":
	case "stdout":
		cfg.Enabled = true
		cfg.ExporterType = ExporterStdout
	default:
		cfg.Enabled = true
		cfg.ExporterType = ExporterOTLPGRPC
		cfg.Endpoint = addr
		cfg.Insecure = true
	}
	return cfg
}

// Publisher ticks on the configured interval, computes counter deltas
// against the previous snapshot, and records them on OTel instruments.
type Publisher struct {
	config        *Config
	agg           *telemetry.Aggregator
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	shutdown      func(context.Context) error

	requests        metric.Int64Counter
	successRequests metric.Int64Counter
	failureRequests metric.Int64Counter
	bytesIn         metric.Int64Counter
	bytesOut        metric.Int64Counter
	activeWorkers   metric.Int64ObservableGauge
	activeReg       metric.Registration
	duration        metric.Float64Histogram

	attrs    []attribute.KeyValue
	prev     telemetry.Snapshot
	prevLats int

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
}

// NewPublisher creates a publisher reading from agg. A disabled config
// yields a no-op publisher backed by an unreadable meter provider.
func NewPublisher(ctx context.Context, cfg *Config, agg *telemetry.Aggregator) (*Publisher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = config.DefaultPublishInterval
	}

	p := &Publisher{config: cfg, agg: agg}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		p.meterProvider = sdkmetric.NewMeterProvider()
		p.meter = p.meterProvider.Meter(cfg.ServiceName)
		p.shutdown = func(context.Context) error { return nil }
		return p, nil
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	p.meterProvider = mp
	p.meter = mp.Meter(cfg.ServiceName)
	p.shutdown = mp.Shutdown

	if cfg.AttackName != "" {
		p.attrs = []attribute.KeyValue{attribute.String("attack", cfg.AttackName)}
	}

	if err := p.registerInstruments(); err != nil {
		return nil, fmt.Errorf("failed to register metric instruments: %w", err)
	}

	return p, nil
}

func createExporter(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()

	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

func (p *Publisher) registerInstruments() error {
	var err error

	p.requests, err = p.meter.Int64Counter(
		"culverin.requests",
		metric.WithDescription("Total number of requests"),
	)
	if err != nil {
		return err
	}

	p.successRequests, err = p.meter.Int64Counter(
		"culverin.success_requests",
		metric.WithDescription("Number of successful requests"),
	)
	if err != nil {
		return err
	}

	p.failureRequests, err = p.meter.Int64Counter(
		"culverin.failure_requests",
		metric.WithDescription("Number of failed requests"),
	)
	if err != nil {
		return err
	}

	p.bytesIn, err = p.meter.Int64Counter(
		"culverin.bytes_in",
		metric.WithDescription("Total bytes received"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	p.bytesOut, err = p.meter.Int64Counter(
		"culverin.bytes_out",
		metric.WithDescription("Total bytes sent"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	p.duration, err = p.meter.Float64Histogram(
		"culverin.request_duration",
		metric.WithDescription("Request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	p.activeWorkers, err = p.meter.Int64ObservableGauge(
		"culverin.active_workers",
		metric.WithDescription("Number of active workers"),
	)
	if err != nil {
		return err
	}

	p.activeReg, err = p.meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(p.activeWorkers, p.agg.ActiveWorkers())
			return nil
		},
		p.activeWorkers,
	)
	return err
}

// Enabled reports whether metrics export is active.
func (p *Publisher) Enabled() bool {
	return p.config.Enabled && p.config.ExporterType != ExporterNone
}

// Start launches the delta-publish loop.
func (p *Publisher) Start(ctx context.Context) {
	if !p.Enabled() || p.started.Swap(true) {
		return
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				p.publish(loopCtx)
			}
		}
	}()
}

func (p *Publisher) publish(ctx context.Context) {
	snap := p.agg.Snapshot()
	opts := metric.WithAttributes(p.attrs...)

	p.requests.Add(ctx, snap.Requests-p.prev.Requests, opts)
	p.successRequests.Add(ctx, snap.Success-p.prev.Success, opts)
	p.failureRequests.Add(ctx, snap.Failure-p.prev.Failure, opts)
	p.bytesIn.Add(ctx, snap.BytesIn-p.prev.BytesIn, opts)
	p.bytesOut.Add(ctx, snap.BytesOut-p.prev.BytesOut, opts)

	for _, s := range snap.Latencies[p.prevLats:] {
		p.duration.Record(ctx, s, opts)
	}

	p.prevLats = len(snap.Latencies)
	snap.Latencies = nil
	p.prev = snap
}

// Stop publishes a final delta and flushes the exporter.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}

	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	if p.Enabled() {
		p.publish(ctx)
	}
	if p.activeReg != nil {
		if err := p.activeReg.Unregister(); err != nil {
			return err
		}
	}
	return p.shutdown(ctx)
}
