// Package config holds the attack scheduling and client parameters.
package config

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// Shared buffer and interval constants for the engine.
const (
	// DefaultResultBufferSize bounds the result sink queue. Sized to absorb
	// microsecond-scale completion bursts without unbounded memory growth.
	DefaultResultBufferSize = 1000

	// DefaultRampDuration is the worker ramp window when no attack duration
	// is configured.
	DefaultRampDuration = 60 * time.Second

	// DrainPollInterval is how often the drain phase samples the
	// active-worker gauge.
	DrainPollInterval = 100 * time.Millisecond

	// DefaultPublishInterval is the telemetry delta-publish cadence.
	DefaultPublishInterval = 1 * time.Second

	// DefaultHTTPTimeout is the per-request deadline when none is set.
	DefaultHTTPTimeout = 30 * time.Second
)

// AttackConfig is immutable once the engine starts.
type AttackConfig struct {
	// Rate is the offered load in requests per second. 0 or negative means
	// unpaced: ticks fire with zero delay.
	Rate float64

	// Duration bounds the run. 0 means unbounded.
	Duration time.Duration

	// HTTPTimeout is the per-request deadline. The response body read gets a
	// fresh clock of the same length after headers arrive.
	HTTPTimeout time.Duration

	// Timeout caps the drain phase together with HTTPTimeout: the drain
	// deadline is max(Timeout, HTTPTimeout).
	Timeout time.Duration

	// Workers is the initial worker pool size. 0 means one per detected CPU.
	Workers int

	// MaxWorkers, when larger than Workers, enables a linear ramp of the
	// pool over Duration (or DefaultRampDuration when unbounded).
	MaxWorkers int

	// Connections is the idle connection pool size per host.
	Connections int

	// MaxConnections caps total connections per host. 0 means unlimited.
	MaxConnections int

	// KeepAlive pools idle connections when true.
	KeepAlive bool

	// HTTP2 negotiates HTTP/2 over TLS when supported by the server.
	HTTP2 bool

	// H2C sends HTTP/2 without TLS.
	H2C bool

	// Insecure skips TLS certificate verification.
	Insecure bool

	// Redirects limits redirect following. Negative means do not follow;
	// zero or positive means follow up to that many hops.
	Redirects int

	// LocalAddr is the local bind address. "0.0.0.0" means any.
	LocalAddr string

	// MaxBody caps response body accounting in bytes. Negative means
	// uncapped.
	MaxBody int64

	// DNSTTL is reserved; DNS caching is delegated to the resolver.
	DNSTTL time.Duration

	// Lazy is reserved; targets are currently read eagerly.
	Lazy bool

	// OpenTelemetryAddr enables metric export when non-empty: "stdout"
	// writes to standard output, anything else is an OTLP/gRPC endpoint.
	OpenTelemetryAddr string

	// Name labels the attack in telemetry.
	Name string

	// Tolerance relaxes the under-delivery check: a run passes when
	// scheduled >= (1 - Tolerance) * expected.
	Tolerance float64
}

// Default returns an AttackConfig mirroring the CLI defaults.
func Default() *AttackConfig {
	return &AttackConfig{
		Rate:        50,
		HTTPTimeout: DefaultHTTPTimeout,
		Workers:     0,
		Connections: 10000,
		KeepAlive:   true,
		HTTP2:       true,
		Redirects:   10,
		LocalAddr:   "0.0.0.0",
		MaxBody:     -1,
	}
}

// Normalize fills zero values in place and returns the config.
func (c *AttackConfig) Normalize() *AttackConfig {
	if c.Workers <= 0 {
		c.Workers = DetectCPUs()
	}
	if c.MaxWorkers < c.Workers {
		c.MaxWorkers = c.Workers
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.Tolerance < 0 {
		c.Tolerance = 0
	}
	return c
}

// DrainDeadline is the bounded wait for in-flight exchanges after pacing
// ends.
func (c *AttackConfig) DrainDeadline() time.Duration {
	if c.Timeout > c.HTTPTimeout {
		return c.Timeout
	}
	return c.HTTPTimeout
}

// Expected is the promised request count, floor(rate * duration), or -1
// when it cannot be computed.
func (c *AttackConfig) Expected() int64 {
	if c.Duration <= 0 || c.Rate <= 0 {
		return -1
	}
	return int64(c.Rate * c.Duration.Seconds())
}

// DetectCPUs returns the logical CPU count.
func DetectCPUs() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// ParseRate parses a rate string of the form "<N>/<duration>", e.g.
// "50/1s", into requests per second.
func ParseRate(s string) (float64, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid rate %q: expected <number>/<duration>, e.g. 50/1s", s)
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q: %w", s, err)
	}

	d, err := time.ParseDuration(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid rate %q: duration must be greater than 0", s)
	}

	return n / d.Seconds(), nil
}
