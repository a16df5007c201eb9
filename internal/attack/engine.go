package attack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/muhadif/culverin/internal/config"
	"github.com/muhadif/culverin/internal/models"
	otelpub "github.com/muhadif/culverin/internal/otel"
	"github.com/muhadif/culverin/internal/telemetry"
)

var (
	ErrNoTargets  = errors.New("no targets specified")
	ErrAlreadyRun = errors.New("attack already run")
)

// UnderDeliveryError reports a run that scheduled fewer requests than the
// (tolerated) promised count.
type UnderDeliveryError struct {
	Scheduled int64
	Expected  int64
	Tolerance float64
}

func (e *UnderDeliveryError) Error() string {
	return fmt.Sprintf("failed to achieve target rate: scheduled %d of %d expected requests (tolerance %.0f%%)",
		e.Scheduled, e.Expected, e.Tolerance*100)
}

const healthInterval = 5 * time.Second

// Options configures one attack.
type Options struct {
	// Config holds the scheduling and client parameters. Nil means defaults.
	Config *config.AttackConfig

	// Targets is the request template set, issued round-robin.
	Targets []models.Target

	// Headers are global headers appended after each target's own.
	Headers []models.Header

	// ProxyHeaders are appended to every dispatched request.
	ProxyHeaders []models.Header

	// Body is attached to targets that have none of their own.
	Body []byte

	// Chunked adds Transfer-Encoding: chunked when a body is present.
	Chunked bool

	// Output is the JSONL result log path. Empty or "stdout" discards the
	// payload; only aggregation happens.
	Output string

	// Progress receives the in-place status line. Nil disables it.
	Progress io.Writer

	// Capture retains every outcome in memory for Results.
	Capture bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Attack is one execution of the engine with a fixed config and target set.
type Attack struct {
	cfg       *config.AttackConfig
	opts      Options
	client    *http.Client
	pool      *WorkerPool
	agg       *telemetry.Aggregator
	sink      *telemetry.Sink
	publisher *otelpub.Publisher
	logger    *slog.Logger

	scheduled atomic.Int64
	started   atomic.Bool
}

// New validates the options and assembles the engine. The result log file
// is created here so configuration errors surface before any request.
func New(ctx context.Context, opts Options) (*Attack, error) {
	if len(opts.Targets) == 0 {
		return nil, ErrNoTargets
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Normalize()

	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	agg := telemetry.NewAggregator()

	var emitter *telemetry.Emitter
	if opts.Output != "" && opts.Output != "stdout" {
		emitter, err = telemetry.NewEmitter(opts.Output)
		if err != nil {
			return nil, fmt.Errorf("open result log: %w", err)
		}
	}

	sink := telemetry.NewSink(agg, emitter)
	if opts.Capture {
		sink.Capture()
	}

	publisher, err := otelpub.NewPublisher(ctx, otelpub.ConfigFromAddr(cfg.OpenTelemetryAddr, cfg.Name), agg)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Attack{
		cfg:       cfg,
		opts:      opts,
		client:    client,
		pool:      NewWorkerPool(cfg.Workers),
		agg:       agg,
		sink:      sink,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// Metrics exposes the live aggregator.
func (a *Attack) Metrics() *telemetry.Aggregator {
	return a.agg
}

// Results returns the captured outcomes after Run, when Capture was set.
func (a *Attack) Results() []*models.Outcome {
	return a.sink.Results()
}

// Scheduled is the number of dispatched requests so far.
func (a *Attack) Scheduled() int64 {
	return a.scheduled.Load()
}

// Run paces, dispatches, drains, and finalizes. It returns an error for
// fatal sink failures and for under-delivery; per-exchange failures live in
// the result stream.
func (a *Attack) Run(ctx context.Context) error {
	if a.started.Swap(true) {
		return ErrAlreadyRun
	}

	a.logger.Info("attack started",
		"name", a.cfg.Name,
		"rate", a.cfg.Rate,
		"duration", a.cfg.Duration,
		"workers", a.cfg.Workers,
		"max_workers", a.cfg.MaxWorkers,
		"targets", len(a.opts.Targets),
	)

	a.sink.Start()
	a.publisher.Start(ctx)

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	if a.cfg.MaxWorkers > a.cfg.Workers {
		over := a.cfg.Duration
		if over <= 0 {
			over = config.DefaultRampDuration
		}
		go a.pool.Ramp(bgCtx, a.cfg.MaxWorkers, over)
	}
	go a.healthLoop(bgCtx)

	start := time.Now()
	pacer := newPacer(a.cfg.Rate, a.cfg.Duration)
	pacer.begin(start)
	defer pacer.stop()

	prog := newProgress(a.opts.Progress, start)

	var wg sync.WaitGroup
	for {
		if err := pacer.wait(ctx); err != nil {
			break
		}
		if pacer.done(a.scheduled.Load(), time.Now()) {
			break
		}

		n := a.scheduled.Load()
		prog.update(n, a.agg.ActiveWorkers(), "attacking")

		target := a.opts.Targets[n%int64(len(a.opts.Targets))].Clone()
		if len(target.Body) == 0 && len(a.opts.Body) > 0 {
			target.Body = a.opts.Body
		}
		if a.opts.Chunked && len(target.Body) > 0 {
			target.Headers = append(target.Headers, models.Header{Name: "Transfer-Encoding", Value: "chunked"})
		}
		target.Headers = append(target.Headers, a.opts.ProxyHeaders...)

		if err := a.pool.Acquire(ctx); err != nil {
			break
		}
		a.agg.WorkerStarted()

		wg.Add(1)
		go func(t models.Target) {
			defer wg.Done()
			defer a.pool.Release()
			defer a.agg.WorkerDone()

			a.sink.Deliver(exchange(ctx, a.client, t, a.opts.Headers, a.cfg))
		}(target)

		a.scheduled.Add(1)
	}

	drained := a.drain(prog)
	if drained {
		wg.Wait()
		prog.finish("attack completed")
	} else {
		prog.finish("attack completed (drain timed out)")
		a.logger.Warn("drain timed out; in-flight outcomes may be lost",
			"active_workers", a.agg.ActiveWorkers(),
			"deadline", a.cfg.DrainDeadline(),
		)
	}

	bgCancel()
	if err := a.publisher.Stop(context.WithoutCancel(ctx)); err != nil {
		a.logger.Warn("telemetry shutdown failed", "error", err)
	}

	sinkErr := a.sink.Close()

	snap := a.agg.Snapshot()
	a.logger.Info("attack completed",
		"scheduled", a.scheduled.Load(),
		"requests", snap.Requests,
		"success", snap.Success,
		"failure", snap.Failure,
		"timeouts", snap.Timeouts,
	)

	if sinkErr != nil {
		return fmt.Errorf("result sink: %w", sinkErr)
	}

	if expected := a.cfg.Expected(); expected >= 0 && ctx.Err() == nil {
		need := (1 - a.cfg.Tolerance) * float64(expected)
		if float64(a.scheduled.Load()) < need {
			return &UnderDeliveryError{
				Scheduled: a.scheduled.Load(),
				Expected:  expected,
				Tolerance: a.cfg.Tolerance,
			}
		}
	}

	return nil
}

// drain polls the active-worker gauge until it reaches zero or the drain
// deadline passes. The pool is not forcibly drained; exchanges complete
// under their own timeouts.
func (a *Attack) drain(prog *progress) bool {
	deadline := time.Now().Add(a.cfg.DrainDeadline())

	for {
		active := a.agg.ActiveWorkers()
		if active == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		prog.update(a.scheduled.Load(), active, "draining")
		time.Sleep(config.DrainPollInterval)
	}
}

func (a *Attack) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)

			cpuPercent := 0.0
			if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
				cpuPercent = pcts[0]
			}

			a.logger.Debug("engine health",
				"cpu_percent", cpuPercent,
				"mem_bytes", mem.Alloc,
				"active_workers", a.agg.ActiveWorkers(),
				"scheduled", a.scheduled.Load(),
				"pool_capacity", a.pool.Capacity(),
			)
		}
	}
}
