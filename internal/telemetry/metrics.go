package telemetry

import (
	"sync"

	"github.com/muhadif/culverin/internal/models"
)

// Snapshot is a point-in-time copy of the aggregator state. Latencies holds
// per-request samples in seconds, in completion order.
type Snapshot struct {
	Requests      int64
	Success       int64
	Failure       int64
	Timeouts      int64
	BytesIn       int64
	BytesOut      int64
	ActiveWorkers int64
	Latencies     []float64
}

// Aggregator is the mutex-guarded live view of a run. Counters are monotonic
// for the run's lifetime. Latency samples are retained in full: memory grows
// at 8 bytes per completed request.
type Aggregator struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Observe folds one completed outcome into the counters.
func (a *Aggregator) Observe(o *models.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.snap.Requests++
	switch o.Classify() {
	case models.ClassSuccess:
		a.snap.Success++
	case models.ClassTimeout:
		a.snap.Timeouts++
		a.snap.Failure++
	default:
		a.snap.Failure++
	}
	a.snap.BytesIn += o.BytesIn
	a.snap.BytesOut += o.BytesOut
	a.snap.Latencies = append(a.snap.Latencies, o.Latency.Seconds())
}

// WorkerStarted increments the active-worker gauge.
func (a *Aggregator) WorkerStarted() {
	a.mu.Lock()
	a.snap.ActiveWorkers++
	a.mu.Unlock()
}

// WorkerDone decrements the active-worker gauge.
func (a *Aggregator) WorkerDone() {
	a.mu.Lock()
	a.snap.ActiveWorkers--
	a.mu.Unlock()
}

func (a *Aggregator) ActiveWorkers() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap.ActiveWorkers
}

func (a *Aggregator) Requests() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap.Requests
}

// Snapshot returns a clone safe to read without the lock: scalars plus a
// copy of the latency vector.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := a.snap
	snap.Latencies = make([]float64, len(a.snap.Latencies))
	copy(snap.Latencies, a.snap.Latencies)
	return snap
}
