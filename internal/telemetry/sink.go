// Package telemetry carries completed outcomes from exchange tasks to the
// durable result log and the in-run metrics aggregator.
package telemetry

import (
	"sync"
	"sync/atomic"

	"github.com/muhadif/culverin/internal/config"
	"github.com/muhadif/culverin/internal/models"
)

// Sink is the single consumer of the multi-producer outcome stream. The
// queue is bounded; when it fills, Deliver blocks, which holds worker
// permits longer and slows dispatch.
type Sink struct {
	ch      chan *models.Outcome
	agg     *Aggregator
	emitter *Emitter

	capture bool
	mu      sync.Mutex
	results []*models.Outcome

	stop    chan struct{}
	done    chan struct{}
	started atomic.Bool
	closed  atomic.Bool

	writeErr  atomic.Value
	writeDead atomic.Bool
}

// NewSink builds a sink feeding agg. emitter may be nil, in which case
// outcomes are consumed and discarded after aggregation.
func NewSink(agg *Aggregator, emitter *Emitter) *Sink {
	return &Sink{
		ch:      make(chan *models.Outcome, config.DefaultResultBufferSize),
		agg:     agg,
		emitter: emitter,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Capture retains every consumed outcome in memory for Results.
func (s *Sink) Capture() {
	s.capture = true
}

// Start launches the consumer.
func (s *Sink) Start() {
	if s.started.Swap(true) {
		return
	}
	go s.consume()
}

func (s *Sink) consume() {
	defer close(s.done)

	for {
		select {
		case o := <-s.ch:
			s.handle(o)
		case <-s.stop:
			for {
				select {
				case o := <-s.ch:
					s.handle(o)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) handle(o *models.Outcome) {
	s.agg.Observe(o)

	if s.capture {
		s.mu.Lock()
		s.results = append(s.results, o)
		s.mu.Unlock()
	}

	// A failed write latches: aggregation continues so producers never
	// block on a dead log, and the error surfaces from Close.
	if s.emitter != nil && !s.writeDead.Load() {
		if err := s.emitter.Emit(o); err != nil {
			s.writeErr.Store(err)
			s.writeDead.Store(true)
		}
	}
}

// Deliver enqueues one outcome, blocking while the queue is full. After the
// sink stops, outcomes are dropped; this only happens on the drain-timeout
// path.
func (s *Sink) Deliver(o *models.Outcome) {
	select {
	case s.ch <- o:
	case <-s.stop:
	}
}

// Close drains the queue, flushes the log, and returns the first write
// error, if any.
func (s *Sink) Close() error {
	if s.closed.Swap(true) {
		return s.err()
	}

	close(s.stop)
	<-s.done

	if s.emitter != nil {
		if err := s.emitter.Close(); err != nil && s.writeErr.Load() == nil {
			s.writeErr.Store(err)
		}
	}
	return s.err()
}

// Results returns the captured outcomes. Only meaningful after Close when
// Capture was enabled.
func (s *Sink) Results() []*models.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

func (s *Sink) err() error {
	if v := s.writeErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}
