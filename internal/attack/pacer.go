package attack

import (
	"context"
	"time"
)

// pacer emits one scheduling slot every 1/rate seconds and decides when
// pacing ends. With rate <= 0 slots fire with zero delay, as fast as
// dispatch and worker availability allow.
type pacer struct {
	interval time.Duration
	expected int64 // floor(rate * duration); -1 when not computable
	duration time.Duration
	start    time.Time
	ticker   *time.Ticker
}

func newPacer(rate float64, duration time.Duration) *pacer {
	p := &pacer{expected: -1, duration: duration}
	if rate > 0 {
		p.interval = time.Duration(float64(time.Second) / rate)
		if duration > 0 {
			p.expected = int64(rate * duration.Seconds())
		}
	}
	return p
}

func (p *pacer) begin(now time.Time) {
	p.start = now
	if p.interval > 0 {
		p.ticker = time.NewTicker(p.interval)
	}
}

func (p *pacer) stop() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
}

// wait blocks until the next slot. Unpaced runs return immediately.
func (p *pacer) wait(ctx context.Context) error {
	if p.ticker == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ticker.C:
		return nil
	}
}

// done reports whether pacing should terminate, checked each slot:
// the promised request count when it is computable, the wall clock when
// only a duration is known, never otherwise. Preferring the scheduled
// count over the clock means a back-pressured run still sends every
// request it promised.
func (p *pacer) done(scheduled int64, now time.Time) bool {
	if p.expected >= 0 {
		return scheduled >= p.expected
	}
	if p.duration > 0 {
		return !now.Before(p.start.Add(p.duration))
	}
	return false
}
