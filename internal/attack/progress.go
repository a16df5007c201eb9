package attack

import (
	"fmt"
	"io"
	"time"
)

const progressMinInterval = 100 * time.Millisecond

// progress renders a single in-place status line. A nil writer disables it.
type progress struct {
	w     io.Writer
	start time.Time
	last  time.Time
	dirty bool
}

func newProgress(w io.Writer, start time.Time) *progress {
	return &progress{w: w, start: start}
}

func (p *progress) update(scheduled int64, active int64, msg string) {
	if p.w == nil {
		return
	}
	now := time.Now()
	if now.Sub(p.last) < progressMinInterval {
		return
	}
	p.last = now
	p.dirty = true

	elapsed := now.Sub(p.start).Truncate(time.Second)
	fmt.Fprintf(p.w, "\r[%s] scheduled=%d active=%d %s\x1b[K", elapsed, scheduled, active, msg)
}

func (p *progress) finish(msg string) {
	if p.w == nil || !p.dirty {
		return
	}
	fmt.Fprintf(p.w, "\r%s\x1b[K\n", msg)
}
