package telemetry_test

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muhadif/culverin/internal/models"
	"github.com/muhadif/culverin/internal/report"
	"github.com/muhadif/culverin/internal/telemetry"
)

func TestSinkDeliversToLogAndAggregator(t *testing.T) {
	var buf bytes.Buffer
	agg := telemetry.NewAggregator()
	sink := telemetry.NewSink(agg, telemetry.NewEmitterWithWriter(&buf))
	sink.Start()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := 200
			if i%5 == 0 {
				status = 503
			}
			sink.Deliver(&models.Outcome{
				Timestamp:  time.Now(),
				Latency:    time.Duration(i+1) * time.Millisecond,
				StatusCode: status,
				Target:     models.Target{Method: "GET", URL: "http://example.com/"},
				BytesIn:    10,
				BytesOut:   2,
			})
		}(i)
	}
	wg.Wait()

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	lines := strings.Count(buf.String(), "\n")
	if lines != 50 {
		t.Errorf("expected 50 JSONL lines, got %d", lines)
	}

	snap := agg.Snapshot()
	if snap.Requests != 50 || snap.Success != 40 || snap.Failure != 10 {
		t.Errorf("unexpected counters: %+v", snap)
	}
}

// Reading the log back and re-deriving metrics must match the in-run
// aggregator.
func TestSinkRoundTripMatchesAggregator(t *testing.T) {
	var buf bytes.Buffer
	agg := telemetry.NewAggregator()
	sink := telemetry.NewSink(agg, telemetry.NewEmitterWithWriter(&buf))
	sink.Start()

	outcomes := []*models.Outcome{
		{Timestamp: time.Now(), Latency: 5 * time.Millisecond, StatusCode: 200, BytesIn: 100, BytesOut: 10},
		{Timestamp: time.Now(), Latency: 15 * time.Millisecond, StatusCode: 204, BytesIn: 0, BytesOut: 0},
		{Timestamp: time.Now(), Latency: 25 * time.Millisecond, StatusCode: 500, BytesIn: 20, BytesOut: 10},
		{Timestamp: time.Now(), Latency: 300 * time.Millisecond, TimedOut: true, Error: "request timed out"},
	}
	for _, o := range outcomes {
		o.Target = models.Target{Method: "GET", URL: "http://example.com/"}
		sink.Deliver(o)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	read, err := report.ReadOutcomes(&buf)
	if err != nil {
		t.Fatalf("ReadOutcomes failed: %v", err)
	}
	m := report.Compute(read)

	snap := agg.Snapshot()
	if int64(m.Requests) != snap.Requests {
		t.Errorf("requests: log %d, aggregator %d", m.Requests, snap.Requests)
	}
	if int64(m.Success) != snap.Success {
		t.Errorf("success: log %d, aggregator %d", m.Success, snap.Success)
	}
	if int64(m.Timeouts) != snap.Timeouts {
		t.Errorf("timeouts: log %d, aggregator %d", m.Timeouts, snap.Timeouts)
	}
	if m.BytesIn != snap.BytesIn || m.BytesOut != snap.BytesOut {
		t.Errorf("bytes: log %d/%d, aggregator %d/%d", m.BytesIn, m.BytesOut, snap.BytesIn, snap.BytesOut)
	}
}

func TestSinkWriteErrorSurfacesFromClose(t *testing.T) {
	agg := telemetry.NewAggregator()
	sink := telemetry.NewSink(agg, telemetry.NewEmitterWithWriter(failingWriter{}))
	sink.Start()

	// The emitter buffer is 64KiB; oversized payloads force a write-through.
	big := make([]byte, 128*1024)
	for i := 0; i < 3; i++ {
		sink.Deliver(&models.Outcome{
			Timestamp: time.Now(),
			Latency:   time.Millisecond,
			Target:    models.Target{Method: "POST", URL: "http://example.com/", Body: big},
		})
	}

	if err := sink.Close(); err == nil {
		t.Fatal("expected write error from Close")
	}

	// Aggregation keeps going after the log dies.
	if got := agg.Snapshot().Requests; got != 3 {
		t.Errorf("Requests = %d, want 3", got)
	}
}

func TestSinkCapture(t *testing.T) {
	agg := telemetry.NewAggregator()
	sink := telemetry.NewSink(agg, nil)
	sink.Capture()
	sink.Start()

	for i := 0; i < 5; i++ {
		sink.Deliver(&models.Outcome{Timestamp: time.Now(), Latency: time.Millisecond, StatusCode: 200})
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := len(sink.Results()); got != 5 {
		t.Errorf("captured %d outcomes, want 5", got)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}
