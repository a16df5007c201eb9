// Package report derives aggregate metrics and human-readable reports from
// a recorded outcome stream.
package report

import (
	"bufio"
	"encoding/json"
	"io"
	"math"
	"sort"
	"time"

	"github.com/muhadif/culverin/internal/models"
)

// ReadOutcomes parses a line-delimited JSON result stream. Lines that fail
// to parse are skipped.
func ReadOutcomes(r io.Reader) ([]models.Outcome, error) {
	var results []models.Outcome

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var o models.Outcome
		if err := json.Unmarshal(line, &o); err != nil {
			continue
		}
		results = append(results, o)
	}
	return results, sc.Err()
}

// Compute derives the final metrics from a set of outcomes. Duration is the
// wall-clock span between the first and last outcome timestamps.
func Compute(results []models.Outcome) *models.Metrics {
	m := &models.Metrics{}
	if len(results) == 0 {
		return m
	}

	latencies := make([]time.Duration, 0, len(results))
	first, last := results[0].Timestamp, results[0].Timestamp
	var sum time.Duration

	for i := range results {
		o := &results[i]
		m.Requests++
		if o.Success() {
			m.Success++
		}
		if o.TimedOut {
			m.Timeouts++
		}
		m.BytesIn += o.BytesIn
		m.BytesOut += o.BytesOut
		latencies = append(latencies, o.Latency)
		sum += o.Latency

		if o.Timestamp.Before(first) {
			first = o.Timestamp
		}
		if o.Timestamp.After(last) {
			last = o.Timestamp
		}
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	m.Duration = last.Sub(first)
	m.Min = latencies[0]
	m.Max = latencies[len(latencies)-1]
	m.Mean = sum / time.Duration(len(latencies))
	m.P50 = Percentile(latencies, 0.50)
	m.P90 = Percentile(latencies, 0.90)
	m.P95 = Percentile(latencies, 0.95)
	m.P99 = Percentile(latencies, 0.99)
	m.SuccessRate = float64(m.Success) / float64(m.Requests)
	if secs := m.Duration.Seconds(); secs > 0 {
		m.Rate = float64(m.Requests) / secs
	}
	return m
}

// Percentile picks the p-quantile from a sorted latency slice using the
// ceil(n*p)-1 rank.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
