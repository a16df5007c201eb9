package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/muhadif/culverin/internal/models"
	"github.com/muhadif/culverin/internal/telemetry"
)

// Text writes the tabular report for a result stream.
func Text(w io.Writer, results []models.Outcome) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "No results to report")
		return err
	}

	m := Compute(results)

	fmt.Fprintf(w, "Requests:\t%d\n", m.Requests)
	fmt.Fprintf(w, "Duration:\t%s\n", FormatDuration(m.Duration))
	fmt.Fprintf(w, "Rate:\t\t%.2f req/s\n", m.Rate)
	fmt.Fprintf(w, "Success:\t%d (%.2f%%)\n", m.Success, m.SuccessRate*100)
	fmt.Fprintf(w, "Timeouts:\t%d\n", m.Timeouts)
	fmt.Fprintf(w, "Min:\t\t%s\n", FormatDuration(m.Min))
	fmt.Fprintf(w, "Mean:\t\t%s\n", FormatDuration(m.Mean))
	fmt.Fprintf(w, "50th percentile:\t%s\n", FormatDuration(m.P50))
	fmt.Fprintf(w, "90th percentile:\t%s\n", FormatDuration(m.P90))
	fmt.Fprintf(w, "95th percentile:\t%s\n", FormatDuration(m.P95))
	fmt.Fprintf(w, "99th percentile:\t%s\n", FormatDuration(m.P99))
	fmt.Fprintf(w, "Max:\t\t%s\n", FormatDuration(m.Max))
	fmt.Fprintf(w, "Bytes in:\t%s\n", FormatSize(m.BytesIn))
	_, err := fmt.Fprintf(w, "Bytes out:\t%s\n", FormatSize(m.BytesOut))
	return err
}

// JSON writes the metrics as an indented JSON document.
func JSON(w io.Writer, results []models.Outcome) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "{}")
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Compute(results))
}

// Histogram writes latency bucket counts. Each bucket value closes a
// half-open bin that starts at the previous value (0 for the first); a
// final bin runs from the last value to infinity.
func Histogram(w io.Writer, results []models.Outcome, buckets []time.Duration) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "No results to report")
		return err
	}

	fmt.Fprintln(w, "Bucket\t\tCount\t\tPercentage")

	total := float64(len(results))
	prev := time.Duration(0)
	count := func(lo, hi time.Duration, unbounded bool) int {
		n := 0
		for i := range results {
			lat := results[i].Latency
			if lat >= lo && (unbounded || lat < hi) {
				n++
			}
		}
		return n
	}

	for _, b := range buckets {
		n := count(prev, b, false)
		fmt.Fprintf(w, "[%s - %s]\t%d\t\t%.2f%%\n",
			FormatDuration(prev), FormatDuration(b), n, float64(n)/total*100)
		prev = b
	}

	n := count(prev, 0, true)
	_, err := fmt.Fprintf(w, "[%s - inf]\t%d\t\t%.2f%%\n",
		FormatDuration(prev), n, float64(n)/total*100)
	return err
}

// HDRPlot writes a percentile table suited to HDR-style plotting tools.
func HDRPlot(w io.Writer, results []models.Outcome) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "No results to report")
		return err
	}

	latencies := make([]time.Duration, len(results))
	for i := range results {
		latencies[i] = results[i].Latency
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	percentiles := []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 99, 99.9, 99.99, 100}

	fmt.Fprintln(w, "Percentile\tLatency")
	for _, p := range percentiles {
		if _, err := fmt.Fprintf(w, "%.2f%%\t\t%s\n", p, FormatDuration(Percentile(latencies, p/100))); err != nil {
			return err
		}
	}
	return nil
}

// ParseBuckets parses a bucket list like "[0,1ms,10ms]".
func ParseBuckets(s string) ([]time.Duration, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "["), "]")
	if inner == "" {
		return nil, fmt.Errorf("empty bucket list %q", s)
	}

	var buckets []time.Duration
	for _, part := range strings.Split(inner, ",") {
		part = strings.TrimSpace(part)
		if part == "0" {
			buckets = append(buckets, 0)
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("invalid bucket duration %q: %w", part, err)
		}
		buckets = append(buckets, d)
	}
	return buckets, nil
}

// WriteSummary prints the end-of-run summary from a live snapshot.
func WriteSummary(w io.Writer, snap telemetry.Snapshot) {
	successRate := 0.0
	avg := time.Duration(0)
	if snap.Requests > 0 {
		successRate = float64(snap.Success) / float64(snap.Requests)
	}
	if len(snap.Latencies) > 0 {
		var sum float64
		for _, s := range snap.Latencies {
			sum += s
		}
		avg = time.Duration(sum / float64(len(snap.Latencies)) * float64(time.Second))
	}

	fmt.Fprintf(w, "Requests:\t%d\n", snap.Requests)
	fmt.Fprintf(w, "Success:\t%d (%.2f%%)\n", snap.Success, successRate*100)
	fmt.Fprintf(w, "Failure:\t%d\n", snap.Failure)
	fmt.Fprintf(w, "Timeouts:\t%d\n", snap.Timeouts)
	fmt.Fprintf(w, "Avg latency:\t%s\n", FormatDuration(avg))
	fmt.Fprintf(w, "Bytes in:\t%s\n", FormatSize(snap.BytesIn))
	fmt.Fprintf(w, "Bytes out:\t%s\n", FormatSize(snap.BytesOut))
}
