package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/muhadif/culverin/internal/models"
)

func sampleResults() []models.Outcome {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []models.Outcome{
		{Timestamp: base, Latency: 10 * time.Millisecond, StatusCode: 200, BytesIn: 100, BytesOut: 10},
		{Timestamp: base.Add(250 * time.Millisecond), Latency: 20 * time.Millisecond, StatusCode: 200, BytesIn: 100, BytesOut: 10},
		{Timestamp: base.Add(500 * time.Millisecond), Latency: 30 * time.Millisecond, StatusCode: 503, BytesIn: 50, BytesOut: 10},
		{Timestamp: base.Add(750 * time.Millisecond), Latency: 500 * time.Millisecond, TimedOut: true, Error: "request timed out"},
	}
}

func TestCompute(t *testing.T) {
	m := Compute(sampleResults())

	if m.Requests != 4 {
		t.Errorf("Requests = %d, want 4", m.Requests)
	}
	if m.Success != 2 {
		t.Errorf("Success = %d, want 2", m.Success)
	}
	if m.Timeouts != 1 {
		t.Errorf("Timeouts = %d, want 1", m.Timeouts)
	}
	if m.Duration != 750*time.Millisecond {
		t.Errorf("Duration = %v, want 750ms", m.Duration)
	}
	if m.Min != 10*time.Millisecond || m.Max != 500*time.Millisecond {
		t.Errorf("Min/Max = %v/%v", m.Min, m.Max)
	}
	if m.Mean != 140*time.Millisecond {
		t.Errorf("Mean = %v, want 140ms", m.Mean)
	}
	if m.P50 != 20*time.Millisecond {
		t.Errorf("P50 = %v, want 20ms", m.P50)
	}
	if m.P99 != 500*time.Millisecond {
		t.Errorf("P99 = %v, want 500ms", m.P99)
	}
	if m.BytesIn != 250 || m.BytesOut != 30 {
		t.Errorf("bytes = %d/%d, want 250/30", m.BytesIn, m.BytesOut)
	}
	if m.SuccessRate != 0.5 {
		t.Errorf("SuccessRate = %f, want 0.5", m.SuccessRate)
	}
}

func TestComputeEmpty(t *testing.T) {
	m := Compute(nil)
	if m.Requests != 0 || m.Rate != 0 {
		t.Errorf("empty metrics should be zero: %+v", m)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	cases := []struct {
		p    float64
		want time.Duration
	}{
		{0.5, 5},
		{0.9, 9},
		{0.95, 10},
		{0.99, 10},
		{1.0, 10},
	}
	for _, tc := range cases {
		if got := Percentile(sorted, tc.p); got != tc.want {
			t.Errorf("Percentile(%.2f) = %d, want %d", tc.p, got, tc.want)
		}
	}

	if got := Percentile(nil, 0.5); got != 0 {
		t.Errorf("Percentile of empty slice = %d, want 0", got)
	}
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	if err := Text(&buf, sampleResults()); err != nil {
		t.Fatalf("Text failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Requests:\t4", "Success:\t2 (50.00%)", "Timeouts:\t1", "Bytes in:\t250B"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestHistogram(t *testing.T) {
	buckets, err := ParseBuckets("[0,15ms,100ms]")
	if err != nil {
		t.Fatalf("ParseBuckets failed: %v", err)
	}
	if len(buckets) != 3 || buckets[1] != 15*time.Millisecond {
		t.Fatalf("unexpected buckets: %v", buckets)
	}

	var buf bytes.Buffer
	if err := Histogram(&buf, sampleResults(), buckets); err != nil {
		t.Fatalf("Histogram failed: %v", err)
	}

	out := buf.String()
	// One latency below 15ms, two in [15ms, 100ms), one above.
	if !strings.Contains(out, "[0µs - 15.00ms]\t1") {
		t.Errorf("unexpected histogram:\n%s", out)
	}
	if !strings.Contains(out, "[100.00ms - inf]\t1") {
		t.Errorf("unexpected tail bucket:\n%s", out)
	}
}

func TestParseBucketsInvalid(t *testing.T) {
	for _, in := range []string{"", "[]", "[abc]"} {
		if _, err := ParseBuckets(in); err == nil {
			t.Errorf("ParseBuckets(%q) should fail", in)
		}
	}
}

func TestHDRPlot(t *testing.T) {
	var buf bytes.Buffer
	if err := HDRPlot(&buf, sampleResults()); err != nil {
		t.Fatalf("HDRPlot failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Percentile\tLatency") {
		t.Errorf("missing header:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "100.00%") {
		t.Errorf("missing 100th percentile row:\n%s", buf.String())
	}
}

func TestEncodeCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, sampleResults()); err != nil {
		t.Fatalf("EncodeCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header + 4 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "timestamp,latency,status_code") {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[3], "503") {
		t.Errorf("row 3 missing status: %q", lines[3])
	}
}

func TestEncodeUnsupported(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleResults(), "gob"); err == nil {
		t.Error("expected error for unsupported encoding")
	}
}

func TestPlotDownsamples(t *testing.T) {
	base := time.Now()
	results := make([]models.Outcome, 100)
	for i := range results {
		results[i] = models.Outcome{
			Timestamp:  base.Add(time.Duration(i) * time.Millisecond),
			Latency:    time.Millisecond,
			StatusCode: 200,
		}
	}

	var buf bytes.Buffer
	if err := Plot(&buf, results, 10, "Test Plot"); err != nil {
		t.Fatalf("Plot failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<title>Test Plot</title>") {
		t.Error("missing title")
	}
	if !strings.Contains(out, "latency-plot") || !strings.Contains(out, "status-plot") {
		t.Error("missing plot containers")
	}
	// 100 points over a threshold of 10 keep every 10th: 10 status points.
	if want := "y: [" + strings.TrimSuffix(strings.Repeat("200,", 10), ",") + "]"; !strings.Contains(out, want) {
		t.Errorf("expected 10 downsampled status points:\n%s", out)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Microsecond, "500µs"},
		{2500 * time.Microsecond, "2.50ms"},
		{1500 * time.Millisecond, "1.50s"},
		{90 * time.Second, "1m30.00s"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{512, "512B"},
		{2048, "2.00KB"},
		{3 * 1024 * 1024, "3.00MB"},
		{5 * 1024 * 1024 * 1024, "5.00GB"},
	}
	for _, tc := range cases {
		if got := FormatSize(tc.in); got != tc.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
