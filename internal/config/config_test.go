package config

import (
	"testing"
	"time"
)

func TestParseRate(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"50/1s", 50},
		{"1/1s", 1},
		{"100/2s", 50},
		{"500/1m", 500.0 / 60},
		{"10/500ms", 20},
		{"0/1s", 0},
	}

	for _, tc := range cases {
		got, err := ParseRate(tc.in)
		if err != nil {
			t.Fatalf("ParseRate(%q) failed: %v", tc.in, err)
		}
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("ParseRate(%q) = %f, want %f", tc.in, got, tc.want)
		}
	}
}

func TestParseRateInvalid(t *testing.T) {
	for _, in := range []string{"", "50", "50/", "/1s", "abc/1s", "50/abc", "50/0s", "50/-1s"} {
		if _, err := ParseRate(in); err == nil {
			t.Errorf("ParseRate(%q) should fail", in)
		}
	}
}

func TestNormalize(t *testing.T) {
	c := &AttackConfig{}
	c.Normalize()

	if c.Workers <= 0 {
		t.Errorf("expected workers defaulted to CPU count, got %d", c.Workers)
	}
	if c.MaxWorkers != c.Workers {
		t.Errorf("expected max workers raised to workers, got %d", c.MaxWorkers)
	}
	if c.HTTPTimeout != DefaultHTTPTimeout {
		t.Errorf("expected default http timeout, got %v", c.HTTPTimeout)
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	c := &AttackConfig{Workers: 4, MaxWorkers: 16, HTTPTimeout: time.Second}
	c.Normalize()

	if c.Workers != 4 || c.MaxWorkers != 16 || c.HTTPTimeout != time.Second {
		t.Errorf("Normalize mutated explicit values: %+v", c)
	}
}

func TestExpected(t *testing.T) {
	cases := []struct {
		rate     float64
		duration time.Duration
		want     int64
	}{
		{10, time.Second, 10},
		{20, time.Second, 20},
		{4, time.Second, 4},
		{2.5, 2 * time.Second, 5},
		{100, time.Millisecond, 0},
		{0, time.Second, -1},
		{10, 0, -1},
	}

	for _, tc := range cases {
		c := &AttackConfig{Rate: tc.rate, Duration: tc.duration}
		if got := c.Expected(); got != tc.want {
			t.Errorf("Expected() with rate=%f duration=%v = %d, want %d", tc.rate, tc.duration, got, tc.want)
		}
	}
}

func TestDrainDeadline(t *testing.T) {
	c := &AttackConfig{HTTPTimeout: 5 * time.Second, Timeout: 30 * time.Second}
	if got := c.DrainDeadline(); got != 30*time.Second {
		t.Errorf("DrainDeadline() = %v, want 30s", got)
	}

	c = &AttackConfig{HTTPTimeout: 30 * time.Second, Timeout: 5 * time.Second}
	if got := c.DrainDeadline(); got != 30*time.Second {
		t.Errorf("DrainDeadline() = %v, want 30s", got)
	}
}
