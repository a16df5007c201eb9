package attack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/muhadif/culverin/internal/config"
	"github.com/muhadif/culverin/internal/models"
)

// exchange performs one HTTP request and produces exactly one Outcome.
// Failures are encoded in the Outcome, never returned.
//
// The send phase runs under a deadline of HTTPTimeout; once headers arrive
// the body read gets a fresh clock of the same length.
func exchange(ctx context.Context, client *http.Client, target models.Target, global []models.Header, cfg *config.AttackConfig) *models.Outcome {
	start := time.Now()
	out := &models.Outcome{
		Timestamp: start,
		Target:    target,
		BytesOut:  int64(len(target.Body)),
	}

	var body io.Reader
	if len(target.Body) > 0 {
		body = bytes.NewReader(target.Body)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var deadlined atomic.Bool
	timer := time.AfterFunc(cfg.HTTPTimeout, func() {
		deadlined.Store(true)
		cancel()
	})
	defer timer.Stop()

	// Unknown methods are attempted verbatim.
	req, err := http.NewRequestWithContext(reqCtx, target.Method, target.URL, body)
	if err != nil {
		out.Latency = monotonic(start)
		out.Error = fmt.Sprintf("invalid request: %v", err)
		return out
	}

	applyHeaders(req, target.Headers)
	applyHeaders(req, global)

	resp, err := client.Do(req)
	if err != nil {
		out.Latency = monotonic(start)
		if deadlined.Load() {
			out.TimedOut = true
			out.Error = fmt.Sprintf("request timed out after %s", cfg.HTTPTimeout)
			return out
		}
		out.TimedOut = isTimeout(err)
		out.Error = fmt.Sprintf("request failed: %v", err)
		return out
	}

	out.StatusCode = resp.StatusCode

	timer.Reset(cfg.HTTPTimeout)
	n, err := io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	out.Latency = monotonic(start)

	if err != nil {
		if deadlined.Load() {
			out.TimedOut = true
			out.Error = fmt.Sprintf("response body read timed out after %s", cfg.HTTPTimeout)
		} else {
			out.Error = fmt.Sprintf("failed to read response body: %v", err)
		}
		return out
	}

	if cfg.MaxBody >= 0 && n > cfg.MaxBody {
		n = cfg.MaxBody
	}
	out.BytesIn = n
	return out
}

// applyHeaders maps Host and Transfer-Encoding: chunked onto the request
// fields, since net/http does not send those two from req.Header.
func applyHeaders(req *http.Request, headers []models.Header) {
	for _, h := range headers {
		if strings.EqualFold(h.Name, "Host") {
			req.Host = h.Value
			continue
		}
		if strings.EqualFold(h.Name, "Transfer-Encoding") && strings.EqualFold(h.Value, "chunked") {
			req.TransferEncoding = []string{"chunked"}
			continue
		}
		req.Header.Add(h.Name, h.Value)
	}
}

// monotonic guarantees a nonzero latency even for instant local failures.
func monotonic(start time.Time) time.Duration {
	if d := time.Since(start); d > 0 {
		return d
	}
	return time.Nanosecond
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
