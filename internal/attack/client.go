// Package attack implements the rate-paced HTTP load engine: pacer, worker
// pool, exchanger, dispatcher, and drain.
package attack

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/muhadif/culverin/internal/config"
)

// NewClient builds the shared HTTP client from the attack config. The
// client carries no overall timeout; the exchanger enforces the per-request
// deadline so the body read can get its own clock.
func NewClient(cfg *config.AttackConfig) (*http.Client, error) {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	if cfg.LocalAddr != "" && cfg.LocalAddr != "0.0.0.0" {
		ip := net.ParseIP(cfg.LocalAddr)
		if ip == nil {
			return nil, fmt.Errorf("parse local address %q", cfg.LocalAddr)
		}
		dialer.LocalAddr = &net.TCPAddr{IP: ip}
	}

	var rt http.RoundTripper
	if cfg.H2C {
		rt = &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
		}
	} else {
		transport := &http.Transport{
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.Insecure},
			MaxIdleConns:        cfg.Connections,
			MaxIdleConnsPerHost: cfg.Connections,
			MaxConnsPerHost:     cfg.MaxConnections,
			IdleConnTimeout:     90 * time.Second,
			DisableKeepAlives:   !cfg.KeepAlive,
			ForceAttemptHTTP2:   cfg.HTTP2,
			DialContext:         dialer.DialContext,
		}
		if cfg.HTTP2 {
			// ALPN negotiation with HTTP/1.1 fallback.
			_ = http2.ConfigureTransport(transport)
		}
		rt = transport
	}

	return &http.Client{
		Transport:     rt,
		CheckRedirect: redirectPolicy(cfg.Redirects),
	}, nil
}

// redirectPolicy maps the hop count to a CheckRedirect func: negative means
// do not follow (the first response is returned as-is), zero or positive
// means follow up to that many hops.
func redirectPolicy(redirects int) func(*http.Request, []*http.Request) error {
	if redirects < 0 {
		return func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > redirects {
			return fmt.Errorf("stopped after %d redirects", redirects)
		}
		return nil
	}
}
