// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpx

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	platformnet "github.com/ManuGH/streamview/internal/platform/net"
)

const (
	defaultClientTimeout         = 5 * time.Second
	defaultDialTimeout           = 3 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 16
	defaultMaxIdleConnsPerHost   = 4

	// DefaultMaxRedirects bounds redirect chains on guarded clients.
	DefaultMaxRedirects = 10
)

// ErrTooManyRedirects is returned when a redirect chain exceeds the hop limit.
var ErrTooManyRedirects = errors.New("too many redirects")

// NewClient returns a hardened HTTP client for runtime and ops probes.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	dialTimeout := timeout
	if dialTimeout > defaultDialTimeout {
		dialTimeout = defaultDialTimeout
	}

	responseHeaderTimeout := timeout
	if responseHeaderTimeout > defaultResponseHeaderTimeout {
		responseHeaderTimeout = defaultResponseHeaderTimeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          defaultMaxIdleConns,
			MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   dialTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			ExpectContinueTimeout: defaultExpectContinueTimeout,
		},
	}
}

// GuardOptions configures NewGuardedClient.
type GuardOptions struct {
	Policy       *platformnet.OutboundPolicy
	MaxRedirects int
	// Trace wraps the transport with otelhttp.
	Trace bool
}

// NewGuardedClient returns a client for untrusted destinations. Every dialed
// address is checked against the outbound policy and every redirect hop is
// re-validated. It sets no client timeout; callers bound requests by context.
// No proxy is used so the dial check sees the real destination.
func NewGuardedClient(opts GuardOptions) *http.Client {
	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}

	dialer := &net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}
	if opts.Policy != nil {
		dialer.Control = opts.Policy.DialControl
	}

	var transport http.RoundTripper = &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultDialTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}
	if opts.Trace {
		transport = otelhttp.NewTransport(transport)
	}

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("%w: %d hops", ErrTooManyRedirects, len(via))
			}
			if _, err := platformnet.ParseHTTPURL(req.URL.String()); err != nil {
				return fmt.Errorf("redirect target: %w", err)
			}
			if opts.Policy != nil {
				if err := opts.Policy.CheckHost(req.Context(), req.URL.Hostname()); err != nil {
					return fmt.Errorf("redirect target: %w", err)
				}
			}
			return nil
		},
	}
}
