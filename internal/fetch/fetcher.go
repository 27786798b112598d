// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fetch retrieves remote manifests and fragments under hard size and
// time ceilings. It never retries; callers decide what a failure means.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/log"
	"github.com/ManuGH/streamview/internal/metrics"
	platformnet "github.com/ManuGH/streamview/internal/platform/net"
	"github.com/ManuGH/streamview/internal/version"
)

// Limits bounds one transfer.
type Limits struct {
	MaxBytes int64
	Timeout  time.Duration
}

var (
	ManifestLimits = Limits{MaxBytes: 10 << 20, Timeout: 30 * time.Second}
	FragmentLimits = Limits{MaxBytes: 50 << 20, Timeout: 10 * time.Second}
)

// Range is an inclusive byte range. A negative End means "to the end".
type Range struct {
	Start int64
	End   int64
}

// String renders the Range header value.
func (r Range) String() string {
	if r.End < 0 {
		return "bytes=" + strconv.FormatInt(r.Start, 10) + "-"
	}
	return "bytes=" + strconv.FormatInt(r.Start, 10) + "-" + strconv.FormatInt(r.End, 10)
}

// Request names one resource to retrieve.
type Request struct {
	URL    string
	Range  *Range
	Target string // metrics label, defaults to fragment
}

// Response describes a completed transfer.
type Response struct {
	URL         string // final URL after redirects
	StatusCode  int
	ContentType string
	Elapsed     time.Duration
}

// Getter is implemented by *Fetcher. Locators and the probe orchestrator depend on it.
type Getter interface {
	Fetch(ctx context.Context, req Request, limits Limits) ([]byte, Response, error)
}

// Fetcher performs bounded GETs through a guarded client.
type Fetcher struct {
	client    *http.Client
	policy    *platformnet.OutboundPolicy
	userAgent string
}

// New returns a Fetcher. client should come from httpx.NewGuardedClient with the same policy.
func New(client *http.Client, policy *platformnet.OutboundPolicy) *Fetcher {
	return &Fetcher{client: client, policy: policy, userAgent: version.UserAgent()}
}

// Fetch downloads req.URL. The body is discarded on any failure.
func (f *Fetcher) Fetch(ctx context.Context, req Request, limits Limits) ([]byte, Response, error) {
	target := req.Target
	if target == "" {
		target = metrics.TargetFragment
	}
	start := time.Now()
	body, resp, err := f.fetch(ctx, req, limits)
	resp.Elapsed = time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = analysis.ErrorKind(err)
	}
	metrics.RecordFetch(target, outcome, resp.Elapsed, len(body))

	logger := log.WithComponentFromContext(ctx, "fetch")
	if err != nil {
		logger.Debug().
			Str(log.FieldEvent, "fetch.failed").
			Str(log.FieldURL, platformnet.SanitizeURL(req.URL)).
			Str(log.FieldErrorKind, outcome).
			Err(err).
			Msg("fetch failed")
		return nil, resp, err
	}
	logger.Debug().
		Str(log.FieldEvent, "fetch.completed").
		Str(log.FieldURL, platformnet.SanitizeURL(req.URL)).
		Int(log.FieldBytes, len(body)).
		Int64(log.FieldDurationMS, resp.Elapsed.Milliseconds()).
		Msg("fetch completed")
	return body, resp, nil
}

func (f *Fetcher) fetch(ctx context.Context, req Request, limits Limits) ([]byte, Response, error) {
	var resp Response
	u, err := platformnet.ParseHTTPURL(req.URL)
	if err != nil {
		return nil, resp, &analysis.ValidationError{Field: "url", Reason: "not an absolute http(s) url", Err: err}
	}
	safeURL := platformnet.SanitizeURL(u.String())
	fail := func(kind analysis.FetchKind, status int, cause error) error {
		return &analysis.FetchError{Kind: kind, URL: safeURL, StatusCode: status, Err: cause}
	}

	ctx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	if f.policy != nil {
		if err := f.policy.CheckHost(ctx, u.Hostname()); err != nil {
			if errors.Is(err, platformnet.ErrBlockedTarget) {
				return nil, resp, fail(analysis.FetchSsrfBlocked, 0, err)
			}
			return nil, resp, fail(classifyTransport(ctx, err), 0, err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, resp, &analysis.ValidationError{Field: "url", Reason: "cannot build request", Err: err}
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	if req.Range != nil {
		httpReq.Header.Set("Range", req.Range.String())
	}

	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, platformnet.ErrBlockedTarget) {
			return nil, resp, fail(analysis.FetchSsrfBlocked, 0, err)
		}
		return nil, resp, fail(classifyTransport(ctx, err), 0, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	resp.URL = httpResp.Request.URL.String()
	resp.StatusCode = httpResp.StatusCode
	resp.ContentType = httpResp.Header.Get("Content-Type")

	switch {
	case httpResp.StatusCode == http.StatusNotFound || httpResp.StatusCode == http.StatusGone:
		return nil, resp, fail(analysis.FetchNotFound, httpResp.StatusCode, nil)
	case httpResp.StatusCode < 200 || httpResp.StatusCode > 299:
		return nil, resp, fail(analysis.FetchNetworkRefused, httpResp.StatusCode, nil)
	}

	var src io.Reader = httpResp.Body
	if req.Range != nil && httpResp.StatusCode != http.StatusPartialContent {
		// the server ignored Range and sent the whole resource; cut the window out
		if _, err := io.CopyN(io.Discard, httpResp.Body, req.Range.Start); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, resp, fail(analysis.FetchNetworkRefused, httpResp.StatusCode,
					fmt.Errorf("body ended before range start %d", req.Range.Start))
			}
			return nil, resp, fail(classifyTransport(ctx, err), httpResp.StatusCode, err)
		}
		if req.Range.End >= 0 {
			src = io.LimitReader(httpResp.Body, req.Range.End-req.Range.Start+1)
		}
	} else if httpResp.ContentLength > limits.MaxBytes {
		return nil, resp, fail(analysis.FetchTooLarge, httpResp.StatusCode,
			fmt.Errorf("declared %d bytes exceeds limit %d", httpResp.ContentLength, limits.MaxBytes))
	}

	body, err := io.ReadAll(io.LimitReader(src, limits.MaxBytes+1))
	if err != nil {
		return nil, resp, fail(classifyTransport(ctx, err), httpResp.StatusCode, err)
	}
	if int64(len(body)) > limits.MaxBytes {
		return nil, resp, fail(analysis.FetchTooLarge, httpResp.StatusCode,
			fmt.Errorf("body exceeds limit %d", limits.MaxBytes))
	}
	return body, resp, nil
}

// classifyTransport maps a transport-level failure to a fetch kind.
func classifyTransport(ctx context.Context, err error) analysis.FetchKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return analysis.FetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return analysis.FetchTimeout
	}
	return analysis.FetchNetworkRefused
}
