// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline runs one analysis end to end: fetch, detect, normalize,
// decode markers, classify protection, probe fragments, assemble.
package pipeline

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/drm"
	"github.com/ManuGH/streamview/internal/fetch"
	"github.com/ManuGH/streamview/internal/log"
	"github.com/ManuGH/streamview/internal/manifest"
	"github.com/ManuGH/streamview/internal/manifest/dash"
	"github.com/ManuGH/streamview/internal/manifest/hls"
	"github.com/ManuGH/streamview/internal/metrics"
	platformnet "github.com/ManuGH/streamview/internal/platform/net"
	"github.com/ManuGH/streamview/internal/probe"
	"github.com/ManuGH/streamview/internal/scte35"
	"github.com/ManuGH/streamview/internal/telemetry"
)

// RequestDeadline bounds one whole analysis.
const RequestDeadline = 90 * time.Second

// Options tune an Analyzer. The zero value probes with defaults.
type Options struct {
	// SkipProbe disables fragment probing entirely.
	SkipProbe bool
	// ProbeCount is the number of levels probed, clamped to [1, 10]. Zero means the maximum.
	ProbeCount int
	// Deadline overrides RequestDeadline when positive.
	Deadline time.Duration
	// Clock feeds live DASH segment numbering. Defaults to time.Now.
	Clock func() time.Time
}

// Analyzer holds only immutable collaborators and is safe for concurrent use.
type Analyzer struct {
	getter       fetch.Getter
	orchestrator *probe.Orchestrator
	normalizers  map[manifest.Format]manifest.Normalizer
	skipProbe    bool
	deadline     time.Duration
}

// New wires an Analyzer. A nil prober disables probing.
func New(getter fetch.Getter, prober probe.Prober, opts Options) *Analyzer {
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = RequestDeadline
	}
	var dashOpts []dash.Option
	if opts.Clock != nil {
		dashOpts = append(dashOpts, dash.WithClock(opts.Clock))
	}
	a := &Analyzer{
		getter: getter,
		normalizers: map[manifest.Format]manifest.Normalizer{
			manifest.HLS:  hls.New(),
			manifest.DASH: dash.New(dashOpts...),
		},
		skipProbe: opts.SkipProbe || prober == nil,
		deadline:  deadline,
	}
	if !a.skipProbe {
		var probeOpts []probe.Option
		if opts.ProbeCount > 0 {
			probeOpts = append(probeOpts, probe.WithProbeCount(opts.ProbeCount))
		}
		a.orchestrator = probe.NewOrchestrator(getter, prober, probeOpts...)
	}
	return a
}

// Analyze turns one manifest URL into a Result. Only validation, the initial
// manifest fetch and parsing are fatal; marker, DRM and probe problems are
// absorbed into the result.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string) (res *analysis.Result, err error) {
	start := time.Now()
	manifestType := ""
	ctx, span := telemetry.StartSpan(ctx, "analysis")
	logger := log.WithComponentFromContext(ctx, "pipeline")
	defer func() {
		kind := analysis.ErrorKind(err)
		outcome := "ok"
		if err != nil {
			outcome = kind
			logger.Warn().
				Str(log.FieldEvent, "analysis.failed").
				Str(log.FieldURL, platformnet.SanitizeURL(rawURL)).
				Str(log.FieldErrorKind, kind).
				Err(err).
				Msg("analysis failed")
		}
		metrics.RecordAnalysis(manifestType, outcome, time.Since(start))
		telemetry.EndSpan(span, err, kind)
	}()

	u, perr := platformnet.ParseHTTPURL(rawURL)
	if perr != nil {
		return nil, &analysis.ValidationError{Field: "url", Reason: "must be an absolute http(s) URL", Err: perr}
	}
	target := u.String()

	ctx, cancel := context.WithTimeout(ctx, a.deadline)
	defer cancel()

	src, err := a.fetchManifest(ctx, target)
	if err != nil {
		return nil, err
	}

	format := manifest.Detect(target, src.Body, src.ContentType)
	normalizer, ok := a.normalizers[format]
	if !ok {
		return nil, &analysis.ValidationError{Field: "url", Reason: "not an HLS or DASH manifest", Err: analysis.ErrUnrecognized}
	}
	manifestType = format.String()

	m, err := a.normalize(ctx, normalizer, analysis.ManifestType(manifestType), src)
	if err != nil {
		return nil, err
	}
	metrics.ObserveLevels(manifestType, len(m.Levels))

	var (
		markers []analysis.Scte35Marker
		drmDesc analysis.DRMDescriptor
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		markers = scte35.DecodeCues(gctx, m.Cues)
		return nil
	})
	g.Go(func() error {
		drmDesc = drm.Classify(m.DRMSignals)
		return nil
	})
	_ = g.Wait()

	var probes []analysis.FragmentProbeResult
	if a.orchestrator != nil && m.Locator != nil {
		probes = a.probe(ctx, m)
	}

	live := m.Live
	if lr, ok := m.Locator.(manifest.LivenessReporter); ok {
		if l, known := lr.Liveness(); known {
			live = l
		}
	}

	res = assemble(target, m, live, drmDesc, markers, probes)
	logger.Info().
		Str(log.FieldEvent, "analysis.completed").
		Str(log.FieldURL, platformnet.SanitizeURL(target)).
		Str(log.FieldManifestType, manifestType).
		Int("levels", len(res.Bitrates)).
		Int("scte35_markers", len(res.Scte35Markers)).
		Int("fragment_probes", len(res.FragmentProbes)).
		Str("drm_scheme", string(drmDesc.Scheme)).
		Int64(log.FieldDurationMS, time.Since(start).Milliseconds()).
		Msg("analysis completed")
	return res, nil
}

func (a *Analyzer) fetchManifest(ctx context.Context, target string) (src analysis.ManifestSource, err error) {
	ctx, span := telemetry.StartSpan(ctx, "analysis.fetch")
	defer func() { telemetry.EndSpan(span, err, analysis.ErrorKind(err)) }()

	body, resp, err := a.getter.Fetch(ctx, fetch.Request{URL: target, Target: metrics.TargetManifest}, fetch.ManifestLimits)
	if err != nil {
		return src, err
	}
	// Relative references resolve against the final URL after redirects.
	base := resp.URL
	if base == "" {
		base = target
	}
	ext := ""
	if u, perr := platformnet.ParseHTTPURL(target); perr == nil {
		ext = platformnet.PathExtension(u)
	}
	return analysis.ManifestSource{URL: base, DeclaredExtension: ext, Body: body, ContentType: resp.ContentType}, nil
}

func (a *Analyzer) normalize(ctx context.Context, n manifest.Normalizer, format analysis.ManifestType, src analysis.ManifestSource) (m *manifest.Manifest, err error) {
	ctx, span := telemetry.StartSpan(ctx, "analysis.normalize")
	defer func() { telemetry.EndSpan(span, err, analysis.ErrorKind(err)) }()

	m, err = n.Normalize(ctx, src)
	if err != nil {
		var pe *analysis.ParseError
		if !errors.As(err, &pe) {
			// Normalizers report grammar problems as ParseError; anything else is wrapped.
			err = &analysis.ParseError{Format: format, Construct: "document", Err: err}
		}
		return nil, err
	}
	span.SetAttributes(telemetry.ManifestAttributes(string(m.Type), platformnet.SanitizeURL(src.URL), m.Live, len(m.Levels))...)
	return m, nil
}

func (a *Analyzer) probe(ctx context.Context, m *manifest.Manifest) []analysis.FragmentProbeResult {
	ctx, span := telemetry.StartSpan(ctx, "analysis.probe")
	defer span.End()

	results := a.orchestrator.Run(ctx, m.Levels, m.Locator)
	span.SetAttributes(telemetry.ProbeAttributes(min(len(m.Levels), probe.MaxProbes), len(results))...)
	return results
}
