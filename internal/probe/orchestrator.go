// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package probe downloads representative fragments and hands them to a
// Prober, with bounded per-request parallelism.
package probe

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/fetch"
	"github.com/ManuGH/streamview/internal/log"
	"github.com/ManuGH/streamview/internal/manifest"
	"github.com/ManuGH/streamview/internal/metrics"
	platformnet "github.com/ManuGH/streamview/internal/platform/net"
)

const (
	// MaxConcurrentFragments bounds in-flight fragment work per analysis.
	MaxConcurrentFragments = 4
	// candidatesPerLevel is how many fragments are tried before a level is given up.
	candidatesPerLevel = 2
	// ProbeTimeout bounds one Prober call.
	ProbeTimeout = 20 * time.Second
)

// Hint tells the prober what the manifest says about a fragment.
type Hint struct {
	URL       string
	Container string
	Codec     string
	// Duration is the advertised fragment duration in seconds, 0 when unknown.
	Duration float64
	HasInit  bool
}

// Prober extracts media metadata from a fragment buffer. An error wrapping
// analysis.ErrEncrypted may come with partially filled metrics.
type Prober interface {
	Probe(ctx context.Context, data []byte, hint Hint) (analysis.FragmentProbeResult, error)
}

// Orchestrator probes a selection of levels. It holds no per-request state.
type Orchestrator struct {
	getter      fetch.Getter
	prober      Prober
	limits      fetch.Limits
	concurrency int64
	probes      int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLimits overrides the per-fragment fetch limits.
func WithLimits(l fetch.Limits) Option {
	return func(o *Orchestrator) { o.limits = l }
}

// WithProbeCount sets how many levels are probed, clamped to [1, MaxProbes].
func WithProbeCount(n int) Option {
	return func(o *Orchestrator) { o.probes = n }
}

// NewOrchestrator returns an orchestrator using getter for downloads.
func NewOrchestrator(getter fetch.Getter, prober Prober, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		getter:      getter,
		prober:      prober,
		limits:      fetch.FragmentLimits,
		concurrency: MaxConcurrentFragments,
		probes:      MaxProbes,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run probes the selected levels and returns the results ordered by level
// ID. Failures are isolated to their level. When ctx ends, in-flight work is
// cancelled and the results completed so far are returned.
func (o *Orchestrator) Run(ctx context.Context, levels []analysis.BitrateLevel, locator manifest.Locator) []analysis.FragmentProbeResult {
	if locator == nil || len(levels) == 0 {
		return nil
	}
	byID := make(map[int]analysis.BitrateLevel, len(levels))
	for _, l := range levels {
		byID[l.ID] = l
	}
	selected := Select(levels, o.probes)
	logger := log.WithComponentFromContext(ctx, "probe")
	logger.Debug().
		Str(log.FieldEvent, "probe.started").
		Ints("level_ids", selected).
		Msg("probing fragments")

	slots := make([]*analysis.FragmentProbeResult, len(selected))
	sem := semaphore.NewWeighted(o.concurrency)
	var wg sync.WaitGroup
	for i, id := range selected {
		wg.Add(1)
		go func(index int, level analysis.BitrateLevel) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				metrics.RecordFragmentProbe(metrics.ProbeCancelled)
				return
			}
			defer sem.Release(1)
			slots[index] = o.probeLevel(ctx, logger, level, locator)
		}(i, byID[id])
	}
	wg.Wait()

	results := make([]analysis.FragmentProbeResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].BitrateLevelID < results[j].BitrateLevelID })
	return results
}

func (o *Orchestrator) probeLevel(ctx context.Context, logger zerolog.Logger, level analysis.BitrateLevel, locator manifest.Locator) *analysis.FragmentProbeResult {
	refs, err := locator.Fragments(ctx, o.getter, level, candidatesPerLevel)
	if err != nil || len(refs) == 0 {
		metrics.RecordFragmentProbe(outcomeFor(ctx, metrics.ProbeNoFragment))
		logger.Warn().Err(err).
			Str(log.FieldEvent, "fragment.unresolved").
			Int(log.FieldLevelID, level.ID).
			Msg("no fragment resolved for level")
		return nil
	}

	inits := map[string][]byte{}
	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		res, err := o.probeFragment(ctx, level, ref, inits)
		if err == nil {
			metrics.RecordFragmentProbe(metrics.ProbeOK)
			logger.Debug().
				Str(log.FieldEvent, "fragment.probed").
				Int(log.FieldLevelID, level.ID).
				Str(log.FieldURL, platformnet.SanitizeURL(ref.URL)).
				Msg("fragment probed")
			return res
		}

		var pe *analysis.ProbeError
		if errors.As(err, &pe) && pe.Encrypted && res != nil {
			metrics.RecordFragmentProbe(metrics.ProbeEncrypted)
			logger.Info().
				Str(log.FieldEvent, "fragment.encrypted").
				Int(log.FieldLevelID, level.ID).
				Str(log.FieldURL, platformnet.SanitizeURL(ref.URL)).
				Msg("fragment is encrypted; reporting init metadata")
			return res
		}

		outcome := metrics.ProbeFailed
		var fe *analysis.FetchError
		if errors.As(err, &fe) {
			outcome = metrics.ProbeFetchFailed
		}
		metrics.RecordFragmentProbe(outcomeFor(ctx, outcome))
		logger.Warn().Err(err).
			Str(log.FieldEvent, "fragment.probe_failed").
			Int(log.FieldLevelID, level.ID).
			Str(log.FieldURL, platformnet.SanitizeURL(ref.URL)).
			Str(log.FieldErrorKind, analysis.ErrorKind(err)).
			Msg("fragment probe failed")
	}
	return nil
}

func outcomeFor(ctx context.Context, outcome string) string {
	if ctx.Err() != nil {
		return metrics.ProbeCancelled
	}
	return outcome
}

// probeFragment downloads one fragment (and its init segment) and probes it.
// An encrypted fragment returns a non-nil result together with a ProbeError.
func (o *Orchestrator) probeFragment(ctx context.Context, level analysis.BitrateLevel, ref manifest.FragmentRef, inits map[string][]byte) (*analysis.FragmentProbeResult, error) {
	var initData []byte
	if ref.InitURL != "" {
		key := ref.InitURL
		if ref.InitRange != nil {
			key += "#" + ref.InitRange.String()
		}
		cached, ok := inits[key]
		if !ok {
			b, _, err := o.getter.Fetch(ctx, fetch.Request{URL: ref.InitURL, Range: ref.InitRange, Target: metrics.TargetFragment}, o.limits)
			if err != nil {
				return nil, &analysis.ProbeError{LevelID: level.ID, URL: platformnet.SanitizeURL(ref.InitURL), Err: err}
			}
			inits[key], cached = b, b
		}
		initData = cached
	}

	body, _, err := o.getter.Fetch(ctx, fetch.Request{URL: ref.URL, Range: ref.Range, Target: metrics.TargetFragment}, o.limits)
	if err != nil {
		return nil, &analysis.ProbeError{LevelID: level.ID, URL: platformnet.SanitizeURL(ref.URL), Err: err}
	}

	data := body
	if len(initData) > 0 {
		data = make([]byte, 0, len(initData)+len(body))
		data = append(append(data, initData...), body...)
	}
	hint := Hint{URL: ref.URL, Container: ref.Container, Duration: ref.Duration, HasInit: len(initData) > 0}
	if level.Codec != nil {
		hint.Codec = *level.Codec
	}

	probeCtx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()
	res, err := o.prober.Probe(probeCtx, data, hint)
	encrypted := errors.Is(err, analysis.ErrEncrypted)
	if err != nil && !encrypted {
		return nil, &analysis.ProbeError{LevelID: level.ID, URL: platformnet.SanitizeURL(ref.URL), Err: err}
	}

	res.BitrateLevelID = level.ID
	res.Encrypted = res.Encrypted || encrypted
	size := int64(len(body))
	res.FileSizeBytes = &size
	if res.Container == nil && ref.Container != "" {
		res.Container = analysis.Ptr(ref.Container)
	}
	if res.FragmentDuration == nil && ref.Duration > 0 {
		res.FragmentDuration = analysis.Ptr(ref.Duration)
	}
	if res.MeasuredBitRate == nil && res.FragmentDuration != nil && *res.FragmentDuration > 0 {
		bps := int64(float64(size*8) / *res.FragmentDuration)
		res.MeasuredBitRate = &bps
	}
	if encrypted {
		return &res, &analysis.ProbeError{LevelID: level.ID, URL: platformnet.SanitizeURL(ref.URL), Encrypted: true, Err: err}
	}
	return &res, nil
}
