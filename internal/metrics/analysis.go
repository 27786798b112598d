// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for the analysis pipeline.
// Labels are bounded enums only; URLs never become label values.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch targets.
const (
	TargetManifest = "manifest"
	TargetPlaylist = "playlist"
	TargetFragment = "fragment"
)

// Fragment probe outcomes.
const (
	ProbeOK          = "ok"
	ProbeEncrypted   = "encrypted"
	ProbeFetchFailed = "fetch_failed"
	ProbeFailed      = "probe_failed"
	ProbeNoFragment  = "no_fragment"
	ProbeCancelled   = "cancelled"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamview_analyses_total",
		Help: "Total number of analysis requests, by manifest type and outcome.",
	}, []string{"manifest_type", "outcome"})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamview_analysis_duration_seconds",
		Help:    "End-to-end analysis latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 90},
	}, []string{"manifest_type"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamview_fetch_duration_seconds",
		Help:    "Remote fetch latency in seconds, by target and outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"target", "outcome"})

	FetchBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamview_fetch_bytes_total",
		Help: "Total bytes read from remote servers, by target.",
	}, []string{"target"})

	FragmentProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamview_fragment_probes_total",
		Help: "Total number of fragment probe attempts, by outcome.",
	}, []string{"outcome"})

	Scte35MarkersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamview_scte35_markers_total",
		Help: "Total number of SCTE-35 markers decoded, by command and status.",
	}, []string{"command", "status"})

	ManifestLevels = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamview_manifest_bitrate_levels",
		Help:    "Number of bitrate levels per analyzed manifest.",
		Buckets: []float64{1, 2, 3, 4, 6, 8, 10, 15, 20},
	}, []string{"manifest_type"})
)

// RecordAnalysis records one finished analysis. manifestType is "unknown" before detection.
func RecordAnalysis(manifestType, outcome string, elapsed time.Duration) {
	if manifestType == "" {
		manifestType = "unknown"
	}
	AnalysesTotal.WithLabelValues(manifestType, outcome).Inc()
	AnalysisDuration.WithLabelValues(manifestType).Observe(elapsed.Seconds())
}

// RecordFetch records one remote fetch.
func RecordFetch(target, outcome string, elapsed time.Duration, bytes int) {
	FetchDuration.WithLabelValues(target, outcome).Observe(elapsed.Seconds())
	if bytes > 0 {
		FetchBytesTotal.WithLabelValues(target).Add(float64(bytes))
	}
}

// RecordFragmentProbe increments the probe outcome counter.
func RecordFragmentProbe(outcome string) {
	FragmentProbesTotal.WithLabelValues(outcome).Inc()
}

// RecordScte35Marker counts one marker.
func RecordScte35Marker(command string, degraded bool) {
	status := "ok"
	if degraded {
		status = "degraded"
	}
	Scte35MarkersTotal.WithLabelValues(command, status).Inc()
}

// ObserveLevels records the ladder size of a normalized manifest.
func ObserveLevels(manifestType string, n int) {
	ManifestLevels.WithLabelValues(manifestType).Observe(float64(n))
}
