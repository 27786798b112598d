// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package manifest defines the format-neutral model produced by the HLS and
// DASH normalizers, plus format detection.
package manifest

import (
	"context"

	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/fetch"
)

// Normalizer turns one fetched manifest into the common model. It performs no I/O.
type Normalizer interface {
	Normalize(ctx context.Context, src analysis.ManifestSource) (*Manifest, error)
}

// Manifest is the normalized view of one manifest document.
type Manifest struct {
	Type       analysis.ManifestType
	URL        string
	Live       bool
	Levels     []analysis.BitrateLevel
	Audio      []analysis.AudioTrack
	Subtitles  []analysis.SubtitleTrack
	Thumbnails []analysis.ThumbnailTrack
	DRMSignals []DRMSignal
	Cues       []Cue
	// Locator resolves fragments for Levels. Nil when no level is addressable.
	Locator Locator
}

// DRMSignal is one raw protection declaration in manifest order.
type DRMSignal struct {
	Source string // tag or element name that carried the signal

	// HLS keys
	Method    string
	KeyFormat string
	URI       string
	IV        string

	// DASH ContentProtection
	SchemeIDURI string
	Value       string
	DefaultKID  string
	PSSH        string
	LicenseURL  string
}

// CueEncoding is the text encoding of an embedded splice_info_section.
type CueEncoding int

const (
	CueHex CueEncoding = iota
	CueBase64
	// CueUnsupported marks a carrier whose payload form is not binary.
	CueUnsupported
)

// Cue is one SCTE-35 carrier found in a manifest.
type Cue struct {
	Source   string
	Encoding CueEncoding
	Payload  string
	// Carrier times fill the marker when the section itself lacks them.
	PTS90k      *analysis.Ticks90k
	Duration90k *analysis.Ticks90k
	EventID     *uint32
}

// FragmentRef addresses one media fragment and its optional init segment.
type FragmentRef struct {
	URL       string
	Range     *fetch.Range
	InitURL   string
	InitRange *fetch.Range
	// Duration is the advertised fragment duration in seconds, 0 when unknown.
	Duration float64
	// Container hint: "mp4", "ts", or "".
	Container string
}

// Locator resolves candidate fragments for one level, best candidate first.
type Locator interface {
	Fragments(ctx context.Context, getter fetch.Getter, level analysis.BitrateLevel, max int) ([]FragmentRef, error)
}

// LivenessReporter is implemented by locators that learn liveness only while
// resolving fragments, such as HLS master playlists.
type LivenessReporter interface {
	Liveness() (live, known bool)
}
