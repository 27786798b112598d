// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/manifest"
)

// assemble builds the terminal Result. List fields are never nil so they
// encode as [] rather than null.
func assemble(url string, m *manifest.Manifest, live bool, d analysis.DRMDescriptor, markers []analysis.Scte35Marker, probes []analysis.FragmentProbeResult) *analysis.Result {
	return &analysis.Result{
		ManifestType:    m.Type,
		ManifestURL:     url,
		Live:            live,
		Bitrates:        orEmpty(m.Levels),
		AudioTracks:     orEmpty(m.Audio),
		SubtitleTracks:  orEmpty(m.Subtitles),
		ThumbnailTracks: orEmpty(m.Thumbnails),
		DRM:             &d,
		Scte35Markers:   orEmpty(markers),
		FragmentProbes:  orEmpty(probes),
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
