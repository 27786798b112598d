// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/grafov/m3u8"

	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/fetch"
	"github.com/ManuGH/streamview/internal/manifest"
	"github.com/ManuGH/streamview/internal/metrics"
)

// PlaylistLimits bounds variant media playlist fetches.
var PlaylistLimits = fetch.Limits{MaxBytes: 10 << 20, Timeout: 10 * time.Second}

var (
	errNotMedia   = errors.New("variant is not a media playlist")
	errNoSegments = errors.New("media playlist has no segments")
	errNoURI      = errors.New("level has no playlist uri")
)

// locator resolves fragments from media playlists. A master locator fetches
// the variant playlist per level; a media locator reuses the fetched body.
type locator struct {
	mediaURL  string
	mediaBody []byte

	mu       sync.Mutex
	observed bool
	live     bool
}

func newMasterLocator() *locator {
	return &locator{}
}

func newMediaLocator(url string, body []byte) *locator {
	return &locator{mediaURL: url, mediaBody: body}
}

// Liveness reports whether any resolved variant playlist was open-ended.
// known is false until at least one variant playlist was decoded.
func (l *locator) Liveness() (live, known bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live, l.observed
}

func (l *locator) observe(closed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observed = true
	l.live = l.live || !closed
}

// Fragments returns up to max candidates. VOD playlists are sampled from the
// head, live playlists from the tail.
func (l *locator) Fragments(ctx context.Context, getter fetch.Getter, level analysis.BitrateLevel, max int) ([]manifest.FragmentRef, error) {
	playlistURL, body := l.mediaURL, l.mediaBody
	if body == nil {
		if level.URI == nil {
			return nil, errNoURI
		}
		var (
			resp fetch.Response
			err  error
		)
		body, resp, err = getter.Fetch(ctx, fetch.Request{URL: *level.URI, Target: metrics.TargetPlaylist}, PlaylistLimits)
		if err != nil {
			return nil, err
		}
		playlistURL = *level.URI
		if resp.URL != "" {
			playlistURL = resp.URL
		}
	}

	lines := splitLines(body)
	if isMaster(lines) {
		return nil, errNotMedia
	}
	media, rec, err := decodeMedia(lines, false)
	if err != nil {
		return nil, fmt.Errorf("decode media playlist: %w", err)
	}

	decoded := segmentsOf(media)
	segments := make([]*m3u8.MediaSegment, 0, len(decoded))
	var prev *m3u8.MediaSegment
	for i, seg := range decoded {
		if seg.URI == "" {
			continue
		}
		// a BYTERANGE without @offset continues the previous sub-range
		if seg.Limit > 0 && !rec.segment(i).explicitOffset && prev != nil && prev.Limit > 0 && prev.URI == seg.URI {
			adjusted := *seg
			adjusted.Offset = prev.Offset + prev.Limit
			seg = &adjusted
		}
		segments = append(segments, seg)
		prev = seg
	}
	if len(segments) == 0 {
		return nil, errNoSegments
	}
	closed := media.Closed || media.MediaType == m3u8.VOD
	l.observe(closed)

	if max <= 0 {
		max = 1
	}
	if !closed {
		// newest segments are least likely to have expired
		for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
			segments[i], segments[j] = segments[j], segments[i]
		}
	}
	if len(segments) > max {
		segments = segments[:max]
	}

	refs := make([]manifest.FragmentRef, 0, len(segments))
	for _, seg := range segments {
		refs = append(refs, fragmentRef(playlistURL, media, seg))
	}
	return refs, nil
}

func fragmentRef(playlistURL string, media *m3u8.MediaPlaylist, seg *m3u8.MediaSegment) manifest.FragmentRef {
	ref := manifest.FragmentRef{
		URL:      manifest.Resolve(playlistURL, seg.URI),
		Duration: seg.Duration,
	}
	if seg.Limit > 0 {
		ref.Range = &fetch.Range{Start: seg.Offset, End: seg.Offset + seg.Limit - 1}
	}
	init := seg.Map
	if init == nil {
		init = media.Map
	}
	if init != nil && init.URI != "" {
		ref.InitURL = manifest.Resolve(playlistURL, init.URI)
		if init.Limit > 0 {
			ref.InitRange = &fetch.Range{Start: init.Offset, End: init.Offset + init.Limit - 1}
		}
		ref.Container = "mp4"
	} else {
		ref.Container = manifest.ContainerHint(ref.URL)
	}
	return ref
}
