// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dash

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/fetch"
	"github.com/ManuGH/streamview/internal/manifest"
)

// HeadBytes is the size of the ranged request issued for single-file
// representations (SegmentBase or bare BaseURL).
const HeadBytes = 2 << 20

var (
	errUnknownLevel  = errors.New("level does not belong to this mpd")
	errNoSegmentInfo = errors.New("representation has no segment addressing")
	errTimeNoTimeline = errors.New("$Time$ template without SegmentTimeline")
	errNoSegments    = errors.New("segment list is empty")
)

type repContext struct {
	period *period
	set    *adaptationSet
	rep    *representation
	base   string
}

// locator resolves fragments from the parsed MPD without network access.
type locator struct {
	doc  *mpdDoc
	now  func() time.Time
	reps []repContext // indexed by level ID
}

// Fragments returns up to max candidates. Static presentations are sampled
// from the start, dynamic ones from the live edge.
func (l *locator) Fragments(_ context.Context, _ fetch.Getter, level analysis.BitrateLevel, max int) ([]manifest.FragmentRef, error) {
	if level.ID < 0 || level.ID >= len(l.reps) {
		return nil, errUnknownLevel
	}
	if max <= 0 {
		max = 1
	}
	rc := l.reps[level.ID]
	live := l.doc.Type == typeDynamic

	if tmpl := mergeTemplates(rc.rep.SegmentTemplate, rc.set.SegmentTemplate, rc.period.SegmentTemplate); tmpl != nil {
		return l.fromTemplate(rc, tmpl, live, max)
	}
	if list := mergeLists(rc.rep.SegmentList, rc.set.SegmentList, rc.period.SegmentList); list != nil {
		return fromList(rc, list, live, max)
	}
	base := firstNonNil(rc.rep.SegmentBase, rc.set.SegmentBase, rc.period.SegmentBase)
	if base == nil && firstBaseURL(rc.rep.BaseURLs) == "" {
		return nil, errNoSegmentInfo
	}
	return []manifest.FragmentRef{headRef(rc, base)}, nil
}

func firstNonNil[T any](vs ...*T) *T {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

func mergeTemplates(chain ...*segmentTemplate) *segmentTemplate {
	var out *segmentTemplate
	for _, t := range chain {
		if t == nil {
			continue
		}
		if out == nil {
			c := *t
			out = &c
			continue
		}
		fill(&out.Media, t.Media)
		fill(&out.Initialization, t.Initialization)
		fill(&out.Timescale, t.Timescale)
		fill(&out.Duration, t.Duration)
		fill(&out.StartNumber, t.StartNumber)
		fill(&out.PresentationTimeOffset, t.PresentationTimeOffset)
		if out.Timeline == nil {
			out.Timeline = t.Timeline
		}
	}
	return out
}

func mergeLists(chain ...*segmentList) *segmentList {
	var out *segmentList
	for _, sl := range chain {
		if sl == nil {
			continue
		}
		if out == nil {
			c := *sl
			out = &c
			continue
		}
		fill(&out.Timescale, sl.Timescale)
		fill(&out.Duration, sl.Duration)
		if out.Initialization == nil {
			out.Initialization = sl.Initialization
		}
		if len(out.SegmentURLs) == 0 {
			out.SegmentURLs = sl.SegmentURLs
		}
	}
	return out
}

func fill(dst *string, src string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = src
	}
}

func parseUintDefault(s string, def uint64) uint64 {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return def
	}
	return v
}

// segmentRef is one addressable segment of a template.
type segmentRef struct {
	number uint64
	time   uint64
	dur    uint64
}

func (l *locator) fromTemplate(rc repContext, tmpl *segmentTemplate, live bool, max int) ([]manifest.FragmentRef, error) {
	timescale := parseUintDefault(tmpl.Timescale, 1)
	if timescale == 0 {
		timescale = 1
	}
	startNumber := parseUintDefault(tmpl.StartNumber, 1)
	bandwidth, _ := strconv.ParseInt(strings.TrimSpace(rc.rep.Bandwidth), 10, 64)

	var segs []segmentRef
	switch {
	case tmpl.Timeline != nil && len(tmpl.Timeline.S) > 0:
		segs = timelineSegments(tmpl.Timeline.S, startNumber, live, max)
	case strings.Contains(tmpl.Media, "$Time"):
		return nil, errTimeNoTimeline
	default:
		dur := parseUintDefault(tmpl.Duration, 0)
		if dur == 0 {
			return nil, fmt.Errorf("segment template: %w: missing duration", errNoSegmentInfo)
		}
		segs = l.numberedSegments(rc.period, dur, timescale, startNumber, live, max)
	}
	if len(segs) == 0 {
		return nil, errNoSegments
	}

	var initURL string
	if tmpl.Initialization != "" {
		expanded, err := expandTemplate(tmpl.Initialization, templateVars{repID: rc.rep.ID, bandwidth: bandwidth})
		if err != nil {
			return nil, err
		}
		initURL = manifest.Resolve(rc.base, expanded)
	}

	refs := make([]manifest.FragmentRef, 0, len(segs))
	for _, s := range segs {
		media, err := expandTemplate(tmpl.Media, templateVars{repID: rc.rep.ID, bandwidth: bandwidth, number: s.number, time: s.time})
		if err != nil {
			return nil, err
		}
		ref := manifest.FragmentRef{
			URL:      manifest.Resolve(rc.base, media),
			InitURL:  initURL,
			Duration: float64(s.dur) / float64(timescale),
		}
		ref.Container = container(rc, ref.URL, initURL != "")
		refs = append(refs, ref)
	}
	return refs, nil
}

// timelineSegments expands a SegmentTimeline. Static presentations take the
// first max segments, dynamic ones the last max, newest first.
func timelineSegments(entries []timelineEntry, startNumber uint64, live bool, max int) []segmentRef {
	type span struct {
		start  uint64
		count  uint64
		d      uint64
		number uint64
	}
	spans := make([]span, 0, len(entries))
	var t, number uint64 = 0, startNumber
	for i, e := range entries {
		if e.T != nil {
			t = *e.T
		}
		count := uint64(1)
		switch {
		case e.R > 0:
			count = uint64(e.R) + 1
		case e.R < 0 && e.D > 0 && i+1 < len(entries) && entries[i+1].T != nil && *entries[i+1].T > t:
			// open repeat runs until the next explicit start
			count = (*entries[i+1].T - t) / e.D
			if count == 0 {
				count = 1
			}
		}
		spans = append(spans, span{start: t, count: count, d: e.D, number: number})
		t += count * e.D
		number += count
	}

	out := make([]segmentRef, 0, max)
	if !live {
		for _, sp := range spans {
			for k := uint64(0); k < sp.count && len(out) < max; k++ {
				out = append(out, segmentRef{number: sp.number + k, time: sp.start + k*sp.d, dur: sp.d})
			}
			if len(out) == max {
				break
			}
		}
		return out
	}
	for i := len(spans) - 1; i >= 0 && len(out) < max; i-- {
		sp := spans[i]
		for k := sp.count; k > 0 && len(out) < max; k-- {
			idx := k - 1
			out = append(out, segmentRef{number: sp.number + idx, time: sp.start + idx*sp.d, dur: sp.d})
		}
	}
	return out
}

// numberedSegments addresses duration-based templates. Dynamic presentations
// start from the last segment completed at the current wall clock.
func (l *locator) numberedSegments(p *period, dur, timescale, startNumber uint64, live bool, max int) []segmentRef {
	out := make([]segmentRef, 0, max)
	if !live {
		for k := uint64(0); k < uint64(max); k++ {
			out = append(out, segmentRef{number: startNumber + k, time: k * dur, dur: dur})
		}
		return out
	}

	var latest uint64
	if ast, err := time.Parse(time.RFC3339, strings.TrimSpace(l.doc.AvailabilityStartTime)); err == nil {
		periodStart, _ := parseXSDuration(p.Start)
		elapsed := l.now().Sub(ast) - periodStart
		segSeconds := float64(dur) / float64(timescale)
		if done := int64(elapsed.Seconds()/segSeconds) - 1; done > 0 {
			latest = uint64(done)
		}
	}
	for k := int64(latest); k >= 0 && len(out) < max; k-- {
		idx := uint64(k)
		out = append(out, segmentRef{number: startNumber + idx, time: idx * dur, dur: dur})
	}
	return out
}

func fromList(rc repContext, list *segmentList, live bool, max int) ([]manifest.FragmentRef, error) {
	if len(list.SegmentURLs) == 0 {
		return nil, errNoSegments
	}
	timescale := parseUintDefault(list.Timescale, 1)
	if timescale == 0 {
		timescale = 1
	}
	dur := float64(parseUintDefault(list.Duration, 0)) / float64(timescale)

	var initURL string
	var initRange *fetch.Range
	if in := list.Initialization; in != nil {
		initURL = rc.base
		if in.SourceURL != "" {
			initURL = manifest.Resolve(rc.base, in.SourceURL)
		}
		r, err := parseRange(in.Range)
		if err != nil {
			return nil, err
		}
		initRange = r
	}

	idx := make([]int, 0, max)
	if live {
		for i := len(list.SegmentURLs) - 1; i >= 0 && len(idx) < max; i-- {
			idx = append(idx, i)
		}
	} else {
		for i := 0; i < len(list.SegmentURLs) && len(idx) < max; i++ {
			idx = append(idx, i)
		}
	}

	refs := make([]manifest.FragmentRef, 0, len(idx))
	for _, i := range idx {
		su := list.SegmentURLs[i]
		ref := manifest.FragmentRef{URL: rc.base, InitURL: initURL, InitRange: initRange, Duration: dur}
		if su.Media != "" {
			ref.URL = manifest.Resolve(rc.base, su.Media)
		}
		r, err := parseRange(su.MediaRange)
		if err != nil {
			return nil, err
		}
		ref.Range = r
		ref.Container = container(rc, ref.URL, initURL != "")
		refs = append(refs, ref)
	}
	return refs, nil
}

// headRef requests the head of a single-file representation, large enough to
// cover the init and index ranges.
func headRef(rc repContext, base *segmentBase) manifest.FragmentRef {
	end := int64(HeadBytes - 1)
	if base != nil {
		if r, err := parseRange(base.IndexRange); err == nil && r != nil && r.End > end {
			end = r.End
		}
		if base.Initialization != nil {
			if r, err := parseRange(base.Initialization.Range); err == nil && r != nil && r.End > end {
				end = r.End
			}
		}
	}
	return manifest.FragmentRef{
		URL:       rc.base,
		Range:     &fetch.Range{Start: 0, End: end},
		Container: container(rc, rc.base, true),
	}
}

func container(rc repContext, url string, hasInit bool) string {
	mime := strings.ToLower(inherit(rc.rep.MimeType, rc.set.MimeType))
	switch {
	case strings.HasSuffix(mime, "/mp4"):
		return "mp4"
	case strings.HasSuffix(mime, "/mp2t"):
		return "ts"
	}
	if hint := manifest.ContainerHint(url); hint != "" {
		return hint
	}
	if hasInit {
		return "mp4"
	}
	return ""
}

// parseRange parses a "first-last" byte range. An empty string is no range.
func parseRange(s string) (*fetch.Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	first, last, ok := strings.Cut(s, "-")
	if !ok {
		return nil, fmt.Errorf("invalid byte range %q", s)
	}
	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return nil, fmt.Errorf("invalid byte range %q", s)
	}
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < start {
		return nil, fmt.Errorf("invalid byte range %q", s)
	}
	return &fetch.Range{Start: start, End: end}, nil
}
