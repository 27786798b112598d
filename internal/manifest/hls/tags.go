// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/ManuGH/streamview/internal/domain/analysis"
)

// segmentCapacity is the initial grafov segment buffer; it grows on demand.
const segmentCapacity = 1024

var (
	errUnterminatedQuote = errors.New("unterminated quoted string")
	errNoVariantURI      = errors.New("variant has no URI line")
)

type line struct {
	n    int
	text string
}

// splitLines drops the BOM and blank lines and keeps 1-based line numbers.
func splitLines(body []byte) []line {
	body = bytes.TrimPrefix(body, []byte{0xEF, 0xBB, 0xBF})
	raw := strings.Split(string(body), "\n")
	out := make([]line, 0, len(raw))
	for i, l := range raw {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		out = append(out, line{n: i + 1, text: l})
	}
	return out
}

func joinLines(lines []line) []byte {
	var b bytes.Buffer
	for _, l := range lines {
		b.WriteString(l.text)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

func isMaster(lines []line) bool {
	for _, l := range lines {
		if strings.HasPrefix(l.text, "#"+tagStreamInf+":") {
			return true
		}
	}
	return false
}

// rawTag is one tag line with its attribute list decoded by grafov.
type rawTag struct {
	name  string
	line  int
	value string
	attrs map[string]string
}

// attr returns the value or nil when absent or empty.
func (t rawTag) attr(name string) *string {
	v, ok := t.attrs[name]
	if !ok || v == "" {
		return nil
	}
	return &v
}

func (t rawTag) yes(name string) bool {
	return strings.EqualFold(t.attrs[name], "YES")
}

func (t rawTag) attrWithValue(v string) string {
	for _, k := range slices.Sorted(maps.Keys(t.attrs)) {
		if t.attrs[k] == v {
			return k
		}
	}
	return ""
}

// segmentInfo is what grafov drops from a media segment's tags.
type segmentInfo struct {
	line           int // EXTINF
	bitrateKbps    *int64
	hasRange       bool
	explicitOffset bool
}

// positionedTag is a cue tag and the index of the segment it precedes.
type positionedTag struct {
	rawTag
	segment int
}

// tagRecorder is registered with grafov as the custom decoder for every tag
// line. It tracks line numbers and URI lines, and collects the tags grafov
// does not model: EXT-X-MEDIA extras, EXT-X-SESSION-KEY,
// EXT-X-IMAGE-STREAM-INF, EXT-X-DATERANGE, EXT-X-SCTE35 and EXT-X-BITRATE.
// Decode sees tag lines only, so URI lines are picked up while seeking.
type tagRecorder struct {
	lines  []line
	next   int
	master bool
	last   *rawTag
	err    error

	variants    []rawTag
	openVariant bool
	media       []rawTag
	images      []rawTag
	sessionKeys []rawTag
	cueTags     []positionedTag

	segments []segmentInfo
	cur      segmentInfo
	inf      bool
	bitrate  *int64
}

func newTagRecorder(lines []line) *tagRecorder {
	return &tagRecorder{lines: lines, master: isMaster(lines)}
}

func (r *tagRecorder) TagName() string { return "#" }
func (r *tagRecorder) SegmentTag() bool { return false }

func (r *tagRecorder) Decode(text string) (m3u8.CustomTag, error) {
	tag := recordedTag(text)
	cur, ok := r.seek(text)
	if !ok {
		return tag, r.err
	}
	name, value, _ := strings.Cut(strings.TrimPrefix(cur.text, "#"), ":")
	t := rawTag{name: name, line: cur.n, value: value, attrs: m3u8.DecodeAttributeList(value)}
	r.last = &t
	if name != tagInf && strings.Count(value, `"`)%2 != 0 {
		r.fail(parseErr(name, cur.n, errUnterminatedQuote))
		return tag, r.err
	}
	r.record(t)
	return tag, r.err
}

// seek advances to the line grafov is decoding, consuming URI lines on the way.
func (r *tagRecorder) seek(text string) (line, bool) {
	for r.next < len(r.lines) {
		l := r.lines[r.next]
		r.next++
		if l.text == text {
			return l, true
		}
		if !strings.HasPrefix(l.text, "#") {
			r.uri(l)
		}
	}
	return line{}, false
}

func (r *tagRecorder) record(t rawTag) {
	switch t.name {
	case tagStreamInf:
		if r.openVariant {
			r.fail(parseErr(tagStreamInf+" URI", r.variants[len(r.variants)-1].line, errNoVariantURI))
			return
		}
		r.variants = append(r.variants, t)
		r.openVariant = true
	case tagMedia:
		r.media = append(r.media, t)
	case tagImageInf:
		r.images = append(r.images, t)
	case tagSessionKey:
		r.sessionKeys = append(r.sessionKeys, t)
	case tagDateRange, tagSCTE35:
		r.cueTags = append(r.cueTags, positionedTag{rawTag: t, segment: len(r.segments)})
	case tagInf:
		if !r.inf {
			r.inf = true
			r.cur.line = t.line
		}
	case tagByteRange:
		// grafov keeps the first BYTERANGE before a URI
		if !r.cur.hasRange {
			r.cur.hasRange = true
			r.cur.explicitOffset = strings.Contains(t.value, "@")
		}
	case tagBitrate:
		kbps, err := strconv.ParseInt(strings.TrimSpace(t.value), 10, 64)
		if err != nil || kbps <= 0 {
			r.fail(parseErr(tagBitrate, t.line, fmt.Errorf("invalid bitrate %q", t.value)))
			return
		}
		r.bitrate = &kbps
	}
}

func (r *tagRecorder) uri(l line) {
	if r.master {
		r.openVariant = false
		return
	}
	if !r.inf {
		r.fail(parseErr(tagInf, l.n, fmt.Errorf("segment %q has no EXTINF", l.text)))
		return
	}
	r.cur.bitrateKbps = r.bitrate
	r.segments = append(r.segments, r.cur)
	r.cur = segmentInfo{}
	r.inf = false
}

// finish consumes trailing URI lines once grafov is done.
func (r *tagRecorder) finish() error {
	for r.next < len(r.lines) {
		l := r.lines[r.next]
		r.next++
		if !strings.HasPrefix(l.text, "#") {
			r.uri(l)
		}
	}
	if r.openVariant {
		r.fail(parseErr(tagStreamInf+" URI", r.variants[len(r.variants)-1].line, errNoVariantURI))
	}
	return r.err
}

func (r *tagRecorder) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *tagRecorder) segment(i int) segmentInfo {
	if i < 0 || i >= len(r.segments) {
		return segmentInfo{}
	}
	return r.segments[i]
}

// parseFailure attributes a grafov error to the tag line it was decoding.
func (r *tagRecorder) parseFailure(err error) error {
	var pe *analysis.ParseError
	if errors.As(err, &pe) {
		return err
	}
	if r.last == nil {
		return parseErr(tagHeader, 0, err)
	}
	construct := r.last.name
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		if attr := r.last.attrWithValue(numErr.Num); attr != "" {
			construct += " " + attr
		}
	}
	return parseErr(construct, r.last.line, err)
}

type recordedTag string

func (t recordedTag) TagName() string { return "#" }

func (t recordedTag) Encode() *bytes.Buffer { return bytes.NewBufferString(string(t)) }

func (t recordedTag) String() string { return string(t) }

func decodeMaster(lines []line) (*m3u8.MasterPlaylist, *tagRecorder, error) {
	rec := newTagRecorder(lines)
	pl := m3u8.NewMasterPlaylist()
	pl.WithCustomDecoders([]m3u8.CustomDecoder{rec})
	if err := pl.DecodeFrom(bytes.NewReader(joinLines(lines)), true); err != nil {
		return nil, nil, rec.parseFailure(err)
	}
	if err := rec.finish(); err != nil {
		return nil, nil, err
	}
	return pl, rec, nil
}

// decodeMedia decodes a media playlist. Lenient decoding keeps what grafov
// accepts and ignores structural findings of the recorder.
func decodeMedia(lines []line, strict bool) (*m3u8.MediaPlaylist, *tagRecorder, error) {
	rec := newTagRecorder(lines)
	pl, err := m3u8.NewMediaPlaylist(0, segmentCapacity)
	if err != nil {
		return nil, nil, err
	}
	pl.WithCustomDecoders([]m3u8.CustomDecoder{rec})
	if err := pl.DecodeFrom(bytes.NewReader(joinLines(lines)), strict); err != nil {
		return nil, nil, rec.parseFailure(err)
	}
	if err := rec.finish(); err != nil && strict {
		return nil, nil, err
	}
	return pl, rec, nil
}

// segmentsOf returns the decoded segments in playlist order.
func segmentsOf(pl *m3u8.MediaPlaylist) []*m3u8.MediaSegment {
	out := make([]*m3u8.MediaSegment, 0, pl.Count())
	for _, s := range pl.Segments {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
