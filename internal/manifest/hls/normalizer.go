// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package hls normalizes M3U8 master and media playlists.
package hls

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/log"
	"github.com/ManuGH/streamview/internal/manifest"
)

// Tag names without the leading '#' and trailing ':'.
const (
	tagHeader     = "EXTM3U"
	tagStreamInf  = "EXT-X-STREAM-INF"
	tagImageInf   = "EXT-X-IMAGE-STREAM-INF"
	tagMedia      = "EXT-X-MEDIA"
	tagKey        = "EXT-X-KEY"
	tagSessionKey = "EXT-X-SESSION-KEY"
	tagDateRange  = "EXT-X-DATERANGE"
	tagSCTE35     = "EXT-X-SCTE35"
	tagInf        = "EXTINF"
	tagByteRange  = "EXT-X-BYTERANGE"
	tagBitrate    = "EXT-X-BITRATE"
)

const (
	scte35AttrOut     = "SCTE35-OUT"
	scte35AttrIn      = "SCTE35-IN"
	scte35AttrCmd     = "SCTE35-CMD"
	ticksPerSecond    = 90000.0
	keyMethodNone     = "NONE"
	closedCaptionType = "CLOSED-CAPTIONS"
)

// Normalizer implements manifest.Normalizer for HLS.
type Normalizer struct{}

// New returns an HLS normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize parses src.Body. Master playlists yield one level per
// EXT-X-STREAM-INF; media playlists yield a single synthesized level.
func (n *Normalizer) Normalize(ctx context.Context, src analysis.ManifestSource) (*manifest.Manifest, error) {
	lines := splitLines(src.Body)
	if len(lines) == 0 || lines[0].text != "#"+tagHeader {
		at := 0
		if len(lines) > 0 {
			at = lines[0].n
		}
		return nil, parseErr(tagHeader, at, fmt.Errorf("playlist must start with #%s", tagHeader))
	}

	out := &manifest.Manifest{Type: analysis.ManifestHLS, URL: src.URL}
	var err error
	if isMaster(lines) {
		err = normalizeMaster(out, src.URL, lines)
	} else {
		err = normalizeMedia(out, src, lines)
	}
	if err != nil {
		return nil, err
	}

	logger := log.WithComponentFromContext(ctx, "hls")
	logger.Debug().
		Str(log.FieldEvent, "manifest.normalized").
		Int("levels", len(out.Levels)).
		Int("audio_tracks", len(out.Audio)).
		Int("cues", len(out.Cues)).
		Int("drm_signals", len(out.DRMSignals)).
		Msg("hls playlist normalized")
	return out, nil
}

func parseErr(construct string, lineNo int, err error) error {
	return &analysis.ParseError{Format: analysis.ManifestHLS, Construct: construct, Line: lineNo, Err: err}
}

func normalizeMaster(out *manifest.Manifest, base string, lines []line) error {
	pl, rec, err := decodeMaster(lines)
	if err != nil {
		return err
	}

	var groups []string // AUDIO group per level
	for _, v := range pl.Variants {
		if v == nil {
			continue
		}
		if v.Iframe {
			out.Thumbnails = append(out.Thumbnails, iframeThumbnail(base, v))
			continue
		}
		id := len(out.Levels)
		if id >= len(rec.variants) {
			return parseErr(tagStreamInf, 0, fmt.Errorf("variant %d has no tag line", id))
		}
		level, err := levelOf(base, id, v, rec.variants[id])
		if err != nil {
			return err
		}
		out.Levels = append(out.Levels, level)
		groups = append(groups, v.Audio)
	}

	for _, t := range rec.media {
		addRendition(out, t)
	}
	assignAudioCodecs(out, groups)
	for _, t := range rec.images {
		out.Thumbnails = append(out.Thumbnails, imageThumbnail(base, t))
	}
	for _, t := range rec.sessionKeys {
		if sig, ok := drmSignal(tagSessionKey, t.attrs["METHOD"], t.attrs["KEYFORMAT"], t.attrs["URI"], t.attrs["IV"]); ok {
			out.DRMSignals = append(out.DRMSignals, sig)
		}
	}
	for _, t := range rec.cueTags {
		out.Cues = append(out.Cues, tagCues(t.rawTag)...)
	}
	out.Locator = newMasterLocator()
	return nil
}

func levelOf(base string, id int, v *m3u8.Variant, t rawTag) (analysis.BitrateLevel, error) {
	construct := func(attr string) string { return tagStreamInf + " " + attr }

	// grafov stores BANDWIDTH as uint32, so a negative value wraps
	if v.Bandwidth == 0 || strings.HasPrefix(t.attrs["BANDWIDTH"], "-") {
		return analysis.BitrateLevel{}, parseErr(construct("BANDWIDTH"), t.line, fmt.Errorf("required positive integer"))
	}
	level := analysis.BitrateLevel{
		ID:      id,
		Bitrate: analysis.Ptr(int64(v.Bandwidth)),
		URI:     analysis.Ptr(manifest.Resolve(base, v.URI)),
	}
	if v.AverageBandwidth > 0 {
		level.AverageBitrate = analysis.Ptr(int64(v.AverageBandwidth))
	}
	if v.Resolution != "" {
		res, err := analysis.ParseResolution(v.Resolution)
		if err != nil {
			return analysis.BitrateLevel{}, parseErr(construct("RESOLUTION"), t.line, err)
		}
		level.Resolution = &res
	}
	if _, ok := t.attrs["FRAME-RATE"]; ok {
		if !(v.FrameRate > 0) || math.IsInf(v.FrameRate, 0) {
			return analysis.BitrateLevel{}, parseErr(construct("FRAME-RATE"), t.line, fmt.Errorf("must be positive"))
		}
		level.FrameRate = analysis.Ptr(v.FrameRate)
	}
	if v.Codecs != "" {
		video, audio := manifest.SplitCodecs(v.Codecs)
		if len(video) > 0 {
			level.Codec = analysis.Ptr(video[0])
		}
		if len(audio) > 0 {
			level.AudioCodec = analysis.Ptr(manifest.FriendlyAudioCodec(audio[0]))
		}
	}
	switch {
	case v.Name != "":
		level.LevelLabel = analysis.Ptr(v.Name)
	case level.Resolution != nil:
		level.LevelLabel = analysis.Ptr(strconv.Itoa(level.Resolution.Height) + "p")
	}
	return level, nil
}

// addRendition reads EXT-X-MEDIA from the raw attribute list; grafov's
// Alternative has no CHANNELS or INSTREAM-ID.
func addRendition(out *manifest.Manifest, t rawTag) {
	mediaType := strings.ToUpper(t.attrs["TYPE"])
	switch mediaType {
	case "AUDIO":
		track := analysis.AudioTrack{
			Language: manifest.CanonicalLanguage(t.attrs["LANGUAGE"]),
			Name:     t.attr("NAME"),
			GroupID:  t.attr("GROUP-ID"),
			Default:  t.yes("DEFAULT"),
		}
		if ch := leadingInt(t.attrs["CHANNELS"]); ch > 0 {
			track.Channels = &ch
		}
		out.Audio = append(out.Audio, track)
	case "SUBTITLES", closedCaptionType:
		out.Subtitles = append(out.Subtitles, analysis.SubtitleTrack{
			Language: manifest.CanonicalLanguage(t.attrs["LANGUAGE"]),
			Name:     t.attr("NAME"),
			Forced:   t.yes("FORCED"),
			Format:   analysis.Ptr(subtitleFormat(mediaType, t)),
		})
	}
}

func subtitleFormat(mediaType string, t rawTag) string {
	if mediaType == closedCaptionType {
		if strings.HasPrefix(strings.ToUpper(t.attrs["INSTREAM-ID"]), "SERVICE") {
			return "CEA-708"
		}
		return "CEA-608"
	}
	uri := strings.ToLower(t.attrs["URI"])
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		uri = uri[:i]
	}
	switch {
	case strings.HasSuffix(uri, ".ttml"), strings.HasSuffix(uri, ".dfxp"), strings.HasSuffix(uri, ".xml"):
		return "TTML"
	case strings.HasSuffix(uri, ".srt"):
		return "SRT"
	}
	return "WebVTT"
}

// assignAudioCodecs copies the audio codec of the first variant referencing each group.
func assignAudioCodecs(out *manifest.Manifest, groups []string) {
	for i := range out.Audio {
		group := out.Audio[i].GroupID
		if group == nil {
			continue
		}
		for li, g := range groups {
			if g == *group && out.Levels[li].AudioCodec != nil {
				out.Audio[i].Codec = analysis.Ptr(*out.Levels[li].AudioCodec)
				break
			}
		}
	}
}

// Thumbnail attributes are informational; malformed values are dropped.

func iframeThumbnail(base string, v *m3u8.Variant) analysis.ThumbnailTrack {
	thumb := analysis.ThumbnailTrack{Format: analysis.Ptr(thumbnailFormat(v.Codecs, "I-FRAME"))}
	if res, err := analysis.ParseResolution(v.Resolution); err == nil {
		thumb.Resolution = &res
	}
	if v.Bandwidth > 0 {
		thumb.Bitrate = analysis.Ptr(int64(v.Bandwidth))
	}
	if v.URI != "" {
		thumb.URI = analysis.Ptr(manifest.Resolve(base, v.URI))
	}
	return thumb
}

func imageThumbnail(base string, t rawTag) analysis.ThumbnailTrack {
	thumb := analysis.ThumbnailTrack{Format: analysis.Ptr(thumbnailFormat(t.attrs["CODECS"], "JPEG"))}
	if res, err := analysis.ParseResolution(t.attrs["RESOLUTION"]); err == nil {
		thumb.Resolution = &res
	}
	if bw, err := strconv.ParseInt(t.attrs["BANDWIDTH"], 10, 64); err == nil && bw > 0 {
		thumb.Bitrate = &bw
	}
	if uri := t.attr("URI"); uri != nil {
		thumb.URI = analysis.Ptr(manifest.Resolve(base, *uri))
	}
	return thumb
}

func thumbnailFormat(codecs, fallback string) string {
	if strings.Contains(strings.ToLower(codecs), "png") {
		return "PNG"
	}
	return fallback
}

func drmSignal(source, method, keyFormat, uri, iv string) (manifest.DRMSignal, bool) {
	method = strings.ToUpper(method)
	if method == "" || method == keyMethodNone {
		return manifest.DRMSignal{}, false
	}
	return manifest.DRMSignal{Source: source, Method: method, KeyFormat: keyFormat, URI: uri, IV: iv}, true
}

// tagCues extracts cues from EXT-X-DATERANGE and EXT-X-SCTE35.
func tagCues(t rawTag) []manifest.Cue {
	if t.name == tagSCTE35 {
		payload := t.attrs["CUE"]
		if payload == "" {
			return nil
		}
		cue := manifest.Cue{Source: tagSCTE35, Encoding: manifest.CueBase64, Payload: payload}
		cue.Duration90k = attrTicks(t, "DURATION")
		return []manifest.Cue{cue}
	}

	duration := attrTicks(t, "DURATION")
	if duration == nil {
		duration = attrTicks(t, "PLANNED-DURATION")
	}
	var cues []manifest.Cue
	for _, name := range []string{scte35AttrOut, scte35AttrIn, scte35AttrCmd} {
		payload, ok := t.attrs[name]
		if !ok {
			continue
		}
		cue := manifest.Cue{Source: tagDateRange + " " + name, Encoding: manifest.CueHex, Payload: payload}
		if name != scte35AttrIn {
			cue.Duration90k = duration
		}
		cues = append(cues, cue)
	}
	return cues
}

func attrTicks(t rawTag, name string) *analysis.Ticks90k {
	v, ok := t.attrs[name]
	if !ok {
		return nil
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs < 0 || math.IsInf(secs, 0) || math.IsNaN(secs) {
		return nil
	}
	return secondsToTicks(secs)
}

// segmentCue converts grafov's per-segment SCTE-35 marker. CUE-OUT-CONT
// repeats the opening splice and is skipped.
func segmentCue(s *m3u8.SCTE) (manifest.Cue, bool) {
	if s == nil || s.Cue == "" {
		return manifest.Cue{}, false
	}
	var cue manifest.Cue
	switch s.Syntax {
	case m3u8.SCTE35_OATCLS:
		if s.CueType == m3u8.SCTE35Cue_Mid {
			return manifest.Cue{}, false
		}
		cue = manifest.Cue{Source: "EXT-OATCLS-SCTE35", Encoding: manifest.CueBase64, Payload: s.Cue}
		if s.Time > 0 {
			cue.Duration90k = secondsToTicks(s.Time)
		}
	case m3u8.SCTE35_67_2014:
		cue = manifest.Cue{Source: "EXT-SCTE35", Encoding: manifest.CueBase64, Payload: s.Cue}
	default:
		return manifest.Cue{}, false
	}
	return cue, true
}

func normalizeMedia(out *manifest.Manifest, src analysis.ManifestSource, lines []line) error {
	pl, rec, err := decodeMedia(lines, true)
	if err != nil {
		return err
	}
	segments := segmentsOf(pl)
	for i, seg := range segments {
		info := rec.segment(i)
		if seg.Duration < 0 || math.IsInf(seg.Duration, 0) || math.IsNaN(seg.Duration) {
			return parseErr(tagInf, info.line, fmt.Errorf("invalid duration %v", seg.Duration))
		}
		if info.hasRange && (seg.Limit <= 0 || seg.Offset < 0) {
			return parseErr(tagByteRange, info.line, fmt.Errorf("invalid sub-range %d@%d", seg.Limit, seg.Offset))
		}
	}

	out.Live = !pl.Closed && pl.MediaType != m3u8.VOD
	out.Levels = []analysis.BitrateLevel{synthesizeLevel(src.URL, segments, rec)}

	for _, seg := range segments {
		if seg.Key == nil {
			continue
		}
		if sig, ok := drmSignal(tagKey, seg.Key.Method, seg.Key.Keyformat, seg.Key.URI, seg.Key.IV); ok {
			out.DRMSignals = append(out.DRMSignals, sig)
		}
	}
	out.Cues = mediaCues(segments, rec)
	out.Locator = newMediaLocator(src.URL, src.Body)
	return nil
}

// mediaCues merges grafov's segment markers with recorded cue tags in
// playlist order.
func mediaCues(segments []*m3u8.MediaSegment, rec *tagRecorder) []manifest.Cue {
	type placed struct {
		segment int
		cue     manifest.Cue
	}
	var all []placed
	for i, seg := range segments {
		if cue, ok := segmentCue(seg.SCTE); ok {
			all = append(all, placed{segment: i, cue: cue})
		}
	}
	for _, t := range rec.cueTags {
		for _, cue := range tagCues(t.rawTag) {
			all = append(all, placed{segment: t.segment, cue: cue})
		}
	}
	slices.SortStableFunc(all, func(a, b placed) int { return a.segment - b.segment })

	cues := make([]manifest.Cue, 0, len(all))
	for _, p := range all {
		cues = append(cues, p.cue)
	}
	return cues
}

// synthesizeLevel derives the single level of a media playlist. Bitrate comes
// from EXT-X-BITRATE hints, else from byte-range sizes over duration.
func synthesizeLevel(url string, segments []*m3u8.MediaSegment, rec *tagRecorder) analysis.BitrateLevel {
	level := analysis.BitrateLevel{ID: 0, URI: analysis.Ptr(url)}
	if bitrate, ok := hintedBitrate(segments, rec); ok {
		level.Bitrate = &bitrate
	} else if bitrate, ok := rangeBitrate(segments); ok {
		level.Bitrate = &bitrate
	}
	return level
}

// hintedBitrate is the duration-weighted mean of EXT-X-BITRATE over tagged segments.
func hintedBitrate(segments []*m3u8.MediaSegment, rec *tagRecorder) (int64, bool) {
	var bits, secs float64
	for i, s := range segments {
		kbps := rec.segment(i).bitrateKbps
		if kbps == nil || s.Duration <= 0 {
			continue
		}
		bits += float64(*kbps) * 1000 * s.Duration
		secs += s.Duration
	}
	if secs <= 0 {
		return 0, false
	}
	return int64(math.Round(bits / secs)), true
}

// rangeBitrate needs every segment to carry a byte range.
func rangeBitrate(segments []*m3u8.MediaSegment) (int64, bool) {
	var bytes int64
	var secs float64
	for _, s := range segments {
		if s.Limit <= 0 {
			return 0, false
		}
		bytes += s.Limit
		secs += s.Duration
	}
	if len(segments) == 0 || secs <= 0 {
		return 0, false
	}
	return int64(math.Round(float64(bytes) * 8 / secs)), true
}

func leadingInt(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func secondsToTicks(secs float64) *analysis.Ticks90k {
	t := analysis.Ticks90k(math.Round(secs * ticksPerSecond))
	return &t
}
