// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package dash normalizes MPEG-DASH MPD documents.
package dash

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/log"
	"github.com/ManuGH/streamview/internal/manifest"
)

const (
	schemeSCTE35Bin    = "urn:scte:scte35:2013:bin"
	schemeSCTE35XMLBin = "urn:scte:scte35:2014:xml+bin"
	schemeSCTE35XML    = "urn:scte:scte35:2013:xml"
	typeDynamic        = "dynamic"
	ticksPerSecond     = 90000
)

type setKind int

const (
	kindSkip setKind = iota
	kindVideo
	kindAudio
	kindText
	kindImage
)

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the wall clock used for live segment numbering.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// Normalizer implements manifest.Normalizer for DASH.
type Normalizer struct {
	now func() time.Time
}

// New returns a DASH normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, o := range opts {
		o(n)
	}
	return n
}

func parseErr(construct string, err error) error {
	return &analysis.ParseError{Format: analysis.ManifestDASH, Construct: construct, Err: err}
}

// Normalize parses src.Body. Every Representation of a video AdaptationSet
// becomes one level, across all Periods in document order.
func (n *Normalizer) Normalize(ctx context.Context, src analysis.ManifestSource) (*manifest.Manifest, error) {
	doc, err := decode(src.Body)
	if err != nil {
		return nil, err
	}

	b := &builder{
		doc: doc,
		out: &manifest.Manifest{Type: analysis.ManifestDASH, URL: src.URL, Live: doc.Type == typeDynamic},
		loc: &locator{doc: doc, now: n.now},
	}
	mpdBase := resolveBase(src.URL, doc.BaseURLs)
	for pi := range doc.Periods {
		if err := b.period(&doc.Periods[pi], mpdBase); err != nil {
			return nil, err
		}
	}
	if len(b.out.Levels) > 0 {
		b.out.Locator = b.loc
	}

	logger := log.WithComponentFromContext(ctx, "dash")
	logger.Debug().
		Str(log.FieldEvent, "manifest.normalized").
		Int("periods", len(doc.Periods)).
		Int("levels", len(b.out.Levels)).
		Int("audio_tracks", len(b.out.Audio)).
		Int("cues", len(b.out.Cues)).
		Int("drm_signals", len(b.out.DRMSignals)).
		Bool("live", b.out.Live).
		Msg("dash mpd normalized")
	return b.out, nil
}

func decode(body []byte) (*mpdDoc, error) {
	body = bytes.TrimPrefix(body, []byte{0xEF, 0xBB, 0xBF})
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, parseErr("MPD", fmt.Errorf("no root element: %w", err))
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "MPD" {
			return nil, parseErr("MPD", fmt.Errorf("unexpected root element <%s>", start.Name.Local))
		}
		var doc mpdDoc
		if err := dec.DecodeElement(&doc, &start); err != nil {
			return nil, parseErr("MPD", err)
		}
		return &doc, nil
	}
}

type builder struct {
	doc *mpdDoc
	out *manifest.Manifest
	loc *locator
}

func (b *builder) period(p *period, mpdBase string) error {
	base := resolveBase(mpdBase, p.BaseURLs)
	for ai := range p.AdaptationSets {
		as := &p.AdaptationSets[ai]
		b.protection(as)
		asBase := resolveBase(base, as.BaseURLs)
		switch classify(as) {
		case kindVideo:
			for ri := range as.Representations {
				if err := b.level(p, as, &as.Representations[ri], asBase); err != nil {
					return err
				}
			}
		case kindAudio:
			b.audio(as)
		case kindText:
			b.subtitle(as)
		case kindImage:
			b.thumbnails(p, as, asBase)
		}
	}
	for _, es := range p.EventStreams {
		b.events(es)
	}
	return nil
}

func resolveBase(parent string, urls []baseURL) string {
	if ref := firstBaseURL(urls); ref != "" {
		return manifest.Resolve(parent, ref)
	}
	return parent
}

func classify(as *adaptationSet) setKind {
	mime := strings.ToLower(as.MimeType)
	codecs := as.Codecs
	if len(as.Representations) > 0 {
		r := as.Representations[0]
		if mime == "" {
			mime = strings.ToLower(r.MimeType)
		}
		if codecs == "" {
			codecs = r.Codecs
		}
	}
	ct := strings.ToLower(as.ContentType)
	switch {
	case ct == "image" || strings.HasPrefix(mime, "image/"):
		return kindImage
	case ct == "text" || strings.HasPrefix(mime, "text/") || strings.Contains(mime, "ttml") || isTextCodecs(codecs) || hasSubtitleRole(as):
		return kindText
	case ct == "audio" || strings.HasPrefix(mime, "audio/"):
		return kindAudio
	case ct == "video" || strings.HasPrefix(mime, "video/"):
		return kindVideo
	}
	video, audio := manifest.SplitCodecs(codecs)
	switch {
	case len(video) > 0:
		return kindVideo
	case len(audio) > 0:
		return kindAudio
	case ct == "" && mime == "" && codecs == "":
		return kindVideo
	}
	return kindSkip
}

func isTextCodecs(codecs string) bool {
	for _, c := range strings.Split(codecs, ",") {
		if manifest.ClassifyCodec(c) == manifest.CodecText {
			return true
		}
	}
	return false
}

func hasSubtitleRole(as *adaptationSet) bool {
	for _, r := range as.Roles {
		switch strings.ToLower(r.Value) {
		case "subtitle", "caption", "forced-subtitle", "forced_subtitle":
			return true
		}
	}
	return false
}

func (b *builder) level(p *period, as *adaptationSet, rep *representation, asBase string) error {
	bw, err := strconv.ParseInt(strings.TrimSpace(rep.Bandwidth), 10, 64)
	if err != nil || bw <= 0 {
		return parseErr("Representation@bandwidth", fmt.Errorf("representation %q: invalid bandwidth %q", rep.ID, rep.Bandwidth))
	}
	lvl := analysis.BitrateLevel{ID: len(b.out.Levels), Bitrate: &bw}

	res, err := resolution(inherit(rep.Width, as.Width), inherit(rep.Height, as.Height))
	if err != nil {
		return parseErr("Representation@width", fmt.Errorf("representation %q: %w", rep.ID, err))
	}
	lvl.Resolution = res

	if fr := inherit(rep.FrameRate, as.FrameRate); fr != "" {
		v, err := parseFrameRate(fr)
		if err != nil {
			return parseErr("Representation@frameRate", fmt.Errorf("representation %q: %w", rep.ID, err))
		}
		lvl.FrameRate = &v
	}

	if codecs := inherit(rep.Codecs, as.Codecs); codecs != "" {
		video, audio := manifest.SplitCodecs(codecs)
		if len(video) > 0 {
			lvl.Codec = analysis.Ptr(video[0])
		} else {
			lvl.Codec = analysis.Ptr(strings.TrimSpace(codecs))
		}
		if len(audio) > 0 {
			lvl.AudioCodec = analysis.Ptr(manifest.FriendlyAudioCodec(audio[0]))
		}
	}
	if rep.ID != "" {
		lvl.LevelLabel = analysis.Ptr(rep.ID)
	}
	repBase := resolveBase(asBase, rep.BaseURLs)
	if firstBaseURL(rep.BaseURLs) != "" {
		lvl.URI = analysis.Ptr(repBase)
	}

	b.out.Levels = append(b.out.Levels, lvl)
	b.loc.reps = append(b.loc.reps, repContext{period: p, set: as, rep: rep, base: repBase})
	return nil
}

func inherit(own, parent string) string {
	if strings.TrimSpace(own) != "" {
		return strings.TrimSpace(own)
	}
	return strings.TrimSpace(parent)
}

func resolution(w, h string) (*analysis.Resolution, error) {
	if w == "" && h == "" {
		return nil, nil
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return nil, fmt.Errorf("invalid width %q", w)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return nil, fmt.Errorf("invalid height %q", h)
	}
	return &analysis.Resolution{Width: width, Height: height}, nil
}

func parseFrameRate(s string) (float64, error) {
	num, den, frac := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid frame rate %q", s)
	}
	if !frac {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid frame rate %q", s)
	}
	return n / d, nil
}

func (b *builder) protection(as *adaptationSet) {
	b.addProtection(as.ContentProtections)
	for _, rep := range as.Representations {
		b.addProtection(rep.ContentProtections)
	}
}

func (b *builder) addProtection(cps []contentProtection) {
	for _, cp := range cps {
		sig := manifest.DRMSignal{
			Source:      "ContentProtection",
			SchemeIDURI: strings.TrimSpace(cp.SchemeIDURI),
			Value:       strings.TrimSpace(cp.Value),
			DefaultKID:  strings.TrimSpace(cp.DefaultKID),
			PSSH:        cp.pssh(),
			LicenseURL:  cp.licenseURL(),
		}
		if !containsSignal(b.out.DRMSignals, sig) {
			b.out.DRMSignals = append(b.out.DRMSignals, sig)
		}
	}
}

func containsSignal(sigs []manifest.DRMSignal, s manifest.DRMSignal) bool {
	for _, existing := range sigs {
		if existing == s {
			return true
		}
	}
	return false
}

func (b *builder) audio(as *adaptationSet) {
	t := analysis.AudioTrack{
		Language: manifest.CanonicalLanguage(as.Lang),
		Name:     firstLabel(as.Labels),
	}
	if as.ID != "" {
		t.GroupID = analysis.Ptr(as.ID)
	}
	codecs := as.Codecs
	channels := as.ChannelConfigs
	if len(as.Representations) > 0 {
		rep := as.Representations[0]
		codecs = inherit(rep.Codecs, codecs)
		if len(channels) == 0 {
			channels = rep.ChannelConfigs
		}
		if bw, err := strconv.ParseInt(strings.TrimSpace(rep.Bandwidth), 10, 64); err == nil && bw > 0 {
			t.Bitrate = &bw
		}
	}
	if _, audio := manifest.SplitCodecs(codecs); len(audio) > 0 {
		t.Codec = analysis.Ptr(manifest.FriendlyAudioCodec(audio[0]))
	} else if c := strings.TrimSpace(codecs); c != "" {
		t.Codec = analysis.Ptr(manifest.FriendlyAudioCodec(c))
	}
	for _, cc := range channels {
		if n, err := strconv.Atoi(strings.TrimSpace(cc.Value)); err == nil && n > 0 {
			t.Channels = &n
			break
		}
	}
	for _, r := range as.Roles {
		if strings.EqualFold(r.Value, "main") {
			t.Default = true
		}
	}
	b.out.Audio = append(b.out.Audio, t)
}

func (b *builder) subtitle(as *adaptationSet) {
	t := analysis.SubtitleTrack{
		Language: manifest.CanonicalLanguage(as.Lang),
		Name:     firstLabel(as.Labels),
	}
	mime, codecs := strings.ToLower(as.MimeType), strings.ToLower(as.Codecs)
	if len(as.Representations) > 0 {
		mime = strings.ToLower(inherit(as.Representations[0].MimeType, mime))
		codecs = strings.ToLower(inherit(as.Representations[0].Codecs, codecs))
	}
	switch {
	case strings.Contains(codecs, "wvtt") || mime == "text/vtt":
		t.Format = analysis.Ptr("WebVTT")
	case strings.Contains(codecs, "stpp") || strings.Contains(mime, "ttml"):
		t.Format = analysis.Ptr("TTML")
	case mime != "":
		t.Format = analysis.Ptr(mime)
	}
	for _, r := range as.Roles {
		switch strings.ToLower(r.Value) {
		case "forced-subtitle", "forced_subtitle":
			t.Forced = true
		}
	}
	b.out.Subtitles = append(b.out.Subtitles, t)
}

func (b *builder) thumbnails(p *period, as *adaptationSet, asBase string) {
	for ri := range as.Representations {
		rep := &as.Representations[ri]
		t := analysis.ThumbnailTrack{}
		if res, err := resolution(inherit(rep.Width, as.Width), inherit(rep.Height, as.Height)); err == nil {
			t.Resolution = res
		}
		mime := strings.ToLower(inherit(rep.MimeType, as.MimeType))
		if strings.Contains(mime, "png") {
			t.Format = analysis.Ptr("PNG")
		} else {
			t.Format = analysis.Ptr("JPEG")
		}
		if bw, err := strconv.ParseInt(strings.TrimSpace(rep.Bandwidth), 10, 64); err == nil && bw > 0 {
			t.Bitrate = &bw
		}
		repBase := resolveBase(asBase, rep.BaseURLs)
		if tmpl := mergeTemplates(rep.SegmentTemplate, as.SegmentTemplate, p.SegmentTemplate); tmpl != nil && tmpl.Media != "" {
			t.URI = analysis.Ptr(manifest.Resolve(repBase, tmpl.Media))
		} else if firstBaseURL(rep.BaseURLs) != "" {
			t.URI = analysis.Ptr(repBase)
		}
		b.out.Thumbnails = append(b.out.Thumbnails, t)
	}
}

func (b *builder) events(es eventStream) {
	scheme := strings.ToLower(strings.TrimSpace(es.SchemeIDURI))
	if scheme != schemeSCTE35Bin && scheme != schemeSCTE35XMLBin && scheme != schemeSCTE35XML {
		return
	}
	timescale := uint64(1)
	if ts, err := strconv.ParseUint(strings.TrimSpace(es.Timescale), 10, 64); err == nil && ts > 0 {
		timescale = ts
	}
	pto, _ := strconv.ParseUint(strings.TrimSpace(es.PresentationTimeOffset), 10, 64)

	for _, ev := range es.Events {
		cue := manifest.Cue{Source: "EventStream " + scheme, Encoding: manifest.CueBase64, Payload: eventPayload(ev)}
		if cue.Payload == "" {
			cue.Encoding = manifest.CueUnsupported
		}
		if pt, err := strconv.ParseUint(strings.TrimSpace(ev.PresentationTime), 10, 64); err == nil {
			if pt >= pto {
				pt -= pto
			}
			ticks := toTicks(pt, timescale)
			cue.PTS90k = &ticks
		}
		if d, err := strconv.ParseUint(strings.TrimSpace(ev.Duration), 10, 64); err == nil {
			ticks := toTicks(d, timescale)
			cue.Duration90k = &ticks
		}
		if id, err := strconv.ParseUint(strings.TrimSpace(ev.ID), 10, 32); err == nil {
			v := uint32(id)
			cue.EventID = &v
		}
		b.out.Cues = append(b.out.Cues, cue)
	}
}

// eventPayload returns the base64 splice_info_section of an Event, or ""
// when the event carries the section only in XML form.
func eventPayload(ev event) string {
	if v := strings.TrimSpace(ev.MessageData); v != "" {
		return v
	}
	for _, s := range ev.Signals {
		for _, bin := range s.Binary {
			if v := strings.TrimSpace(bin); v != "" {
				return v
			}
		}
	}
	if len(ev.SpliceInfo) > 0 {
		return ""
	}
	return strings.TrimSpace(ev.Text)
}

// toTicks converts a timescale value to 90 kHz without intermediate overflow.
func toTicks(v, timescale uint64) analysis.Ticks90k {
	if timescale == ticksPerSecond {
		return analysis.Ticks90k(v)
	}
	whole, rem := v/timescale, v%timescale
	return analysis.Ticks90k(whole*ticksPerSecond + rem*ticksPerSecond/timescale)
}

var errBadDuration = errors.New("invalid xs:duration")

// parseXSDuration parses the subset of xs:duration used by MPDs
// (PnDTnHnMnS). Years and months are rejected.
func parseXSDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("%w: %q", errBadDuration, s)
	}
	s = s[1:]
	var total float64
	inTime, parts := false, 0
	for s != "" {
		if s[0] == 'T' {
			inTime = true
			s = s[1:]
			continue
		}
		i := 0
		for i < len(s) && (s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
			i++
		}
		if i == 0 || i == len(s) {
			return 0, fmt.Errorf("%w: %q", errBadDuration, s)
		}
		v, err := strconv.ParseFloat(s[:i], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", errBadDuration, s)
		}
		switch unit := s[i]; {
		case unit == 'D' && !inTime:
			total += v * 86400
		case unit == 'H' && inTime:
			total += v * 3600
		case unit == 'M' && inTime:
			total += v * 60
		case unit == 'S' && inTime:
			total += v
		default:
			return 0, fmt.Errorf("%w: unsupported unit %q", errBadDuration, unit)
		}
		s = s[i+1:]
		parts++
	}
	if parts == 0 {
		return 0, fmt.Errorf("%w: no components", errBadDuration)
	}
	d := time.Duration(total * float64(time.Second))
	if neg {
		d = -d
	}
	return d, nil
}
