// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manifest

import "strings"

// CodecKind classifies an RFC 6381 codec string.
type CodecKind int

const (
	CodecOther CodecKind = iota
	CodecVideo
	CodecAudio
	CodecText
)

var codecPrefixes = []struct {
	prefix string
	kind   CodecKind
}{
	{"avc1", CodecVideo}, {"avc3", CodecVideo},
	{"hvc1", CodecVideo}, {"hev1", CodecVideo},
	{"dvh1", CodecVideo}, {"dvhe", CodecVideo},
	{"av01", CodecVideo}, {"vp09", CodecVideo}, {"vp9", CodecVideo}, {"vp8", CodecVideo},
	{"mp4v", CodecVideo},
	{"mp4a", CodecAudio}, {"ac-3", CodecAudio}, {"ec-3", CodecAudio}, {"ac-4", CodecAudio},
	{"opus", CodecAudio}, {"flac", CodecAudio}, {"alac", CodecAudio},
	{"dtsc", CodecAudio}, {"dtse", CodecAudio}, {"dtsx", CodecAudio},
	{"stpp", CodecText}, {"wvtt", CodecText},
}

// ClassifyCodec returns the kind of a single codec token.
func ClassifyCodec(codec string) CodecKind {
	c := strings.ToLower(strings.TrimSpace(codec))
	for _, p := range codecPrefixes {
		if strings.HasPrefix(c, p.prefix) {
			return p.kind
		}
	}
	return CodecOther
}

// SplitCodecs splits a CODECS/codecs attribute into video and audio tokens.
func SplitCodecs(codecs string) (video, audio []string) {
	for _, c := range strings.Split(codecs, ",") {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		switch ClassifyCodec(c) {
		case CodecVideo:
			video = append(video, c)
		case CodecAudio:
			audio = append(audio, c)
		}
	}
	return video, audio
}

// FriendlyAudioCodec maps an audio codec token to a display name.
func FriendlyAudioCodec(codec string) string {
	c := strings.ToLower(strings.TrimSpace(codec))
	switch {
	case c == "mp4a.40.5" || c == "mp4a.40.29":
		return "HE-AAC"
	case strings.HasPrefix(c, "mp4a.a5"), strings.HasPrefix(c, "ac-3"):
		return "AC3"
	case strings.HasPrefix(c, "mp4a.a6"), strings.HasPrefix(c, "ec-3"):
		return "EAC3"
	case strings.HasPrefix(c, "mp4a.69"), strings.HasPrefix(c, "mp4a.6b"):
		return "MP3"
	case strings.HasPrefix(c, "mp4a"):
		return "AAC"
	case strings.HasPrefix(c, "ac-4"):
		return "AC4"
	case strings.HasPrefix(c, "opus"):
		return "Opus"
	case strings.HasPrefix(c, "flac"):
		return "FLAC"
	case strings.HasPrefix(c, "alac"):
		return "ALAC"
	case strings.HasPrefix(c, "dts"):
		return "DTS"
	}
	return codec
}
