// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		name        string
		url         string
		body        string
		contentType string
		want        Format
	}{
		{"m3u8 suffix", "https://cdn.example/live/master.m3u8?token=abc", "", "", HLS},
		{"mpd suffix uppercase", "https://cdn.example/vod/Manifest.MPD", "", "", DASH},
		{"query lies", "https://cdn.example/play?file=a.mpd", "#EXTM3U\n", "", HLS},
		{"suffix wins over body", "https://cdn.example/x.m3u8", "<MPD/>", "", HLS},
		{"sniff hls with bom", "https://cdn.example/stream", "\xEF\xBB\xBF  \n#EXTM3U\n", "", HLS},
		{"sniff mpd with prolog", "https://cdn.example/stream",
			`<?xml version="1.0"?><!-- c --><MPD xmlns="urn:mpeg:dash:schema:mpd:2011"></MPD>`, "", DASH},
		{"sniff mpd with latin-1 prolog", "https://cdn.example/stream",
			"<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<MPD type=\"static\"></MPD>", "", DASH},
		{"other xml root", "https://cdn.example/stream", `<SmoothStreamingMedia/>`, "", Unrecognized},
		{"content type hls", "https://cdn.example/stream", "junk", "application/vnd.apple.mpegurl; charset=utf-8", HLS},
		{"content type dash", "https://cdn.example/stream", "", "application/dash+xml", DASH},
		{"inconclusive", "https://cdn.example/video", "<html></html>", "text/html", Unrecognized},
		{"empty", "", "", "", Unrecognized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Detect(tc.url, []byte(tc.body), tc.contentType))
		})
	}
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "hls", HLS.String())
	assert.Equal(t, "dash", DASH.String())
	assert.Equal(t, "unrecognized", Unrecognized.String())
}

func TestSplitCodecs(t *testing.T) {
	video, audio := SplitCodecs("avc1.64001f, mp4a.40.2,ec-3,stpp")
	assert.Equal(t, []string{"avc1.64001f"}, video)
	assert.Equal(t, []string{"mp4a.40.2", "ec-3"}, audio)

	video, audio = SplitCodecs("")
	assert.Empty(t, video)
	assert.Empty(t, audio)
}

func TestFriendlyAudioCodec(t *testing.T) {
	cases := map[string]string{
		"mp4a.40.2": "AAC",
		"mp4a.40.5": "HE-AAC",
		"ac-3":      "AC3",
		"ec-3":      "EAC3",
		"opus":      "Opus",
		"zzzz":      "zzzz",
	}
	for in, want := range cases {
		assert.Equal(t, want, FriendlyAudioCodec(in), in)
	}
}

func TestCanonicalLanguage(t *testing.T) {
	assert.Nil(t, CanonicalLanguage("  "))

	got := CanonicalLanguage("en-us")
	require.NotNil(t, got)
	assert.Equal(t, "en-US", *got)

	got = CanonicalLanguage("not a tag!")
	require.NotNil(t, got)
	assert.Equal(t, "not a tag!", *got)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "https://cdn.example/hls/720p/index.m3u8", Resolve("https://cdn.example/hls/master.m3u8", "720p/index.m3u8"))
	assert.Equal(t, "https://other.example/a.ts", Resolve("https://cdn.example/hls/master.m3u8", "https://other.example/a.ts"))
	assert.Equal(t, "https://cdn.example/root.ts", Resolve("https://cdn.example/hls/master.m3u8", "/root.ts"))
}

func TestContainerHint(t *testing.T) {
	assert.Equal(t, "ts", ContainerHint("https://a/seg1.ts?x=1"))
	assert.Equal(t, "mp4", ContainerHint("https://a/chunk-1.m4s"))
	assert.Equal(t, "", ContainerHint("https://a/segment"))
}
