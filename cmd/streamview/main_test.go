// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamview/internal/config"
	"github.com/ManuGH/streamview/internal/domain/analysis"
)

func TestMain(m *testing.M) {
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, config.EnvPrefix) {
			_ = os.Unsetenv(strings.SplitN(e, "=", 2)[0])
		}
	}
	os.Exit(m.Run())
}

const vodPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXTINF:6.0,
seg0.ts
#EXTINF:6.0,
seg1.ts
#EXT-X-ENDLIST
`

type stubAnalyzer struct {
	res *analysis.Result
	err error
}

func (s stubAnalyzer) Analyze(context.Context, string) (*analysis.Result, error) {
	return s.res, s.err
}

func emptyResult() *analysis.Result {
	return &analysis.Result{
		ManifestType:    analysis.ManifestDASH,
		ManifestURL:     "https://cdn.example.com/a.mpd",
		Bitrates:        []analysis.BitrateLevel{},
		AudioTracks:     []analysis.AudioTrack{},
		SubtitleTracks:  []analysis.SubtitleTrack{},
		ThumbnailTracks: []analysis.ThumbnailTrack{},
		DRM:             &analysis.DRMDescriptor{Scheme: analysis.DRMNone},
		Scte35Markers:   []analysis.Scte35Marker{},
		FragmentProbes:  []analysis.FragmentProbeResult{},
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "streamview "), out)
}

func TestAnalyzeRequiresURL(t *testing.T) {
	_, _, err := execute(t, "analyze")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}

func TestRunAnalyze_StdoutIndentedAndCompact(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runAnalyze(context.Background(), stubAnalyzer{res: emptyResult()}, "u", analyzeFlags{}, &buf))
	assert.Contains(t, buf.String(), "\n  \"manifest_type\": \"dash\"")

	buf.Reset()
	require.NoError(t, runAnalyze(context.Background(), stubAnalyzer{res: emptyResult()}, "u", analyzeFlags{compact: true}, &buf))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"bitrates":[]`)
}

func TestRunAnalyze_WritesFileAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	var stdout bytes.Buffer
	err := runAnalyze(context.Background(), stubAnalyzer{res: emptyResult()}, "u", analyzeFlags{out: path}, &stdout)
	require.NoError(t, err)
	assert.Empty(t, stdout.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got analysis.Result
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, analysis.ManifestDASH, got.ManifestType)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.New("flag"), 1},
		{&analyzeError{err: &analysis.ValidationError{Reason: "bad"}}, 2},
		{&analyzeError{err: &analysis.FetchError{Kind: analysis.FetchTimeout}}, 3},
		{&analyzeError{err: &analysis.ParseError{Format: analysis.ManifestHLS}}, 3},
		{&analyzeError{err: errors.New("boom")}, 1},
		{fmt.Errorf("wrapped: %w", &analyzeError{err: &analysis.ValidationError{}}), 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), tt.err.Error())
	}
}

func TestAnalyzeCommand_EndToEnd(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vod/index.m3u8" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte(vodPlaylist))
	}))
	t.Cleanup(ts.Close)
	t.Setenv("STREAMVIEW_OUTBOUND_ALLOW_CIDRS", "127.0.0.0/8,::1/128")

	out, _, err := execute(t, "analyze", "--skip-probe", "--compact", ts.URL+"/vod/index.m3u8")
	require.NoError(t, err)

	var got analysis.Result
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, analysis.ManifestHLS, got.ManifestType)
	assert.False(t, got.Live)
	assert.Len(t, got.Bitrates, 1)
	assert.Empty(t, got.FragmentProbes)
}

func TestAnalyzeCommand_BlockedByDefault(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(vodPlaylist))
	}))
	t.Cleanup(ts.Close)

	_, _, err := execute(t, "analyze", "--skip-probe", ts.URL+"/index.m3u8")
	require.Error(t, err)
	assert.True(t, analysis.IsFetchKind(err, analysis.FetchSsrfBlocked), err.Error())
	assert.Equal(t, 3, exitCode(err))
}
