// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffprobe

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/probe"
)

const sampleJSON = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "profile": "High", "width": 1280, "height": 720,
     "avg_frame_rate": "30000/1001", "r_frame_rate": "60/1", "pix_fmt": "yuv420p", "color_space": "bt709", "bit_rate": "2500000"},
    {"codec_type": "audio", "codec_name": "aac", "channels": 2, "sample_rate": "48000"}
  ],
  "format": {"format_name": "mpegts", "duration": "6.006000", "bit_rate": "2700000"}
}`

func fakeRunner(stdout string, stderr string, err error, seen *[]string) runFunc {
	return func(_ context.Context, bin string, args []string, _ []byte) ([]byte, []byte, error) {
		if seen != nil {
			*seen = append([]string{bin}, args...)
		}
		return []byte(stdout), []byte(stderr), err
	}
}

func TestProbe_MapsStreams(t *testing.T) {
	var seen []string
	p := &Prober{bin: "/usr/bin/ffprobe", run: fakeRunner(sampleJSON, "", nil, &seen)}

	res, err := p.Probe(context.Background(), []byte("G@fragment"), probe.Hint{Container: "ts"})
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/ffprobe", seen[0])
	assert.Contains(t, seen, "pipe:0")
	assert.Equal(t, "ts", *res.Container)
	assert.Equal(t, "h264", *res.Codec)
	assert.Equal(t, "High", *res.Profile)
	assert.Equal(t, &analysis.Resolution{Width: 1280, Height: 720}, res.Resolution)
	assert.InDelta(t, 29.97, *res.FPS, 0.01)
	assert.Equal(t, "bt709", *res.ColorSpace)
	assert.Equal(t, int64(2500000), *res.MeasuredBitRate)
	assert.InDelta(t, 6.006, *res.FragmentDuration, 1e-9)
	assert.Equal(t, "aac", *res.AudioCodec)
	assert.Equal(t, 2, *res.AudioChannels)
	assert.Equal(t, 48000, *res.AudioSampleRate)
	assert.False(t, res.Encrypted)
}

func TestProbe_Fallbacks(t *testing.T) {
	out := `{"streams":[{"codec_type":"video","codec_name":"hevc","avg_frame_rate":"0/0","r_frame_rate":"25/1","color_space":"unknown","pix_fmt":"yuv420p10le"}],
	"format":{"format_name":"mov,mp4,m4a,3gp,3g2,mj2","bit_rate":"900000"}}`
	p := &Prober{bin: "ffprobe", run: fakeRunner(out, "", nil, nil)}

	res, err := p.Probe(context.Background(), []byte("x"), probe.Hint{})
	require.NoError(t, err)
	assert.Equal(t, "mp4", *res.Container)
	assert.InDelta(t, 25.0, *res.FPS, 1e-9)
	assert.Equal(t, "yuv420p10le", *res.ColorSpace)
	assert.Equal(t, int64(900000), *res.MeasuredBitRate)
	assert.Nil(t, res.FragmentDuration)
	assert.Nil(t, res.AudioCodec)
}

func TestProbe_Failure(t *testing.T) {
	p := &Prober{bin: "ffprobe", run: fakeRunner("", "Invalid data found when processing input", errors.New("exit status 1"), nil)}

	_, err := p.Probe(context.Background(), []byte("garbage"), probe.Hint{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, analysis.ErrEncrypted)
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestProbe_NonZeroExitWithUsableJSON(t *testing.T) {
	p := &Prober{bin: "ffprobe", run: fakeRunner(sampleJSON, "trailing garbage", errors.New("exit status 1"), nil)}

	res, err := p.Probe(context.Background(), []byte("x"), probe.Hint{})
	require.NoError(t, err)
	assert.Equal(t, "h264", *res.Codec)
}

func TestProbe_NoStreams(t *testing.T) {
	p := &Prober{bin: "ffprobe", run: fakeRunner(`{"streams":[],"format":{}}`, "", nil, nil)}

	_, err := p.Probe(context.Background(), []byte("x"), probe.Hint{})
	assert.ErrorIs(t, err, errNoStreams)
}

func encryptedInit(t *testing.T) []byte {
	t.Helper()
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(90000, "video", "und")
	init.Moov.Trak.Mdia.Minf.Stbl.Stsd.AddChild(mp4.CreateVisualSampleEntryBox("encv", 1280, 720, nil))
	var buf bytes.Buffer
	require.NoError(t, init.Encode(&buf))
	return buf.Bytes()
}

func TestProbe_EncryptedFallback(t *testing.T) {
	data := encryptedInit(t)
	p := &Prober{bin: "ffprobe", run: fakeRunner("", "decryption failed", errors.New("exit status 1"), nil)}

	res, err := p.Probe(context.Background(), data, probe.Hint{Container: "mp4", HasInit: true})
	require.ErrorIs(t, err, analysis.ErrEncrypted)
	assert.True(t, res.Encrypted)
	assert.Equal(t, "mp4", *res.Container)
	assert.Equal(t, &analysis.Resolution{Width: 1280, Height: 720}, res.Resolution)
}

func TestInspectMP4(t *testing.T) {
	info := inspectMP4(encryptedInit(t))
	assert.True(t, info.isoBMFF)
	assert.True(t, info.encrypted)
	assert.Equal(t, "encv", info.videoCodec)

	assert.False(t, inspectMP4([]byte{0x47, 0x40, 0x11, 0x10, 0, 0, 0, 0}).isoBMFF)
}

func TestCanonicalContainer(t *testing.T) {
	cases := map[string]string{
		"mpegts":                  "ts",
		"mov,mp4,m4a,3gp,3g2,mj2": "mp4",
		"matroska,webm":           "matroska",
		"":                        "",
	}
	for in, want := range cases {
		assert.Equal(t, want, canonicalContainer(in), in)
	}
}

func TestNewProberDefaultsBinary(t *testing.T) {
	assert.Equal(t, "ffprobe", NewProber("  ").bin)
	assert.Equal(t, "/opt/ffprobe", NewProber("/opt/ffprobe").bin)
}
