// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffprobe implements the fragment prober on top of the ffprobe binary,
// with mp4ff box inspection for protected ISO-BMFF fragments.
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/log"
	"github.com/ManuGH/streamview/internal/probe"
)

const (
	defaultBin     = "ffprobe"
	maxStderrBytes = 4096
)

var errNoStreams = errors.New("ffprobe returned no playable streams")

// runFunc executes bin with args, feeding stdin.
type runFunc func(ctx context.Context, bin string, args []string, stdin []byte) (stdout, stderr []byte, err error)

// Prober implements probe.Prober.
type Prober struct {
	bin string
	run runFunc
}

var _ probe.Prober = (*Prober)(nil)

// NewProber returns a prober using bin, or ffprobe from PATH when empty.
func NewProber(bin string) *Prober {
	if strings.TrimSpace(bin) == "" {
		bin = defaultBin
	}
	return &Prober{bin: bin, run: execRun}
}

func execRun(ctx context.Context, bin string, args []string, stdin []byte) ([]byte, []byte, error) {
	// #nosec G204 - bin comes from configuration; args are fixed and data goes through stdin
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	return out, stderr.Bytes(), err
}

// Probe runs ffprobe over data. When ffprobe cannot read a protected
// fragment, the metadata found in the init boxes is returned together with an
// error wrapping analysis.ErrEncrypted.
func (p *Prober) Probe(ctx context.Context, data []byte, hint probe.Hint) (analysis.FragmentProbeResult, error) {
	var info mp4Info
	if hint.Container == "mp4" || looksISOBMFF(data) {
		info = inspectMP4(data)
	}

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-i", "pipe:0",
	}
	out, stderr, runErr := p.run(ctx, p.bin, args, data)

	var pd probeData
	jsonErr := json.Unmarshal(out, &pd)
	valid := jsonErr == nil && pd.hasPlayableStream()

	if !valid {
		cause := runErr
		switch {
		case cause != nil:
			cause = fmt.Errorf("ffprobe failed: %w (stderr: %s)", cause, truncate(stderr))
		case jsonErr != nil:
			cause = fmt.Errorf("json decode: %w", jsonErr)
		default:
			cause = errNoStreams
		}
		if info.encrypted {
			return info.result(), fmt.Errorf("%w: %v", analysis.ErrEncrypted, cause)
		}
		return analysis.FragmentProbeResult{}, cause
	}
	if runErr != nil {
		logger := log.WithComponentFromContext(ctx, "ffprobe")
		logger.Warn().Err(runErr).
			Str(log.FieldEvent, "ffprobe.nonzero_exit").
			Str("stderr", truncate(stderr)).
			Msg("ffprobe non-zero exit but JSON accepted")
	}

	res := pd.result()
	if info.encrypted {
		res.Encrypted = true
		if res.Codec == nil && info.videoCodec != "" {
			res.Codec = analysis.Ptr(info.videoCodec)
		}
	}
	return res, nil
}

func truncate(b []byte) string {
	if len(b) > maxStderrBytes {
		return string(b[:maxStderrBytes]) + "..."
	}
	return string(b)
}

func (info mp4Info) result() analysis.FragmentProbeResult {
	res := analysis.FragmentProbeResult{Container: analysis.Ptr("mp4"), Encrypted: info.encrypted}
	if info.videoCodec != "" {
		res.Codec = analysis.Ptr(info.videoCodec)
	}
	if info.width > 0 && info.height > 0 {
		res.Resolution = &analysis.Resolution{Width: info.width, Height: info.height}
	}
	if info.audioCodec != "" {
		res.AudioCodec = analysis.Ptr(info.audioCodec)
	}
	if info.channels > 0 {
		res.AudioChannels = analysis.Ptr(info.channels)
	}
	if info.sampleRate > 0 {
		res.AudioSampleRate = analysis.Ptr(info.sampleRate)
	}
	return res
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Profile      string `json:"profile,omitempty"`
	PixFmt       string `json:"pix_fmt,omitempty"`
	ColorSpace   string `json:"color_space,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	RFrameRate   string `json:"r_frame_rate,omitempty"`
	BitRate      string `json:"bit_rate,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Channels     int    `json:"channels,omitempty"`
	SampleRate   string `json:"sample_rate,omitempty"`
}

type probeData struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
}

func (pd probeData) hasPlayableStream() bool {
	for _, s := range pd.Streams {
		if (s.CodecType == "video" || s.CodecType == "audio") && s.CodecName != "" {
			return true
		}
	}
	return false
}

func (pd probeData) result() analysis.FragmentProbeResult {
	var res analysis.FragmentProbeResult
	if c := canonicalContainer(pd.Format.FormatName); c != "" {
		res.Container = &c
	}

	var video, audio *probeStream
	for i := range pd.Streams {
		s := &pd.Streams[i]
		switch {
		case s.CodecType == "video" && video == nil:
			video = s
		case s.CodecType == "audio" && audio == nil:
			audio = s
		}
	}

	if video != nil {
		res.Codec = nonEmpty(video.CodecName)
		res.Profile = nonEmpty(video.Profile)
		if video.Width > 0 && video.Height > 0 {
			res.Resolution = &analysis.Resolution{Width: video.Width, Height: video.Height}
		}
		if fps, ok := parseRate(video.AvgFrameRate); ok {
			res.FPS = &fps
		} else if fps, ok := parseRate(video.RFrameRate); ok {
			res.FPS = &fps
		}
		if cs := video.ColorSpace; cs != "" && cs != "unknown" {
			res.ColorSpace = &cs
		} else {
			res.ColorSpace = nonEmpty(video.PixFmt)
		}
		res.MeasuredBitRate = parseInt(video.BitRate)
	}
	if res.MeasuredBitRate == nil {
		res.MeasuredBitRate = parseInt(pd.Format.BitRate)
	}
	if d, err := strconv.ParseFloat(pd.Format.Duration, 64); err == nil && d > 0 {
		res.FragmentDuration = &d
	}
	if audio != nil {
		res.AudioCodec = nonEmpty(audio.CodecName)
		if audio.Channels > 0 {
			res.AudioChannels = analysis.Ptr(audio.Channels)
		}
		if sr, err := strconv.Atoi(audio.SampleRate); err == nil && sr > 0 {
			res.AudioSampleRate = &sr
		}
	}
	return res
}

// canonicalContainer maps ffprobe's format_name list to a short name.
func canonicalContainer(formatName string) string {
	canonical := ""
	for _, p := range strings.Split(formatName, ",") {
		t := strings.TrimSpace(p)
		switch t {
		case "mpegts":
			return "ts"
		case "mp4", "mov":
			return "mp4"
		}
		if canonical == "" && t != "" {
			canonical = t
		}
	}
	return canonical
}

func parseRate(s string) (float64, bool) {
	if s == "" || s == "0/0" {
		return 0, false
	}
	num, den, frac := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	if !frac {
		return n, true
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d <= 0 {
		return 0, false
	}
	return n / d, true
}

func parseInt(s string) *int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
