// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package analysis holds the normalized stream model returned by the pipeline.
// Optional attributes are pointers: nil means "not signalled", never a sentinel.
package analysis

import (
	"fmt"
	"strconv"
	"strings"
)

// ManifestType identifies the manifest grammar a result was normalized from.
type ManifestType string

const (
	ManifestHLS  ManifestType = "hls"
	ManifestDASH ManifestType = "dash"
)

// ManifestSource is the fetched manifest before normalization.
type ManifestSource struct {
	URL               string
	DeclaredExtension string
	Body              []byte
	ContentType       string
}

// Resolution is a pixel size. It marshals as "WIDTHxHEIGHT".
type Resolution struct {
	Width  int
	Height int
}

// ParseResolution parses "1920x1080" (case-insensitive separator).
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("resolution %q: missing 'x' separator", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return Resolution{}, fmt.Errorf("resolution %q: invalid width", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return Resolution{}, fmt.Errorf("resolution %q: invalid height", s)
	}
	return Resolution{Width: width, Height: height}, nil
}

func (r Resolution) String() string {
	return strconv.Itoa(r.Width) + "x" + strconv.Itoa(r.Height)
}

// MarshalText implements encoding.TextMarshaler.
func (r Resolution) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Resolution) UnmarshalText(b []byte) error {
	parsed, err := ParseResolution(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// BitrateLevel is one rendition of the ladder. ID is the declaration ordinal.
type BitrateLevel struct {
	ID             int         `json:"id"`
	Bitrate        *int64      `json:"bitrate,omitempty"`
	AverageBitrate *int64      `json:"average_bitrate,omitempty"`
	Resolution     *Resolution `json:"resolution,omitempty"`
	Codec          *string     `json:"codec,omitempty"`
	AudioCodec     *string     `json:"audio_codec,omitempty"`
	FrameRate      *float64    `json:"frame_rate,omitempty"`
	LevelLabel     *string     `json:"level_label,omitempty"`
	URI            *string     `json:"uri,omitempty"`
}

// BitrateOrZero returns the declared bitrate, or 0 when none was derivable.
func (l BitrateLevel) BitrateOrZero() int64 {
	if l.Bitrate == nil {
		return 0
	}
	return *l.Bitrate
}

type AudioTrack struct {
	Language *string `json:"language,omitempty"`
	Name     *string `json:"name,omitempty"`
	Codec    *string `json:"codec,omitempty"`
	Channels *int    `json:"channels,omitempty"`
	Bitrate  *int64  `json:"bitrate,omitempty"`
	GroupID  *string `json:"group_id,omitempty"`
	Default  bool    `json:"default"`
}

type SubtitleTrack struct {
	Language *string `json:"language,omitempty"`
	Name     *string `json:"name,omitempty"`
	Format   *string `json:"format,omitempty"`
	Forced   bool    `json:"forced"`
}

type ThumbnailTrack struct {
	Resolution *Resolution `json:"resolution,omitempty"`
	Format     *string     `json:"format,omitempty"`
	Bitrate    *int64      `json:"bitrate,omitempty"`
	URI        *string     `json:"uri,omitempty"`
}

// DRMScheme is the normalized protection system.
type DRMScheme string

const (
	DRMWidevine         DRMScheme = "widevine"
	DRMPlayReady        DRMScheme = "playready"
	DRMFairPlay         DRMScheme = "fairplay"
	DRMClearKey         DRMScheme = "clearkey"
	DRMUnknownProtected DRMScheme = "unknown_protected"
	DRMNone             DRMScheme = "none"
)

// Named reports whether the scheme identifies a concrete key system.
func (s DRMScheme) Named() bool {
	switch s {
	case DRMWidevine, DRMPlayReady, DRMFairPlay, DRMClearKey:
		return true
	}
	return false
}

// DRMDescriptor summarises the protection posture of a manifest.
// Scheme is DRMNone iff no protection signaling was found.
type DRMDescriptor struct {
	Scheme     DRMScheme   `json:"scheme"`
	Method     *string     `json:"method,omitempty"`
	KeySystem  *string     `json:"key_system,omitempty"`
	KeyID      *string     `json:"key_id,omitempty"`
	LicenseURL *string     `json:"license_url,omitempty"`
	PSSH       *string     `json:"pssh,omitempty"`
	Systems    []DRMScheme `json:"systems,omitempty"`
}

// SpliceCommand is the decoded splice_command_type.
type SpliceCommand string

const (
	CommandSpliceInsert SpliceCommand = "splice_insert"
	CommandSpliceNull   SpliceCommand = "splice_null"
	CommandTimeSignal   SpliceCommand = "time_signal"
	CommandUnknown      SpliceCommand = "unknown"
)

// Ticks90k is a raw 90 kHz clock value.
type Ticks90k uint64

// Seconds converts ticks to seconds.
func (t Ticks90k) Seconds() float64 {
	return float64(t) / 90000.0
}

// Scte35Marker is one decoded ad-insertion cue.
type Scte35Marker struct {
	EventID            *uint32       `json:"event_id,omitempty"`
	PTS90k             *Ticks90k     `json:"pts_90khz,omitempty"`
	Command            SpliceCommand `json:"command"`
	Duration90k        *Ticks90k     `json:"duration_90khz,omitempty"`
	UPID               *string       `json:"upid,omitempty"`
	UPIDType           *uint8        `json:"upid_type,omitempty"`
	SegmentationType   *string       `json:"segmentation_type,omitempty"`
	SegmentationTypeID *uint8        `json:"segmentation_type_id,omitempty"`
	SegmentNum         *uint8        `json:"segment_num,omitempty"`
	SegmentsExpected   *uint8        `json:"segments_expected,omitempty"`
	PreRoll90k         *Ticks90k     `json:"pre_roll_90khz,omitempty"`
	OutOfNetwork       bool          `json:"out_of_network"`
	AutoReturn         bool          `json:"auto_return"`
	Encrypted          bool          `json:"encrypted"`
	Source             string        `json:"source,omitempty"`
	DecodeError        *string       `json:"decode_error,omitempty"`
}

// Degraded reports whether the marker could not be fully decoded.
func (m Scte35Marker) Degraded() bool {
	return m.DecodeError != nil
}

// FragmentProbeResult is the prober's view of one downloaded fragment.
type FragmentProbeResult struct {
	BitrateLevelID   int         `json:"bitrate_level_id"`
	Container        *string     `json:"container,omitempty"`
	Codec            *string     `json:"codec,omitempty"`
	Profile          *string     `json:"profile,omitempty"`
	Resolution       *Resolution `json:"resolution,omitempty"`
	FPS              *float64    `json:"fps,omitempty"`
	ColorSpace       *string     `json:"color_space,omitempty"`
	MeasuredBitRate  *int64      `json:"measured_bit_rate,omitempty"`
	FragmentDuration *float64    `json:"fragment_duration_seconds,omitempty"`
	FileSizeBytes    *int64      `json:"file_size_bytes,omitempty"`
	Encrypted        bool        `json:"encrypted"`
	AudioCodec       *string     `json:"audio_codec,omitempty"`
	AudioChannels    *int        `json:"audio_channels,omitempty"`
	AudioSampleRate  *int        `json:"audio_sample_rate,omitempty"`
}

// Result is the terminal, immutable value of one analysis request.
type Result struct {
	ManifestType    ManifestType          `json:"manifest_type"`
	ManifestURL     string                `json:"manifest_url"`
	Live            bool                  `json:"live"`
	Bitrates        []BitrateLevel        `json:"bitrates"`
	AudioTracks     []AudioTrack          `json:"audio_tracks"`
	SubtitleTracks  []SubtitleTrack       `json:"subtitle_tracks"`
	ThumbnailTracks []ThumbnailTrack      `json:"thumbnail_tracks"`
	DRM             *DRMDescriptor        `json:"drm,omitempty"`
	Scte35Markers   []Scte35Marker        `json:"scte35_markers"`
	FragmentProbes  []FragmentProbeResult `json:"fragment_probes"`
}

// Ptr returns a pointer to v. It keeps optional-field literals short.
func Ptr[T any](v T) *T {
	return &v
}
