// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scte35

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/log"
	"github.com/ManuGH/streamview/internal/manifest"
	"github.com/ManuGH/streamview/internal/metrics"
)

const ptsModulus = uint64(1) << 33

var errUnsupportedEncoding = errors.New("payload is not in a binary encoding")

var segmentationTypes = map[uint8]string{
	0x00: "Not Indicated",
	0x01: "Content Identification",
	0x02: "Call Ad Server",
	0x10: "Program Start",
	0x11: "Program End",
	0x12: "Program Early Termination",
	0x13: "Program Breakaway",
	0x14: "Program Resumption",
	0x15: "Program Runover Planned",
	0x16: "Program Runover Unplanned",
	0x17: "Program Overlap Start",
	0x18: "Program Blackout Override",
	0x19: "Program Join",
	0x20: "Chapter Start",
	0x21: "Chapter End",
	0x22: "Break Start",
	0x23: "Break End",
	0x24: "Opening Credit Start",
	0x25: "Opening Credit End",
	0x26: "Closing Credit Start",
	0x27: "Closing Credit End",
	0x30: "Provider Advertisement Start",
	0x31: "Provider Advertisement End",
	0x32: "Distributor Advertisement Start",
	0x33: "Distributor Advertisement End",
	0x34: "Provider Placement Opportunity Start",
	0x35: "Provider Placement Opportunity End",
	0x36: "Distributor Placement Opportunity Start",
	0x37: "Distributor Placement Opportunity End",
	0x38: "Provider Overlay Placement Opportunity Start",
	0x39: "Provider Overlay Placement Opportunity End",
	0x3A: "Distributor Overlay Placement Opportunity Start",
	0x3B: "Distributor Overlay Placement Opportunity End",
	0x3C: "Provider Promo Start",
	0x3D: "Provider Promo End",
	0x3E: "Distributor Promo Start",
	0x3F: "Distributor Promo End",
	0x40: "Unscheduled Event Start",
	0x41: "Unscheduled Event End",
	0x42: "Alternate Content Opportunity Start",
	0x43: "Alternate Content Opportunity End",
	0x44: "Provider Ad Block Start",
	0x45: "Provider Ad Block End",
	0x46: "Distributor Ad Block Start",
	0x47: "Distributor Ad Block End",
	0x50: "Network Start",
	0x51: "Network End",
}

// SegmentationTypeName returns the display name of a segmentation_type_id.
func SegmentationTypeName(id uint8) (string, bool) {
	name, ok := segmentationTypes[id]
	return name, ok
}

// Marker maps a decoded section to the result model.
func Marker(s *Section) analysis.Scte35Marker {
	m := analysis.Scte35Marker{Command: analysis.CommandUnknown}
	if s.Encrypted {
		m.Encrypted = true
		return m
	}

	var pts *uint64
	switch s.CommandType {
	case CommandNull:
		m.Command = analysis.CommandSpliceNull
	case CommandInsert:
		m.Command = analysis.CommandSpliceInsert
	case CommandTimeSignal:
		m.Command = analysis.CommandTimeSignal
	}
	if si := s.Insert; si != nil {
		m.EventID = analysis.Ptr(si.EventID)
		m.OutOfNetwork = si.OutOfNetwork
		if si.Time != nil {
			pts = si.Time.PTS
		} else if len(si.Components) > 0 && si.Components[0].Time != nil {
			pts = si.Components[0].Time.PTS
		}
		if si.Break != nil {
			m.AutoReturn = si.Break.AutoReturn
			d := analysis.Ticks90k(si.Break.Duration)
			m.Duration90k = &d
		}
	}
	if s.TimeSignal != nil {
		pts = s.TimeSignal.PTS
	}
	if pts != nil {
		adjusted := analysis.Ticks90k((*pts + s.PTSAdjustment) % ptsModulus)
		m.PTS90k = &adjusted
	}

	if len(s.Segmentations) > 0 {
		sd := s.Segmentations[0]
		if m.EventID == nil {
			m.EventID = analysis.Ptr(sd.EventID)
		}
		if !sd.Cancel {
			if m.Duration90k == nil && sd.Duration != nil {
				d := analysis.Ticks90k(*sd.Duration)
				m.Duration90k = &d
			}
			m.UPIDType = analysis.Ptr(sd.UPIDType)
			if len(sd.UPID) > 0 {
				m.UPID = analysis.Ptr(formatUPID(sd.UPID))
			}
			m.SegmentationTypeID = analysis.Ptr(sd.TypeID)
			if name, ok := SegmentationTypeName(sd.TypeID); ok {
				m.SegmentationType = &name
			}
			m.SegmentNum = analysis.Ptr(sd.SegmentNum)
			m.SegmentsExpected = analysis.Ptr(sd.SegmentsExpected)
		}
	}
	return m
}

// formatUPID renders printable ASCII verbatim and anything else as 0x hex.
func formatUPID(upid []byte) string {
	for _, c := range upid {
		if c < 0x20 || c > 0x7E {
			return "0x" + strings.ToUpper(hex.EncodeToString(upid))
		}
	}
	return string(upid)
}

func degraded(err error) analysis.Scte35Marker {
	msg := err.Error()
	return analysis.Scte35Marker{Command: analysis.CommandUnknown, DecodeError: &msg}
}

func fromSection(data []byte) (analysis.Scte35Marker, error) {
	s, err := Decode(data)
	if err != nil {
		err = &analysis.Scte35DecodeError{Stage: "section", Err: err}
		return degraded(err), err
	}
	return Marker(s), nil
}

// DecodeHex decodes a hex payload with an optional 0x prefix. The returned
// marker is always usable; it is degraded when err is non-nil.
func DecodeHex(payload string) (analysis.Scte35Marker, error) {
	p := strings.TrimSpace(payload)
	if strings.HasPrefix(p, "0x") || strings.HasPrefix(p, "0X") {
		p = p[2:]
	}
	data, err := hex.DecodeString(p)
	if err != nil {
		err = &analysis.Scte35DecodeError{Stage: "hex", Err: err}
		return degraded(err), err
	}
	return fromSection(data)
}

// DecodeBase64 decodes a base64 payload, padded or not.
func DecodeBase64(payload string) (analysis.Scte35Marker, error) {
	p := strings.Join(strings.Fields(payload), "")
	data, err := base64.StdEncoding.DecodeString(p)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(p, "="))
	}
	if err != nil {
		err = &analysis.Scte35DecodeError{Stage: "base64", Err: err}
		return degraded(err), err
	}
	return fromSection(data)
}

// DecodeCue decodes one manifest carrier. Carrier timing and event id fill
// fields the section leaves unset; degraded markers keep only their source.
func DecodeCue(cue manifest.Cue) (analysis.Scte35Marker, error) {
	var (
		m   analysis.Scte35Marker
		err error
	)
	switch cue.Encoding {
	case manifest.CueHex:
		m, err = DecodeHex(cue.Payload)
	case manifest.CueBase64:
		m, err = DecodeBase64(cue.Payload)
	default:
		err = &analysis.Scte35DecodeError{Stage: "payload", Err: errUnsupportedEncoding}
		m = degraded(err)
	}
	m.Source = cue.Source
	if err != nil {
		return m, err
	}
	if m.PTS90k == nil && cue.PTS90k != nil {
		v := *cue.PTS90k
		m.PTS90k = &v
	}
	if m.Duration90k == nil && cue.Duration90k != nil {
		v := *cue.Duration90k
		m.Duration90k = &v
	}
	if m.EventID == nil && cue.EventID != nil {
		v := *cue.EventID
		m.EventID = &v
	}
	return m, nil
}

// DecodeCues decodes every carrier in manifest order. Failures are logged and
// returned as degraded markers, never as errors.
func DecodeCues(ctx context.Context, cues []manifest.Cue) []analysis.Scte35Marker {
	if len(cues) == 0 {
		return nil
	}
	logger := log.WithComponentFromContext(ctx, "scte35")
	out := make([]analysis.Scte35Marker, 0, len(cues))
	for i, cue := range cues {
		m, err := DecodeCue(cue)
		if err != nil {
			logger.Warn().Err(err).
				Str(log.FieldEvent, "scte35.decode_failed").
				Str("source", cue.Source).
				Int("index", i).
				Msg("scte35 payload degraded")
		}
		metrics.RecordScte35Marker(string(m.Command), m.Degraded())
		out = append(out, m)
	}
	return out
}
