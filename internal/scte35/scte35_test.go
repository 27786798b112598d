// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scte35

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/manifest"
	"github.com/ManuGH/streamview/internal/metrics"
)

const (
	insertHex     = "0xFC302500000000000000FFF014050000002A7FEFFE000DBBA0FE002932E000010000000016A7C4B8"
	insertB64     = "/DAlAAAAAAAAAP/wFAUAAAAqf+/+AA27oP4AKTLgAAEAAAAAFqfEuA=="
	timeSignalHex = "FC303900000000000000FFF00506FE001B77400023022143554549000000077FFF00002932E0090D5349474E414C3A616263313233340102FA34A2BF"
	timeSignalB64 = "/DA5AAAAAAAAAP/wBQb+ABt3QAAjAiFDVUVJAAAAB3//AAApMuAJDVNJR05BTDphYmMxMjM0AQL6NKK/"
	wrapHex       = "FC302000000002BF2000FFF00F050000002B7F4FFFFFFEA0700001000000006485CB66"
	nullB64       = "/DARAAAAAAAAAP/wAAAAAHpPv/8="
)

func ticks(v uint64) *analysis.Ticks90k {
	t := analysis.Ticks90k(v)
	return &t
}

// bitWriter packs big-endian bit fields for building test sections.
type bitWriter struct {
	buf []byte
	n   int
}

func (w *bitWriter) put(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.n%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if (v>>uint(i))&1 == 1 {
			w.buf[len(w.buf)-1] |= 1 << (7 - uint(w.n%8))
		}
		w.n++
	}
}

func (w *bitWriter) flag(b bool) {
	if b {
		w.put(1, 1)
	} else {
		w.put(0, 1)
	}
}

func putSpliceTime(w *bitWriter, pts *uint64) {
	if pts == nil {
		w.put(0, 1)
		w.put(0x7F, 7)
		return
	}
	w.put(1, 1)
	w.put(0x3F, 6)
	w.put(*pts, 33)
}

type insertSpec struct {
	eventID      uint32
	outOfNetwork bool
	pts          *uint64
	duration     *uint64
	autoReturn   bool
}

func encodeInsert(s insertSpec) []byte {
	w := &bitWriter{}
	w.put(uint64(s.eventID), 32)
	w.put(0, 1)
	w.put(0x7F, 7)
	w.flag(s.outOfNetwork)
	w.put(1, 1) // program_splice_flag
	w.flag(s.duration != nil)
	w.put(0, 1) // splice_immediate_flag
	w.put(0xF, 4)
	putSpliceTime(w, s.pts)
	if s.duration != nil {
		w.flag(s.autoReturn)
		w.put(0x3F, 6)
		w.put(*s.duration, 33)
	}
	w.put(1, 16)
	w.put(0, 8)
	w.put(0, 8)
	return w.buf
}

func encodeSegmentation(eventID uint32, duration *uint64, upidType uint8, upid []byte, typeID, num, expected uint8) []byte {
	w := &bitWriter{}
	w.put(0x43554549, 32)
	w.put(uint64(eventID), 32)
	w.put(0, 1)
	w.put(0x7F, 7)
	w.put(1, 1) // program_segmentation_flag
	w.flag(duration != nil)
	w.put(1, 1) // delivery_not_restricted_flag
	w.put(0x1F, 5)
	if duration != nil {
		w.put(*duration, 40)
	}
	w.put(uint64(upidType), 8)
	w.put(uint64(len(upid)), 8)
	for _, b := range upid {
		w.put(uint64(b), 8)
	}
	w.put(uint64(typeID), 8)
	w.put(uint64(num), 8)
	w.put(uint64(expected), 8)
	return append([]byte{tagSegmentation, byte(len(w.buf))}, w.buf...)
}

func encodeSection(cmdType uint8, cmd, descriptors []byte, ptsAdjustment uint64, encrypted bool) []byte {
	mid := &bitWriter{}
	mid.put(0, 8)
	mid.flag(encrypted)
	mid.put(0, 6)
	mid.put(ptsAdjustment, 33)
	mid.put(0, 8)
	mid.put(0xFFF, 12)
	mid.put(uint64(len(cmd)), 12)
	mid.put(uint64(cmdType), 8)
	body := append(mid.buf, cmd...)
	body = binary.BigEndian.AppendUint16(body, uint16(len(descriptors)))
	body = append(body, descriptors...)

	head := &bitWriter{}
	head.put(tableID, 8)
	head.put(0, 1)
	head.put(0, 1)
	head.put(3, 2)
	head.put(uint64(len(body)+4), 12)
	full := append(head.buf, body...)
	return binary.BigEndian.AppendUint32(full, crc32MPEG2(full))
}

func TestCRC32MPEG2(t *testing.T) {
	assert.Equal(t, uint32(0x0376E6E7), crc32MPEG2([]byte("123456789")))
}

func TestBitReader(t *testing.T) {
	r := NewBitReader([]byte{0b1011_0011, 0xFF})
	v, err := r.ReadBits(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b101), v)

	f, err := r.ReadFlag()
	require.NoError(t, err)
	assert.True(t, f)

	v, err = r.ReadBits(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b0011_1111), v)
	assert.Equal(t, 4, r.Remaining())

	_, err = r.ReadBits(5)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.ErrorIs(t, r.Skip(5), ErrTruncated)
	require.NoError(t, r.Skip(4))
	assert.Equal(t, 0, r.Remaining())

	_, err = NewBitReader([]byte{1}).ReadBytes(2)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeHex_SpliceInsert(t *testing.T) {
	m, err := DecodeHex(insertHex)
	require.NoError(t, err)

	want := analysis.Scte35Marker{
		EventID:      analysis.Ptr[uint32](42),
		PTS90k:       ticks(900000),
		Command:      analysis.CommandSpliceInsert,
		Duration90k:  ticks(2700000),
		OutOfNetwork: true,
		AutoReturn:   true,
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Fatalf("marker mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 30.0, m.Duration90k.Seconds(), 1e-9)
}

func TestDecodeBase64_MatchesHex(t *testing.T) {
	fromHex, err := DecodeHex(insertHex)
	require.NoError(t, err)
	fromB64, err := DecodeBase64(insertB64)
	require.NoError(t, err)
	assert.Equal(t, fromHex, fromB64)
}

func TestDecode_TimeSignalSegmentation(t *testing.T) {
	m, err := DecodeBase64(timeSignalB64)
	require.NoError(t, err)

	want := analysis.Scte35Marker{
		EventID:            analysis.Ptr[uint32](7),
		PTS90k:             ticks(1800000),
		Command:            analysis.CommandTimeSignal,
		Duration90k:        ticks(2700000),
		UPID:               analysis.Ptr("SIGNAL:abc123"),
		UPIDType:           analysis.Ptr[uint8](0x09),
		SegmentationType:   analysis.Ptr("Provider Placement Opportunity Start"),
		SegmentationTypeID: analysis.Ptr[uint8](0x34),
		SegmentNum:         analysis.Ptr[uint8](1),
		SegmentsExpected:   analysis.Ptr[uint8](2),
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Fatalf("marker mismatch (-want +got):\n%s", diff)
	}

	raw, err := hex.DecodeString(timeSignalHex)
	require.NoError(t, err)
	s, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, s.Segmentations, 1)
	assert.True(t, s.Segmentations[0].DeliveryNotRestricted)
	assert.Nil(t, s.Segmentations[0].SubSegmentNum)
}

func TestDecode_PTSAdjustmentWraps(t *testing.T) {
	m, err := DecodeHex(wrapHex)
	require.NoError(t, err)
	require.NotNil(t, m.PTS90k)
	assert.Equal(t, analysis.Ticks90k(90000), *m.PTS90k)
	assert.Equal(t, uint32(43), *m.EventID)
	assert.False(t, m.OutOfNetwork)
	assert.Nil(t, m.Duration90k)
	assert.Nil(t, m.PreRoll90k)
}

func TestDecode_SpliceNull(t *testing.T) {
	m, err := DecodeBase64(nullB64)
	require.NoError(t, err)
	assert.Equal(t, analysis.Scte35Marker{Command: analysis.CommandSpliceNull}, m)
}

func TestDecode_RoundTripInsert(t *testing.T) {
	pts := func(v uint64) *uint64 { return &v }
	tests := []insertSpec{
		{eventID: 1, outOfNetwork: true, pts: pts(0), duration: pts(90000), autoReturn: true},
		{eventID: 0xFFFFFFFF, pts: pts(ptsModulus - 1)},
		{eventID: 77, outOfNetwork: true, duration: pts(5400000)},
		{eventID: 12345, pts: pts(123456789), duration: pts(1), autoReturn: false},
	}
	for _, spec := range tests {
		sec := encodeSection(CommandInsert, encodeInsert(spec), nil, 0, false)
		s, err := Decode(sec)
		require.NoError(t, err)
		require.NotNil(t, s.Insert)
		assert.Equal(t, spec.eventID, s.Insert.EventID)
		assert.Equal(t, spec.outOfNetwork, s.Insert.OutOfNetwork)

		m := Marker(s)
		assert.Equal(t, analysis.CommandSpliceInsert, m.Command)
		if spec.pts != nil {
			require.NotNil(t, m.PTS90k)
			assert.Equal(t, analysis.Ticks90k(*spec.pts), *m.PTS90k)
		} else {
			assert.Nil(t, m.PTS90k)
		}
		if spec.duration != nil {
			require.NotNil(t, m.Duration90k)
			assert.Equal(t, analysis.Ticks90k(*spec.duration), *m.Duration90k)
			assert.Equal(t, spec.autoReturn, m.AutoReturn)
		} else {
			assert.Nil(t, m.Duration90k)
		}
	}
}

func TestDecode_BuilderMatchesVector(t *testing.T) {
	pts, dur := uint64(900000), uint64(2700000)
	built := encodeSection(CommandInsert, encodeInsert(insertSpec{
		eventID: 42, outOfNetwork: true, pts: &pts, duration: &dur, autoReturn: true,
	}), nil, 0, false)
	want, err := hex.DecodeString(insertHex[2:])
	require.NoError(t, err)
	assert.Equal(t, want, built)
}

func TestDecode_NonPrintableUPIDIsHex(t *testing.T) {
	pts := uint64(1000)
	desc := encodeSegmentation(9, nil, 0x0C, []byte{0xDE, 0xAD, 0x01}, 0x30, 0, 0)
	sec := encodeSection(CommandTimeSignal, func() []byte {
		w := &bitWriter{}
		putSpliceTime(w, &pts)
		return w.buf
	}(), desc, 0, false)

	s, err := Decode(sec)
	require.NoError(t, err)
	m := Marker(s)
	assert.Equal(t, "0xDEAD01", *m.UPID)
	assert.Equal(t, "Provider Advertisement Start", *m.SegmentationType)
	assert.Nil(t, m.Duration90k)
}

func TestDecode_Encrypted(t *testing.T) {
	sec := encodeSection(CommandInsert, []byte{0xAA, 0xBB, 0xCC, 0xDD}, nil, 0, true)
	s, err := Decode(sec)
	require.NoError(t, err)
	assert.True(t, s.Encrypted)
	assert.Nil(t, s.Insert)

	m := Marker(s)
	assert.True(t, m.Encrypted)
	assert.Equal(t, analysis.CommandUnknown, m.Command)
	assert.False(t, m.Degraded())
}

func TestDecode_UnknownCommandSkipped(t *testing.T) {
	sec := encodeSection(0x07, []byte{1, 2, 3}, nil, 0, false)
	s, err := Decode(sec)
	require.NoError(t, err)
	assert.Equal(t, analysis.CommandUnknown, Marker(s).Command)
}

func TestDecode_Failures(t *testing.T) {
	raw, err := hex.DecodeString(insertHex[2:])
	require.NoError(t, err)

	for n := 0; n < len(raw); n++ {
		_, err := Decode(raw[:n])
		assert.Error(t, err, "prefix of %d bytes", n)
	}

	corrupt := append([]byte(nil), raw...)
	corrupt[10] ^= 0x01
	_, err = Decode(corrupt)
	assert.ErrorIs(t, err, ErrChecksum)

	wrongTable := append([]byte(nil), raw...)
	wrongTable[0] = 0xFD
	_, err = Decode(wrongTable)
	assert.ErrorIs(t, err, ErrTableID)
}

func TestDecodeHex_DegradedMarker(t *testing.T) {
	for _, payload := range []string{"0xZZ", "0xFC30", insertHex[:len(insertHex)-2] + "00"} {
		m, err := DecodeHex(payload)
		require.Error(t, err, payload)
		var de *analysis.Scte35DecodeError
		assert.True(t, errors.As(err, &de))
		assert.True(t, m.Degraded())
		assert.Equal(t, analysis.Scte35Marker{Command: analysis.CommandUnknown, DecodeError: m.DecodeError}, m)
	}
}

func TestDecodeCue_CarrierFillsMissingFields(t *testing.T) {
	m, err := DecodeCue(manifest.Cue{
		Source: "EXT-X-DATERANGE SCTE35-CMD", Encoding: manifest.CueBase64, Payload: nullB64,
		PTS90k: ticks(450000), Duration90k: ticks(90000), EventID: analysis.Ptr[uint32](5),
	})
	require.NoError(t, err)
	assert.Equal(t, "EXT-X-DATERANGE SCTE35-CMD", m.Source)
	assert.Equal(t, analysis.Ticks90k(450000), *m.PTS90k)
	assert.Equal(t, analysis.Ticks90k(90000), *m.Duration90k)
	assert.Equal(t, uint32(5), *m.EventID)

	// decoded fields win over carrier values
	m, err = DecodeCue(manifest.Cue{Encoding: manifest.CueHex, Payload: insertHex, EventID: analysis.Ptr[uint32](99)})
	require.NoError(t, err)
	assert.Equal(t, uint32(42), *m.EventID)
}

func TestDecodeCue_DegradedKeepsOnlySource(t *testing.T) {
	m, err := DecodeCue(manifest.Cue{
		Source: "EventStream urn:scte:scte35:2013:xml", Encoding: manifest.CueUnsupported,
		PTS90k: ticks(1), EventID: analysis.Ptr[uint32](1),
	})
	require.Error(t, err)
	assert.True(t, m.Degraded())
	assert.Nil(t, m.PTS90k)
	assert.Nil(t, m.EventID)
	assert.Equal(t, "EventStream urn:scte:scte35:2013:xml", m.Source)
}

func TestDecodeCues_NeverFails(t *testing.T) {
	okBefore := testutil.ToFloat64(metrics.Scte35MarkersTotal.WithLabelValues("splice_insert", "ok"))
	badBefore := testutil.ToFloat64(metrics.Scte35MarkersTotal.WithLabelValues("unknown", "degraded"))

	markers := DecodeCues(context.Background(), []manifest.Cue{
		{Source: "a", Encoding: manifest.CueHex, Payload: insertHex},
		{Source: "b", Encoding: manifest.CueBase64, Payload: "not base64!"},
		{Source: "c", Encoding: manifest.CueBase64, Payload: timeSignalB64},
	})
	require.Len(t, markers, 3)
	assert.False(t, markers[0].Degraded())
	assert.True(t, markers[1].Degraded())
	assert.Equal(t, analysis.CommandTimeSignal, markers[2].Command)

	assert.InDelta(t, okBefore+1, testutil.ToFloat64(metrics.Scte35MarkersTotal.WithLabelValues("splice_insert", "ok")), 0)
	assert.InDelta(t, badBefore+1, testutil.ToFloat64(metrics.Scte35MarkersTotal.WithLabelValues("unknown", "degraded")), 0)
	assert.Nil(t, DecodeCues(context.Background(), nil))
}
