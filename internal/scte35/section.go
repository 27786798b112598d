// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scte35 decodes splice_info_section payloads (ANSI/SCTE 35).
package scte35

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	tableID = 0xFC

	CommandNull       = 0x00
	CommandInsert     = 0x05
	CommandTimeSignal = 0x06

	tagAvail        = 0x00
	tagSegmentation = 0x02

	// splice_command_length value used by legacy encoders for "unspecified".
	legacyCommandLength = 0xFFF
)

var (
	ErrTableID  = errors.New("table_id is not 0xFC")
	ErrChecksum = errors.New("CRC_32 mismatch")
)

// Section is a decoded splice_info_section.
type Section struct {
	SectionSyntax       bool
	PrivateIndicator    bool
	SAPType             uint8
	SectionLength       uint16
	ProtocolVersion     uint8
	Encrypted           bool
	EncryptionAlgorithm uint8
	PTSAdjustment       uint64
	CWIndex             uint8
	Tier                uint16
	CommandLength       uint16
	CommandType         uint8

	// At most one command body is set. Encrypted sections carry none.
	Insert     *SpliceInsert
	TimeSignal *SpliceTime

	Segmentations []SegmentationDescriptor
	Avails        []AvailDescriptor
	CRC32         uint32
}

// SpliceTime is a splice_time(); PTS is nil when time_specified_flag is 0.
type SpliceTime struct {
	PTS *uint64
}

type BreakDuration struct {
	AutoReturn bool
	Duration   uint64
}

type Component struct {
	Tag  uint8
	Time *SpliceTime
}

type SpliceInsert struct {
	EventID         uint32
	Cancel          bool
	OutOfNetwork    bool
	ProgramSplice   bool
	Immediate       bool
	Time            *SpliceTime
	Components      []Component
	Break           *BreakDuration
	UniqueProgramID uint16
	AvailNum        uint8
	AvailsExpected  uint8
}

type SegmentationDescriptor struct {
	Identifier            uint32
	EventID               uint32
	Cancel                bool
	ProgramSegmentation   bool
	DeliveryNotRestricted bool
	Duration              *uint64
	UPIDType              uint8
	UPID                  []byte
	TypeID                uint8
	SegmentNum            uint8
	SegmentsExpected      uint8
	SubSegmentNum         *uint8
	SubSegmentsExpected   *uint8
}

type AvailDescriptor struct {
	Identifier      uint32
	ProviderAvailID uint32
}

// Decode parses one splice_info_section. The CRC_32 is verified before any
// field past the header is trusted. Bytes after section_length are ignored.
func Decode(data []byte) (*Section, error) {
	if len(data) < 3 {
		return nil, ErrTruncated
	}
	b := &bits{r: NewBitReader(data)}
	if b.u(8) != tableID {
		return nil, ErrTableID
	}
	s := &Section{}
	s.SectionSyntax = b.flag()
	s.PrivateIndicator = b.flag()
	s.SAPType = uint8(b.u(2))
	s.SectionLength = uint16(b.u(12))

	total := 3 + int(s.SectionLength)
	if len(data) < total || total < 3+4 {
		return nil, ErrTruncated
	}
	data = data[:total]
	s.CRC32 = binary.BigEndian.Uint32(data[total-4:])
	if crc32MPEG2(data[:total-4]) != s.CRC32 {
		return nil, ErrChecksum
	}

	// the body reader stops before CRC_32
	b = &bits{r: NewBitReader(data[3 : total-4])}
	s.ProtocolVersion = uint8(b.u(8))
	s.Encrypted = b.flag()
	s.EncryptionAlgorithm = uint8(b.u(6))
	s.PTSAdjustment = b.u(33)
	s.CWIndex = uint8(b.u(8))
	s.Tier = uint16(b.u(12))
	s.CommandLength = uint16(b.u(12))
	s.CommandType = uint8(b.u(8))
	if b.err != nil {
		return nil, b.err
	}
	if s.Encrypted {
		return s, nil
	}

	cmd := b
	if s.CommandLength != legacyCommandLength {
		cmd = &bits{r: NewBitReader(b.bytes(int(s.CommandLength)))}
		if b.err != nil {
			return nil, fmt.Errorf("splice command: %w", b.err)
		}
	}
	switch s.CommandType {
	case CommandNull:
	case CommandInsert:
		s.Insert = decodeInsert(cmd)
	case CommandTimeSignal:
		s.TimeSignal = decodeSpliceTime(cmd)
	default:
		if s.CommandLength == legacyCommandLength {
			return nil, fmt.Errorf("command 0x%02x has no declared length", s.CommandType)
		}
	}
	if cmd.err != nil {
		return nil, fmt.Errorf("splice command: %w", cmd.err)
	}

	loopLen := int(b.u(16))
	loop := b.bytes(loopLen)
	if b.err != nil {
		return nil, fmt.Errorf("descriptor loop: %w", b.err)
	}
	if err := s.decodeDescriptors(loop); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeSpliceTime(b *bits) *SpliceTime {
	st := &SpliceTime{}
	if b.flag() {
		b.skip(6)
		pts := b.u(33)
		st.PTS = &pts
	} else {
		b.skip(7)
	}
	return st
}

func decodeInsert(b *bits) *SpliceInsert {
	si := &SpliceInsert{EventID: uint32(b.u(32))}
	si.Cancel = b.flag()
	b.skip(7)
	if si.Cancel {
		return si
	}
	si.OutOfNetwork = b.flag()
	si.ProgramSplice = b.flag()
	durationFlag := b.flag()
	si.Immediate = b.flag()
	b.skip(4)
	if si.ProgramSplice && !si.Immediate {
		si.Time = decodeSpliceTime(b)
	}
	if !si.ProgramSplice {
		count := int(b.u(8))
		for i := 0; i < count && b.err == nil; i++ {
			c := Component{Tag: uint8(b.u(8))}
			if !si.Immediate {
				c.Time = decodeSpliceTime(b)
			}
			si.Components = append(si.Components, c)
		}
	}
	if durationFlag {
		bd := &BreakDuration{AutoReturn: b.flag()}
		b.skip(6)
		bd.Duration = b.u(33)
		si.Break = bd
	}
	si.UniqueProgramID = uint16(b.u(16))
	si.AvailNum = uint8(b.u(8))
	si.AvailsExpected = uint8(b.u(8))
	return si
}

func (s *Section) decodeDescriptors(loop []byte) error {
	r := &bits{r: NewBitReader(loop)}
	for r.r.Remaining() > 0 {
		tag := uint8(r.u(8))
		length := int(r.u(8))
		body := r.bytes(length)
		if r.err != nil {
			return fmt.Errorf("descriptor 0x%02x: %w", tag, r.err)
		}
		switch tag {
		case tagSegmentation:
			sd, err := decodeSegmentation(body)
			if err != nil {
				return fmt.Errorf("segmentation_descriptor: %w", err)
			}
			s.Segmentations = append(s.Segmentations, sd)
		case tagAvail:
			d := &bits{r: NewBitReader(body)}
			ad := AvailDescriptor{Identifier: uint32(d.u(32)), ProviderAvailID: uint32(d.u(32))}
			if d.err != nil {
				return fmt.Errorf("avail_descriptor: %w", d.err)
			}
			s.Avails = append(s.Avails, ad)
		}
	}
	return nil
}

func decodeSegmentation(body []byte) (SegmentationDescriptor, error) {
	b := &bits{r: NewBitReader(body)}
	sd := SegmentationDescriptor{Identifier: uint32(b.u(32)), EventID: uint32(b.u(32))}
	sd.Cancel = b.flag()
	b.skip(7)
	if sd.Cancel {
		return sd, b.err
	}
	sd.ProgramSegmentation = b.flag()
	durationFlag := b.flag()
	sd.DeliveryNotRestricted = b.flag()
	// web_delivery_allowed, no_regional_blackout, archive_allowed and
	// device_restrictions, or reserved bits; both are 5 bits wide
	b.skip(5)
	if !sd.ProgramSegmentation {
		count := int(b.u(8))
		b.skip(count * 48)
	}
	if durationFlag {
		d := b.u(40)
		sd.Duration = &d
	}
	sd.UPIDType = uint8(b.u(8))
	upidLen := int(b.u(8))
	if upid := b.bytes(upidLen); len(upid) > 0 {
		sd.UPID = append([]byte(nil), upid...)
	}
	sd.TypeID = uint8(b.u(8))
	sd.SegmentNum = uint8(b.u(8))
	sd.SegmentsExpected = uint8(b.u(8))
	if b.err == nil && hasSubSegments(sd.TypeID) && b.r.Remaining() >= 16 {
		num, exp := uint8(b.u(8)), uint8(b.u(8))
		sd.SubSegmentNum, sd.SubSegmentsExpected = &num, &exp
	}
	return sd, b.err
}

func hasSubSegments(typeID uint8) bool {
	switch typeID {
	case 0x34, 0x36, 0x38, 0x3A, 0x44, 0x46:
		return true
	}
	return false
}
