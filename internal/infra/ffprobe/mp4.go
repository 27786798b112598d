// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffprobe

import (
	"bytes"

	"github.com/Eyevinn/mp4ff/mp4"
)

// mp4Info is what the ISO-BMFF boxes reveal without decoding samples.
type mp4Info struct {
	isoBMFF    bool
	encrypted  bool
	scheme     string // schm scheme_type, e.g. cenc or cbcs
	videoCodec string
	width      int
	height     int
	audioCodec string
	channels   int
	sampleRate int
}

var isoBoxTypes = map[string]bool{"ftyp": true, "styp": true, "moov": true, "moof": true, "sidx": true, "emsg": true, "prft": true}

// looksISOBMFF checks the first box header.
func looksISOBMFF(data []byte) bool {
	return len(data) >= 8 && isoBoxTypes[string(data[4:8])]
}

// inspectMP4 walks top-level boxes until the data runs out. Truncated
// trailing boxes (a ranged head request) end the walk without error.
func inspectMP4(data []byte) mp4Info {
	info := mp4Info{isoBMFF: looksISOBMFF(data)}
	if !info.isoBMFF {
		return info
	}
	r := bytes.NewReader(data)
	var offset uint64
	for {
		box, err := mp4.DecodeBox(offset, r)
		if err != nil {
			// io.EOF ends a complete buffer; anything else is a cut box
			break
		}
		offset += box.Size()
		switch b := box.(type) {
		case *mp4.MoovBox:
			info.fromMoov(b)
		case *mp4.MoofBox:
			if len(b.Psshs) > 0 {
				info.encrypted = true
			}
			for _, traf := range b.Trafs {
				if traf.Senc != nil {
					info.encrypted = true
				}
			}
		case *mp4.PsshBox:
			info.encrypted = true
		}
	}
	return info
}

func (info *mp4Info) fromMoov(moov *mp4.MoovBox) {
	if len(moov.Psshs) > 0 {
		info.encrypted = true
	}
	for _, trak := range moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
			continue
		}
		for _, entry := range trak.Mdia.Minf.Stbl.Stsd.Children {
			switch e := entry.(type) {
			case *mp4.VisualSampleEntryBox:
				if info.videoCodec != "" {
					continue
				}
				info.videoCodec = e.Type()
				info.width, info.height = int(e.Width), int(e.Height)
				if e.Type() == "encv" {
					info.encrypted = true
					info.videoCodec, info.scheme = protectedFormat(e.Children, "encv")
				}
			case *mp4.AudioSampleEntryBox:
				if info.audioCodec != "" {
					continue
				}
				info.audioCodec = e.Type()
				info.channels, info.sampleRate = int(e.ChannelCount), int(e.SampleRate)
				if e.Type() == "enca" {
					info.encrypted = true
					var scheme string
					info.audioCodec, scheme = protectedFormat(e.Children, "enca")
					if info.scheme == "" {
						info.scheme = scheme
					}
				}
			}
		}
	}
}

// protectedFormat returns the original format from sinf/frma and the
// protection scheme from sinf/schm.
func protectedFormat(children []mp4.Box, fallback string) (format, scheme string) {
	format = fallback
	for _, c := range children {
		sinf, ok := c.(*mp4.SinfBox)
		if !ok {
			continue
		}
		if sinf.Frma != nil && sinf.Frma.DataFormat != "" {
			format = sinf.Frma.DataFormat
		}
		if sinf.Schm != nil {
			scheme = sinf.Schm.SchemeType
		}
	}
	return format, scheme
}
