// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamview/internal/domain/analysis"
)

func TestSplitLines_DropsBOMAndBlankLines(t *testing.T) {
	lines := splitLines([]byte("\xEF\xBB\xBF#EXTM3U\r\n\n  #EXTINF:4,\r\na.ts\n"))
	require.Len(t, lines, 3)
	assert.Equal(t, line{n: 1, text: "#EXTM3U"}, lines[0])
	assert.Equal(t, line{n: 3, text: "#EXTINF:4,"}, lines[1])
	assert.Equal(t, line{n: 4, text: "a.ts"}, lines[2])
}

func TestDecodeMedia_RecordsSegmentTags(t *testing.T) {
	body := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-TARGETDURATION:4",
		"#EXT-X-BITRATE:800",
		"#EXTINF:4,",
		"#EXT-X-BYTERANGE:10@0",
		"a.ts",
		"",
		"#EXT-X-DATERANGE:ID=\"x\",SCTE35-CMD=0xFC30",
		"#EXTINF:4,",
		"#EXT-X-BYTERANGE:10",
		"a.ts",
	}, "\n")
	pl, rec, err := decodeMedia(splitLines([]byte(body)), true)
	require.NoError(t, err)

	segments := segmentsOf(pl)
	require.Len(t, segments, 2)
	require.Len(t, rec.segments, 2)

	first := rec.segment(0)
	assert.Equal(t, 4, first.line)
	assert.True(t, first.hasRange)
	assert.True(t, first.explicitOffset)
	require.NotNil(t, first.bitrateKbps)
	assert.Equal(t, int64(800), *first.bitrateKbps)

	second := rec.segment(1)
	assert.Equal(t, 9, second.line)
	assert.False(t, second.explicitOffset)
	require.NotNil(t, second.bitrateKbps)

	require.Len(t, rec.cueTags, 1)
	assert.Equal(t, 1, rec.cueTags[0].segment)
	assert.Equal(t, 8, rec.cueTags[0].line)
	assert.Equal(t, "0xFC30", rec.cueTags[0].attrs["SCTE35-CMD"])

	assert.Equal(t, segmentInfo{}, rec.segment(5))
}

func TestDecodeMedia_LenientIgnoresStructuralFindings(t *testing.T) {
	body := "#EXTM3U\n#EXT-X-BITRATE:abc\n#EXTINF:4,\na.ts\norphan.ts\n"
	pl, rec, err := decodeMedia(splitLines([]byte(body)), false)
	require.NoError(t, err)
	assert.Len(t, segmentsOf(pl), 1)
	assert.Len(t, rec.segments, 1)

	_, _, err = decodeMedia(splitLines([]byte(body)), true)
	var pe *analysis.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, tagBitrate, pe.Construct)
	assert.Equal(t, 2, pe.Line)
}

func TestDecodeMaster_AttributesParseFailureToTagLine(t *testing.T) {
	body := "#EXTM3U\n\n#EXT-X-STREAM-INF:BANDWIDTH=1\na.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=many\nb.m3u8\n"
	_, _, err := decodeMaster(splitLines([]byte(body)))
	var pe *analysis.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "EXT-X-STREAM-INF BANDWIDTH", pe.Construct)
	assert.Equal(t, 5, pe.Line)
}

func TestDecodeMaster_CollectsUnmodelledTags(t *testing.T) {
	body := strings.Join([]string{
		"#EXTM3U",
		`#EXT-X-SESSION-KEY:METHOD=AES-128,URI="https://keys.example/k"`,
		`#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="a",CHANNELS="6"`,
		"#EXT-X-STREAM-INF:BANDWIDTH=1,AUDIO=\"a\"",
		"v.m3u8",
		`#EXT-X-IMAGE-STREAM-INF:BANDWIDTH=1,CODECS="png",URI="img.m3u8"`,
	}, "\n")
	pl, rec, err := decodeMaster(splitLines([]byte(body)))
	require.NoError(t, err)

	require.Len(t, pl.Variants, 1)
	assert.Equal(t, "v.m3u8", pl.Variants[0].URI)
	require.Len(t, rec.variants, 1)
	assert.Equal(t, 4, rec.variants[0].line)
	require.Len(t, rec.media, 1)
	assert.Equal(t, "6", rec.media[0].attrs["CHANNELS"])
	require.Len(t, rec.sessionKeys, 1)
	assert.Equal(t, "https://keys.example/k", rec.sessionKeys[0].attrs["URI"])
	require.Len(t, rec.images, 1)
	assert.Equal(t, "PNG", thumbnailFormat(rec.images[0].attrs["CODECS"], "JPEG"))
}
