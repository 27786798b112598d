// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manifest

import (
	"bytes"
	"encoding/xml"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html/charset"

	platformnet "github.com/ManuGH/streamview/internal/platform/net"
)

// Format is the detected manifest grammar.
type Format int

const (
	Unrecognized Format = iota
	HLS
	DASH
)

func (f Format) String() string {
	switch f {
	case HLS:
		return "hls"
	case DASH:
		return "dash"
	default:
		return "unrecognized"
	}
}

// sniffLimit bounds how much of the body is inspected for the XML root.
const sniffLimit = 64 << 10

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Detect classifies a manifest. The URL path suffix wins; content sniffing
// breaks ties; Content-Type is consulted last.
func Detect(rawURL string, body []byte, contentType string) Format {
	if f := DetectURL(rawURL); f != Unrecognized {
		return f
	}
	if f := sniff(body); f != Unrecognized {
		return f
	}
	return detectContentType(contentType)
}

// DetectURL classifies by path suffix only, ignoring the query string.
func DetectURL(rawURL string) Format {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Unrecognized
	}
	switch platformnet.PathExtension(u) {
	case ".m3u8", ".m3u":
		return HLS
	case ".mpd":
		return DASH
	}
	return Unrecognized
}

func sniff(body []byte) Format {
	if len(body) > sniffLimit {
		body = body[:sniffLimit]
	}
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(body, utf8BOM), " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("#EXTM3U")) {
		return HLS
	}
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return Unrecognized
	}
	if root, ok := xmlRoot(trimmed); ok && root == "MPD" {
		return DASH
	}
	return Unrecognized
}

// xmlRoot returns the local name of the first start element.
func xmlRoot(b []byte) (string, bool) {
	dec := xml.NewDecoder(bytes.NewReader(b))
	dec.Strict = false
	dec.CharsetReader = charset.NewReaderLabel
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, true
		}
	}
}

func detectContentType(contentType string) Format {
	if contentType == "" {
		return Unrecognized
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Unrecognized
	}
	switch strings.ToLower(mediaType) {
	case "application/vnd.apple.mpegurl", "application/x-mpegurl", "audio/mpegurl", "audio/x-mpegurl":
		return HLS
	case "application/dash+xml":
		return DASH
	}
	return Unrecognized
}
