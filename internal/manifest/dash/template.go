// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dash

import (
	"fmt"
	"strconv"
	"strings"
)

type templateVars struct {
	repID     string
	bandwidth int64
	number    uint64
	time      uint64
}

// expandTemplate substitutes SegmentTemplate identifiers. Numeric identifiers
// accept a printf width such as $Number%05d$; "$$" is a literal dollar.
func expandTemplate(tmpl string, v templateVars) (string, error) {
	var sb strings.Builder
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '$')
		if open < 0 {
			sb.WriteString(rest)
			return sb.String(), nil
		}
		sb.WriteString(rest[:open])
		rest = rest[open+1:]
		end := strings.IndexByte(rest, '$')
		if end < 0 {
			return "", fmt.Errorf("template %q: unterminated identifier", tmpl)
		}
		ident := rest[:end]
		rest = rest[end+1:]
		if ident == "" {
			sb.WriteByte('$')
			continue
		}

		name, format, hasFormat := strings.Cut(ident, "%")
		var value uint64
		switch name {
		case "RepresentationID":
			if hasFormat {
				return "", fmt.Errorf("template %q: $RepresentationID$ takes no format", tmpl)
			}
			sb.WriteString(v.repID)
			continue
		case "Number":
			value = v.number
		case "Time":
			value = v.time
		case "Bandwidth":
			value = uint64(v.bandwidth)
		default:
			return "", fmt.Errorf("template %q: unknown identifier %q", tmpl, name)
		}
		if !hasFormat {
			sb.WriteString(strconv.FormatUint(value, 10))
			continue
		}
		width, err := parseWidth(format)
		if err != nil {
			return "", fmt.Errorf("template %q: %w", tmpl, err)
		}
		fmt.Fprintf(&sb, "%0*d", width, value)
	}
}

// parseWidth validates a "0Nd" format tag and returns N.
func parseWidth(format string) (int, error) {
	if !strings.HasSuffix(format, "d") {
		return 0, fmt.Errorf("unsupported format %%%s", format)
	}
	digits := strings.TrimSuffix(format, "d")
	if digits == "" {
		return 0, nil
	}
	w, err := strconv.Atoi(digits)
	if err != nil || w < 0 || w > 20 {
		return 0, fmt.Errorf("unsupported format %%%s", format)
	}
	return w, nil
}
