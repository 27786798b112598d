// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manifest

import (
	"net/url"
	"strings"
)

// Resolve resolves ref against base. Unparseable input yields ref unchanged.
func Resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// ContainerHint guesses the fragment container from a URL path.
func ContainerHint(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := strings.ToLower(u.Path)
	switch {
	case strings.HasSuffix(p, ".ts"), strings.HasSuffix(p, ".m2ts"):
		return "ts"
	case strings.HasSuffix(p, ".mp4"), strings.HasSuffix(p, ".m4s"), strings.HasSuffix(p, ".m4v"),
		strings.HasSuffix(p, ".m4a"), strings.HasSuffix(p, ".cmfv"), strings.HasSuffix(p, ".cmfa"):
		return "mp4"
	}
	return ""
}
