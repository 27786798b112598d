// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manifest

import (
	"strings"

	"golang.org/x/text/language"
)

// CanonicalLanguage returns the BCP 47 canonical form of tag. Unparseable tags
// are kept verbatim; an empty tag is absent.
func CanonicalLanguage(tag string) *string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return &tag
	}
	s := parsed.String()
	return &s
}
