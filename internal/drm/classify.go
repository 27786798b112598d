// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package drm maps raw manifest protection signals to a normalized scheme.
package drm

import (
	"strings"

	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/manifest"
)

// Well-known system IDs and key formats.
const (
	SystemWidevine  = "edef8ba9-79d6-4ace-a3c8-27dcd51d21ed"
	SystemPlayReady = "9a04f079-9840-4286-ab92-e65be0885f95"
	SystemFairPlay  = "94ce86fb-07ff-4f43-adb8-93d2fa968ca2"
	SystemClearKey  = "e2719d58-a985-b3c9-781a-b030af78d30e"
	SystemW3CCommon = "1077efec-c0b2-4d02-ace3-3c1e52e2fb4b"

	SchemeCENC = "urn:mpeg:dash:mp4protection:2011"

	keyFormatFairPlay  = "com.apple.streamingkeydelivery"
	keyFormatPlayReady = "com.microsoft.playready"
	keyFormatIdentity  = "identity"
	keyFormatClearKey  = "org.w3.clearkey"
	skdScheme          = "skd://"
	uuidPrefix         = "urn:uuid:"
)

var systems = map[string]analysis.DRMScheme{
	SystemWidevine:  analysis.DRMWidevine,
	SystemPlayReady: analysis.DRMPlayReady,
	SystemFairPlay:  analysis.DRMFairPlay,
	SystemClearKey:  analysis.DRMClearKey,
	SystemW3CCommon: analysis.DRMClearKey,
}

// SchemeForSystemID looks up a protection system UUID, with or without the
// urn:uuid: prefix.
func SchemeForSystemID(id string) (analysis.DRMScheme, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.TrimPrefix(id, uuidPrefix)
	s, ok := systems[id]
	return s, ok
}

// schemeOf classifies a single signal.
func schemeOf(sig manifest.DRMSignal) analysis.DRMScheme {
	if sig.SchemeIDURI != "" {
		if s, ok := SchemeForSystemID(sig.SchemeIDURI); ok {
			return s
		}
		return analysis.DRMUnknownProtected
	}

	kf := strings.ToLower(strings.TrimSpace(sig.KeyFormat))
	switch {
	case kf == keyFormatFairPlay:
		return analysis.DRMFairPlay
	case kf == keyFormatPlayReady:
		return analysis.DRMPlayReady
	case kf == keyFormatClearKey:
		return analysis.DRMClearKey
	case strings.HasPrefix(kf, uuidPrefix):
		if s, ok := SchemeForSystemID(kf); ok {
			return s
		}
	}
	if strings.HasPrefix(strings.ToLower(sig.URI), skdScheme) {
		return analysis.DRMFairPlay
	}
	return analysis.DRMUnknownProtected
}

// Classify reduces the signals of one manifest to a descriptor. A named
// system beats a generic one and, among named systems, the first signal in
// manifest order wins. Attributes missing from the winner are taken from
// the other signals, so a CENC default_KID still surfaces next to a
// Widevine PSSH.
func Classify(signals []manifest.DRMSignal) analysis.DRMDescriptor {
	if len(signals) == 0 {
		return analysis.DRMDescriptor{Scheme: analysis.DRMNone}
	}

	winner := -1
	schemes := make([]analysis.DRMScheme, len(signals))
	var seen []analysis.DRMScheme
	for i, sig := range signals {
		schemes[i] = schemeOf(sig)
		if schemes[i].Named() && winner < 0 {
			winner = i
		}
		if !contains(seen, schemes[i]) {
			seen = append(seen, schemes[i])
		}
	}
	if winner < 0 {
		winner = 0
	}

	w := signals[winner]
	d := analysis.DRMDescriptor{Scheme: schemes[winner], Systems: seen}
	d.KeySystem = nonEmpty(w.SchemeIDURI, w.KeyFormat)
	d.Method = nonEmpty(w.Method)
	d.KeyID = nonEmpty(w.DefaultKID)
	d.PSSH = nonEmpty(w.PSSH)
	d.LicenseURL = nonEmpty(w.LicenseURL)
	if d.LicenseURL == nil && w.URI != "" && !strings.HasPrefix(strings.ToLower(w.URI), skdScheme) {
		d.LicenseURL = nonEmpty(w.URI)
	}

	for i, sig := range signals {
		if i == winner {
			continue
		}
		if d.Method == nil {
			d.Method = nonEmpty(sig.Method)
			if d.Method == nil && sig.SchemeIDURI == SchemeCENC {
				d.Method = nonEmpty(sig.Value)
			}
		}
		if d.KeyID == nil {
			d.KeyID = nonEmpty(sig.DefaultKID)
		}
		if d.PSSH == nil && schemes[i] == d.Scheme {
			d.PSSH = nonEmpty(sig.PSSH)
		}
		if d.LicenseURL == nil && schemes[i] == d.Scheme {
			d.LicenseURL = nonEmpty(sig.LicenseURL)
		}
	}
	if d.Method == nil && w.SchemeIDURI == SchemeCENC {
		d.Method = nonEmpty(w.Value)
	}
	return d
}

func nonEmpty(vs ...string) *string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return &v
		}
	}
	return nil
}

func contains(list []analysis.DRMScheme, s analysis.DRMScheme) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
