// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrUnrecognized means neither URL shape nor content identified a manifest format.
	ErrUnrecognized = errors.New("manifest format unrecognized")
	// ErrEncrypted is returned by probers when a fragment cannot be decoded due to DRM.
	ErrEncrypted = errors.New("fragment encrypted")
)

// ValidationError is a fatal, pre-fetch rejection of the input.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := "validation: " + e.Reason
	if e.Field != "" {
		msg = fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// FetchKind enumerates the fetch failure classes.
type FetchKind string

const (
	FetchNotFound       FetchKind = "not_found"
	FetchTimeout        FetchKind = "timeout"
	FetchTooLarge       FetchKind = "too_large"
	FetchNetworkRefused FetchKind = "network_refused"
	FetchSsrfBlocked    FetchKind = "ssrf_blocked"
)

// FetchError describes a failed remote retrieval.
type FetchError struct {
	Kind       FetchKind
	URL        string // sanitized
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches another *FetchError by kind, so errors.Is(err, &FetchError{Kind: FetchTimeout}) works.
func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsFetchKind reports whether err carries a FetchError of the given kind.
func IsFetchKind(err error, kind FetchKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

// ParseError is a fatal grammar failure naming the offending construct.
type ParseError struct {
	Format    ManifestType
	Construct string
	Line      int
	Err       error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s: %s", e.Format, e.Construct)
	if e.Line > 0 {
		msg = fmt.Sprintf("%s (line %d)", msg, e.Line)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Scte35DecodeError explains why a cue degraded. It never aborts an analysis.
type Scte35DecodeError struct {
	Stage string
	Err   error
}

func (e *Scte35DecodeError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("scte35: %v", e.Err)
	}
	return fmt.Sprintf("scte35: %s: %v", e.Stage, e.Err)
}

func (e *Scte35DecodeError) Unwrap() error { return e.Err }

// ProbeError is a per-fragment failure. It never aborts an analysis.
type ProbeError struct {
	LevelID   int
	URL       string
	Encrypted bool
	Err       error
}

func (e *ProbeError) Error() string {
	msg := fmt.Sprintf("probe level %d", e.LevelID)
	if e.URL != "" {
		msg += " " + e.URL
	}
	if e.Encrypted {
		msg += " (encrypted)"
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProbeError) Unwrap() error { return e.Err }

// ErrorKind returns the stable wire name of err for transport layers.
func ErrorKind(err error) string {
	var (
		ve *ValidationError
		fe *FetchError
		pe *ParseError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &fe):
		return string(fe.Kind)
	case errors.As(err, &pe):
		return "parse_error"
	case errors.Is(err, ErrUnrecognized):
		return "validation"
	default:
		return "internal"
	}
}
