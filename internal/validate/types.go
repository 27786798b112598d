// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"strings"
)

// LogLevel is a zerolog level name accepted in configuration.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is a known level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// ParseLogLevel is case-insensitive and ignores surrounding whitespace.
func ParseLogLevel(s string) (LogLevel, error) {
	level := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if !level.IsValid() {
		return "", ErrInvalidLogLevel
	}
	return level, nil
}

// Exporter names an OTLP trace transport.
type Exporter string

const (
	ExporterGRPC Exporter = "grpc"
	ExporterHTTP Exporter = "http"
)

// ParseExporter accepts grpc or http.
func ParseExporter(s string) (Exporter, error) {
	switch e := Exporter(strings.ToLower(strings.TrimSpace(s))); e {
	case ExporterGRPC, ExporterHTTP:
		return e, nil
	}
	return "", ErrInvalidExporter
}

var (
	ErrInvalidLogLevel = errors.New("must be one of trace, debug, info, warn, error")
	ErrInvalidExporter = errors.New("must be one of grpc, http")
)
