// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldService       = "service"
	FieldVersion       = "version"
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldTraceID       = "trace_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"

	// Manifest / stream fields
	FieldURL          = "url"
	FieldManifestType = "manifest_type"
	FieldLevelID      = "level_id"
	FieldBitrate      = "bitrate"
	FieldCodec        = "codec"
	FieldResolution   = "resolution"
	FieldCommand      = "command"

	// Transfer fields
	FieldBytes      = "bytes"
	FieldStatusCode = "status_code"
	FieldDurationMS = "duration_ms"
	FieldErrorKind  = "error_kind"
)
