// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by pipeline spans.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Analysis attributes
	ManifestTypeKey   = "manifest.type"
	ManifestURLKey    = "manifest.url"
	ManifestLiveKey   = "manifest.live"
	ManifestLevelsKey = "manifest.levels"
	ManifestBytesKey  = "manifest.bytes"

	Scte35MarkersKey = "scte35.markers"
	DRMSchemeKey     = "drm.scheme"

	ProbeSelectedKey = "probe.selected"
	ProbeResultsKey  = "probe.results"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// ManifestAttributes describes a normalized manifest. url must already be sanitized.
func ManifestAttributes(manifestType, url string, live bool, levels int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ManifestTypeKey, manifestType),
		attribute.String(ManifestURLKey, url),
		attribute.Bool(ManifestLiveKey, live),
		attribute.Int(ManifestLevelsKey, levels),
	}
}

// ProbeAttributes summarizes one orchestrator run.
func ProbeAttributes(selected, results int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(ProbeSelectedKey, selected),
		attribute.Int(ProbeResultsKey, results),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
