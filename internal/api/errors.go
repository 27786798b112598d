// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/streamview/internal/domain/analysis"
)

// errorBody is the wire shape of every non-2xx response.
type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a plain error response with a fixed kind.
func writeError(w http.ResponseWriter, code int, kind, message string) {
	writeJSON(w, code, errorBody{Error: kind, Message: message})
}

// statusForKind maps error kinds to HTTP statuses.
func statusForKind(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case string(analysis.FetchSsrfBlocked):
		return http.StatusForbidden
	case string(analysis.FetchNotFound):
		return http.StatusNotFound
	case string(analysis.FetchTooLarge):
		return http.StatusRequestEntityTooLarge
	case "parse_error":
		return http.StatusUnprocessableEntity
	case string(analysis.FetchNetworkRefused):
		return http.StatusBadGateway
	case string(analysis.FetchTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeAnalysisError translates a fatal pipeline error into its wire form.
func writeAnalysisError(w http.ResponseWriter, err error) {
	kind := analysis.ErrorKind(err)
	body := errorBody{Error: kind, Message: err.Error(), Details: errorDetails(err)}

	code := statusForKind(kind)
	if code == http.StatusInternalServerError {
		// internal causes stay in the logs
		body.Message = "An unexpected error occurred."
		body.Details = nil
	}
	writeJSON(w, code, body)
}

func errorDetails(err error) map[string]any {
	var (
		ve *analysis.ValidationError
		fe *analysis.FetchError
		pe *analysis.ParseError
	)
	switch {
	case errors.As(err, &ve):
		d := map[string]any{"reason": ve.Reason}
		if ve.Field != "" {
			d["field"] = ve.Field
		}
		return d
	case errors.As(err, &fe):
		d := map[string]any{"url": fe.URL}
		if fe.StatusCode > 0 {
			d["status_code"] = fe.StatusCode
		}
		return d
	case errors.As(err, &pe):
		d := map[string]any{"format": string(pe.Format), "construct": pe.Construct}
		if pe.Line > 0 {
			d["line"] = pe.Line
		}
		return d
	}
	return nil
}
