// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/log"
	"github.com/ManuGH/streamview/internal/platform/net"
)

const maxRequestBody = 64 << 10

type analyzeRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.cfg.Version})
}

func (s *Server) handleAnalyzePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req analyzeRequest
	if err := dec.Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.As(err, &mbe):
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "validation", "request body is empty")
		default:
			writeError(w, http.StatusBadRequest, "validation", "invalid JSON body: "+err.Error())
		}
		return
	}
	s.analyze(w, r, req.URL)
}

func (s *Server) handleAnalyzeGet(w http.ResponseWriter, r *http.Request) {
	s.analyze(w, r, r.URL.Query().Get("url"))
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request, rawURL string) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		writeAnalysisError(w, &analysis.ValidationError{Field: "url", Reason: "is required"})
		return
	}

	res, err := s.analyzer.Analyze(r.Context(), rawURL)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Debug().
			Str(log.FieldEvent, "analyze.rejected").
			Str(log.FieldURL, net.SanitizeURL(rawURL)).
			Str(log.FieldErrorKind, analysis.ErrorKind(err)).
			Err(err).
			Msg("analysis failed")
		writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
