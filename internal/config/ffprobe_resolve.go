// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os/exec"
	"strings"
)

// ResolveFFprobeBin returns an effective ffprobe binary path.
//
// Resolution order:
// 1) Explicit ffprobeBin (e.g. STREAMVIEW_FFPROBE_BIN)
// 2) ffprobe found on PATH
// 3) Empty string (the prober falls back to "ffprobe" and fails per fragment)
func ResolveFFprobeBin(ffprobeBin string) string {
	return resolveFFprobeBinWithLookPath(ffprobeBin, exec.LookPath)
}

func resolveFFprobeBinWithLookPath(ffprobeBin string, lookPath func(string) (string, error)) string {
	if ffprobeBin = strings.TrimSpace(ffprobeBin); ffprobeBin != "" {
		return ffprobeBin
	}
	if p, err := lookPath("ffprobe"); err == nil {
		return p
	}
	return ""
}
