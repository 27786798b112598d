// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command streamview analyzes HLS and DASH manifests.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuGH/streamview/internal/log"
	"github.com/ManuGH/streamview/internal/version"
)

// logOutput receives all log lines; stdout is reserved for results.
var logOutput io.Writer = os.Stderr

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "streamview",
		Short:         "Inspect HLS and DASH manifests",
		Long:          "streamview fetches a streaming manifest and reports bitrate levels, tracks, DRM, SCTE-35 markers and probed fragment metrics as JSON.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// safe defaults until config is loaded
			log.Configure(log.Config{Level: "info", Service: "streamview", Version: version.Version, Output: logOutput})
		},
	}
	logOutput = stderr
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newServeCmd(), newAnalyzeCmd(), newHealthcheckCmd(), newVersionCmd())
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\n\n%s", err, cmd.UsageString())
	})
	return root
}
