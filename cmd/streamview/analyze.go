// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/ManuGH/streamview/internal/domain/analysis"
	"github.com/ManuGH/streamview/internal/pipeline"
)

type analyzeFlags struct {
	configPath string
	out        string
	skipProbe  bool
	probeCount int
	compact    bool
}

func newAnalyzeCmd() *cobra.Command {
	var f analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Analyze one manifest and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(f.configPath)
			if err != nil {
				return err
			}
			analyzer, err := buildAnalyzer(cfg, pipeline.Options{SkipProbe: f.skipProbe, ProbeCount: f.probeCount})
			if err != nil {
				return err
			}
			return runAnalyze(ctx, analyzer, args[0], f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to config file (YAML)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write JSON to this file instead of stdout")
	cmd.Flags().BoolVar(&f.skipProbe, "skip-probe", false, "do not download or probe fragments")
	cmd.Flags().IntVar(&f.probeCount, "probe-count", 0, "number of bitrate levels to probe (1-10, 0 = probe.count from config)")
	cmd.Flags().BoolVar(&f.compact, "compact", false, "emit compact JSON")
	return cmd
}

// resultAnalyzer is the slice of *pipeline.Analyzer the command needs.
type resultAnalyzer interface {
	Analyze(ctx context.Context, rawURL string) (*analysis.Result, error)
}

func runAnalyze(ctx context.Context, a resultAnalyzer, rawURL string, f analyzeFlags, stdout io.Writer) error {
	res, err := a.Analyze(ctx, rawURL)
	if err != nil {
		return &analyzeError{err: err}
	}

	data, err := encodeResult(res, f.compact)
	if err != nil {
		return err
	}
	if f.out == "" {
		_, err = stdout.Write(data)
		return err
	}
	return writeResultFile(f.out, data)
}

func encodeResult(res *analysis.Result, compact bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if compact {
		data, err = json.Marshal(res)
	} else {
		data, err = json.MarshalIndent(res, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return append(data, '\n'), nil
}

// writeResultFile replaces path atomically: fsync, then rename.
func writeResultFile(path string, data []byte) error {
	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending result file: %w", err)
	}
	// Cleanup is a no-op after a successful replace
	defer func() { _ = pendingFile.Cleanup() }()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write result data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace result file: %w", err)
	}
	return nil
}

// analyzeError carries the error kind to the exit code.
type analyzeError struct {
	err error
}

func (e *analyzeError) Error() string {
	return fmt.Sprintf("%s: %v", analysis.ErrorKind(e.err), e.err)
}

func (e *analyzeError) Unwrap() error { return e.err }

// exitCode is 2 for input problems, 3 for remote failures and 1 otherwise.
func exitCode(err error) int {
	var ae *analyzeError
	if !errors.As(err, &ae) {
		return 1
	}
	switch analysis.ErrorKind(ae.err) {
	case "validation":
		return 2
	case "internal":
		return 1
	default:
		return 3
	}
}
