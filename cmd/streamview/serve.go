// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/streamview/internal/api"
	"github.com/ManuGH/streamview/internal/log"
	"github.com/ManuGH/streamview/internal/pipeline"
	"github.com/ManuGH/streamview/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := log.WithComponent("daemon")

	shutdownTelemetry, err := startTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "telemetry.shutdown_failed").Msg("telemetry flush failed")
		}
	}()

	analyzer, err := buildAnalyzer(cfg, pipeline.Options{})
	if err != nil {
		return err
	}

	tracingService := ""
	if cfg.Telemetry.Enabled {
		tracingService = telemetry.InstrumentationName
	}
	srv := api.New(api.Config{
		ListenAddr:      cfg.Server.ListenAddr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimitRPM:    cfg.Server.RateLimitRPM,
		TracingService:  tracingService,
		Version:         cfg.Version,
	}, analyzer)

	logger.Info().
		Str(log.FieldEvent, "daemon.starting").
		Str("listen", cfg.Server.ListenAddr).
		Bool("probing", cfg.FFprobe.Bin != "").
		Msg("starting streamview")

	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}
	logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("server stopped")
	return nil
}
