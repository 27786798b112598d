// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ManuGH/streamview/internal/config"
	"github.com/ManuGH/streamview/internal/fetch"
	"github.com/ManuGH/streamview/internal/infra/ffprobe"
	"github.com/ManuGH/streamview/internal/log"
	"github.com/ManuGH/streamview/internal/pipeline"
	"github.com/ManuGH/streamview/internal/platform/httpx"
	platformnet "github.com/ManuGH/streamview/internal/platform/net"
	"github.com/ManuGH/streamview/internal/probe"
	"github.com/ManuGH/streamview/internal/telemetry"
	"github.com/ManuGH/streamview/internal/validate"
	"github.com/ManuGH/streamview/internal/version"
)

// loadConfig loads configuration with precedence ENV > File > Defaults and
// re-configures the logger from it.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		return config.Config{}, err
	}
	log.Configure(log.Config{
		Level:   cfg.Log.Level,
		Service: cfg.Log.Service,
		Version: cfg.Version,
		Output:  logOutput,
	})

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger := log.WithComponent("cli")
	logger.Debug().
		Str(log.FieldEvent, "config.loaded").
		Str("source", source).
		Str("path", path).
		Msg("configuration loaded")
	return cfg, nil
}

// startTelemetry installs the tracer provider; the returned func flushes it.
func startTelemetry(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	exporter, err := validate.ParseExporter(cfg.Telemetry.Exporter)
	if err != nil && cfg.Telemetry.Enabled {
		return nil, fmt.Errorf("telemetry.exporter: %w", err)
	}
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   string(exporter),
		Endpoint:       strings.TrimSpace(cfg.Telemetry.Endpoint),
		Insecure:       cfg.Telemetry.Insecure,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	return tp.Shutdown, nil
}

// analyzerOptions fills what the caller left unset from cfg.
func analyzerOptions(cfg config.Config, opts pipeline.Options) pipeline.Options {
	if opts.ProbeCount == 0 {
		opts.ProbeCount = cfg.Probe.Count
	}
	return opts
}

// buildAnalyzer wires fetcher, prober and pipeline from cfg.
func buildAnalyzer(cfg config.Config, opts pipeline.Options) (*pipeline.Analyzer, error) {
	opts = analyzerOptions(cfg, opts)
	policy, err := platformnet.NewOutboundPolicy(cfg.Outbound.AllowCIDRs)
	if err != nil {
		return nil, fmt.Errorf("outbound policy: %w", err)
	}
	client := httpx.NewGuardedClient(httpx.GuardOptions{
		Policy: policy,
		Trace:  cfg.Telemetry.Enabled,
	})
	getter := fetch.New(client, policy)

	var prober probe.Prober
	switch {
	case opts.SkipProbe:
	case cfg.FFprobe.Bin == "":
		logger := log.WithComponent("cli")
		logger.Warn().
			Str(log.FieldEvent, "ffprobe.unavailable").
			Msg("ffprobe not found in PATH; fragment probing disabled")
	default:
		prober = ffprobe.NewProber(cfg.FFprobe.Bin)
	}
	return pipeline.New(getter, prober, opts), nil
}
