// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"

	"github.com/ManuGH/streamview/internal/validate"
)

// maxProbeCount mirrors probe.MaxProbes; config stays free of pipeline imports.
const maxProbeCount = 10

var exporters = []string{string(validate.ExporterGRPC), string(validate.ExporterHTTP)}

// Validate checks the effective configuration and reports every problem at once.
func Validate(cfg Config) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(cfg.Log.Level); err != nil {
		v.AddError("log.level", err.Error(), cfg.Log.Level)
	}
	v.NotEmpty("log.service", cfg.Log.Service)

	v.ListenAddr("server.listen_addr", cfg.Server.ListenAddr)
	v.PositiveDuration("server.read_timeout", cfg.Server.ReadTimeout)
	v.PositiveDuration("server.write_timeout", cfg.Server.WriteTimeout)
	v.PositiveDuration("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.NonNegative("server.rate_limit_rpm", cfg.Server.RateLimitRPM)

	for _, entry := range cfg.Outbound.AllowCIDRs {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		v.CIDR("outbound.allow_cidrs", entry)
	}

	v.Range("probe.count", cfg.Probe.Count, 0, maxProbeCount)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", strings.ToLower(strings.TrimSpace(cfg.Telemetry.Exporter)), exporters)
		if endpoint := strings.TrimSpace(cfg.Telemetry.Endpoint); strings.Contains(endpoint, "://") {
			v.URL("telemetry.endpoint", endpoint, []string{"http", "https"})
		} else {
			v.NotEmpty("telemetry.endpoint", endpoint)
		}
		v.FloatRange("telemetry.sampling_rate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
