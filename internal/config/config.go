// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads streamview configuration with precedence
// ENV > YAML file > defaults. Fetch and size limits of the analysis pipeline
// are constants in their packages and are not configurable here.
package config

import "time"

// EnvPrefix prefixes every environment variable read by the loader.
const EnvPrefix = "STREAMVIEW_"

// Config is the effective, validated configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Outbound  OutboundConfig  `yaml:"outbound"`
	FFprobe   FFprobeConfig   `yaml:"ffprobe"`
	Probe     ProbeConfig     `yaml:"probe"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Version is stamped from the binary, never read from file or env.
	Version string `yaml:"-"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimitRPM caps analyze requests per client IP per minute. 0 disables.
	RateLimitRPM int `yaml:"rate_limit_rpm"`
}

// OutboundConfig controls which destinations the fetcher may reach.
type OutboundConfig struct {
	// AllowCIDRs re-admits otherwise blocked private ranges, e.g. a lab CDN.
	AllowCIDRs []string `yaml:"allow_cidrs"`
}

type FFprobeConfig struct {
	Bin string `yaml:"bin"`
}

// ProbeConfig sets how many levels get a fragment probe per analysis.
type ProbeConfig struct {
	// Count of 0 probes every level up to the pipeline maximum.
	Count int `yaml:"count"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	// Endpoint is host:port, or a full http(s) URL including the path.
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Log: LogConfig{Level: "info", Service: "streamview"},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    100 * time.Second, // outlives the 90s analysis deadline
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPM:    60,
		},
		FFprobe: FFprobeConfig{Bin: ""},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}
