// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/streamview/internal/platform/httpx"
)

const defaultHealthcheckTimeout = 5 * time.Second

func newHealthcheckCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check a running API server (for container health probes)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				cfg, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				addr = cfg.Server.ListenAddr
			}
			if err := runHealthcheck(cmd.Context(), httpx.NewClient(timeout), addr); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "healthcheck ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (YAML); supplies server.listen_addr")
	cmd.Flags().StringVar(&addr, "addr", "", "host:port of the API server (overrides config)")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultHealthcheckTimeout, "check timeout")
	return cmd
}

// runHealthcheck GETs /healthz on the server listening at addr.
func runHealthcheck(ctx context.Context, client *http.Client, addr string) error {
	url, err := healthURL(addr)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("healthcheck request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck failed (network): %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck failed (status): %s", resp.Status)
	}
	return nil
}

// healthURL maps a listen address to a loopback URL; an empty or wildcard
// host means the local machine.
func healthURL(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("healthcheck address %q: %w", addr, err)
	}
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/healthz", nil
}
