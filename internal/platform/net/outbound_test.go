// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver map[string][]string

func (r staticResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	raw, ok := r[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	out := make([]net.IPAddr, 0, len(raw))
	for _, s := range raw {
		out = append(out, net.IPAddr{IP: net.ParseIP(s)})
	}
	return out, nil
}

func TestCheckHost(t *testing.T) {
	policy, err := NewOutboundPolicy(nil)
	require.NoError(t, err)
	policy = policy.WithResolver(staticResolver{
		"cdn.example.com":    {"93.184.216.34"},
		"rebind.example.com": {"93.184.216.34", "10.0.0.7"},
		"internal.example":   {"192.168.1.10"},
	})

	cases := []struct {
		name    string
		host    string
		blocked bool
	}{
		{"public host", "cdn.example.com", false},
		{"public ip", "93.184.216.34", false},
		{"metadata ip", "169.254.169.254", true},
		{"loopback", "127.0.0.1", true},
		{"loopback v6", "[::1]", true},
		{"unspecified", "0.0.0.0", true},
		{"rfc1918", "10.1.2.3", true},
		{"rfc4193", "fd00::1", true},
		{"cgnat", "100.64.1.1", true},
		{"multicast", "239.1.1.1", true},
		{"one private answer", "rebind.example.com", true},
		{"private dns", "internal.example", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := policy.CheckHost(context.Background(), tc.host)
			if tc.blocked {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrBlockedTarget)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCheckHostResolveFailure(t *testing.T) {
	policy, err := NewOutboundPolicy(nil)
	require.NoError(t, err)
	policy = policy.WithResolver(staticResolver{})

	err = policy.CheckHost(context.Background(), "missing.example")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBlockedTarget)
}

func TestAllowCIDRsReadmit(t *testing.T) {
	policy, err := NewOutboundPolicy([]string{"127.0.0.0/8", "10.0.0.5"})
	require.NoError(t, err)

	assert.NoError(t, policy.CheckIP(net.ParseIP("127.0.0.1")))
	assert.NoError(t, policy.CheckIP(net.ParseIP("10.0.0.5")))
	assert.ErrorIs(t, policy.CheckIP(net.ParseIP("10.0.0.6")), ErrBlockedTarget)
}

func TestNewOutboundPolicyRejectsGarbage(t *testing.T) {
	_, err := NewOutboundPolicy([]string{"not-a-cidr"})
	assert.Error(t, err)
}

func TestDialControl(t *testing.T) {
	policy, err := NewOutboundPolicy(nil)
	require.NoError(t, err)

	assert.NoError(t, policy.DialControl("tcp4", "93.184.216.34:443", nil))
	assert.ErrorIs(t, policy.DialControl("tcp4", "127.0.0.1:80", nil), ErrBlockedTarget)
	assert.ErrorIs(t, policy.DialControl("tcp6", "[fe80::1]:80", nil), ErrBlockedTarget)
	assert.Error(t, policy.DialControl("tcp", "garbage", nil))
}

func TestNormalizeHost(t *testing.T) {
	got, err := NormalizeHost("BÜCHER.example.")
	require.NoError(t, err)
	assert.Equal(t, "xn--bcher-kva.example", got)

	for _, bad := range []string{"", "http://x", "a/b", "user@host", "host:80"} {
		_, err := NormalizeHost(bad)
		assert.Error(t, err, bad)
	}
}
