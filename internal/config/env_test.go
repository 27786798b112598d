// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/ManuGH/streamview/internal/log"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		envSet       bool
		want         string
	}{
		{"environment variable set", "TEST_STRING", "default", "from-env", true, "from-env"},
		{"environment variable not set", "TEST_STRING_UNSET", "default", "", false, "default"},
		{"environment variable empty string", "TEST_STRING_EMPTY", "default", "", true, "default"},
		{"sensitive variable (password)", "TEST_PASSWORD", "default", "secret123", true, "secret123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envSet {
				t.Setenv(tt.key, tt.envValue)
			}
			if got := ParseString(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("ParseString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_BAD", "forty-two")

	if got := ParseInt("TEST_INT", 1); got != 42 {
		t.Errorf("ParseInt() = %d, want 42", got)
	}
	if got := ParseInt("TEST_INT_BAD", 1); got != 1 {
		t.Errorf("ParseInt() invalid = %d, want default 1", got)
	}
	if got := ParseInt("TEST_INT_UNSET", 7); got != 7 {
		t.Errorf("ParseInt() unset = %d, want 7", got)
	}
}

func TestParseDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "1m30s")
	t.Setenv("TEST_DURATION_BAD", "90")

	if got := ParseDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("ParseDuration() = %v, want 1m30s", got)
	}
	if got := ParseDuration("TEST_DURATION_BAD", time.Second); got != time.Second {
		t.Errorf("ParseDuration() invalid = %v, want default", got)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"YES", false, true},
		{"1", false, true},
		{"false", true, false},
		{"no", true, false},
		{"0", true, false},
		{"maybe", true, true},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			if got := ParseBool("TEST_BOOL", tt.def); got != tt.want {
				t.Errorf("ParseBool(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseFloatAndList(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.75")
	t.Setenv("TEST_LIST", " a, b ,,c ")

	if got := ParseFloat("TEST_FLOAT", 1); got != 0.75 {
		t.Errorf("ParseFloat() = %v, want 0.75", got)
	}
	got := ParseList("TEST_LIST", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("ParseList() = %q", got)
	}
	if def := ParseList("TEST_LIST_UNSET", []string{"x"}); len(def) != 1 || def[0] != "x" {
		t.Errorf("ParseList() unset = %q", def)
	}
}

func TestInvalidEnvValueLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	log.Configure(log.Config{Level: "warn", Output: &buf})
	t.Cleanup(func() { log.Configure(log.Config{}) })

	t.Setenv("TEST_INT_WARN", "lots")
	if got := ParseInt("TEST_INT_WARN", 3); got != 3 {
		t.Fatalf("ParseInt() = %d, want default 3", got)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "warn" || entry["component"] != "config" || entry["key"] != "TEST_INT_WARN" {
		t.Errorf("unexpected warning entry: %v", entry)
	}
}
