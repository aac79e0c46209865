package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/coinbase-client/pkg/auth"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Expected default pretty to be false")
	}
	if cfg.Output == nil {
		t.Error("Expected default output to be set")
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	tests := []struct {
		level     LogLevel
		debugSeen bool
		infoSeen  bool
		warnSeen  bool
	}{
		{LevelDebug, true, true, true},
		{LevelInfo, false, true, true},
		{LevelWarn, false, false, true},
		{LevelError, false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := Setup(Config{Level: tt.level, Output: buf})

			logger.Debug().Msg("debug-line")
			logger.Info().Msg("info-line")
			logger.Warn().Msg("warn-line")
			logger.Error().Msg("error-line")

			out := buf.String()
			if strings.Contains(out, "debug-line") != tt.debugSeen {
				t.Errorf("debug visibility = %v, want %v", !tt.debugSeen, tt.debugSeen)
			}
			if strings.Contains(out, "info-line") != tt.infoSeen {
				t.Errorf("info visibility = %v, want %v", !tt.infoSeen, tt.infoSeen)
			}
			if strings.Contains(out, "warn-line") != tt.warnSeen {
				t.Errorf("warn visibility = %v, want %v", !tt.warnSeen, tt.warnSeen)
			}
			if !strings.Contains(out, "error-line") {
				t.Error("error messages should always be logged")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"WARN", zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewLogger_ComponentField(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := NewLogger("paginator")
	logger.Info().Str("endpoint", "list_accounts").Int("page", 2).Msg("page fetched")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if line["component"] != "paginator" {
		t.Errorf("component = %v, want paginator", line["component"])
	}
	if line["endpoint"] != "list_accounts" {
		t.Errorf("endpoint = %v, want list_accounts", line["endpoint"])
	}
}

func TestSetup_CredentialsRedacted(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelInfo, Output: buf})

	creds := auth.NewHMACCredentials("abcd1234", "c2VjcmV0LXNlY3JldA==", "hunter2")
	logger.Info().Object("credentials", creds).Interface("raw", creds).Msg("client created")

	out := buf.String()
	for _, secret := range []string{"c2VjcmV0LXNlY3JldA==", "hunter2", "abcd1234"} {
		if strings.Contains(out, secret) {
			t.Errorf("log output leaked %q: %s", secret, out)
		}
	}
}

func TestSetup_Pretty(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelInfo, Pretty: true, Output: buf})
	logger.Info().Msg("console output")

	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("pretty output should not be JSON: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "console output") {
		t.Error("message missing from console output")
	}
}
