package config

import (
	"log/slog"
	"testing"
	"time"
)

// noEnv is a lookupEnv that finds nothing.
func noEnv(string) (string, bool) { return "", false }

// envMap builds a lookupEnv over a fixed map.
func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := load(nil, noEnv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.SIPPort != defaultSIPPort {
		t.Errorf("SIPPort = %d, want %d", cfg.SIPPort, defaultSIPPort)
	}
	if cfg.BridgeStrategy != "proxy" {
		t.Errorf("BridgeStrategy = %q, want proxy (relay needs a relay url)", cfg.BridgeStrategy)
	}
	if cfg.DialTimeout != defaultDialTimeout {
		t.Errorf("DialTimeout = %s, want %s", cfg.DialTimeout, defaultDialTimeout)
	}
	if cfg.IVRMaxInvalid != defaultIVRMaxInvalid {
		t.Errorf("IVRMaxInvalid = %d, want %d", cfg.IVRMaxInvalid, defaultIVRMaxInvalid)
	}
	if cfg.ParkDest != defaultParkDest {
		t.Errorf("ParkDest = %q, want %q", cfg.ParkDest, defaultParkDest)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
}

func TestEnvVarOverride(t *testing.T) {
	env := envMap(map[string]string{
		"CALLSERVER_HTTP_PORT":    "9090",
		"CALLSERVER_DATA_DIR":     "/tmp/callserver-test",
		"CALLSERVER_LOG_LEVEL":    "debug",
		"CALLSERVER_DIAL_TIMEOUT": "45s",
	})

	cfg, err := load(nil, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.DataDir != "/tmp/callserver-test" {
		t.Errorf("DataDir = %q, want /tmp/callserver-test", cfg.DataDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.DialTimeout != 45*time.Second {
		t.Errorf("DialTimeout = %s, want 45s", cfg.DialTimeout)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	env := envMap(map[string]string{
		"CALLSERVER_HTTP_PORT": "9090",
		"CALLSERVER_LOG_LEVEL": "debug",
	})

	cfg, err := load([]string{"--http-port", "3000", "--log-level", "warn"}, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000 (CLI should override env)", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateInvalidPort(t *testing.T) {
	_, err := load([]string{"--http-port", "99999"}, noEnv)
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	_, err := load([]string{"--log-level", "verbose"}, noEnv)
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateRelayStrategy(t *testing.T) {
	if _, err := load([]string{"--bridge-strategy", "teleport"}, noEnv); err == nil {
		t.Error("expected error for unknown strategy, got nil")
	}

	// Relay with a URL stays relay; without one it falls back to proxy.
	cfg, err := load([]string{"--relay-url", "http://relay:8085/negotiate"}, noEnv)
	if err != nil {
		t.Fatalf("unexpected error with relay url: %v", err)
	}
	if cfg.BridgeStrategy != "relay" {
		t.Errorf("BridgeStrategy = %q, want relay", cfg.BridgeStrategy)
	}

	cfg, err = load([]string{"--bridge-strategy", "relay"}, noEnv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BridgeStrategy != "proxy" {
		t.Errorf("BridgeStrategy = %q, want proxy fallback", cfg.BridgeStrategy)
	}
}

func TestValidateLiveKitAllOrNothing(t *testing.T) {
	_, err := load([]string{"--livekit-host", "wss://lk.example.com"}, noEnv)
	if err == nil {
		t.Fatal("expected error when livekit-host provided without key and secret")
	}

	_, err = load([]string{
		"--livekit-host", "wss://lk.example.com",
		"--livekit-api-key", "key",
		"--livekit-api-secret", "secret",
	}, noEnv)
	if err != nil {
		t.Fatalf("unexpected error with full livekit config: %v", err)
	}
}

func TestValidateIVRMaxInvalid(t *testing.T) {
	_, err := load([]string{"--ivr-max-invalid", "0"}, noEnv)
	if err == nil {
		t.Fatal("expected error for ivr-max-invalid 0, got nil")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
