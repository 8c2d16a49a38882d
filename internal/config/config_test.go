package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var clientKeys = []string{
	"DRILL_CONFIG", "DRILL_API_URL", "DRILL_CREDENTIALS_DB", "DRILL_PROFILE",
	"DRILL_AUTOSAVE_INTERVAL", "DRILL_REQUEST_TIMEOUT", "DRILL_BRIDGE_ADDR",
	"DRILL_SCENE", "DRILL_FONT", "DRILL_LOG_LEVEL",
}

var serverKeys = []string{
	"DRILL_CONFIG", "PORT", "FRONTEND_URL", "DB_PATH", "JWT_SECRET",
	"ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL", "CHAT_RATE_LIMIT", "CHAT_RATE_WINDOW",
	"CHAT_CHUNK_DELAY", "ALLOWED_ORIGINS", "METRICS_ENABLED", "LOG_LEVEL",
	"SESSION_IDLE_TTL", "SESSION_SWEEP_INTERVAL",
}

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatalf("unset %s: %v", k, err)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, clientKeys...)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:8000" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.AutosaveInterval != 10*time.Second {
		t.Errorf("AutosaveInterval = %v", cfg.AutosaveInterval)
	}
	if cfg.RequestTimeout != 0 || cfg.UsesBridge() {
		t.Errorf("RequestTimeout = %v, UsesBridge = %v", cfg.RequestTimeout, cfg.UsesBridge())
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	unsetEnv(t, clientKeys...)

	path := filepath.Join(t.TempDir(), "drill.yaml")
	data := []byte(`client:
  api_url: https://practice.example.com
  profile: work
  autosave_interval: 30s
  bridge_addr: 127.0.0.1:7070
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DRILL_CONFIG", path)
	t.Setenv("DRILL_PROFILE", "override")
	t.Setenv("DRILL_REQUEST_TIMEOUT", "15")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIBaseURL != "https://practice.example.com" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.Profile != "override" {
		t.Errorf("Profile = %q, want env override", cfg.Profile)
	}
	if cfg.AutosaveInterval != 30*time.Second {
		t.Errorf("AutosaveInterval = %v", cfg.AutosaveInterval)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if !cfg.UsesBridge() {
		t.Error("UsesBridge() = false")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "bad url", key: "DRILL_API_URL", val: "localhost:8000"},
		{name: "zero interval", key: "DRILL_AUTOSAVE_INTERVAL", val: "0s"},
		{name: "empty profile", key: "DRILL_PROFILE", val: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetEnv(t, clientKeys...)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q succeeded", tt.key, tt.val)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	unsetEnv(t, clientKeys...)
	t.Setenv("DRILL_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("Load() with a missing config file succeeded")
	}
}

func TestLoadServerDefaults(t *testing.T) {
	unsetEnv(t, serverKeys...)

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.Port != "8000" || cfg.JWTSecret != DevJWTSecret {
		t.Errorf("Port = %q, JWTSecret = %q", cfg.Port, cfg.JWTSecret)
	}
	if cfg.AccessTTL != 30*time.Minute || cfg.RefreshTTL != 7*24*time.Hour {
		t.Errorf("TTLs = %v / %v", cfg.AccessTTL, cfg.RefreshTTL)
	}
	if cfg.ChatRateLimit != 10 || cfg.ChatRateWindow != time.Minute {
		t.Errorf("rate limit = %d per %v", cfg.ChatRateLimit, cfg.ChatRateWindow)
	}
	if cfg.SessionIdleTTL != 30*time.Minute || cfg.SweepInterval != 5*time.Minute {
		t.Errorf("idle sweep = %v every %v", cfg.SessionIdleTTL, cfg.SweepInterval)
	}
	if !cfg.IsDevelopment() || cfg.CORSOrigins() != nil {
		t.Errorf("IsDevelopment = %v, CORSOrigins = %v", cfg.IsDevelopment(), cfg.CORSOrigins())
	}
}

func TestLoadServerRequiresSecretInProduction(t *testing.T) {
	unsetEnv(t, serverKeys...)
	t.Setenv("FRONTEND_URL", "https://drill.example.com")

	if _, err := LoadServer(); err == nil {
		t.Fatal("LoadServer() without JWT_SECRET in production succeeded")
	}

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if got := cfg.CORSOrigins(); len(got) != 2 || got[1] != "https://b.example.com" {
		t.Fatalf("CORSOrigins() = %v", got)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"250ms", 250 * time.Millisecond},
		{"12", 12 * time.Second},
		{"soon", time.Second},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, time.Second); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
