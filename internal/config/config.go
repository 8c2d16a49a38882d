// Package config provides client and devserver configuration.
//
// Values come from environment variables. An optional YAML file named by
// DRILL_CONFIG supplies values for variables that are not set.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the CLI client configuration.
type Config struct {
	APIBaseURL       string
	CredentialsPath  string
	Profile          string
	AutosaveInterval time.Duration
	RequestTimeout   time.Duration // 0 = transport default
	BridgeAddr       string        // empty = file surface
	ScenePath        string
	FontPath         string
	LogLevel         slog.Level
}

// Load reads the client configuration.
func Load() (*Config, error) {
	file, err := loadFile(os.Getenv("DRILL_CONFIG"))
	if err != nil {
		return nil, err
	}
	fc := file.Client

	cfg := &Config{
		APIBaseURL:       getEnv("DRILL_API_URL", or(fc.APIURL, "http://localhost:8000")),
		CredentialsPath:  getEnv("DRILL_CREDENTIALS_DB", or(fc.CredentialsDB, "./data/credentials.db")),
		Profile:          getEnv("DRILL_PROFILE", or(fc.Profile, "default")),
		AutosaveInterval: getEnvDuration("DRILL_AUTOSAVE_INTERVAL", parseDuration(fc.AutosaveInterval, 10*time.Second)),
		RequestTimeout:   getEnvDuration("DRILL_REQUEST_TIMEOUT", parseDuration(fc.RequestTimeout, 0)),
		BridgeAddr:       getEnv("DRILL_BRIDGE_ADDR", fc.BridgeAddr),
		ScenePath:        getEnv("DRILL_SCENE", or(fc.ScenePath, "./drawing.excalidraw")),
		FontPath:         getEnv("DRILL_FONT", fc.FontPath),
		LogLevel:         parseLevel(getEnv("DRILL_LOG_LEVEL", or(fc.LogLevel, "warn"))),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("DRILL_API_URL must be an http(s) URL, got %q", c.APIBaseURL)
	}
	if c.CredentialsPath == "" {
		return fmt.Errorf("DRILL_CREDENTIALS_DB cannot be empty")
	}
	if c.Profile == "" {
		return fmt.Errorf("DRILL_PROFILE cannot be empty")
	}
	if c.AutosaveInterval <= 0 {
		return fmt.Errorf("DRILL_AUTOSAVE_INTERVAL must be > 0")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("DRILL_REQUEST_TIMEOUT cannot be negative")
	}
	if c.BridgeAddr == "" && c.ScenePath == "" {
		return fmt.Errorf("DRILL_SCENE cannot be empty without DRILL_BRIDGE_ADDR")
	}
	return nil
}

// UsesBridge reports whether the browser canvas bridge is configured.
func (c *Config) UsesBridge() bool {
	return c.BridgeAddr != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return parseDuration(value, fallback)
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(value string, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func parseLevel(value string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func or(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
