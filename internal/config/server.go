package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// DevJWTSecret is the signing key used when JWT_SECRET is unset in development.
const DevJWTSecret = "designdrill-dev-secret"

// ServerConfig holds the devserver configuration.
type ServerConfig struct {
	Port           string
	FrontendURL    string
	DBPath         string
	JWTSecret      string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	ChatRateLimit  int
	ChatRateWindow time.Duration
	ChatChunkDelay time.Duration
	AllowedOrigins []string
	MetricsEnabled bool
	LogLevel       slog.Level
	// SessionIdleTTL pauses active sessions that have not autosaved for this long.
	SessionIdleTTL time.Duration
	SweepInterval  time.Duration
}

// LoadServer reads the devserver configuration.
func LoadServer() (*ServerConfig, error) {
	file, err := loadFile(os.Getenv("DRILL_CONFIG"))
	if err != nil {
		return nil, err
	}
	fs := file.Server

	rateLimit := getEnvInt("CHAT_RATE_LIMIT", fs.ChatRateLimit)
	if rateLimit <= 0 {
		rateLimit = 10
	}

	cfg := &ServerConfig{
		Port:           getEnv("PORT", or(fs.Port, "8000")),
		FrontendURL:    getEnv("FRONTEND_URL", fs.FrontendURL),
		DBPath:         getEnv("DB_PATH", or(fs.DBPath, "./data/devserver.db")),
		JWTSecret:      getEnv("JWT_SECRET", fs.JWTSecret),
		AccessTTL:      getEnvDuration("ACCESS_TOKEN_TTL", parseDuration(fs.AccessTTL, 30*time.Minute)),
		RefreshTTL:     getEnvDuration("REFRESH_TOKEN_TTL", parseDuration(fs.RefreshTTL, 7*24*time.Hour)),
		ChatRateLimit:  rateLimit,
		ChatRateWindow: getEnvDuration("CHAT_RATE_WINDOW", parseDuration(fs.ChatRateWindow, time.Minute)),
		ChatChunkDelay: getEnvDuration("CHAT_CHUNK_DELAY", parseDuration(fs.ChatChunkDelay, 20*time.Millisecond)),
		AllowedOrigins: fs.AllowedOrigins,
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		LogLevel:       parseLevel(getEnv("LOG_LEVEL", or(fs.LogLevel, "info"))),
		SessionIdleTTL: getEnvDuration("SESSION_IDLE_TTL", parseDuration(fs.SessionIdleTTL, 30*time.Minute)),
		SweepInterval:  getEnvDuration("SESSION_SWEEP_INTERVAL", parseDuration(fs.SweepInterval, 5*time.Minute)),
	}
	if origins, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = splitList(origins)
	}
	if cfg.JWTSecret == "" && cfg.IsDevelopment() {
		cfg.JWTSecret = DevJWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty outside development")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("token TTLs must be > 0")
	}
	if c.RefreshTTL < c.AccessTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL must not be shorter than ACCESS_TOKEN_TTL")
	}
	if c.ChatRateWindow <= 0 {
		return fmt.Errorf("CHAT_RATE_WINDOW must be > 0")
	}
	if c.ChatChunkDelay < 0 {
		return fmt.Errorf("CHAT_CHUNK_DELAY cannot be negative")
	}
	if c.SessionIdleTTL <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL and SESSION_SWEEP_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *ServerConfig) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// CORSOrigins returns the origins allowed by CORS, defaulting to the
// frontend URL.
func (c *ServerConfig) CORSOrigins() []string {
	if len(c.AllowedOrigins) > 0 {
		return c.AllowedOrigins
	}
	if c.FrontendURL != "" {
		return []string{c.FrontendURL}
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
