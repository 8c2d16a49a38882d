package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML overlay.
type fileConfig struct {
	Client struct {
		APIURL           string `yaml:"api_url"`
		CredentialsDB    string `yaml:"credentials_db"`
		Profile          string `yaml:"profile"`
		AutosaveInterval string `yaml:"autosave_interval"`
		RequestTimeout   string `yaml:"request_timeout"`
		BridgeAddr       string `yaml:"bridge_addr"`
		ScenePath        string `yaml:"scene_path"`
		FontPath         string `yaml:"font_path"`
		LogLevel         string `yaml:"log_level"`
	} `yaml:"client"`
	Server struct {
		Port           string   `yaml:"port"`
		FrontendURL    string   `yaml:"frontend_url"`
		DBPath         string   `yaml:"db_path"`
		JWTSecret      string   `yaml:"jwt_secret"`
		AccessTTL      string   `yaml:"access_ttl"`
		RefreshTTL     string   `yaml:"refresh_ttl"`
		ChatRateLimit  int      `yaml:"chat_rate_limit"`
		ChatRateWindow string   `yaml:"chat_rate_window"`
		ChatChunkDelay string   `yaml:"chat_chunk_delay"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		LogLevel       string   `yaml:"log_level"`
		SessionIdleTTL string   `yaml:"session_idle_ttl"`
		SweepInterval  string   `yaml:"session_sweep_interval"`
	} `yaml:"server"`
}

// loadFile reads the overlay at path. An empty path yields an empty overlay.
func loadFile(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}
