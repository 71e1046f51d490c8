package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/taskboard/taskboard.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "taskboard", "taskboard.yaml"))
	}

	paths = append(paths, "taskboard.yaml")

	if envPath := os.Getenv("TASKBOARD_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/taskboard/taskboard.yaml < ~/.config/taskboard/taskboard.yaml < ./taskboard.yaml < $TASKBOARD_CONFIG
func Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides lets secrets and deployment paths come from the
// environment. They take precedence over YAML values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TASKBOARD_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("TASKBOARD_SMTP_PASSWORD"); v != "" {
		cfg.Mail.Password = v
	}
	if v := os.Getenv("TASKBOARD_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TASKBOARD_NGROK_AUTHTOKEN"); v != "" {
		cfg.Tunnel.AuthToken = v
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config search paths
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	slog.Debug("loading config file", "path", path)

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Auth.AccessTokenTTL <= 0 {
		return errors.New("auth.access_token_ttl must be positive")
	}

	if cfg.Auth.JWTSecret != "" && len(cfg.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 characters")
	}

	if cfg.Mail.Enabled {
		if cfg.Mail.Host == "" || cfg.Mail.From == "" {
			return errors.New("mail.host and mail.from are required when mail is enabled")
		}
		if cfg.Mail.Port < 1 || cfg.Mail.Port > 65535 {
			return fmt.Errorf("mail.port must be between 1 and 65535, got %d", cfg.Mail.Port)
		}
	}

	if cfg.WebSocket.PingInterval <= 0 || cfg.WebSocket.WriteTimeout <= 0 {
		return errors.New("websocket.ping_interval and websocket.write_timeout must be positive")
	}

	if cfg.RateLimit.RequestsPerMinute < 1 {
		return errors.New("rate_limit.requests_per_minute must be at least 1")
	}

	if cfg.Tunnel.Enabled && cfg.Tunnel.AuthToken == "" {
		return errors.New("tunnel.authtoken is required when tunnel is enabled")
	}

	cfg.Database.Path = ExpandHome(cfg.Database.Path)
	cfg.Auth.KeyDir = ExpandHome(cfg.Auth.KeyDir)

	return nil
}
