package config

import "time"

// Config is the root configuration for taskboard.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Mail      MailConfig      `yaml:"mail"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Admin     AdminConfig     `yaml:"admin"`
	Tunnel    TunnelConfig    `yaml:"tunnel"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

type AuthConfig struct {
	// JWTSecret signs access tokens. When empty a key is generated and kept in KeyDir.
	JWTSecret      string        `yaml:"jwt_secret"`
	KeyDir         string        `yaml:"key_dir"`
	Issuer         string        `yaml:"issuer"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	BcryptCost     int           `yaml:"bcrypt_cost"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type MailConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	From     string        `yaml:"from"`
	Timeout  time.Duration `yaml:"timeout"`
}

type WebSocketConfig struct {
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

type AdminConfig struct {
	// Enabled mounts the admin tool endpoint.
	Enabled bool `yaml:"enabled"`
}

// TunnelConfig publishes the server through ngrok in addition to the local listener.
type TunnelConfig struct {
	Enabled   bool   `yaml:"enabled"`
	AuthToken string `yaml:"authtoken"`
	Domain    string `yaml:"domain"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8066,
			LogLevel: "info",
		},
		Auth: AuthConfig{
			KeyDir:         "~/.config/taskboard",
			Issuer:         "taskboard",
			AccessTokenTTL: 30 * time.Minute,
			BcryptCost:     12,
		},
		Database: DatabaseConfig{
			Path: "~/.config/taskboard/taskboard.db",
		},
		Mail: MailConfig{
			Port:    465,
			Timeout: 10 * time.Second,
		},
		WebSocket: WebSocketConfig{
			WriteTimeout:   10 * time.Second,
			PingInterval:   30 * time.Second,
			MaxMessageSize: 4096,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			Burst:             30,
		},
		Admin: AdminConfig{
			Enabled: true,
		},
	}
}
