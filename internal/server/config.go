// Package server provides configuration helpers that define runtime
// defaults, validation, and rate-limiting parameters for the gateway.
package server

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the gateway configuration including security controls.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig

	TokenSecret string
	TokenTTL    time.Duration

	DatabasePath string
	UploadDir    string
	WebhookURL   string
}

// DefaultConfig returns the built-in defaults. The token secret has no
// default and must come from the config file or environment.
func DefaultConfig() *Config {
	return &Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		TokenTTL:     7 * 24 * time.Hour,
		DatabasePath: "atlas.db",
		UploadDir:    "uploads/users/photos",
	}
}

// LoadConfig reads configuration from an optional YAML file and ATLAS_*
// environment variables, layered over the defaults. Pass an empty path to
// skip the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("atlas")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("server.port", def.Port)
	v.SetDefault("server.allowed_origins", def.AllowedOrigins)
	v.SetDefault("server.max_message_size", def.MaxMessageSize)
	v.SetDefault("server.rate_limit.burst", def.RateLimit.Burst)
	v.SetDefault("server.rate_limit.refill_interval", def.RateLimit.RefillInterval)
	v.SetDefault("auth.token_ttl", def.TokenTTL)
	v.SetDefault("store.path", def.DatabasePath)
	v.SetDefault("uploads.dir", def.UploadDir)
	v.SetDefault("webhook.url", "")
	v.SetDefault("auth.secret", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config: read %s", path)
		}
	}

	cfg := &Config{
		Port:           v.GetString("server.port"),
		AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		MaxMessageSize: v.GetInt64("server.max_message_size"),
		RateLimit: RateLimitConfig{
			Burst:          v.GetInt("server.rate_limit.burst"),
			RefillInterval: v.GetDuration("server.rate_limit.refill_interval"),
		},
		TokenSecret:  v.GetString("auth.secret"),
		TokenTTL:     v.GetDuration("auth.token_ttl"),
		DatabasePath: v.GetString("store.path"),
		UploadDir:    v.GetString("uploads.dir"),
		WebhookURL:   v.GetString("webhook.url"),
	}
	cfg.sanitize()

	if cfg.TokenSecret == "" {
		return nil, errors.New("config: auth.secret (ATLAS_AUTH_SECRET) is required")
	}
	return cfg, nil
}

func (c *Config) sanitize() {
	if c.Port == "" {
		c.Port = ":8080"
	}
	if !strings.HasPrefix(c.Port, ":") && !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 7 * 24 * time.Hour
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "atlas.db"
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads/users/photos"
	}
}
