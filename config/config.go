// Package config defines the smarttodo application configuration.
package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // ranking.timezone must resolve in minimal containers

	"gopkg.in/yaml.v3"
)

// Config is the top-level smarttodo configuration. It is loaded once at
// startup and passed by value to the components that need it.
type Config struct {
	Server   ServerConfig  `json:"server" yaml:"server"`
	Auth     AuthConfig    `json:"auth" yaml:"auth"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	AI       AIConfig      `json:"ai" yaml:"ai"`
	Cache    CacheConfig   `json:"cache" yaml:"cache"`
	Ranking  RankingConfig `json:"ranking" yaml:"ranking"`
	API      APIConfig     `json:"api" yaml:"api"`
	LogLevel string        `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr        string   `json:"addr" yaml:"addr"` // listen address, e.g., ":8080"
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins"`
}

// AuthConfig controls API authentication. When disabled every /api route
// is public.
type AuthConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	JWTSecret string        `json:"-" yaml:"jwt_secret"`
	AdminUser string        `json:"admin_user" yaml:"admin_user"`
	AdminPass string        `json:"-" yaml:"admin_pass"` // bcrypt hash
	TokenTTL  time.Duration `json:"token_ttl" yaml:"token_ttl"`
}

// StorageConfig selects the task store backend.
type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "sqlite" or "postgres"
	Path   string `json:"path" yaml:"path"`     // sqlite database file
	DSN    string `json:"-" yaml:"dsn"`         // postgres connection string
}

// AIConfig configures the suggestion gateway's completion provider.
type AIConfig struct {
	Provider     string        `json:"provider" yaml:"provider"` // "openai", "anthropic", "mock"
	APIKey       string        `json:"-" yaml:"api_key"`
	Model        string        `json:"model" yaml:"model"` // empty uses the provider default
	BaseURL      string        `json:"base_url,omitempty" yaml:"base_url"`
	Temperature  float64       `json:"temperature" yaml:"temperature"`
	MaxTokens    int           `json:"max_tokens" yaml:"max_tokens"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	SystemPrompt string        `json:"system_prompt" yaml:"system_prompt"`
}

// CacheConfig enables the Redis-backed suggestion cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr     string        `json:"redis_addr,omitempty" yaml:"redis_addr"`
	RedisPassword string        `json:"-" yaml:"redis_password"`
	RedisDB       int           `json:"redis_db" yaml:"redis_db"`
	TTL           time.Duration `json:"ttl" yaml:"ttl"`
}

// RankingConfig controls how "today" is computed for deadline scoring.
type RankingConfig struct {
	Timezone string `json:"timezone" yaml:"timezone"` // IANA name, e.g. "Europe/Berlin"
}

// APIConfig controls request decoding.
type APIConfig struct {
	// StrictFields rejects request bodies that carry unknown JSON fields.
	StrictFields bool `json:"strict_fields" yaml:"strict_fields"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Auth: AuthConfig{
			AdminUser: "admin",
			TokenTTL:  24 * time.Hour,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "./data/smarttodo.db",
		},
		AI: AIConfig{
			Provider:     "openai",
			Temperature:  0.7,
			MaxTokens:    500,
			Timeout:      60 * time.Second,
			SystemPrompt: "You are a smart task management assistant.",
		},
		Cache: CacheConfig{
			TTL: time.Hour,
		},
		Ranking: RankingConfig{
			Timezone: "UTC",
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config file over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays secrets and endpoints from the environment.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("SMARTTODO_AI_API_KEY"); v != "" {
		c.AI.APIKey = v
	} else if c.AI.APIKey == "" {
		switch c.AI.Provider {
		case "openai":
			c.AI.APIKey = getenv("OPENAI_API_KEY")
		case "anthropic":
			c.AI.APIKey = getenv("ANTHROPIC_API_KEY")
		}
	}
	if v := getenv("SMARTTODO_STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := getenv("SMARTTODO_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := getenv("SMARTTODO_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("config: storage.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.AI.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("config: unknown ai.provider %q", c.AI.Provider)
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("config: ai.max_tokens must be positive")
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Auth.Enabled && c.Auth.AdminPass == "" {
		return fmt.Errorf("config: auth.admin_pass is required when auth is enabled")
	}
	return nil
}

// Location resolves Ranking.Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Ranking.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Ranking.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: ranking.timezone: %w", err)
	}
	return loc, nil
}
