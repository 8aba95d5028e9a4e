// Package config loads the connector configuration from defaults, an
// optional YAML file and HSEC_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar names an explicit config file.
const PathEnvVar = "HSEC_CONFIG"

const envPrefix = "HSEC_"

// DefaultPaths are searched when PathEnvVar is unset.
var DefaultPaths = []string{"hsevents.yaml", "/etc/hsevents/hsevents.yaml"}

// Config is the process configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	State     StateConfig     `koanf:"state"`
	HubSpot   HubSpotConfig   `koanf:"hubspot"`
	Images    ImagesConfig    `koanf:"images"`
	Logging   LoggingConfig   `koanf:"logging"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Addr      string `koanf:"addr" validate:"required"`
	AuthToken string `koanf:"auth_token" validate:"required"`
	// NonceSecret keys request nonces. Empty uses AuthToken.
	NonceSecret     string        `koanf:"nonce_secret"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// RateLimit is admin API requests per minute per client.
	RateLimit int `koanf:"rate_limit" validate:"gte=0"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// StateConfig locates the badger state directory. Empty keeps state in
// memory.
type StateConfig struct {
	Dir string `koanf:"dir"`
}

// HubSpotConfig configures the upstream client.
type HubSpotConfig struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`
	// Token is used when no token has been saved in settings.
	Token           string        `koanf:"token"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	PageDelay       time.Duration `koanf:"page_delay" validate:"gte=0"`
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gt=0"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// ImagesConfig configures image downloads.
type ImagesConfig struct {
	Dir      string        `koanf:"dir" validate:"required"`
	Timeout  time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxBytes int64         `koanf:"max_bytes" validate:"gt=0"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SchedulerConfig toggles the interval scheduler.
type SchedulerConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       120,
		},
		Database: DatabaseConfig{Path: "hsevents.db"},
		State:    StateConfig{Dir: "hsevents-state"},
		HubSpot: HubSpotConfig{
			BaseURL:         "https://api.hubapi.com",
			Timeout:         30 * time.Second,
			PageDelay:       100 * time.Millisecond,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Images: ImagesConfig{
			Dir:      "uploads",
			Timeout:  30 * time.Second,
			MaxBytes: 10 << 20,
		},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		Scheduler: SchedulerConfig{Enabled: true},
	}
}

// Load reads the configuration from the file named by HSEC_CONFIG, or the
// first of DefaultPaths that exists.
func Load() (*Config, error) {
	return LoadFile(findFile())
}

// LoadFile reads the configuration with path as the YAML layer. An empty
// path skips the file.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps HSEC_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, field, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + field
}

func findFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// NonceKey returns the secret used to sign request nonces.
func (c *Config) NonceKey() []byte {
	if c.Server.NonceSecret != "" {
		return []byte(c.Server.NonceSecret)
	}
	return []byte(c.Server.AuthToken)
}
