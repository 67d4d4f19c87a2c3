package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"droneDispatchService/internal/safety"
)

// EnvPrefix marks environment overrides: DRONE_RULES__MAX_RANGE_KM sets rules.max_range_km.
const EnvPrefix = "DRONE_"

// DevJWTSecret is only used by LoadWithDefaults.
const DevJWTSecret = "dev-secret-change-me"

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	GRPC      GRPCConfig      `koanf:"grpc"`
	Auth      AuthConfig      `koanf:"auth"`
	Rules     safety.Rules    `koanf:"rules"`
	Weather   WeatherConfig   `koanf:"weather"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Events    EventsConfig    `koanf:"events"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Logging   LoggingConfig   `koanf:"logging"`
	Seed      SeedConfig      `koanf:"seed"`
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string `koanf:"path"` // SQLite database file path
}

// GRPCConfig contains gRPC server settings.
type GRPCConfig struct {
	Address string `koanf:"address"` // gRPC server listen address (e.g., ":50051")
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"` // JWT signing secret
}

// WeatherConfig points at the upstream weather service.
type WeatherConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type SchedulerConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

// EventsConfig selects where domain events go. With no URL and no embedded
// broker, events are dropped.
type EventsConfig struct {
	NATSURL       string `koanf:"nats_url"`
	Embedded      bool   `koanf:"embedded"`
	EmbeddedPort  int    `koanf:"embedded_port"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// MetricsConfig exposes Prometheus metrics when Address is set.
type MetricsConfig struct {
	Address string `koanf:"address"`
}

type LoggingConfig struct {
	Level string `koanf:"level"`
}

// SeedConfig controls loading the starting fleet into an empty database.
type SeedConfig struct {
	Enabled bool   `koanf:"enabled"`
	File    string `koanf:"file"` // empty uses the built-in fleet
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Database:  DatabaseConfig{Path: "dispatch.db"},
		GRPC:      GRPCConfig{Address: ":50051"},
		Rules:     safety.DefaultRules(),
		Weather:   WeatherConfig{BaseURL: "http://localhost:8090", Timeout: 5 * time.Second},
		Scheduler: SchedulerConfig{Enabled: true, Interval: 30 * time.Second},
		Events:    EventsConfig{EmbeddedPort: -1, SubjectPrefix: "fleet"},
		Logging:   LoggingConfig{Level: "info"},
		Seed:      SeedConfig{Enabled: true},
	}
}

// Load reads .env, then the optional YAML file at path, then DRONE_ environment
// overrides, on top of Default. A JWT secret is required.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is not set (DRONE_AUTH__JWT_SECRET or JWT_SECRET); required for production")
	}
	return cfg, nil
}

// LoadWithDefaults is like Load but uses a safe default for the JWT secret in development.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = DevJWTSecret
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if path != "" {
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyLegacyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyLegacyEnv honors the unprefixed variables older deployments set.
func applyLegacyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("DB_PATH"); ok && os.Getenv(EnvPrefix+"DATABASE__PATH") == "" {
		cfg.Database.Path = v
	}
	if v, ok := os.LookupEnv("GRPC_ADDRESS"); ok && os.Getenv(EnvPrefix+"GRPC__ADDRESS") == "" {
		cfg.GRPC.Address = v
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if err := c.Rules.Validate(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	if c.Weather.BaseURL == "" {
		return errors.New("weather.base_url must be set")
	}
	if c.Weather.Timeout <= 0 {
		return fmt.Errorf("weather.timeout must be positive, got %s", c.Weather.Timeout)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive, got %s", c.Scheduler.Interval)
	}
	if c.GRPC.Address == "" {
		return errors.New("grpc.address must be set")
	}
	return nil
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{DB: %s, gRPC: %s, weather: %s, scheduler: %v/%s, nats: %q, metrics: %q, Auth: *** (masked) ***}",
		c.Database.Path, c.GRPC.Address, c.Weather.BaseURL, c.Scheduler.Enabled, c.Scheduler.Interval, c.Events.NATSURL, c.Metrics.Address)
}
