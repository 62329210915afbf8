// Package config loads service configuration from a YAML file and
// environment variables. Environment variables use the ES_ prefix with
// a double underscore between sections and override file values, e.g.
// ES_DATABASE__URL overrides database.url and
// ES_DATABASE__MAX_OPEN_CONNS overrides database.max_open_conns.
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
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ES_"

// Config is the root service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database" validate:"required"`
	Log       LogConfig       `koanf:"log"`
	Scorer    ScorerConfig    `koanf:"scorer"`
	Matching  MatchingConfig  `koanf:"matching"`
	Digest    DigestConfig    `koanf:"digest"`
	Retention RetentionConfig `koanf:"retention"`
	SMTP      SMTPConfig      `koanf:"smtp"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required,nefield=Port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL configuration.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"min=1"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// ScorerConfig contains embedding scorer configuration. An empty URL
// disables semantic scoring and the lexical scorer carries all matching.
type ScorerConfig struct {
	URL     string        `koanf:"url" validate:"omitempty,url"`
	APIKey  string        `koanf:"api_key"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

// MatchingConfig contains matching pass configuration.
type MatchingConfig struct {
	Interval        time.Duration `koanf:"interval" validate:"min=1m"`
	FreshnessWindow time.Duration `koanf:"freshness_window" validate:"min=1m,gtefield=Interval"`
	MinScore        float64       `koanf:"min_score" validate:"min=0,max=1"`
}

// DigestConfig contains digest dispatcher configuration.
type DigestConfig struct {
	Interval      time.Duration `koanf:"interval" validate:"min=10s"`
	Concurrency   int           `koanf:"concurrency" validate:"min=1"`
	MailerTimeout time.Duration `koanf:"mailer_timeout" validate:"min=1s"`
}

// RetentionConfig contains queue retention configuration.
type RetentionConfig struct {
	Horizon  time.Duration `koanf:"horizon" validate:"min=24h"`
	Interval time.Duration `koanf:"interval" validate:"min=1m"`
}

// SMTPConfig contains outbound email configuration.
type SMTPConfig struct {
	Enabled        bool    `koanf:"enabled"`
	Host           string  `koanf:"host" validate:"required_if=Enabled true"`
	Port           int     `koanf:"port" validate:"min=0,max=65535"`
	User           string  `koanf:"user"`
	Password       string  `koanf:"password"`
	FromAddress    string  `koanf:"from_address" validate:"required_if=Enabled true"`
	SendsPerSecond float64 `koanf:"sends_per_second" validate:"min=0"`
}

// Default returns the configuration defaults. Load layers the file and
// environment on top of these.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Scorer: ScorerConfig{
			Model:   "voyage-3-lite",
			Timeout: 15 * time.Second,
		},
		Matching: MatchingConfig{
			Interval:        15 * time.Minute,
			FreshnessWindow: time.Hour,
			MinScore:        0.35,
		},
		Digest: DigestConfig{
			Interval:      time.Minute,
			Concurrency:   4,
			MailerTimeout: 30 * time.Second,
		},
		Retention: RetentionConfig{
			Horizon:  30 * 24 * time.Hour,
			Interval: 6 * time.Hour,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
	}
}

// Load reads configuration from path (optional, skipped when empty or
// missing) and the environment, validates it and returns the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
