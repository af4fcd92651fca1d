package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Profile    string        `env:"PROPFRONT_PROFILE, default=development" validate:"oneof=development staging production test"`
	APIBaseURL string        `env:"PROPFRONT_API_BASE_URL, default=http://localhost:8080" validate:"required,url"`
	APITimeout time.Duration `env:"PROPFRONT_API_TIMEOUT, default=15s" validate:"gt=0"`
	HTTPAddr   string        `env:"PROPFRONT_HTTP_ADDR, default=127.0.0.1:3000" validate:"required,hostname_port"`
	SignInPath string        `env:"PROPFRONT_SIGNIN_PATH, default=/signin" validate:"required,startswith=/"`
	LogLevel   string        `env:"PROPFRONT_LOG_LEVEL, default=info" validate:"oneof=debug info warn error"`
	LogFormat  string        `env:"PROPFRONT_LOG_FORMAT, default=json" validate:"oneof=json text"`

	SignInRateLimit  int           `env:"PROPFRONT_SIGNIN_RATE_LIMIT, default=10" validate:"gt=0"`
	SignInRateWindow time.Duration `env:"PROPFRONT_SIGNIN_RATE_WINDOW, default=1m" validate:"gt=0"`
	ShutdownTimeout  time.Duration `env:"PROPFRONT_SHUTDOWN_TIMEOUT, default=10s" validate:"gt=0"`

	Cache   CacheConfig
	Persist PersistConfig
	OTEL    OTELConfig
}

type CacheConfig struct {
	Backend       string `env:"PROPFRONT_CACHE_BACKEND, default=memory" validate:"oneof=memory redis none"`
	RedisAddr     string `env:"PROPFRONT_REDIS_ADDR, default=localhost:6379" validate:"required_if=Backend redis"`
	RedisPassword string `env:"PROPFRONT_REDIS_PASSWORD"`
	RedisDB       int    `env:"PROPFRONT_REDIS_DB, default=0" validate:"gte=0"`
	Prefix        string `env:"PROPFRONT_CACHE_PREFIX, default=propfront:query"`
}

type PersistConfig struct {
	Driver string `env:"PROPFRONT_PERSIST_DRIVER, default=file" validate:"oneof=file sqlite postgres"`
	// Path is the token file for the file driver and the database file for sqlite.
	Path string `env:"PROPFRONT_PERSIST_PATH"`
	DSN  string `env:"PROPFRONT_PERSIST_DSN" validate:"required_if=Driver postgres"`
}

type OTELConfig struct {
	MetricsEnabled        bool          `env:"PROPFRONT_OTEL_METRICS_ENABLED, default=false"`
	TracingEnabled        bool          `env:"PROPFRONT_OTEL_TRACING_ENABLED, default=false"`
	LogsEnabled           bool          `env:"PROPFRONT_OTEL_LOGS_ENABLED, default=false"`
	ExporterEndpoint      string        `env:"PROPFRONT_OTEL_EXPORTER_OTLP_ENDPOINT, default=localhost:4317"`
	ExporterInsecure      bool          `env:"PROPFRONT_OTEL_EXPORTER_OTLP_INSECURE, default=true"`
	ServiceName           string        `env:"PROPFRONT_OTEL_SERVICE_NAME, default=propfront"`
	Environment           string        `env:"PROPFRONT_OTEL_ENVIRONMENT, default=local"`
	MetricsExportInterval time.Duration `env:"PROPFRONT_OTEL_METRICS_EXPORT_INTERVAL, default=15s" validate:"gt=0"`
	HTTPInstrumentation   bool          `env:"PROPFRONT_OTEL_HTTP_ENABLED, default=false"`
}

// Load reads the configuration from the environment and validates it.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

// LoadFrom is Load with an explicit variable source; tests use
// envconfig.MapLookuper.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	return load(ctx, lookuper)
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		err = fmt.Errorf("parse config: %w", err)
		recordConfigValidationEvent(ctx, "", "failure", err)
		return nil, err
	}
	cfg.SignInPath = strings.TrimRight(cfg.SignInPath, "/")
	if cfg.SignInPath == "" {
		cfg.SignInPath = "/"
	}
	if err := cfg.Validate(); err != nil {
		recordConfigValidationEvent(ctx, cfg.Profile, "failure", err)
		return nil, err
	}
	recordConfigValidationEvent(ctx, cfg.Profile, "success", nil)
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return normalizeConfigProfile(c.Profile) == "production"
}
