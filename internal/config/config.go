// Package config loads the harena configuration.
//
// LOADING ORDER (later steps win):
//  1. Defaults(): enough to run locally against data/harena.db
//  2. An optional YAML file (HARENA_CONFIG=/etc/harena.yaml)
//  3. Environment variables (HARENA_*, plus PORT, DB_PATH, JWT_SECRET)
//
// Load does not validate. The server calls Validate(); harenactl only
// needs the database section and skips it.
//
// The binaries call godotenv.Load() before Load, so a .env file in the
// working directory feeds step 3 during development.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Redis     RedisConfig     `yaml:"redis"`
	Blob      BlobConfig      `yaml:"blob"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	LogLevel  string          `yaml:"log_level"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	OpsPort         int           `yaml:"ops_port"` // /healthz, /readyz, /metrics
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SecureCookies   bool          `yaml:"secure_cookies"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`    // file path for sqlite, URL for postgres
}

type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	CredentialLifetime time.Duration `yaml:"credential_lifetime"`
	GoogleClientID     string        `yaml:"google_client_id"`
	GoogleClientSecret string        `yaml:"google_client_secret"`
	GoogleCallbackURL  string        `yaml:"google_callback_url"`
	DomainCacheSize    int           `yaml:"domain_cache_size"`
	DomainCacheTTL     time.Duration `yaml:"domain_cache_ttl"`
}

// RedisConfig configures the rate limiter. An empty Addr disables it.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	RateLimit int           `yaml:"rate_limit"`
	Window    time.Duration `yaml:"window"`
}

// BlobConfig configures case image storage. An empty Bucket disables
// uploads.
type BlobConfig struct {
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	UsePathStyle  bool   `yaml:"use_path_style"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type TelemetryConfig struct {
	TracingEnabled bool    `yaml:"tracing_enabled"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	OTLPInsecure   bool    `yaml:"otlp_insecure"`
	ServiceName    string  `yaml:"service_name"`
	SampleRatio    float64 `yaml:"sample_ratio"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			OpsPort:         9090,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "data/harena.db",
		},
		Auth: AuthConfig{
			CredentialLifetime: 30 * 24 * time.Hour,
			DomainCacheSize:    256,
			DomainCacheTTL:     5 * time.Minute,
		},
		Redis: RedisConfig{
			RateLimit: 120,
			Window:    time.Minute,
		},
		Blob: BlobConfig{
			Region: "us-east-1",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "harena",
			SampleRatio: 1.0,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration. path may be empty, in which case
// HARENA_CONFIG is consulted; a missing file is only an error when a path
// was given explicitly.
func Load(path string) (Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("HARENA_CONFIG")
		explicit = path != ""
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first problem that would stop the server.
func (c Config) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	case c.Server.OpsPort < 0 || c.Server.OpsPort > 65535:
		return fmt.Errorf("config: invalid ops port %d", c.Server.OpsPort)
	case c.Server.OpsPort == c.Server.Port:
		return errors.New("config: ops port must differ from server port")
	case c.Database.Driver != "sqlite" && c.Database.Driver != "postgres":
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	case c.Database.DSN == "":
		return errors.New("config: database dsn is required")
	case len(c.Auth.JWTSecret) < 16:
		return errors.New("config: JWT_SECRET must be at least 16 characters")
	case c.Auth.GoogleClientID == "":
		return errors.New("config: HARENA_GOOGLE_CLIENT_ID is required")
	case c.Redis.Addr != "" && (c.Redis.RateLimit <= 0 || c.Redis.Window <= 0):
		return errors.New("config: rate limit and window must be positive")
	case c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1:
		return fmt.Errorf("config: sample ratio %v outside [0, 1]", c.Telemetry.SampleRatio)
	}
	return nil
}

// BlobEnabled reports whether image uploads are configured.
func (c Config) BlobEnabled() bool { return c.Blob.Bucket != "" }

// CodeFlowEnabled reports whether the Google redirect flow can run.
func (c Config) CodeFlowEnabled() bool { return c.Auth.GoogleClientSecret != "" }

// Level maps LogLevel to a slog level; unknown names mean info.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// lookupFunc matches os.LookupEnv; tests pass a map-backed one.
type lookupFunc func(key string) (string, bool)

// applyEnv copies environment overrides into cfg. PORT, DB_PATH and
// JWT_SECRET are kept for compatibility with existing deployments.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error

	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
			}
		}
	}
	integer := func(dst *int, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				n, err := strconv.Atoi(v) // Atoi = ASCII to Integer
				if err != nil {
					errs = append(errs, fmt.Errorf("config: %s: %w", k, err))
					continue
				}
				*dst = n
			}
		}
	}
	boolean := func(dst *bool, key string) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(dst *time.Duration, key string) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	float := func(dst *float64, key string) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = f
		}
	}

	integer(&cfg.Server.Port, "PORT", "HARENA_PORT")
	integer(&cfg.Server.OpsPort, "HARENA_OPS_PORT")
	duration(&cfg.Server.ShutdownTimeout, "HARENA_SHUTDOWN_TIMEOUT")
	boolean(&cfg.Server.SecureCookies, "HARENA_SECURE_COOKIES")

	str(&cfg.Database.Driver, "HARENA_DB_DRIVER")
	str(&cfg.Database.DSN, "DB_PATH", "HARENA_DB_DSN")

	str(&cfg.Auth.JWTSecret, "JWT_SECRET", "HARENA_JWT_SECRET")
	duration(&cfg.Auth.CredentialLifetime, "HARENA_CREDENTIAL_LIFETIME")
	str(&cfg.Auth.GoogleClientID, "HARENA_GOOGLE_CLIENT_ID")
	str(&cfg.Auth.GoogleClientSecret, "HARENA_GOOGLE_CLIENT_SECRET")
	str(&cfg.Auth.GoogleCallbackURL, "HARENA_GOOGLE_CALLBACK_URL")
	integer(&cfg.Auth.DomainCacheSize, "HARENA_DOMAIN_CACHE_SIZE")
	duration(&cfg.Auth.DomainCacheTTL, "HARENA_DOMAIN_CACHE_TTL")

	str(&cfg.Redis.Addr, "HARENA_REDIS_ADDR")
	str(&cfg.Redis.Password, "HARENA_REDIS_PASSWORD")
	integer(&cfg.Redis.DB, "HARENA_REDIS_DB")
	integer(&cfg.Redis.RateLimit, "HARENA_RATE_LIMIT")
	duration(&cfg.Redis.Window, "HARENA_RATE_WINDOW")

	str(&cfg.Blob.Bucket, "HARENA_S3_BUCKET")
	str(&cfg.Blob.Region, "HARENA_S3_REGION")
	str(&cfg.Blob.Endpoint, "HARENA_S3_ENDPOINT")
	str(&cfg.Blob.AccessKey, "HARENA_S3_ACCESS_KEY")
	str(&cfg.Blob.SecretKey, "HARENA_S3_SECRET_KEY")
	boolean(&cfg.Blob.UsePathStyle, "HARENA_S3_PATH_STYLE")
	str(&cfg.Blob.PublicBaseURL, "HARENA_S3_PUBLIC_URL")

	boolean(&cfg.Telemetry.TracingEnabled, "HARENA_TRACING")
	str(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT", "HARENA_OTLP_ENDPOINT")
	boolean(&cfg.Telemetry.OTLPInsecure, "HARENA_OTLP_INSECURE")
	str(&cfg.Telemetry.ServiceName, "HARENA_SERVICE_NAME")
	float(&cfg.Telemetry.SampleRatio, "HARENA_TRACE_SAMPLE_RATIO")

	str(&cfg.LogLevel, "HARENA_LOG_LEVEL")
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	return errors.Join(errs...)
}
