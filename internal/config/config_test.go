package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Auth.JWTSecret = "0123456789abcdef0123"
	cfg.Auth.GoogleClientID = "client.apps.googleusercontent.com"
	return cfg
}

// clearEnv blanks the variables a developer machine might export.
func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "DB_PATH", "JWT_SECRET", "HARENA_CONFIG", "HARENA_PORT",
		"HARENA_REDIS_ADDR", "HARENA_LOG_LEVEL", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.False(t, cfg.BlobEnabled())
	assert.False(t, cfg.CodeFlowEnabled())
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "harena.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8000
  shutdown_timeout: 10s
database:
  driver: postgres
  dsn: postgres://harena@db/harena
auth:
  jwt_secret: from-the-file-secret
redis:
  addr: redis:6379
  window: 30s
blob:
  bucket: harena-images
log_level: debug
`), 0o600))

	t.Setenv("HARENA_CONFIG", path)
	t.Setenv("PORT", "8100")
	t.Setenv("HARENA_RATE_LIMIT", "10")
	t.Setenv("JWT_SECRET", "from-the-environment")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8100, cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://harena@db/harena", cfg.Database.DSN)
	assert.Equal(t, "from-the-environment", cfg.Auth.JWTSecret)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 10, cfg.Redis.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.Redis.Window)
	assert.Equal(t, 9090, cfg.Server.OpsPort, "unset keys keep their defaults")
	assert.True(t, cfg.BlobEnabled())
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv_ReportsBadValues(t *testing.T) {
	env := map[string]string{
		"PORT":               "eighty",
		"HARENA_RATE_WINDOW": "soon",
		"DB_PATH":            "/var/lib/harena.db",
	}
	cfg := Defaults()

	err := applyEnv(&cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "HARENA_RATE_WINDOW")
	assert.Equal(t, "/var/lib/harena.db", cfg.Database.DSN, "good values are still applied")
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }},
		{"no client id", func(c *Config) { c.Auth.GoogleClientID = "" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"ports collide", func(c *Config) { c.Server.OpsPort = c.Server.Port }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }},
		{"zero rate limit with redis", func(c *Config) { c.Redis.Addr = "localhost:6379"; c.Redis.RateLimit = 0 }},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
