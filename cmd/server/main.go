// Package main is the entry point for the harena API server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main"
// package. Its job here is to:
//  1. Read configuration (.env, YAML file, environment)
//  2. Open the infrastructure (database, Redis, S3, tracing)
//  3. Hand it to internal/server and start serving
//
// All actual logic lives in imported packages (internal/server,
// internal/service, ...). cmd/harenactl is the second executable, used by
// operators to manage institutions and professor invites.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/mundorum/harena/internal/auth"
	"github.com/mundorum/harena/internal/blob"
	"github.com/mundorum/harena/internal/config"
	"github.com/mundorum/harena/internal/observability"
	"github.com/mundorum/harena/internal/repository/sqldb"
	"github.com/mundorum/harena/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// === 1. CONFIGURATION ===
	// A missing .env is normal outside development, so the error is ignored.
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// === 2. LOGGING ===
	// slog.NewTextHandler outputs human-readable key=value logs.
	// Log levels (from least to most severe): Debug → Info → Warn → Error
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))
	slog.SetDefault(logger)

	// === 3. TRACING ===
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Telemetry.TracingEnabled,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.OTLPInsecure,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("flushing traces failed", slog.String("error", err.Error()))
		}
	}()

	// === 4. DATABASE ===
	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	// Closed after the servers stop, so in-flight requests can finish.
	defer db.Close()

	deps := server.Dependencies{
		Store:    db,
		Verifier: auth.NewGoogleVerifier(ctx, cfg.Auth.GoogleClientID),
		Metrics:  observability.NewMetrics(),
	}

	// === 5. OPTIONAL INFRASTRUCTURE ===
	if cfg.CodeFlowEnabled() {
		callback := cfg.Auth.GoogleCallbackURL
		if callback == "" {
			callback = fmt.Sprintf("http://localhost:%d/auth/google/callback", cfg.Server.Port)
		}
		deps.Google = auth.NewGoogleProvider(cfg.Auth.GoogleClientID, cfg.Auth.GoogleClientSecret, callback)
	} else {
		logger.Warn("HARENA_GOOGLE_CLIENT_SECRET not set: /auth/google/login is disabled")
	}

	if cfg.Redis.Addr != "" {
		deps.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer deps.Redis.Close()
	} else {
		logger.Warn("HARENA_REDIS_ADDR not set: rate limiting is disabled")
	}

	if cfg.BlobEnabled() {
		store, err := blob.NewS3Store(ctx, blob.Config{
			Bucket:        cfg.Blob.Bucket,
			Region:        cfg.Blob.Region,
			Endpoint:      cfg.Blob.Endpoint,
			AccessKey:     cfg.Blob.AccessKey,
			SecretKey:     cfg.Blob.SecretKey,
			UsePathStyle:  cfg.Blob.UsePathStyle,
			PublicBaseURL: cfg.Blob.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("configuring image storage: %w", err)
		}
		deps.Blobs = store
	} else {
		logger.Warn("HARENA_S3_BUCKET not set: case image uploads are disabled")
	}

	// === 6. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	logger.Info("harena starting",
		slog.Int("port", cfg.Server.Port),
		slog.Int("opsPort", cfg.Server.OpsPort),
		slog.String("database", cfg.Database.Driver),
	)

	// Start() blocks until the servers are shut down (Ctrl+C or SIGTERM).
	return srv.Start(ctx)
}

// openDatabase opens the configured store. For SQLite files the parent
// directory is created first (like `mkdir -p`).
func openDatabase(cfg config.DatabaseConfig) (*sqldb.DB, error) {
	dialect := sqldb.Dialect(cfg.Driver)
	if dialect == sqldb.DialectSQLite && cfg.DSN != ":memory:" {
		dir := filepath.Dir(cfg.DSN)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqldb.Open(dialect, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}
