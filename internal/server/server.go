// Package server sets up the HTTP servers, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects services, handlers,
// middleware and routes. It decides:
//   - Which URL patterns map to which handler functions
//   - What middleware runs on which routes
//   - How the servers start and stop gracefully
//
// Two listeners are started:
//   - the API server (Config.Server.Port): /auth, /user, /api
//   - the ops server (Config.Server.OpsPort): /healthz, /readyz, /metrics
//
// Keeping /metrics off the public port means it never needs auth.
//
// DEPENDENCY INJECTION FLOW:
// main.go opens the infrastructure (database, Redis, S3, Google verifier)
// and passes it in Dependencies. New builds everything above it:
//
//	Store → Evaluator, DomainCache, Authenticator
//	      → Identity/Invite/Quest/Case services
//	      → handlers → routes
//
// This is the "composition root" pattern: all dependencies are wired in
// one place instead of being scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mundorum/harena/internal/access"
	"github.com/mundorum/harena/internal/auth"
	"github.com/mundorum/harena/internal/blob"
	"github.com/mundorum/harena/internal/cache"
	"github.com/mundorum/harena/internal/config"
	"github.com/mundorum/harena/internal/handler"
	"github.com/mundorum/harena/internal/middleware"
	"github.com/mundorum/harena/internal/observability"
	"github.com/mundorum/harena/internal/repository"
	"github.com/mundorum/harena/internal/service"
)

// Dependencies is the infrastructure main.go opens. Optional parts may be
// nil and switch their feature off.
type Dependencies struct {
	Store    repository.Store
	Verifier service.IdentityVerifier

	Google  handler.CodeExchanger // nil: no redirect flow
	Blobs   *blob.S3Store         // nil: image uploads refused
	Redis   *redis.Client         // nil: no rate limiting
	Metrics *observability.Metrics
}

// Server represents the API and ops servers and all their dependencies.
type Server struct {
	router *chi.Mux
	ops    *chi.Mux
	config config.Config
	logger *slog.Logger
}

// New wires services, handlers and routes.
//
// Each layer only receives what it needs:
//   - services get the repository.Store interface, not *sqldb.DB
//   - handlers get small interfaces the services satisfy
func New(cfg config.Config, deps Dependencies, logger *slog.Logger) (*Server, error) {
	if deps.Store == nil || deps.Verifier == nil {
		return nil, errors.New("server: store and verifier are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetrics()
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.CredentialLifetime)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		ops:    chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	s.setupRoutes(deps, tokens)
	return s, nil
}

// Handler returns the API router. Tests drive it with httptest.
func (s *Server) Handler() http.Handler { return s.router }

// OpsHandler returns the ops router.
func (s *Server) OpsHandler() http.Handler { return s.ops }

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	POST   /auth/google                              → sign in with a Google ID token
//	GET    /auth/google/login                        → redirect to Google
//	GET    /auth/google/callback                     → finish the redirect flow
//	POST   /auth/logout                              → sign out            [auth]
//	GET    /user                                     → current user        [auth]
//	GET    /api/quests                               → visible quests      [auth]
//	POST   /api/quests                               → create quest        [auth]
//	GET    /api/quests/{questID}                     → quest + permissions [auth]
//	POST   /api/quests/{questID}/authors             → add author          [auth]
//	GET    /api/quests/{questID}/cases               → list cases          [auth]
//	POST   /api/quests/{questID}/cases               → add case            [auth]
//	DELETE /api/quests/{questID}/cases/{caseID}      → remove case         [auth]
//	POST   /api/quests/{questID}/viewer-tokens       → issue viewer token  [auth]
//	GET    /api/quests/{questID}/viewer-tokens       → list viewer tokens  [auth]
//	POST   /api/use-quest-token                      → redeem viewer token [auth]
//	POST   /api/use-professor-token                  → redeem prof. token  [auth]
//	GET    /api/cases, POST /api/cases               → own cases           [auth]
//	GET    /api/cases/{caseID}                       → one case            [auth]
//	PUT    /api/cases/{caseID}/image                 → upload image        [auth]
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added:
//  1. RequestID: assigns a unique id to each request
//  2. RealIP: extracts the client IP from proxy headers (the rate limiter keys on it)
//  3. Recoverer: turns panics into 500s
//  4. StripSlashes: "/user/" and "/user" are the same route
//  5. otelhttp: starts the server span and extracts incoming trace context
//  6. Logger and Metrics: one log line and one observation per request
//  7. OptionalAuth: attaches the user id when a valid credential is sent
//  8. RateLimiter: per user, or per address for anonymous callers
func (s *Server) setupRoutes(deps Dependencies, tokens *auth.TokenService) {
	store := deps.Store
	metrics := deps.Metrics

	// === Shared building blocks ===
	evaluator := access.NewEvaluator(store)
	domains := cache.NewDomainCache(store, s.config.Auth.DomainCacheSize, s.config.Auth.DomainCacheTTL)
	authn := auth.NewAuthenticator(tokens, store)

	// A nil *S3Store inside the interface would not compare equal to nil.
	var blobs service.BlobStore
	if deps.Blobs != nil {
		blobs = deps.Blobs
	}

	// === Services ===
	opts := []service.Option{service.WithEvents(metrics), service.WithLogger(s.logger)}
	identity := service.NewIdentityService(store, deps.Verifier, domains, authn, opts...)
	invites := service.NewInviteService(store, evaluator, opts...)
	quests := service.NewQuestService(store, evaluator, opts...)
	cases := service.NewCaseService(store, blobs, opts...)

	// === Handlers ===
	authHandler := handler.NewAuthHandler(identity, deps.Google, handler.CookieOptions{
		MaxAge: tokens.Lifetime(),
		Secure: s.config.Server.SecureCookies,
	}, s.logger)
	questHandler := handler.NewQuestHandler(quests, invites, s.logger)
	tokenHandler := handler.NewTokenHandler(invites, s.logger)
	caseHandler := handler.NewCaseHandler(cases, s.logger)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.StripSlashes)
	s.router.Use(otelhttp.NewMiddleware("harena"))
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(metrics))
	s.router.Use(auth.OptionalAuth(authn))
	if deps.Redis != nil {
		limiter := middleware.NewRateLimiter(deps.Redis, s.config.Redis.RateLimit, s.config.Redis.Window, s.logger).
			OnDeny(metrics.RateLimited)
		s.router.Use(limiter.Handler)
	}

	// === Sign-in (public) ===
	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/google", authHandler.HandleGoogleSignIn)
		r.Get("/google/login", authHandler.HandleGoogleLogin)
		r.Get("/google/callback", authHandler.HandleGoogleCallback)
		r.With(auth.RequireAuth(authn)).Post("/logout", authHandler.HandleLogout)
	})

	// === Everything else requires a credential ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(authn))

		r.Get("/user", authHandler.HandleMe)

		r.Route("/api", func(r chi.Router) {
			r.Route("/quests", func(r chi.Router) {
				r.Get("/", questHandler.HandleList)
				r.Post("/", questHandler.HandleCreate)
				r.Route("/{questID}", func(r chi.Router) {
					r.Get("/", questHandler.HandleGet)
					r.Post("/authors", questHandler.HandleAddAuthor)
					r.Get("/cases", questHandler.HandleListCases)
					r.Post("/cases", questHandler.HandleAddCase)
					r.Delete("/cases/{caseID}", questHandler.HandleRemoveCase)
					r.Post("/viewer-tokens", questHandler.HandleIssueViewerToken)
					r.Get("/viewer-tokens", questHandler.HandleListViewerTokens)
				})
			})

			r.Post("/use-quest-token", tokenHandler.HandleUseQuestToken)
			r.Post("/use-professor-token", tokenHandler.HandleUseProfessorToken)

			r.Route("/cases", func(r chi.Router) {
				r.Get("/", caseHandler.HandleList)
				r.Post("/", caseHandler.HandleCreate)
				r.Get("/{caseID}", caseHandler.HandleGet)
				r.Put("/{caseID}/image", caseHandler.HandleUploadImage)
			})
		})
	})

	// === Ops ===
	health := handler.NewHealthHandler(s.logger).Add("database", store.Ping)
	if deps.Redis != nil {
		health.Add("redis", func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() })
	}
	if deps.Blobs != nil {
		health.Add("blob", deps.Blobs.Ping)
	}
	s.ops.Get("/healthz", health.HandleLive)
	s.ops.Get("/readyz", health.HandleReady)
	s.ops.Handle("/metrics", metrics.Handler())
}

// Start runs the API and ops servers until ctx is cancelled or the process
// receives SIGINT/SIGTERM, then shuts both down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait for in-flight requests (Config.Server.ShutdownTimeout)
//  3. Return; main.go then closes the database and flushes traces
//
// errgroup ties the listeners together: if one fails to start, the group
// context is cancelled and the other is shut down too.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	servers := []*http.Server{{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second, // image uploads
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
	if s.config.Server.OpsPort > 0 {
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%d", s.config.Server.OpsPort),
			Handler:           s.ops,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			s.logger.Info("server starting", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("graceful shutdown of %s failed: %w", srv.Addr, err))
			}
		}
		if len(errs) == 0 {
			s.logger.Info("servers stopped gracefully")
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
