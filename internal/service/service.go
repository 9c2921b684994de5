// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take a repository.Store (an interface), never a concrete
// database type. Every mutation runs inside Store.InTx so a failure half
// way through leaves nothing behind. Reads that decide whether a mutation
// is allowed (permission checks, the email-domain lookup) happen before
// the transaction is opened; everything inside the transaction goes
// through the transactional Store handed to the callback.
//
// Callers are identified by their user id, which the auth middleware put
// on the request context. Services load the matching Person themselves so
// a handler can never pass a stale or forged profile.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/model"
	"github.com/mundorum/harena/internal/repository"
)

var tracer = otel.Tracer("github.com/mundorum/harena/internal/service")

// Clock returns the current time. Token expiry is always judged through
// a Clock so tests can move time without sleeping.
type Clock func() time.Time

// EventRecorder receives business events for metrics. Outcomes are short
// fixed strings ("success", "expired", "not_found", ...).
type EventRecorder interface {
	SignIn(outcome string)
	TokenRedemption(kind, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) SignIn(string)                  {}
func (noopRecorder) TokenRedemption(string, string) {}

// Option customizes a service at construction time.
type Option func(*options)

type options struct {
	now    Clock
	events EventRecorder
	logger *slog.Logger
}

// WithClock replaces time.Now.
func WithClock(now Clock) Option {
	return func(o *options) { o.now = now }
}

// WithEvents sends business events to r.
func WithEvents(r EventRecorder) Option {
	return func(o *options) { o.events = r }
}

// WithLogger sets the logger. Services default to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		events: noopRecorder{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Outcome labels shared by the event recorder and the logs.
const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeNotFound = "not_found"
	outcomeExpired  = "expired"
	outcomeError    = "error"
)

// loadActor resolves the caller. An empty id means the request was not
// authenticated; a user without a profile cannot act on anything.
func loadActor(ctx context.Context, users repository.UserRepository, userID string) (*model.User, *model.Person, error) {
	if userID == "" {
		return nil, nil, apperror.Unauthorized("authentication required")
	}

	user, err := users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil, apperror.Unauthorized("authentication required")
		}
		return nil, nil, fmt.Errorf("service: loading user %s: %w", userID, err)
	}

	person, err := users.GetPerson(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil, apperror.Forbidden("user has no profile")
		}
		return nil, nil, fmt.Errorf("service: loading person %s: %w", userID, err)
	}
	return user, person, nil
}
