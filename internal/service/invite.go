package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mundorum/harena/internal/access"
	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/model"
	"github.com/mundorum/harena/internal/repository"
)

// errTokenExpired is returned by the token lookups below. Callers turn it
// into the user-facing error of their own surface.
var errTokenExpired = errors.New("token expired")

// Token kinds as reported to the event recorder.
const (
	kindProfessor = "professor"
	kindViewer    = "viewer"
)

// InviteService issues and redeems the two kinds of invite token.
//
// Tokens expire lazily: nothing ever deletes them, a token simply stops
// being accepted once the clock passes ExpiresAt.
type InviteService struct {
	store  repository.Store
	access *access.Evaluator
	now    Clock
	events EventRecorder
	logger *slog.Logger
}

func NewInviteService(store repository.Store, evaluator *access.Evaluator, opts ...Option) *InviteService {
	o := buildOptions(opts)
	return &InviteService{
		store:  store,
		access: evaluator,
		now:    o.now,
		events: o.events,
		logger: o.logger,
	}
}

// ProfessorTokenStatus is a stored token plus its validity right now.
type ProfessorTokenStatus struct {
	model.ProfessorInviteToken
	Valid bool `json:"valid"`
}

// ViewerTokenStatus is a stored token plus its validity right now.
type ViewerTokenStatus struct {
	model.QuestViewerInviteToken
	Valid bool `json:"valid"`
}

// ProfessorRedemption describes a successful professor token redemption.
type ProfessorRedemption struct {
	Username    string             `json:"username"`
	Institution *model.Institution `json:"institution"`
}

// ViewerRedemption describes a successful viewer token redemption.
type ViewerRedemption struct {
	Username string       `json:"username"`
	Quest    *model.Quest `json:"quest"`
}

// IssueProfessorToken creates a token that turns whoever redeems it into a
// professor of institutionID. lifetime <= 0 means the default of 7 days.
func (s *InviteService) IssueProfessorToken(ctx context.Context, institutionID string, lifetime time.Duration) (*model.ProfessorInviteToken, error) {
	if lifetime <= 0 {
		lifetime = model.ProfessorTokenLifetime
	}
	if _, err := s.store.GetInstitution(ctx, institutionID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	token := &model.ProfessorInviteToken{
		Token:         uuid.NewString(),
		InstitutionID: institutionID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(lifetime),
	}
	if err := s.store.CreateProfessorToken(ctx, token); err != nil {
		return nil, fmt.Errorf("service/invite: creating professor token: %w", err)
	}

	s.logger.Info("professor token issued",
		slog.String("institutionID", institutionID),
		slog.Time("expiresAt", token.ExpiresAt),
	)
	return token, nil
}

// IssueViewerToken creates a token granting view access to questID. Only
// someone who can edit the quest may hand out access to it.
func (s *InviteService) IssueViewerToken(ctx context.Context, actorID, questID string, lifetime time.Duration) (*model.QuestViewerInviteToken, error) {
	if lifetime <= 0 {
		lifetime = model.ViewerTokenLifetime
	}
	_, person, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	quest, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireEdit(ctx, person, quest); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	token := &model.QuestViewerInviteToken{
		Token:     uuid.NewString(),
		QuestID:   questID,
		CreatedAt: now,
		ExpiresAt: now.Add(lifetime),
	}
	if err := s.store.CreateViewerToken(ctx, token); err != nil {
		return nil, fmt.Errorf("service/invite: creating viewer token: %w", err)
	}

	s.logger.Info("viewer token issued",
		slog.String("questID", questID),
		slog.String("issuedBy", actorID),
	)
	return token, nil
}

// RedeemProfessorToken makes the signed-in user a professor of the
// token's institution. Redeeming the same token twice changes nothing.
func (s *InviteService) RedeemProfessorToken(ctx context.Context, userID, value string) (*ProfessorRedemption, error) {
	ctx, span := tracer.Start(ctx, "InviteService.RedeemProfessorToken")
	defer span.End()

	value = strings.TrimSpace(value)
	if value == "" {
		s.events.TokenRedemption(kindProfessor, outcomeRejected)
		return nil, apperror.ValidationFailed("token", "token not sent")
	}
	user, person, err := loadActor(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}

	var token *model.ProfessorInviteToken
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		token, err = lookupProfessorToken(ctx, tx, value, s.now())
		if err != nil {
			return err
		}
		return applyProfessorToken(ctx, tx, person, token)
	})
	if err != nil {
		switch {
		case errors.Is(err, errTokenExpired):
			s.events.TokenRedemption(kindProfessor, outcomeExpired)
			return nil, apperror.Expired("token")
		case errors.Is(err, apperror.ErrNotFound):
			s.events.TokenRedemption(kindProfessor, outcomeNotFound)
			return nil, apperror.NotFoundMessage("invalid token")
		}
		s.events.TokenRedemption(kindProfessor, outcomeError)
		return nil, fmt.Errorf("service/invite: redeeming professor token: %w", err)
	}
	s.events.TokenRedemption(kindProfessor, outcomeSuccess)

	inst, err := s.store.GetInstitution(ctx, token.InstitutionID)
	if err != nil {
		return nil, fmt.Errorf("service/invite: loading institution: %w", err)
	}

	span.SetAttributes(attribute.String("institution.id", inst.ID))
	s.logger.Info("professor token redeemed",
		slog.String("userID", user.ID),
		slog.String("institutionID", inst.ID),
	)
	return &ProfessorRedemption{Username: user.Username, Institution: inst}, nil
}

// RedeemViewerToken adds the signed-in user to the viewers of the token's
// quest. Membership is a set, so redeeming twice leaves one row.
func (s *InviteService) RedeemViewerToken(ctx context.Context, userID, value string) (*ViewerRedemption, error) {
	ctx, span := tracer.Start(ctx, "InviteService.RedeemViewerToken")
	defer span.End()

	value = strings.TrimSpace(value)
	if value == "" {
		s.events.TokenRedemption(kindViewer, outcomeRejected)
		return nil, apperror.ValidationFailed("token", "token not sent")
	}
	user, person, err := loadActor(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}

	var quest *model.Quest
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		token, err := tx.GetViewerToken(ctx, value)
		if err != nil {
			return err
		}
		if !token.IsValid(s.now()) {
			return errTokenExpired
		}
		if quest, err = tx.GetQuest(ctx, token.QuestID); err != nil {
			return err
		}
		return tx.AddMember(ctx, quest.ID, model.AccessViewer, person.UserID)
	})
	if err != nil {
		switch {
		case errors.Is(err, errTokenExpired):
			s.events.TokenRedemption(kindViewer, outcomeExpired)
			return nil, apperror.Expired("token")
		case errors.Is(err, apperror.ErrNotFound):
			s.events.TokenRedemption(kindViewer, outcomeNotFound)
			return nil, apperror.NotFoundMessage("invalid token")
		}
		s.events.TokenRedemption(kindViewer, outcomeError)
		return nil, fmt.Errorf("service/invite: redeeming viewer token: %w", err)
	}
	s.events.TokenRedemption(kindViewer, outcomeSuccess)

	span.SetAttributes(attribute.String("quest.id", quest.ID))
	s.logger.Info("viewer token redeemed",
		slog.String("userID", user.ID),
		slog.String("questID", quest.ID),
	)
	return &ViewerRedemption{Username: user.Username, Quest: quest}, nil
}

// ListProfessorTokens returns every token ever issued for institutionID,
// expired ones included.
func (s *InviteService) ListProfessorTokens(ctx context.Context, institutionID string) ([]ProfessorTokenStatus, error) {
	if _, err := s.store.GetInstitution(ctx, institutionID); err != nil {
		return nil, err
	}
	tokens, err := s.store.ListProfessorTokens(ctx, institutionID)
	if err != nil {
		return nil, fmt.Errorf("service/invite: listing professor tokens: %w", err)
	}

	now := s.now()
	out := make([]ProfessorTokenStatus, len(tokens))
	for i := range tokens {
		out[i] = ProfessorTokenStatus{ProfessorInviteToken: tokens[i], Valid: tokens[i].IsValid(now)}
	}
	return out, nil
}

// ListViewerTokens returns the quest's tokens to someone who can edit it.
func (s *InviteService) ListViewerTokens(ctx context.Context, actorID, questID string) ([]ViewerTokenStatus, error) {
	_, person, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	quest, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireEdit(ctx, person, quest); err != nil {
		return nil, err
	}

	tokens, err := s.store.ListViewerTokens(ctx, questID)
	if err != nil {
		return nil, fmt.Errorf("service/invite: listing viewer tokens: %w", err)
	}

	now := s.now()
	out := make([]ViewerTokenStatus, len(tokens))
	for i := range tokens {
		out[i] = ViewerTokenStatus{QuestViewerInviteToken: tokens[i], Valid: tokens[i].IsValid(now)}
	}
	return out, nil
}

// lookupProfessorToken finds a token by exact value and checks it has not
// expired. A missing token comes back as apperror.ErrNotFound.
func lookupProfessorToken(ctx context.Context, tx repository.Store, value string, now time.Time) (*model.ProfessorInviteToken, error) {
	token, err := tx.GetProfessorToken(ctx, value)
	if err != nil {
		return nil, err
	}
	if !token.IsValid(now) {
		trace.SpanFromContext(ctx).AddEvent("professor token expired")
		return nil, errTokenExpired
	}
	return token, nil
}

// applyProfessorToken moves person to the token's institution as a
// professor and records the redemption. The person row must be written
// before the redemption that references it.
func applyProfessorToken(ctx context.Context, tx repository.Store, person *model.Person, token *model.ProfessorInviteToken) error {
	institutionID := token.InstitutionID
	person.InstitutionID = &institutionID
	person.Role = model.RoleProfessor

	if err := tx.SavePerson(ctx, person); err != nil {
		return err
	}
	return tx.AddProfessorTokenRedemption(ctx, token.ID, person.UserID)
}
