package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/auth"
	"github.com/mundorum/harena/internal/model"
	"github.com/mundorum/harena/internal/repository"
)

// IdentityVerifier checks an externally issued identity assertion (a
// Google ID token) and returns the identity it vouches for.
type IdentityVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*auth.Identity, error)
}

// CredentialIssuer signs the credential handed back after sign-in.
type CredentialIssuer interface {
	Issue(session *model.Session) (string, error)
}

// DomainResolver maps an email domain to its institution, or nil.
type DomainResolver interface {
	Resolve(ctx context.Context, domain string) (*model.Institution, error)
}

// IdentityService signs users in with Google and answers "who am I".
//
//	AuthHandler (HTTP) → IdentityService → IdentityVerifier (Google)
//	                                     ↘ Store (users, persons, sessions)
//	                                     ↘ CredentialIssuer (JWT)
type IdentityService struct {
	store    repository.Store
	verifier IdentityVerifier
	domains  DomainResolver
	issuer   CredentialIssuer
	now      Clock
	events   EventRecorder
	logger   *slog.Logger
}

func NewIdentityService(
	store repository.Store,
	verifier IdentityVerifier,
	domains DomainResolver,
	issuer CredentialIssuer,
	opts ...Option,
) *IdentityService {
	o := buildOptions(opts)
	return &IdentityService{
		store:    store,
		verifier: verifier,
		domains:  domains,
		issuer:   issuer,
		now:      o.now,
		events:   o.events,
		logger:   o.logger,
	}
}

// SignInRequest is the body of POST /auth/google.
type SignInRequest struct {
	Assertion   string `json:"token"`
	InviteToken string `json:"invite_token"`
}

// UserSummary is the public view of the signed-in user.
type UserSummary struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Picture     string     `json:"picture"`
	Institution *string    `json:"institution"`
	Role        model.Role `json:"role"`
}

// SignInResult bundles the credential and the user so the handler can set
// the cookie and respond in one step.
type SignInResult struct {
	Credential string       `json:"token"`
	User       *UserSummary `json:"user"`
}

// SignIn resolves a Google assertion to a local user.
//
// The flow:
//
//  1. Verify the assertion. Anything the verifier rejects is 401.
//  2. Resolve the institution from the exact email domain (cached).
//  3. In one transaction: find or create the User, find or create the
//     Person, refresh its Google profile fields, apply the invite token
//     (professor) or reset the role to student, then get or create the
//     session.
//  4. Sign a credential for the session.
//
// Signing in without an invite token always resets the role to student,
// including for someone who redeemed a professor token earlier.
func (s *IdentityService) SignIn(ctx context.Context, req SignInRequest) (*SignInResult, error) {
	ctx, span := tracer.Start(ctx, "IdentityService.SignIn")
	defer span.End()

	if strings.TrimSpace(req.Assertion) == "" {
		s.events.SignIn(outcomeRejected)
		return nil, apperror.ValidationFailed("token", "token is required")
	}

	identity, err := s.verifier.Verify(ctx, req.Assertion)
	if err != nil {
		s.events.SignIn(outcomeRejected)
		s.logger.Warn("identity assertion rejected", slog.String("error", err.Error()))
		return nil, apperror.Unauthorized("invalid token")
	}

	inst, err := s.domains.Resolve(ctx, model.EmailDomain(identity.Email))
	if err != nil {
		s.events.SignIn(outcomeError)
		return nil, fmt.Errorf("service/identity: %w", err)
	}

	sessionKey, err := auth.NewSessionKey()
	if err != nil {
		s.events.SignIn(outcomeError)
		return nil, fmt.Errorf("service/identity: %w", err)
	}

	inviteToken := strings.TrimSpace(req.InviteToken)
	var (
		user    *model.User
		person  *model.Person
		session *model.Session
	)
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		if user, err = findOrCreateUser(ctx, tx, identity); err != nil {
			return err
		}
		if person, err = findOrNewPerson(ctx, tx, user.ID); err != nil {
			return err
		}

		person.GoogleID = identity.Subject
		person.AvatarURL = identity.Picture
		person.InstitutionID = nil
		if inst != nil {
			id := inst.ID
			person.InstitutionID = &id
		}

		if inviteToken != "" {
			token, err := lookupProfessorToken(ctx, tx, inviteToken, s.now())
			if err != nil {
				return err
			}
			if err := applyProfessorToken(ctx, tx, person, token); err != nil {
				return err
			}
		} else {
			person.Role = model.RoleStudent
			if err := tx.SavePerson(ctx, person); err != nil {
				return err
			}
		}

		session, err = tx.GetOrCreateSession(ctx, user.ID, sessionKey)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, errTokenExpired):
			s.events.SignIn(outcomeRejected)
			return nil, apperror.Expired("invite token")
		case inviteToken != "" && errors.Is(err, apperror.ErrNotFound):
			s.events.SignIn(outcomeRejected)
			return nil, apperror.ValidationFailed("invite_token", "invalid invite token")
		}
		s.events.SignIn(outcomeError)
		span.SetStatus(codes.Error, "sign-in transaction failed")
		s.logger.Error("sign-in failed",
			slog.String("email", identity.Email),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/identity: signing in %s: %w", identity.Email, err)
	}
	if inviteToken != "" {
		s.events.TokenRedemption(kindProfessor, outcomeSuccess)
	}

	credential, err := s.issuer.Issue(session)
	if err != nil {
		s.events.SignIn(outcomeError)
		return nil, fmt.Errorf("service/identity: issuing credential: %w", err)
	}

	summary, err := s.summarize(ctx, user, person)
	if err != nil {
		return nil, err
	}

	s.events.SignIn(outcomeSuccess)
	span.SetAttributes(
		attribute.String("user.id", user.ID),
		attribute.String("user.role", string(person.Role)),
	)
	s.logger.Info("user signed in",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
		slog.String("role", string(person.Role)),
	)
	return &SignInResult{Credential: credential, User: summary}, nil
}

// CurrentUser returns the summary for an authenticated user id.
func (s *IdentityService) CurrentUser(ctx context.Context, userID string) (*UserSummary, error) {
	user, person, err := loadActor(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, user, person)
}

// SignOut deletes the user's session. Credentials signed for it stop
// validating immediately.
func (s *IdentityService) SignOut(ctx context.Context, userID string) error {
	if userID == "" {
		return apperror.Unauthorized("authentication required")
	}
	if err := s.store.DeleteSession(ctx, userID); err != nil {
		return fmt.Errorf("service/identity: %w", err)
	}
	s.logger.Info("user signed out", slog.String("userID", userID))
	return nil
}

func (s *IdentityService) summarize(ctx context.Context, user *model.User, person *model.Person) (*UserSummary, error) {
	summary := &UserSummary{
		ID:      user.ID,
		Email:   user.Email,
		Name:    user.FullName(),
		Picture: person.AvatarURL,
		Role:    person.Role,
	}
	if person.InstitutionID != nil {
		inst, err := s.store.GetInstitution(ctx, *person.InstitutionID)
		if err != nil {
			return nil, fmt.Errorf("service/identity: loading institution: %w", err)
		}
		summary.Institution = &inst.Name
	}
	return summary, nil
}

// findOrCreateUser looks the user up by email. New users get the email
// local part as username, or "<local>_<first 8 chars of the Google id>"
// when that is taken.
func findOrCreateUser(ctx context.Context, tx repository.Store, identity *auth.Identity) (*model.User, error) {
	user, err := tx.GetUserByEmail(ctx, identity.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	username := model.EmailLocalPart(identity.Email)
	taken, err := tx.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		username = username + "_" + prefix(identity.Subject, 8)
	}

	user = &model.User{
		Username:  username,
		Email:     identity.Email,
		FirstName: identity.GivenName,
		LastName:  identity.FamilyName,
	}
	if err := tx.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func findOrNewPerson(ctx context.Context, tx repository.Store, userID string) (*model.Person, error) {
	person, err := tx.GetPerson(ctx, userID)
	if err == nil {
		return person, nil
	}
	if errors.Is(err, apperror.ErrNotFound) {
		return &model.Person{UserID: userID, Role: model.RoleStudent}, nil
	}
	return nil, err
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
