package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/mundorum/harena/internal/model"
)

// NewSessionKey returns 40 hex characters (160 random bits).
func NewSessionKey() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating session key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// SessionStore is the storage the Authenticator checks credentials against.
type SessionStore interface {
	GetSession(ctx context.Context, key string) (*model.Session, error)
}

// Authenticator turns a presented credential into a user id. A credential
// is accepted only when its signature is valid AND the session it names
// still exists for the same user.
type Authenticator struct {
	tokens   *TokenService
	sessions SessionStore
}

func NewAuthenticator(tokens *TokenService, sessions SessionStore) *Authenticator {
	return &Authenticator{tokens: tokens, sessions: sessions}
}

// Issue signs a credential for an existing session.
func (a *Authenticator) Issue(session *model.Session) (string, error) {
	return a.tokens.Issue(session.UserID, session.Key)
}

// Authenticate implements CredentialValidator.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (string, error) {
	claims, err := a.tokens.Validate(credential)
	if err != nil {
		return "", err
	}

	session, err := a.sessions.GetSession(ctx, claims.SessionKey)
	if err != nil {
		return "", fmt.Errorf("auth: session lookup: %w", err)
	}
	if session.UserID != claims.UserID() {
		return "", fmt.Errorf("auth: session does not belong to token subject")
	}
	return session.UserID, nil
}
