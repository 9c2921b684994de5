// Package auth handles identity assertions and session credentials.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The client obtains a Google ID token (Sign-In button, or our own
//     /auth/google/login redirect flow).
//  2. It posts the ID token to /auth/google. GoogleVerifier checks the
//     signature, issuer, audience and expiry.
//  3. The identity service resolves the Person and get-or-creates a
//     session row holding a random session key.
//  4. TokenService wraps user id + session key in a signed JWT. That JWT is
//     the credential the client sends back as "Authorization: Bearer ..."
//     or in the HttpOnly "token" cookie.
//  5. Authenticator checks the JWT signature, then that the session row
//     still exists. Deleting the row (sign out) revokes every copy of the
//     credential at once.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<user id>","sid":"<session key>","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "harena"

// DefaultCredentialLifetime is long: the session row, not the JWT
// expiry, is what normally ends a session.
const DefaultCredentialLifetime = 30 * 24 * time.Hour

// TokenService signs and validates session credentials.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, lifetime time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if lifetime <= 0 {
		lifetime = DefaultCredentialLifetime
	}
	return &TokenService{secret: []byte(secret), lifetime: lifetime}, nil
}

// SessionClaims is the JWT payload.
type SessionClaims struct {
	SessionKey string `json:"sid"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *SessionClaims) UserID() string {
	return c.Subject
}

// Lifetime is how long issued credentials stay valid.
func (s *TokenService) Lifetime() time.Duration {
	return s.lifetime
}

// Issue signs a credential for the user's session.
func (s *TokenService) Issue(userID, sessionKey string) (string, error) {
	return s.IssueWithDuration(userID, sessionKey, s.lifetime)
}

// IssueWithDuration is Issue with an explicit lifetime. Tests use it to
// mint already-expired credentials.
func (s *TokenService) IssueWithDuration(userID, sessionKey string, d time.Duration) (string, error) {
	now := time.Now()

	c := SessionClaims{
		SessionKey: sessionKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a credential.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired
//   - Issuer matches "harena"
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
func (s *TokenService) Validate(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&SessionClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}
	if c.SessionKey == "" {
		return nil, fmt.Errorf("auth: token has no session")
	}
	return c, nil
}
