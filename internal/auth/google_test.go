package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://accounts.google.com"
	testClientID = "harena-test.apps.googleusercontent.com"
)

// idTokenSigner mints RS256 ID tokens the way Google does, with a key the
// test controls.
type idTokenSigner struct {
	key *rsa.PrivateKey
}

func newIDTokenSigner(t *testing.T) *idTokenSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &idTokenSigner{key: key}
}

func (s *idTokenSigner) verifier() *GoogleVerifier {
	keys := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&s.key.PublicKey}}
	return NewVerifierWithKeySet(testIssuer, testClientID, keys)
}

func (s *idTokenSigner) sign(t *testing.T, overrides jwt.MapClaims) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":         testIssuer,
		"aud":         testClientID,
		"sub":         "109876543210987654321",
		"email":       "ana@unicamp.br",
		"given_name":  "Ana",
		"family_name": "Souza",
		"picture":     "https://lh3.googleusercontent.com/a/ana",
		"iat":         now.Unix(),
		"exp":         now.Add(time.Hour).Unix(),
	}
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	require.NoError(t, err)
	return signed
}

func TestGoogleVerifier_ValidToken(t *testing.T) {
	signer := newIDTokenSigner(t)

	id, err := signer.verifier().Verify(context.Background(), signer.sign(t, nil))
	require.NoError(t, err)

	assert.Equal(t, "109876543210987654321", id.Subject)
	assert.Equal(t, "ana@unicamp.br", id.Email)
	assert.Equal(t, "Ana", id.GivenName)
	assert.Equal(t, "Souza", id.FamilyName)
	assert.Equal(t, "https://lh3.googleusercontent.com/a/ana", id.Picture)
}

func TestGoogleVerifier_Rejects(t *testing.T) {
	signer := newIDTokenSigner(t)
	stranger := newIDTokenSigner(t)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong audience", signer.sign(t, jwt.MapClaims{"aud": "someone-else"})},
		{"wrong issuer", signer.sign(t, jwt.MapClaims{"iss": "https://evil.example"})},
		{"expired", signer.sign(t, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})},
		{"signed by unknown key", stranger.sign(t, nil)},
		{"no email claim", signer.sign(t, jwt.MapClaims{"email": nil})},
		{"not a token", "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signer.verifier().Verify(context.Background(), tt.token)
			assert.Error(t, err)
		})
	}
}
