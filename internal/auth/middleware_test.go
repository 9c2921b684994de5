package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/model"
)

// fakeValidator accepts exactly one credential.
type fakeValidator struct {
	credential string
	userID     string
}

func (f fakeValidator) Authenticate(ctx context.Context, credential string) (string, error) {
	if credential != f.credential {
		return "", errors.New("bad credential")
	}
	return f.userID, nil
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	id, ok := UserIDFromContext(r.Context())
	if !ok {
		id = "anonymous"
	}
	w.Write([]byte(id))
}

func TestRequireAuth(t *testing.T) {
	h := RequireAuth(fakeValidator{credential: "good", userID: "u1"})(http.HandlerFunc(echoUser))

	tests := []struct {
		name       string
		prepare    func(r *http.Request)
		wantStatus int
		wantBody   string
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusOK, "u1"},
		{"token scheme", func(r *http.Request) { r.Header.Set("Authorization", "Token good") }, http.StatusOK, "u1"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: "good"}) }, http.StatusOK, "u1"},
		{"no credential", func(r *http.Request) {}, http.StatusUnauthorized, ""},
		{"bad credential", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }, http.StatusUnauthorized, ""},
		{"unknown scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic good") }, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/user", nil)
			tt.prepare(req)
			rr := httptest.NewRecorder()

			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, rr.Body.String())
			} else {
				assert.Contains(t, rr.Body.String(), `"unauthorized"`)
			}
		})
	}
}

func TestOptionalAuth_LetsAnonymousThrough(t *testing.T) {
	h := OptionalAuth(fakeValidator{credential: "good", userID: "u1"})(http.HandlerFunc(echoUser))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "anonymous", rr.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "u1", rr.Body.String())
}

// =========================================================================
// AUTHENTICATOR TESTS
// =========================================================================

type fakeSessions map[string]*model.Session

func (f fakeSessions) GetSession(ctx context.Context, key string) (*model.Session, error) {
	s, ok := f[key]
	if !ok {
		return nil, apperror.NotFoundMessage("session not found")
	}
	return s, nil
}

func TestAuthenticator(t *testing.T) {
	ts := newTestTokenService(t)
	sessions := fakeSessions{"k1": {Key: "k1", UserID: "u1", CreatedAt: time.Now()}}
	a := NewAuthenticator(ts, sessions)

	credential, err := a.Issue(sessions["k1"])
	require.NoError(t, err)

	userID, err := a.Authenticate(context.Background(), credential)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	// a signed credential for a deleted session is rejected
	delete(sessions, "k1")
	_, err = a.Authenticate(context.Background(), credential)
	assert.Error(t, err)

	// a session key presented under another subject is rejected
	sessions["k2"] = &model.Session{Key: "k2", UserID: "u2"}
	forged, err := ts.Issue("u1", "k2")
	require.NoError(t, err)
	_, err = a.Authenticate(context.Background(), forged)
	assert.Error(t, err)
}

func TestNewSessionKey(t *testing.T) {
	a, err := NewSessionKey()
	require.NoError(t, err)
	b, err := NewSessionKey()
	require.NoError(t, err)

	assert.Len(t, a, 40)
	assert.NotEqual(t, a, b)
}
