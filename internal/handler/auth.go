package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/mundorum/harena/internal/auth"
	"github.com/mundorum/harena/internal/service"
)

// Identity is the part of service.IdentityService the auth handler needs.
type Identity interface {
	SignIn(ctx context.Context, req service.SignInRequest) (*service.SignInResult, error)
	CurrentUser(ctx context.Context, userID string) (*service.UserSummary, error)
	SignOut(ctx context.Context, userID string) error
}

// CodeExchanger runs the Google authorization-code flow
// (implemented by auth.GoogleProvider).
type CodeExchanger interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

const (
	stateCookie  = "oauth_state"
	inviteCookie = "invite_token"
)

// CookieOptions controls the credential cookie.
type CookieOptions struct {
	MaxAge time.Duration
	// Secure should be true whenever the API is served over HTTPS.
	Secure bool
}

// AuthHandler signs users in with Google and manages the credential cookie.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGoogleSignIn   → POST an ID token from Google Sign-In, get a credential
//   - HandleGoogleLogin    → redirect the browser to Google's consent page
//   - HandleGoogleCallback → receive the code, exchange it, sign in, set the cookie
//   - HandleLogout         → delete the session and clear the cookie
//   - HandleMe             → return the signed-in user's summary
//
// Both Google flows end in IdentityService.SignIn, so invite tokens, role
// resolution and sessions behave the same whichever one the client uses.
type AuthHandler struct {
	identity Identity
	google   CodeExchanger
	cookie   CookieOptions
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. google may be nil when no OAuth
// client secret is configured; the redirect flow then answers 404 and
// only POST /auth/google is available.
func NewAuthHandler(identity Identity, google CodeExchanger, cookie CookieOptions, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		google:   google,
		cookie:   cookie,
		logger:   logger,
	}
}

// HandleGoogleSignIn verifies a Google ID token posted by the frontend.
//
// HTTP: POST /auth/google
// Body: {"token": "<google id token>", "invite_token": "<optional>"}
//
// The credential is returned in the body for API clients and also set as
// the HttpOnly cookie for browsers.
func (h *AuthHandler) HandleGoogleSignIn(w http.ResponseWriter, r *http.Request) {
	var req service.SignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.identity.SignIn(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setCredentialCookie(w, result.Credential)
	writeJSON(w, http.StatusOK, result)
}

// HandleGoogleLogin redirects the user to Google's authorization page.
//
// HTTP: GET /auth/google/login[?invite_token=...]
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived cookie and into the Google
// URL. HandleGoogleCallback only proceeds when the two match.
//
// An invite token in the query string is parked in a cookie of the same
// lifetime, since Google does not pass arbitrary parameters back.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		http.NotFound(w, r)
		return
	}

	state := xid.New().String()
	h.setShortCookie(w, stateCookie, state)

	if invite := r.URL.Query().Get("invite_token"); invite != "" {
		h.setShortCookie(w, inviteCookie, invite)
	}

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the authorization-code flow.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for Google's ID token
//  3. Sign in exactly like POST /auth/google, with the parked invite token
//  4. Set the credential cookie and redirect to the app
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		http.NotFound(w, r)
		return
	}

	// --- Step 1: Validate CSRF state ---
	state, err := r.Cookie(stateCookie)
	if err != nil || state.Value == "" || r.URL.Query().Get("state") != state.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	// single use
	h.clearCookie(w, stateCookie)

	var invite string
	if c, err := r.Cookie(inviteCookie); err == nil {
		invite = c.Value
		h.clearCookie(w, inviteCookie)
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for an ID token ---
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	idToken, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("auth callback: code exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	// --- Step 3: Sign in ---
	result, err := h.identity.SignIn(r.Context(), service.SignInRequest{
		Assertion:   idToken,
		InviteToken: invite,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// --- Step 4: Cookie and redirect ---
	h.setCredentialCookie(w, result.Credential)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout deletes the caller's session and clears the cookie.
//
// HTTP: POST /auth/logout
//
// The session row is what makes a credential valid, so deleting it also
// revokes copies of the credential held outside the browser.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.identity.SignOut(r.Context(), actorID(r)); err != nil {
		writeError(w, err)
		return
	}

	h.clearCookie(w, auth.CookieName)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the currently authenticated user's summary.
//
// HTTP: GET /user
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.CurrentUser(r.Context(), actorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// setCredentialCookie stores the credential in an HttpOnly cookie.
// HttpOnly keeps it away from JavaScript; SameSite=Lax keeps it off
// cross-site POSTs.
func (h *AuthHandler) setCredentialCookie(w http.ResponseWriter, credential string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    credential,
		Path:     "/",
		MaxAge:   int(h.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) setShortCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
