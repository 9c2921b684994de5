package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mundorum/harena/internal/access"
	"github.com/mundorum/harena/internal/auth"
	"github.com/mundorum/harena/internal/cache"
	"github.com/mundorum/harena/internal/model"
	"github.com/mundorum/harena/internal/repository/sqldb"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeVerifier accepts assertions of the form "assertion-<subject>" for
// every identity registered with add.
type fakeVerifier struct {
	mu         sync.Mutex
	identities map[string]*auth.Identity
}

func (f *fakeVerifier) add(id *auth.Identity) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	assertion := "assertion-" + id.Subject
	f.identities[assertion] = id
	return assertion
}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (*auth.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.identities[raw]
	if !ok {
		return nil, errors.New("signature mismatch")
	}
	return id, nil
}

// testClock is a settable Clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeBlobs keeps uploaded objects in memory.
type fakeBlobs struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (f *fakeBlobs) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.objects[key] = data
	f.types[key] = contentType
	return "https://blobs.test/" + key, nil
}

// recorder counts business events.
type recorder struct {
	mu     sync.Mutex
	events map[string]int
}

func (r *recorder) SignIn(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events["signin/"+outcome]++
}

func (r *recorder) TokenRedemption(kind, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[kind+"/"+outcome]++
}

func (r *recorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[key]
}

// env wires every service against one in-memory database.
type env struct {
	db       *sqldb.DB
	verifier *fakeVerifier
	clock    *testClock
	blobs    *fakeBlobs
	events   *recorder
	domains  *cache.DomainCache
	authn    *auth.Authenticator

	identity     *IdentityService
	invites      *InviteService
	quests       *QuestService
	cases        *CaseService
	institutions *InstitutionService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, err := sqldb.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)

	e := &env{
		db:       db,
		verifier: &fakeVerifier{identities: map[string]*auth.Identity{}},
		clock:    &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		blobs:    &fakeBlobs{objects: map[string][]byte{}, types: map[string]string{}},
		events:   &recorder{events: map[string]int{}},
		domains:  cache.NewDomainCache(db, 16, time.Minute),
		authn:    auth.NewAuthenticator(tokens, db),
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	opts := []Option{WithClock(e.clock.Now), WithEvents(e.events), WithLogger(logger)}
	evaluator := access.NewEvaluator(db)

	e.identity = NewIdentityService(db, e.verifier, e.domains, e.authn, opts...)
	e.invites = NewInviteService(db, evaluator, opts...)
	e.quests = NewQuestService(db, evaluator, opts...)
	e.cases = NewCaseService(db, e.blobs, opts...)
	e.institutions = NewInstitutionService(db, e.domains, opts...)
	return e
}

// institution creates an institution that owns domain.
func (e *env) institution(t *testing.T, name, domain string) *model.Institution {
	t.Helper()
	ctx := context.Background()
	inst, err := e.institutions.Create(ctx, name)
	require.NoError(t, err)
	if domain != "" {
		_, err = e.institutions.AddDomain(ctx, inst.ID, domain)
		require.NoError(t, err)
	}
	return inst
}

// signIn signs in the Google account (subject, email), optionally with a
// professor invite token.
func (e *env) signIn(t *testing.T, subject, email, invite string) *SignInResult {
	t.Helper()
	res, err := e.trySignIn(subject, email, invite)
	require.NoError(t, err)
	return res
}

func (e *env) trySignIn(subject, email, invite string) (*SignInResult, error) {
	assertion := e.verifier.add(&auth.Identity{
		Subject:    subject,
		Email:      email,
		GivenName:  "Given",
		FamilyName: subject,
		Picture:    "https://pics.test/" + subject,
	})
	return e.identity.SignIn(context.Background(), SignInRequest{Assertion: assertion, InviteToken: invite})
}

// professor signs in a new professor of inst and returns the user id.
func (e *env) professor(t *testing.T, inst *model.Institution, name string) string {
	t.Helper()
	token, err := e.invites.IssueProfessorToken(context.Background(), inst.ID, 0)
	require.NoError(t, err)
	res := e.signIn(t, "sub-"+name+"-0000000", name+"@prof.test", token.Token)
	return res.User.ID
}

// student signs in a student whose email domain is domain.
func (e *env) student(t *testing.T, name, domain string) string {
	t.Helper()
	res := e.signIn(t, "sub-"+name+"-0000000", fmt.Sprintf("%s@%s", name, domain), "")
	return res.User.ID
}

// quest creates a quest owned by ownerID.
func (e *env) quest(t *testing.T, ownerID, name string, visible bool) *model.Quest {
	t.Helper()
	q, err := e.quests.Create(context.Background(), ownerID, name, visible)
	require.NoError(t, err)
	return q
}

// caseOf creates a case owned by ownerID.
func (e *env) caseOf(t *testing.T, ownerID, name string) *model.Case {
	t.Helper()
	c, err := e.cases.Create(context.Background(), ownerID, CreateCaseInput{
		Name:       name,
		Complexity: model.ComplexityGraduate,
	})
	require.NoError(t, err)
	return c
}

func pngBody() *bytes.Reader {
	return bytes.NewReader([]byte("\x89PNG\r\n\x1a\nfake"))
}
