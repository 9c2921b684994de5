package sqldb

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/model"
)

func TestProfessorToken_CreateGetList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := newFixture(t, db)

	expired := &model.ProfessorInviteToken{
		Token:         "expired-token",
		InstitutionID: f.inst.ID,
		ExpiresAt:     time.Now().Add(-time.Hour),
	}
	if err := db.CreateProfessorToken(ctx, expired); err != nil {
		t.Fatalf("CreateProfessorToken() error = %v", err)
	}

	got, err := db.GetProfessorToken(ctx, "expired-token")
	if err != nil {
		t.Fatalf("GetProfessorToken() error = %v", err)
	}
	if got.ID != expired.ID || got.InstitutionID != f.inst.ID {
		t.Errorf("GetProfessorToken() = %+v", got)
	}
	if got.IsValid(time.Now()) {
		t.Error("expired token reported valid")
	}

	// expired tokens are kept
	list, err := db.ListProfessorTokens(ctx, f.inst.ID)
	if err != nil {
		t.Fatalf("ListProfessorTokens() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListProfessorTokens() returned %d tokens, want 1", len(list))
	}
}

func TestProfessorToken_MissingValueIsNotEchoed(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetProfessorToken(context.Background(), "secret-value")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if strings.Contains(err.Error(), "secret-value") {
		t.Errorf("error message leaks the token: %q", err.Error())
	}
}

func TestAddProfessorTokenRedemption_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := newFixture(t, db)

	tok := &model.ProfessorInviteToken{
		Token:         "t1",
		InstitutionID: f.inst.ID,
		ExpiresAt:     time.Now().Add(time.Hour),
	}
	if err := db.CreateProfessorToken(ctx, tok); err != nil {
		t.Fatalf("CreateProfessorToken() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := db.AddProfessorTokenRedemption(ctx, tok.ID, f.professor.UserID); err != nil {
			t.Fatalf("AddProfessorTokenRedemption() #%d error = %v", i+1, err)
		}
	}

	list, err := db.ListProfessorTokens(ctx, f.inst.ID)
	if err != nil {
		t.Fatalf("ListProfessorTokens() error = %v", err)
	}
	if len(list) != 1 || len(list[0].RedeemedBy) != 1 || list[0].RedeemedBy[0] != f.professor.UserID {
		t.Errorf("RedeemedBy = %+v, want exactly the professor", list)
	}
}

func TestViewerToken_CreateGetList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := newFixture(t, db)
	quest := createTestQuest(t, db, f, "Cardio", false)

	tok := &model.QuestViewerInviteToken{
		Token:     "viewer-1",
		QuestID:   quest.ID,
		ExpiresAt: time.Now().Add(model.ViewerTokenLifetime),
	}
	if err := db.CreateViewerToken(ctx, tok); err != nil {
		t.Fatalf("CreateViewerToken() error = %v", err)
	}

	got, err := db.GetViewerToken(ctx, "viewer-1")
	if err != nil {
		t.Fatalf("GetViewerToken() error = %v", err)
	}
	if got.QuestID != quest.ID || !got.IsValid(time.Now()) {
		t.Errorf("GetViewerToken() = %+v", got)
	}

	if _, err := db.GetViewerToken(ctx, "nope"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("missing viewer token error = %v, want ErrNotFound", err)
	}

	list, err := db.ListViewerTokens(ctx, quest.ID)
	if err != nil || len(list) != 1 {
		t.Errorf("ListViewerTokens() = %d tokens, %v", len(list), err)
	}
}
