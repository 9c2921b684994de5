package sqldb

import (
	"context"
	"errors"
	"testing"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/model"
)

// =========================================================================
// INSTITUTION TESTS
// =========================================================================

func TestInstitution_DuplicateNameConflicts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.CreateInstitution(ctx, &model.Institution{Name: "Unicamp"}); err != nil {
		t.Fatalf("CreateInstitution() error = %v", err)
	}
	err := db.CreateInstitution(ctx, &model.Institution{Name: "Unicamp"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate CreateInstitution() error = %v, want ErrConflict", err)
	}
}

func TestGetInstitutionByDomain(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := newFixture(t, db)

	if err := db.AddDomain(ctx, &model.InstitutionDomain{Name: "unicamp.br", InstitutionID: f.inst.ID}); err != nil {
		t.Fatalf("AddDomain() error = %v", err)
	}

	found, err := db.GetInstitutionByDomain(ctx, "unicamp.br")
	if err != nil {
		t.Fatalf("GetInstitutionByDomain() error = %v", err)
	}
	if found.ID != f.inst.ID {
		t.Errorf("institution = %s, want %s", found.ID, f.inst.ID)
	}

	// exact match only
	if _, err := db.GetInstitutionByDomain(ctx, "dac.unicamp.br"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("subdomain lookup error = %v, want ErrNotFound", err)
	}

	err = db.AddDomain(ctx, &model.InstitutionDomain{Name: "unicamp.br", InstitutionID: f.inst.ID})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate AddDomain() error = %v, want ErrConflict", err)
	}
}

// =========================================================================
// USER / PERSON TESTS
// =========================================================================

func TestCreateUser_DuplicateUsernameConflicts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestPerson(t, db, "ana@unicamp.br", nil, model.RoleStudent)

	err := db.CreateUser(ctx, &model.User{Username: "ana", Email: "ana@usp.br"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("CreateUser() error = %v, want ErrConflict", err)
	}

	exists, err := db.UsernameExists(ctx, "ana")
	if err != nil || !exists {
		t.Errorf("UsernameExists(ana) = %v, %v; want true", exists, err)
	}
	exists, err = db.UsernameExists(ctx, "bia")
	if err != nil || exists {
		t.Errorf("UsernameExists(bia) = %v, %v; want false", exists, err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := createTestPerson(t, db, "ana@unicamp.br", nil, model.RoleStudent)

	found, err := db.GetUserByEmail(ctx, "ana@unicamp.br")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if found.ID != user.ID || found.FullName() != "Test ana" {
		t.Errorf("GetUserByEmail() = %+v", found)
	}

	if _, err := db.GetUserByEmail(ctx, "nobody@unicamp.br"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("missing email error = %v, want ErrNotFound", err)
	}
}

func TestSavePerson_Upserts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := newFixture(t, db)

	user, person := createTestPerson(t, db, "ana@unicamp.br", nil, model.RoleStudent)
	if person.Role != model.RoleStudent {
		t.Fatalf("initial role = %s", person.Role)
	}

	person.Role = model.RoleProfessor
	person.InstitutionID = &f.inst.ID
	person.GoogleID = "1234567890"
	if err := db.SavePerson(ctx, person); err != nil {
		t.Fatalf("SavePerson() error = %v", err)
	}

	got, err := db.GetPerson(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetPerson() error = %v", err)
	}
	if got.Role != model.RoleProfessor || got.InstitutionID == nil || *got.InstitutionID != f.inst.ID {
		t.Errorf("GetPerson() = %+v, want professor of %s", got, f.inst.ID)
	}
	if got.GoogleID != "1234567890" {
		t.Errorf("GoogleID = %q", got.GoogleID)
	}
}

func TestGetPerson_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetPerson(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetPerson() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// SESSION TESTS
// =========================================================================

func TestGetOrCreateSession_ReusesExisting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user, _ := createTestPerson(t, db, "ana@unicamp.br", nil, model.RoleStudent)

	first, err := db.GetOrCreateSession(ctx, user.ID, "key-one")
	if err != nil {
		t.Fatalf("GetOrCreateSession() error = %v", err)
	}
	second, err := db.GetOrCreateSession(ctx, user.ID, "key-two")
	if err != nil {
		t.Fatalf("second GetOrCreateSession() error = %v", err)
	}
	if first.Key != "key-one" || second.Key != "key-one" {
		t.Errorf("keys = %q, %q; want both key-one", first.Key, second.Key)
	}

	got, err := db.GetSession(ctx, "key-one")
	if err != nil || got.UserID != user.ID {
		t.Errorf("GetSession() = %+v, %v", got, err)
	}

	if err := db.DeleteSession(ctx, user.ID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := db.GetSession(ctx, "key-one"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetSession() after delete error = %v, want ErrNotFound", err)
	}
}
