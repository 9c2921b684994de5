package sqldb

import (
	"context"
	"errors"
	"testing"

	"github.com/mundorum/harena/internal/model"
	"github.com/mundorum/harena/internal/repository"
)

// newTestDB returns a fresh in-memory database with the schema applied.
// Each call gets its own database; nothing leaks between tests.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fixture creates an institution and a professor who belongs to it.
type fixture struct {
	inst      *model.Institution
	professor *model.Person
	profUser  *model.User
}

func newFixture(t *testing.T, db *DB) fixture {
	t.Helper()
	ctx := context.Background()

	inst := &model.Institution{Name: "Unicamp"}
	if err := db.CreateInstitution(ctx, inst); err != nil {
		t.Fatalf("CreateInstitution() error = %v", err)
	}
	user, person := createTestPerson(t, db, "prof@unicamp.br", &inst.ID, model.RoleProfessor)
	return fixture{inst: inst, professor: person, profUser: user}
}

func createTestPerson(t *testing.T, db *DB, email string, instID *string, role model.Role) (*model.User, *model.Person) {
	t.Helper()
	ctx := context.Background()

	user := &model.User{
		Username:  model.EmailLocalPart(email),
		Email:     email,
		FirstName: "Test",
		LastName:  model.EmailLocalPart(email),
	}
	if err := db.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser(%s) error = %v", email, err)
	}
	person := &model.Person{UserID: user.ID, InstitutionID: instID, Role: role}
	if err := db.SavePerson(ctx, person); err != nil {
		t.Fatalf("SavePerson(%s) error = %v", email, err)
	}
	return user, person
}

// =========================================================================
// TRANSACTION TESTS
// =========================================================================

func TestInTx_CommitsOnSuccess(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.InTx(ctx, func(tx repository.Store) error {
		return tx.CreateInstitution(ctx, &model.Institution{Name: "USP"})
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}

	list, err := db.ListInstitutions(ctx)
	if err != nil {
		t.Fatalf("ListInstitutions() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != "USP" {
		t.Errorf("ListInstitutions() = %+v, want one USP", list)
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.InTx(ctx, func(tx repository.Store) error {
		if err := tx.CreateInstitution(ctx, &model.Institution{Name: "USP"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want %v", err, boom)
	}

	list, err := db.ListInstitutions(ctx)
	if err != nil {
		t.Fatalf("ListInstitutions() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("rolled back insert is visible: %+v", list)
	}
}

func TestInTx_NestedReusesTransaction(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// With a single in-memory connection a second BeginTx would block
	// forever, so this only passes if the nested call reuses the tx.
	err := db.InTx(ctx, func(tx repository.Store) error {
		return tx.InTx(ctx, func(inner repository.Store) error {
			return inner.CreateInstitution(ctx, &model.Institution{Name: "UFMG"})
		})
	})
	if err != nil {
		t.Fatalf("nested InTx() error = %v", err)
	}
}

// =========================================================================
// DIALECT TESTS
// =========================================================================

func TestRebind(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	lite := &DB{dialect: DialectSQLite}
	query := `SELECT * FROM quests WHERE owner_id = ? OR (visible = ? AND institution_id = ?)`

	want := `SELECT * FROM quests WHERE owner_id = $1 OR (visible = $2 AND institution_id = $3)`
	if got := pg.rebind(query); got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
	if got := lite.rebind(query); got != query {
		t.Errorf("sqlite rebind changed the query: %q", got)
	}
}

func TestOpen_UnknownDialect(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Fatal("Open() with unknown dialect should fail")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
}
