package sqldb

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/model"
	"github.com/mundorum/harena/internal/repository"
)

// A redemption that fails half way must not leave the person promoted.
func TestInTx_FailedRedemptionRollsBack(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer conn.Close()
	db := NewFromConn(conn, DialectSQLite)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO persons").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO professor_token_redemptions").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	inst := "inst-1"
	err = db.InTx(context.Background(), func(tx repository.Store) error {
		person := &model.Person{UserID: "u1", InstitutionID: &inst, Role: model.RoleProfessor}
		if err := tx.SavePerson(context.Background(), person); err != nil {
			return err
		}
		return tx.AddProfessorTokenRedemption(context.Background(), "tok-1", "u1")
	})
	if err == nil {
		t.Fatal("InTx() should return the redemption error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestInTx_CommitFailureIsReported(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer conn.Close()
	db := NewFromConn(conn, DialectSQLite)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	err = db.InTx(context.Background(), func(tx repository.Store) error {
		return tx.DeleteSession(context.Background(), "u1")
	})
	if err == nil {
		t.Fatal("InTx() should report the commit failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// PostgreSQL receives numbered placeholders.
func TestPostgresDialect_RebindsPlaceholders(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer conn.Close()
	db := NewFromConn(conn, DialectPostgres)

	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO quest_cases (quest_id, case_id, added_at) VALUES ($1, $2, $3)`,
	)).
		WithArgs("q1", "c1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	added, err := db.AddQuestCase(context.Background(), "q1", "c1")
	if err != nil {
		t.Fatalf("AddQuestCase() error = %v", err)
	}
	if added {
		t.Error("zero rows affected should report added == false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetViewerToken_DriverErrorIsNotNotFound(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer conn.Close()
	db := NewFromConn(conn, DialectSQLite)

	mock.ExpectQuery("FROM quest_viewer_tokens").
		WillReturnError(errors.New("connection reset"))

	_, err = db.GetViewerToken(context.Background(), "x")
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("driver failure mapped to NotFound: %v", err)
	}
}
