package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/model"
	"github.com/mundorum/harena/internal/repository"
)

var _ repository.CaseRepository = (*DB)(nil)

// CreateCase inserts a new case.
//
// POSSIBLE ANSWERS:
// The list is stored as a JSON array in a TEXT column. It is only ever
// read back whole, so a child table would buy nothing but a join.
func (db *DB) CreateCase(ctx context.Context, c *model.Case) error {
	c.ID = xid.New().String()
	c.CreatedAt = time.Now().UTC()
	if c.PossibleAnswers == nil {
		c.PossibleAnswers = []string{}
	}

	answers, err := json.Marshal(c.PossibleAnswers)
	if err != nil {
		return fmt.Errorf("sqldb: encoding possible answers: %w", err)
	}

	_, err = db.exec(ctx,
		`INSERT INTO cases (id, name, description, content, answer, possible_answers,
		                    owner_id, complexity, specialty, image_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, c.Content, c.Answer, string(answers),
		c.OwnerID, string(c.Complexity), c.Specialty, c.ImageRef, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqldb: creating case: %w", err)
	}
	return nil
}

const caseColumns = `c.id, c.name, c.description, c.content, c.answer, c.possible_answers,
	c.owner_id, c.complexity, c.specialty, c.image_ref, c.created_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*model.Case, error) {
	var (
		c          model.Case
		answers    string
		complexity string
		specialty  sql.NullString
		imageRef   sql.NullString
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Description, &c.Content, &c.Answer, &answers,
		&c.OwnerID, &complexity, &specialty, &imageRef, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(answers), &c.PossibleAnswers); err != nil {
		return nil, fmt.Errorf("decoding possible answers of case %s: %w", c.ID, err)
	}
	c.Complexity = model.Complexity(complexity)
	c.Specialty = nullable(specialty)
	c.ImageRef = nullable(imageRef)
	return &c, nil
}

func (db *DB) GetCase(ctx context.Context, id string) (*model.Case, error) {
	c, err := scanCase(db.queryRow(ctx,
		`SELECT `+caseColumns+` FROM cases c WHERE c.id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, "case", id)
	}
	return c, nil
}

func (db *DB) ListCasesByOwner(ctx context.Context, ownerID string) ([]model.Case, error) {
	return db.listCases(ctx,
		`SELECT `+caseColumns+` FROM cases c
		 WHERE c.owner_id = ?
		 ORDER BY c.created_at DESC, c.id DESC`, ownerID)
}

func (db *DB) SetCaseImage(ctx context.Context, caseID, ref string) error {
	result, err := db.exec(ctx, `UPDATE cases SET image_ref = ? WHERE id = ?`, ref, caseID)
	if err != nil {
		return fmt.Errorf("sqldb: setting image of case %s: %w", caseID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqldb: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("case", caseID)
	}
	return nil
}

// AddQuestCase relies on the UNIQUE (quest_id, case_id) constraint: a
// duplicate insert affects zero rows and is reported as added == false.
func (db *DB) AddQuestCase(ctx context.Context, questID, caseID string) (bool, error) {
	result, err := db.exec(ctx,
		`INSERT INTO quest_cases (quest_id, case_id, added_at) VALUES (?, ?, ?)
		 ON CONFLICT (quest_id, case_id) DO NOTHING`,
		questID, caseID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("sqldb: adding case %s to quest %s: %w", caseID, questID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqldb: checking rows affected: %w", err)
	}
	return n > 0, nil
}

func (db *DB) RemoveQuestCase(ctx context.Context, questID, caseID string) (bool, error) {
	result, err := db.exec(ctx,
		`DELETE FROM quest_cases WHERE quest_id = ? AND case_id = ?`, questID, caseID,
	)
	if err != nil {
		return false, fmt.Errorf("sqldb: removing case %s from quest %s: %w", caseID, questID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqldb: checking rows affected: %w", err)
	}
	return n > 0, nil
}

// ListQuestCases returns the quest's cases in the order they were added.
func (db *DB) ListQuestCases(ctx context.Context, questID string) ([]model.Case, error) {
	return db.listCases(ctx,
		`SELECT `+caseColumns+` FROM quest_cases qc
		 JOIN cases c ON c.id = qc.case_id
		 WHERE qc.quest_id = ?
		 ORDER BY qc.added_at, c.id`, questID)
}

func (db *DB) listCases(ctx context.Context, query string, args ...any) ([]model.Case, error) {
	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing cases: %w", err)
	}
	defer rows.Close()

	cases := []model.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("sqldb: scanning case: %w", err)
		}
		cases = append(cases, *c)
	}
	return cases, rows.Err()
}
