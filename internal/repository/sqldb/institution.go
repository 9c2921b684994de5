package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/model"
	"github.com/mundorum/harena/internal/repository"
)

var _ repository.InstitutionRepository = (*DB)(nil)

// CreateInstitution inserts inst, assigning ID and CreatedAt.
// A duplicate name is reported as apperror.ErrConflict.
func (db *DB) CreateInstitution(ctx context.Context, inst *model.Institution) error {
	inst.ID = xid.New().String()
	inst.CreatedAt = time.Now().UTC()

	_, err := db.exec(ctx,
		`INSERT INTO institutions (id, name, created_at) VALUES (?, ?, ?)`,
		inst.ID, inst.Name, inst.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("institution", inst.Name)
		}
		return fmt.Errorf("sqldb: inserting institution %q: %w", inst.Name, err)
	}
	return nil
}

func (db *DB) GetInstitution(ctx context.Context, id string) (*model.Institution, error) {
	var inst model.Institution
	err := db.queryRow(ctx,
		`SELECT id, name, created_at FROM institutions WHERE id = ?`, id,
	).Scan(&inst.ID, &inst.Name, &inst.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "institution", id)
	}
	return &inst, nil
}

func (db *DB) ListInstitutions(ctx context.Context) ([]model.Institution, error) {
	rows, err := db.query(ctx,
		`SELECT id, name, created_at FROM institutions ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing institutions: %w", err)
	}
	defer rows.Close()

	institutions := []model.Institution{}
	for rows.Next() {
		var inst model.Institution
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqldb: scanning institution: %w", err)
		}
		institutions = append(institutions, inst)
	}
	return institutions, rows.Err()
}

// AddDomain registers an email domain for an institution.
func (db *DB) AddDomain(ctx context.Context, domain *model.InstitutionDomain) error {
	domain.ID = xid.New().String()

	_, err := db.exec(ctx,
		`INSERT INTO institution_domains (id, name, institution_id) VALUES (?, ?, ?)`,
		domain.ID, domain.Name, domain.InstitutionID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("domain", domain.Name)
		}
		return fmt.Errorf("sqldb: inserting domain %q: %w", domain.Name, err)
	}
	return nil
}

func (db *DB) GetInstitutionByDomain(ctx context.Context, domain string) (*model.Institution, error) {
	var inst model.Institution
	err := db.queryRow(ctx,
		`SELECT i.id, i.name, i.created_at
		 FROM institution_domains d
		 JOIN institutions i ON i.id = d.institution_id
		 WHERE d.name = ?`, domain,
	).Scan(&inst.ID, &inst.Name, &inst.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "institution for domain", domain)
	}
	return &inst, nil
}
