package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/model"
	"github.com/mundorum/harena/internal/repository"
)

var _ repository.TokenRepository = (*DB)(nil)

// Token values are bearer secrets. Lookups that miss return a NotFound
// error whose message does not contain the value.

func (db *DB) CreateProfessorToken(ctx context.Context, t *model.ProfessorInviteToken) error {
	t.ID = xid.New().String()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := db.exec(ctx,
		`INSERT INTO professor_invite_tokens (id, token, institution_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Token, t.InstitutionID, t.CreatedAt.UTC(), t.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqldb: inserting professor token: %w", err)
	}
	return nil
}

func (db *DB) GetProfessorToken(ctx context.Context, value string) (*model.ProfessorInviteToken, error) {
	var t model.ProfessorInviteToken
	err := db.queryRow(ctx,
		`SELECT id, token, institution_id, created_at, expires_at
		 FROM professor_invite_tokens WHERE token = ?`, value,
	).Scan(&t.ID, &t.Token, &t.InstitutionID, &t.CreatedAt, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage("invite token not found")
		}
		return nil, fmt.Errorf("sqldb: getting professor token: %w", err)
	}
	return &t, nil
}

// ListProfessorTokens returns the institution's tokens, newest first, each
// with its redeemed-by set.
func (db *DB) ListProfessorTokens(ctx context.Context, institutionID string) ([]model.ProfessorInviteToken, error) {
	rows, err := db.query(ctx,
		`SELECT id, token, institution_id, created_at, expires_at
		 FROM professor_invite_tokens
		 WHERE institution_id = ?
		 ORDER BY created_at DESC, id DESC`, institutionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing professor tokens: %w", err)
	}

	tokens := []model.ProfessorInviteToken{}
	for rows.Next() {
		var t model.ProfessorInviteToken
		if err := rows.Scan(&t.ID, &t.Token, &t.InstitutionID, &t.CreatedAt, &t.ExpiresAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqldb: scanning professor token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqldb: listing professor tokens: %w", err)
	}
	// Close before the follow-up queries: an in-memory database has a
	// single connection.
	rows.Close()

	for i := range tokens {
		redeemed, err := db.professorTokenRedemptions(ctx, tokens[i].ID)
		if err != nil {
			return nil, err
		}
		tokens[i].RedeemedBy = redeemed
	}
	return tokens, nil
}

func (db *DB) professorTokenRedemptions(ctx context.Context, tokenID string) ([]string, error) {
	rows, err := db.query(ctx,
		`SELECT person_id FROM professor_token_redemptions
		 WHERE token_id = ? ORDER BY redeemed_at, person_id`, tokenID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing redemptions of %s: %w", tokenID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqldb: scanning redemption: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) AddProfessorTokenRedemption(ctx context.Context, tokenID, personID string) error {
	_, err := db.exec(ctx,
		`INSERT INTO professor_token_redemptions (token_id, person_id, redeemed_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (token_id, person_id) DO NOTHING`,
		tokenID, personID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqldb: recording redemption of %s by %s: %w", tokenID, personID, err)
	}
	return nil
}

func (db *DB) CreateViewerToken(ctx context.Context, t *model.QuestViewerInviteToken) error {
	t.ID = xid.New().String()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := db.exec(ctx,
		`INSERT INTO quest_viewer_tokens (id, token, quest_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Token, t.QuestID, t.CreatedAt.UTC(), t.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqldb: inserting viewer token: %w", err)
	}
	return nil
}

func (db *DB) GetViewerToken(ctx context.Context, value string) (*model.QuestViewerInviteToken, error) {
	var t model.QuestViewerInviteToken
	err := db.queryRow(ctx,
		`SELECT id, token, quest_id, created_at, expires_at
		 FROM quest_viewer_tokens WHERE token = ?`, value,
	).Scan(&t.ID, &t.Token, &t.QuestID, &t.CreatedAt, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage("invalid token")
		}
		return nil, fmt.Errorf("sqldb: getting viewer token: %w", err)
	}
	return &t, nil
}

func (db *DB) ListViewerTokens(ctx context.Context, questID string) ([]model.QuestViewerInviteToken, error) {
	rows, err := db.query(ctx,
		`SELECT id, token, quest_id, created_at, expires_at
		 FROM quest_viewer_tokens
		 WHERE quest_id = ?
		 ORDER BY created_at DESC, id DESC`, questID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing viewer tokens: %w", err)
	}
	defer rows.Close()

	tokens := []model.QuestViewerInviteToken{}
	for rows.Next() {
		var t model.QuestViewerInviteToken
		if err := rows.Scan(&t.ID, &t.Token, &t.QuestID, &t.CreatedAt, &t.ExpiresAt); err != nil {
			return nil, fmt.Errorf("sqldb: scanning viewer token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
