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

var (
	_ repository.UserRepository    = (*DB)(nil)
	_ repository.SessionRepository = (*DB)(nil)
)

// CreateUser inserts the identity record. Username and email are unique;
// a clash on either is reported as apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = time.Now().UTC()

	_, err := db.exec(ctx,
		`INSERT INTO users (id, username, email, first_name, last_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.FirstName, user.LastName, user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Username)
		}
		return fmt.Errorf("sqldb: inserting user %q: %w", user.Username, err)
	}
	return nil
}

const userColumns = `id, username, email, first_name, last_name, created_at`

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, "user", id)
	}
	return u, nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		return nil, notFoundOr(err, "user with email", email)
	}
	return u, nil
}

func (db *DB) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int
	err := db.queryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ?`, username,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqldb: checking username %q: %w", username, err)
	}
	return count > 0, nil
}

func (db *DB) GetPerson(ctx context.Context, userID string) (*model.Person, error) {
	var (
		p    model.Person
		inst sql.NullString
		role string
	)
	err := db.queryRow(ctx,
		`SELECT user_id, institution_id, role, google_id, avatar_url, updated_at
		 FROM persons WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &inst, &role, &p.GoogleID, &p.AvatarURL, &p.UpdatedAt)
	if err != nil {
		return nil, notFoundOr(err, "person", userID)
	}
	p.InstitutionID = nullable(inst)
	p.Role = model.Role(role)
	return &p, nil
}

// SavePerson upserts on user_id. Concurrent saves are last-write-wins.
func (db *DB) SavePerson(ctx context.Context, person *model.Person) error {
	if person.Role == "" {
		person.Role = model.RoleStudent
	}
	person.UpdatedAt = time.Now().UTC()

	_, err := db.exec(ctx,
		`INSERT INTO persons (user_id, institution_id, role, google_id, avatar_url, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			institution_id = excluded.institution_id,
			role           = excluded.role,
			google_id      = excluded.google_id,
			avatar_url     = excluded.avatar_url,
			updated_at     = excluded.updated_at`,
		person.UserID, person.InstitutionID, string(person.Role),
		person.GoogleID, person.AvatarURL, person.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqldb: saving person %s: %w", person.UserID, err)
	}
	return nil
}

// GetOrCreateSession implements repository.SessionRepository. The insert
// is ON CONFLICT DO NOTHING so two racing sign-ins both end up reading
// the single surviving row.
func (db *DB) GetOrCreateSession(ctx context.Context, userID, key string) (*model.Session, error) {
	_, err := db.exec(ctx,
		`INSERT INTO sessions (session_key, user_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		key, userID, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqldb: creating session for %s: %w", userID, err)
	}

	var s model.Session
	err = db.queryRow(ctx,
		`SELECT session_key, user_id, created_at FROM sessions WHERE user_id = ?`, userID,
	).Scan(&s.Key, &s.UserID, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqldb: reading session for %s: %w", userID, err)
	}
	return &s, nil
}

func (db *DB) GetSession(ctx context.Context, key string) (*model.Session, error) {
	var s model.Session
	err := db.queryRow(ctx,
		`SELECT session_key, user_id, created_at FROM sessions WHERE session_key = ?`, key,
	).Scan(&s.Key, &s.UserID, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// the key is a credential; keep it out of the message
			return nil, apperror.NotFoundMessage("session not found")
		}
		return nil, fmt.Errorf("sqldb: getting session: %w", err)
	}
	return &s, nil
}

func (db *DB) DeleteSession(ctx context.Context, userID string) error {
	if _, err := db.exec(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqldb: deleting session for %s: %w", userID, err)
	}
	return nil
}
