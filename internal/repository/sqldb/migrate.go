package sqldb

import (
	"fmt"
)

// schema is applied in order on every start. Each statement is idempotent
// (IF NOT EXISTS) and uses only types both SQLite and PostgreSQL accept.
//
// TIMESTAMP columns always hold UTC. The modernc driver parses columns
// declared TIMESTAMP back into time.Time, so the same Scan code works on
// both backends.
var schema = []struct {
	name string
	stmt string
}{
	{"institutions", `
		CREATE TABLE IF NOT EXISTS institutions (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL
		)`},
	{"institution_domains", `
		CREATE TABLE IF NOT EXISTS institution_domains (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL UNIQUE,
			institution_id TEXT NOT NULL REFERENCES institutions(id)
		)`},
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			username   TEXT NOT NULL UNIQUE,
			email      TEXT NOT NULL UNIQUE,
			first_name TEXT NOT NULL DEFAULT '',
			last_name  TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`},
	{"persons", `
		CREATE TABLE IF NOT EXISTS persons (
			user_id        TEXT PRIMARY KEY REFERENCES users(id),
			institution_id TEXT REFERENCES institutions(id),
			role           TEXT NOT NULL DEFAULT 'student',
			google_id      TEXT NOT NULL DEFAULT '',
			avatar_url     TEXT NOT NULL DEFAULT '',
			updated_at     TIMESTAMP NOT NULL
		)`},
	{"sessions", `
		CREATE TABLE IF NOT EXISTS sessions (
			session_key TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL UNIQUE REFERENCES users(id),
			created_at  TIMESTAMP NOT NULL
		)`},
	{"professor_invite_tokens", `
		CREATE TABLE IF NOT EXISTS professor_invite_tokens (
			id             TEXT PRIMARY KEY,
			token          TEXT NOT NULL UNIQUE,
			institution_id TEXT NOT NULL REFERENCES institutions(id),
			created_at     TIMESTAMP NOT NULL,
			expires_at     TIMESTAMP NOT NULL
		)`},
	{"idx_professor_tokens_institution", `
		CREATE INDEX IF NOT EXISTS idx_professor_tokens_institution
			ON professor_invite_tokens(institution_id)`},
	{"professor_token_redemptions", `
		CREATE TABLE IF NOT EXISTS professor_token_redemptions (
			token_id    TEXT NOT NULL REFERENCES professor_invite_tokens(id),
			person_id   TEXT NOT NULL REFERENCES persons(user_id),
			redeemed_at TIMESTAMP NOT NULL,
			PRIMARY KEY (token_id, person_id)
		)`},
	{"quests", `
		CREATE TABLE IF NOT EXISTS quests (
			id                     TEXT PRIMARY KEY,
			name                   TEXT NOT NULL,
			institution_id         TEXT NOT NULL REFERENCES institutions(id),
			owner_id               TEXT NOT NULL REFERENCES persons(user_id),
			visible_to_institution BOOLEAN NOT NULL DEFAULT FALSE,
			created_at             TIMESTAMP NOT NULL
		)`},
	{"idx_quests_owner", `
		CREATE INDEX IF NOT EXISTS idx_quests_owner ON quests(owner_id)`},
	{"idx_quests_institution", `
		CREATE INDEX IF NOT EXISTS idx_quests_institution
			ON quests(institution_id, visible_to_institution)`},
	{"quest_members", `
		CREATE TABLE IF NOT EXISTS quest_members (
			quest_id  TEXT NOT NULL REFERENCES quests(id),
			kind      TEXT NOT NULL,
			person_id TEXT NOT NULL REFERENCES persons(user_id),
			added_at  TIMESTAMP NOT NULL,
			PRIMARY KEY (quest_id, kind, person_id)
		)`},
	{"idx_quest_members_person", `
		CREATE INDEX IF NOT EXISTS idx_quest_members_person ON quest_members(person_id)`},
	{"quest_viewer_tokens", `
		CREATE TABLE IF NOT EXISTS quest_viewer_tokens (
			id         TEXT PRIMARY KEY,
			token      TEXT NOT NULL UNIQUE,
			quest_id   TEXT NOT NULL REFERENCES quests(id),
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`},
	{"cases", `
		CREATE TABLE IF NOT EXISTS cases (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			content          TEXT NOT NULL DEFAULT '',
			answer           TEXT NOT NULL DEFAULT '',
			possible_answers TEXT NOT NULL DEFAULT '[]',
			owner_id         TEXT NOT NULL REFERENCES persons(user_id),
			complexity       TEXT NOT NULL DEFAULT 'undergraduate',
			specialty        TEXT,
			created_at       TIMESTAMP NOT NULL
		)`},
	{"idx_cases_owner", `
		CREATE INDEX IF NOT EXISTS idx_cases_owner ON cases(owner_id)`},
	{"quest_cases", `
		CREATE TABLE IF NOT EXISTS quest_cases (
			quest_id TEXT NOT NULL REFERENCES quests(id),
			case_id  TEXT NOT NULL REFERENCES cases(id),
			added_at TIMESTAMP NOT NULL,
			UNIQUE (quest_id, case_id)
		)`},
}

// migrate runs the schema and the column additions that came later.
func (db *DB) migrate() error {
	for _, m := range schema {
		if _, err := db.conn.Exec(m.stmt); err != nil {
			return fmt.Errorf("creating %s: %w", m.name, err)
		}
	}

	// Case images were added after the first release.
	if err := db.addColumnIfNotExists("cases", "image_ref", "TEXT"); err != nil {
		return fmt.Errorf("adding image_ref to cases: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already
// exist, so ALTER TABLE migrations are safe to run on every start.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	if db.dialect == DialectPostgres {
		_, err := db.conn.Exec(fmt.Sprintf(
			`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s`, table, column, definition,
		))
		return err
	}

	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
