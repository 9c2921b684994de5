package sqldb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/mundorum/harena/internal/model"
	"github.com/mundorum/harena/internal/repository"
)

var _ repository.QuestRepository = (*DB)(nil)

// CreateQuest inserts the quest only. Provisioning the owner's memberships
// is the caller's job, inside the same transaction.
func (db *DB) CreateQuest(ctx context.Context, q *model.Quest) error {
	q.ID = xid.New().String()
	q.CreatedAt = time.Now().UTC()

	_, err := db.exec(ctx,
		`INSERT INTO quests (id, name, institution_id, owner_id, visible_to_institution, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.Name, q.InstitutionID, q.OwnerID, q.VisibleToInstitution, q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqldb: inserting quest %q: %w", q.Name, err)
	}
	return nil
}

func (db *DB) GetQuest(ctx context.Context, id string) (*model.Quest, error) {
	var q model.Quest
	err := db.queryRow(ctx,
		`SELECT id, name, institution_id, owner_id, visible_to_institution, created_at
		 FROM quests WHERE id = ?`, id,
	).Scan(&q.ID, &q.Name, &q.InstitutionID, &q.OwnerID, &q.VisibleToInstitution, &q.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "quest", id)
	}
	return &q, nil
}

// ListVisibleQuests evaluates the view rule in one query:
//
//	owner
//	OR (visible_to_institution AND same institution)
//	OR any membership row (viewer or author)
//
// A person without an institution binds NULL for the institution, which
// never compares equal, so only the other two branches can match.
func (db *DB) ListVisibleQuests(ctx context.Context, person *model.Person) ([]model.QuestSummary, error) {
	rows, err := db.query(ctx,
		`SELECT q.id, q.name, q.institution_id, q.owner_id, q.visible_to_institution, q.created_at,
		        i.name, u.first_name, u.last_name
		 FROM quests q
		 JOIN institutions i ON i.id = q.institution_id
		 JOIN users u ON u.id = q.owner_id
		 WHERE q.owner_id = ?
		    OR (q.visible_to_institution = ? AND q.institution_id = ?)
		    OR EXISTS (
		        SELECT 1 FROM quest_members m
		        WHERE m.quest_id = q.id AND m.person_id = ?
		    )
		 ORDER BY q.created_at, q.id`,
		person.UserID, true, person.InstitutionID, person.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing visible quests for %s: %w", person.UserID, err)
	}
	defer rows.Close()

	quests := []model.QuestSummary{}
	for rows.Next() {
		var (
			s                   model.QuestSummary
			firstName, lastName string
		)
		err := rows.Scan(
			&s.ID, &s.Name, &s.InstitutionID, &s.OwnerID, &s.VisibleToInstitution, &s.CreatedAt,
			&s.InstitutionName, &firstName, &lastName,
		)
		if err != nil {
			return nil, fmt.Errorf("sqldb: scanning quest: %w", err)
		}
		s.OwnerName = strings.TrimSpace(firstName + " " + lastName)
		quests = append(quests, s)
	}
	return quests, rows.Err()
}

func (db *DB) AddMember(ctx context.Context, questID string, kind model.AccessKind, personID string) error {
	_, err := db.exec(ctx,
		`INSERT INTO quest_members (quest_id, kind, person_id, added_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (quest_id, kind, person_id) DO NOTHING`,
		questID, string(kind), personID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqldb: adding %s to %s: %w",
			personID, model.GroupName(questID, kind), err)
	}
	return nil
}

// Membership reads both groups with one primary-key prefix lookup.
func (db *DB) Membership(ctx context.Context, questID, personID string) (model.Membership, error) {
	var m model.Membership

	rows, err := db.query(ctx,
		`SELECT kind FROM quest_members WHERE quest_id = ? AND person_id = ?`,
		questID, personID,
	)
	if err != nil {
		return m, fmt.Errorf("sqldb: reading membership of %s in %s: %w", personID, questID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return m, fmt.Errorf("sqldb: scanning membership: %w", err)
		}
		switch model.AccessKind(kind) {
		case model.AccessViewer:
			m.Viewer = true
		case model.AccessAuthor:
			m.Author = true
		}
	}
	return m, rows.Err()
}

func (db *DB) ListMembers(ctx context.Context, questID string, kind model.AccessKind) ([]model.QuestMember, error) {
	rows, err := db.query(ctx,
		`SELECT quest_id, kind, person_id, added_at FROM quest_members
		 WHERE quest_id = ? AND kind = ?
		 ORDER BY added_at, person_id`,
		questID, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing %s: %w", model.GroupName(questID, kind), err)
	}
	defer rows.Close()

	members := []model.QuestMember{}
	for rows.Next() {
		var (
			m model.QuestMember
			k string
		)
		if err := rows.Scan(&m.QuestID, &k, &m.PersonID, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("sqldb: scanning member: %w", err)
		}
		m.Kind = model.AccessKind(k)
		members = append(members, m)
	}
	return members, rows.Err()
}
