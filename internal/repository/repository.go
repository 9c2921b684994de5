// Package repository declares the storage interfaces the services depend on.
//
// Services never see *sql.DB. They receive a Store, and every mutation
// that touches more than one row runs inside Store.InTx so it commits or
// rolls back as a unit.
package repository

import (
	"context"

	"github.com/mundorum/harena/internal/model"
)

type InstitutionRepository interface {
	CreateInstitution(ctx context.Context, inst *model.Institution) error
	GetInstitution(ctx context.Context, id string) (*model.Institution, error)
	ListInstitutions(ctx context.Context) ([]model.Institution, error)
	AddDomain(ctx context.Context, domain *model.InstitutionDomain) error
	// GetInstitutionByDomain matches the domain name exactly.
	GetInstitutionByDomain(ctx context.Context, domain string) (*model.Institution, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	GetPerson(ctx context.Context, userID string) (*model.Person, error)
	// SavePerson inserts the person or overwrites every mutable field.
	SavePerson(ctx context.Context, person *model.Person) error
}

type SessionRepository interface {
	// GetOrCreateSession returns the user's session, creating it with key
	// when none exists. An existing session keeps its original key.
	GetOrCreateSession(ctx context.Context, userID, key string) (*model.Session, error)
	GetSession(ctx context.Context, key string) (*model.Session, error)
	DeleteSession(ctx context.Context, userID string) error
}

type TokenRepository interface {
	CreateProfessorToken(ctx context.Context, token *model.ProfessorInviteToken) error
	GetProfessorToken(ctx context.Context, value string) (*model.ProfessorInviteToken, error)
	ListProfessorTokens(ctx context.Context, institutionID string) ([]model.ProfessorInviteToken, error)
	// AddProfessorTokenRedemption is idempotent per (token, person).
	AddProfessorTokenRedemption(ctx context.Context, tokenID, personID string) error

	CreateViewerToken(ctx context.Context, token *model.QuestViewerInviteToken) error
	GetViewerToken(ctx context.Context, value string) (*model.QuestViewerInviteToken, error)
	ListViewerTokens(ctx context.Context, questID string) ([]model.QuestViewerInviteToken, error)
}

type QuestRepository interface {
	CreateQuest(ctx context.Context, quest *model.Quest) error
	GetQuest(ctx context.Context, id string) (*model.Quest, error)
	// ListVisibleQuests returns every quest the person can view, in
	// creation order, with institution and owner names resolved.
	ListVisibleQuests(ctx context.Context, person *model.Person) ([]model.QuestSummary, error)
	// AddMember is idempotent per (quest, kind, person).
	AddMember(ctx context.Context, questID string, kind model.AccessKind, personID string) error
	Membership(ctx context.Context, questID, personID string) (model.Membership, error)
	ListMembers(ctx context.Context, questID string, kind model.AccessKind) ([]model.QuestMember, error)
}

type CaseRepository interface {
	CreateCase(ctx context.Context, c *model.Case) error
	GetCase(ctx context.Context, id string) (*model.Case, error)
	ListCasesByOwner(ctx context.Context, ownerID string) ([]model.Case, error)
	SetCaseImage(ctx context.Context, caseID, ref string) error

	// AddQuestCase reports false when the association already existed.
	AddQuestCase(ctx context.Context, questID, caseID string) (bool, error)
	// RemoveQuestCase reports false when there was nothing to remove.
	RemoveQuestCase(ctx context.Context, questID, caseID string) (bool, error)
	ListQuestCases(ctx context.Context, questID string) ([]model.Case, error)
}

// Store is the full storage surface plus transactions.
type Store interface {
	InstitutionRepository
	UserRepository
	SessionRepository
	TokenRepository
	QuestRepository
	CaseRepository

	// InTx runs fn with a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	// Calling InTx on a Store that is already transactional reuses the
	// open transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}
