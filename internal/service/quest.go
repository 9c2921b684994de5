package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mundorum/harena/internal/access"
	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/model"
	"github.com/mundorum/harena/internal/repository"
)

// MaxQuestNameLength bounds Quest.Name.
const MaxQuestNameLength = 200

// QuestService holds the rules for quests, their members and the cases
// attached to them. Every check goes through the access evaluator; this
// file never compares owner ids itself except for AddAuthor, which is
// reserved to the owner.
type QuestService struct {
	store  repository.Store
	access *access.Evaluator
	logger *slog.Logger
}

func NewQuestService(store repository.Store, evaluator *access.Evaluator, opts ...Option) *QuestService {
	o := buildOptions(opts)
	return &QuestService{store: store, access: evaluator, logger: o.logger}
}

// QuestDetail is a quest together with what the caller may do with it.
type QuestDetail struct {
	model.Quest
	Permissions access.Permissions `json:"permissions"`
}

// AddCaseResult reports whether AddCase created the association. Added
// is false when the case was already part of the quest.
type AddCaseResult struct {
	Added bool
	Quest *model.Quest
	Case  *model.Case
}

// RemoveCaseResult reports whether RemoveCase deleted an association.
type RemoveCaseResult struct {
	Removed bool
	Quest   *model.Quest
	Case    *model.Case
}

// Create makes a new quest at the actor's institution. The owner gets
// viewer and author membership in the same transaction.
func (s *QuestService) Create(ctx context.Context, actorID, name string, visibleToInstitution bool) (*model.Quest, error) {
	_, person, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	if !person.IsProfessor() {
		return nil, apperror.Forbidden("only professors can create quests")
	}
	if person.InstitutionID == nil {
		return nil, apperror.ValidationFailed("institution", "you must belong to an institution to create quests")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if len(name) > MaxQuestNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be at most %d characters", MaxQuestNameLength))
	}

	quest := &model.Quest{
		Name:                 name,
		InstitutionID:        *person.InstitutionID,
		OwnerID:              person.UserID,
		VisibleToInstitution: visibleToInstitution,
	}
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.CreateQuest(ctx, quest); err != nil {
			return err
		}
		if err := tx.AddMember(ctx, quest.ID, model.AccessViewer, person.UserID); err != nil {
			return err
		}
		return tx.AddMember(ctx, quest.ID, model.AccessAuthor, person.UserID)
	})
	if err != nil {
		return nil, fmt.Errorf("service/quest: creating quest: %w", err)
	}

	s.logger.Info("quest created",
		slog.String("questID", quest.ID),
		slog.String("ownerID", quest.OwnerID),
	)
	return quest, nil
}

// Get returns a quest the actor can view.
func (s *QuestService) Get(ctx context.Context, actorID, questID string) (*QuestDetail, error) {
	_, person, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	quest, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		return nil, err
	}

	perms, err := s.access.Permissions(ctx, person, quest)
	if err != nil {
		return nil, err
	}
	if !perms.View {
		return nil, apperror.Forbidden("you do not have permission to view this quest")
	}
	return &QuestDetail{Quest: *quest, Permissions: perms}, nil
}

// ListVisible returns every quest the actor can view.
func (s *QuestService) ListVisible(ctx context.Context, actorID string) ([]model.QuestSummary, error) {
	_, person, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	quests, err := s.store.ListVisibleQuests(ctx, person)
	if err != nil {
		return nil, fmt.Errorf("service/quest: listing quests: %w", err)
	}
	if quests == nil {
		quests = []model.QuestSummary{}
	}
	return quests, nil
}

// AddAuthor grants another person author access. Only the owner decides
// who co-authors a quest.
func (s *QuestService) AddAuthor(ctx context.Context, actorID, questID, personID string) error {
	_, actor, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return err
	}
	quest, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		return err
	}
	if !access.IsOwner(actor, quest) {
		return apperror.Forbidden("only the owner can add authors")
	}
	if strings.TrimSpace(personID) == "" {
		return apperror.ValidationFailed("person_id", "person_id is required")
	}
	if _, err := s.store.GetPerson(ctx, personID); err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		return tx.AddMember(ctx, questID, model.AccessAuthor, personID)
	})
	if err != nil {
		return fmt.Errorf("service/quest: adding author: %w", err)
	}

	s.logger.Info("author added to quest",
		slog.String("questID", questID),
		slog.String("personID", personID),
	)
	return nil
}

// ListCases returns the quest's cases in the order they were added.
func (s *QuestService) ListCases(ctx context.Context, actorID, questID string) ([]model.Case, error) {
	_, person, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	quest, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireView(ctx, person, quest); err != nil {
		return nil, err
	}

	cases, err := s.store.ListQuestCases(ctx, questID)
	if err != nil {
		return nil, fmt.Errorf("service/quest: listing cases: %w", err)
	}
	if cases == nil {
		cases = []model.Case{}
	}
	return cases, nil
}

// AddCase attaches a case to a quest. Adding a case that is already
// attached is not an error: the result says Added=false and nothing
// changes.
func (s *QuestService) AddCase(ctx context.Context, actorID, questID, caseID string) (*AddCaseResult, error) {
	ctx, span := tracer.Start(ctx, "QuestService.AddCase", trace.WithAttributes(
		attribute.String("quest.id", questID),
		attribute.String("case.id", caseID),
	))
	defer span.End()

	quest, c, err := s.editableQuestAndCase(ctx, actorID, questID, caseID)
	if err != nil {
		return nil, err
	}

	var added bool
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		added, err = tx.AddQuestCase(ctx, questID, caseID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service/quest: adding case: %w", err)
	}

	span.SetAttributes(attribute.Bool("quest_case.added", added))
	if added {
		s.logger.Info("case added to quest",
			slog.String("questID", questID),
			slog.String("caseID", caseID),
		)
	}
	return &AddCaseResult{Added: added, Quest: quest, Case: c}, nil
}

// RemoveCase detaches a case. Removing a case that is not attached is a
// successful no-op.
func (s *QuestService) RemoveCase(ctx context.Context, actorID, questID, caseID string) (*RemoveCaseResult, error) {
	quest, c, err := s.editableQuestAndCase(ctx, actorID, questID, caseID)
	if err != nil {
		return nil, err
	}

	var removed bool
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		removed, err = tx.RemoveQuestCase(ctx, questID, caseID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service/quest: removing case: %w", err)
	}

	if removed {
		s.logger.Info("case removed from quest",
			slog.String("questID", questID),
			slog.String("caseID", caseID),
		)
	}
	return &RemoveCaseResult{Removed: removed, Quest: quest, Case: c}, nil
}

// editableQuestAndCase loads both entities and checks edit permission.
// A missing quest or case is NotFound before permissions are considered.
func (s *QuestService) editableQuestAndCase(ctx context.Context, actorID, questID, caseID string) (*model.Quest, *model.Case, error) {
	_, person, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(caseID) == "" {
		return nil, nil, apperror.ValidationFailed("case_id", "case_id is required")
	}

	quest, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil, apperror.NotFound("case", caseID)
		}
		return nil, nil, err
	}

	if err := s.access.RequireEdit(ctx, person, quest); err != nil {
		return nil, nil, err
	}
	return quest, c, nil
}
