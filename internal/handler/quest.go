package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mundorum/harena/internal/model"
	"github.com/mundorum/harena/internal/service"
)

// Quests is the part of service.QuestService the quest handler needs.
type Quests interface {
	Create(ctx context.Context, actorID, name string, visibleToInstitution bool) (*model.Quest, error)
	Get(ctx context.Context, actorID, questID string) (*service.QuestDetail, error)
	ListVisible(ctx context.Context, actorID string) ([]model.QuestSummary, error)
	AddAuthor(ctx context.Context, actorID, questID, personID string) error
	ListCases(ctx context.Context, actorID, questID string) ([]model.Case, error)
	AddCase(ctx context.Context, actorID, questID, caseID string) (*service.AddCaseResult, error)
	RemoveCase(ctx context.Context, actorID, questID, caseID string) (*service.RemoveCaseResult, error)
}

// ViewerInvites is the viewer-token half of service.InviteService.
type ViewerInvites interface {
	IssueViewerToken(ctx context.Context, actorID, questID string, lifetime time.Duration) (*model.QuestViewerInviteToken, error)
	ListViewerTokens(ctx context.Context, actorID, questID string) ([]service.ViewerTokenStatus, error)
}

// QuestHandler serves /api/quests and the quest-case association.
type QuestHandler struct {
	quests  Quests
	invites ViewerInvites
	logger  *slog.Logger
}

func NewQuestHandler(quests Quests, invites ViewerInvites, logger *slog.Logger) *QuestHandler {
	return &QuestHandler{quests: quests, invites: invites, logger: logger}
}

type createQuestRequest struct {
	Name                 string `json:"name"`
	VisibleToInstitution bool   `json:"visible_to_institution"`
}

type addAuthorRequest struct {
	PersonID string `json:"person_id"`
}

type addCaseRequest struct {
	CaseID string `json:"case_id"`
}

type issueTokenRequest struct {
	// ExpiresInDays overrides the default 30-day lifetime.
	ExpiresInDays int `json:"expires_in_days"`
}

// HandleList returns every quest the caller can see.
//
// HTTP: GET /api/quests
func (h *QuestHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	quests, err := h.quests.ListVisible(r.Context(), actorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quests)
}

// HandleCreate creates a quest owned by the caller.
//
// HTTP: POST /api/quests
// Body: {"name": "...", "visible_to_institution": true}
func (h *QuestHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createQuestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	quest, err := h.quests.Create(r.Context(), actorID(r), req.Name, req.VisibleToInstitution)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quest)
}

// HandleGet returns one quest with the caller's permissions on it.
//
// HTTP: GET /api/quests/{questID}
func (h *QuestHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	detail, err := h.quests.Get(r.Context(), actorID(r), chi.URLParam(r, "questID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleAddAuthor grants author membership to another person.
//
// HTTP: POST /api/quests/{questID}/authors
// Body: {"person_id": "..."}
func (h *QuestHandler) HandleAddAuthor(w http.ResponseWriter, r *http.Request) {
	var req addAuthorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	questID := chi.URLParam(r, "questID")
	if err := h.quests.AddAuthor(r.Context(), actorID(r), questID, req.PersonID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: "author added"})
}

// HandleListCases lists the cases of a quest.
//
// HTTP: GET /api/quests/{questID}/cases
func (h *QuestHandler) HandleListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.quests.ListCases(r.Context(), actorID(r), chi.URLParam(r, "questID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cases)
}

// HandleAddCase associates a case with a quest.
//
// HTTP: POST /api/quests/{questID}/cases
// Body: {"case_id": "..."}
//
// A case that is already part of the quest is not an error: the answer is
// 200 with an "info" message instead of 201 with "success".
func (h *QuestHandler) HandleAddCase(w http.ResponseWriter, r *http.Request) {
	var req addCaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.quests.AddCase(r.Context(), actorID(r), chi.URLParam(r, "questID"), req.CaseID)
	if err != nil {
		writeError(w, err)
		return
	}

	if !res.Added {
		writeJSON(w, http.StatusOK, MessageResponse{
			Info: fmt.Sprintf("Case '%s' is already in quest '%s'.", res.Case.Name, res.Quest.Name),
		})
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{
		Success: fmt.Sprintf("Case '%s' added to quest '%s'.", res.Case.Name, res.Quest.Name),
	})
}

// HandleRemoveCase removes a case from a quest. Removing a case that was
// not in the quest succeeds as well.
//
// HTTP: DELETE /api/quests/{questID}/cases/{caseID}
func (h *QuestHandler) HandleRemoveCase(w http.ResponseWriter, r *http.Request) {
	res, err := h.quests.RemoveCase(r.Context(), actorID(r), chi.URLParam(r, "questID"), chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{
		Success: fmt.Sprintf("Case '%s' removed from quest '%s'.", res.Case.Name, res.Quest.Name),
	})
}

// HandleIssueViewerToken creates an invite token that grants view access
// to the quest.
//
// HTTP: POST /api/quests/{questID}/viewer-tokens
// Body: {"expires_in_days": 30} (optional)
func (h *QuestHandler) HandleIssueViewerToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	lifetime := time.Duration(req.ExpiresInDays) * 24 * time.Hour
	token, err := h.invites.IssueViewerToken(r.Context(), actorID(r), chi.URLParam(r, "questID"), lifetime)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

// HandleListViewerTokens lists the quest's viewer tokens with their
// current validity.
//
// HTTP: GET /api/quests/{questID}/viewer-tokens
func (h *QuestHandler) HandleListViewerTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.invites.ListViewerTokens(r.Context(), actorID(r), chi.URLParam(r, "questID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}
