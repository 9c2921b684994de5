package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mundorum/harena/internal/service"
)

// Redeemer is the redemption half of service.InviteService.
type Redeemer interface {
	RedeemViewerToken(ctx context.Context, userID, value string) (*service.ViewerRedemption, error)
	RedeemProfessorToken(ctx context.Context, userID, value string) (*service.ProfessorRedemption, error)
}

// TokenHandler redeems invite tokens for the signed-in user.
type TokenHandler struct {
	redeemer Redeemer
	logger   *slog.Logger
}

func NewTokenHandler(redeemer Redeemer, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{redeemer: redeemer, logger: logger}
}

type redeemRequest struct {
	Token string `json:"token"`
}

// HandleUseQuestToken makes the caller a viewer of the token's quest.
//
// HTTP: POST /api/use-quest-token
// Body: {"token": "..."}
//
// Missing and expired tokens are 400, unknown tokens 404.
func (h *TokenHandler) HandleUseQuestToken(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.redeemer.RedeemViewerToken(r.Context(), actorID(r), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{
		Success: fmt.Sprintf("%s can now view quest '%s'.", res.Username, res.Quest.Name),
	})
}

// HandleUseProfessorToken makes the caller a professor of the token's
// institution without signing in again.
//
// HTTP: POST /api/use-professor-token
// Body: {"token": "..."}
func (h *TokenHandler) HandleUseProfessorToken(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.redeemer.RedeemProfessorToken(r.Context(), actorID(r), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{
		Success: fmt.Sprintf("%s is now a professor at %s.", res.Username, res.Institution.Name),
	})
}
