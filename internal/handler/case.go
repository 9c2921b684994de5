package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mundorum/harena/internal/model"
	"github.com/mundorum/harena/internal/service"
)

// Cases is the part of service.CaseService the case handler needs.
type Cases interface {
	Create(ctx context.Context, actorID string, input service.CreateCaseInput) (*model.Case, error)
	Get(ctx context.Context, actorID, caseID string) (*model.Case, error)
	ListMine(ctx context.Context, actorID string) ([]model.Case, error)
	AttachImage(ctx context.Context, actorID, caseID string, body io.Reader, size int64, contentType string) (*model.Case, error)
}

// CaseHandler serves /api/cases.
type CaseHandler struct {
	cases  Cases
	logger *slog.Logger
}

func NewCaseHandler(cases Cases, logger *slog.Logger) *CaseHandler {
	return &CaseHandler{cases: cases, logger: logger}
}

// HandleList returns the caller's own cases.
//
// HTTP: GET /api/cases
func (h *CaseHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	cases, err := h.cases.ListMine(r.Context(), actorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cases)
}

// HandleCreate stores a new case owned by the caller.
//
// HTTP: POST /api/cases
func (h *CaseHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var input service.CreateCaseInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.cases.Create(r.Context(), actorID(r), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleGet returns one case to its owner.
//
// HTTP: GET /api/cases/{caseID}
func (h *CaseHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.cases.Get(r.Context(), actorID(r), chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleUploadImage stores the raw request body as the case image.
//
// HTTP: PUT /api/cases/{caseID}/image
// Headers: Content-Type: image/png (or jpeg, gif, webp), Content-Length
//
// The body is streamed straight to object storage, so the client must
// send a Content-Length; chunked uploads are refused by the size check.
func (h *CaseHandler) HandleUploadImage(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, service.MaxImageSize)

	c, err := h.cases.AttachImage(r.Context(), actorID(r), chi.URLParam(r, "caseID"),
		body, r.ContentLength, r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
