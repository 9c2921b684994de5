package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/auth"
)

// maxJSONBody caps every JSON request body. Case content is the largest
// thing a client sends as JSON.
const maxJSONBody = 1 << 20

// decodeJSON reads the request body into dst.
//
// json.NewDecoder(r.Body) reads the body as a stream. http.MaxBytesReader
// stops a client from streaming an unbounded body at us. An empty body is
// treated like "{}" so endpoints whose fields are all optional still work
// with a bare POST.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(body).Decode(dst)

	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &tooLarge):
		return apperror.ValidationFailed("body", "request body too large")
	default:
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
}

// actorID returns the authenticated user id, or "" for anonymous requests.
// The services turn "" into 401, so handlers just pass it through.
func actorID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}
