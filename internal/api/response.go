package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	bzerrors "github.com/MikeSquared-Agency/Bazaar/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// statusFor maps a domain error kind to its HTTP status.
func statusFor(t bzerrors.ErrorType) int {
	switch t {
	case bzerrors.ErrTypeNotFound:
		return http.StatusNotFound
	case bzerrors.ErrTypeInvalidInput, bzerrors.ErrTypeInvalidAmount:
		return http.StatusBadRequest
	case bzerrors.ErrTypeIncompleteJobData:
		return http.StatusUnprocessableEntity
	case bzerrors.ErrTypeInvalidState, bzerrors.ErrTypeInvalidTransition, bzerrors.ErrTypeConflictingState:
		return http.StatusConflict
	case bzerrors.ErrTypeStaleState:
		return http.StatusPreconditionFailed
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	var de *bzerrors.DomainError
	if !errors.As(err, &de) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, statusFor(de.Type), errorResponse{
		Error:     de.Error(),
		Code:      string(de.Type),
		Retryable: de.Retryable(),
	})
}

func writeForbidden(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusForbidden, errorResponse{Error: msg})
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return bzerrors.InvalidInput("invalid request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, bzerrors.InvalidInput("invalid %s", name)
	}
	return id, nil
}

// checkVersion enforces an optional If-Match header carrying the version the
// caller last read. A mismatch is reported before any transition runs.
func checkVersion(r *http.Request, current int) error {
	raw := strings.Trim(r.Header.Get("If-Match"), `"`)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return bzerrors.InvalidInput("If-Match must be an entity version")
	}
	if v != current {
		return bzerrors.StaleState("version %d is stale, current is %d", v, current)
	}
	return nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, bzerrors.InvalidInput("%s must be an integer", name)
	}
	return n, nil
}

// queryList reads a repeated or comma separated query parameter.
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
