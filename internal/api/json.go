package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/starford/marknest/internal/apperr"
)

const maxBodyBytes = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %v: %w", err, apperr.ErrInvalidArgument)
	}
	return nil
}

// statusFor maps the error taxonomy to an HTTP status and a client-safe message.
// Ownership failures answer like missing resources so other users' files
// cannot be probed.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrInvalidPath):
		return http.StatusBadRequest, "invalid path"
	case errors.Is(err, apperr.ErrInvalidExtension):
		return http.StatusBadRequest, "only .md files are allowed"
	case errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized, "could not validate credentials"
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrNotAuthorized):
		return http.StatusNotFound, "not found"
	case errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict, "already exists"
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, "username or email already registered"
	case errors.Is(err, apperr.ErrPreconditionFailed):
		return http.StatusPreconditionFailed, "file changed since it was read"
	case errors.Is(err, apperr.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeError logs server-side failures and writes the mapped error response.
func writeError(w http.ResponseWriter, op string, err error, attrs ...slog.Attr) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		args := []any{slog.String("error", err.Error())}
		for _, a := range attrs {
			args = append(args, a)
		}
		slog.Error(op+" failed", args...)
	}
	writeJSON(w, status, errorBody(msg))
}
