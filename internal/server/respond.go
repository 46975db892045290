package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/weftdb/weft/internal/lock"
	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/types"
)

// Error codes of the JSON error envelope.
const (
	codeValidation       = "validation_error"
	codeNotFound         = "not_found"
	codeLockHeld         = "lock_held"
	codeStoreUnavailable = "store_unavailable"
	codeInternal         = "internal_error"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, types.ErrNotFound)
}

// respondError maps the error taxonomy onto HTTP statuses.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrValidation), errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
	case errors.Is(err, types.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, lock.ErrLockHeld):
		writeError(w, http.StatusConflict, codeLockHeld, "another import is running for this workspace")
	case errors.Is(err, storage.ErrStoreUnavailable):
		writeError(w, http.StatusInternalServerError, codeStoreUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
	}
}
