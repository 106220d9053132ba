package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/models"
	"github.com/HammerMeetNail/livebingo/internal/services"
)

const maxBodyBytes = 64 << 10

const (
	codeValidation          = "validation"
	codeNotFound            = "not_found"
	codeConflict            = "conflict"
	codeStoreUnavailable    = "store_unavailable"
	codeIdentityUnavailable = "identity_unavailable"
	codeInternal            = "internal"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// classifyError maps a service error onto a status, code and user-facing
// message. Unknown errors are internal.
func classifyError(err error) (int, string, string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, codeValidation, verr.Message
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound, codeNotFound, "Session not found"
	case errors.Is(err, services.ErrParticipantNotFound):
		return http.StatusNotFound, codeNotFound, "Join the session first"
	case errors.Is(err, services.ErrSessionIDTaken):
		return http.StatusConflict, codeConflict, "Session code already in use, please try again"
	case errors.Is(err, services.ErrIdentityRequired), errors.Is(err, services.ErrInvalidIdentityToken):
		return http.StatusUnauthorized, codeIdentityUnavailable, "Identity unavailable"
	case errors.Is(err, services.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, codeStoreUnavailable, "Game server unavailable, please try again"
	default:
		return http.StatusInternalServerError, codeInternal, "Internal server error"
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classifyError(err)
	if status >= http.StatusInternalServerError {
		logging.Error("Request failed", map[string]interface{}{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
	}
	writeError(w, status, code, message)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "Invalid request body")
		return false
	}
	return true
}
