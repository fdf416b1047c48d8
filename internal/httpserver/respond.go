package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/wisbric/launchpad/internal/apperr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, errCode, message string) {
	Respond(w, status, ErrorResponse{Error: errCode, Message: message})
}

// RespondDomainError maps the error taxonomy onto HTTP status codes:
// NotFound 404, Integrity 409, DeploymentInProgress 409, other 500.
func RespondDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		status := http.StatusInternalServerError
		switch domainErr.Kind {
		case apperr.KindNotFound:
			status = http.StatusNotFound
		case apperr.KindIntegrity, apperr.KindInProgress:
			status = http.StatusConflict
		}
		RespondError(w, status, domainErr.Kind.String(), domainErr.Error())
		return
	}
	logger.Error("internal error", "error", err)
	RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

// DecodeJSON parses the request body into dst, responding 400 on
// malformed input. Returns false when a response was already written.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
