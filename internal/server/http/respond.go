package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/storefront/internal/common"
)

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeServiceError maps service errors onto status codes. Refresh token
// failures all read "please sign in again"; the kind stays in the code.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *common.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "ValidationError", Message: "invalid input", Fields: ve.Fields})
	case common.TokenKind(err) != "":
		writeError(w, http.StatusUnauthorized, common.TokenKind(err), common.ReauthenticateMessage)
	case errors.Is(err, common.ErrorUnauthorized):
		writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
	case errors.Is(err, common.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", "insufficient role")
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "NotFound", "not found")
	case errors.Is(err, common.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "AlreadyExists", "email already registered")
	case errors.Is(err, common.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "RateLimited", "too many attempts, try again later")
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "internal error")
	}
}
