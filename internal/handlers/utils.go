package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Liunai/pallavolo/internal/auth"
	"github.com/Liunai/pallavolo/internal/lifecycle"
	"github.com/Liunai/pallavolo/internal/roster"
	"github.com/Liunai/pallavolo/internal/stats"
	"github.com/Liunai/pallavolo/internal/users"
)

var errBadRequest = errors.New("malformed request body")

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is the single mapping from domain errors to HTTP responses.
var errorTable = []errorMapping{
	{roster.ErrAlreadyRegistered, http.StatusConflict, "already_registered"},
	{roster.ErrNotRegistered, http.StatusNotFound, "not_registered"},
	{roster.ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},
	{roster.ErrGuestLimit, http.StatusConflict, "guest_limit"},
	{roster.ErrGuestNotPromotable, http.StatusConflict, "guest_not_promotable"},
	{roster.ErrGuestNotFound, http.StatusNotFound, "guest_not_found"},
	{roster.ErrInvalidGuestName, http.StatusBadRequest, "invalid_guest_name"},
	{roster.ErrMatchNotFound, http.StatusNotFound, "match_not_found"},
	{lifecycle.ErrDuplicateSchedule, http.StatusConflict, "duplicate_schedule"},
	{lifecycle.ErrInvalidDate, http.StatusBadRequest, "invalid_date"},
	{stats.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{stats.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{users.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{users.ErrInvalidDisplayName, http.StatusBadRequest, "invalid_display_name"},
	{users.ErrInvalidRole, http.StatusBadRequest, "invalid_role"},
	{users.ErrProtectedUser, http.StatusForbidden, "protected_user"},
	{users.ErrForbidden, http.StatusForbidden, "forbidden"},
	{auth.ErrInvalidIDToken, http.StatusUnauthorized, "invalid_id_token"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},
}

func lookupError(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// writeError maps err to its status. Unexpected errors are logged and their
// text is not sent to the client.
func writeError(w http.ResponseWriter, logger *logrus.Logger, r *http.Request, err error) {
	status, code := lookupError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Errorf("request failed: %v", err)
		msg = "internal error"
	}
	writeJSON(w, status, apiError{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errBadRequest
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}
