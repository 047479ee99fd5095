package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Liunai/pallavolo/internal/middleware"
	"github.com/Liunai/pallavolo/internal/models"
)

func (s *APIServer) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.Users.List(r.Context())
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *APIServer) SetRoleHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role models.Role `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	actor := middleware.UserFromContext(r.Context())
	u, err := s.Users.SetRole(r.Context(), actor, chi.URLParam(r, "uid"), req.Role)
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *APIServer) ResetStatsHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Stats.ResetUser(r.Context(), chi.URLParam(r, "uid")); err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
