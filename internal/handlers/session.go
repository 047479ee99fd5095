package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *APIServer) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	includeIgnored := r.URL.Query().Get("includeIgnored") == "true"
	sessions, err := s.Stats.Sessions(r.Context(), includeIgnored)
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *APIServer) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Stats.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *APIServer) ReopenHandler(w http.ResponseWriter, r *http.Request) {
	uid, _ := currentUser(r)
	m, err := s.Lifecycle.ReopenMatch(r.Context(), chi.URLParam(r, "id"), uid)
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *APIServer) IgnoreSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ignored bool `json:"ignored"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	sess, err := s.Stats.IgnoreSession(r.Context(), chi.URLParam(r, "id"), req.Ignored)
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *APIServer) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Stats.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) RecalculateHandler(w http.ResponseWriter, r *http.Request) {
	rep, err := s.Stats.RecalculateAll(r.Context())
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
