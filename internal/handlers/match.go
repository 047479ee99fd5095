package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Liunai/pallavolo/internal/lifecycle"
	"github.com/Liunai/pallavolo/internal/middleware"
	"github.com/Liunai/pallavolo/internal/roster"
)

func (s *APIServer) ListMatchesHandler(w http.ResponseWriter, r *http.Request) {
	matches, err := s.Lifecycle.ListMatches(r.Context())
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *APIServer) CreateMatchHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date time.Time `json:"date"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.Logger, r, lifecycle.ErrInvalidDate)
		return
	}
	uid, _ := currentUser(r)
	m, err := s.Lifecycle.CreateMatch(r.Context(), req.Date, uid)
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *APIServer) GetMatchHandler(w http.ResponseWriter, r *http.Request) {
	m, err := s.Lifecycle.GetMatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *APIServer) DeleteMatchHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Lifecycle.DeleteMatch(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type signupRequest struct {
	AsReserve bool     `json:"asReserve"`
	Guests    []string `json:"guests"`
}

// SignupHandler registers the caller, snapshotting their current display name.
func (s *APIServer) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, s.Logger, r, err)
			return
		}
	}
	u := middleware.UserFromContext(r.Context())
	res, err := s.Roster.Signup(r.Context(), chi.URLParam(r, "id"), roster.SignupRequest{
		Member: roster.Member{
			UserID:      u.UID,
			DisplayName: u.Name(),
			PhotoURL:    u.PhotoURL,
		},
		AsReserve:       req.AsReserve,
		GuestNames:      req.Guests,
		UnlimitedGuests: u.Role.IsAdmin(),
	})
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *APIServer) UnsubscribeHandler(w http.ResponseWriter, r *http.Request) {
	uid, _ := currentUser(r)
	m, err := s.Roster.Unsubscribe(r.Context(), chi.URLParam(r, "id"), uid)
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// AdminRemoveHandler removes an entry from participants, or from reserves
// with ?list=reserves.
func (s *APIServer) AdminRemoveHandler(w http.ResponseWriter, r *http.Request) {
	fromReserves := r.URL.Query().Get("list") == "reserves"
	m, err := s.Roster.AdminRemove(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "entryId"), fromReserves)
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *APIServer) PromoteHandler(w http.ResponseWriter, r *http.Request) {
	m, err := s.Roster.PromoteReserve(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "entryId"))
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// RemoveGuestHandler lets admins remove any guest and sponsors their own.
func (s *APIServer) RemoveGuestHandler(w http.ResponseWriter, r *http.Request) {
	uid, isAdmin := currentUser(r)
	sponsor := uid
	if isAdmin {
		sponsor = ""
	}
	m, err := s.Roster.RemoveGuest(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "guestId"), sponsor)
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *APIServer) CloseMatchHandler(w http.ResponseWriter, r *http.Request) {
	uid, _ := currentUser(r)
	closed, err := s.Lifecycle.CloseMatch(r.Context(), chi.URLParam(r, "id"), uid)
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, closed)
}
