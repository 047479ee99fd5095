package handlers

import (
	"net/http"

	"github.com/Liunai/pallavolo/internal/middleware"
	"github.com/Liunai/pallavolo/internal/models"
)

type loginRequest struct {
	IDToken string `json:"idToken"`
}

type loginResponse struct {
	User  *models.UserProfile `json:"user"`
	Token string              `json:"token"`
}

// LoginHandler exchanges an identity-provider ID token for a session cookie.
func (s *APIServer) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	id, err := s.Verifier.Verify(r.Context(), req.IDToken)
	if err != nil {
		s.Logger.Infof("login rejected: %v", err)
		writeError(w, s.Logger, r, err)
		return
	}
	u, err := s.Users.EnsureProfile(r.Context(), id)
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	token, err := s.Sessions.CreateJWT(u.UID)
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}

	cookie := &http.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl := s.Sessions.TTL(); ttl > 0 {
		cookie.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, cookie)
	s.Logger.WithField("user", u.UID).Info("user logged in")
	writeJSON(w, http.StatusOK, loginResponse{User: u, Token: token})
}

func (s *APIServer) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.SecureCookies,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) MeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, middleware.UserFromContext(r.Context()))
}

func (s *APIServer) DisplayNameHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	uid, _ := currentUser(r)
	u, err := s.Users.SetCustomDisplayName(r.Context(), uid, req.Name)
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *APIServer) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	uid, _ := currentUser(r)
	h, err := s.Stats.History(r.Context(), uid)
	if err != nil {
		writeError(w, s.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}
