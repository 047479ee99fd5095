// internal/handlers/api_server.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/Liunai/pallavolo/internal/auth"
	"github.com/Liunai/pallavolo/internal/lifecycle"
	"github.com/Liunai/pallavolo/internal/metrics"
	"github.com/Liunai/pallavolo/internal/middleware"
	"github.com/Liunai/pallavolo/internal/notify"
	"github.com/Liunai/pallavolo/internal/roster"
	"github.com/Liunai/pallavolo/internal/stats"
	"github.com/Liunai/pallavolo/internal/users"
)

// APIServer bundles the components the HTTP handlers drive.
type APIServer struct {
	Roster    *roster.Engine
	Lifecycle *lifecycle.Manager
	Stats     *stats.Aggregator
	Users     *users.Service
	Sessions  *auth.Sessions
	Verifier  auth.Verifier
	Hub       *notify.Hub
	Metrics   metrics.Metrics
	Logger    *logrus.Logger

	// SecureCookies marks the session cookie Secure (production).
	SecureCookies bool
	// WSOriginPatterns is passed to websocket.Accept.
	WSOriginPatterns []string

	authn *middleware.Authenticator
}

// Routes mounts every endpoint on a fresh router.
func (s *APIServer) Routes() chi.Router {
	s.authn = middleware.NewAuthenticator(s.Sessions, s.Users, s.Logger)
	admin := middleware.RequireAdmin
	super := middleware.RequireSuperAdmin

	r := chi.NewRouter()
	r.Post("/auth/login", s.LoginHandler)
	r.Post("/auth/logout", s.LogoutHandler)
	r.Get("/matches/{id}/ws", s.MatchWSHandler)

	r.Group(func(r chi.Router) {
		r.Use(s.authn.RequireUser)

		r.Get("/me", s.MeHandler)
		r.Put("/me/display-name", s.DisplayNameHandler)
		r.Get("/me/history", s.HistoryHandler)

		r.Route("/matches", func(r chi.Router) {
			r.Get("/", s.ListMatchesHandler)
			r.With(admin).Post("/", s.CreateMatchHandler)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.GetMatchHandler)
				r.With(admin).Delete("/", s.DeleteMatchHandler)
				r.Post("/signup", s.SignupHandler)
				r.Post("/unsubscribe", s.UnsubscribeHandler)
				r.Delete("/guests/{guestId}", s.RemoveGuestHandler)
				r.With(admin).Delete("/entries/{entryId}", s.AdminRemoveHandler)
				r.With(admin).Post("/reserves/{entryId}/promote", s.PromoteHandler)
				r.With(admin).Post("/close", s.CloseMatchHandler)
			})
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.ListSessionsHandler)
			r.Get("/{id}", s.GetSessionHandler)
			r.With(admin).Post("/{id}/reopen", s.ReopenHandler)
			r.With(admin).Put("/{id}/ignored", s.IgnoreSessionHandler)
			r.With(admin).Delete("/{id}", s.DeleteSessionHandler)
		})

		r.With(super).Post("/stats/recalculate", s.RecalculateHandler)

		r.Route("/users", func(r chi.Router) {
			r.Use(admin)
			r.Get("/", s.ListUsersHandler)
			r.With(super).Put("/{uid}/role", s.SetRoleHandler)
			r.Post("/{uid}/stats/reset", s.ResetStatsHandler)
		})
	})
	return r
}

func currentUser(r *http.Request) (uid string, isAdmin bool) {
	u := middleware.UserFromContext(r.Context())
	if u == nil {
		return "", false
	}
	return u.UID, u.Role.IsAdmin()
}
