package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Liunai/pallavolo/internal/models"
	"github.com/Liunai/pallavolo/internal/users"
)

// CookieName holds the session token set at login.
const CookieName = "auth_token"

type ctxKey struct{}

// TokenVerifier resolves a session token to a user id.
type TokenVerifier interface {
	AuthenticateJWT(token string) (string, error)
}

// ProfileLoader looks up the profile behind a token.
type ProfileLoader interface {
	Get(ctx context.Context, uid string) (*models.UserProfile, error)
}

type Authenticator struct {
	tokens   TokenVerifier
	profiles ProfileLoader
	logger   *logrus.Logger
}

func NewAuthenticator(tokens TokenVerifier, profiles ProfileLoader, logger *logrus.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, profiles: profiles, logger: logger}
}

// TokenFromRequest reads the session cookie, falling back to a bearer token.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// ErrUnauthenticated is returned by Authenticate for missing, invalid or
// orphaned session tokens.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticate resolves the caller's profile from the request's session token.
func (a *Authenticator) Authenticate(r *http.Request) (*models.UserProfile, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return nil, fmt.Errorf("%w: missing session token", ErrUnauthenticated)
	}
	uid, err := a.tokens.AuthenticateJWT(token)
	if err != nil {
		a.logger.Debugf("rejecting session token: %v", err)
		return nil, fmt.Errorf("%w: invalid session token", ErrUnauthenticated)
	}
	u, err := a.profiles.Get(r.Context(), uid)
	if errors.Is(err, users.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: unknown user", ErrUnauthenticated)
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", uid, err)
	}
	return u, nil
}

// RequireUser rejects requests without a valid session and stores the
// caller's profile in the request context.
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.Authenticate(r)
		if errors.Is(err, ErrUnauthenticated) {
			deny(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		if err != nil {
			a.logger.Error(err)
			deny(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// RequireRole lets through only callers whose role satisfies allowed. It
// must run after RequireUser.
func RequireRole(allowed func(models.Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := UserFromContext(r.Context())
			if u == nil || !allowed(u.Role) {
				deny(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

var (
	RequireAdmin      = RequireRole(models.Role.IsAdmin)
	RequireSuperAdmin = RequireRole(func(r models.Role) bool { return r == models.RoleSuperAdmin })
)

func WithUser(ctx context.Context, u *models.UserProfile) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func UserFromContext(ctx context.Context) *models.UserProfile {
	u, _ := ctx.Value(ctxKey{}).(*models.UserProfile)
	return u
}

func deny(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
