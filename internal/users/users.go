// Package users keeps profiles in sync with the identity provider and
// manages display names and roles.
package users

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/Liunai/pallavolo/internal/auth"
	"github.com/Liunai/pallavolo/internal/models"
	"github.com/Liunai/pallavolo/internal/store"
)

// MaxDisplayNameLength is in runes.
const MaxDisplayNameLength = 40

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidDisplayName = errors.New("display name is too long")
	ErrInvalidRole        = errors.New("unknown or unassignable role")
	ErrProtectedUser      = errors.New("the super-admin role cannot be changed")
	ErrForbidden          = errors.New("only the super-admin may change roles")
)

type Service struct {
	store           store.Store
	superAdminEmail string
	logger          *logrus.Logger
	now             func() time.Time
}

func NewService(st store.Store, superAdminEmail string, logger *logrus.Logger) *Service {
	return &Service{
		store:           st,
		superAdminEmail: strings.TrimSpace(superAdminEmail),
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) isSuperAdminEmail(email string) bool {
	return s.superAdminEmail != "" && strings.EqualFold(email, s.superAdminEmail)
}

// EnsureProfile creates or refreshes the profile of a user who just logged in.
// Role and stats of existing users are kept, except that the configured
// super-admin email always gets the super-admin role.
func (s *Service) EnsureProfile(ctx context.Context, id auth.Identity) (*models.UserProfile, error) {
	u, err := s.store.GetUser(ctx, id.UID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		u = &models.UserProfile{UID: id.UID, Role: models.RoleUser}
		s.logger.WithField("user", id.UID).Info("creating profile on first login")
	case err != nil:
		return nil, err
	}

	u.Email = id.Email
	u.DisplayName = id.DisplayName
	u.PhotoURL = id.PhotoURL
	u.LastLogin = s.now()
	if !u.Role.Valid() {
		u.Role = models.RoleUser
	}
	if s.isSuperAdminEmail(id.Email) {
		u.Role = models.RoleSuperAdmin
	}

	if err := s.store.UpsertUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, uid string) (*models.UserProfile, error) {
	u, err := s.store.GetUser(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *Service) List(ctx context.Context) ([]*models.UserProfile, error) {
	list, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*models.UserProfile{}
	}
	return list, nil
}

// SetCustomDisplayName overrides the provider's name on future signups. An
// empty name clears the override.
func (s *Service) SetCustomDisplayName(ctx context.Context, uid, name string) (*models.UserProfile, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return nil, ErrInvalidDisplayName
	}
	u, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	u.CustomDisplayName = name
	if err := s.store.UpsertUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SetRole changes another user's role on behalf of actor.
func (s *Service) SetRole(ctx context.Context, actor *models.UserProfile, uid string, role models.Role) (*models.UserProfile, error) {
	if actor == nil || actor.Role != models.RoleSuperAdmin {
		return nil, ErrForbidden
	}
	if !role.Valid() || role == models.RoleSuperAdmin {
		return nil, ErrInvalidRole
	}
	u, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	if s.isSuperAdminEmail(u.Email) {
		return nil, ErrProtectedUser
	}

	u.Role = role
	if err := s.store.UpsertUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"user":  uid,
		"role":  role,
		"actor": actor.UID,
	}).Info("role changed")
	return u, nil
}
