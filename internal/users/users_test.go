package users

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Liunai/pallavolo/internal/auth"
	"github.com/Liunai/pallavolo/internal/models"
	"github.com/Liunai/pallavolo/internal/store/memstore"
)

const bossEmail = "capo@pallavolo.it"

func newService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	st := memstore.New()
	return NewService(st, bossEmail, logger), st
}

func TestEnsureProfile(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	u, err := svc.EnsureProfile(ctx, auth.Identity{UID: "u1", DisplayName: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.False(t, u.LastLogin.IsZero())

	require.NoError(t, st.IncrementStats(ctx, "u1", models.StatsDelta{TotalSessions: 3}))
	_, err = svc.SetRole(ctx, &models.UserProfile{UID: "boss", Role: models.RoleSuperAdmin}, "u1", models.RoleAdmin)
	require.NoError(t, err)

	u, err = svc.EnsureProfile(ctx, auth.Identity{UID: "u1", DisplayName: "Ada L.", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.Equal(t, "Ada L.", u.DisplayName)
	stored, err := st.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Stats.TotalSessions)
}

func TestSuperAdminEmailIsForced(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	u, err := svc.EnsureProfile(ctx, auth.Identity{UID: "boss", Email: "Capo@Pallavolo.it"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, u.Role)

	_, err = svc.SetRole(ctx, u, "boss", models.RoleUser)
	assert.ErrorIs(t, err, ErrProtectedUser)
}

func TestSetRoleRules(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	boss, err := svc.EnsureProfile(ctx, auth.Identity{UID: "boss", Email: bossEmail})
	require.NoError(t, err)
	_, err = svc.EnsureProfile(ctx, auth.Identity{UID: "u1", Email: "u1@example.com"})
	require.NoError(t, err)

	admin := &models.UserProfile{UID: "a", Role: models.RoleAdmin}
	_, err = svc.SetRole(ctx, admin, "u1", models.RoleCapitana)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.SetRole(ctx, boss, "u1", models.RoleSuperAdmin)
	assert.ErrorIs(t, err, ErrInvalidRole)
	_, err = svc.SetRole(ctx, boss, "u1", models.Role("emperor"))
	assert.ErrorIs(t, err, ErrInvalidRole)
	_, err = svc.SetRole(ctx, boss, "ghost", models.RoleAdmin)
	assert.ErrorIs(t, err, ErrUserNotFound)

	u, err := svc.SetRole(ctx, boss, "u1", models.RoleCapitana)
	require.NoError(t, err)
	assert.Equal(t, models.RoleCapitana, u.Role)
}

func TestSetCustomDisplayName(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.EnsureProfile(ctx, auth.Identity{UID: "u1", DisplayName: "Ada"})
	require.NoError(t, err)

	u, err := svc.SetCustomDisplayName(ctx, "u1", "  La Schiacciatrice ")
	require.NoError(t, err)
	assert.Equal(t, "La Schiacciatrice", u.Name())

	_, err = svc.SetCustomDisplayName(ctx, "u1", strings.Repeat("è", MaxDisplayNameLength+1))
	assert.ErrorIs(t, err, ErrInvalidDisplayName)

	u, err = svc.SetCustomDisplayName(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name())

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
