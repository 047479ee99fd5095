package stats

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Liunai/pallavolo/internal/models"
	"github.com/Liunai/pallavolo/internal/store"
	"github.com/Liunai/pallavolo/internal/store/memstore"
)

var day = time.Date(2025, 1, 20, 19, 0, 0, 0, time.UTC)

func user(uid string) models.RosterEntry {
	return models.NewUserEntry(uid, uid, "", day)
}

func session(id string, date time.Time, participants, reserves []models.RosterEntry) *models.Session {
	return &models.Session{
		ID:                 id,
		Date:               date,
		Participants:       participants,
		Reserves:           reserves,
		ParticipantUserIDs: models.UserIDs(participants),
		ReserveUserIDs:     models.UserIDs(reserves),
	}
}

func newAggregator(t *testing.T, sessions ...*models.Session) (*Aggregator, *memstore.Store) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	st := memstore.New()
	require.NoError(t, st.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, s := range sessions {
			if err := tx.PutSession(ctx, s); err != nil {
				return err
			}
		}
		return nil
	}))
	return NewAggregator(st, logger), st
}

func TestContribution(t *testing.T) {
	s := session("s1", day,
		[]models.RosterEntry{user("a"), user("b")},
		[]models.RosterEntry{user("c"), models.NewGuestEntry("G1", "a", day), models.NewGuestEntry("G2", "gone", day)},
	)

	c := Contribution(s)
	assert.Equal(t, models.StatsDelta{TotalSessions: 1, AsParticipant: 1, FriendsBrought: 1}, c["a"])
	assert.Equal(t, models.StatsDelta{TotalSessions: 1, AsParticipant: 1}, c["b"])
	assert.Equal(t, models.StatsDelta{AsReserve: 1}, c["c"])
	// the sponsor is credited even though they are not on the roster
	assert.Equal(t, models.StatsDelta{FriendsBrought: 1}, c["gone"])
	assert.Len(t, c, 4)

	for uid, d := range Negate(c) {
		assert.True(t, d.Add(c[uid]).IsZero())
	}
}

func TestRecalculateAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ignored := session("s3", day.Add(48*time.Hour), []models.RosterEntry{user("a")}, nil)
	ignored.IgnoredFromStats = true
	agg, st := newAggregator(t,
		session("s1", day, []models.RosterEntry{user("a"), user("b")}, []models.RosterEntry{user("c")}),
		session("s2", day.Add(24*time.Hour), []models.RosterEntry{user("a")}, []models.RosterEntry{user("b")}),
		ignored,
	)
	require.NoError(t, st.UpsertUser(ctx, &models.UserProfile{UID: "a", Role: models.RoleUser}))
	require.NoError(t, st.IncrementStats(ctx, "a", models.StatsDelta{TotalSessions: 40}))
	require.NoError(t, st.SetStats(ctx, "a", models.UserStats{TotalSessions: 40, SetsWon: 7}))

	snapshot := func() map[string]models.UserStats {
		users, err := st.ListUsers(ctx)
		require.NoError(t, err)
		out := map[string]models.UserStats{}
		for _, u := range users {
			out[u.UID] = u.Stats
		}
		return out
	}

	rep, err := agg.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Sessions)
	first := snapshot()

	_, err = agg.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, snapshot())

	assert.Equal(t, 2, first["a"].TotalSessions)
	assert.Equal(t, 2, first["a"].AsParticipant)
	assert.Equal(t, 7, first["a"].SetsWon)
	assert.Equal(t, models.UserStats{TotalSessions: 1, AsParticipant: 1, AsReserve: 1}, first["b"])
	assert.Equal(t, models.UserStats{AsReserve: 1}, first["c"])
}

func TestIgnoreSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	agg, st := newAggregator(t, session("s1", day, []models.RosterEntry{user("a")}, nil))
	require.NoError(t, st.IncrementStats(ctx, "a", models.StatsDelta{TotalSessions: 1, AsParticipant: 1}))

	s, err := agg.IgnoreSession(ctx, "s1", true)
	require.NoError(t, err)
	assert.True(t, s.IgnoredFromStats)
	a, _ := st.GetUser(ctx, "a")
	assert.Zero(t, a.Stats.TotalSessions)

	// setting the same value again changes nothing
	_, err = agg.IgnoreSession(ctx, "s1", true)
	require.NoError(t, err)
	a, _ = st.GetUser(ctx, "a")
	assert.Zero(t, a.Stats.TotalSessions)

	_, err = agg.IgnoreSession(ctx, "s1", false)
	require.NoError(t, err)
	a, _ = st.GetUser(ctx, "a")
	assert.Equal(t, 1, a.Stats.TotalSessions)

	_, err = agg.IgnoreSession(ctx, "missing", true)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteSessionReversesContribution(t *testing.T) {
	ctx := context.Background()
	agg, st := newAggregator(t, session("s1", day, []models.RosterEntry{user("a")}, []models.RosterEntry{user("b")}))
	require.NoError(t, st.IncrementStats(ctx, "a", models.StatsDelta{TotalSessions: 3, AsParticipant: 3}))
	require.NoError(t, st.IncrementStats(ctx, "b", models.StatsDelta{AsReserve: 1}))

	require.NoError(t, agg.DeleteSession(ctx, "s1"))

	a, _ := st.GetUser(ctx, "a")
	b, _ := st.GetUser(ctx, "b")
	assert.Equal(t, 2, a.Stats.TotalSessions)
	assert.Zero(t, b.Stats.AsReserve)
	_, err := agg.Session(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, agg.DeleteSession(ctx, "s1"), ErrSessionNotFound)
}

func TestHistoryAndReset(t *testing.T) {
	ctx := context.Background()
	agg, st := newAggregator(t,
		session("s1", day, []models.RosterEntry{user("a")}, nil),
		session("s2", day.Add(24*time.Hour), nil, []models.RosterEntry{user("a")}),
		session("s3", day.Add(48*time.Hour), []models.RosterEntry{user("b")}, nil),
	)
	require.NoError(t, st.IncrementStats(ctx, "a", models.StatsDelta{TotalSessions: 1, AsParticipant: 1, AsReserve: 1}))

	h, err := agg.History(ctx, "a")
	require.NoError(t, err)
	require.Len(t, h.Sessions, 2)
	assert.Equal(t, "s2", h.Sessions[0].ID)
	assert.Equal(t, 1, h.Stats.AsReserve)

	require.NoError(t, agg.ResetUser(ctx, "a"))
	h, err = agg.History(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.UserStats{}, h.Stats)

	assert.ErrorIs(t, agg.ResetUser(ctx, "ghost"), ErrUserNotFound)
	_, err = agg.History(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
