package lifecycle

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Liunai/pallavolo/internal/metrics"
	"github.com/Liunai/pallavolo/internal/models"
	"github.com/Liunai/pallavolo/internal/notify"
	"github.com/Liunai/pallavolo/internal/roster"
	"github.com/Liunai/pallavolo/internal/store"
	"github.com/Liunai/pallavolo/internal/store/memstore"
)

var matchDay = time.Date(2025, 6, 10, 20, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []notify.MatchEvent
}

func (r *recorder) Publish(_ context.Context, ev notify.MatchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) last() notify.MatchEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// flakyStats fails IncrementStats for the listed users.
type flakyStats struct {
	store.Store
	failFor map[string]bool
}

func (f *flakyStats) IncrementStats(ctx context.Context, uid string, d models.StatsDelta) error {
	if f.failFor[uid] {
		return errors.New("write quota exceeded")
	}
	return f.Store.IncrementStats(ctx, uid, d)
}

// cancelAfterCommit cancels the caller's context as soon as a transaction
// commits, like a client hanging up right after the archive is written.
// IncrementStats honours ctx the way the database drivers do.
type cancelAfterCommit struct {
	store.Store
	cancel context.CancelFunc
}

func (c *cancelAfterCommit) RunTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := c.Store.RunTx(ctx, fn)
	c.cancel()
	return err
}

func (c *cancelAfterCommit) IncrementStats(ctx context.Context, uid string, d models.StatsDelta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Store.IncrementStats(ctx, uid, d)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setup(t *testing.T, st store.Store) (*Manager, *roster.Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	logger := quietLogger()
	mgr := NewManager(st, rec, metrics.Noop(), logger)
	eng := roster.NewEngine(st, rec, roster.DefaultPolicy(), metrics.Noop(), logger)
	return mgr, eng, rec
}

func signup(t *testing.T, eng *roster.Engine, matchID, uid string, asReserve bool, guests ...string) {
	t.Helper()
	_, err := eng.Signup(context.Background(), matchID, roster.SignupRequest{
		Member:     roster.Member{UserID: uid, DisplayName: uid},
		AsReserve:  asReserve,
		GuestNames: guests,
	})
	require.NoError(t, err)
}

func TestCreateMatchRejectsDuplicateSchedule(t *testing.T) {
	ctx := context.Background()
	mgr, _, rec := setup(t, memstore.New())

	m, err := mgr.CreateMatch(ctx, matchDay.Add(17*time.Second), "admin")
	require.NoError(t, err)
	assert.Equal(t, matchDay, m.Date)
	assert.Equal(t, models.MatchActive, m.Status)
	assert.Equal(t, notify.EventMatchCreated, rec.last().Type)

	_, err = mgr.CreateMatch(ctx, matchDay, "admin")
	assert.ErrorIs(t, err, ErrDuplicateSchedule)

	_, err = mgr.CreateMatch(ctx, matchDay.Add(time.Hour), "admin")
	require.NoError(t, err)

	_, err = mgr.CreateMatch(ctx, time.Time{}, "admin")
	assert.ErrorIs(t, err, ErrInvalidDate)

	list, err := mgr.ListMatches(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Date.Before(list[1].Date))
}

func TestCloseEmptyMatchDeletesIt(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	mgr, eng, _ := setup(t, st)

	m, err := mgr.CreateMatch(ctx, matchDay, "admin")
	require.NoError(t, err)
	// reserves alone do not make a session
	signup(t, eng, m.ID, "r1", true)

	closed, err := mgr.CloseMatch(ctx, m.ID, "admin")
	require.NoError(t, err)
	assert.True(t, closed.Empty)
	assert.Nil(t, closed.Session)

	_, err = mgr.GetMatch(ctx, m.ID)
	assert.ErrorIs(t, err, roster.ErrMatchNotFound)
	sessions, err := st.ListSessions(ctx, store.SessionFilter{IncludeIgnored: true})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestCloseAndReopenAreReversible(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	mgr, eng, rec := setup(t, st)

	for _, uid := range []string{"p1", "p2", "r1"} {
		require.NoError(t, st.UpsertUser(ctx, &models.UserProfile{UID: uid, Role: models.RoleUser}))
		require.NoError(t, st.IncrementStats(ctx, uid, models.StatsDelta{TotalSessions: 5, AsParticipant: 4, AsReserve: 1}))
	}
	before := map[string]models.UserStats{}
	for _, uid := range []string{"p1", "p2", "r1"} {
		u, err := st.GetUser(ctx, uid)
		require.NoError(t, err)
		before[uid] = u.Stats
	}

	m, err := mgr.CreateMatch(ctx, matchDay, "admin")
	require.NoError(t, err)
	signup(t, eng, m.ID, "p1", false, "Amico")
	signup(t, eng, m.ID, "p2", false)
	signup(t, eng, m.ID, "r1", true)
	active, err := mgr.GetMatch(ctx, m.ID)
	require.NoError(t, err)

	closed, err := mgr.CloseMatch(ctx, m.ID, "admin")
	require.NoError(t, err)
	require.NotNil(t, closed.Session)
	assert.Zero(t, closed.StatFailures)
	assert.Equal(t, []string{"p1", "p2"}, closed.Session.ParticipantUserIDs)
	assert.Equal(t, []string{"r1"}, closed.Session.ReserveUserIDs)
	assert.Equal(t, notify.EventMatchClosed, rec.last().Type)

	p1, err := st.GetUser(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, before["p1"].TotalSessions+1, p1.Stats.TotalSessions)
	assert.Equal(t, before["p1"].FriendsBrought+1, p1.Stats.FriendsBrought)
	r1, err := st.GetUser(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, before["r1"].AsReserve+1, r1.Stats.AsReserve)
	assert.Equal(t, before["r1"].TotalSessions, r1.Stats.TotalSessions)

	reopened, err := mgr.ReopenMatch(ctx, closed.Session.ID, "admin2")
	require.NoError(t, err)
	assert.Equal(t, m.ID, reopened.ID)
	assert.Equal(t, "admin2", reopened.CreatedBy)
	assert.Equal(t, active.Participants, reopened.Participants)
	assert.Equal(t, active.Reserves, reopened.Reserves)

	for uid, want := range before {
		u, err := st.GetUser(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, want, u.Stats, uid)
	}
	_, err = st.GetSession(ctx, closed.Session.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReopenRejectsScheduleClash(t *testing.T) {
	ctx := context.Background()
	mgr, eng, _ := setup(t, memstore.New())

	m, err := mgr.CreateMatch(ctx, matchDay, "admin")
	require.NoError(t, err)
	signup(t, eng, m.ID, "p1", false)
	closed, err := mgr.CloseMatch(ctx, m.ID, "admin")
	require.NoError(t, err)

	_, err = mgr.CreateMatch(ctx, matchDay, "admin")
	require.NoError(t, err)

	_, err = mgr.ReopenMatch(ctx, closed.Session.ID, "admin")
	assert.ErrorIs(t, err, ErrDuplicateSchedule)

	_, err = mgr.ReopenMatch(ctx, "nope", "admin")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCloseToleratesStatFailures(t *testing.T) {
	ctx := context.Background()
	st := &flakyStats{Store: memstore.New(), failFor: map[string]bool{"p2": true}}
	mgr, eng, _ := setup(t, st)

	m, err := mgr.CreateMatch(ctx, matchDay, "admin")
	require.NoError(t, err)
	signup(t, eng, m.ID, "p1", false)
	signup(t, eng, m.ID, "p2", false)

	closed, err := mgr.CloseMatch(ctx, m.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, closed.StatFailures)

	_, err = st.GetSession(ctx, closed.Session.ID)
	require.NoError(t, err)
	p1, err := st.GetUser(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, p1.Stats.AsParticipant)
}

func TestDeleteMatch(t *testing.T) {
	ctx := context.Background()
	mgr, _, rec := setup(t, memstore.New())

	m, err := mgr.CreateMatch(ctx, matchDay, "admin")
	require.NoError(t, err)
	require.NoError(t, mgr.DeleteMatch(ctx, m.ID))
	assert.Equal(t, notify.EventMatchDeleted, rec.last().Type)

	err = mgr.DeleteMatch(ctx, m.ID)
	assert.ErrorIs(t, err, roster.ErrMatchNotFound)
}

func TestCloseCreditsStatsAfterCallerCancels(t *testing.T) {
	inner := memstore.New()
	mgr, eng, _ := setup(t, inner)
	m, err := mgr.CreateMatch(context.Background(), matchDay, "admin")
	require.NoError(t, err)
	signup(t, eng, m.ID, "p1", false)
	signup(t, eng, m.ID, "r1", true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	closer := NewManager(&cancelAfterCommit{Store: inner, cancel: cancel}, &recorder{}, metrics.Noop(), quietLogger())

	closed, err := closer.CloseMatch(ctx, m.ID, "admin")
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	assert.Zero(t, closed.StatFailures)

	p1, err := inner.GetUser(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, p1.Stats.TotalSessions)
	r1, err := inner.GetUser(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, r1.Stats.AsReserve)

	_, err = mgr.ReopenMatch(context.Background(), closed.Session.ID, "admin")
	require.NoError(t, err)
	p1, err = inner.GetUser(context.Background(), "p1")
	require.NoError(t, err)
	assert.Zero(t, p1.Stats.TotalSessions)
}
