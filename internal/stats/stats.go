// Package stats derives user attendance counters from archived sessions.
package stats

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Liunai/pallavolo/internal/models"
	"github.com/Liunai/pallavolo/internal/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Contribution is what one session adds to each user's counters. Guests
// credit their sponsor even if the sponsor is no longer on the roster.
func Contribution(s *models.Session) map[string]models.StatsDelta {
	out := make(map[string]models.StatsDelta)
	add := func(uid string, d models.StatsDelta) {
		out[uid] = out[uid].Add(d)
	}
	for _, e := range s.Participants {
		if e.IsGuest() {
			add(e.SponsorUserID, models.StatsDelta{FriendsBrought: 1})
			continue
		}
		add(e.EntryID, models.StatsDelta{TotalSessions: 1, AsParticipant: 1})
	}
	for _, e := range s.Reserves {
		if e.IsGuest() {
			add(e.SponsorUserID, models.StatsDelta{FriendsBrought: 1})
			continue
		}
		add(e.EntryID, models.StatsDelta{AsReserve: 1})
	}
	delete(out, "")
	return out
}

// Negate returns the contribution with every delta reversed.
func Negate(c map[string]models.StatsDelta) map[string]models.StatsDelta {
	out := make(map[string]models.StatsDelta, len(c))
	for uid, d := range c {
		out[uid] = d.Negate()
	}
	return out
}

// ApplyInTx writes every delta of c through tx.
func ApplyInTx(ctx context.Context, tx store.Tx, c map[string]models.StatsDelta) error {
	for uid, d := range c {
		if err := tx.ApplyStats(ctx, uid, d); err != nil {
			return err
		}
	}
	return nil
}

type Aggregator struct {
	store  store.Store
	logger *logrus.Logger
}

func NewAggregator(st store.Store, logger *logrus.Logger) *Aggregator {
	return &Aggregator{store: st, logger: logger}
}

// Report summarizes a recalculation.
type Report struct {
	Sessions int `json:"sessions"`
	Users    int `json:"users"`
}

// RecalculateAll rebuilds the attendance counters of every user from the
// non-ignored sessions. Running it twice yields the same counters.
func (a *Aggregator) RecalculateAll(ctx context.Context) (Report, error) {
	sessions, err := a.store.ListSessions(ctx, store.SessionFilter{})
	if err != nil {
		return Report{}, fmt.Errorf("list sessions: %w", err)
	}
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list users: %w", err)
	}

	totals := make(map[string]models.StatsDelta)
	for _, s := range sessions {
		for uid, d := range Contribution(s) {
			totals[uid] = totals[uid].Add(d)
		}
	}

	for _, u := range users {
		if err := a.store.SetStats(ctx, u.UID, u.Stats.WithAttendance(totals[u.UID])); err != nil {
			return Report{}, fmt.Errorf("set stats of %s: %w", u.UID, err)
		}
		delete(totals, u.UID)
	}
	// users seen in sessions without a profile yet
	for uid, d := range totals {
		if err := a.store.IncrementStats(ctx, uid, d); err != nil {
			return Report{}, fmt.Errorf("create stats of %s: %w", uid, err)
		}
	}

	rep := Report{Sessions: len(sessions), Users: len(users) + len(totals)}
	a.logger.WithFields(logrus.Fields{
		"sessions": rep.Sessions,
		"users":    rep.Users,
	}).Info("recalculated user stats")
	return rep, nil
}

// IgnoreSession sets the ignored flag and moves the session's contribution
// out of (or back into) the counters. Setting the current value is a no-op.
func (a *Aggregator) IgnoreSession(ctx context.Context, sessionID string, ignored bool) (*models.Session, error) {
	var out *models.Session
	err := a.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		s, err := getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		out = s
		if s.IgnoredFromStats == ignored {
			return nil
		}
		c := Contribution(s)
		if ignored {
			c = Negate(c)
		}
		s.IgnoredFromStats = ignored
		if err := tx.PutSession(ctx, s); err != nil {
			return err
		}
		return ApplyInTx(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}
	a.logger.WithFields(logrus.Fields{"session": sessionID, "ignored": ignored}).Info("session stats flag updated")
	return out, nil
}

// DeleteSession removes the session and its contribution.
func (a *Aggregator) DeleteSession(ctx context.Context, sessionID string) error {
	err := a.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		s, err := getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := tx.DeleteSession(ctx, sessionID); err != nil {
			return err
		}
		if s.IgnoredFromStats {
			return nil
		}
		return ApplyInTx(ctx, tx, Negate(Contribution(s)))
	})
	if err != nil {
		return err
	}
	a.logger.WithField("session", sessionID).Info("session deleted")
	return nil
}

// ResetUser zeroes every counter of one user.
func (a *Aggregator) ResetUser(ctx context.Context, uid string) error {
	err := a.store.SetStats(ctx, uid, models.UserStats{})
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// History is a user's attendance record.
type History struct {
	Stats    models.UserStats  `json:"stats"`
	Sessions []*models.Session `json:"sessions"`
}

// History lists the sessions uid attended as participant or reserve, newest first.
func (a *Aggregator) History(ctx context.Context, uid string) (History, error) {
	u, err := a.store.GetUser(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return History{}, ErrUserNotFound
	}
	if err != nil {
		return History{}, err
	}
	sessions, err := a.store.ListSessions(ctx, store.SessionFilter{UserID: uid, IncludeIgnored: true})
	if err != nil {
		return History{}, err
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	return History{Stats: u.Stats, Sessions: sessions}, nil
}

// Sessions lists archived sessions newest first.
func (a *Aggregator) Sessions(ctx context.Context, includeIgnored bool) ([]*models.Session, error) {
	return a.store.ListSessions(ctx, store.SessionFilter{IncludeIgnored: includeIgnored})
}

func (a *Aggregator) Session(ctx context.Context, id string) (*models.Session, error) {
	s, err := a.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

func getSession(ctx context.Context, tx store.Tx, id string) (*models.Session, error) {
	s, err := tx.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return s, err
}
