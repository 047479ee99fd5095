// Package lifecycle creates, archives and restores matches. Archiving turns
// an active match into an immutable session and credits attendance stats.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Liunai/pallavolo/internal/metrics"
	"github.com/Liunai/pallavolo/internal/models"
	"github.com/Liunai/pallavolo/internal/notify"
	"github.com/Liunai/pallavolo/internal/roster"
	"github.com/Liunai/pallavolo/internal/stats"
	"github.com/Liunai/pallavolo/internal/store"
)

var (
	ErrDuplicateSchedule = errors.New("an active match is already scheduled at that time")
	ErrInvalidDate       = errors.New("match date is required")
	// ErrSessionNotFound aliases the stats error so callers can match either.
	ErrSessionNotFound = stats.ErrSessionNotFound
)

const (
	// statWriteConcurrency bounds parallel per-user stat writes after a close.
	statWriteConcurrency = 8
	// statCreditTimeout bounds the whole post-close stat batch.
	statCreditTimeout = 30 * time.Second
)

type Manager struct {
	store     store.Store
	publisher notify.Publisher
	metrics   metrics.Metrics
	logger    *logrus.Logger
	now       func() time.Time
	newID     func() string
}

func NewManager(st store.Store, pub notify.Publisher, m metrics.Metrics, logger *logrus.Logger) *Manager {
	return &Manager{
		store:     st,
		publisher: pub,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Closed is the result of CloseMatch.
type Closed struct {
	// Empty is set when the match had no participants and was dropped.
	Empty   bool            `json:"empty"`
	Session *models.Session `json:"session,omitempty"`
	// StatFailures counts users whose counters could not be updated.
	StatFailures int `json:"statFailures"`
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateSchedule):
		return "duplicate_schedule"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	}
	return roster.Outcome(err)
}

func (m *Manager) record(op string, start time.Time, err error) {
	m.metrics.ObserveTx(op, time.Since(start))
	m.metrics.RosterOperation(op, outcome(err))
}

// CreateMatch schedules a new match with empty rosters. Dates are kept at
// minute precision in UTC.
func (m *Manager) CreateMatch(ctx context.Context, date time.Time, createdBy string) (*models.Match, error) {
	if date.IsZero() {
		return nil, ErrInvalidDate
	}
	date = date.UTC().Truncate(time.Minute)
	match := models.NewMatch(m.newID(), date, createdBy, m.now())

	start := time.Now()
	err := m.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		taken, err := tx.ActiveMatchAt(ctx, date)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateSchedule
		}
		return tx.PutMatch(ctx, match)
	})
	if errors.Is(err, store.ErrConflict) {
		err = ErrDuplicateSchedule
	}
	m.record("create_match", start, err)
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{"match": match.ID, "date": date}).Info("match created")
	m.publisher.Publish(ctx, notify.MatchEvent{Type: notify.EventMatchCreated, MatchID: match.ID, Match: match.Clone()})
	return match, nil
}

func (m *Manager) ListMatches(ctx context.Context) ([]*models.Match, error) {
	matches, err := m.store.ListMatches(ctx)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []*models.Match{}
	}
	return matches, nil
}

func (m *Manager) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	match, err := m.store.GetMatch(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, roster.ErrMatchNotFound
	}
	return match, err
}

// CloseMatch archives the match. The session write and match delete commit
// together; stat increments follow as a best-effort batch whose failures
// are logged and counted but never undo the archive.
func (m *Manager) CloseMatch(ctx context.Context, matchID, closedBy string) (Closed, error) {
	var (
		res   Closed
		final *models.Match
	)
	start := time.Now()
	err := m.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		res = Closed{}
		match, err := tx.GetMatch(ctx, matchID)
		if errors.Is(err, store.ErrNotFound) {
			return roster.ErrMatchNotFound
		}
		if err != nil {
			return err
		}
		final = match
		if match.IsEmpty() {
			res.Empty = true
			return tx.DeleteMatch(ctx, matchID)
		}
		res.Session = models.NewSessionFromMatch(m.newID(), match, closedBy, m.now())
		if err := tx.PutSession(ctx, res.Session); err != nil {
			return err
		}
		return tx.DeleteMatch(ctx, matchID)
	})
	m.record("close_match", start, err)
	if err != nil {
		return Closed{}, err
	}

	final.Status = models.MatchArchived
	m.publisher.Publish(ctx, notify.MatchEvent{Type: notify.EventMatchClosed, MatchID: matchID, Match: final})

	log := m.logger.WithField("match", matchID)
	if res.Empty {
		log.Info("closed empty match without a session")
		return res, nil
	}

	res.StatFailures = m.creditSession(ctx, res.Session)
	log.WithFields(logrus.Fields{
		"session":      res.Session.ID,
		"participants": len(res.Session.Participants),
		"reserves":     len(res.Session.Reserves),
		"statFailures": res.StatFailures,
	}).Info("match archived")
	return res, nil
}

// creditSession applies the session's contribution one user at a time and
// returns how many writes failed. The archive is already committed, so the
// batch runs detached from the caller's cancellation.
func (m *Manager) creditSession(ctx context.Context, s *models.Session) int {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statCreditTimeout)
	defer cancel()

	var (
		g        errgroup.Group
		failures atomic.Int32
	)
	g.SetLimit(statWriteConcurrency)
	for uid, delta := range stats.Contribution(s) {
		g.Go(func() error {
			if err := m.store.IncrementStats(ctx, uid, delta); err != nil {
				failures.Add(1)
				m.logger.WithFields(logrus.Fields{
					"session": s.ID,
					"user":    uid,
				}).Warnf("failed to update user stats: %v", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(failures.Load())
	if n > 0 {
		m.metrics.StatWriteFailures(n)
	}
	return n
}

// ReopenMatch restores an archived session as an active match and takes its
// contribution back out of the counters, all in one transaction. The restored
// match is attributed to reopenedBy.
func (m *Manager) ReopenMatch(ctx context.Context, sessionID, reopenedBy string) (*models.Match, error) {
	var match *models.Match
	start := time.Now()
	err := m.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		s, err := tx.GetSession(ctx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		taken, err := tx.ActiveMatchAt(ctx, s.Date)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateSchedule
		}

		id := s.MatchID
		if id == "" {
			id = m.newID()
		}
		match = models.NewMatch(id, s.Date, reopenedBy, m.now())
		match.Participants = append(match.Participants, s.Participants...)
		match.Reserves = append(match.Reserves, s.Reserves...)

		if err := tx.PutMatch(ctx, match); err != nil {
			return err
		}
		if !s.IgnoredFromStats {
			if err := stats.ApplyInTx(ctx, tx, stats.Negate(stats.Contribution(s))); err != nil {
				return err
			}
		}
		return tx.DeleteSession(ctx, sessionID)
	})
	if errors.Is(err, store.ErrConflict) {
		err = ErrDuplicateSchedule
	}
	m.record("reopen_match", start, err)
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{"session": sessionID, "match": match.ID}).Info("session reopened")
	m.publisher.Publish(ctx, notify.MatchEvent{Type: notify.EventMatchCreated, MatchID: match.ID, Match: match.Clone()})
	return match, nil
}

// DeleteMatch drops an active match without archiving it.
func (m *Manager) DeleteMatch(ctx context.Context, matchID string) error {
	start := time.Now()
	err := m.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetMatch(ctx, matchID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return roster.ErrMatchNotFound
			}
			return err
		}
		return tx.DeleteMatch(ctx, matchID)
	})
	m.record("delete_match", start, err)
	if err != nil {
		return fmt.Errorf("delete match: %w", err)
	}
	m.logger.WithField("match", matchID).Info("match deleted")
	m.publisher.Publish(ctx, notify.MatchEvent{Type: notify.EventMatchDeleted, MatchID: matchID})
	return nil
}
