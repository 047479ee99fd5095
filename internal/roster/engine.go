// Package roster owns the participant and reserve lists of active matches.
// Every operation is a single read-modify-write transaction on one match;
// callers are expected to have checked roles already.
package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Liunai/pallavolo/internal/metrics"
	"github.com/Liunai/pallavolo/internal/models"
	"github.com/Liunai/pallavolo/internal/notify"
	"github.com/Liunai/pallavolo/internal/store"
)

type Engine struct {
	store     store.Store
	publisher notify.Publisher
	policy    Policy
	metrics   metrics.Metrics
	logger    *logrus.Logger
	now       func() time.Time
}

func NewEngine(st store.Store, pub notify.Publisher, policy Policy, m metrics.Metrics, logger *logrus.Logger) *Engine {
	return &Engine{
		store:     st,
		publisher: pub,
		policy:    policy,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// mutate loads the match inside a transaction, applies fn and writes it back.
// fn may run more than once if the store retries, so it must only touch m and
// its own locals. The committed match is published after the commit.
func (e *Engine) mutate(ctx context.Context, op, matchID string, fn func(m *models.Match, now time.Time) error) (*models.Match, error) {
	start := time.Now()
	var committed *models.Match
	err := e.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		m, err := tx.GetMatch(ctx, matchID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrMatchNotFound
		}
		if err != nil {
			return err
		}
		now := e.now()
		if err := fn(m, now); err != nil {
			return err
		}
		m.UpdatedAt = now
		if err := tx.PutMatch(ctx, m); err != nil {
			return err
		}
		committed = m
		return nil
	})
	e.metrics.ObserveTx(op, time.Since(start))
	e.metrics.RosterOperation(op, Outcome(err))

	log := e.logger.WithFields(logrus.Fields{"op": op, "match": matchID})
	switch {
	case err == nil:
		log.Debug("roster updated")
	case IsRejection(err):
		log.Infof("roster operation rejected: %v", err)
		return nil, err
	default:
		log.Errorf("roster transaction failed: %v", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	e.publisher.Publish(ctx, notify.MatchEvent{
		Type:    notify.EventMatchUpdated,
		MatchID: matchID,
		Match:   committed.Clone(),
	})
	return committed, nil
}

// Signup adds the member and any guests. A participant signup on a full
// match lands in reserves with Redirected set rather than failing.
func (e *Engine) Signup(ctx context.Context, matchID string, req SignupRequest) (SignupResult, error) {
	var res SignupResult
	m, err := e.mutate(ctx, "signup", matchID, func(m *models.Match, now time.Time) error {
		var err error
		res, err = applySignup(m, e.policy, req, now)
		return err
	})
	if err != nil {
		return SignupResult{}, err
	}
	res.Match = m
	if res.Redirected {
		e.logger.WithFields(logrus.Fields{
			"match": matchID,
			"user":  req.Member.UserID,
		}).Info("participants full, signup redirected to reserves")
	}
	return res, nil
}

// Unsubscribe removes the user's own entry. If the user held a participant
// seat, the first registered reserve is promoted. Their guests stay.
func (e *Engine) Unsubscribe(ctx context.Context, matchID, userID string) (*models.Match, error) {
	return e.mutate(ctx, "unsubscribe", matchID, func(m *models.Match, _ time.Time) error {
		promoted, err := applyUnsubscribe(m, userID)
		e.logPromotion(matchID, promoted)
		return err
	})
}

// AdminRemove removes any entry from the named list, with the same promotion
// rule as Unsubscribe.
func (e *Engine) AdminRemove(ctx context.Context, matchID, entryID string, fromReserves bool) (*models.Match, error) {
	return e.mutate(ctx, "admin_remove", matchID, func(m *models.Match, _ time.Time) error {
		promoted, err := applyRemove(m, entryID, fromReserves)
		e.logPromotion(matchID, promoted)
		return err
	})
}

// PromoteReserve moves a registered reserve to the end of participants.
func (e *Engine) PromoteReserve(ctx context.Context, matchID, entryID string) (*models.Match, error) {
	return e.mutate(ctx, "promote", matchID, func(m *models.Match, _ time.Time) error {
		return applyPromote(m, e.policy, entryID)
	})
}

// RemoveGuest drops one guest from reserves. When sponsorUID is non-empty
// only that user's guests match.
func (e *Engine) RemoveGuest(ctx context.Context, matchID, guestID, sponsorUID string) (*models.Match, error) {
	return e.mutate(ctx, "remove_guest", matchID, func(m *models.Match, _ time.Time) error {
		return applyRemoveGuest(m, guestID, sponsorUID)
	})
}

func (e *Engine) logPromotion(matchID string, promoted *models.RosterEntry) {
	if promoted == nil {
		return
	}
	e.logger.WithFields(logrus.Fields{
		"match": matchID,
		"entry": promoted.EntryID,
	}).Debug("promoted reserve to participant")
}
