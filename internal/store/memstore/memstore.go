// Package memstore is an in-process store.Store. A single mutex serializes
// transactions, which gives the same isolation the database backends provide.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Liunai/pallavolo/internal/models"
	"github.com/Liunai/pallavolo/internal/store"
)

type Store struct {
	mu       sync.Mutex
	matches  map[string]*models.Match
	sessions map[string]*models.Session
	users    map[string]*models.UserProfile
}

func New() *Store {
	return &Store{
		matches:  make(map[string]*models.Match),
		sessions: make(map[string]*models.Session),
		users:    make(map[string]*models.UserProfile),
	}
}

// RunTx stages writes in a memTx and applies them only if fn succeeds.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:        s,
		matches:  make(map[string]*models.Match),
		sessions: make(map[string]*models.Session),
		deltas:   make(map[string]models.StatsDelta),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %q: %w", id, store.ErrNotFound)
	}
	return m.Clone(), nil
}

func (s *Store) ListMatches(ctx context.Context) ([]*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Match, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, store.ErrNotFound)
	}
	return cloneSession(sess), nil
}

// ListSessions returns matching sessions newest first.
func (s *Store) ListSessions(ctx context.Context, filter store.SessionFilter) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.IgnoredFromStats && !filter.IncludeIgnored {
			continue
		}
		if filter.UserID != "" && !sess.Involves(filter.UserID) {
			continue
		}
		out = append(out, cloneSession(sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, uid string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", uid, store.ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.UserProfile, 0, len(s.users))
	for _, u := range s.users {
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (s *Store) UpsertUser(ctx context.Context, u *models.UserProfile) error {
	if u.UID == "" {
		return fmt.Errorf("upsert user: empty uid")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *u
	if existing, ok := s.users[u.UID]; ok {
		c.Stats = existing.Stats
	}
	s.users[u.UID] = &c
	return nil
}

func (s *Store) IncrementStats(ctx context.Context, uid string, delta models.StatsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyStatsLocked(uid, delta)
	return nil
}

func (s *Store) SetStats(ctx context.Context, uid string, stats models.UserStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return fmt.Errorf("user %q: %w", uid, store.ErrNotFound)
	}
	u.Stats = stats
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) applyStatsLocked(uid string, delta models.StatsDelta) {
	u, ok := s.users[uid]
	if !ok {
		u = &models.UserProfile{UID: uid, Role: models.RoleUser}
		s.users[uid] = u
	}
	u.Stats = u.Stats.Apply(delta)
}

// memTx holds staged writes. A nil map value marks a deletion.
type memTx struct {
	s        *Store
	matches  map[string]*models.Match
	sessions map[string]*models.Session
	deltas   map[string]models.StatsDelta
}

func (tx *memTx) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	if m, staged := tx.matches[id]; staged {
		if m == nil {
			return nil, fmt.Errorf("match %q: %w", id, store.ErrNotFound)
		}
		return m.Clone(), nil
	}
	m, ok := tx.s.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %q: %w", id, store.ErrNotFound)
	}
	return m.Clone(), nil
}

func (tx *memTx) ActiveMatchAt(ctx context.Context, date time.Time) (bool, error) {
	for id, m := range tx.s.matches {
		if staged, ok := tx.matches[id]; ok && staged == nil {
			continue
		}
		if m.Date.Equal(date) {
			return true, nil
		}
	}
	for _, m := range tx.matches {
		if m != nil && m.Date.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memTx) PutMatch(ctx context.Context, m *models.Match) error {
	tx.matches[m.ID] = m.Clone()
	return nil
}

func (tx *memTx) DeleteMatch(ctx context.Context, id string) error {
	tx.matches[id] = nil
	return nil
}

func (tx *memTx) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if sess, staged := tx.sessions[id]; staged {
		if sess == nil {
			return nil, fmt.Errorf("session %q: %w", id, store.ErrNotFound)
		}
		return cloneSession(sess), nil
	}
	sess, ok := tx.s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, store.ErrNotFound)
	}
	return cloneSession(sess), nil
}

func (tx *memTx) PutSession(ctx context.Context, sess *models.Session) error {
	tx.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (tx *memTx) DeleteSession(ctx context.Context, id string) error {
	tx.sessions[id] = nil
	return nil
}

func (tx *memTx) ApplyStats(ctx context.Context, uid string, delta models.StatsDelta) error {
	tx.deltas[uid] = tx.deltas[uid].Add(delta)
	return nil
}

func (tx *memTx) commit() {
	for id, m := range tx.matches {
		if m == nil {
			delete(tx.s.matches, id)
			continue
		}
		tx.s.matches[id] = m
	}
	for id, sess := range tx.sessions {
		if sess == nil {
			delete(tx.s.sessions, id)
			continue
		}
		tx.s.sessions[id] = sess
	}
	for uid, d := range tx.deltas {
		tx.s.applyStatsLocked(uid, d)
	}
}

func cloneSession(s *models.Session) *models.Session {
	c := *s
	c.Participants = append([]models.RosterEntry(nil), s.Participants...)
	c.Reserves = append([]models.RosterEntry(nil), s.Reserves...)
	c.ParticipantUserIDs = append([]string(nil), s.ParticipantUserIDs...)
	c.ReserveUserIDs = append([]string(nil), s.ReserveUserIDs...)
	return &c
}
