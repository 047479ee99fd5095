// Package store defines the document-store contract the roster, lifecycle and
// stats components run against. Backends live in the subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Liunai/pallavolo/internal/models"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a write collides with a uniqueness rule,
	// e.g. two active matches on the same date.
	ErrConflict = errors.New("document conflict")
)

// Tx is the view of the store inside one atomic transaction. Backends that
// need reads before writes (Firestore) rely on callers reading first.
type Tx interface {
	GetMatch(ctx context.Context, id string) (*models.Match, error)
	// ActiveMatchAt reports whether an active match is scheduled at exactly date.
	ActiveMatchAt(ctx context.Context, date time.Time) (bool, error)
	PutMatch(ctx context.Context, m *models.Match) error
	DeleteMatch(ctx context.Context, id string) error

	GetSession(ctx context.Context, id string) (*models.Session, error)
	PutSession(ctx context.Context, s *models.Session) error
	DeleteSession(ctx context.Context, id string) error

	// ApplyStats adds delta to the user's counters, creating the profile if missing.
	ApplyStats(ctx context.Context, uid string, delta models.StatsDelta) error
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	// UserID keeps only sessions the user attended as participant or reserve.
	UserID         string
	IncludeIgnored bool
}

// Store is the full document store.
type Store interface {
	// RunTx runs fn atomically. If fn returns an error nothing is committed.
	// fn may be invoked more than once by backends that retry on contention.
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetMatch(ctx context.Context, id string) (*models.Match, error)
	ListMatches(ctx context.Context) ([]*models.Match, error)

	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]*models.Session, error)

	GetUser(ctx context.Context, uid string) (*models.UserProfile, error)
	ListUsers(ctx context.Context) ([]*models.UserProfile, error)
	// UpsertUser writes the profile fields of u, creating it if needed.
	// Stats are left untouched on existing users.
	UpsertUser(ctx context.Context, u *models.UserProfile) error
	// IncrementStats applies delta outside any transaction.
	IncrementStats(ctx context.Context, uid string, delta models.StatsDelta) error
	// SetStats overwrites the whole stats block of a user.
	SetStats(ctx context.Context, uid string, stats models.UserStats) error

	Close() error
}
