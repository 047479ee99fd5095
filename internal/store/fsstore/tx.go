package fsstore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Liunai/pallavolo/internal/models"
)

type fsTx struct {
	s  *Store
	tx *firestore.Transaction
}

func (t *fsTx) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	snap, err := t.tx.Get(t.s.matches().Doc(id))
	if err != nil {
		return nil, notFound(err, "match", id)
	}
	return decodeMatch(snap)
}

func (t *fsTx) ActiveMatchAt(ctx context.Context, date time.Time) (bool, error) {
	docs, err := t.tx.Documents(t.s.matches().Where("date", "==", date).Limit(1)).GetAll()
	if err != nil {
		return false, fmt.Errorf("check schedule: %w", err)
	}
	return len(docs) > 0, nil
}

func (t *fsTx) PutMatch(ctx context.Context, m *models.Match) error {
	return t.tx.Set(t.s.matches().Doc(m.ID), m)
}

func (t *fsTx) DeleteMatch(ctx context.Context, id string) error {
	return t.tx.Delete(t.s.matches().Doc(id))
}

func (t *fsTx) GetSession(ctx context.Context, id string) (*models.Session, error) {
	snap, err := t.tx.Get(t.s.sessions().Doc(id))
	if err != nil {
		return nil, notFound(err, "session", id)
	}
	return decodeSession(snap)
}

func (t *fsTx) PutSession(ctx context.Context, s *models.Session) error {
	return t.tx.Set(t.s.sessions().Doc(s.ID), s)
}

func (t *fsTx) DeleteSession(ctx context.Context, id string) error {
	return t.tx.Delete(t.s.sessions().Doc(id))
}

func (t *fsTx) ApplyStats(ctx context.Context, uid string, delta models.StatsDelta) error {
	if delta.IsZero() {
		return nil
	}
	return t.tx.Set(t.s.users().Doc(uid), statsIncrements(delta), firestore.MergeAll)
}
