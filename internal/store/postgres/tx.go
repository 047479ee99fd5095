package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Liunai/pallavolo/internal/models"
	"github.com/Liunai/pallavolo/internal/store"
)

// RunTx runs fn in one database transaction; rows read through the Tx are
// locked until commit.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	return getMatch(ctx, t.tx, id, true)
}

func (t *pgTx) ActiveMatchAt(ctx context.Context, date time.Time) (bool, error) {
	var tmp int
	err := t.tx.QueryRow(ctx, `SELECT 1 FROM active_matches WHERE date = $1 LIMIT 1`, date).Scan(&tmp)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check schedule: %w", err)
	}
	return true, nil
}

func (t *pgTx) PutMatch(ctx context.Context, m *models.Match) error {
	return putMatch(ctx, t.tx, m)
}

func (t *pgTx) DeleteMatch(ctx context.Context, id string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM active_matches WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete match %q: %w", id, err)
	}
	return nil
}

func (t *pgTx) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return getSession(ctx, t.tx, id, true)
}

func (t *pgTx) PutSession(ctx context.Context, s *models.Session) error {
	return putSession(ctx, t.tx, s)
}

func (t *pgTx) DeleteSession(ctx context.Context, id string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session %q: %w", id, err)
	}
	return nil
}

func (t *pgTx) ApplyStats(ctx context.Context, uid string, delta models.StatsDelta) error {
	return applyStats(ctx, t.tx, uid, delta)
}
