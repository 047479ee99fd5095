package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Liunai/pallavolo/internal/models"
	"github.com/Liunai/pallavolo/internal/store"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const matchColumns = `id, date, participants, reserves, status, created_by, created_at, updated_at`

func scanMatch(row pgx.Row) (*models.Match, error) {
	var (
		m                      models.Match
		participants, reserves []byte
	)
	err := row.Scan(&m.ID, &m.Date, &participants, &reserves, &m.Status, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(participants, &m.Participants); err != nil {
		return nil, fmt.Errorf("decode participants of match %s: %w", m.ID, err)
	}
	if err := json.Unmarshal(reserves, &m.Reserves); err != nil {
		return nil, fmt.Errorf("decode reserves of match %s: %w", m.ID, err)
	}
	return &m, nil
}

func getMatch(ctx context.Context, q querier, id string, forUpdate bool) (*models.Match, error) {
	sql := `SELECT ` + matchColumns + ` FROM active_matches WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	m, err := scanMatch(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("match %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get match %q: %w", id, err)
	}
	return m, nil
}

func putMatch(ctx context.Context, q querier, m *models.Match) error {
	participants, err := json.Marshal(nonNil(m.Participants))
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	reserves, err := json.Marshal(nonNil(m.Reserves))
	if err != nil {
		return fmt.Errorf("encode reserves: %w", err)
	}
	_, err = q.Exec(ctx, `
	INSERT INTO active_matches (`+matchColumns+`)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		date = EXCLUDED.date,
		participants = EXCLUDED.participants,
		reserves = EXCLUDED.reserves,
		status = EXCLUDED.status,
		updated_at = EXCLUDED.updated_at
	`, m.ID, m.Date, participants, reserves, m.Status, m.CreatedBy, m.CreatedAt, m.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("match at %s: %w", m.Date.Format(time.RFC3339), store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("put match %q: %w", m.ID, err)
	}
	return nil
}

func (s *Store) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	return getMatch(ctx, s.pool, id, false)
}

func (s *Store) ListMatches(ctx context.Context) ([]*models.Match, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+matchColumns+` FROM active_matches ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func nonNil(entries []models.RosterEntry) []models.RosterEntry {
	if entries == nil {
		return []models.RosterEntry{}
	}
	return entries
}
