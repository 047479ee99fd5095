package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Liunai/pallavolo/internal/models"
	"github.com/Liunai/pallavolo/internal/store"
)

const sessionColumns = `id, match_id, date, participants, reserves,
	participant_user_ids, reserve_user_ids, ignored_from_stats, closed_by, closed_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		s                      models.Session
		participants, reserves []byte
	)
	err := row.Scan(
		&s.ID, &s.MatchID, &s.Date, &participants, &reserves,
		&s.ParticipantUserIDs, &s.ReserveUserIDs, &s.IgnoredFromStats, &s.ClosedBy, &s.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(participants, &s.Participants); err != nil {
		return nil, fmt.Errorf("decode participants of session %s: %w", s.ID, err)
	}
	if err := json.Unmarshal(reserves, &s.Reserves); err != nil {
		return nil, fmt.Errorf("decode reserves of session %s: %w", s.ID, err)
	}
	return &s, nil
}

func getSession(ctx context.Context, q querier, id string, forUpdate bool) (*models.Session, error) {
	sql := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	s, err := scanSession(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %q: %w", id, err)
	}
	return s, nil
}

func putSession(ctx context.Context, q querier, s *models.Session) error {
	participants, err := json.Marshal(nonNil(s.Participants))
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	reserves, err := json.Marshal(nonNil(s.Reserves))
	if err != nil {
		return fmt.Errorf("encode reserves: %w", err)
	}
	_, err = q.Exec(ctx, `
	INSERT INTO sessions (`+sessionColumns+`)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO UPDATE SET
		ignored_from_stats = EXCLUDED.ignored_from_stats
	`,
		s.ID, s.MatchID, s.Date, participants, reserves,
		s.ParticipantUserIDs, s.ReserveUserIDs, s.IgnoredFromStats, s.ClosedBy, s.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("put session %q: %w", s.ID, err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return getSession(ctx, s.pool, id, false)
}

// ListSessions returns sessions newest first.
func (s *Store) ListSessions(ctx context.Context, filter store.SessionFilter) ([]*models.Session, error) {
	q := `
	SELECT ` + sessionColumns + `
	FROM sessions
	WHERE ($1 = '' OR $1 = ANY(participant_user_ids) OR $1 = ANY(reserve_user_ids))
	  AND ($2 OR NOT ignored_from_stats)
	ORDER BY date DESC
	`
	rows, err := s.pool.Query(ctx, q, filter.UserID, filter.IncludeIgnored)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
