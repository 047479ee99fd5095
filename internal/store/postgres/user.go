package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Liunai/pallavolo/internal/models"
	"github.com/Liunai/pallavolo/internal/store"
)

const userColumns = `uid, email, display_name, custom_display_name, photo_url, role, last_login,
	total_sessions, as_participant, as_reserve, friends_brought,
	sets_played, sets_won, sets_lost, point_difference`

func scanUser(row pgx.Row) (*models.UserProfile, error) {
	var (
		u         models.UserProfile
		lastLogin *time.Time
	)
	err := row.Scan(
		&u.UID, &u.Email, &u.DisplayName, &u.CustomDisplayName, &u.PhotoURL, &u.Role, &lastLogin,
		&u.Stats.TotalSessions, &u.Stats.AsParticipant, &u.Stats.AsReserve, &u.Stats.FriendsBrought,
		&u.Stats.SetsPlayed, &u.Stats.SetsWon, &u.Stats.SetsLost, &u.Stats.PointDifference,
	)
	if err != nil {
		return nil, err
	}
	if lastLogin != nil {
		u.LastLogin = *lastLogin
	}
	return &u, nil
}

// applyStats adds delta to a user row, inserting a bare row if the user is unknown.
func applyStats(ctx context.Context, q querier, uid string, d models.StatsDelta) error {
	_, err := q.Exec(ctx, `
	INSERT INTO users (uid, total_sessions, as_participant, as_reserve, friends_brought)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (uid) DO UPDATE SET
		total_sessions = users.total_sessions + EXCLUDED.total_sessions,
		as_participant = users.as_participant + EXCLUDED.as_participant,
		as_reserve = users.as_reserve + EXCLUDED.as_reserve,
		friends_brought = users.friends_brought + EXCLUDED.friends_brought
	`, uid, d.TotalSessions, d.AsParticipant, d.AsReserve, d.FriendsBrought)
	if err != nil {
		return fmt.Errorf("apply stats to user %q: %w", uid, err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, uid string) (*models.UserProfile, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE uid = $1`, uid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", uid, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", uid, err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*models.UserProfile, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY uid`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.UserProfile
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpsertUser(ctx context.Context, u *models.UserProfile) error {
	q := `
	INSERT INTO users (uid, email, display_name, custom_display_name, photo_url, role, last_login)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (uid) DO UPDATE SET
		email = EXCLUDED.email,
		display_name = EXCLUDED.display_name,
		custom_display_name = EXCLUDED.custom_display_name,
		photo_url = EXCLUDED.photo_url,
		role = EXCLUDED.role,
		last_login = EXCLUDED.last_login
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, u.UID, u.Email, u.DisplayName, u.CustomDisplayName, u.PhotoURL, u.Role, u.LastLogin)
		return err
	})
}

func (s *Store) IncrementStats(ctx context.Context, uid string, delta models.StatsDelta) error {
	return applyStats(ctx, s.pool, uid, delta)
}

func (s *Store) SetStats(ctx context.Context, uid string, st models.UserStats) error {
	q := `
	UPDATE users SET
		total_sessions = $2, as_participant = $3, as_reserve = $4, friends_brought = $5,
		sets_played = $6, sets_won = $7, sets_lost = $8, point_difference = $9
	WHERE uid = $1
	`
	ct, err := s.pool.Exec(ctx, q, uid,
		st.TotalSessions, st.AsParticipant, st.AsReserve, st.FriendsBrought,
		st.SetsPlayed, st.SetsWon, st.SetsLost, st.PointDifference,
	)
	if err != nil {
		return fmt.Errorf("set stats of user %q: %w", uid, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("user %q: %w", uid, store.ErrNotFound)
	}
	return nil
}
