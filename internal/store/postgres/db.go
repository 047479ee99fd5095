// Package postgres implements store.Store on PostgreSQL through a pgx pool.
// Rosters are JSONB columns; every transaction locks the rows it reads with
// SELECT ... FOR UPDATE so concurrent roster writes on one match serialize.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// Connect opens the pool, pings it and applies the schema.
func Connect(ctx context.Context, connStr string, logger *logrus.Logger) (*Store, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.WithField("host", config.ConnConfig.Host).Info("Connected to database")
	return &Store{pool: pool, log: logger}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
