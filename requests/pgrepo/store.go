// Package pgrepo is the Postgres-backed workflow store. The
// pending-duplicate rule is enforced by partial unique indexes; the
// in-transaction pre-check only exists to produce a friendly conflict
// error before the constraint fires.
package pgrepo

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"github.com/adamcubel/Cubel-Cloud/internal/config"
	"github.com/adamcubel/Cubel-Cloud/internal/errors"
)

const uniqueViolation = "23505"

// Store owns the shared connection pool to the relational store.
type Store struct {
	db *sql.DB
}

func Open(settings *config.DatabaseSettings) (*Store, error) {
	db, err := sql.Open("pgx", settings.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxConns := settings.MaxConnsOrDefault()
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxIdleTime(settings.IdleTimeout())

	log.Info().
		Str("host", settings.Host).
		Str("database", settings.Database).
		Int("max_conns", maxConns).
		Msg("database connection pool created")

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing database handle (used by tests).
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping reports ErrPoolUnavailable when the store cannot be reached.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrPoolUnavailable, err)
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS access_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		user_email TEXT NOT NULL,
		user_name TEXT NOT NULL,
		application_id TEXT NOT NULL,
		application_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		requested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at TIMESTAMPTZ,
		processed_by TEXT,
		notes TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS access_requests_pending_key
		ON access_requests (user_id, application_id) WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS access_requests_triage_idx
		ON access_requests (status, requested_at DESC)`,
	`CREATE TABLE IF NOT EXISTS registration_requests (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		submitted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at TIMESTAMPTZ,
		processed_by TEXT,
		notes TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS registration_requests_pending_key
		ON registration_requests (lower(email)) WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS registration_requests_triage_idx
		ON registration_requests (status, submitted_at DESC)`,
}

// EnsureSchema creates the workflow tables and the partial unique
// indexes that back the pending-duplicate rule.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", mapStoreError(err))
		}
	}
	log.Info().Msg("database schema ensured")
	return nil
}

// mapStoreError translates driver failures into the portal taxonomy:
// unique violations become duplicate-pending conflicts, connection
// failures become pool-unavailable.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", errors.ErrDuplicatePending, pgErr.ConstraintName)
	}

	var netErr net.Error
	var connectErr *pgconn.ConnectError
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &connectErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", errors.ErrPoolUnavailable, err)
	}
	return err
}

// HealthInfo returns the server clock and version reported by the
// database, for the health diagnostics endpoint.
func (s *Store) HealthInfo(ctx context.Context) (currentTime, version string, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT now()::text, version()`)
	if err := row.Scan(&currentTime, &version); err != nil {
		return "", "", mapStoreError(err)
	}
	return currentTime, version, nil
}

// RunQuery executes an ad-hoc diagnostics query and returns its rows as
// column-keyed maps. Exposed only through the admin-restricted query
// endpoint.
func (s *Store) RunQuery(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, mapStoreError(err)
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, mapStoreError(err)
		}
		record := make(map[string]any, len(columns))
		for i, column := range columns {
			if b, ok := values[i].([]byte); ok {
				record[column] = string(b)
			} else {
				record[column] = values[i]
			}
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreError(err)
	}
	return results, nil
}
