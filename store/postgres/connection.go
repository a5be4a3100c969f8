package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements store.IdentityStore and store.DocumentStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings and makes sure the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2

	// Transaction poolers do not support prepared statements
	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	company_id    TEXT NOT NULL,
	role          TEXT NOT NULL,
	capabilities  JSONB NOT NULL DEFAULT '{}'::jsonb,
	profile_image TEXT NOT NULL DEFAULT '',
	created       BIGINT NOT NULL,
	updated       BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS users_company_idx ON users (company_id);

CREATE TABLE IF NOT EXISTS documents (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	content          TEXT NOT NULL DEFAULT '',
	owner_id         TEXT NOT NULL,
	company_id       TEXT NOT NULL,
	collaborators    TEXT[] NOT NULL DEFAULT '{}',
	read_permissions TEXT[] NOT NULL DEFAULT '{}',
	edit_permissions TEXT[] NOT NULL DEFAULT '{}',
	created          BIGINT NOT NULL,
	updated          BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_company_idx ON documents (company_id);
`

// isPgDuplicateError checks if error is a unique constraint violation
func isPgDuplicateError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23505 = unique_violation
		return pgErr.Code == "23505"
	}
	return false
}

func isPgNoRowsError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
