package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		username      TEXT PRIMARY KEY,
		name          TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		admin         BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS pics (
		id       BIGSERIAL PRIMARY KEY,
		owner    TEXT REFERENCES users(username) ON DELETE SET NULL ON UPDATE CASCADE,
		info     TEXT,
		filename TEXT NOT NULL UNIQUE
	)`,
	`CREATE INDEX IF NOT EXISTS pics_owner_idx ON pics (owner)`,
}

// MigratePostgres applies the schema. Statements are idempotent so the
// function is safe to run on every startup.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrationStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
