package storage

import (
	"context"
	"fmt"
	"strings"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id    TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	name  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	completed  BOOLEAN NOT NULL DEFAULT FALSE,
	due_date   TIMESTAMPTZ NULL,
	priority   TEXT NOT NULL DEFAULT 'normal' CHECK (priority IN ('low', 'normal', 'high')),
	category   TEXT NOT NULL DEFAULT 'general',
	user_id    TEXT NOT NULL REFERENCES accounts (id),
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS tasks_user_id_created_at_idx ON tasks (user_id, created_at DESC);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id    TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	name  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	completed  BOOLEAN NOT NULL DEFAULT FALSE,
	due_date   TIMESTAMP NULL,
	priority   TEXT NOT NULL DEFAULT 'normal' CHECK (priority IN ('low', 'normal', 'high')),
	category   TEXT NOT NULL DEFAULT 'general',
	user_id    TEXT NOT NULL REFERENCES accounts (id),
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS tasks_user_id_created_at_idx ON tasks (user_id, created_at DESC);
`

func (s *Storage) Migrate(ctx context.Context) error {
	var schema string
	switch s.driver {
	case DriverPostgres:
		schema = postgresSchema
	case DriverSQLite:
		schema = sqliteSchema
	default:
		return fmt.Errorf("no schema for driver %q", s.driver)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storageError("migrate", err)
		}
	}
	return nil
}
