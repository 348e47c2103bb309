package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// migrationStep is a single schema version applied inside one transaction.
type migrationStep struct {
	version int
	name    string
	stmts   []string
}

// migrations lists every schema step in order. Append only; never edit a
// shipped step.
var migrations = []migrationStep{
	{
		version: 1,
		name:    "create_users_and_sessions",
		stmts: []string{
			`CREATE TABLE users (
				id            TEXT PRIMARY KEY,
				email         TEXT NOT NULL UNIQUE,
				display_name  TEXT NOT NULL,
				password_hash TEXT NOT NULL,
				is_admin      INTEGER NOT NULL DEFAULT 0,
				created_at    TEXT NOT NULL,
				updated_at    TEXT NOT NULL
			)`,
			`CREATE TABLE sessions (
				id          TEXT PRIMARY KEY,
				user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				token       TEXT NOT NULL UNIQUE,
				fingerprint TEXT NOT NULL,
				expires_at  TEXT NOT NULL,
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL,
				revoked_at  TEXT
			)`,
			`CREATE INDEX idx_sessions_user ON sessions(user_id)`,
			`CREATE INDEX idx_sessions_expires ON sessions(expires_at)`,
		},
	},
	{
		version: 2,
		name:    "create_templates",
		stmts: []string{
			`CREATE TABLE templates (
				id               TEXT PRIMARY KEY,
				owner_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title            TEXT NOT NULL CHECK (length(title) > 0),
				memo             TEXT,
				rule_kind        TEXT NOT NULL,
				weekday          INTEGER NOT NULL DEFAULT 0,
				week_number      INTEGER NOT NULL DEFAULT 0,
				day_number       INTEGER NOT NULL DEFAULT 0,
				month            INTEGER NOT NULL DEFAULT 0,
				start_minutes    INTEGER NOT NULL CHECK (start_minutes >= 0 AND start_minutes < 1440),
				duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
				notify_enabled   INTEGER NOT NULL DEFAULT 0,
				notify_15m       INTEGER NOT NULL DEFAULT 0,
				notify_1h        INTEGER NOT NULL DEFAULT 0,
				notify_3h        INTEGER NOT NULL DEFAULT 0,
				notify_1d        INTEGER NOT NULL DEFAULT 0,
				notify_1w        INTEGER NOT NULL DEFAULT 0,
				notify_end       INTEGER NOT NULL DEFAULT 0,
				enabled          INTEGER NOT NULL DEFAULT 1,
				last_materialized TEXT,
				created_at       TEXT NOT NULL,
				updated_at       TEXT NOT NULL
			)`,
			`CREATE INDEX idx_templates_owner ON templates(owner_id)`,
		},
	},
	{
		version: 3,
		name:    "create_tasks",
		stmts: []string{
			`CREATE TABLE tasks (
				id             TEXT PRIMARY KEY,
				owner_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title          TEXT NOT NULL CHECK (length(title) > 0),
				memo           TEXT,
				start_time     TEXT NOT NULL,
				end_time       TEXT NOT NULL,
				template_id    TEXT REFERENCES templates(id) ON DELETE SET NULL,
				alarm_base_key INTEGER NOT NULL UNIQUE,
				notify_enabled INTEGER NOT NULL DEFAULT 0,
				notify_15m     INTEGER NOT NULL DEFAULT 0,
				notify_1h      INTEGER NOT NULL DEFAULT 0,
				notify_3h      INTEGER NOT NULL DEFAULT 0,
				notify_1d      INTEGER NOT NULL DEFAULT 0,
				notify_1w      INTEGER NOT NULL DEFAULT 0,
				notify_end     INTEGER NOT NULL DEFAULT 0,
				created_at     TEXT NOT NULL,
				updated_at     TEXT NOT NULL,
				CHECK (start_time < end_time)
			)`,
			`CREATE INDEX idx_tasks_owner_start ON tasks(owner_id, start_time)`,
			`CREATE INDEX idx_tasks_template ON tasks(template_id)`,
		},
	},
}

// Migrate brings the database schema up to the latest version. Applied
// versions are recorded in schema_migrations and skipped on later runs.
func Migrate(ctx context.Context, pool *ConnectionPool) error {
	if _, err := pool.DB().ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := pool.DB().QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate schema_migrations: %w", err)
	}
	rows.Close()

	for _, step := range migrations {
		if applied[step.version] {
			continue
		}
		err := pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			for _, stmt := range step.stmts {
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("migration %d (%s): %w", step.version, step.name, err)
				}
			}
			_, err := tx.Exec(
				`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
				step.version, step.name, time.Now().UTC().Format(time.RFC3339),
			)
			return err
		})
		if err != nil {
			return err
		}
	}

	return nil
}
