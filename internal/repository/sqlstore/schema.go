package sqlstore

import (
	"context"
	"fmt"
)

// The two schemas differ only in column types: SQLite has no TIMESTAMPTZ and
// stores booleans as integers. Calendar dates (shown_date,
// last_affirmation_date) are TEXT "YYYY-MM-DD" in both so that the daily key
// compares as a plain string. Tags and goals are JSON arrays in TEXT columns.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS affirmations (
		id         TEXT PRIMARY KEY,
		content    TEXT NOT NULL,
		category   TEXT NOT NULL,
		tags       TEXT NOT NULL DEFAULT '[]',
		created_by TEXT NOT NULL DEFAULT 'admin',
		is_active  BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_affirmations_active ON affirmations(is_active, category)`,
	`CREATE TABLE IF NOT EXISTS users (
		id                    TEXT PRIMARY KEY,
		email                 TEXT NOT NULL UNIQUE,
		password_hash         TEXT NOT NULL,
		name                  TEXT NOT NULL DEFAULT '',
		goals                 TEXT NOT NULL DEFAULT '[]',
		current_streak        INTEGER NOT NULL DEFAULT 0,
		last_affirmation_date TEXT NOT NULL DEFAULT '',
		created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS interactions (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL REFERENCES users(id),
		affirmation_id TEXT NOT NULL REFERENCES affirmations(id),
		shown_date     TEXT NOT NULL,
		response       TEXT,
		responded_at   DATETIME,
		created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS affirmations (
		id         TEXT PRIMARY KEY,
		content    TEXT NOT NULL,
		category   TEXT NOT NULL,
		tags       TEXT NOT NULL DEFAULT '[]',
		created_by TEXT NOT NULL DEFAULT 'admin',
		is_active  BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_affirmations_active ON affirmations(is_active, category)`,
	`CREATE TABLE IF NOT EXISTS users (
		id                    TEXT PRIMARY KEY,
		email                 TEXT NOT NULL UNIQUE,
		password_hash         TEXT NOT NULL,
		name                  TEXT NOT NULL DEFAULT '',
		goals                 TEXT NOT NULL DEFAULT '[]',
		current_streak        INTEGER NOT NULL DEFAULT 0,
		last_affirmation_date TEXT NOT NULL DEFAULT '',
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS interactions (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL REFERENCES users(id),
		affirmation_id TEXT NOT NULL REFERENCES affirmations(id),
		shown_date     TEXT NOT NULL,
		response       TEXT,
		responded_at   TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id)`,
}

const dailyIndexName = "idx_interactions_user_date"

// Migrate brings the schema up to date. Every step is idempotent, so it runs
// on each start.
//
// Databases created before the daily key was tightened may hold several
// interactions for the same (user, date). Those are collapsed to the earliest
// row (by created_at, then id) before the unique index is created, otherwise
// creating it would fail. Once the index exists the collapse is skipped.
func (db *DB) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if db.dialect == DriverPostgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}

	adminDefault := "BOOLEAN NOT NULL DEFAULT 0"
	if db.dialect == DriverPostgres {
		adminDefault = "BOOLEAN NOT NULL DEFAULT FALSE"
	}
	if err := db.addColumnIfNotExists(ctx, "users", "is_admin", adminDefault); err != nil {
		return fmt.Errorf("adding is_admin to users: %w", err)
	}

	exists, err := db.indexExists(ctx, dailyIndexName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM interactions
		WHERE EXISTS (
			SELECT 1 FROM interactions earlier
			WHERE earlier.user_id = interactions.user_id
			  AND earlier.shown_date = interactions.shown_date
			  AND (earlier.created_at < interactions.created_at
			       OR (earlier.created_at = interactions.created_at AND earlier.id < interactions.id))
		)`)
	if err != nil {
		return fmt.Errorf("collapsing duplicate daily interactions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		db.backfilled = n
	}

	if _, err := db.conn.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS `+dailyIndexName+` ON interactions(user_id, shown_date)`,
	); err != nil {
		return fmt.Errorf("creating daily uniqueness index: %w", err)
	}

	return nil
}

func (db *DB) indexExists(ctx context.Context, name string) (bool, error) {
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`
	if db.dialect == DriverPostgres {
		query = `SELECT COUNT(*) FROM pg_indexes WHERE indexname = ?`
	}
	var count int
	if err := db.conn.GetContext(ctx, &count, db.conn.Rebind(query), name); err != nil {
		return false, fmt.Errorf("checking index %s: %w", name, err)
	}
	return count > 0, nil
}

// Backfilled reports how many duplicate daily interactions the last Migrate
// removed.
func (db *DB) Backfilled() int64 {
	return db.backfilled
}

// addColumnIfNotExists makes ALTER TABLE migrations idempotent.
func (db *DB) addColumnIfNotExists(ctx context.Context, table, column, definition string) error {
	if db.dialect == DriverPostgres {
		_, err := db.conn.ExecContext(ctx, fmt.Sprintf(
			`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s`, table, column, definition,
		))
		return err
	}

	var count int
	err := db.conn.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.ExecContext(ctx, fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
