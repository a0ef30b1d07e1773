// Package sqlstore implements the repository interfaces on top of sqlx.
//
// Two drivers are supported:
//   - "sqlite"   (modernc.org/sqlite, pure Go, the default; DSN is a file path or ":memory:")
//   - "postgres" (github.com/jackc/pgx/v5/stdlib; DSN is a postgres:// URL)
//
// Every query is written once with `?` placeholders and passed through
// sqlx.Rebind, which rewrites them to `$1, $2, ...` for Postgres. Only the
// schema differs between the two dialects (see schema.go).
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	// sqlx only knows "sqlite3" as a question-mark driver; modernc registers
	// itself as "sqlite".
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Options configures New.
type Options struct {
	Driver       string // DriverSQLite (default) or DriverPostgres
	DSN          string // file path / ":memory:" for sqlite, connection URL for postgres
	MaxOpenConns int    // 0 keeps the driver default
	BusyTimeout  time.Duration
}

// DB wraps an sqlx connection pool and implements every repository interface.
// It is created once at startup and injected; nothing in this package keeps
// global state.
type DB struct {
	conn       *sqlx.DB
	dialect    string
	backfilled int64
}

// New opens the pool, verifies it with a ping and runs migrations.
func New(ctx context.Context, opts Options) (*DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var (
		conn *sqlx.DB
		err  error
	)
	switch driver {
	case DriverSQLite:
		conn, err = sqlx.Open("sqlite", sqliteDSN(opts))
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, errors.New("sqlstore: postgres requires a DSN")
		}
		conn, err = sqlx.Open("pgx", opts.DSN)
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening database: %w", err)
	}

	// An in-memory SQLite database exists per connection, so the pool must
	// never grow past one or tables would silently disappear.
	if driver == DriverSQLite && isMemory(opts.DSN) {
		conn.SetMaxOpenConns(1)
	} else if opts.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if driver == DriverPostgres {
		conn.SetConnMaxLifetime(2 * time.Hour)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: pinging database: %w", err)
	}

	db := &DB{conn: conn, dialect: driver}
	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}
	return db, nil
}

// NewWithDB wraps an already-open handle without migrating. Tests use it with
// go-sqlmock.
func NewWithDB(conn *sqlx.DB, dialect string) *DB {
	return &DB{conn: conn, dialect: dialect}
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Dialect returns the driver name the store was opened with.
func (db *DB) Dialect() string {
	return db.dialect
}

// sqliteDSN appends connection pragmas. modernc applies every _pragma
// parameter to each new connection in the pool, unlike a one-off
// `PRAGMA ...` exec which only reaches the connection that ran it.
func sqliteDSN(opts Options) string {
	path := opts.DSN
	if path == "" {
		path = "data/affirmations.db"
	}
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	params := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", busy.Milliseconds()),
		"_pragma=foreign_keys(1)",
	}
	if !isMemory(path) {
		params = append(params, "_pragma=journal_mode(WAL)")
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.HasPrefix(dsn, ":memory:?") || strings.Contains(dsn, "mode=memory")
}

// withTx runs fn inside a transaction, rolling back on any error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: committing transaction: %w", err)
	}
	return nil
}

// isUniqueViolation recognises a unique-index failure from either driver.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

// now is the store's clock. Timestamps are written in UTC.
func now() time.Time {
	return time.Now().UTC()
}
