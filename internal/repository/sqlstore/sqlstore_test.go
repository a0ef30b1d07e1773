package sqlstore

import (
	"context"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/sakif/affirmations/internal/model"
)

// newTestDB opens a fresh in-memory SQLite database with the full schema.
// Each test gets its own database; t.Cleanup closes it when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), Options{Driver: DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestAffirmation(t *testing.T, db *DB, content string, category model.Category, active bool) *model.Affirmation {
	t.Helper()
	a := &model.Affirmation{
		Content:  content,
		Category: category,
		Tags:     model.StringList{"test"},
		IsActive: active,
	}
	if err := db.CreateAffirmation(context.Background(), a); err != nil {
		t.Fatalf("failed to create test affirmation: %v", err)
	}
	return a
}

func createTestUser(t *testing.T, db *DB, email string, goals ...string) *model.User {
	t.Helper()
	u := &model.User{
		Email:        email,
		PasswordHash: "$2a$04$not-a-real-hash",
		Goals:        model.StringList(goals),
	}
	if err := db.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(context.Background(), Options{Driver: "oracle"})
	if err == nil {
		t.Fatal("New() should reject an unknown driver")
	}
}

func TestNew_PostgresRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), Options{Driver: DriverPostgres})
	if err == nil {
		t.Fatal("New() should reject postgres without a DSN")
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		name     string
		dsn      string
		wantWAL  bool
		wantPath string
	}{
		{"file", "data/test.db", true, "data/test.db?"},
		{"memory", ":memory:", false, ":memory:?"},
		{"existing params", "file:x.db?cache=shared", true, "file:x.db?cache=shared&"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sqliteDSN(Options{DSN: tt.dsn})
			if !strings.HasPrefix(got, tt.wantPath) {
				t.Errorf("sqliteDSN(%q) = %q, want prefix %q", tt.dsn, got, tt.wantPath)
			}
			if !strings.Contains(got, "_pragma=foreign_keys(1)") {
				t.Errorf("sqliteDSN(%q) = %q, missing foreign_keys pragma", tt.dsn, got)
			}
			if strings.Contains(got, "journal_mode(WAL)") != tt.wantWAL {
				t.Errorf("sqliteDSN(%q) = %q, WAL = %v", tt.dsn, got, !tt.wantWAL)
			}
		})
	}
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

// TestMigrate_CollapsesLegacyDuplicates builds a database with the older
// (user, affirmation, date) key, where one user could hold two rows for the
// same day, and checks that migrating keeps only the earliest.
func TestMigrate_CollapsesLegacyDuplicates(t *testing.T) {
	ctx := context.Background()
	conn, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	legacy := []string{
		`CREATE TABLE interactions (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			affirmation_id TEXT NOT NULL,
			shown_date     TEXT NOT NULL,
			response       TEXT,
			responded_at   DATETIME,
			created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, affirmation_id, shown_date)
		)`,
		`INSERT INTO interactions (id, user_id, affirmation_id, shown_date) VALUES
			('a0000000000000000001', 'u1', 'aff1', '2026-10-15'),
			('a0000000000000000002', 'u1', 'aff2', '2026-10-15'),
			('a0000000000000000003', 'u1', 'aff1', '2026-10-16'),
			('a0000000000000000004', 'u2', 'aff1', '2026-10-15')`,
	}
	for _, stmt := range legacy {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("legacy setup: %v", err)
		}
	}

	db := NewWithDB(conn, DriverSQLite)
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if db.Backfilled() != 1 {
		t.Errorf("Backfilled() = %d, want 1", db.Backfilled())
	}

	var ids []string
	if err := conn.SelectContext(ctx, &ids,
		`SELECT id FROM interactions WHERE user_id = 'u1' AND shown_date = '2026-10-15'`); err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(ids) != 1 || ids[0] != "a0000000000000000001" {
		t.Errorf("surviving rows = %v, want the earliest only", ids)
	}

	// The new unique index now rejects a second row for the same day.
	_, err = conn.ExecContext(ctx,
		`INSERT INTO interactions (id, user_id, affirmation_id, shown_date) VALUES ('a0000000000000000009', 'u2', 'aff3', '2026-10-15')`)
	if err == nil {
		t.Fatal("insert of a second same-day interaction should fail after migration")
	}
	if !isUniqueViolation(err) {
		t.Errorf("error = %v, want a unique violation", err)
	}
}

// Row ids are not ordered across processes, so the survivor is chosen by
// created_at; the id only breaks ties.
func TestMigrate_KeepsEarliestByCreatedAt(t *testing.T) {
	ctx := context.Background()
	conn, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	legacy := []string{
		`CREATE TABLE interactions (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			affirmation_id TEXT NOT NULL,
			shown_date     TEXT NOT NULL,
			response       TEXT,
			responded_at   DATETIME,
			created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`INSERT INTO interactions (id, user_id, affirmation_id, shown_date, created_at) VALUES
			('a', 'u1', 'aff1', '2026-10-15', '2026-10-15 09:00:00'),
			('z', 'u1', 'aff2', '2026-10-15', '2026-10-15 08:00:00'),
			('m', 'u1', 'aff3', '2026-10-15', '2026-10-15 08:00:00')`,
	}
	for _, stmt := range legacy {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("legacy setup: %v", err)
		}
	}

	db := NewWithDB(conn, DriverSQLite)
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if db.Backfilled() != 2 {
		t.Errorf("Backfilled() = %d, want 2", db.Backfilled())
	}

	var ids []string
	if err := conn.SelectContext(ctx, &ids, `SELECT id FROM interactions`); err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(ids) != 1 || ids[0] != "m" {
		t.Errorf("surviving rows = %v, want [m] (earliest time, then lowest id)", ids)
	}

	// A second run finds the index and leaves the count untouched.
	again := NewWithDB(conn, DriverSQLite)
	if err := again.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if again.Backfilled() != 0 {
		t.Errorf("second Backfilled() = %d, want 0", again.Backfilled())
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if db.Dialect() != DriverSQLite {
		t.Errorf("Dialect() = %q, want %q", db.Dialect(), DriverSQLite)
	}
}
