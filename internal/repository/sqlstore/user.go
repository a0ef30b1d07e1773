package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/affirmations/internal/apperror"
	"github.com/sakif/affirmations/internal/model"
	"github.com/sakif/affirmations/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, password_hash, name, goals, current_streak, last_affirmation_date, is_admin, created_at, updated_at`

// CreateUser inserts u. The email is lower-cased before it is stored; a
// duplicate email is reported as apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, u *model.User) error {
	u.ID = xid.New().String()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = now()
	u.UpdatedAt = u.CreatedAt
	if u.Goals == nil {
		u.Goals = model.StringList{}
	}

	_, err := db.conn.ExecContext(ctx, db.conn.Rebind(
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Email, u.PasswordHash, u.Name, u.Goals, u.CurrentStreak,
		u.LastAffirmationDate, u.IsAdmin, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", u.Email)
		}
		return fmt.Errorf("sqlstore: inserting user (email=%s): %w", u.Email, err)
	}
	return nil
}

// GetUserByID retrieves a user by internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := db.conn.GetContext(ctx, &u, db.conn.Rebind(
		`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlstore: getting user %s: %w", id, err)
	}
	return &u, nil
}

// GetUserByEmail looks a user up by (case-insensitive) email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u model.User
	err := db.conn.GetContext(ctx, &u, db.conn.Rebind(
		`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlstore: getting user by email: %w", err)
	}
	return &u, nil
}

// UpdateGoals replaces the user's goal categories.
func (db *DB) UpdateGoals(ctx context.Context, id string, goals model.StringList) error {
	if goals == nil {
		goals = model.StringList{}
	}
	res, err := db.conn.ExecContext(ctx, db.conn.Rebind(
		`UPDATE users SET goals = ?, updated_at = ? WHERE id = ?`), goals, now(), id)
	if err != nil {
		return fmt.Errorf("sqlstore: updating goals for user %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// CountUsersByGoal counts, per category, the users who picked it as a goal.
// Goals are a JSON list per row, so the grouping happens here rather than in
// SQL, which keeps the query identical across dialects.
func (db *DB) CountUsersByGoal(ctx context.Context) (map[model.Category]int, error) {
	var lists []model.StringList
	if err := db.conn.SelectContext(ctx, &lists, `SELECT goals FROM users`); err != nil {
		return nil, fmt.Errorf("sqlstore: reading user goals: %w", err)
	}
	out := make(map[model.Category]int)
	for _, goals := range lists {
		seen := make(map[string]bool, len(goals))
		for _, g := range goals {
			if seen[g] {
				continue
			}
			seen[g] = true
			out[model.Category(g)]++
		}
	}
	return out, nil
}
