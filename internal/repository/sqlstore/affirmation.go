package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	"github.com/sakif/affirmations/internal/apperror"
	"github.com/sakif/affirmations/internal/model"
	"github.com/sakif/affirmations/internal/repository"
)

var _ repository.AffirmationRepository = (*DB)(nil)

const affirmationColumns = `id, content, category, tags, created_by, is_active, created_at, updated_at`

// CreateAffirmation inserts a, filling in ID and timestamps. CreatedBy
// defaults to "admin".
func (db *DB) CreateAffirmation(ctx context.Context, a *model.Affirmation) error {
	a.ID = xid.New().String()
	a.CreatedAt = now()
	a.UpdatedAt = a.CreatedAt
	if a.CreatedBy == "" {
		a.CreatedBy = "admin"
	}
	if a.Tags == nil {
		a.Tags = model.StringList{}
	}

	_, err := db.conn.ExecContext(ctx, db.conn.Rebind(
		`INSERT INTO affirmations (`+affirmationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.Content, string(a.Category), a.Tags, a.CreatedBy, a.IsActive, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: creating affirmation: %w", err)
	}
	return nil
}

// GetAffirmation returns the affirmation with the given id, active or not.
func (db *DB) GetAffirmation(ctx context.Context, id string) (*model.Affirmation, error) {
	var a model.Affirmation
	err := db.conn.GetContext(ctx, &a, db.conn.Rebind(
		`SELECT `+affirmationColumns+` FROM affirmations WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("affirmation", id)
		}
		return nil, fmt.Errorf("sqlstore: getting affirmation %s: %w", id, err)
	}
	return &a, nil
}

// ListAffirmations returns matching rows ordered by (created_at, id).
func (db *DB) ListAffirmations(ctx context.Context, filter repository.AffirmationFilter) ([]model.Affirmation, error) {
	var (
		where []string
		args  []any
	)
	if filter.ActiveOnly {
		where = append(where, "is_active = ?")
		args = append(args, true)
	}
	if len(filter.Categories) > 0 {
		cats := make([]string, len(filter.Categories))
		for i, c := range filter.Categories {
			cats[i] = string(c)
		}
		clause, inArgs, err := sqlx.In("category IN (?)", cats)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: expanding category filter: %w", err)
		}
		where = append(where, clause)
		args = append(args, inArgs...)
	}

	query := `SELECT ` + affirmationColumns + ` FROM affirmations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	out := []model.Affirmation{}
	if err := db.conn.SelectContext(ctx, &out, db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sqlstore: listing affirmations: %w", err)
	}
	return out, nil
}

// UpdateAffirmation applies the non-nil fields of patch and returns the row
// as stored.
func (db *DB) UpdateAffirmation(ctx context.Context, id string, patch model.AffirmationPatch) (*model.Affirmation, error) {
	sets := []string{"updated_at = ?"}
	args := []any{now()}
	if patch.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *patch.Content)
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, string(*patch.Category))
	}
	if patch.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, *patch.Tags)
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *patch.IsActive)
	}
	args = append(args, id)

	res, err := db.conn.ExecContext(ctx, db.conn.Rebind(
		`UPDATE affirmations SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: updating affirmation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return nil, apperror.NotFound("affirmation", id)
	}
	return db.GetAffirmation(ctx, id)
}

// CountAffirmations counts every row, active or not. Seeding uses it to
// detect an empty catalogue.
func (db *DB) CountAffirmations(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM affirmations`); err != nil {
		return 0, fmt.Errorf("sqlstore: counting affirmations: %w", err)
	}
	return n, nil
}

// CountActiveByCategory groups active affirmations by category.
func (db *DB) CountActiveByCategory(ctx context.Context) (map[model.Category]int, error) {
	var rows []struct {
		Category string `db:"category"`
		N        int    `db:"n"`
	}
	err := db.conn.SelectContext(ctx, &rows, db.conn.Rebind(
		`SELECT category, COUNT(*) AS n FROM affirmations WHERE is_active = ? GROUP BY category`), true)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: counting affirmations by category: %w", err)
	}
	out := make(map[model.Category]int, len(rows))
	for _, r := range rows {
		out[model.Category(r.Category)] = r.N
	}
	return out, nil
}
