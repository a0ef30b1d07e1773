package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	"github.com/sakif/affirmations/internal/apperror"
	"github.com/sakif/affirmations/internal/model"
	"github.com/sakif/affirmations/internal/repository"
)

var _ repository.InteractionRepository = (*DB)(nil)

const interactionColumns = `id, user_id, affirmation_id, shown_date, response, responded_at, created_at`

// GetInteraction returns the user's interaction for date ("YYYY-MM-DD").
func (db *DB) GetInteraction(ctx context.Context, userID, date string) (*model.Interaction, error) {
	var in model.Interaction
	err := db.conn.GetContext(ctx, &in, db.conn.Rebind(
		`SELECT `+interactionColumns+` FROM interactions WHERE user_id = ? AND shown_date = ?`),
		userID, date,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("interaction", userID+"/"+date)
		}
		return nil, fmt.Errorf("sqlstore: getting interaction %s/%s: %w", userID, date, err)
	}
	return &in, nil
}

// CreateInteraction inserts the day's interaction and updates the user's
// streak in one transaction.
//
// The insert uses ON CONFLICT DO NOTHING against the (user_id, shown_date)
// unique index. Zero affected rows means a concurrent request won the race:
// the transaction is rolled back, so the streak is bumped exactly once, and
// the caller gets apperror.ErrConflict.
func (db *DB) CreateInteraction(ctx context.Context, in *model.Interaction, streak repository.StreakChange) error {
	in.ID = xid.New().String()
	in.CreatedAt = now()
	in.Response = nil
	in.RespondedAt = nil

	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(
			`INSERT INTO interactions (id, user_id, affirmation_id, shown_date, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (user_id, shown_date) DO NOTHING`),
			in.ID, in.UserID, in.AffirmationID, in.ShownDate, in.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlstore: inserting interaction for user %s: %w", in.UserID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlstore: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.Conflict("interaction", in.UserID+"/"+in.ShownDate)
		}
		return applyStreak(ctx, tx, in.UserID, streak, in.ShownDate)
	})
}

// RecordResponse sets the response on an interaction that has none. The
// `response IS NULL` guard makes the update a compare-and-set: of two
// concurrent calls only one affects a row.
func (db *DB) RecordResponse(ctx context.Context, in *model.Interaction, response model.Response, at time.Time, streak repository.StreakChange) error {
	at = at.UTC()
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(
			`UPDATE interactions SET response = ?, responded_at = ?
			 WHERE id = ? AND response IS NULL`),
			string(response), at, in.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlstore: recording response on %s: %w", in.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlstore: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.Conflict("interaction", in.UserID+"/"+in.ShownDate)
		}
		return applyStreak(ctx, tx, in.UserID, streak, "")
	})
	if err != nil {
		return err
	}
	in.Response = &response
	in.RespondedAt = &at
	return nil
}

// CountInteractions returns how many interactions the user has and how many
// of them were affirmed.
func (db *DB) CountInteractions(ctx context.Context, userID string) (repository.InteractionCounts, error) {
	var c repository.InteractionCounts
	err := db.conn.GetContext(ctx, &c, db.conn.Rebind(
		`SELECT COUNT(*) AS total,
		        COALESCE(SUM(CASE WHEN response = ? THEN 1 ELSE 0 END), 0) AS affirmed
		 FROM interactions WHERE user_id = ?`),
		string(model.ResponseAffirmed), userID,
	)
	if err != nil {
		return c, fmt.Errorf("sqlstore: counting interactions for user %s: %w", userID, err)
	}
	return c, nil
}

// applyStreak updates the streak counter inside tx. A non-empty date is also
// stored as the user's last affirmation date.
func applyStreak(ctx context.Context, tx *sqlx.Tx, userID string, change repository.StreakChange, date string) error {
	var expr string
	switch change {
	case repository.StreakIncrement:
		expr = "current_streak = current_streak + 1"
	case repository.StreakReset:
		expr = "current_streak = 0"
	default:
		if date == "" {
			return nil
		}
		expr = "current_streak = current_streak"
	}

	query := `UPDATE users SET ` + expr + `, updated_at = ?`
	args := []any{now()}
	if date != "" {
		query += `, last_affirmation_date = ?`
		args = append(args, date)
	}
	query += ` WHERE id = ?`
	args = append(args, userID)

	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("sqlstore: applying streak %s to user %s: %w", change, userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}
