// Package repository declares the storage contracts the service layer depends
// on. Implementations live in subpackages (sqlstore); services only ever see
// these interfaces, which keeps them testable with in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/affirmations/internal/model"
)

// AffirmationFilter narrows ListAffirmations. The zero value lists every row.
type AffirmationFilter struct {
	ActiveOnly bool
	Categories []model.Category // empty means any category
}

type AffirmationRepository interface {
	CreateAffirmation(ctx context.Context, a *model.Affirmation) error
	GetAffirmation(ctx context.Context, id string) (*model.Affirmation, error)
	// ListAffirmations returns rows ordered by (created_at, id) so that index
	// based selection is stable for a given set.
	ListAffirmations(ctx context.Context, filter AffirmationFilter) ([]model.Affirmation, error)
	UpdateAffirmation(ctx context.Context, id string, patch model.AffirmationPatch) (*model.Affirmation, error)
	CountAffirmations(ctx context.Context) (int, error)
	CountActiveByCategory(ctx context.Context) (map[model.Category]int, error)
}

type UserRepository interface {
	// CreateUser returns apperror.ErrConflict when the email is taken.
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateGoals(ctx context.Context, id string, goals model.StringList) error
	CountUsersByGoal(ctx context.Context) (map[model.Category]int, error)
}

// StreakChange is applied to the user's streak counter in the same
// transaction as an interaction write.
type StreakChange int

const (
	StreakKeep StreakChange = iota
	StreakIncrement
	StreakReset
)

func (c StreakChange) String() string {
	switch c {
	case StreakIncrement:
		return "increment"
	case StreakReset:
		return "reset"
	default:
		return "keep"
	}
}

// InteractionCounts is the raw material for user stats.
type InteractionCounts struct {
	Total    int `db:"total"`
	Affirmed int `db:"affirmed"`
}

type InteractionRepository interface {
	// GetInteraction returns apperror.ErrNotFound when the user has no
	// interaction on date.
	GetInteraction(ctx context.Context, userID, date string) (*model.Interaction, error)

	// CreateInteraction inserts the day's interaction and, atomically with it,
	// applies streak and stamps the user's last affirmation date. When another
	// writer already created the (user, date) row it returns
	// apperror.ErrConflict and changes nothing.
	CreateInteraction(ctx context.Context, in *model.Interaction, streak StreakChange) error

	// RecordResponse attaches a response to an interaction that has none yet,
	// applying streak in the same transaction. An interaction that already has
	// a response yields apperror.ErrConflict.
	RecordResponse(ctx context.Context, in *model.Interaction, response model.Response, at time.Time, streak StreakChange) error

	CountInteractions(ctx context.Context, userID string) (InteractionCounts, error)
}
