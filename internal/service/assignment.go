// Package service contains the business logic of the affirmation app.
//
// THE LAYERS:
//
//	Handler (HTTP)     → parses requests, writes responses
//	Service (business) → validates, enforces rules, orchestrates
//	Repository (data)  → reads/writes the database
//
// Services take repository interfaces, never *sqlstore.DB, so every rule here
// is tested with the in-memory fakes in fakes_test.go.
package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sakif/affirmations/internal/apperror"
	"github.com/sakif/affirmations/internal/metrics"
	"github.com/sakif/affirmations/internal/model"
	"github.com/sakif/affirmations/internal/repository"
)

// StreakPolicy decides how interactions move the streak counter.
//
// The streak is an engagement counter, not a count of days. With the
// default policy a day in which the user views the affirmation and then
// answers "affirmed" adds 2: one for the first view, one for the response.
// A day with only a view adds 1. Set CountViews to false for one point per
// affirmed day.
//
// The counter is only ever changed in the same transaction as the
// interaction write that caused it, so a lost race never double-counts.
type StreakPolicy struct {
	// CountViews increments the streak when the day's affirmation is first
	// assigned.
	CountViews bool
	// CountAffirmations increments the streak on an "affirmed" response.
	CountAffirmations bool
	// ResetOnSkip sets the streak to zero on a "not_for_me" response.
	// When false the streak is left as is.
	ResetOnSkip bool
}

// DefaultStreakPolicy counts both the first view and every affirmation and
// never resets, so an affirmed day adds 2 to the streak.
func DefaultStreakPolicy() StreakPolicy {
	return StreakPolicy{CountViews: true, CountAffirmations: true}
}

// DailyCache memoises the anonymous pick per catalogue generation and date.
// Invalidate must advance the generation, so a pick computed from a list read
// under an older generation is never served. Implementations live in
// internal/cache.
type DailyCache interface {
	Generation(ctx context.Context) (int64, error)
	GetDaily(ctx context.Context, generation int64, date string) (*model.Affirmation, bool, error)
	SetDaily(ctx context.Context, generation int64, date string, a *model.Affirmation) error
	Invalidate(ctx context.Context) error
}

// DailyOptions carries the optional collaborators of DailyService. Zero
// values fall back to the defaults noted on each field.
type DailyOptions struct {
	Policy   StreakPolicy
	Location *time.Location   // calendar-day boundary; default time.Local
	Now      func() time.Time // default time.Now
	Pick     func(n int) int  // uniform index in [0, n); default rand.IntN
	Cache    DailyCache       // nil disables caching
}

// DailyService assigns the affirmation of the day, records responses and
// reports stats. It is stateless apart from its injected collaborators.
type DailyService struct {
	affirmations repository.AffirmationRepository
	users        repository.UserRepository
	interactions repository.InteractionRepository
	logger       *slog.Logger

	policy StreakPolicy
	loc    *time.Location
	now    func() time.Time
	pick   func(n int) int
	cache  DailyCache
}

func NewDailyService(
	affirmations repository.AffirmationRepository,
	users repository.UserRepository,
	interactions repository.InteractionRepository,
	logger *slog.Logger,
	opts DailyOptions,
) *DailyService {
	s := &DailyService{
		affirmations: affirmations,
		users:        users,
		interactions: interactions,
		logger:       logger,
		policy:       opts.Policy,
		loc:          opts.Location,
		now:          opts.Now,
		pick:         opts.Pick,
		cache:        opts.Cache,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.pick == nil {
		s.pick = rand.IntN
	}
	return s
}

// Today returns the current calendar date in the service time zone.
func (s *DailyService) Today() string {
	return s.now().In(s.loc).Format(model.DateLayout)
}

// GetTodaysAffirmation returns the affirmation of the day.
//
// An empty userID is an anonymous visitor: everyone gets the same pick for a
// given date and nothing is written. A known user gets a goal-weighted random
// pick that is persisted on first call, so every later call that day returns
// the same affirmation.
func (s *DailyService) GetTodaysAffirmation(ctx context.Context, userID string) (*model.Affirmation, error) {
	userID = strings.TrimSpace(userID)
	today := s.Today()
	if userID == "" {
		return s.anonymous(ctx, today)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", userID, err)
	}

	existing, err := s.interactions.GetInteraction(ctx, userID, today)
	switch {
	case err == nil:
		metrics.RecordAssignment("existing")
		return s.affirmationOf(ctx, existing)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("loading today's interaction: %w", err)
	}

	candidates, err := s.candidatesFor(ctx, user)
	if err != nil {
		return nil, err
	}
	chosen := candidates[s.pick(len(candidates))]

	change := repository.StreakKeep
	if s.policy.CountViews {
		change = repository.StreakIncrement
	}

	in := &model.Interaction{UserID: userID, AffirmationID: chosen.ID, ShownDate: today}
	err = s.interactions.CreateInteraction(ctx, in, change)
	if errors.Is(err, apperror.ErrConflict) {
		// A concurrent request assigned today's affirmation first. Its row
		// is authoritative; read it back once.
		s.logger.Info("daily assignment lost race, re-reading",
			slog.String("userID", userID),
			slog.String("date", today),
		)
		existing, err := s.interactions.GetInteraction(ctx, userID, today)
		if err != nil {
			return nil, fmt.Errorf("re-reading today's interaction: %w", err)
		}
		metrics.RecordAssignment("recovered")
		return s.affirmationOf(ctx, existing)
	}
	if err != nil {
		s.logger.Error("failed to create interaction",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating today's interaction: %w", err)
	}

	s.logger.Info("daily affirmation assigned",
		slog.String("userID", userID),
		slog.String("affirmationID", chosen.ID),
		slog.String("category", string(chosen.Category)),
		slog.String("date", today),
	)
	metrics.RecordAssignment("new")
	return &chosen, nil
}

// candidatesFor returns the active affirmations in the user's goal
// categories, or every active affirmation when that set is empty.
func (s *DailyService) candidatesFor(ctx context.Context, user *model.User) ([]model.Affirmation, error) {
	var goals []model.Category
	for _, g := range user.Goals {
		if c := model.Category(g); c.Valid() {
			goals = append(goals, c)
		}
	}

	if len(goals) > 0 {
		matched, err := s.affirmations.ListAffirmations(ctx, repository.AffirmationFilter{
			ActiveOnly: true,
			Categories: goals,
		})
		if err != nil {
			return nil, fmt.Errorf("listing goal affirmations: %w", err)
		}
		if len(matched) > 0 {
			return matched, nil
		}
	}

	all, err := s.affirmations.ListAffirmations(ctx, repository.AffirmationFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("listing active affirmations: %w", err)
	}
	if len(all) == 0 {
		s.logger.Error("no active affirmations", slog.String("userID", user.ID))
		return nil, apperror.NoAffirmationsAvailable()
	}
	return all, nil
}

// anonymous picks index fnv1a(date) mod n over the active set ordered by
// creation, so the result only changes with the date or the catalogue.
//
// The cache generation is read before the active set. If an admin write
// lands in between, the pick is stored under the old generation and no later
// reader sees it.
func (s *DailyService) anonymous(ctx context.Context, date string) (*model.Affirmation, error) {
	useCache := s.cache != nil
	var gen int64
	if useCache {
		var err error
		if gen, err = s.cache.Generation(ctx); err != nil {
			s.logger.Warn("daily cache generation read failed", slog.String("error", err.Error()))
			useCache = false
		}
	}

	if useCache {
		cached, ok, err := s.cache.GetDaily(ctx, gen, date)
		if err != nil {
			s.logger.Warn("daily cache read failed", slog.String("error", err.Error()))
		} else if ok {
			metrics.RecordAssignment("anonymous")
			return cached, nil
		}
	}

	active, err := s.affirmations.ListAffirmations(ctx, repository.AffirmationFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("listing active affirmations: %w", err)
	}
	if len(active) == 0 {
		s.logger.Error("no active affirmations for anonymous pick", slog.String("date", date))
		return nil, apperror.NoAffirmationsAvailable()
	}

	chosen := active[DailyIndex(date, len(active))]

	if useCache {
		if err := s.cache.SetDaily(ctx, gen, date, &chosen); err != nil {
			s.logger.Warn("daily cache write failed", slog.String("error", err.Error()))
		}
	}
	metrics.RecordAssignment("anonymous")
	return &chosen, nil
}

// DailyIndex maps a date string onto [0, n) with 32-bit FNV-1a.
func DailyIndex(date string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(date))
	return int(h.Sum32() % uint32(n))
}

func (s *DailyService) affirmationOf(ctx context.Context, in *model.Interaction) (*model.Affirmation, error) {
	a, err := s.affirmations.GetAffirmation(ctx, in.AffirmationID)
	if err != nil {
		return nil, fmt.Errorf("loading assigned affirmation %s: %w", in.AffirmationID, err)
	}
	return a, nil
}
