package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sakif/affirmations/internal/apperror"
	"github.com/sakif/affirmations/internal/model"
)

// GetUserStats summarises a user's history. The streak is the stored
// counter; it is not recomputed from interactions.
func (s *DailyService) GetUserStats(ctx context.Context, userID string) (model.Stats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.Stats{}, apperror.ValidationFailed("userId", "userId is required")
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return model.Stats{}, fmt.Errorf("loading user %s: %w", userID, err)
	}
	counts, err := s.interactions.CountInteractions(ctx, userID)
	if err != nil {
		return model.Stats{}, fmt.Errorf("counting interactions: %w", err)
	}

	return model.Stats{
		TotalAffirmations: counts.Total,
		Streak:            user.CurrentStreak,
		SuccessRate:       SuccessRate(counts.Affirmed, counts.Total),
	}, nil
}

// SuccessRate is round(100 * affirmed / total), clamped to [0, 100], and 0
// when there is nothing to divide by.
func SuccessRate(affirmed, total int) int {
	if total <= 0 || affirmed <= 0 {
		return 0
	}
	if affirmed >= total {
		return 100
	}
	return int(math.Round(100 * float64(affirmed) / float64(total)))
}
