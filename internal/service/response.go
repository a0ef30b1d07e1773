package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/affirmations/internal/apperror"
	"github.com/sakif/affirmations/internal/metrics"
	"github.com/sakif/affirmations/internal/model"
	"github.com/sakif/affirmations/internal/repository"
)

// RecordResponse attaches the user's reaction to today's affirmation.
//
// The update is strict: today's interaction must exist and be for
// affirmationID, and a response can be recorded only once. "affirmed" and
// "not_for_me" move the streak according to the StreakPolicy.
func (s *DailyService) RecordResponse(ctx context.Context, userID, affirmationID, response string) error {
	userID = strings.TrimSpace(userID)
	affirmationID = strings.TrimSpace(affirmationID)
	if userID == "" {
		return apperror.ValidationFailed("userId", "userId is required")
	}
	if affirmationID == "" {
		return apperror.ValidationFailed("affirmationId", "affirmationId is required")
	}
	resp, err := model.ParseResponse(response)
	if err != nil {
		return apperror.ValidationFailed("response", err.Error())
	}

	today := s.Today()
	in, err := s.interactions.GetInteraction(ctx, userID, today)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("today's affirmation for user", userID)
		}
		return fmt.Errorf("loading today's interaction: %w", err)
	}
	if in.AffirmationID != affirmationID {
		return apperror.ValidationFailed("affirmationId", "affirmationId does not match today's affirmation")
	}
	if in.Responded() {
		return apperror.Conflict("response", userID+"/"+today)
	}

	if err := s.interactions.RecordResponse(ctx, in, resp, s.now(), s.streakChangeFor(resp)); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return err
		}
		s.logger.Error("failed to record response",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("recording response: %w", err)
	}

	s.logger.Info("response recorded",
		slog.String("userID", userID),
		slog.String("affirmationID", affirmationID),
		slog.String("response", string(resp)),
	)
	metrics.RecordResponse(string(resp))
	return nil
}

func (s *DailyService) streakChangeFor(r model.Response) repository.StreakChange {
	switch r {
	case model.ResponseAffirmed:
		if s.policy.CountAffirmations {
			return repository.StreakIncrement
		}
	case model.ResponseNotForMe:
		if s.policy.ResetOnSkip {
			return repository.StreakReset
		}
	}
	return repository.StreakKeep
}

// TodaysResponse returns today's recorded response, or nil when the user has
// not been shown or has not answered today's affirmation.
func (s *DailyService) TodaysResponse(ctx context.Context, userID string) (*model.Response, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "userId is required")
	}

	in, err := s.interactions.GetInteraction(ctx, userID, s.Today())
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading today's interaction: %w", err)
	}
	return in.Response, nil
}
