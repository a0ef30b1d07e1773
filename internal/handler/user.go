package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/affirmations/internal/apperror"
	"github.com/sakif/affirmations/internal/model"
)

// GoalsService updates onboarding goals. service.AccountService satisfies it.
type GoalsService interface {
	UpdateGoals(ctx context.Context, userID string, goals []string) error
}

// UserHandler serves the per-user endpoints: responses, stats and goals.
type UserHandler struct {
	daily  DailyService
	goals  GoalsService
	logger *slog.Logger
}

func NewUserHandler(daily DailyService, goals GoalsService, logger *slog.Logger) *UserHandler {
	return &UserHandler{daily: daily, goals: goals, logger: logger}
}

type recordResponseRequest struct {
	UserID        string `json:"userId"`
	AffirmationID string `json:"affirmationId"`
	Response      string `json:"response"`
}

// HandleRecordResponse attaches the user's reaction to today's affirmation.
//
// HTTP: POST /api/user/response
// REQUEST BODY: {"userId": "...", "affirmationId": "...", "response": "affirmed"}
func (h *UserHandler) HandleRecordResponse(w http.ResponseWriter, r *http.Request) {
	var req recordResponseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := resolveUserID(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.daily.RecordResponse(r.Context(), userID, req.AffirmationID, req.Response); err != nil {
		h.logIfUnexpected("record response failed", userID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// HandleStats returns {totalAffirmations, streak, successRate}.
//
// streak is the engagement counter kept by service.StreakPolicy; under the
// default policy an affirmed day adds 2 (first view plus response).
//
// HTTP: GET /api/user/stats?userId=<id>
func (h *UserHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	userID, err := resolveUserID(r, r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := h.daily.GetUserStats(r.Context(), userID)
	if err != nil {
		h.logIfUnexpected("stats failed", userID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// TodaysResponseBody carries null when the user has not answered today.
type TodaysResponseBody struct {
	Response *model.Response `json:"response"`
}

// HandleTodaysResponse reports what the user answered today, if anything.
//
// HTTP: GET /api/user/todays-response?userId=<id>
func (h *UserHandler) HandleTodaysResponse(w http.ResponseWriter, r *http.Request) {
	userID, err := resolveUserID(r, r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.daily.TodaysResponse(r.Context(), userID)
	if err != nil {
		h.logIfUnexpected("todays response failed", userID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TodaysResponseBody{Response: resp})
}

type updateGoalsRequest struct {
	UserID string   `json:"userId"`
	Goals  []string `json:"goals"`
}

// HandleUpdateGoals replaces the user's goal categories.
//
// HTTP: POST /api/user/update-goals
// REQUEST BODY: {"userId": "...", "goals": ["confidence", "health"]}
func (h *UserHandler) HandleUpdateGoals(w http.ResponseWriter, r *http.Request) {
	var req updateGoalsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID, err := resolveUserID(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.goals.UpdateGoals(r.Context(), userID, req.Goals); err != nil {
		h.logIfUnexpected("update goals failed", userID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// logIfUnexpected logs errors that will surface as 500s. Client mistakes are
// already visible in the request log.
func (h *UserHandler) logIfUnexpected(msg, userID string, err error) {
	if status, _ := errorStatus(err); status < http.StatusInternalServerError {
		return
	}
	h.logger.Error(msg,
		slog.String("userID", userID),
		slog.String("error", err.Error()),
	)
}

func forbiddenOtherUser() error {
	return apperror.Forbidden("userId does not match the authenticated user")
}
