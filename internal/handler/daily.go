package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/affirmations/internal/auth"
	"github.com/sakif/affirmations/internal/model"
)

// DailyService is the part of service.DailyService the HTTP layer needs.
type DailyService interface {
	GetTodaysAffirmation(ctx context.Context, userID string) (*model.Affirmation, error)
	RecordResponse(ctx context.Context, userID, affirmationID, response string) error
	TodaysResponse(ctx context.Context, userID string) (*model.Response, error)
	GetUserStats(ctx context.Context, userID string) (model.Stats, error)
}

// AffirmationBody is the public shape of an affirmation.
type AffirmationBody struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Category model.Category `json:"category"`
	Tags     []string       `json:"tags"`
}

// FallbackAffirmation is attached to every daily-affirmation error so the
// client always has something to show.
var FallbackAffirmation = AffirmationBody{
	ID:       "fallback",
	Content:  "I trust my intuition and make decisions with confidence",
	Category: model.CategoryConfidence,
	Tags:     []string{"intuition", "decisions", "confidence"},
}

// DailyErrorResponse is ErrorResponse plus the fallback affirmation.
type DailyErrorResponse struct {
	ErrorResponse
	Fallback AffirmationBody `json:"fallback"`
}

// DailyHandler serves the affirmation of the day.
type DailyHandler struct {
	daily  DailyService
	logger *slog.Logger
}

func NewDailyHandler(daily DailyService, logger *slog.Logger) *DailyHandler {
	return &DailyHandler{daily: daily, logger: logger}
}

// HandleGet returns today's affirmation.
//
// HTTP: GET /api/daily-affirmation?userId=<id>
//
// Without a userId (and without a token) the caller is anonymous and gets
// the date-derived pick shared by every anonymous visitor.
func (h *DailyHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := resolveUserID(r, r.URL.Query().Get("userId"))
	if err != nil {
		h.writeDailyError(w, err)
		return
	}

	a, err := h.daily.GetTodaysAffirmation(r.Context(), userID)
	if err != nil {
		h.logger.Error("daily affirmation failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		h.writeDailyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAffirmationBody(a))
}

func (h *DailyHandler) writeDailyError(w http.ResponseWriter, err error) {
	status, body := errorBody(err)
	writeJSON(w, status, DailyErrorResponse{ErrorResponse: body, Fallback: FallbackAffirmation})
}

func toAffirmationBody(a *model.Affirmation) AffirmationBody {
	tags := []string(a.Tags)
	if tags == nil {
		tags = []string{}
	}
	return AffirmationBody{ID: a.ID, Content: a.Content, Category: a.Category, Tags: tags}
}

// resolveUserID reconciles the userId a client supplied with the token
// subject, when the request carries a valid token. A mismatch is forbidden;
// a missing userId defaults to the token subject.
func resolveUserID(r *http.Request, supplied string) (string, error) {
	supplied = strings.TrimSpace(supplied)
	tokenUser, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return supplied, nil
	}
	if supplied == "" {
		return tokenUser, nil
	}
	if supplied != tokenUser {
		return "", forbiddenOtherUser()
	}
	return supplied, nil
}
