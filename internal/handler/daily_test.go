package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/affirmations/internal/apperror"
	"github.com/sakif/affirmations/internal/auth"
	"github.com/sakif/affirmations/internal/handler"
	"github.com/sakif/affirmations/internal/model"
)

func sampleAffirmation() *model.Affirmation {
	return &model.Affirmation{
		ID:        "aff-1",
		Content:   "I am grateful for the opportunities in my life",
		Category:  model.CategoryGratitude,
		Tags:      model.StringList{"gratitude"},
		CreatedBy: "seed",
		IsActive:  true,
	}
}

func TestDailyHandler_HandleGet(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		daily := &mockDaily{affirmation: sampleAffirmation()}
		h := handler.NewDailyHandler(daily, testLogger())

		rr := httptest.NewRecorder()
		h.HandleGet(rr, httptest.NewRequest(http.MethodGet, "/api/daily-affirmation", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "", daily.lastUserID)
		assert.JSONEq(t, `{
			"id": "aff-1",
			"content": "I am grateful for the opportunities in my life",
			"category": "gratitude",
			"tags": ["gratitude"]
		}`, rr.Body.String())
	})

	t.Run("user id from query", func(t *testing.T) {
		daily := &mockDaily{affirmation: sampleAffirmation()}
		h := handler.NewDailyHandler(daily, testLogger())

		rr := httptest.NewRecorder()
		h.HandleGet(rr, httptest.NewRequest(http.MethodGet, "/api/daily-affirmation?userId=user-1", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "user-1", daily.lastUserID)
	})

	t.Run("user id from token", func(t *testing.T) {
		daily := &mockDaily{affirmation: sampleAffirmation()}
		h := handler.NewDailyHandler(daily, testLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/daily-affirmation", nil)
		req = req.WithContext(auth.WithUserID(req.Context(), "user-9"))
		rr := httptest.NewRecorder()
		h.HandleGet(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "user-9", daily.lastUserID)
	})

	t.Run("nil tags serialise as empty array", func(t *testing.T) {
		a := sampleAffirmation()
		a.Tags = nil
		h := handler.NewDailyHandler(&mockDaily{affirmation: a}, testLogger())

		rr := httptest.NewRecorder()
		h.HandleGet(rr, httptest.NewRequest(http.MethodGet, "/api/daily-affirmation", nil))

		var body handler.AffirmationBody
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.NotNil(t, body.Tags)
		assert.Empty(t, body.Tags)
	})
}

func TestDailyHandler_ErrorsCarryFallback(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		tokenUser  string
		query      string
		wantStatus int
		wantError  string
	}{
		{"empty catalogue", apperror.NoAffirmationsAvailable(), "", "", http.StatusServiceUnavailable, "no_affirmations"},
		{"unknown user", apperror.NotFound("user", "ghost"), "", "?userId=ghost", http.StatusNotFound, "not_found"},
		{"store failure", errors.New("disk I/O error"), "", "?userId=u1", http.StatusInternalServerError, "internal_error"},
		{"other user's id", nil, "user-1", "?userId=user-2", http.StatusForbidden, "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			daily := &mockDaily{affirmation: sampleAffirmation(), err: tt.err}
			h := handler.NewDailyHandler(daily, testLogger())

			req := httptest.NewRequest(http.MethodGet, "/api/daily-affirmation"+tt.query, nil)
			if tt.tokenUser != "" {
				req = req.WithContext(auth.WithUserID(req.Context(), tt.tokenUser))
			}
			rr := httptest.NewRecorder()
			h.HandleGet(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)

			var body handler.DailyErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, tt.wantError, body.Error)
			assert.NotEmpty(t, body.Message)
			assert.Equal(t, handler.FallbackAffirmation, body.Fallback)
			assert.NotContains(t, body.Message, "disk")
		})
	}
}
