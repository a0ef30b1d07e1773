package handler_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/affirmations/internal/apperror"
	"github.com/sakif/affirmations/internal/auth"
	"github.com/sakif/affirmations/internal/handler"
	"github.com/sakif/affirmations/internal/model"
)

func postJSON(target, body string) *http.Request {
	return postJSONWithMethod(http.MethodPost, target, body)
}

func postJSONWithMethod(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// =========================================================================
// POST /api/user/response
// =========================================================================

func TestUserHandler_HandleRecordResponse(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		daily := &mockDaily{}
		h := handler.NewUserHandler(daily, &mockGoals{}, testLogger())

		rr := httptest.NewRecorder()
		h.HandleRecordResponse(rr, postJSON("/api/user/response",
			`{"userId":"u1","affirmationId":"aff-1","response":"affirmed"}`))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"success":true}`, rr.Body.String())
		assert.Equal(t, "u1", daily.lastUserID)
		assert.Equal(t, "aff-1", daily.lastAffirmationID)
		assert.Equal(t, "affirmed", daily.lastResponse)
	})

	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"malformed json", `{"userId":`, nil, http.StatusBadRequest, "validation_error"},
		{"empty body", ``, nil, http.StatusBadRequest, "validation_error"},
		{"two objects", `{}{}`, nil, http.StatusBadRequest, "validation_error"},
		{"invalid response", `{"userId":"u1","affirmationId":"a","response":"meh"}`,
			apperror.ValidationFailed("response", "bad"), http.StatusBadRequest, "validation_error"},
		{"not shown today", `{"userId":"u1","affirmationId":"a","response":"affirmed"}`,
			apperror.NotFound("today's affirmation for user", "u1"), http.StatusNotFound, "not_found"},
		{"already answered", `{"userId":"u1","affirmationId":"a","response":"affirmed"}`,
			apperror.Conflict("response", "u1"), http.StatusConflict, "conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewUserHandler(&mockDaily{err: tt.err}, &mockGoals{}, testLogger())

			rr := httptest.NewRecorder()
			h.HandleRecordResponse(rr, postJSON("/api/user/response", tt.body))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), `"error":"`+tt.wantError+`"`)
		})
	}
}

func TestUserHandler_ValidationFieldIsReported(t *testing.T) {
	h := handler.NewUserHandler(&mockDaily{err: apperror.ValidationFailed("affirmationId", "affirmationId does not match today's affirmation")},
		&mockGoals{}, testLogger())

	rr := httptest.NewRecorder()
	h.HandleRecordResponse(rr, postJSON("/api/user/response", `{"userId":"u1","affirmationId":"x","response":"affirmed"}`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{
		"error": "validation_error",
		"message": "affirmationId does not match today's affirmation",
		"field": "affirmationId"
	}`, rr.Body.String())
}

func TestUserHandler_TokenMismatchIsForbidden(t *testing.T) {
	daily := &mockDaily{}
	h := handler.NewUserHandler(daily, &mockGoals{}, testLogger())

	req := postJSON("/api/user/response", `{"userId":"someone-else","affirmationId":"a","response":"affirmed"}`)
	req = req.WithContext(auth.WithUserID(req.Context(), "me"))
	rr := httptest.NewRecorder()
	h.HandleRecordResponse(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, daily.lastUserID, "service must not be called")
}

// =========================================================================
// GET /api/user/stats and /api/user/todays-response
// =========================================================================

func TestUserHandler_HandleStats(t *testing.T) {
	daily := &mockDaily{stats: model.Stats{TotalAffirmations: 3, Streak: 8, SuccessRate: 67}}
	h := handler.NewUserHandler(daily, &mockGoals{}, testLogger())

	rr := httptest.NewRecorder()
	h.HandleStats(rr, httptest.NewRequest(http.MethodGet, "/api/user/stats?userId=u1", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"totalAffirmations":3,"streak":8,"successRate":67}`, rr.Body.String())
	assert.Equal(t, "u1", daily.lastUserID)
}

func TestUserHandler_HandleStats_MissingUser(t *testing.T) {
	h := handler.NewUserHandler(&mockDaily{err: apperror.ValidationFailed("userId", "userId is required")},
		&mockGoals{}, testLogger())

	rr := httptest.NewRecorder()
	h.HandleStats(rr, httptest.NewRequest(http.MethodGet, "/api/user/stats", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUserHandler_HandleTodaysResponse(t *testing.T) {
	t.Run("not answered", func(t *testing.T) {
		h := handler.NewUserHandler(&mockDaily{}, &mockGoals{}, testLogger())

		rr := httptest.NewRecorder()
		h.HandleTodaysResponse(rr, httptest.NewRequest(http.MethodGet, "/api/user/todays-response?userId=u1", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"response":null}`, rr.Body.String())
	})

	t.Run("answered", func(t *testing.T) {
		r := model.ResponseNotForMe
		h := handler.NewUserHandler(&mockDaily{response: &r}, &mockGoals{}, testLogger())

		rr := httptest.NewRecorder()
		h.HandleTodaysResponse(rr, httptest.NewRequest(http.MethodGet, "/api/user/todays-response?userId=u1", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"response":"not_for_me"}`, rr.Body.String())
	})
}

// =========================================================================
// POST /api/user/update-goals
// =========================================================================

func TestUserHandler_HandleUpdateGoals(t *testing.T) {
	goals := &mockGoals{}
	h := handler.NewUserHandler(&mockDaily{}, goals, testLogger())

	req := postJSON("/api/user/update-goals", `{"goals":["confidence","health"]}`)
	req = req.WithContext(auth.WithUserID(req.Context(), "u1"))
	rr := httptest.NewRecorder()
	h.HandleUpdateGoals(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "u1", goals.lastUserID, "token subject fills a missing userId")
	assert.Equal(t, []string{"confidence", "health"}, goals.lastGoals)
}

func TestUserHandler_HandleUpdateGoals_InvalidCategory(t *testing.T) {
	goals := &mockGoals{err: apperror.ValidationFailed("goals", `unknown category "astrology"`)}
	h := handler.NewUserHandler(&mockDaily{}, goals, testLogger())

	rr := httptest.NewRecorder()
	h.HandleUpdateGoals(rr, postJSON("/api/user/update-goals", `{"userId":"u1","goals":["astrology"]}`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"field":"goals"`)
}
