package handler_test

import (
	"context"
	"log/slog"
	"os"

	"github.com/sakif/affirmations/internal/generator"
	"github.com/sakif/affirmations/internal/model"
	"github.com/sakif/affirmations/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockDaily records the arguments of the last call and returns canned values.
type mockDaily struct {
	lastUserID        string
	lastAffirmationID string
	lastResponse      string

	affirmation *model.Affirmation
	response    *model.Response
	stats       model.Stats
	err         error
}

func (m *mockDaily) GetTodaysAffirmation(ctx context.Context, userID string) (*model.Affirmation, error) {
	m.lastUserID = userID
	return m.affirmation, m.err
}

func (m *mockDaily) RecordResponse(ctx context.Context, userID, affirmationID, response string) error {
	m.lastUserID, m.lastAffirmationID, m.lastResponse = userID, affirmationID, response
	return m.err
}

func (m *mockDaily) TodaysResponse(ctx context.Context, userID string) (*model.Response, error) {
	m.lastUserID = userID
	return m.response, m.err
}

func (m *mockDaily) GetUserStats(ctx context.Context, userID string) (model.Stats, error) {
	m.lastUserID = userID
	return m.stats, m.err
}

type mockGoals struct {
	lastUserID string
	lastGoals  []string
	err        error
}

func (m *mockGoals) UpdateGoals(ctx context.Context, userID string, goals []string) error {
	m.lastUserID, m.lastGoals = userID, goals
	return m.err
}

type mockAccounts struct {
	result *service.AuthResult
	user   *model.User
	err    error

	lastEmail string
}

func (m *mockAccounts) Signup(ctx context.Context, name, email, password string) (*service.AuthResult, error) {
	m.lastEmail = email
	return m.result, m.err
}

func (m *mockAccounts) Login(ctx context.Context, email, password string) (*service.AuthResult, error) {
	m.lastEmail = email
	return m.result, m.err
}

func (m *mockAccounts) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return m.user, m.err
}

type mockCatalog struct {
	list        []model.Affirmation
	affirmation *model.Affirmation
	drafts      []generator.Candidate
	class       generator.Classification
	areas       []model.AreaStat
	err         error

	lastIncludeInactive bool
	lastCreate          service.CreateInput
	lastUpdateID        string
	lastUpdate          service.UpdateInput
	lastCount           int
	lastTone            string
}

func (m *mockCatalog) List(ctx context.Context, includeInactive bool) ([]model.Affirmation, error) {
	m.lastIncludeInactive = includeInactive
	return m.list, m.err
}

func (m *mockCatalog) Create(ctx context.Context, in service.CreateInput) (*model.Affirmation, error) {
	m.lastCreate = in
	return m.affirmation, m.err
}

func (m *mockCatalog) Update(ctx context.Context, id string, in service.UpdateInput) (*model.Affirmation, error) {
	m.lastUpdateID, m.lastUpdate = id, in
	return m.affirmation, m.err
}

func (m *mockCatalog) Generate(ctx context.Context, category string, tags []string, count int, tone string) ([]generator.Candidate, error) {
	m.lastCount, m.lastTone = count, tone
	return m.drafts, m.err
}

func (m *mockCatalog) Categorize(ctx context.Context, content string) (generator.Classification, error) {
	return m.class, m.err
}

func (m *mockCatalog) AreaStats(ctx context.Context) ([]model.AreaStat, error) {
	return m.areas, m.err
}
