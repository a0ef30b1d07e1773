package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/affirmations/internal/apperror"
	"github.com/sakif/affirmations/internal/generator"
	"github.com/sakif/affirmations/internal/model"
	"github.com/sakif/affirmations/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================

// fakeStore is an in-memory implementation of all three repository
// interfaces, mirroring how sqlstore.DB implements them on one type. Streak
// changes are applied under the same lock as the interaction write, like the
// real transaction.
type fakeStore struct {
	mu sync.Mutex

	affirmations []model.Affirmation // creation order
	users        map[string]*model.User
	interactions map[string]*model.Interaction // key: userID + "/" + date
	nextID       int

	// Error injection.
	listErr   error
	createErr error
	getErr    error

	// beforeCreate runs inside CreateInteraction before the uniqueness
	// check. Tests use it to slip in a competing row.
	beforeCreate func()

	// afterList runs once ListAffirmations has released the lock, with the
	// result already built. Tests use it to change the catalogue mid-request.
	afterList func()

	createCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        make(map[string]*model.User),
		interactions: make(map[string]*model.Interaction),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%03d", prefix, f.nextID)
}

// --- AffirmationRepository ---

func (f *fakeStore) CreateAffirmation(ctx context.Context, a *model.Affirmation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = f.id("aff")
	if a.CreatedBy == "" {
		a.CreatedBy = "admin"
	}
	if a.Tags == nil {
		a.Tags = model.StringList{}
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	f.affirmations = append(f.affirmations, *a)
	return nil
}

func (f *fakeStore) GetAffirmation(ctx context.Context, id string) (*model.Affirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.affirmations {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, apperror.NotFound("affirmation", id)
}

func (f *fakeStore) ListAffirmations(ctx context.Context, filter repository.AffirmationFilter) ([]model.Affirmation, error) {
	f.mu.Lock()
	if f.listErr != nil {
		f.mu.Unlock()
		return nil, f.listErr
	}
	out := []model.Affirmation{}
	for _, a := range f.affirmations {
		if filter.ActiveOnly && !a.IsActive {
			continue
		}
		if len(filter.Categories) > 0 && !containsCategory(filter.Categories, a.Category) {
			continue
		}
		out = append(out, a)
	}
	hook := f.afterList
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func containsCategory(list []model.Category, c model.Category) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func (f *fakeStore) UpdateAffirmation(ctx context.Context, id string, patch model.AffirmationPatch) (*model.Affirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.affirmations {
		a := &f.affirmations[i]
		if a.ID != id {
			continue
		}
		if patch.Content != nil {
			a.Content = *patch.Content
		}
		if patch.Category != nil {
			a.Category = *patch.Category
		}
		if patch.Tags != nil {
			a.Tags = *patch.Tags
		}
		if patch.IsActive != nil {
			a.IsActive = *patch.IsActive
		}
		a.UpdatedAt = time.Now()
		out := *a
		return &out, nil
	}
	return nil, apperror.NotFound("affirmation", id)
}

func (f *fakeStore) CountAffirmations(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.affirmations), nil
}

func (f *fakeStore) CountActiveByCategory(ctx context.Context) (map[model.Category]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[model.Category]int)
	for _, a := range f.affirmations {
		if a.IsActive {
			out[a.Category]++
		}
	}
	return out, nil
}

// --- UserRepository ---

func (f *fakeStore) CreateUser(ctx context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return apperror.Conflict("user", u.Email)
		}
	}
	u.ID = f.id("user")
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeStore) UpdateGoals(ctx context.Context, id string, goals model.StringList) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Goals = goals
	return nil
}

func (f *fakeStore) CountUsersByGoal(ctx context.Context) (map[model.Category]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[model.Category]int)
	for _, u := range f.users {
		seen := map[string]bool{}
		for _, g := range u.Goals {
			if !seen[g] {
				seen[g] = true
				out[model.Category(g)]++
			}
		}
	}
	return out, nil
}

// --- InteractionRepository ---

func (f *fakeStore) GetInteraction(ctx context.Context, userID, date string) (*model.Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.interactions[userID+"/"+date]
	if !ok {
		return nil, apperror.NotFound("interaction", userID+"/"+date)
	}
	copied := *in
	return &copied, nil
}

func (f *fakeStore) CreateInteraction(ctx context.Context, in *model.Interaction, streak repository.StreakChange) error {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++

	key := in.UserID + "/" + in.ShownDate
	if _, exists := f.interactions[key]; exists {
		return apperror.Conflict("interaction", key)
	}
	u, ok := f.users[in.UserID]
	if !ok {
		return apperror.NotFound("user", in.UserID)
	}
	in.ID = f.id("int")
	in.CreatedAt = time.Now()
	copied := *in
	f.interactions[key] = &copied
	applyFakeStreak(u, streak)
	u.LastAffirmationDate = in.ShownDate
	return nil
}

func (f *fakeStore) RecordResponse(ctx context.Context, in *model.Interaction, response model.Response, at time.Time, streak repository.StreakChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.interactions[in.UserID+"/"+in.ShownDate]
	if !ok || stored.ID != in.ID || stored.Response != nil {
		return apperror.Conflict("interaction", in.UserID+"/"+in.ShownDate)
	}
	r := response
	stored.Response = &r
	stored.RespondedAt = &at
	applyFakeStreak(f.users[in.UserID], streak)
	in.Response = &r
	in.RespondedAt = &at
	return nil
}

func (f *fakeStore) CountInteractions(ctx context.Context, userID string) (repository.InteractionCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var c repository.InteractionCounts
	for _, in := range f.interactions {
		if in.UserID != userID {
			continue
		}
		c.Total++
		if in.Response != nil && *in.Response == model.ResponseAffirmed {
			c.Affirmed++
		}
	}
	return c, nil
}

func applyFakeStreak(u *model.User, change repository.StreakChange) {
	switch change {
	case repository.StreakIncrement:
		u.CurrentStreak++
	case repository.StreakReset:
		u.CurrentStreak = 0
	}
}

// --- helpers ---

func (f *fakeStore) addAffirmation(content string, c model.Category, active bool) model.Affirmation {
	a := &model.Affirmation{Content: content, Category: c, IsActive: active}
	_ = f.CreateAffirmation(context.Background(), a)
	return *a
}

func (f *fakeStore) addUser(email string, goals ...string) *model.User {
	u := &model.User{Email: email, PasswordHash: "x", Goals: model.StringList(goals)}
	_ = f.CreateUser(context.Background(), u)
	return u
}

func (f *fakeStore) user(id string) model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.users[id]
}

func (f *fakeStore) setStreak(id string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id].CurrentStreak = n
}

func (f *fakeStore) interactionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.interactions)
}

func (f *fakeStore) seed(t *testing.T) {
	t.Helper()
	for _, a := range SeedAffirmations() {
		a := a
		if err := f.CreateAffirmation(context.Background(), &a); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

// =========================================================================
// FAKE CACHE AND GENERATOR
// =========================================================================

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]model.Affirmation
	generation  int64
	gets, sets  int
	invalidated int
	getErr      error
	genErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]model.Affirmation)}
}

func fakeCacheKey(generation int64, date string) string {
	return fmt.Sprintf("%d:%s", generation, date)
}

func (c *fakeCache) Generation(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.genErr != nil {
		return 0, c.genErr
	}
	return c.generation, nil
}

func (c *fakeCache) GetDaily(ctx context.Context, generation int64, date string) (*model.Affirmation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	a, ok := c.entries[fakeCacheKey(generation, date)]
	if !ok {
		return nil, false, nil
	}
	return &a, true, nil
}

func (c *fakeCache) SetDaily(ctx context.Context, generation int64, date string, a *model.Affirmation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[fakeCacheKey(generation, date)] = *a
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	c.generation++
	clear(c.entries)
	return nil
}

type fakeGenerator struct {
	lastReq     generator.Request
	lastContent string
}

func (g *fakeGenerator) Generate(ctx context.Context, req generator.Request) ([]generator.Candidate, error) {
	g.lastReq = req
	out := make([]generator.Candidate, req.Count)
	for i := range out {
		out[i] = generator.Candidate{Content: fmt.Sprintf("draft %d", i), Category: req.Category, Tags: req.Tags}
	}
	return out, nil
}

func (g *fakeGenerator) Categorize(ctx context.Context, content string) (generator.Classification, error) {
	g.lastContent = content
	return generator.Classification{Category: model.CategoryMindset, Tags: []string{"focus"}}, nil
}

// =========================================================================
// SERVICE CONSTRUCTORS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fixedNow is 2026-10-16 09:00 in UTC.
var fixedNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

const fixedDate = "2026-10-16"

func newTestDailyService(store *fakeStore, opts DailyOptions) *DailyService {
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Policy == (StreakPolicy{}) {
		opts.Policy = DefaultStreakPolicy()
	}
	return NewDailyService(store, store, store, testLogger(), opts)
}
