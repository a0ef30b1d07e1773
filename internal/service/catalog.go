package service

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/sakif/affirmations/internal/apperror"
	"github.com/sakif/affirmations/internal/generator"
	"github.com/sakif/affirmations/internal/model"
	"github.com/sakif/affirmations/internal/repository"
)

const (
	MaxContentLength = 500
	MaxTags          = 10
	MaxTagLength     = 40
)

// CatalogService is the admin side of the affirmation catalogue: CRUD,
// LLM drafting, area stats and seeding.
//
// Admin input is cleaned with a strict bluemonday policy; affirmations are
// plain text and any markup is dropped. Every write invalidates the daily
// cache because the anonymous pick depends on the active set.
type CatalogService struct {
	affirmations repository.AffirmationRepository
	users        repository.UserRepository
	gen          generator.Generator
	cache        DailyCache
	policy       *bluemonday.Policy
	logger       *slog.Logger
}

func NewCatalogService(
	affirmations repository.AffirmationRepository,
	users repository.UserRepository,
	gen generator.Generator,
	cache DailyCache,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		affirmations: affirmations,
		users:        users,
		gen:          gen,
		cache:        cache,
		policy:       bluemonday.StrictPolicy(),
		logger:       logger,
	}
}

// CreateInput is an admin-submitted affirmation.
type CreateInput struct {
	Content   string
	Category  string
	Tags      []string
	CreatedBy string
	IsActive  *bool // nil means active
}

// UpdateInput lists the editable fields; nil fields are left unchanged.
type UpdateInput struct {
	Content  *string
	Category *string
	Tags     *[]string
	IsActive *bool
}

func (s *CatalogService) Create(ctx context.Context, in CreateInput) (*model.Affirmation, error) {
	content, err := s.cleanContent(in.Content)
	if err != nil {
		return nil, err
	}
	category, err := model.ParseCategory(in.Category)
	if err != nil {
		return nil, apperror.ValidationFailed("category", err.Error())
	}
	tags, err := s.cleanTags(in.Tags)
	if err != nil {
		return nil, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	a := &model.Affirmation{
		Content:   content,
		Category:  category,
		Tags:      tags,
		CreatedBy: s.clean(in.CreatedBy),
		IsActive:  active,
	}
	if err := s.affirmations.CreateAffirmation(ctx, a); err != nil {
		s.logger.Error("failed to create affirmation", slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating affirmation: %w", err)
	}

	s.logger.Info("affirmation created",
		slog.String("id", a.ID),
		slog.String("category", string(a.Category)),
	)
	s.invalidate(ctx)
	return a, nil
}

// List returns active affirmations, or every affirmation when
// includeInactive is set.
func (s *CatalogService) List(ctx context.Context, includeInactive bool) ([]model.Affirmation, error) {
	list, err := s.affirmations.ListAffirmations(ctx, repository.AffirmationFilter{ActiveOnly: !includeInactive})
	if err != nil {
		s.logger.Error("failed to list affirmations", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing affirmations: %w", err)
	}
	return list, nil
}

// Update applies a partial edit. Setting IsActive to false is the soft
// delete.
func (s *CatalogService) Update(ctx context.Context, id string, in UpdateInput) (*model.Affirmation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "affirmation ID is required")
	}

	var patch model.AffirmationPatch
	if in.Content != nil {
		content, err := s.cleanContent(*in.Content)
		if err != nil {
			return nil, err
		}
		patch.Content = &content
	}
	if in.Category != nil {
		c, err := model.ParseCategory(*in.Category)
		if err != nil {
			return nil, apperror.ValidationFailed("category", err.Error())
		}
		patch.Category = &c
	}
	if in.Tags != nil {
		tags, err := s.cleanTags(*in.Tags)
		if err != nil {
			return nil, err
		}
		patch.Tags = &tags
	}
	patch.IsActive = in.IsActive

	if patch.Content == nil && patch.Category == nil && patch.Tags == nil && patch.IsActive == nil {
		return nil, apperror.ValidationFailed("body", "no editable fields supplied")
	}

	a, err := s.affirmations.UpdateAffirmation(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	s.logger.Info("affirmation updated",
		slog.String("id", a.ID),
		slog.Bool("active", a.IsActive),
	)
	s.invalidate(ctx)
	return a, nil
}

// Generate drafts candidates. Nothing is stored.
func (s *CatalogService) Generate(ctx context.Context, category string, tags []string, count int, tone string) ([]generator.Candidate, error) {
	c, err := model.ParseCategory(category)
	if err != nil {
		return nil, apperror.ValidationFailed("category", err.Error())
	}
	if tags == nil {
		return nil, apperror.ValidationFailed("tags", "tags array is required")
	}
	cleanTags, err := s.cleanTags(tags)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		count = generator.DefaultCount
	}
	if count < 1 || count > generator.MaxCount {
		return nil, apperror.ValidationFailed("count",
			fmt.Sprintf("count must be between 1 and %d", generator.MaxCount))
	}

	t := generator.Tone(strings.ToLower(strings.TrimSpace(tone)))
	if t == "" {
		t = generator.DefaultTone
	}
	if !t.Valid() {
		return nil, apperror.ValidationFailed("tone", "tone must be gentle, powerful, motivational or calming")
	}

	return s.gen.Generate(ctx, generator.Request{
		Category: c,
		Tags:     cleanTags,
		Count:    count,
		Tone:     t,
	})
}

// Categorize suggests a category and tags for content.
func (s *CatalogService) Categorize(ctx context.Context, content string) (generator.Classification, error) {
	content, err := s.cleanContent(content)
	if err != nil {
		return generator.Classification{}, err
	}
	return s.gen.Categorize(ctx, content)
}

// AreaStats reports, per category, how many active affirmations exist and
// how many users picked it as a goal. Every category is present.
func (s *CatalogService) AreaStats(ctx context.Context) ([]model.AreaStat, error) {
	active, err := s.affirmations.CountActiveByCategory(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting affirmations by category: %w", err)
	}
	users, err := s.users.CountUsersByGoal(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting users by goal: %w", err)
	}

	stats := make([]model.AreaStat, 0, len(model.Categories))
	for _, c := range model.Categories {
		stats = append(stats, model.AreaStat{
			Category:         c,
			AffirmationCount: active[c],
			UserCount:        users[c],
		})
	}
	return stats, nil
}

// SeedIfEmpty inserts SeedAffirmations when the table has no rows at all.
// It returns how many rows were inserted.
func (s *CatalogService) SeedIfEmpty(ctx context.Context) (int, error) {
	n, err := s.affirmations.CountAffirmations(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting affirmations: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	for i, seed := range SeedAffirmations() {
		a := seed
		if err := s.affirmations.CreateAffirmation(ctx, &a); err != nil {
			return i, fmt.Errorf("seeding affirmation %d: %w", i, err)
		}
	}
	s.logger.Info("seeded affirmations", slog.Int("count", len(SeedAffirmations())))
	s.invalidate(ctx)
	return len(SeedAffirmations()), nil
}

// clean strips markup. bluemonday escapes what it keeps, and affirmations are
// stored as plain text, so entities are decoded again.
func (s *CatalogService) clean(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(v)))
}

func (s *CatalogService) cleanContent(v string) (string, error) {
	content := s.clean(v)
	if content == "" {
		return "", apperror.ValidationFailed("content", "content is required")
	}
	if len([]rune(content)) > MaxContentLength {
		return "", apperror.ValidationFailed("content",
			fmt.Sprintf("content must be %d characters or less", MaxContentLength))
	}
	return content, nil
}

func (s *CatalogService) cleanTags(tags []string) (model.StringList, error) {
	out := make(model.StringList, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(s.clean(t))
		if t == "" || out.Contains(t) {
			continue
		}
		if len(t) > MaxTagLength {
			return nil, apperror.ValidationFailed("tags",
				fmt.Sprintf("tags must be %d characters or less", MaxTagLength))
		}
		out = append(out, t)
	}
	if len(out) > MaxTags {
		return nil, apperror.ValidationFailed("tags", fmt.Sprintf("at most %d tags are allowed", MaxTags))
	}
	return out, nil
}

func (s *CatalogService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("daily cache invalidation failed", slog.String("error", err.Error()))
	}
}
