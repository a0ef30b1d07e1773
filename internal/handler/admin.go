package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/affirmations/internal/apperror"
	"github.com/sakif/affirmations/internal/auth"
	"github.com/sakif/affirmations/internal/generator"
	"github.com/sakif/affirmations/internal/model"
	"github.com/sakif/affirmations/internal/service"
)

// CatalogService is the part of service.CatalogService the admin routes use.
type CatalogService interface {
	List(ctx context.Context, includeInactive bool) ([]model.Affirmation, error)
	Create(ctx context.Context, in service.CreateInput) (*model.Affirmation, error)
	Update(ctx context.Context, id string, in service.UpdateInput) (*model.Affirmation, error)
	Generate(ctx context.Context, category string, tags []string, count int, tone string) ([]generator.Candidate, error)
	Categorize(ctx context.Context, content string) (generator.Classification, error)
	AreaStats(ctx context.Context) ([]model.AreaStat, error)
}

// AdminHandler serves /api/admin/*. The router mounts it behind RequireAuth
// and RequireAdmin, so every handler here may assume an admin caller.
type AdminHandler struct {
	catalog CatalogService
	logger  *slog.Logger
}

func NewAdminHandler(catalog CatalogService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{catalog: catalog, logger: logger}
}

// HandleList returns active affirmations, or all of them with ?all=true.
//
// HTTP: GET /api/admin/affirmations[?all=true]
func (h *AdminHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	all := false
	if v := r.URL.Query().Get("all"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, apperror.ValidationFailed("all", "all must be true or false"))
			return
		}
		all = parsed
	}

	list, err := h.catalog.List(r.Context(), all)
	if err != nil {
		h.fail(w, "list affirmations", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type createAffirmationRequest struct {
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	IsActive *bool    `json:"isActive"`
}

// HandleCreate adds an affirmation. createdBy is the admin's user ID.
//
// HTTP: POST /api/admin/affirmations
// REQUEST BODY: {"content": "...", "category": "health", "tags": ["sleep"]}
func (h *AdminHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createAffirmationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	createdBy, _ := auth.UserIDFromContext(r.Context())
	a, err := h.catalog.Create(r.Context(), service.CreateInput{
		Content:   req.Content,
		Category:  req.Category,
		Tags:      req.Tags,
		CreatedBy: createdBy,
		IsActive:  req.IsActive,
	})
	if err != nil {
		h.fail(w, "create affirmation", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type updateAffirmationRequest struct {
	Content  *string   `json:"content"`
	Category *string   `json:"category"`
	Tags     *[]string `json:"tags"`
	IsActive *bool     `json:"isActive"`
}

// HandleUpdate applies a partial edit; {"isActive": false} soft-deletes.
//
// HTTP: PATCH /api/admin/affirmations/{id}
func (h *AdminHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateAffirmationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	a, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), service.UpdateInput{
		Content:  req.Content,
		Category: req.Category,
		Tags:     req.Tags,
		IsActive: req.IsActive,
	})
	if err != nil {
		h.fail(w, "update affirmation", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type generateRequest struct {
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Count    int      `json:"count"`
	Tone     string   `json:"tone"`
}

// GenerateResponse wraps the drafts. Nothing is stored until the admin
// posts a chosen draft to HandleCreate.
type GenerateResponse struct {
	Affirmations []generator.Candidate `json:"affirmations"`
}

// HandleGenerate drafts affirmations with the LLM.
//
// HTTP: POST /api/admin/generate-affirmations
// REQUEST BODY: {"category": "career", "tags": ["focus"], "count": 5, "tone": "calming"}
func (h *AdminHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	drafts, err := h.catalog.Generate(r.Context(), req.Category, req.Tags, req.Count, req.Tone)
	if err != nil {
		h.fail(w, "generate affirmations", err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{Affirmations: drafts})
}

type categorizeRequest struct {
	Content string `json:"content"`
}

// HandleCategorize suggests a category and tags for a piece of copy.
//
// HTTP: POST /api/admin/categorize
func (h *AdminHandler) HandleCategorize(w http.ResponseWriter, r *http.Request) {
	var req categorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.catalog.Categorize(r.Context(), req.Content)
	if err != nil {
		h.fail(w, "categorize", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleAreaStats returns per-category affirmation and user counts.
//
// HTTP: GET /api/admin/area-stats
func (h *AdminHandler) HandleAreaStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.catalog.AreaStats(r.Context())
	if err != nil {
		h.fail(w, "area stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := errorStatus(err); status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.String("error", err.Error()))
	}
	writeError(w, err)
}
