// Package openai implements generator.Generator against an OpenAI-compatible
// chat-completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/sakif/affirmations/internal/generator"
	"github.com/sakif/affirmations/internal/metrics"
	"github.com/sakif/affirmations/internal/model"
)

const (
	generateSystemPrompt   = "You write short first-person affirmations grounded in positive psychology. Reply with JSON only."
	categorizeSystemPrompt = "You classify personal-development copy. Reply with JSON only."

	maxResponseBytes = 1 << 20
)

var _ generator.Generator = (*Client)(nil)

// Client calls the chat-completions API. The bearer token is attached by an
// oauth2 static token source, so requests carry no hand-built auth header.
type Client struct {
	http   *http.Client
	config Config
	logger *slog.Logger
	slots  chan struct{}
}

// New builds a Client. Zero fields in cfg take DefaultConfig values.
func New(cfg Config, logger *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	var hc *http.Client
	if cfg.APIKey != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
		hc = oauth2.NewClient(context.Background(), src)
	}

	return &Client{
		http:   hc,
		config: cfg,
		logger: logger,
		slots:  make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.http != nil
}

// Generate drafts req.Count candidates. It only returns an error when ctx
// ends while waiting for a slot; every upstream problem yields the fallback.
func (c *Client) Generate(ctx context.Context, req generator.Request) ([]generator.Candidate, error) {
	start := time.Now()
	if req.Count <= 0 {
		req.Count = generator.DefaultCount
	}
	if !req.Tone.Valid() {
		req.Tone = generator.DefaultTone
	}

	if !c.Enabled() {
		c.logger.Warn("generator disabled, returning fallback", slog.String("category", string(req.Category)))
		metrics.RecordGeneration("generate", time.Since(start), true)
		return generator.Fallback(req), nil
	}

	prompt := fmt.Sprintf(`Write %d affirmations for the area %q, related to these tags: %s.
Tone: %s. First person, 10 to 20 words each, specific and fresh.
Return a JSON array of objects with keys "content", "reasoning" (one sentence) and "tags" (3 to 5 strings).`,
		req.Count, req.Category, strings.Join(req.Tags, ", "), req.Tone)

	text, err := c.complete(ctx, generateSystemPrompt, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Error("generation failed, returning fallback",
			slog.String("category", string(req.Category)),
			slog.String("error", err.Error()),
		)
		metrics.RecordGeneration("generate", time.Since(start), true)
		return generator.Fallback(req), nil
	}

	candidates := parseCandidates(text, req)
	if len(candidates) == 0 {
		c.logger.Error("generation output unparseable, returning fallback",
			slog.String("category", string(req.Category)),
			slog.Int("bytes", len(text)),
		)
		metrics.RecordGeneration("generate", time.Since(start), true)
		return generator.Fallback(req), nil
	}

	c.logger.Info("affirmations generated",
		slog.String("category", string(req.Category)),
		slog.Int("count", len(candidates)),
		slog.Duration("duration", time.Since(start)),
	)
	metrics.RecordGeneration("generate", time.Since(start), false)
	return candidates, nil
}

// Categorize suggests a category and tags for content, falling back to
// generator.DefaultClassification.
func (c *Client) Categorize(ctx context.Context, content string) (generator.Classification, error) {
	start := time.Now()
	if !c.Enabled() {
		metrics.RecordGeneration("categorize", time.Since(start), true)
		return generator.DefaultClassification(), nil
	}

	names := make([]string, len(model.Categories))
	for i, cat := range model.Categories {
		names[i] = string(cat)
	}
	prompt := fmt.Sprintf(`Affirmation: %q
Pick the single best category from: %s.
Return a JSON object with keys "category" and "tags" (3 to 5 strings).`,
		content, strings.Join(names, ", "))

	text, err := c.complete(ctx, categorizeSystemPrompt, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return generator.Classification{}, ctx.Err()
		}
		c.logger.Error("categorize failed, returning default", slog.String("error", err.Error()))
		metrics.RecordGeneration("categorize", time.Since(start), true)
		return generator.DefaultClassification(), nil
	}

	cls, ok := parseClassification(text)
	if !ok {
		c.logger.Error("categorize output unparseable, returning default", slog.Int("bytes", len(text)))
		metrics.RecordGeneration("categorize", time.Since(start), true)
		return generator.DefaultClassification(), nil
	}
	metrics.RecordGeneration("categorize", time.Since(start), false)
	return cls, nil
}

// complete sends one chat-completions request and returns the first choice's
// message content.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	select {
	case c.slots <- struct{}{}:
		defer func() { <-c.slots }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"model":       c.config.Model,
		"temperature": c.config.Temperature,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai: calling upstream: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("openai: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("openai: upstream status %d: %s", resp.StatusCode, msg)
	}

	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() || content.String() == "" {
		return "", errors.New("openai: response has no message content")
	}
	return content.String(), nil
}

// stripFences removes a ```json ... ``` wrapper that chat models often add.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func parseCandidates(text string, req generator.Request) []generator.Candidate {
	text = stripFences(text)
	if !gjson.Valid(text) {
		return nil
	}
	parsed := gjson.Parse(text)
	// Some models wrap the array: {"affirmations": [...]}.
	if parsed.IsObject() {
		parsed = parsed.Get("affirmations")
	}
	if !parsed.IsArray() {
		return nil
	}

	var out []generator.Candidate
	parsed.ForEach(func(_, item gjson.Result) bool {
		content := strings.TrimSpace(item.Get("content").String())
		if content == "" {
			return true
		}
		tags := stringArray(item.Get("tags"))
		if len(tags) == 0 {
			tags = req.Tags
		}
		out = append(out, generator.Candidate{
			Content:   content,
			Category:  req.Category,
			Tags:      tags,
			Reasoning: strings.TrimSpace(item.Get("reasoning").String()),
		})
		return len(out) < req.Count
	})
	return out
}

func parseClassification(text string) (generator.Classification, bool) {
	text = stripFences(text)
	if !gjson.Valid(text) {
		return generator.Classification{}, false
	}
	parsed := gjson.Parse(text)
	cat, err := model.ParseCategory(parsed.Get("category").String())
	if err != nil {
		return generator.Classification{}, false
	}
	tags := stringArray(parsed.Get("tags"))
	if len(tags) == 0 {
		tags = []string{"general"}
	}
	return generator.Classification{Category: cat, Tags: tags}, true
}

func stringArray(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	var out []string
	for _, v := range r.Array() {
		if s := strings.TrimSpace(v.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
