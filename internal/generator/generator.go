// Package generator drafts affirmation copy with a text-generation model.
//
// The admin panel treats it as an opaque collaborator: callers never see
// upstream failures. When the model is unavailable or its output cannot be
// parsed, Generate returns a single templated candidate flagged Fallback and
// Categorize returns DefaultClassification.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/sakif/affirmations/internal/model"
)

// Tone steers the voice of generated copy.
type Tone string

const (
	ToneGentle       Tone = "gentle"
	TonePowerful     Tone = "powerful"
	ToneMotivational Tone = "motivational"
	ToneCalming      Tone = "calming"
)

// Valid reports whether t is a known tone.
func (t Tone) Valid() bool {
	switch t {
	case ToneGentle, TonePowerful, ToneMotivational, ToneCalming:
		return true
	}
	return false
}

const (
	DefaultTone  = ToneMotivational
	DefaultCount = 5
	MaxCount     = 20
)

// Request asks for Count candidates in Category.
type Request struct {
	Category model.Category `json:"category"`
	Tags     []string       `json:"tags"`
	Count    int            `json:"count"`
	Tone     Tone           `json:"tone"`
}

// Candidate is a draft affirmation awaiting admin review. Nothing is stored
// until an admin creates it through the catalogue.
type Candidate struct {
	Content   string         `json:"content"`
	Category  model.Category `json:"category"`
	Tags      []string       `json:"tags"`
	Reasoning string         `json:"reasoning,omitempty"`
	Fallback  bool           `json:"fallback,omitempty"`
}

// Classification is a suggested category and tag set for existing copy.
type Classification struct {
	Category model.Category `json:"category"`
	Tags     []string       `json:"tags"`
	Fallback bool           `json:"fallback,omitempty"`
}

// Generator is implemented by generator/openai.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]Candidate, error)
	Categorize(ctx context.Context, content string) (Classification, error)
}

// Fallback is the single templated candidate returned when generation fails.
func Fallback(req Request) []Candidate {
	area := strings.ReplaceAll(string(req.Category), "-", " ")
	if area == "" {
		area = "every part of my life"
	}
	tags := req.Tags
	if len(tags) == 0 {
		tags = []string{string(req.Category)}
	}
	return []Candidate{{
		Content:  fmt.Sprintf("I grow stronger in %s with every step I take", area),
		Category: req.Category,
		Tags:     tags,
		Fallback: true,
	}}
}

// DefaultClassification is returned when Categorize fails.
func DefaultClassification() Classification {
	return Classification{
		Category: model.CategoryPersonalGrowth,
		Tags:     []string{"general"},
		Fallback: true,
	}
}
