// Package model defines the data structures used throughout the application.
//
// The structs carry both `json` tags (API shape) and `db` tags (column names
// for sqlx scanning), so the same value flows from the store to the client.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Category is one of the fixed affirmation areas a user can pick as a goal.
type Category string

const (
	CategoryConfidence     Category = "confidence"
	CategoryHealth         Category = "health"
	CategoryRelationships  Category = "relationships"
	CategorySuccess        Category = "success"
	CategoryPersonalGrowth Category = "personal-growth"
	CategoryGratitude      Category = "gratitude"
	CategoryHappiness      Category = "happiness"
	CategoryMindset        Category = "mindset"
	CategoryCareer         Category = "career"
	CategoryCreativity     Category = "creativity"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryConfidence,
	CategoryHealth,
	CategoryRelationships,
	CategorySuccess,
	CategoryPersonalGrowth,
	CategoryGratitude,
	CategoryHappiness,
	CategoryMindset,
	CategoryCareer,
	CategoryCreativity,
}

// Valid reports whether c is part of the enumeration.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory normalises s (trim + lower-case) and checks it against the
// enumeration.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// StringList is a []string persisted as a JSON array in a TEXT column.
//
// Both SQLite and Postgres store it the same way, so the schema does not need
// array or JSONB types. A nil list is written as "[]" and never as NULL.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("model: cannot scan %T into StringList", src)
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("model: decoding string list: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

// Contains reports whether s is in the list.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// Affirmation is a single piece of affirmation copy.
//
// Only Content, Category, Tags and IsActive change after creation. Setting
// IsActive to false is the soft delete: the row stays for interaction history
// but is never selected again.
type Affirmation struct {
	ID        string     `json:"id"        db:"id"`
	Content   string     `json:"content"   db:"content"`
	Category  Category   `json:"category"  db:"category"`
	Tags      StringList `json:"tags"      db:"tags"`
	CreatedBy string     `json:"createdBy" db:"created_by"`
	IsActive  bool       `json:"isActive"  db:"is_active"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}

// AffirmationPatch lists the editable fields of an Affirmation. Nil fields are
// left unchanged.
type AffirmationPatch struct {
	Content  *string
	Category *Category
	Tags     *StringList
	IsActive *bool
}

// AreaStat summarises one category for the admin dashboard.
type AreaStat struct {
	Category         Category `json:"category"         db:"category"`
	AffirmationCount int      `json:"affirmationCount" db:"affirmation_count"`
	UserCount        int      `json:"userCount"        db:"user_count"`
}
