package openai

import (
	"time"
)

// Config holds the settings for the chat-completions client.
type Config struct {
	// APIKey is sent as a bearer token. Empty disables upstream calls: every
	// request returns the fallback.
	APIKey string
	// BaseURL is the API root, without the /chat/completions suffix.
	BaseURL string
	// Model is the chat model name.
	Model string
	// Timeout bounds a single upstream call.
	Timeout time.Duration
	// MaxConcurrent caps in-flight upstream calls. Callers beyond the cap
	// wait for a slot or for their context to end.
	MaxConcurrent int
	// Temperature is passed through to the model.
	Temperature float64
}

// DefaultConfig targets the public OpenAI API.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://api.openai.com/v1",
		Model:         "gpt-4o",
		Timeout:       30 * time.Second,
		MaxConcurrent: 4,
		Temperature:   0.8,
	}
}
