// Package config reads the server settings from the environment.
//
// An optional .env file is loaded first with godotenv. Variables already set
// in the process environment win over the file, so the same binary runs
// unchanged under a shell, Docker or systemd.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully parsed, validated configuration.
type Config struct {
	Port int

	DBDriver    string // "sqlite" or "postgres"
	DBPath      string // sqlite file
	DatabaseURL string // postgres URL

	JWTSecret   string
	TokenTTL    time.Duration
	AdminEmails []string

	// Location defines the calendar day used for daily assignment.
	Location *time.Location

	CORSOrigins []string

	RedisAddr     string // empty: in-process cache
	RedisPassword string
	RedisDB       int

	OpenAIAPIKey  string // empty: generator returns fallbacks
	OpenAIModel   string
	OpenAIBaseURL string

	LogLevel  string
	LogFormat string // "text" or "json"
	LogFile   string // empty: stdout only

	SeedAffirmations   bool
	StreakCountViews   bool
	StreakResetOnSkip  bool
	RateLimitPerMinute int // 0 disables rate limiting
}

// Defaults returns the settings used for every unset variable.
func Defaults() Config {
	return Config{
		Port:               8080,
		DBDriver:           "sqlite",
		DBPath:             "data/affirmations.db",
		TokenTTL:           7 * 24 * time.Hour,
		Location:           time.Local,
		CORSOrigins:        []string{"http://localhost:3000"},
		OpenAIModel:        "gpt-4o",
		OpenAIBaseURL:      "https://api.openai.com/v1",
		LogLevel:           "info",
		LogFormat:          "text",
		SeedAffirmations:   true,
		StreakCountViews:   true,
		RateLimitPerMinute: 60,
	}
}

// Load reads the given .env files (".env" when none are named; a missing
// file is not an error) and then parses the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: reading %s: %w", f, err)
		}
	}
	return parse(os.Getenv)
}

func parse(getenv func(string) string) (Config, error) {
	cfg := Defaults()
	p := parser{getenv: getenv}

	cfg.Port = p.integer("PORT", cfg.Port)
	cfg.DBDriver = strings.ToLower(p.str("DB_DRIVER", cfg.DBDriver))
	cfg.DBPath = p.str("DB_PATH", cfg.DBPath)
	cfg.DatabaseURL = p.str("DATABASE_URL", "")
	cfg.JWTSecret = p.str("JWT_SECRET", "")
	cfg.TokenTTL = p.duration("TOKEN_TTL", cfg.TokenTTL)
	cfg.AdminEmails = p.list("ADMIN_EMAILS", nil)
	cfg.CORSOrigins = p.list("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.RedisAddr = p.str("REDIS_ADDR", "")
	cfg.RedisPassword = p.str("REDIS_PASSWORD", "")
	cfg.RedisDB = p.integer("REDIS_DB", 0)
	cfg.OpenAIAPIKey = p.str("OPENAI_API_KEY", "")
	cfg.OpenAIModel = p.str("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAIBaseURL = strings.TrimRight(p.str("OPENAI_BASE_URL", cfg.OpenAIBaseURL), "/")
	cfg.LogLevel = strings.ToLower(p.str("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(p.str("LOG_FORMAT", cfg.LogFormat))
	cfg.LogFile = p.str("LOG_FILE", "")
	cfg.SeedAffirmations = p.boolean("SEED_AFFIRMATIONS", cfg.SeedAffirmations)
	cfg.StreakCountViews = p.boolean("STREAK_COUNT_VIEWS", cfg.StreakCountViews)
	cfg.StreakResetOnSkip = p.boolean("STREAK_RESET_ON_SKIP", cfg.StreakResetOnSkip)
	cfg.RateLimitPerMinute = p.integer("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)

	if tz := p.str("TIMEZONE", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("TIMEZONE: %w", err))
		} else {
			cfg.Location = loc
		}
	}

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field rules that parsing alone cannot.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET is required and must be at least 16 characters"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// parser collects every malformed value so one startup attempt reports all
// of them.
type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}

// list splits a comma-separated value, dropping blanks.
func (p *parser) list(key string, def []string) []string {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
