// Package cache memoises the anonymous affirmation of the day.
//
// The anonymous pick is a pure function of the date and the active set, so a
// cached entry stays valid until the date rolls over or an admin changes the
// catalogue. Entries are keyed by a catalogue generation as well as the date.
// Invalidate bumps the generation, so a pick computed from a list read before
// the bump is written under a stale generation that no reader asks for. Redis is used when configured, so every instance behind a load
// balancer shares one entry; otherwise an in-process map does the job for a
// single instance.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/affirmations/internal/model"
)

const (
	keyPrefix     = "affirmations:daily:"
	generationKey = "affirmations:daily-generation"

	// DefaultTTL outlives one calendar day in any time zone.
	DefaultTTL = 36 * time.Hour
)

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis stores daily picks under affirmations:daily:<generation>:<date>.
// The generation counter lives in its own key and is shared by every
// instance.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis builds the client and pings it. A failed ping is returned so the
// caller can decide to run without a shared cache.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: pinging redis at %s: %w", opts.Addr, err)
	}
	return newRedisWithClient(client, opts.TTL), nil
}

func newRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func dailyKey(generation int64, date string) string {
	return fmt.Sprintf("%s%d:%s", keyPrefix, generation, date)
}

// Generation returns the current catalogue generation. A missing counter
// is generation 0.
func (c *Redis) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("cache: reading generation: %w", err)
	}
	return gen, nil
}

// GetDaily returns the cached pick for date. A miss is (nil, false, nil).
func (c *Redis) GetDaily(ctx context.Context, generation int64, date string) (*model.Affirmation, bool, error) {
	raw, err := c.client.Get(ctx, dailyKey(generation, date)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: reading %s: %w", date, err)
	}
	var a model.Affirmation
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, false, fmt.Errorf("cache: decoding %s: %w", date, err)
	}
	return &a, true, nil
}

func (c *Redis) SetDaily(ctx context.Context, generation int64, date string, a *model.Affirmation) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("cache: encoding %s: %w", date, err)
	}
	if err := c.client.Set(ctx, dailyKey(generation, date), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: writing %s: %w", date, err)
	}
	return nil
}

// Invalidate bumps the generation, then drops the cached picks. Entries
// written concurrently under the old generation are unreachable and expire
// with the TTL.
func (c *Redis) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("cache: bumping generation: %w", err)
	}

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: scanning daily keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: deleting %d daily keys: %w", len(keys), err)
	}
	return nil
}

// Close releases the client's connections.
func (c *Redis) Close() error {
	return c.client.Close()
}

type memoryEntry struct {
	affirmation model.Affirmation
	generation  int64
	expiresAt   time.Time
}

// Memory is the single-instance fallback.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	generation int64
	ttl        time.Duration
	now        func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{entries: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

func (m *Memory) Generation(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation, nil
}

func (m *Memory) GetDaily(_ context.Context, generation int64, date string) (*model.Affirmation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[date]
	if !ok || e.generation != generation {
		return nil, false, nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, date)
		return nil, false, nil
	}
	a := e.affirmation
	return &a, true, nil
}

// SetDaily drops writes computed under an older generation.
func (m *Memory) SetDaily(_ context.Context, generation int64, date string, a *model.Affirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if generation != m.generation {
		return nil
	}

	// Expired dates are swept on write; the map never holds more than a few.
	now := m.now()
	for d, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, d)
		}
	}
	m.entries[date] = memoryEntry{affirmation: *a, generation: generation, expiresAt: now.Add(m.ttl)}
	return nil
}

func (m *Memory) Invalidate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	clear(m.entries)
	return nil
}
