package quizbank

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/wire"
)

// Cache is a Source that memoizes GetDiagnostic and can drop entries when a
// diagnostic is edited.
type Cache interface {
	Source
	Invalidate(ctx context.Context, slug string)
}

// MemoryCache caches diagnostics in process with TTL to avoid repeated DB hits.
type MemoryCache struct {
	src   Source
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand
	rndMu sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedDiagnostic
}

type cachedDiagnostic struct {
	diagnostic model.Diagnostic
	expiresAt  time.Time
}

// NewMemoryCache wraps src with an in-memory TTL cache. A ttl of zero or less
// disables caching.
func NewMemoryCache(src Source, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		src:   src,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedDiagnostic),
	}
}

// GetDiagnostic returns the cached diagnostic or loads it once per slug.
func (c *MemoryCache) GetDiagnostic(ctx context.Context, slug string) (model.Diagnostic, error) {
	if c.ttl <= 0 {
		return c.src.GetDiagnostic(ctx, slug)
	}
	if d, ok := c.lookup(slug); ok {
		return d, nil
	}

	result, err, _ := c.sf.Do(slug, func() (interface{}, error) {
		if d, ok := c.lookup(slug); ok {
			return d, nil
		}
		d, err := c.src.GetDiagnostic(ctx, slug)
		if err != nil {
			return model.Diagnostic{}, err
		}
		c.mu.Lock()
		c.cache[slug] = cachedDiagnostic{
			diagnostic: d,
			expiresAt:  c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return d, nil
	})
	if err != nil {
		return model.Diagnostic{}, err
	}
	return result.(model.Diagnostic), nil
}

func (c *MemoryCache) lookup(slug string) (model.Diagnostic, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[slug]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return model.Diagnostic{}, false
	}
	return entry.diagnostic, true
}

// ListDiagnostics is not cached; the admin editor needs fresh listings.
func (c *MemoryCache) ListDiagnostics(ctx context.Context) ([]model.Diagnostic, error) {
	return c.src.ListDiagnostics(ctx)
}

// Invalidate drops a cached slug.
func (c *MemoryCache) Invalidate(_ context.Context, slug string) {
	c.mu.Lock()
	delete(c.cache, slug)
	c.mu.Unlock()
}

func (c *MemoryCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// RedisCache caches diagnostics as JSON strings under diagnostic:{slug}.
type RedisCache struct {
	client *redis.Client
	src    Source
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

// NewRedisCache wraps src with a Redis-backed TTL cache shared by instances.
// A ttl of zero or less disables caching; Redis is then never read or written,
// since a zero expiration there means the key never expires.
func NewRedisCache(client *redis.Client, src Source, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		src:    src,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetDiagnostic reads through Redis. Redis errors degrade to the source.
func (c *RedisCache) GetDiagnostic(ctx context.Context, slug string) (model.Diagnostic, error) {
	if c.ttl <= 0 {
		return c.src.GetDiagnostic(ctx, slug)
	}
	if d, ok := c.get(ctx, slug); ok {
		return d, nil
	}

	result, err, _ := c.sf.Do(slug, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if d, ok := c.get(ctx, slug); ok {
			return d, nil
		}
		d, err := c.src.GetDiagnostic(ctx, slug)
		if err != nil {
			return model.Diagnostic{}, err
		}
		if raw, err := json.Marshal(wire.FromDiagnostic(d)); err == nil {
			_ = c.client.Set(ctx, c.key(slug), raw, c.ttlWithJitter()).Err()
		}
		return d, nil
	})
	if err != nil {
		return model.Diagnostic{}, err
	}
	return result.(model.Diagnostic), nil
}

func (c *RedisCache) get(ctx context.Context, slug string) (model.Diagnostic, bool) {
	raw, err := c.client.Get(ctx, c.key(slug)).Bytes()
	if err != nil {
		return model.Diagnostic{}, false
	}
	var w wire.Diagnostic
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Diagnostic{}, false
	}
	return w.Model(), true
}

// ListDiagnostics is not cached.
func (c *RedisCache) ListDiagnostics(ctx context.Context) ([]model.Diagnostic, error) {
	return c.src.ListDiagnostics(ctx)
}

// Invalidate deletes the cached slug; failures only delay freshness until TTL.
func (c *RedisCache) Invalidate(ctx context.Context, slug string) {
	_ = c.client.Del(ctx, c.key(slug)).Err()
}

func (c *RedisCache) key(slug string) string {
	return "diagnostic:" + slug
}

func (c *RedisCache) ttlWithJitter() time.Duration {
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
