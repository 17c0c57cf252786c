// Package gatewaycache memoizes base-path resolution, the per-distribution
// guard-presence hint, and full HTTP responses, on top of the shared Redis
// client. It implements the Response Cache component (4.C): the
// "multiplied-index" probe spec.md §9 describes is compressed here into a
// single MGET over the candidate base paths.
package gatewaycache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/contentgw/gateway/internal/cache"
)

const (
	basePathKeyPrefix    = "gw:basepath:"
	guardPresentPrefix   = "gw:guard-present:"
	responseKeyPrefix    = "gw:response:"
	basePathCacheTTL     = 10 * time.Minute
	guardPresentCacheTTL = 10 * time.Minute
	responseCacheTTL     = 5 * time.Minute
)

// Cache is the Response Cache component. A nil *Cache is valid and behaves
// as fully disabled (CACHE_ENABLED=false), so callers don't need to branch.
type Cache struct {
	redis   *cache.RedisClient
	enabled bool
}

func New(redis *cache.RedisClient, enabled bool) *Cache {
	return &Cache{redis: redis, enabled: enabled}
}

func (c *Cache) Enabled() bool { return c != nil && c.enabled && c.redis != nil }

func basePathKey(candidate string) string { return basePathKeyPrefix + candidate }

// ResolveBasePath probes the cache for the canonical base path among a list
// of candidate ancestor paths (longest prefix first), in one round trip. It
// returns the first candidate that has a cached canonical mapping, or "" if
// none are cached (a cache miss requires falling back to the Path Resolver).
func (c *Cache) ResolveBasePath(ctx context.Context, candidates []string) (string, bool, error) {
	if !c.Enabled() || len(candidates) == 0 {
		return "", false, nil
	}
	keys := make([]string, len(candidates))
	for i, cand := range candidates {
		keys[i] = basePathKey(cand)
	}
	vals, err := c.redis.MGet(ctx, keys...)
	if err != nil {
		return "", false, err
	}
	for _, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		var canonical string
		if err := json.Unmarshal([]byte(s), &canonical); err != nil {
			continue
		}
		return canonical, true, nil
	}
	return "", false, nil
}

// CacheBasePath records that `candidate` resolves to `canonical`, so future
// requests under the same ancestor path skip the Path Resolver.
func (c *Cache) CacheBasePath(ctx context.Context, candidate, canonical string) error {
	if !c.Enabled() {
		return nil
	}
	return c.redis.Set(ctx, basePathKey(candidate), canonical, basePathCacheTTL)
}

// GuardPresent reports the DISTRO#GUARD#PRESENT hint for a base path. The
// bool return is the hint value; ok is false on cache miss (treated by
// callers the same as "True" — always run the full guard check).
func (c *Cache) GuardPresent(ctx context.Context, basePath string) (present bool, ok bool, err error) {
	if !c.Enabled() {
		return true, false, nil
	}
	var v bool
	err = c.redis.Get(ctx, guardPresentPrefix+basePath, &v)
	if err == cache.ErrKeyNotFound {
		return true, false, nil
	}
	if err != nil {
		return true, false, err
	}
	return v, true, nil
}

// SetGuardPresent records the outcome of a guard check for future cached
// responses under this base path. It is deliberately racy (spec.md §5):
// last-writer-wins is fine since the value is a monotone hint.
func (c *Cache) SetGuardPresent(ctx context.Context, basePath string, present bool) error {
	if !c.Enabled() {
		return nil
	}
	return c.redis.Set(ctx, guardPresentPrefix+basePath, present, guardPresentCacheTTL)
}

// ResponseKey builds the opaque cache key for a full response, keyed by
// (base-key, full-path, method, query) per spec.md §6.
func ResponseKey(baseKey, fullPath, method, query string) string {
	return fmt.Sprintf("%s%s|%s|%s|%s", responseKeyPrefix, baseKey, fullPath, method, query)
}

// CachedResponse is the memoized shape of a full response, including
// redirects, so a hit can be replayed without re-running 4.A-4.J.
type CachedResponse struct {
	Status      int               `json:"status"`
	Headers     map[string]string `json:"headers"`
	Body        []byte            `json:"body,omitempty"`
	RedirectURL string            `json:"redirect_url,omitempty"`
}

func (c *Cache) GetResponse(ctx context.Context, key string) (*CachedResponse, error) {
	if !c.Enabled() {
		return nil, cache.ErrKeyNotFound
	}
	var resp CachedResponse
	if err := c.redis.Get(ctx, key, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Cache) SetResponse(ctx context.Context, key string, resp *CachedResponse) error {
	if !c.Enabled() {
		return nil
	}
	return c.redis.Set(ctx, key, resp, responseCacheTTL)
}
