// redis.go -- go-redis client for caching store-resolved users.
//
// Permission checks re-fetch the caller's User on every mutation. The cache
// keeps that lookup off Postgres for a short TTL and is invalidated whenever
// roles change or the user is deleted. If Redis is unavailable, callers fall
// back to Postgres.
//
// Each identity has a generation counter. Eviction bumps it, and a fill only
// lands if the generation the caller read before its store lookup is still
// current, so a fill racing an eviction cannot re-cache stale roles.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MGallo-Code/cloudy/internal/domain"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses redisURL, connects and pings.
// Call once at startup; the client is safe for concurrent use.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// RedisUserCache caches users keyed by external identity.
type RedisUserCache struct {
	rdb *redis.Client
}

// NewRedisUserCache wraps a shared client.
func NewRedisUserCache(rdb *redis.Client) *RedisUserCache {
	return &RedisUserCache{rdb: rdb}
}

// genTTL bounds how long an idle generation counter is kept. It only has to
// outlive any cache entry written against it.
const genTTL = 24 * time.Hour

func userKey(subject string, provider domain.AuthProvider) string {
	return fmt.Sprintf("user:%s:%s", provider, subject)
}

func genKey(subject string, provider domain.AuthProvider) string {
	return fmt.Sprintf("usergen:%s:%s", provider, subject)
}

// Generation returns the identity's current generation. Read it before the
// store lookup whose result will be passed to SetUser.
func (c *RedisUserCache) Generation(ctx context.Context, subject string, provider domain.AuthProvider) (int64, error) {
	gen, err := c.rdb.Get(ctx, genKey(subject, provider)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading user generation: %w", err)
	}
	return gen, nil
}

// GetUser returns the cached user, or ErrCacheMiss.
func (c *RedisUserCache) GetUser(ctx context.Context, subject string, provider domain.AuthProvider) (*domain.User, error) {
	raw, err := c.rdb.Get(ctx, userKey(subject, provider)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("fetching cached user: %w", err)
	}
	var u domain.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("parsing cached user: %w", err)
	}
	return &u, nil
}

// SetUser caches u for ttl if the identity is still at generation gen,
// otherwise it returns ErrCacheStale and writes nothing. A non-positive ttl
// is a no-op; Redis would otherwise keep the key forever.
func (c *RedisUserCache) SetUser(ctx context.Context, u *domain.User, gen int64, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshaling user: %w", err)
	}

	gk := genKey(u.AuthenticationServiceID, u.AuthProvider)
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gk).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return ErrCacheStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey(u.AuthenticationServiceID, u.AuthProvider), raw, ttl)
			return nil
		})
		return err
	}, gk)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCacheStale), errors.Is(err, redis.TxFailedErr):
		return ErrCacheStale
	default:
		return fmt.Errorf("caching user: %w", err)
	}
}

// DeleteUser evicts the cached user and bumps its generation so in-flight
// fills are dropped. Evicting an absent key is not an error.
func (c *RedisUserCache) DeleteUser(ctx context.Context, subject string, provider domain.AuthProvider) error {
	gk := genKey(subject, provider)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gk)
		pipe.Expire(ctx, gk, genTTL)
		pipe.Del(ctx, userKey(subject, provider))
		return nil
	})
	if err != nil {
		return fmt.Errorf("evicting cached user: %w", err)
	}
	return nil
}

// CheckHealth pings Redis.
func (c *RedisUserCache) CheckHealth(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// NoopUserCache stands in when REDIS_URL is unset. Every lookup misses.
type NoopUserCache struct{}

func (NoopUserCache) GetUser(context.Context, string, domain.AuthProvider) (*domain.User, error) {
	return nil, ErrCacheMiss
}

func (NoopUserCache) Generation(context.Context, string, domain.AuthProvider) (int64, error) {
	return 0, nil
}

func (NoopUserCache) SetUser(context.Context, *domain.User, int64, time.Duration) error { return nil }

func (NoopUserCache) DeleteUser(context.Context, string, domain.AuthProvider) error { return nil }

func (NoopUserCache) CheckHealth(context.Context) error { return ErrCacheDisabled }
