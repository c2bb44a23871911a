package xcache

import (
	"context"
	"fmt"
	"time"

	cachelib "github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	gocache_store "github.com/eko/gocache/store/go_cache/v4"
	gocache "github.com/patrickmn/go-cache"
	redis "github.com/redis/go-redis/v9"

	"github.com/keeldata/trustvault/internal/log"
	redis_store "github.com/keeldata/trustvault/internal/pkg/xcache/redis"
	"github.com/keeldata/trustvault/internal/pkg/xredis"
)

// Cache is the typed cache contract shared by all backends:
//   - Get(ctx, key) (T, error)
//   - Set(ctx, key, value, options ...Option) error
//   - Delete(ctx, key) error
//   - Invalidate(ctx, options ...store.InvalidateOption) error
//   - Clear(ctx) error
//   - GetType() string
//
// See: github.com/eko/gocache/lib/v4/cache
type Cache[T any] = cachelib.CacheInterface[T]

type SetterCache[T any] = cachelib.SetterCacheInterface[T]

// NewMemory creates an in-memory cache over patrickmn/go-cache. The caller
// owns the client, so default expiration and cleanup interval are theirs to
// pick.
func NewMemory[T any](client *gocache.Cache, options ...Option) SetterCache[T] {
	return cachelib.New[T](gocache_store.NewGoCache(client, options...))
}

// NewRedis creates a redis-backed cache over an existing go-redis client.
func NewRedis[T any](client *redis.Client, options ...Option) SetterCache[T] {
	return cachelib.New[T](redis_store.NewStore[T](client, options...))
}

// NewTwoLevel chains a memory front over a redis back. Reads fill the memory
// level from the redis level; writes go to both.
func NewTwoLevel[T any](memory, redis SetterCache[T]) Cache[T] {
	return cachelib.NewChain[T](memory, redis)
}

// NewFromConfig builds a typed cache for the configured mode. An empty or
// unknown mode yields a noop cache, so callers never branch on enablement.
// A redis mode that cannot reach its server is a boot failure.
func NewFromConfig[T any](cfg Config) Cache[T] {
	if cfg.Mode == "" {
		return NewNoop[T]()
	}

	memExpiration := defaultIfZero(cfg.Memory.Expiration, 5*time.Minute)
	memCleanup := defaultIfZero(cfg.Memory.CleanupInterval, 10*time.Minute)

	mem := NewMemory[T](gocache.New(memExpiration, memCleanup), store.WithExpiration(memExpiration))

	var rds SetterCache[T]

	if cfg.Mode != ModeMemory && (cfg.Redis.Addr != "" || cfg.Redis.URL != "") {
		client, err := xredis.NewClient(cfg.Redis)
		if err != nil {
			panic(fmt.Errorf("xcache: redis backend: %w", err))
		}

		redisExpiration := defaultIfZero(cfg.Redis.Expiration, 30*time.Minute)
		rds = NewRedis[T](client, store.WithExpiration(redisExpiration))
	}

	switch cfg.Mode {
	case ModeMemory:
		log.Info(context.Background(), "using memory cache")
		return mem
	case ModeRedis:
		if rds == nil {
			panic(fmt.Errorf("xcache: redis mode needs an addr or url"))
		}

		log.Info(context.Background(), "using redis cache")

		return rds
	case ModeTwoLevel:
		if rds == nil {
			return mem
		}

		log.Info(context.Background(), "using two-level cache")

		return NewTwoLevel[T](mem, rds)
	default:
		log.Info(context.Background(), "cache disabled", log.String("mode", cfg.Mode))
		return NewNoop[T]()
	}
}

func defaultIfZero(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}

	return d
}
