package dependencies

import (
	"context"

	"github.com/zhenzou/executors"
	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/audit"
	"github.com/keeldata/trustvault/internal/log"
	"github.com/keeldata/trustvault/internal/pkg/watcher"
	"github.com/keeldata/trustvault/internal/pkg/xcache"
	"github.com/keeldata/trustvault/internal/pkg/xcache/live"
	"github.com/keeldata/trustvault/internal/risk"
	"github.com/keeldata/trustvault/internal/server/db"
	"github.com/keeldata/trustvault/internal/vault"
)

// sessionChannel is the pub/sub channel session invalidations travel on
// when the watcher runs in redis mode.
const sessionChannel = "trustvault:sessions"

// NewSessionNotifier builds the invalidation fan-out the session cache
// subscribes to.
func NewSessionNotifier(cfg watcher.Config) (watcher.Notifier[live.CacheEvent[string]], error) {
	return watcher.NewWatcherFromConfig[live.CacheEvent[string]](cfg, watcher.WatcherFromConfigOptions{
		RedisChannel: sessionChannel,
		Buffer:       64,
	})
}

// NewHubCache builds the hub lookup cache. Hubs are immutable, so plain
// TTL caching is safe here; revocable records go through the watched
// session cache instead.
func NewHubCache(cfg xcache.Config) xcache.Cache[vault.Hub] {
	return xcache.NewFromConfig[vault.Hub](cfg)
}

var Module = fx.Module("dependencies",
	fx.Provide(log.New),
	fx.Provide(db.NewStore),
	fx.Provide(NewExecutors),
	fx.Provide(audit.New),
	fx.Provide(risk.NewEngine),
	fx.Provide(NewSessionNotifier),
	fx.Provide(NewHubCache),
	fx.Invoke(func(lc fx.Lifecycle, executor executors.ScheduledExecutor) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return executor.Shutdown(ctx)
			},
		})
	}),
	fx.Invoke(func(lc fx.Lifecycle, dispatcher *audit.Dispatcher) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return dispatcher.Start(ctx)
			},
			OnStop: func(ctx context.Context) error {
				return dispatcher.Stop(ctx)
			},
		})
	}),
	fx.Invoke(func(lc fx.Lifecycle, store vault.Store) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return store.Close()
			},
		})
	}),
)
