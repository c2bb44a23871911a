// Package redis adapts a go-redis client to the gocache store contract with
// JSON-encoded values. Tag invalidation is not tracked; Invalidate clears
// everything, same as Clear.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lib_store "github.com/eko/gocache/lib/v4/store"
	redis "github.com/redis/go-redis/v9"
)

const storeType = "redis"

type Store[T any] struct {
	client  *redis.Client
	options *lib_store.Options
}

func NewStore[T any](client *redis.Client, options ...lib_store.Option) *Store[T] {
	return &Store[T]{
		client:  client,
		options: lib_store.ApplyOptions(options...),
	}
}

func (s *Store[T]) Get(ctx context.Context, key any) (any, error) {
	value, _, err := s.GetWithTTL(ctx, key)

	return value, err
}

func (s *Store[T]) GetWithTTL(ctx context.Context, key any) (any, time.Duration, error) {
	var result T

	keyString, ok := key.(string)
	if !ok {
		return result, 0, lib_store.NotFoundWithCause(fmt.Errorf("expected string key, got %T", key))
	}

	raw, err := s.client.Get(ctx, keyString).Result()
	if errors.Is(err, redis.Nil) {
		return result, 0, lib_store.NotFoundWithCause(err)
	}

	if err != nil {
		return result, 0, err
	}

	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		var zero T
		return zero, 0, err
	}

	ttl, err := s.client.TTL(ctx, keyString).Result()
	if err != nil {
		var zero T
		return zero, 0, err
	}

	return result, ttl, nil
}

func (s *Store[T]) Set(ctx context.Context, key any, value any, options ...lib_store.Option) error {
	keyString, ok := key.(string)
	if !ok {
		return fmt.Errorf("expected string key, got %T", key)
	}

	opts := lib_store.ApplyOptionsWithDefault(s.options, options...)

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, keyString, string(raw), opts.Expiration).Err()
}

func (s *Store[T]) Delete(ctx context.Context, key any) error {
	keyString, ok := key.(string)
	if !ok {
		return fmt.Errorf("expected string key, got %T", key)
	}

	return s.client.Del(ctx, keyString).Err()
}

func (s *Store[T]) Invalidate(ctx context.Context, options ...lib_store.InvalidateOption) error {
	return s.client.FlushAll(ctx).Err()
}

func (s *Store[T]) Clear(ctx context.Context) error {
	return s.client.FlushAll(ctx).Err()
}

func (s *Store[T]) GetType() string {
	return storeType
}
