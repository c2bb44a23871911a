package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink appends events to a Redis stream. Consumers read the stream with
// XREAD/XREADGROUP; trimming is approximate to keep appends O(1).
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisSink(client *redis.Client, stream string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = "trustvault:audit"
	}

	return &RedisSink{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

func (s *RedisSink) Name() string {
	return "redis"
}

func (s *RedisSink) Write(ctx context.Context, events ...Event) error {
	pipe := s.client.Pipeline()

	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("audit: marshal event %s: %w", event.EventID(), err)
		}

		args := &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]any{
				"id":    event.EventID(),
				"kind":  string(event.EventKind()),
				"event": payload,
			},
		}
		if s.maxLen > 0 {
			args.MaxLen = s.maxLen
			args.Approx = true
		}

		pipe.XAdd(ctx, args)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("audit: append to stream %s: %w", s.stream, err)
	}

	return nil
}

func (s *RedisSink) Close(ctx context.Context) error {
	return s.client.Close()
}
