package risk

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/keeldata/trustvault/internal/pkg/ringbuffer"
	"github.com/keeldata/trustvault/internal/pkg/xtime"
	"github.com/keeldata/trustvault/internal/vault"
)

// AttemptTracker counts failed validations per actor over a sliding window.
// Each actor holds a fixed ring of failure timestamps; tracking is bounded by
// an LRU so hot actors evict cold ones, never the process.
type AttemptTracker struct {
	window time.Duration
	limit  int
	cache  *lru.Cache[vault.HashKey, *ringbuffer.RingBuffer[struct{}]]
}

func NewAttemptTracker(window time.Duration, limit, trackedActors int) (*AttemptTracker, error) {
	cache, err := lru.New[vault.HashKey, *ringbuffer.RingBuffer[struct{}]](trackedActors)
	if err != nil {
		return nil, err
	}

	return &AttemptTracker{
		window: window,
		limit:  limit,
		cache:  cache,
	}, nil
}

// RecordFailure notes one failed validation for the actor.
func (t *AttemptTracker) RecordFailure(actor vault.HashKey) {
	buf, ok := t.cache.Get(actor)
	if !ok {
		// The ring only ever needs limit entries; the score saturates there.
		buf = ringbuffer.New[struct{}](t.limit)
		if existing, found, _ := t.cache.PeekOrAdd(actor, buf); found {
			buf = existing
		}
	}

	buf.Push(xtime.Now().UnixNano(), struct{}{})
}

// Failures returns the number of failures inside the current window.
func (t *AttemptTracker) Failures(actor vault.HashKey) int {
	buf, ok := t.cache.Get(actor)
	if !ok {
		return 0
	}

	cutoff := xtime.Now().Add(-t.window).UnixNano()
	buf.CleanupBefore(cutoff)

	return buf.CountSince(cutoff)
}

// Score maps the windowed failure count onto [0,100], saturating at limit.
func (t *AttemptTracker) Score(actor vault.HashKey) int {
	failures := t.Failures(actor)
	if failures >= t.limit {
		return 100
	}

	return failures * 100 / t.limit
}

// Reset clears the actor's failure history, typically after a successful
// re-authentication.
func (t *AttemptTracker) Reset(actor vault.HashKey) {
	t.cache.Remove(actor)
}
