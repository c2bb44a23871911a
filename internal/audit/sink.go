package audit

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/keeldata/trustvault/internal/log"
)

// Sink delivers audit events somewhere durable.
type Sink interface {
	Name() string
	Write(ctx context.Context, events ...Event) error
	Close(ctx context.Context) error
}

// LogSink writes events through the structured logger.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Name() string {
	return "log"
}

func (s *LogSink) Write(ctx context.Context, events ...Event) error {
	for _, event := range events {
		log.Info(ctx, "audit event",
			log.String("event_id", event.EventID()),
			log.String("event_kind", string(event.EventKind())),
			log.Any("event", event),
		)
	}

	return nil
}

func (s *LogSink) Close(ctx context.Context) error {
	return nil
}

// MultiSink fans events out to every configured sink. A failing sink does not
// stop delivery to the others; failures are aggregated.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (s *MultiSink) Name() string {
	return "multi"
}

func (s *MultiSink) Write(ctx context.Context, events ...Event) error {
	var (
		mu     sync.Mutex
		result *multierror.Error
	)

	eg, ctx := errgroup.WithContext(ctx)

	for _, sink := range s.sinks {
		eg.Go(func() error {
			if err := sink.Write(ctx, events...); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}

			// Errors are collected, not returned; one slow or broken sink
			// must not cancel the writes to the others.
			return nil
		})
	}

	_ = eg.Wait()

	return result.ErrorOrNil()
}

func (s *MultiSink) Close(ctx context.Context) error {
	var result *multierror.Error

	for _, sink := range s.sinks {
		if err := sink.Close(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}
