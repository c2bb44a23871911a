package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zhenzou/executors"

	"github.com/keeldata/trustvault/internal/log"
	"github.com/keeldata/trustvault/internal/metrics"
	"github.com/keeldata/trustvault/internal/pkg/ringbuffer"
	"github.com/keeldata/trustvault/internal/pkg/xcontext"
	"github.com/keeldata/trustvault/internal/pkg/xtime"
)

// Dispatcher fans audit events out to the configured sinks. Publish never
// blocks the caller; delivery runs on a single consumer goroutine and failed
// writes land in a bounded retry ring drained on a schedule.
type Dispatcher struct {
	cfg      Config
	sink     Sink
	executor executors.ScheduledExecutor

	queue chan Event
	retry *ringbuffer.RingBuffer[Event]

	closed  atomic.Bool
	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	cancelRetry context.CancelFunc
	startOnce   sync.Once
	stopOnce    sync.Once
}

// New assembles sinks from cfg and builds a dispatcher around them.
// A disabled config yields a dispatcher whose publish methods are no-ops.
func New(cfg Config, executor executors.ScheduledExecutor) (*Dispatcher, error) {
	if !cfg.Enabled {
		return NewDispatcher(cfg, nil, nil), nil
	}

	sink, err := BuildSink(cfg)
	if err != nil {
		return nil, err
	}

	return NewDispatcher(cfg, sink, executor), nil
}

// NewDispatcher builds a dispatcher around an explicit sink.
func NewDispatcher(cfg Config, sink Sink, executor executors.ScheduledExecutor) *Dispatcher {
	defaults := DefaultConfig()

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}

	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = defaults.FlushTimeout
	}

	if cfg.RetryBuffer <= 0 {
		cfg.RetryBuffer = defaults.RetryBuffer
	}

	if cfg.RetryCRON == "" {
		cfg.RetryCRON = defaults.RetryCRON
	}

	return &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		executor: executor,
		queue:    make(chan Event, cfg.QueueSize),
		retry:    ringbuffer.New[Event](cfg.RetryBuffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	var err error

	d.startOnce.Do(func() {
		if d.sink == nil {
			log.Debug(ctx, "audit disabled")
			return
		}

		if d.executor != nil {
			var cancel context.CancelFunc

			cancel, err = d.executor.ScheduleFuncAtCronRate(d.drainRetries, executors.CRONRule{Expr: d.cfg.RetryCRON})
			if err != nil {
				err = fmt.Errorf("audit: schedule retry drain: %w", err)
				return
			}

			d.cancelRetry = cancel
		}

		d.started.Store(true)

		go d.consume()

		log.Info(ctx, "audit dispatcher started",
			log.Int("queue_size", d.cfg.QueueSize),
			log.String("retry_cron", d.cfg.RetryCRON))
	})

	return err
}

// Publish enqueues the event without blocking. A full queue parks the event
// in the retry ring instead of stalling the request path.
func (d *Dispatcher) Publish(ctx context.Context, event Event) {
	if d.sink == nil || event == nil || d.closed.Load() {
		return
	}

	select {
	case d.queue <- event:
	default:
		log.Warn(ctx, "audit queue full, deferring event", log.String("event_id", event.EventID()))
		d.retry.Push(xtime.Now().UnixNano(), event)
	}
}

// PublishSync writes the event before returning. Denied decisions use this
// path so the record exists before the caller sees the outcome.
func (d *Dispatcher) PublishSync(ctx context.Context, event Event) error {
	if d.sink == nil || event == nil {
		return nil
	}

	// Detach so a cancelled request cannot abort the write midway.
	writeCtx, cancel := xcontext.DetachWithTimeout(ctx, d.cfg.FlushTimeout)
	defer cancel()

	if err := d.sink.Write(writeCtx, event); err != nil {
		metrics.RecordAuditDelivery(writeCtx, 1, false)
		d.retry.Push(xtime.Now().UnixNano(), event)

		return fmt.Errorf("audit: sync write: %w", err)
	}

	metrics.RecordAuditDelivery(writeCtx, 1, true)

	return nil
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	var err error

	d.stopOnce.Do(func() {
		d.closed.Store(true)

		if d.cancelRetry != nil {
			d.cancelRetry()
		}

		if !d.started.Load() {
			return
		}

		close(d.stop)
		<-d.done

		flushCtx, cancel := xcontext.DetachWithTimeout(ctx, d.cfg.FlushTimeout)
		defer cancel()

		d.flush(flushCtx)

		err = d.sink.Close(flushCtx)

		log.Info(ctx, "audit dispatcher stopped")
	})

	return err
}

func (d *Dispatcher) consume() {
	defer close(d.done)

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := xcontext.DetachWithTimeout(context.Background(), d.cfg.FlushTimeout)
	defer cancel()

	if err := d.sink.Write(ctx, event); err != nil {
		log.Warn(ctx, "audit delivery failed, queued for retry",
			log.String("event_id", event.EventID()),
			log.Cause(err))
		metrics.RecordAuditDelivery(ctx, 1, false)
		d.retry.Push(xtime.Now().UnixNano(), event)

		return
	}

	metrics.RecordAuditDelivery(ctx, 1, true)
}

// drainRetries replays the retry ring in one batch.
func (d *Dispatcher) drainRetries(ctx context.Context) {
	pending := d.retry.Len()
	if pending == 0 {
		return
	}

	events := make([]Event, 0, pending)

	var newest int64

	d.retry.Range(func(ts int64, event Event) bool {
		events = append(events, event)
		newest = ts

		return len(events) < pending
	})

	// Remove only the snapshot; events pushed during the drain keep their place.
	d.retry.CleanupBefore(newest + 1)

	writeCtx, cancel := xcontext.DetachWithTimeout(ctx, d.cfg.FlushTimeout)
	defer cancel()

	if err := d.sink.Write(writeCtx, events...); err != nil {
		log.Warn(ctx, "audit retry failed", log.Int("events", len(events)), log.Cause(err))
		metrics.RecordAuditDelivery(writeCtx, len(events), false)

		now := xtime.Now().UnixNano()
		for _, event := range events {
			d.retry.Push(now, event)
		}

		return
	}

	metrics.RecordAuditDelivery(writeCtx, len(events), true)
	log.Info(ctx, "audit retry drained", log.Int("events", len(events)))
}

// flush empties the queue and takes one last pass over the retry ring.
func (d *Dispatcher) flush(ctx context.Context) {
	for {
		select {
		case event := <-d.queue:
			err := d.sink.Write(ctx, event)
			if err != nil {
				log.Warn(ctx, "audit event dropped at shutdown",
					log.String("event_id", event.EventID()),
					log.Cause(err))
			}

			metrics.RecordAuditDelivery(ctx, 1, err == nil)
		default:
			d.drainRetries(ctx)

			return
		}
	}
}
