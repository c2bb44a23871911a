package gc

import (
	"context"
	"time"

	"github.com/zhenzou/executors"
	"go.uber.org/fx"

	"github.com/keeldata/trustvault/internal/log"
	"github.com/keeldata/trustvault/internal/metrics"
	"github.com/keeldata/trustvault/internal/pkg/xtime"
	"github.com/keeldata/trustvault/internal/vault"
)

// defaultBatchSize is the default batch size for sweep operations.
// This can be overridden for testing.
var defaultBatchSize = 500

// defaultAge is how long a terminal session index row is kept before the
// sweep removes it.
const defaultAge = 30 * 24 * time.Hour

type Config struct {
	CRON string        `json:"cron" yaml:"cron" conf:"cron" validate:"required"`
	Age  time.Duration `json:"age" yaml:"age" conf:"age"`
}

// Worker removes long-terminal session index rows on a schedule. Only the
// index rows go; the transition logs under the session hubs stay.
type Worker struct {
	Store      vault.Store
	Executor   executors.ScheduledExecutor
	Config     Config
	CancelFunc context.CancelFunc
}

type Params struct {
	fx.In

	Config Config
	Store  vault.Store
}

func NewWorker(params Params) *Worker {
	return &Worker{
		Store:    params.Store,
		Executor: executors.NewPoolScheduleExecutor(executors.WithMaxConcurrent(1)),
		Config:   params.Config,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	cancelFunc, err := w.Executor.ScheduleFuncAtCronRate(
		w.runSweepWithSystemContext,
		executors.CRONRule{Expr: w.Config.CRON},
	)
	if err != nil {
		return err
	}

	w.CancelFunc = cancelFunc

	log.Info(ctx, "retention worker started",
		log.String("cron", w.Config.CRON),
		log.Duration("age", w.age()),
	)

	return nil
}

func (w *Worker) Stop(ctx context.Context) error {
	if w.CancelFunc != nil {
		w.CancelFunc()
	}

	return w.Executor.Shutdown(ctx)
}

func (w *Worker) age() time.Duration {
	if w.Config.Age > 0 {
		return w.Config.Age
	}

	return defaultAge
}

// getBatchSize returns the batch size for sweep operations. Tests override
// defaultBatchSize to exercise batching with small data sets.
func (w *Worker) getBatchSize() int {
	return defaultBatchSize
}

// runSweep deletes terminal session index rows older than the retention
// age, in batches.
func (w *Worker) runSweep(ctx context.Context) {
	log.Info(ctx, "Starting session retention sweep")

	cutoff := xtime.Now().Add(-w.age())
	totalDeleted := 0

	for {
		stale, err := w.Store.ListSessions(ctx, vault.SessionFilter{
			States: []vault.SessionState{
				vault.SessionExpired,
				vault.SessionRevoked,
				vault.SessionExhausted,
			},
			UpdatedBefore: cutoff,
			Limit:         w.getBatchSize(),
		})
		if err != nil {
			log.Error(ctx, "Failed to list stale sessions", log.Cause(err))
			return
		}

		if len(stale) == 0 {
			break
		}

		digests := make([]string, len(stale))
		for i, session := range stale {
			digests[i] = session.TokenDigest
		}

		deleted, err := w.Store.DeleteSessions(ctx, digests)
		if err != nil {
			log.Error(ctx, "Failed to delete stale sessions", log.Cause(err))
			return
		}

		totalDeleted += deleted

		log.Debug(ctx, "Deleted stale session batch",
			log.Int("batch_size", deleted),
			log.Int("total_deleted", totalDeleted),
		)

		if deleted == 0 {
			// The listing and the delete disagree; stop rather than spin.
			break
		}
	}

	metrics.RecordRetentionSweep(ctx, totalDeleted)

	log.Info(ctx, "Session retention sweep completed",
		log.Int("deleted", totalDeleted),
		log.Time("cutoff", cutoff),
	)
}

// RunSweepNow manually triggers the sweep.
// This can be useful for testing or manual execution.
func (w *Worker) RunSweepNow(ctx context.Context) error {
	w.runSweep(ctx)
	return nil
}
