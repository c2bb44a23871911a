package gc

import (
	"context"

	"github.com/keeldata/trustvault/internal/authz"
)

func (w *Worker) runSweepWithSystemContext(ctx context.Context) {
	ctx = authz.WithSystemBypass(ctx, "retention-sweep")
	w.runSweep(ctx)
}
