// internal/app/system/workers/statecleanup.go
package workers

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiredCleaner deletes expired records and reports how many it removed.
type ExpiredCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// StateCleanup removes expired OAuth state tokens between TTL monitor passes.
type StateCleanup struct {
	*ticker
	states ExpiredCleaner
}

// NewStateCleanup creates an OAuth state cleanup worker.
func NewStateCleanup(states ExpiredCleaner, logger *zap.Logger, interval time.Duration) *StateCleanup {
	w := &StateCleanup{states: states}
	w.ticker = newTicker("oauth state cleanup", logger, interval, w.cleanup)
	return w
}

func (w *StateCleanup) cleanup(ctx context.Context) {
	count, err := w.states.CleanupExpired(ctx)
	if err != nil {
		w.log.Error("failed to clean up oauth states", zap.Error(err))
		return
	}
	if count > 0 {
		w.log.Info("removed expired oauth states", zap.Int64("count", count))
	}
}
