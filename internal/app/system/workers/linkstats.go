// internal/app/system/workers/linkstats.go
package workers

import (
	"context"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/system/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ActiveCounter counts access links that currently grant access.
type ActiveCounter interface {
	CountActive(ctx context.Context, now time.Time) (int64, error)
}

// LinkStats periodically publishes the number of active guest links to a gauge.
type LinkStats struct {
	*ticker
	links ActiveCounter
	gauge prometheus.Gauge
	clk   clock.Clock
}

// NewLinkStats creates a link stats worker. gauge is normally
// metrics.ActiveLinks.
func NewLinkStats(links ActiveCounter, gauge prometheus.Gauge, clk clock.Clock, logger *zap.Logger, interval time.Duration) *LinkStats {
	if clk == nil {
		clk = clock.Real()
	}
	w := &LinkStats{links: links, gauge: gauge, clk: clk}
	w.ticker = newTicker("link stats", logger, interval, w.refresh)
	return w
}

func (w *LinkStats) refresh(ctx context.Context) {
	n, err := w.links.CountActive(ctx, w.clk.Now())
	if err != nil {
		// Keep the last good value rather than report zero links.
		w.log.Warn("failed to count active guest links", zap.Error(err))
		return
	}
	w.gauge.Set(float64(n))
}
