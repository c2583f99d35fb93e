// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"sync"

	"github.com/dalemusser/promptshelf/internal/app/store/accessgrants"
	"github.com/dalemusser/promptshelf/internal/app/store/oauthstate"
	"github.com/dalemusser/promptshelf/internal/app/system/clock"
	"github.com/dalemusser/promptshelf/internal/app/system/metrics"
	"github.com/dalemusser/promptshelf/internal/app/system/timeouts"
	"github.com/dalemusser/promptshelf/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

type stopper interface {
	Stop()
}

// background tracks everything that must be stopped on shutdown.
type background struct {
	mu    sync.Mutex
	items []stopper
}

func (b *background) add(s stopper) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.items = append(b.items, s)
	b.mu.Unlock()
}

// stopAll stops items in reverse order of registration.
func (b *background) stopAll() {
	if b == nil {
		return
	}
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.mu.Unlock()
	for i := len(items) - 1; i >= 0; i-- {
		items[i].Stop()
	}
}

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It applies
// the configured backend deadlines and starts the background workers (the
// active-link gauge refresh and the expired OAuth state sweep).
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Ping:   appCfg.TimeoutPing,
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
	})

	linkStats := workers.NewLinkStats(
		accessgrants.New(deps.MongoDatabase),
		metrics.ActiveLinks,
		clock.Real(),
		logger,
		appCfg.MetricsRefreshInterval,
	)
	linkStats.Start()
	deps.bg.add(linkStats)

	stateCleanup := workers.NewStateCleanup(oauthstate.New(deps.MongoDatabase), logger, appCfg.StateCleanupInterval)
	stateCleanup.Start()
	deps.bg.add(stateCleanup)

	logger.Info("background workers started",
		zap.Duration("metrics_refresh_interval", appCfg.MetricsRefreshInterval),
		zap.Duration("state_cleanup_interval", appCfg.StateCleanupInterval))
	return nil
}
