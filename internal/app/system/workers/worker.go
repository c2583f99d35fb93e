// internal/app/system/workers/worker.go
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ticker runs tick every interval until stopped. Start runs tick once
// immediately so gauges are populated before the first interval elapses.
type ticker struct {
	name     string
	log      *zap.Logger
	interval time.Duration
	timeout  time.Duration
	tick     func(ctx context.Context)

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func newTicker(name string, logger *zap.Logger, interval time.Duration, tick func(ctx context.Context)) *ticker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ticker{
		name:     name,
		log:      logger,
		interval: interval,
		timeout:  30 * time.Second,
		tick:     tick,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background loop.
func (w *ticker) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info(w.name+" worker started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for it to finish.
// It is safe to call more than once.
func (w *ticker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.log.Info(w.name + " worker stopped")
}

func (w *ticker) run() {
	defer w.wg.Done()

	w.once()

	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-t.C:
			w.once()
		}
	}
}

func (w *ticker) once() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	w.tick(ctx)
}
