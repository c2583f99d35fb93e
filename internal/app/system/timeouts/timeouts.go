// Package timeouts holds the per-operation deadlines used by handlers and
// workers when they call MongoDB, Redis or NATS.
//
//   - Ping: health checks and connectivity verification
//   - Short: single-document reads and writes (link lookup, comment insert)
//   - Medium: list queries and multi-step writes (link listing, rating upsert)
package timeouts

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Defaults, in effect until Configure is called.
const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
)

// Config is one full set of deadlines. Zero fields passed to Configure keep
// the value already in effect.
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
}

func defaults() Config {
	return Config{Ping: DefaultPing, Short: DefaultShort, Medium: DefaultMedium}
}

var current atomic.Pointer[Config]

func init() { Reset() }

// Ping is the deadline for health checks.
func Ping() time.Duration { return current.Load().Ping }

// Short is the deadline for single-document operations.
func Short() time.Duration { return current.Load().Short }

// Medium is the deadline for list queries and multi-step writes.
func Medium() time.Duration { return current.Load().Medium }

// Current returns the deadlines in effect.
func Current() Config { return *current.Load() }

// Configure overrides the non-zero fields of cfg. It is meant for startup,
// before handlers run, but is safe to call at any time.
func Configure(cfg Config) {
	for {
		old := current.Load()
		next := *old
		if cfg.Ping > 0 {
			next.Ping = cfg.Ping
		}
		if cfg.Short > 0 {
			next.Short = cfg.Short
		}
		if cfg.Medium > 0 {
			next.Medium = cfg.Medium
		}
		if current.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Reset restores the defaults.
func Reset() {
	d := defaults()
	current.Store(&d)
}

// WithTimeout derives a context bounded by timeout. Its cancel function logs
// a warning when the context ended because the deadline passed.
//
//	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list guest links")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if log != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
