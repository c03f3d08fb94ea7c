// Package timeouts holds the deadlines used by store calls and message
// delivery. Values start at the defaults below; Configure overrides them
// once at startup.
//
//   - Ping: backend connectivity checks
//   - Short: single-document reads and guarded updates
//   - Medium: list queries and multi-step reads
//   - FanOut: the whole per-recipient delivery phase of one send
//   - PushBudget: one best-effort live push
package timeouts

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPing       = 2 * time.Second
	DefaultShort      = 5 * time.Second
	DefaultMedium     = 10 * time.Second
	DefaultFanOut     = 5 * time.Second
	DefaultPushBudget = 300 * time.Millisecond
)

// Config is a full set of timeouts. Zero fields passed to Configure keep
// their current value.
type Config struct {
	Ping       time.Duration
	Short      time.Duration
	Medium     time.Duration
	FanOut     time.Duration
	PushBudget time.Duration
}

func defaults() Config {
	return Config{
		Ping:       DefaultPing,
		Short:      DefaultShort,
		Medium:     DefaultMedium,
		FanOut:     DefaultFanOut,
		PushBudget: DefaultPushBudget,
	}
}

var (
	mu  sync.RWMutex
	cur = defaults()
)

func Ping() time.Duration   { return Current().Ping }
func Short() time.Duration  { return Current().Short }
func Medium() time.Duration { return Current().Medium }

// FanOut is the deadline for delivering one message to all of its
// recipients. Recipients unfinished when it expires are reported failed.
func FanOut() time.Duration { return Current().FanOut }

// PushBudget bounds a single live push. Pushes never hold up the caller.
func PushBudget() time.Duration { return Current().PushBudget }

// Configure overrides the non-zero fields of cfg. Call it during startup
// before handlers are built.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	set := func(dst *time.Duration, v time.Duration) {
		if v > 0 {
			*dst = v
		}
	}
	set(&cur.Ping, cfg.Ping)
	set(&cur.Short, cfg.Short)
	set(&cur.Medium, cfg.Medium)
	set(&cur.FanOut, cfg.FanOut)
	set(&cur.PushBudget, cfg.PushBudget)
}

// Reset restores the defaults. Tests that call Configure should defer it.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cur = defaults()
}

// Current returns a copy of the active configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cur
}

// WithTimeout is context.WithTimeout whose cancel func logs a warning when
// the deadline, rather than the caller, ended the operation.
//
//	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.FanOut(), r.log, "message fan-out")
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
