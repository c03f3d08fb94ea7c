// internal/app/system/livepush/pusher.go
package livepush

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/stratacomm/internal/app/system/metrics"
	"go.uber.org/zap"
)

// Pusher runs live pushes in the background, each bounded by a budget. The
// caller never waits for a push. Pushes are detached from the caller's
// cancellation so that a finished request does not abort them.
type Pusher struct {
	adapter Adapter
	budget  time.Duration
	log     *zap.Logger

	wg sync.WaitGroup
}

// NewPusher wraps adapter. A nil adapter is treated as Nop.
func NewPusher(adapter Adapter, budget time.Duration, logger *zap.Logger) *Pusher {
	if adapter == nil {
		adapter = Nop{}
	}
	return &Pusher{adapter: adapter, budget: budget, log: logger}
}

// Go starts a push of ev to userID. done, when non-nil, is called with the
// outcome after the push finishes or the budget runs out.
func (p *Pusher) Go(ctx context.Context, userID string, ev Event, done func(err error)) {
	pctx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := p.Push(pctx, userID, ev)
		if done != nil {
			done(err)
		}
	}()
}

// Push performs one budgeted push synchronously.
func (p *Pusher) Push(ctx context.Context, userID string, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	err := p.adapter.Notify(ctx, userID, ev)
	if err != nil {
		metrics.LivePushes.WithLabelValues("error").Inc()
		p.log.Warn("live push failed",
			zap.String("user_id", userID),
			zap.String("kind", ev.Kind),
			zap.Error(err))
		return err
	}
	metrics.LivePushes.WithLabelValues("ok").Inc()
	return nil
}

// Drain waits for in-flight pushes or until ctx is done.
func (p *Pusher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
