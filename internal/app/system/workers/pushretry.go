// internal/app/system/workers/pushretry.go
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Retrier re-pushes notifications whose live push has not succeeded.
type Retrier interface {
	RetryUnpushed(ctx context.Context, window time.Duration, limit int) (int, error)
}

// PushRetry is a background worker that periodically re-pushes notifications
// that were stored but never reached a live connection.
type PushRetry struct {
	retrier  Retrier
	log      *zap.Logger
	interval time.Duration
	window   time.Duration
	batch    int
	timeout  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPushRetry creates a new push-retry worker.
//
// Parameters:
//   - retrier: usually the notification dispatcher
//   - logger: zap logger for logging
//   - interval: how often to scan (e.g., 30 seconds)
//   - window: only notifications created this recently are retried (e.g., 10 minutes)
//   - batch: at most this many notifications per tick
func NewPushRetry(retrier Retrier, logger *zap.Logger, interval, window time.Duration, batch int) *PushRetry {
	timeout := interval
	if timeout <= 0 || timeout > 30*time.Second {
		timeout = 30 * time.Second
	}
	return &PushRetry{
		retrier:  retrier,
		log:      logger,
		interval: interval,
		window:   window,
		batch:    batch,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background retry loop.
func (w *PushRetry) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("push retry worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("window", w.window),
		zap.Int("batch", w.batch))
}

// Stop signals the worker to stop and waits for it to finish. It is safe to
// call more than once.
func (w *PushRetry) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		w.log.Info("push retry worker stopped")
	})
}

func (w *PushRetry) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// RunOnce performs a single retry pass.
func (w *PushRetry) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	count, err := w.retrier.RetryUnpushed(ctx, w.window, w.batch)
	if err != nil {
		w.log.Error("failed to retry unpushed notifications", zap.Error(err))
		return
	}

	if count > 0 {
		w.log.Info("re-pushed notifications", zap.Int("count", count))
	}
}
