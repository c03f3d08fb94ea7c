// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops background work, lets in-flight pushes finish within ctx,
// then closes websocket sessions and backend connections.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if svc := deps.Services; svc != nil {
		if svc.retry != nil {
			svc.retry.Stop()
		}
		if svc.SendLimiter != nil {
			svc.SendLimiter.Stop()
		}
		if svc.Pusher != nil {
			if err := svc.Pusher.Drain(ctx); err != nil {
				logger.Warn("live pushes still in flight at shutdown", zap.Error(err))
			}
		}
		if svc.natsRelay != nil {
			if err := svc.natsRelay.Stop(); err != nil {
				logger.Warn("NATS relay stop failed", zap.Error(err))
			}
		}
		if svc.stopRelay != nil {
			svc.stopRelay()
			select {
			case <-svc.relayExited:
			case <-ctx.Done():
			}
		}
		if svc.Hub != nil {
			svc.Hub.Close()
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting StrataComm MongoDB client")
	}
	closeBackends(ctx, deps, logger)
	return nil
}
