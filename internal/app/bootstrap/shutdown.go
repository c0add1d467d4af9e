// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops background work, then closes the broker and store.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if svc := deps.services; svc != nil {
		if svc.sweeper != nil {
			svc.sweeper.Stop()
		}
		if svc.limiter != nil {
			svc.limiter.Close()
		}
		if svc.amqp != nil {
			if err := svc.amqp.Close(); err != nil {
				logger.Warn("AMQP close failed", zap.Error(err))
			}
		}
	}
	if deps.SQLite != nil {
		logger.Info("closing SQLite store")
		if err := deps.SQLite.Close(); err != nil {
			logger.Error("SQLite close failed", zap.Error(err))
			return err
		}
	}
	if deps.MongoClient != nil {
		logger.Info("disconnecting DikshaHub MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
