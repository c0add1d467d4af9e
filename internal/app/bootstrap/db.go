// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/dikshahub/internal/app/store/sqlitestore"
	"github.com/dalemusser/dikshahub/internal/app/system/indexes"
	"github.com/dalemusser/dikshahub/internal/app/system/timeouts"
	"github.com/dalemusser/dikshahub/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB opens the configured store backend.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	deps := DBDeps{Backend: appCfg.StoreBackend, services: &services{}}

	if appCfg.StoreBackend == BackendSQLite {
		st, err := sqlitestore.Open(appCfg.SQLitePath, logger)
		if err != nil {
			return DBDeps{}, err
		}
		logger.Info("opened SQLite store", zap.String("path", appCfg.SQLitePath))
		deps.SQLite = st
		return deps, nil
	}

	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize).
		SetAppName("dikshahub")
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Sweep())
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return DBDeps{}, fmt.Errorf("ping mongo: %w", err)
	}
	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool", appCfg.MongoMaxPoolSize))

	deps.MongoClient = client
	deps.MongoDatabase = client.Database(appCfg.MongoDatabase)
	return deps, nil
}

// EnsureSchema sets up collections, validators and indexes (Mongo) or runs
// the table migrations (SQLite).
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.SQLite != nil {
		if err := deps.SQLite.Migrate(ctx); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
		logger.Info("sqlite schema ready")
		return nil
	}

	// Collections must exist before multi-document transactions touch them.
	if err := validators.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		return fmt.Errorf("ensure validators: %w", err)
	}
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	logger.Info("mongo schema ready")
	return nil
}
