// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/app/store/audit"
	"github.com/dalemusser/dikshahub/internal/app/store/mongorepo"
	"github.com/dalemusser/dikshahub/internal/app/system/auditlog"
	"github.com/dalemusser/dikshahub/internal/app/system/events"
	"github.com/dalemusser/dikshahub/internal/app/system/timeouts"
	"github.com/dalemusser/dikshahub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It builds
// the scheduling engine with its collaborators and starts the unlock sweeper.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.services == nil {
		return fmt.Errorf("startup: dependencies were not created by ConnectDB")
	}
	svc := deps.services

	timeouts.Configure(timeouts.Config{
		Ping:  appCfg.TimeoutPing,
		Read:  appCfg.TimeoutRead,
		Write: appCfg.TimeoutWrite,
		Sweep: appCfg.TimeoutSweep,
	})

	var repo scheduling.Repository
	var auditStore *audit.Store
	if deps.SQLite != nil {
		repo = deps.SQLite
	} else {
		repo = mongorepo.New(deps.MongoDatabase, logger)
		auditStore = audit.New(deps.MongoDatabase)
	}

	auditor := auditlog.New(auditStore, logger, auditlog.Config{
		Assignment: appCfg.AuditLogAssignment,
		Container:  appCfg.AuditLogContainer,
	})

	var publisher scheduling.Publisher = events.NewLogPublisher(logger)
	if appCfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(appCfg.AMQPURL, appCfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("connect amqp: %w", err)
		}
		logger.Info("publishing events to AMQP", zap.String("exchange", p.Exchange()))
		svc.amqp, publisher = p, p
	}

	svc.registry = prometheus.NewRegistry()
	svc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := scheduling.NewMetrics(svc.registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	svc.engine = scheduling.New(repo, scheduling.Config{
		DefaultMeetingLimit: appCfg.DefaultMeetingLimit,
		DefaultDikshaLimit:  appCfg.DefaultDikshaLimit,
		MoveCooldown:        appCfg.MoveCooldown,
	}, logger,
		scheduling.WithAuditor(auditor),
		scheduling.WithPublisher(publisher),
		scheduling.WithMetrics(metrics),
	)

	if appCfg.UnlockSweepInterval > 0 {
		svc.sweeper = workers.NewUnlockSweeper(svc.engine, logger, appCfg.UnlockSweepInterval)
		svc.sweeper.Start()
	}

	logger.Info("scheduling engine ready",
		zap.String("backend", deps.Backend),
		zap.Int("default_meeting_limit", appCfg.DefaultMeetingLimit),
		zap.Int("default_diksha_limit", appCfg.DefaultDikshaLimit),
		zap.Duration("move_cooldown", appCfg.MoveCooldown),
		zap.Duration("unlock_sweep_interval", appCfg.UnlockSweepInterval))
	return nil
}
