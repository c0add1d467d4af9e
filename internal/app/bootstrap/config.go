// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/app/system/auditlog"
	"github.com/dalemusser/dikshahub/internal/app/system/events"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for DikshaHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, store_backend, etc.
//   - Environment variables: DIKSHAHUB_MONGO_URI, DIKSHAHUB_STORE_BACKEND, etc.
//   - Command-line flags: --mongo_uri, --store_backend, etc.
var appConfigKeys = []config.AppKey{
	{Name: "store_backend", Default: BackendMongo, Desc: "Store backend: 'mongo' or 'sqlite'"},
	{Name: "sqlite_path", Default: "./dikshahub.db", Desc: "SQLite database file (sqlite backend only)"},

	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "diksha_hub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "dikshahub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "24h", Desc: "Session cookie lifetime"},
	{Name: "trust_identity_headers", Default: false, Desc: "Accept X-Auth-User-* identity headers from a trusted gateway"},

	// Scheduling
	{Name: "default_meeting_limit", Default: 20, Desc: "Limit given to new MEETING containers"},
	{Name: "default_diksha_limit", Default: 20, Desc: "Limit given to new DIKSHA containers"},
	{Name: "move_cooldown", Default: "5m", Desc: "Minimum time between moves of the same card (0 or negative disables)"},
	{Name: "unlock_sweep_interval", Default: "1m", Desc: "How often lapsed manual unlocks are cleared (0 disables)"},

	// Timeouts
	{Name: "timeout_ping", Default: "2s", Desc: "Health check timeout"},
	{Name: "timeout_read", Default: "5s", Desc: "Read request timeout"},
	{Name: "timeout_write", Default: "10s", Desc: "Mutating request timeout"},
	{Name: "timeout_sweep", Default: "30s", Desc: "Background sweep timeout"},

	// Events
	{Name: "amqp_url", Default: "", Desc: "AMQP broker URL for domain events (blank logs events only)"},
	{Name: "amqp_exchange", Default: events.DefaultExchange, Desc: "AMQP topic exchange for domain events"},

	// Audit logging settings
	{Name: "audit_log_assignment", Default: "all", Desc: "Card event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_container", Default: "all", Desc: "Container event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	{Name: "api_mutations_per_minute", Default: 120, Desc: "Mutating API requests allowed per caller per minute (0 disables)"},
	{Name: "metrics_enabled", Default: true, Desc: "Serve Prometheus metrics on /metrics"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, DIKSHAHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "DIKSHAHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		StoreBackend: strings.ToLower(strings.TrimSpace(appValues.String("store_backend"))),
		SQLitePath:   appValues.String("sqlite_path"),

		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:           appValues.String("session_key"),
		SessionName:          appValues.String("session_name"),
		SessionDomain:        appValues.String("session_domain"),
		SessionMaxAge:        appValues.Duration("session_max_age", 24*time.Hour),
		TrustIdentityHeaders: appValues.Bool("trust_identity_headers"),

		DefaultMeetingLimit: appValues.Int("default_meeting_limit"),
		DefaultDikshaLimit:  appValues.Int("default_diksha_limit"),
		MoveCooldown:        appValues.Duration("move_cooldown", scheduling.DefaultMoveCooldown),
		UnlockSweepInterval: appValues.Duration("unlock_sweep_interval", time.Minute),

		TimeoutPing:  appValues.Duration("timeout_ping", 0),
		TimeoutRead:  appValues.Duration("timeout_read", 0),
		TimeoutWrite: appValues.Duration("timeout_write", 0),
		TimeoutSweep: appValues.Duration("timeout_sweep", 0),

		AMQPURL:      appValues.String("amqp_url"),
		AMQPExchange: appValues.String("amqp_exchange"),

		AuditLogAssignment: appValues.String("audit_log_assignment"),
		AuditLogContainer:  appValues.String("audit_log_container"),

		APIMutationsPerMinute: appValues.Int("api_mutations_per_minute"),
		MetricsEnabled:        appValues.Bool("metrics_enabled"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The MongoDB URI is checked only when Mongo is the selected backend so a
// SQLite deployment need not carry one.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.StoreBackend {
	case BackendMongo:
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if appCfg.MongoDatabase == "" {
			return fmt.Errorf("mongo_database is required")
		}
	case BackendSQLite:
		if appCfg.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store_backend %q (want %q or %q)", appCfg.StoreBackend, BackendMongo, BackendSQLite)
	}

	if appCfg.DefaultMeetingLimit < 1 || appCfg.DefaultDikshaLimit < 1 {
		return fmt.Errorf("default limits must be positive (meeting=%d, diksha=%d)",
			appCfg.DefaultMeetingLimit, appCfg.DefaultDikshaLimit)
	}
	if appCfg.APIMutationsPerMinute < 0 {
		return fmt.Errorf("api_mutations_per_minute must not be negative")
	}
	if appCfg.UnlockSweepInterval < 0 {
		return fmt.Errorf("unlock_sweep_interval must not be negative")
	}
	for key, mode := range map[string]string{
		"audit_log_assignment": appCfg.AuditLogAssignment,
		"audit_log_container":  appCfg.AuditLogContainer,
	} {
		if !auditlog.ValidMode(mode) {
			return fmt.Errorf("%s: unknown mode %q", key, mode)
		}
	}
	if appCfg.AMQPURL != "" && appCfg.AMQPExchange == "" {
		return fmt.Errorf("amqp_exchange is required when amqp_url is set")
	}
	return nil
}
