// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// Store backends.
const (
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
)

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//
// AppConfig carries the store selection, scheduling defaults, session
// settings and the collaborator wiring (events, audit, metrics).
type AppConfig struct {
	// Store selection
	StoreBackend string // "mongo" or "sqlite"
	SQLitePath   string // SQLite file (or ":memory:") when StoreBackend is sqlite

	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration
	SessionKey           string        // Secret key for signing session cookies (must be strong in production)
	SessionName          string        // Cookie name for sessions (default: dikshahub-session)
	SessionDomain        string        // Cookie domain (blank means current host)
	SessionMaxAge        time.Duration // Cookie lifetime
	TrustIdentityHeaders bool          // Accept X-Auth-User-* from a trusted gateway

	// Scheduling defaults
	DefaultMeetingLimit int
	DefaultDikshaLimit  int
	MoveCooldown        time.Duration // zero or negative disables the cooldown
	UnlockSweepInterval time.Duration // 0 disables the sweeper

	// Operation timeouts (zero keeps the package defaults)
	TimeoutPing  time.Duration
	TimeoutRead  time.Duration
	TimeoutWrite time.Duration
	TimeoutSweep time.Duration

	// Domain events
	AMQPURL      string // blank publishes to the log only
	AMQPExchange string

	// Audit logging: "all", "db", "log" or "off"
	AuditLogAssignment string
	AuditLogContainer  string

	// Mutating API requests allowed per caller per minute (0 disables)
	APIMutationsPerMinute int

	MetricsEnabled bool
}
