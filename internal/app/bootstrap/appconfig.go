// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// Store backends selectable with store_type.
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables (STRATACOMM_*), configuration
// files, or command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig
// covers ports, TLS, logging and CORS; everything specific to the
// communication fabric lives here.
type AppConfig struct {
	// Storage
	StoreType        string // "mongo" (default) or "memory" for development
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Live push transport. Redis wins when both are set; with neither, pushes
	// only reach sessions on this instance.
	RedisURL string
	NATSURL  string

	// Bearer token authentication
	JWTSecret string
	JWTIssuer string

	// Delivery tuning
	FanOutTimeout     time.Duration
	FanOutParallelism int
	PushBudget        time.Duration

	// Push retry worker
	PushRetryInterval time.Duration // 0 disables the worker
	PushRetryWindow   time.Duration
	PushRetryBatch    int

	// Permission cache TTL in Redis. 0 disables caching.
	AuthzCacheTTL time.Duration

	// Per-user cap on message sends and notification pushes per
	// SendRateWindow. 0 disables the limit.
	SendRateLimit  int
	SendRateWindow time.Duration

	// TaskLinkBase prefixes task deep links in notifications.
	TaskLinkBase string

	// Audit logging: "all", "db", "log" or "off"
	AuditLogAdmin    string
	AuditLogSecurity string

	// WSAllowedOrigins lists browser origins allowed to open /ws.
	WSAllowedOrigins []string

	// Bootstrap administrator. Empty AdminUserID skips seeding.
	AdminUserID   string
	AdminUserName string
}
