// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/stratacomm/internal/app/system/auth"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for StrataComm.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, jwt_secret, etc.
//   - Environment variables: STRATACOMM_MONGO_URI, STRATACOMM_JWT_SECRET, etc.
//   - Command-line flags: --mongo_uri, --jwt_secret, etc.
var appConfigKeys = []config.AppKey{
	{Name: "store_type", Default: StoreMongo, Desc: "Record store: 'mongo' or 'memory'"},
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "strata_comm", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Live push transport
	{Name: "redis_url", Default: "", Desc: "Redis URL for cross-instance push and the permission cache (e.g., redis://localhost:6379/0)"},
	{Name: "nats_url", Default: "", Desc: "NATS URL for cross-instance push when Redis is not set"},

	// Auth
	{Name: "jwt_secret", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "HS256 signing secret for bearer tokens (at least 32 bytes)"},
	{Name: "jwt_issuer", Default: "stratacomm", Desc: "Expected token issuer (blank disables the check)"},

	// Delivery tuning
	{Name: "fanout_timeout", Default: "5s", Desc: "Deadline for one message fan-out"},
	{Name: "fanout_parallelism", Default: 16, Desc: "Concurrent recipient writes per fan-out"},
	{Name: "push_budget", Default: "300ms", Desc: "Time budget for one live push"},
	{Name: "push_retry_interval", Default: "30s", Desc: "How often unpushed notifications are retried (0 disables)"},
	{Name: "push_retry_window", Default: "15m", Desc: "Only notifications younger than this are retried"},
	{Name: "push_retry_batch", Default: 200, Desc: "Max notifications retried per tick"},

	{Name: "send_rate_limit", Default: 120, Desc: "Message sends and notification pushes allowed per user per send_rate_window (0 disables)"},
	{Name: "send_rate_window", Default: "1m", Desc: "Window for send_rate_limit"},

	{Name: "authz_cache_ttl", Default: "30s", Desc: "Role cache TTL in Redis (0 disables)"},
	{Name: "task_link_base", Default: "/tasks", Desc: "Prefix for task deep links in notifications"},

	// Audit logging settings
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_security", Default: "all", Desc: "Security event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	{Name: "ws_allowed_origins", Default: "", Desc: "Comma-separated origins allowed to open websockets ('*' for any)"},

	// Administrator bootstrap
	{Name: "admin_user_id", Default: "", Desc: "User id granted the administrator role on startup"},
	{Name: "admin_user_name", Default: "Administrator", Desc: "Full name used when the administrator user is created"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, STRATACOMM_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "STRATACOMM", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		StoreType:        strings.ToLower(strings.TrimSpace(appValues.String("store_type"))),
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		RedisURL: strings.TrimSpace(appValues.String("redis_url")),
		NATSURL:  strings.TrimSpace(appValues.String("nats_url")),

		JWTSecret: appValues.String("jwt_secret"),
		JWTIssuer: appValues.String("jwt_issuer"),

		FanOutTimeout:     appValues.Duration("fanout_timeout", 5*time.Second),
		FanOutParallelism: appValues.Int("fanout_parallelism"),
		PushBudget:        appValues.Duration("push_budget", 300*time.Millisecond),

		PushRetryInterval: appValues.Duration("push_retry_interval", 30*time.Second),
		PushRetryWindow:   appValues.Duration("push_retry_window", 15*time.Minute),
		PushRetryBatch:    appValues.Int("push_retry_batch"),

		SendRateLimit:  appValues.Int("send_rate_limit"),
		SendRateWindow: appValues.Duration("send_rate_window", time.Minute),

		AuthzCacheTTL: appValues.Duration("authz_cache_ttl", 30*time.Second),
		TaskLinkBase:  appValues.String("task_link_base"),

		AuditLogAdmin:    appValues.String("audit_log_admin"),
		AuditLogSecurity: appValues.String("audit_log_security"),

		WSAllowedOrigins: splitList(appValues.String("ws_allowed_origins")),

		AdminUserID:   strings.TrimSpace(appValues.String("admin_user_id")),
		AdminUserName: appValues.String("admin_user_name"),
	}

	return coreCfg, appCfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var auditModes = map[string]bool{"": true, "all": true, "db": true, "log": true, "off": true}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The MongoDB URI is only checked when Mongo is the configured store.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.StoreType {
	case StoreMongo:
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
	case StoreMemory:
		if coreCfg.Env == "prod" {
			logger.Warn("in-memory store selected in prod; all data is lost on restart")
		}
	default:
		return fmt.Errorf("store_type must be %q or %q, got %q", StoreMongo, StoreMemory, appCfg.StoreType)
	}

	if strings.TrimSpace(appCfg.JWTSecret) == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if coreCfg.Env == "prod" && len(appCfg.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("jwt_secret must be at least %d bytes in prod", auth.MinSecretLength)
	}

	switch {
	case appCfg.FanOutTimeout <= 0:
		return fmt.Errorf("fanout_timeout must be positive")
	case appCfg.PushBudget <= 0:
		return fmt.Errorf("push_budget must be positive")
	case appCfg.FanOutParallelism < 0:
		return fmt.Errorf("fanout_parallelism must not be negative")
	case appCfg.PushRetryInterval < 0 || appCfg.PushRetryWindow < 0 || appCfg.PushRetryBatch < 0:
		return fmt.Errorf("push retry settings must not be negative")
	case appCfg.AuthzCacheTTL < 0:
		return fmt.Errorf("authz_cache_ttl must not be negative")
	case appCfg.SendRateLimit < 0:
		return fmt.Errorf("send_rate_limit must not be negative")
	case appCfg.SendRateLimit > 0 && appCfg.SendRateWindow <= 0:
		return fmt.Errorf("send_rate_window must be positive when send_rate_limit is set")
	}

	for key, v := range map[string]string{"audit_log_admin": appCfg.AuditLogAdmin, "audit_log_security": appCfg.AuditLogSecurity} {
		if !auditModes[strings.ToLower(v)] {
			return fmt.Errorf("%s must be one of all, db, log, off; got %q", key, v)
		}
	}
	return nil
}
