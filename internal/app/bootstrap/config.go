// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/flathub/internal/app/services/ledger"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

const (
	defaultLockTTL  = 10 * time.Second
	defaultLockWait = 5 * time.Second
)

// appConfigKeys defines the configuration keys for FlatHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: FLATHUB_MONGO_URI, FLATHUB_REDIS_ADDR, etc.
//   - Command-line flags: --mongo_uri, --redis_addr, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "flathub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "flathub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime (e.g., 24h, 720h)"},

	// Redis
	{Name: "redis_addr", Default: "", Desc: "Redis address for shared locks and live notifications (blank: single instance)"},
	{Name: "redis_channel", Default: "flathub:notifications", Desc: "Redis pub/sub channel for new notifications"},

	// Locks
	{Name: "lock_ttl", Default: "10s", Desc: "Lease length of a shared flat lock held in Redis"},
	{Name: "lock_wait", Default: "5s", Desc: "How long a request waits for a busy shared flat before failing"},

	// Ledger
	{Name: "need_ttl", Default: "168h", Desc: "Default lifetime of a need event without expire_at"},

	// Write throttling
	{Name: "write_rate_limit", Default: 120, Desc: "Max state-changing API requests per user per window (0 disables)"},
	{Name: "write_rate_window", Default: "1m", Desc: "Window for write_rate_limit"},

	// Notification retention
	{Name: "notification_retention", Default: "720h", Desc: "Delete read notifications older than this (0 keeps them)"},
	{Name: "prune_interval", Default: "1h", Desc: "How often read notifications are pruned"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, FLATHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "FLATHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),
		SessionMaxAge: appValues.Duration("session_max_age", 30*24*time.Hour),

		RedisAddr:    appValues.String("redis_addr"),
		RedisChannel: appValues.String("redis_channel"),

		LockTTL:  appValues.Duration("lock_ttl", defaultLockTTL),
		LockWait: appValues.Duration("lock_wait", defaultLockWait),

		NeedTTL: appValues.Duration("need_ttl", ledger.DefaultNeedTTL),

		WriteRateLimit:  appValues.Int("write_rate_limit"),
		WriteRateWindow: appValues.Duration("write_rate_window", time.Minute),

		NotificationRetention: appValues.Duration("notification_retention", 30*24*time.Hour),
		PruneInterval:         appValues.Duration("prune_interval", time.Hour),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The MongoDB URI format is checked here to catch configuration errors
// before attempting to connect.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.MongoDatabase == "" {
		return fmt.Errorf("mongo_database must not be empty")
	}
	if appCfg.LockWait <= 0 {
		return fmt.Errorf("lock_wait must be positive, got %s", appCfg.LockWait)
	}
	if appCfg.UsesRedis() && appCfg.LockTTL <= appCfg.LockWait {
		// A lease shorter than the wait lets a lock expire under a slow holder
		// before a waiter gives up.
		return fmt.Errorf("lock_ttl (%s) must exceed lock_wait (%s)", appCfg.LockTTL, appCfg.LockWait)
	}
	if appCfg.NeedTTL <= 0 {
		return fmt.Errorf("need_ttl must be positive, got %s", appCfg.NeedTTL)
	}
	if appCfg.WriteRateLimit < 0 {
		return fmt.Errorf("write_rate_limit must not be negative, got %d", appCfg.WriteRateLimit)
	}
	if appCfg.WriteRateLimit > 0 && appCfg.WriteRateWindow <= 0 {
		return fmt.Errorf("write_rate_window must be positive, got %s", appCfg.WriteRateWindow)
	}
	if appCfg.NotificationRetention < 0 {
		return fmt.Errorf("notification_retention must not be negative, got %s", appCfg.NotificationRetention)
	}
	if appCfg.PrunesNotifications() && appCfg.PruneInterval <= 0 {
		return fmt.Errorf("prune_interval must be positive, got %s", appCfg.PruneInterval)
	}
	if coreCfg != nil && coreCfg.Env == "prod" && !appCfg.UsesRedis() {
		logger.Warn("redis_addr is blank in prod; shared flat locks only hold within this instance")
	}
	return nil
}
