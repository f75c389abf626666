// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig carries the framework settings (ports, TLS, logging,
// CORS, body limits). AppConfig carries what is specific to FlatHub: the
// Mongo connection, the shared session cookie, the optional Redis used for
// cross-instance locks and live notifications, and ledger defaults.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session cookie shared with the sign-in service
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: flathub-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime; 0 keeps the gorilla default

	// Redis (optional). Blank RedisAddr means in-process locks and no
	// live notification publishing, which only suits a single instance.
	RedisAddr    string
	RedisChannel string // pub/sub channel for new notifications

	// Flat and user locks
	LockTTL  time.Duration // lease length of a Redis lock
	LockWait time.Duration // how long a request waits for a busy lock before 503

	// Ledger
	NeedTTL time.Duration // default lifetime of a need event without expire_at

	// Write throttling per signed-in user (0 disables)
	WriteRateLimit  int
	WriteRateWindow time.Duration

	// Read notifications older than NotificationRetention are deleted every
	// PruneInterval. A zero retention keeps them forever.
	NotificationRetention time.Duration
	PruneInterval         time.Duration
}

// UsesRedis reports whether a Redis address is configured.
func (c AppConfig) UsesRedis() bool { return c.RedisAddr != "" }

// PrunesNotifications reports whether the notification pruner should run.
func (c AppConfig) PrunesNotifications() bool { return c.NotificationRetention > 0 }
