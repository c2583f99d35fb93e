// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like ports, TLS,
// logging level and request limits. AppConfig carries what PromptShelf
// itself needs: backends, session secrets, and the guest access tunables.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI      string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase string // Database name within MongoDB

	// Session management configuration
	SessionKey    string        // Secret for signing/encrypting cookies (≥32 chars)
	SessionName   string        // Cookie name for the signed-in user session
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Lifetime of the signed-in user session

	// Base URL for guest links and OAuth callbacks
	BaseURL string // e.g., "https://promptshelf.example" or "http://localhost:3000"

	// Guest access
	GuestLinkTTLDays       int           // Default lifetime of a new guest link
	GuestValidateTimeout   time.Duration // Upper bound on one token validation
	GuestReloadDelay       time.Duration // Pause before the post-grant reload
	GuestMemoTTL           time.Duration // How long a resolved token is memoized
	GuestStorage           string        // Tab storage backend: "cookie" or "redis"
	GuestValidateRateLimit int           // Validations per client IP per minute (0 disables)

	// Redis (only used if GuestStorage is "redis")
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NATS link lifecycle events (blank disables publishing)
	NATSURL string

	// Google OAuth
	GoogleClientID     string
	GoogleClientSecret string

	// Audit logging per category: "all", "db", "log" or "off"
	AuditLogAuth  string
	AuditLogGuest string
	AuditLogAdmin string

	// Background workers
	MetricsRefreshInterval time.Duration // Active-link gauge refresh
	StateCleanupInterval   time.Duration // Expired OAuth state sweep

	// Backend call deadlines (zero keeps the timeouts package default)
	TimeoutPing   time.Duration
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
}

// Guest storage modes.
const (
	GuestStorageCookie = "cookie"
	GuestStorageRedis  = "redis"
)
