// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/system/accesslinks"
	"github.com/dalemusser/promptshelf/internal/app/system/auditlog"
	"github.com/dalemusser/promptshelf/internal/app/system/auth"
	"github.com/dalemusser/promptshelf/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for PromptShelf.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: PROMPTSHELF_MONGO_URI, PROMPTSHELF_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "promptshelf", Desc: "MongoDB database name"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: auth.DefaultSessionName, Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Signed-in session lifetime (e.g., 24h, 720h)"},

	{Name: "base_url", Default: "http://localhost:3000", Desc: "Public base URL for guest links and OAuth callbacks"},

	// Guest access
	{Name: "guest_link_ttl_days", Default: accesslinks.DefaultTTLDays, Desc: "Default guest link lifetime in days"},
	{Name: "guest_validate_timeout", Default: "10s", Desc: "Upper bound on one guest token validation"},
	{Name: "guest_reload_delay", Default: "3s", Desc: "Pause before reloading after access is granted"},
	{Name: "guest_memo_ttl", Default: "1s", Desc: "How long a resolved guest token is memoized"},
	{Name: "guest_storage", Default: GuestStorageCookie, Desc: "Guest tab storage: 'cookie' or 'redis'"},
	{Name: "guest_validate_rate_limit", Default: 30, Desc: "Guest token validations per client IP per minute (0 disables)"},

	// Redis
	{Name: "redis_addr", Default: "", Desc: "Redis address (host:port), required when guest_storage is 'redis'"},
	{Name: "redis_password", Default: "", Desc: "Redis password"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},

	// NATS
	{Name: "nats_url", Default: "", Desc: "NATS server URL for guest link events (blank disables)"},

	// Google OAuth configuration
	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: auditlog.DestAll, Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_guest", Default: auditlog.DestAll, Desc: "Guest event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: auditlog.DestAll, Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Background workers
	{Name: "metrics_refresh_interval", Default: "1m", Desc: "Active guest link gauge refresh interval"},
	{Name: "state_cleanup_interval", Default: "15m", Desc: "Expired OAuth state cleanup interval"},

	// Backend call deadlines
	{Name: "timeout_ping", Default: "2s", Desc: "Deadline for health check pings"},
	{Name: "timeout_short", Default: "5s", Desc: "Deadline for single-document operations"},
	{Name: "timeout_medium", Default: "10s", Desc: "Deadline for list queries and multi-step writes"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// It is called early in startup so that both WAFFLE and the app have
// access to configuration before any backends or handlers are built.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, PROMPTSHELF_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "PROMPTSHELF", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:      appValues.String("mongo_uri"),
		MongoDatabase: appValues.String("mongo_database"),
		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),
		SessionMaxAge: appValues.Duration("session_max_age", 30*24*time.Hour),

		BaseURL: appValues.String("base_url"),

		// Guest access
		GuestLinkTTLDays:       appValues.Int("guest_link_ttl_days"),
		GuestValidateTimeout:   appValues.Duration("guest_validate_timeout", 10*time.Second),
		GuestReloadDelay:       appValues.Duration("guest_reload_delay", 3*time.Second),
		GuestMemoTTL:           appValues.Duration("guest_memo_ttl", time.Second),
		GuestStorage:           strings.ToLower(strings.TrimSpace(appValues.String("guest_storage"))),
		GuestValidateRateLimit: appValues.Int("guest_validate_rate_limit"),

		// Redis
		RedisAddr:     appValues.String("redis_addr"),
		RedisPassword: appValues.String("redis_password"),
		RedisDB:       appValues.Int("redis_db"),

		// NATS
		NATSURL: appValues.String("nats_url"),

		// Google OAuth
		GoogleClientID:     appValues.String("google_client_id"),
		GoogleClientSecret: appValues.String("google_client_secret"),

		// Audit logging
		AuditLogAuth:  appValues.String("audit_log_auth"),
		AuditLogGuest: appValues.String("audit_log_guest"),
		AuditLogAdmin: appValues.String("audit_log_admin"),

		// Workers
		MetricsRefreshInterval: appValues.Duration("metrics_refresh_interval", time.Minute),
		StateCleanupInterval:   appValues.Duration("state_cleanup_interval", 15*time.Minute),

		// Deadlines
		TimeoutPing:   appValues.Duration("timeout_ping", timeouts.DefaultPing),
		TimeoutShort:  appValues.Duration("timeout_short", timeouts.DefaultShort),
		TimeoutMedium: appValues.Duration("timeout_medium", timeouts.DefaultMedium),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The MongoDB URI format is checked here to catch configuration errors
// early, before attempting to connect.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	return validateApp(appCfg)
}

// validateApp checks the settings that need no backend.
func validateApp(appCfg AppConfig) error {
	if len(appCfg.SessionKey) < auth.MinKeyLength {
		return auth.ErrShortKey
	}

	switch appCfg.GuestStorage {
	case GuestStorageCookie:
	case GuestStorageRedis:
		if appCfg.RedisAddr == "" {
			return fmt.Errorf("guest_storage 'redis' requires redis_addr to be set")
		}
	default:
		return fmt.Errorf("guest_storage must be 'cookie' or 'redis', got %q", appCfg.GuestStorage)
	}

	if appCfg.GuestLinkTTLDays < 1 || appCfg.GuestLinkTTLDays > accesslinks.MaxTTLDays {
		return fmt.Errorf("guest_link_ttl_days must be between 1 and %d", accesslinks.MaxTTLDays)
	}
	if appCfg.GuestValidateRateLimit < 0 {
		return fmt.Errorf("guest_validate_rate_limit must not be negative")
	}
	if appCfg.MetricsRefreshInterval <= 0 || appCfg.StateCleanupInterval <= 0 {
		return fmt.Errorf("metrics_refresh_interval and state_cleanup_interval must be positive")
	}

	for name, v := range map[string]string{
		"audit_log_auth":  appCfg.AuditLogAuth,
		"audit_log_guest": appCfg.AuditLogGuest,
		"audit_log_admin": appCfg.AuditLogAdmin,
	} {
		switch v {
		case auditlog.DestAll, auditlog.DestDB, auditlog.DestLog, auditlog.DestOff:
		default:
			return fmt.Errorf("%s must be 'all', 'db', 'log' or 'off', got %q", name, v)
		}
	}
	return nil
}
