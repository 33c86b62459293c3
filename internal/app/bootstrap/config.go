// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for the IVR portal.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: IVRHUB_MONGO_URI, IVRHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "ivrhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size"},

	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "ivrhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_ttl", Default: "12h", Desc: "Absolute session lifetime (e.g., 12h, 8h)"},
	{Name: "session_inactivity", Default: "30m", Desc: "Idle threshold for the background session sweeper"},

	{Name: "mfa_code_expiry", Default: "5m", Desc: "MFA verification code lifetime"},

	// File storage for branding uploads
	{Name: "storage_local_path", Default: "./uploads", Desc: "Local storage path for uploaded files"},
	{Name: "storage_local_url", Default: "/files", Desc: "URL prefix for serving stored files"},

	// Google OAuth configuration
	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret"},

	{Name: "base_url", Default: "http://localhost:3000", Desc: "Base URL for OAuth callbacks"},

	// Bearer API verification
	{Name: "api_jwt_secret", Default: "", Desc: "HS256 secret for bearer API tokens"},
	{Name: "api_jwt_leeway", Default: "30s", Desc: "Clock skew allowance for bearer token validation"},
	{Name: "api_verify_endpoint", Default: "", Desc: "Remote token verification endpoint (overrides api_jwt_secret)"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_security", Default: "all", Desc: "Security event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	{Name: "stale_order_max_age", Default: "48h", Desc: "Pending orders older than this are flagged for escalation"},

	// Admin bootstrap
	{Name: "admin_email", Default: "", Desc: "Email of the admin account to promote/create on startup"},

	{Name: "seed_demo_data", Default: false, Desc: "Seed the demo distributor forest into an empty database on startup (dev only)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// It is called early in startup so that both WAFFLE and the app have
// access to configuration before any backends or handlers are built.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, IVRHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "IVRHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:        appValues.String("session_key"),
		SessionName:       appValues.String("session_name"),
		SessionDomain:     appValues.String("session_domain"),
		SessionTTL:        appValues.Duration("session_ttl", 12*time.Hour),
		SessionInactivity: appValues.Duration("session_inactivity", 30*time.Minute),

		MFACodeExpiry: appValues.Duration("mfa_code_expiry", 5*time.Minute),

		StorageLocalPath: appValues.String("storage_local_path"),
		StorageLocalURL:  appValues.String("storage_local_url"),

		GoogleClientID:     appValues.String("google_client_id"),
		GoogleClientSecret: appValues.String("google_client_secret"),

		BaseURL: appValues.String("base_url"),

		APIJWTSecret:      appValues.String("api_jwt_secret"),
		APIJWTLeeway:      appValues.Duration("api_jwt_leeway", 30*time.Second),
		APIVerifyEndpoint: appValues.String("api_verify_endpoint"),

		AuditLogAuth:     appValues.String("audit_log_auth"),
		AuditLogAdmin:    appValues.String("audit_log_admin"),
		AuditLogSecurity: appValues.String("audit_log_security"),

		StaleOrderMaxAge: appValues.Duration("stale_order_max_age", 48*time.Hour),

		AdminEmail: appValues.String("admin_email"),

		SeedDemoData: appValues.Bool("seed_demo_data"),
	}

	return coreCfg, appCfg, nil
}

// devSessionKey is the shipped default; production must override it.
const devSessionKey = "dev-only-change-me-please-0123456789ABCDEF"

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The checks here catch configuration errors before any connection is
// attempted: a malformed Mongo URI, the dev session key leaking into
// production, or half-configured Google OAuth.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if coreCfg.Env == "prod" && appCfg.SessionKey == devSessionKey {
		return fmt.Errorf("session_key must be set to a strong value in production")
	}

	if (appCfg.GoogleClientID == "") != (appCfg.GoogleClientSecret == "") {
		return fmt.Errorf("google_client_id and google_client_secret must be set together")
	}

	if appCfg.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}

	if coreCfg.Env == "prod" && appCfg.SeedDemoData {
		return fmt.Errorf("seed_demo_data is for development databases, not production")
	}

	return nil
}
