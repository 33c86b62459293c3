// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig handles framework-level settings (ports, TLS,
// logging level, request limits). AppConfig carries everything specific
// to the IVR portal: the MongoDB connection, session cookies, MFA and
// OAuth settings, file storage for branding uploads, the bearer API
// verifier, and audit routing.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Max connection pool size
	MongoMinPoolSize uint64 // Min connection pool size

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: ivrhub-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionTTL    time.Duration // Absolute session lifetime

	// Idle sessions past this age are closed by the background sweeper.
	// The per-request inactivity check reads the admin-configurable value
	// from settings; this is the floor for sessions that stop heartbeating.
	SessionInactivity time.Duration

	// MFA code lifetime (codes are single use regardless)
	MFACodeExpiry time.Duration

	// File storage for branding uploads (logo)
	StorageLocalPath string // Local storage path (e.g., "./uploads")
	StorageLocalURL  string // URL prefix for serving stored files (e.g., "/files")

	// Google OAuth configuration (blank disables the Google sign-in path)
	GoogleClientID     string
	GoogleClientSecret string

	// Base URL for OAuth callbacks (e.g., "https://portal.example.com")
	BaseURL string

	// Bearer API verification. A remote endpoint takes precedence over the
	// shared HS256 secret; with neither set the /api/v1 surface is not
	// mounted.
	APIJWTSecret      string
	APIJWTLeeway      time.Duration
	APIVerifyEndpoint string

	// Audit event routing per category: "all" (db+log), "db", "log", "off"
	AuditLogAuth     string
	AuditLogAdmin    string
	AuditLogSecurity string

	// Pending orders older than this are flagged by the escalation job
	StaleOrderMaxAge time.Duration

	// Admin bootstrap: promotes/creates an admin portal account on startup
	AdminEmail string

	// Seeds the demo distributor forest into an empty database on startup
	SeedDemoData bool
}
