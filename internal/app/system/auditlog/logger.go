// internal/app/system/auditlog/logger.go
package auditlog

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies an account record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/dalemusser/ivrhub/internal/app/store/audit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for authentication events (login, logout, password, MFA).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Auth string
	// Admin controls logging for admin action events (accounts, hierarchy, territories, patients, orders, settings).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Admin string
	// Security controls logging for security events (access denials, PHI views).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Security string
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (for reverse proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// Fall back to RemoteAddr with the port stripped
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}

	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.HierarchyID != "" {
		fields = append(fields, zap.String("hierarchy_id", event.HierarchyID))
	}
	if event.TerritoryID != "" {
		fields = append(fields, zap.String("territory_id", event.TerritoryID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
// Logging destination is controlled by config: "all", "db", "log", or "off".
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	// Determine which config setting applies based on event category
	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryAdmin:
		setting = l.config.Admin
	case audit.CategorySecurity:
		setting = l.config.Security
	default:
		setting = "all" // Default to logging everything for unknown categories
	}

	// Check if logging is disabled for this category
	if setting == "off" {
		return
	}

	// Log to zap if configured
	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	// Log to MongoDB if configured
	if setting == "all" || setting == "db" {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Authentication Events ---

// LoginSuccess logs a successful login.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, userID primitive.ObjectID, hierarchyID, authMethod, loginID string) {
	l.Log(ctx, audit.Event{
		Category:    audit.CategoryAuth,
		EventType:   audit.EventLoginSuccess,
		UserID:      &userID,
		HierarchyID: hierarchyID,
		IP:          getClientIP(r),
		UserAgent:   r.UserAgent(),
		Success:     true,
		Details: map[string]string{
			"auth_method": authMethod,
			"login_id":    loginID,
		},
	})
}

// LoginFailedUserNotFound logs a failed login due to user not found.
func (l *Logger) LoginFailedUserNotFound(ctx context.Context, r *http.Request, attemptedLoginID string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedUserNotFound,
		IP:            getClientIP(r),
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: "user not found",
		Details: map[string]string{
			"attempted_login_id": attemptedLoginID,
		},
	})
}

// LoginFailedWrongPassword logs a failed login due to wrong password.
func (l *Logger) LoginFailedWrongPassword(ctx context.Context, r *http.Request, userID primitive.ObjectID, hierarchyID, loginID string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedWrongPassword,
		UserID:        &userID,
		HierarchyID:   hierarchyID,
		IP:            getClientIP(r),
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: "wrong password",
		Details: map[string]string{
			"login_id": loginID,
		},
	})
}

// LoginFailedUserDisabled logs a failed login due to disabled account.
func (l *Logger) LoginFailedUserDisabled(ctx context.Context, r *http.Request, userID primitive.ObjectID, hierarchyID, loginID string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedUserDisabled,
		UserID:        &userID,
		HierarchyID:   hierarchyID,
		IP:            getClientIP(r),
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: "user disabled",
		Details: map[string]string{
			"login_id": loginID,
		},
	})
}

// LoginFailedRateLimit logs a failed login due to rate limiting.
func (l *Logger) LoginFailedRateLimit(ctx context.Context, r *http.Request, userID primitive.ObjectID, hierarchyID, loginID, limitType string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedRateLimit,
		UserID:        &userID,
		HierarchyID:   hierarchyID,
		IP:            getClientIP(r),
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: "rate limit exceeded",
		Details: map[string]string{
			"login_id":   loginID,
			"limit_type": limitType,
		},
	})
}

// Logout logs a user logout.
// Accepts string IDs from SessionUser and converts the user ID to an ObjectID.
func (l *Logger) Logout(ctx context.Context, r *http.Request, userIDStr, hierarchyID string) {
	var userID *primitive.ObjectID
	if oid, err := primitive.ObjectIDFromHex(userIDStr); err == nil {
		userID = &oid
	}

	l.Log(ctx, audit.Event{
		Category:    audit.CategoryAuth,
		EventType:   audit.EventLogout,
		UserID:      userID,
		HierarchyID: hierarchyID,
		IP:          getClientIP(r),
		UserAgent:   r.UserAgent(),
		Success:     true,
	})
}

// PasswordChanged logs a password change.
func (l *Logger) PasswordChanged(ctx context.Context, r *http.Request, userID primitive.ObjectID, hierarchyID string, wasTemporary bool) {
	l.Log(ctx, audit.Event{
		Category:    audit.CategoryAuth,
		EventType:   audit.EventPasswordChanged,
		UserID:      &userID,
		HierarchyID: hierarchyID,
		IP:          getClientIP(r),
		UserAgent:   r.UserAgent(),
		Success:     true,
		Details: map[string]string{
			"was_temporary": boolToString(wasTemporary),
		},
	})
}

// MFACodeSent logs when an MFA code is delivered over a channel.
func (l *Logger) MFACodeSent(ctx context.Context, r *http.Request, userID primitive.ObjectID, channel, phone string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventMFACodeSent,
		UserID:    &userID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"channel": channel,
			"phone":   phone,
		},
	})
}

// MFACodeResent logs when an MFA code is resent.
func (l *Logger) MFACodeResent(ctx context.Context, r *http.Request, userID primitive.ObjectID, channel, phone string, resendCount int) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventMFACodeResent,
		UserID:    &userID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"channel":      channel,
			"phone":        phone,
			"resend_count": intToString(resendCount),
		},
	})
}

// MFACodeFailed logs a failed MFA code attempt.
func (l *Logger) MFACodeFailed(ctx context.Context, r *http.Request, userID primitive.ObjectID, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventMFACodeFailed,
		UserID:        &userID,
		IP:            getClientIP(r),
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: reason,
	})
}

// MFAVerified logs a successful MFA code verification.
func (l *Logger) MFAVerified(ctx context.Context, r *http.Request, userID primitive.ObjectID, channel string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventMFAVerified,
		UserID:    &userID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"channel": channel,
		},
	})
}

// --- Admin Events: Portal Accounts ---

// AccountCreated logs when an admin creates a portal account.
func (l *Logger) AccountCreated(ctx context.Context, r *http.Request, actorID, targetUserID primitive.ObjectID, actorRole, role string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventAccountCreated,
		UserID:    &targetUserID,
		ActorID:   &actorID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"actor_role": actorRole,
			"role":       role,
		},
	})
}

// AccountUpdated logs when an admin updates a portal account.
func (l *Logger) AccountUpdated(ctx context.Context, r *http.Request, actorID, targetUserID primitive.ObjectID, actorRole, fieldsChanged string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventAccountUpdated,
		UserID:    &targetUserID,
		ActorID:   &actorID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"actor_role":     actorRole,
			"fields_changed": fieldsChanged,
		},
	})
}

// AccountDisabled logs when an admin disables a portal account.
func (l *Logger) AccountDisabled(ctx context.Context, r *http.Request, actorID, targetUserID primitive.ObjectID, actorRole string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventAccountDisabled,
		UserID:    &targetUserID,
		ActorID:   &actorID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"actor_role": actorRole,
		},
	})
}

// AccountEnabled logs when an admin enables a portal account.
func (l *Logger) AccountEnabled(ctx context.Context, r *http.Request, actorID, targetUserID primitive.ObjectID, actorRole string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventAccountEnabled,
		UserID:    &targetUserID,
		ActorID:   &actorID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"actor_role": actorRole,
		},
	})
}

// AccountDeleted logs when an admin deletes a portal account.
func (l *Logger) AccountDeleted(ctx context.Context, r *http.Request, actorID, targetUserID primitive.ObjectID, actorRole, role string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventAccountDeleted,
		UserID:    &targetUserID,
		ActorID:   &actorID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"actor_role": actorRole,
			"role":       role,
		},
	})
}

// --- Admin Events: Hierarchy ---

// HierarchyUserCreated logs when a node is created in the sales hierarchy.
func (l *Logger) HierarchyUserCreated(ctx context.Context, r *http.Request, actorID primitive.ObjectID, actorRole, hierarchyID, role, parentID string) {
	l.Log(ctx, audit.Event{
		Category:    audit.CategoryAdmin,
		EventType:   audit.EventHierarchyUserCreated,
		ActorID:     &actorID,
		HierarchyID: hierarchyID,
		IP:          getClientIP(r),
		UserAgent:   r.UserAgent(),
		Success:     true,
		Details: map[string]string{
			"actor_role": actorRole,
			"role":       role,
			"parent_id":  parentID,
		},
	})
}

// HierarchyUserMoved logs when a node is reassigned to a new parent.
func (l *Logger) HierarchyUserMoved(ctx context.Context, r *http.Request, actorID primitive.ObjectID, actorRole, hierarchyID, oldParentID, newParentID string) {
	l.Log(ctx, audit.Event{
		Category:    audit.CategoryAdmin,
		EventType:   audit.EventHierarchyUserMoved,
		ActorID:     &actorID,
		HierarchyID: hierarchyID,
		IP:          getClientIP(r),
		UserAgent:   r.UserAgent(),
		Success:     true,
		Details: map[string]string{
			"actor_role":    actorRole,
			"old_parent_id": oldParentID,
			"new_parent_id": newParentID,
		},
	})
}

// HierarchyUserUpdated logs when a hierarchy node's details change.
func (l *Logger) HierarchyUserUpdated(ctx context.Context, r *http.Request, actorID primitive.ObjectID, actorRole, hierarchyID, fieldsChanged string) {
	l.Log(ctx, audit.Event{
		Category:    audit.CategoryAdmin,
		EventType:   audit.EventHierarchyUserUpdated,
		ActorID:     &actorID,
		HierarchyID: hierarchyID,
		IP:          getClientIP(r),
		UserAgent:   r.UserAgent(),
		Success:     true,
		Details: map[string]string{
			"actor_role":     actorRole,
			"fields_changed": fieldsChanged,
		},
	})
}

// HierarchyUserDeleted logs when a leaf node is removed from the hierarchy.
func (l *Logger) HierarchyUserDeleted(ctx context.Context, r *http.Request, actorID primitive.ObjectID, actorRole, hierarchyID, role string) {
	l.Log(ctx, audit.Event{
		Category:    audit.CategoryAdmin,
		EventType:   audit.EventHierarchyUserDeleted,
		ActorID:     &actorID,
		HierarchyID: hierarchyID,
		IP:          getClientIP(r),
		UserAgent:   r.UserAgent(),
		Success:     true,
		Details: map[string]string{
			"actor_role": actorRole,
			"role":       role,
		},
	})
}

// --- Admin Events: Territories ---

// TerritoryCreated logs when a territory is created.
func (l *Logger) TerritoryCreated(ctx context.Context, r *http.Request, actorID primitive.ObjectID, territoryID string, actorRole, territoryName string) {
	l.Log(ctx, audit.Event{
		Category:    audit.CategoryAdmin,
		EventType:   audit.EventTerritoryCreated,
		ActorID:     &actorID,
		TerritoryID: territoryID,
		IP:          getClientIP(r),
		UserAgent:   r.UserAgent(),
		Success:     true,
		Details: map[string]string{
			"actor_role":     actorRole,
			"territory_name": territoryName,
		},
	})
}

// TerritoryUpdated logs when a territory is updated.
func (l *Logger) TerritoryUpdated(ctx context.Context, r *http.Request, actorID primitive.ObjectID, territoryID string, actorRole, fieldsChanged string) {
	l.Log(ctx, audit.Event{
		Category:    audit.CategoryAdmin,
		EventType:   audit.EventTerritoryUpdated,
		ActorID:     &actorID,
		TerritoryID: territoryID,
		IP:          getClientIP(r),
		UserAgent:   r.UserAgent(),
		Success:     true,
		Details: map[string]string{
			"actor_role":     actorRole,
			"fields_changed": fieldsChanged,
		},
	})
}

// TerritoryDeleted logs when a territory is deleted.
func (l *Logger) TerritoryDeleted(ctx context.Context, r *http.Request, actorID primitive.ObjectID, territoryID string, actorRole, territoryName string) {
	l.Log(ctx, audit.Event{
		Category:    audit.CategoryAdmin,
		EventType:   audit.EventTerritoryDeleted,
		ActorID:     &actorID,
		TerritoryID: territoryID,
		IP:          getClientIP(r),
		UserAgent:   r.UserAgent(),
		Success:     true,
		Details: map[string]string{
			"actor_role":     actorRole,
			"territory_name": territoryName,
		},
	})
}

// --- Admin Events: Patients ---

// PatientCreated logs when a patient record is created.
// Patient identifiers are limited to the record ID; no PHI goes into the audit trail.
func (l *Logger) PatientCreated(ctx context.Context, r *http.Request, actorID, patientID primitive.ObjectID, actorRole string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventPatientCreated,
		ActorID:   &actorID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"actor_role": actorRole,
			"patient_id": patientID.Hex(),
		},
	})
}

// PatientUpdated logs when a patient record is updated.
func (l *Logger) PatientUpdated(ctx context.Context, r *http.Request, actorID, patientID primitive.ObjectID, actorRole, fieldsChanged string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventPatientUpdated,
		ActorID:   &actorID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"actor_role":     actorRole,
			"patient_id":     patientID.Hex(),
			"fields_changed": fieldsChanged,
		},
	})
}

// PatientDeleted logs when a patient record is deleted.
func (l *Logger) PatientDeleted(ctx context.Context, r *http.Request, actorID, patientID primitive.ObjectID, actorRole string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventPatientDeleted,
		ActorID:   &actorID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"actor_role": actorRole,
			"patient_id": patientID.Hex(),
		},
	})
}

// PatientImported logs a bulk patient CSV import.
func (l *Logger) PatientImported(ctx context.Context, r *http.Request, actorID primitive.ObjectID, actorRole string, imported, skipped int) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventPatientImported,
		ActorID:   &actorID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"actor_role": actorRole,
			"imported":   intToString(imported),
			"skipped":    intToString(skipped),
		},
	})
}

// --- Admin Events: Orders ---

// OrderCreated logs when an order is placed through the portal.
func (l *Logger) OrderCreated(ctx context.Context, r *http.Request, actorID, orderID primitive.ObjectID, actorRole, orderNumber string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventOrderCreated,
		ActorID:   &actorID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"actor_role":   actorRole,
			"order_id":     orderID.Hex(),
			"order_number": orderNumber,
		},
	})
}

// OrderStatusChanged logs an order status transition.
func (l *Logger) OrderStatusChanged(ctx context.Context, r *http.Request, actorID, orderID primitive.ObjectID, actorRole, orderNumber, fromStatus, toStatus string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventOrderStatusChange,
		ActorID:   &actorID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"actor_role":   actorRole,
			"order_id":     orderID.Hex(),
			"order_number": orderNumber,
			"from_status":  fromStatus,
			"to_status":    toStatus,
		},
	})
}

// --- Admin Events: Settings ---

// SettingsUpdated logs when portal settings are changed.
func (l *Logger) SettingsUpdated(ctx context.Context, r *http.Request, actorID primitive.ObjectID, actorRole, fieldsChanged string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventSettingsUpdated,
		ActorID:   &actorID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"actor_role":     actorRole,
			"fields_changed": fieldsChanged,
		},
	})
}

// --- Security Events ---

// AccessDenied logs when the access guard rejects a request.
func (l *Logger) AccessDenied(ctx context.Context, r *http.Request, userIDStr, hierarchyID, path, reason string) {
	var userID *primitive.ObjectID
	if oid, err := primitive.ObjectIDFromHex(userIDStr); err == nil {
		userID = &oid
	}

	l.Log(ctx, audit.Event{
		Category:      audit.CategorySecurity,
		EventType:     audit.EventAccessDenied,
		UserID:        userID,
		HierarchyID:   hierarchyID,
		IP:            getClientIP(r),
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: reason,
		Details: map[string]string{
			"path": path,
		},
	})
}

// PHIViewed logs when an account views protected health information.
func (l *Logger) PHIViewed(ctx context.Context, r *http.Request, userID, patientID primitive.ObjectID, role, view string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategorySecurity,
		EventType: audit.EventPHIViewed,
		UserID:    &userID,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"role":       role,
			"patient_id": patientID.Hex(),
			"view":       view,
		},
	})
}

// --- Helper functions ---

func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func intToString(i int) string {
	return strconv.Itoa(i)
}
