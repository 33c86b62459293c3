// internal/domain/models/ivrsettings.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IVRSettings holds portal-wide configuration editable by admins. A single
// document; Get falls back to defaults when none exists yet.
type IVRSettings struct {
	ID primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`

	// IVR line behavior
	Greeting        string `bson:"greeting,omitempty" json:"greeting,omitempty"` // sanitized HTML shown on dashboards, read on calls
	SupportPhone    string `bson:"support_phone,omitempty" json:"support_phone,omitempty"`
	OrderCutoffHour int    `bson:"order_cutoff_hour" json:"order_cutoff_hour"` // local hour after which orders ship next day
	TimeZone        string `bson:"time_zone,omitempty" json:"time_zone,omitempty"`

	// Security
	RequireAdminMFA         bool `bson:"require_admin_mfa" json:"require_admin_mfa"`
	SessionInactivityMins   int  `bson:"session_inactivity_mins" json:"session_inactivity_mins"`

	// Logo (file upload)
	LogoPath string `bson:"logo_path,omitempty" json:"logo_path,omitempty"` // storage path for uploaded logo
	LogoName string `bson:"logo_name,omitempty" json:"logo_name,omitempty"` // original filename

	// Audit fields
	UpdatedAt     *time.Time          `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
	UpdatedByID   *primitive.ObjectID `bson:"updated_by_id,omitempty" json:"updated_by_id,omitempty"`
	UpdatedByName string              `bson:"updated_by_name,omitempty" json:"updated_by_name,omitempty"`
}

// HasLogo returns true if a logo has been uploaded.
func (s *IVRSettings) HasLogo() bool {
	return s.LogoPath != ""
}

// Defaults used when no settings document exists.
const (
	DefaultOrderCutoffHour       = 15
	DefaultSessionInactivityMins = 30
	DefaultTimeZone              = "America/Chicago"
)
