// internal/app/system/viewdata/viewdata.go
package viewdata

import (
	"context"
	"net/http"

	settingsstore "github.com/dalemusser/ivrhub/internal/app/store/settings"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/storage"
	"github.com/gorilla/csrf"
	"go.mongodb.org/mongo-driver/mongo"
)

// Viewer is the common caller-context block embedded in page payloads.
// Embed it in your feature-specific response types.
//
// Usage:
//
//	type dashboardPayload struct {
//	    viewdata.Viewer
//	    // page-specific fields...
//	}
//
//	payload := dashboardPayload{
//	    Viewer: viewdata.NewViewer(r),
//	    // page-specific fields...
//	}
type Viewer struct {
	// User context (from auth middleware)
	IsLoggedIn  bool     `json:"is_logged_in"`
	UserID      string   `json:"user_id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Role        string   `json:"role,omitempty"`
	HierarchyID string   `json:"hierarchy_id,omitempty"`
	Territories []string `json:"territories,omitempty"`
	PHIAccess   bool     `json:"phi_access"`

	// CSRF protection
	CSRFToken string `json:"csrf_token,omitempty"` // Token for form submission
}

// Portal is the site-wide settings block for payloads that surface branding
// or IVR-line configuration (dashboards, the settings page, login).
type Portal struct {
	Greeting        string `json:"greeting,omitempty"`
	SupportPhone    string `json:"support_phone,omitempty"`
	OrderCutoffHour int    `json:"order_cutoff_hour"`
	TimeZone        string `json:"time_zone,omitempty"`
	LogoURL         string `json:"logo_url,omitempty"`
}

// storageProvider is set by Init and used to generate logo URLs.
var storageProvider storage.Store

// Init sets the storage provider for generating logo URLs.
// Call this once at startup from bootstrap.
func Init(store storage.Store) {
	storageProvider = store
}

// NewViewer builds the caller-context block from the request.
func NewViewer(r *http.Request) Viewer {
	v := Viewer{
		CSRFToken: csrf.Token(r),
	}

	user, ok := auth.CurrentUser(r)
	if !ok {
		return v
	}

	v.IsLoggedIn = true
	v.UserID = user.ID
	v.Name = user.Name
	v.Role = user.Role
	v.HierarchyID = user.HierarchyID
	v.Territories = user.TerritoryIDs
	v.PHIAccess = user.PHIAccess
	return v
}

// NewPortal loads the portal settings block for a page payload.
// Pass db=nil if you only need defaults.
func NewPortal(r *http.Request, db *mongo.Database) Portal {
	p := Portal{
		OrderCutoffHour: models.DefaultOrderCutoffHour,
		TimeZone:        models.DefaultTimeZone,
	}

	if db == nil {
		return p
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	settings, err := settingsstore.New(db).Get(ctx)
	if err != nil {
		return p
	}

	p.Greeting = settings.Greeting
	p.SupportPhone = settings.SupportPhone
	p.OrderCutoffHour = settings.OrderCutoffHour
	p.TimeZone = settings.TimeZone
	if settings.HasLogo() && storageProvider != nil {
		p.LogoURL = storageProvider.URL(settings.LogoPath)
	}
	return p
}

// GetSettings returns the full portal settings, or defaults if not available.
func GetSettings(ctx context.Context, db *mongo.Database) models.IVRSettings {
	fallback := models.IVRSettings{
		OrderCutoffHour:       models.DefaultOrderCutoffHour,
		SessionInactivityMins: models.DefaultSessionInactivityMins,
		TimeZone:              models.DefaultTimeZone,
	}
	if db == nil {
		return fallback
	}

	settings, err := settingsstore.New(db).Get(ctx)
	if err != nil {
		return fallback
	}
	return settings
}
