// internal/app/features/settings/handler.go
package settings

import (
	"context"
	"net/http"

	settingsstore "github.com/dalemusser/ivrhub/internal/app/store/settings"
	"github.com/dalemusser/ivrhub/internal/app/system/auditlog"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/viewdata"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/storage"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler owns the admin settings panel. Settings are one portal-wide
// document: IVR-line behavior (greeting, support phone, order cutoff),
// security knobs (admin MFA, session inactivity), and the uploaded logo.
type Handler struct {
	Log      *zap.Logger
	Settings *settingsstore.Store
	Storage  storage.Store
	Audit    *auditlog.Logger
}

func NewHandler(db *mongo.Database, store storage.Store, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Log:      logger,
		Settings: settingsstore.New(db),
		Storage:  store,
		Audit:    audit,
	}
}

type settingsView struct {
	Viewer   viewdata.Viewer    `json:"viewer"`
	Page     string             `json:"page"`
	Settings models.IVRSettings `json:"settings"`
	HasLogo  bool               `json:"has_logo"`
	LogoURL  string             `json:"logo_url,omitempty"`
}

// ServeSettings handles GET /settings.
func (h *Handler) ServeSettings(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAdmin(w, r, "Settings are admin only.", "/dashboard"); !res.OK {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	current, err := h.Settings.Get(ctx)
	if err != nil {
		h.Log.Error("load settings", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.writeView(w, r, current)
}

func (h *Handler) writeView(w http.ResponseWriter, r *http.Request, s models.IVRSettings) {
	view := settingsView{
		Viewer:   viewdata.NewViewer(r),
		Page:     "settings",
		Settings: s,
		HasLogo:  s.HasLogo(),
	}
	if s.HasLogo() && h.Storage != nil {
		view.LogoURL = h.Storage.URL(s.LogoPath)
	}
	webwrite.JSON(w, view)
}
