// internal/app/features/logout/handler.go
package logout

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/ivrhub/internal/app/store/sessions"
	"github.com/dalemusser/ivrhub/internal/app/system/auditlog"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
	Sessions   *sessions.Store
	Audit      *auditlog.Logger
}

func NewHandler(sessionMgr *auth.SessionManager, sessStore *sessions.Store, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Log:        logger,
		SessionMgr: sessionMgr,
		Sessions:   sessStore,
		Audit:      audit,
	}
}

// ServeLogout handles GET /logout.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	// Get current session.
	session, err := h.SessionMgr.GetSession(r)
	if err != nil {
		// Session decode failed. Log and continue - we'll still try to clear the cookie.
		h.Log.Warn("session decode failed during logout", zap.Error(err))
	}

	// Close the activity session before the cookie goes away.
	if session != nil {
		if activityID, ok := session.Values["activity_session_id"].(string); ok && activityID != "" {
			if oid, err := primitive.ObjectIDFromHex(activityID); err == nil {
				ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
				if err := h.Sessions.Close(ctx, oid, "logout"); err != nil {
					h.Log.Warn("failed to close activity session on logout",
						zap.Error(err),
						zap.String("session_id", activityID))
				}
				cancel()
			}
		}
	}

	if user, ok := auth.CurrentUser(r); ok {
		h.Audit.Logout(r.Context(), r, user.ID, user.HierarchyID)
	}

	// Ensure the deletion-cookie matches the original store settings.
	opts := h.SessionMgr.Store().Options
	if opts != nil {
		session.Options.Domain = opts.Domain
		session.Options.Path = opts.Path
		session.Options.Secure = opts.Secure
		session.Options.HttpOnly = opts.HttpOnly
		session.Options.SameSite = opts.SameSite
	}
	session.Options.MaxAge = -1 // delete immediately

	if err := session.Save(r, w); err != nil {
		h.Log.Error("logout: save session", zap.Error(err))
	}

	// HTMX handling: use HX-Redirect to force a client-side navigation to "/".
	if r.Header.Get("HX-Request") != "" {
		w.Header().Set("HX-Redirect", "/")
		// We don't really care about the status code here; HTMX uses HX-Redirect.
		w.WriteHeader(http.StatusOK)
		return
	}

	// Non-HTMX: standard redirect home.
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
