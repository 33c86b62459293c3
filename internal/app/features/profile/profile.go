// internal/app/features/profile/profile.go
package profile

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/ivrhub/internal/app/system/authutil"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/viewdata"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// recentLoginLimit caps the sign-in history shown on the profile page.
const recentLoginLimit = 10

type loginView struct {
	At       time.Time `json:"at"`
	IP       string    `json:"ip"`
	Provider string    `json:"provider"`
}

type profileView struct {
	Viewer        viewdata.Viewer   `json:"viewer"`
	Page          string            `json:"page"`
	Account       models.PortalUser `json:"account"`
	PasswordRules string            `json:"password_rules,omitempty"`
	RecentLogins  []loginView       `json:"recent_logins"`
}

// ServeProfile handles GET /profile: the caller's own account plus their
// recent sign-in history.
func (h *Handler) ServeProfile(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAuth(w, r, "/login")
	if !res.OK {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	user, err := h.Users.GetByID(ctx, res.UserID)
	if err == mongo.ErrNoDocuments {
		webwrite.Error(w, http.StatusNotFound, "not_found", "Account not found.")
		return
	}
	if err != nil {
		h.Log.Error("load own account", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	records, err := h.Logins.RecentForUser(ctx, res.UserID, recentLoginLimit)
	if err != nil {
		h.Log.Error("load recent logins", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	logins := make([]loginView, 0, len(records))
	for _, rec := range records {
		logins = append(logins, loginView{At: rec.CreatedAt, IP: rec.IP, Provider: rec.Provider})
	}

	view := profileView{
		Viewer:       viewdata.NewViewer(r),
		Page:         "profile",
		Account:      *user,
		RecentLogins: logins,
	}
	if user.AuthMethod == models.AuthMethodPassword {
		view.PasswordRules = authutil.PasswordRules()
	}
	webwrite.JSON(w, view)
}

// HandleChangePassword handles POST /profile/password. Only password-method
// accounts have a local credential to change.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAuth(w, r, "/login")
	if !res.OK {
		return
	}

	if err := r.ParseForm(); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	user, err := h.Users.GetByID(ctx, res.UserID)
	if err == mongo.ErrNoDocuments {
		webwrite.Error(w, http.StatusNotFound, "not_found", "Account not found.")
		return
	}
	if err != nil {
		h.Log.Error("load own account", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	if user.AuthMethod != models.AuthMethodPassword {
		webwrite.Error(w, http.StatusConflict, "not_password_auth", "This account signs in without a password.")
		return
	}

	current := r.FormValue("current_password")
	next := r.FormValue("new_password")
	confirm := r.FormValue("confirm_password")

	if user.PasswordHash == "" || !authutil.CheckPassword(current, user.PasswordHash) {
		webwrite.Error(w, http.StatusForbidden, "wrong_password", "Current password is incorrect.")
		return
	}
	if err := authutil.ValidatePassword(next); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "weak_password", err.Error())
		return
	}
	if next != confirm {
		webwrite.Error(w, http.StatusBadRequest, "password_mismatch", "New passwords do not match.")
		return
	}
	if authutil.CheckPassword(next, user.PasswordHash) {
		webwrite.Error(w, http.StatusBadRequest, "password_reuse", "New password cannot be the same as your current password.")
		return
	}

	hash, err := authutil.HashPassword(next)
	if err != nil {
		h.Log.Error("hash password", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "Failed to update the password.")
		return
	}
	if err := h.Users.SetPasswordHash(ctx, res.UserID, hash); err != nil {
		h.Log.Error("store password hash", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "Failed to update the password.")
		return
	}

	h.Audit.PasswordChanged(r.Context(), r, res.UserID, user.HierarchyID, false)
	webwrite.JSON(w, map[string]any{"changed": true})
}
