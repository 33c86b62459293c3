// internal/app/features/login/handler.go
package login

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a portal account
//   - LoginID / loginID / login_id: The email address users type to sign in

import (
	"context"
	"net/http"
	"strings"
	"time"

	logins "github.com/dalemusser/ivrhub/internal/app/store/logins"
	"github.com/dalemusser/ivrhub/internal/app/store/mfacodes"
	portalusers "github.com/dalemusser/ivrhub/internal/app/store/portalusers"
	"github.com/dalemusser/ivrhub/internal/app/store/sessions"
	settingsstore "github.com/dalemusser/ivrhub/internal/app/store/settings"
	"github.com/dalemusser/ivrhub/internal/app/system/auditlog"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/app/system/authutil"
	"github.com/dalemusser/ivrhub/internal/app/system/authz"
	"github.com/dalemusser/ivrhub/internal/app/system/metrics"
	"github.com/dalemusser/ivrhub/internal/app/system/navigation"
	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/app/system/ratelimit"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/viewdata"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
	Users      *portalusers.Store
	Settings   *settingsstore.Store
	MFA        *mfacodes.Store
	Logins     *logins.Store
	Sessions   *sessions.Store
	Audit      *auditlog.Logger
	Limiter    *ratelimit.LoginLimiter

	GoogleEnabled bool
}

func NewHandler(
	db *mongo.Database,
	sessionMgr *auth.SessionManager,
	audit *auditlog.Logger,
	mfaExpiry time.Duration,
	googleEnabled bool,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Log:           logger,
		SessionMgr:    sessionMgr,
		Users:         portalusers.New(db),
		Settings:      settingsstore.New(db),
		MFA:           mfacodes.New(db, mfaExpiry),
		Logins:        logins.New(db),
		Sessions:      sessions.New(db),
		Audit:         audit,
		Limiter:       ratelimit.NewLoginLimiter(),
		GoogleEnabled: googleEnabled,
	}
}

type loginPage struct {
	Viewer        viewdata.Viewer `json:"viewer"`
	Page          string          `json:"page"`
	ReturnURL     string          `json:"return_url,omitempty"`
	GoogleEnabled bool            `json:"google_enabled"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /login                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	webwrite.JSON(w, loginPage{
		Viewer: viewdata.NewViewer(r),
		Page:   "login",
		// Only a safe same-site return URL is echoed back to the form.
		ReturnURL:     navigation.SafeBackURL(r, navigation.BackURLOptions{}),
		GoogleEnabled: h.GoogleEnabled,
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /login                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
		return
	}

	email := normalize.Email(r.FormValue("email"))
	password := r.FormValue("password")
	ret := strings.TrimSpace(r.FormValue("return"))

	if email == "" || password == "" {
		webwrite.Error(w, http.StatusBadRequest, "missing_credentials", "Email and password are required.")
		return
	}

	if ok, limitType := h.Limiter.Check(r, email); !ok {
		h.Audit.LoginFailedRateLimit(r.Context(), r, primitive.NilObjectID, "", email, limitType)
		metrics.LoginAttempt(models.AuthMethodPassword, "rate_limited")
		webwrite.Error(w, http.StatusTooManyRequests, "rate_limited", "Too many login attempts. Please wait and try again.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, email)
	switch {
	case err == mongo.ErrNoDocuments:
		h.Audit.LoginFailedUserNotFound(ctx, r, email)
		metrics.LoginAttempt(models.AuthMethodPassword, "failure")
		// Same message as a wrong password so the response doesn't leak
		// which emails have accounts.
		webwrite.Error(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password.")
		return
	case err != nil:
		h.Log.Error("login: look up account", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	if normalize.Status(u.Status) == "disabled" {
		h.Audit.LoginFailedUserDisabled(ctx, r, u.ID, u.HierarchyID, email)
		metrics.LoginAttempt(models.AuthMethodPassword, "failure")
		webwrite.Error(w, http.StatusForbidden, "account_disabled", "Your account is disabled. Please contact an administrator.")
		return
	}

	if normalize.AuthMethod(u.AuthMethod) == models.AuthMethodGoogle {
		// The account signs in with Google; the password form can't verify it.
		dest := "/auth/google"
		if ret != "" {
			dest += "?return=" + ret
		}
		http.Redirect(w, r, dest, http.StatusSeeOther)
		return
	}

	if u.PasswordHash == "" || !authutil.CheckPassword(password, u.PasswordHash) {
		h.Audit.LoginFailedWrongPassword(ctx, r, u.ID, u.HierarchyID, email)
		metrics.LoginAttempt(models.AuthMethodPassword, "failure")
		webwrite.Error(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password.")
		return
	}

	h.Limiter.ResetEmail(email)

	if h.mfaRequired(ctx, u) {
		h.startMFAChallenge(w, r, u, ret)
		return
	}

	h.completeSignIn(w, r, u, models.AuthMethodPassword, false, ret)
}

// mfaRequired reports whether the account must complete the MFA step before
// the session is fully signed in. Admins can be forced into MFA portal-wide
// via settings even when their own account doesn't enable it.
func (h *Handler) mfaRequired(ctx context.Context, u *models.PortalUser) bool {
	if u.MFAEnabled {
		return true
	}
	if normalize.Role(u.Role) != models.PortalRoleAdmin {
		return false
	}
	settings, err := h.Settings.Get(ctx)
	if err != nil {
		h.Log.Warn("login: load settings for admin MFA check", zap.Error(err))
		// Fail closed for admins when settings can't be read.
		return true
	}
	return settings.RequireAdminMFA
}

// completeSignIn writes the authenticated session, creates the activity
// session and login record, and redirects to the preserved return URL.
// mfaVerified is true only when this session completed the MFA step.
func (h *Handler) completeSignIn(w http.ResponseWriter, r *http.Request, u *models.PortalUser, method string, mfaVerified bool, returnURL string) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	// Activity session first: its ID rides in the same cookie save as the
	// identity, so one Set-Cookie covers both.
	sess, err := h.SessionMgr.GetSession(r)
	if err != nil {
		h.Log.Warn("login: session cookie invalid, using fresh session", zap.Error(err))
	}
	if h.Sessions != nil && sess != nil {
		ip := ratelimit.ClientIP(r)
		activity, err := h.Sessions.Create(ctx, u.ID, normalize.Role(u.Role), u.HierarchyID, ip, r.UserAgent(), sessions.CreatedByLogin)
		if err != nil {
			h.Log.Warn("login: create activity session", zap.Error(err), zap.String("user_id", u.ID.Hex()))
		} else {
			sess.Values["activity_session_id"] = activity.ID.Hex()
		}
	}

	if err := h.SessionMgr.SignIn(w, r, sessionUserFor(u, mfaVerified)); err != nil {
		h.Log.Error("login: save session", zap.Error(err), zap.String("user_id", u.ID.Hex()))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "Unable to create session. Please try again.")
		return
	}

	if err := h.Logins.CreateFrom(ctx, r, u.ID, method); err != nil {
		h.Log.Warn("login: record login", zap.Error(err), zap.String("user_id", u.ID.Hex()))
	}

	h.Audit.LoginSuccess(r.Context(), r, u.ID, u.HierarchyID, method, u.Email)
	metrics.LoginAttempt(method, "success")

	http.Redirect(w, r, urlutil.SafeReturn(returnURL, "", "/dashboard"), http.StatusSeeOther)
}

// sessionUserFor maps an account record onto the session identity.
func sessionUserFor(u *models.PortalUser, mfaVerified bool) *auth.SessionUser {
	role := normalize.Role(u.Role)
	return &auth.SessionUser{
		ID:           u.ID.Hex(),
		Name:         u.FullName,
		LoginID:      u.Email,
		Role:         role,
		HierarchyID:  u.HierarchyID,
		TerritoryIDs: u.TerritoryIDs,
		Permissions:  authz.PermissionsForRole(role),
		PHIAccess:    u.PHIAccess,
		MFAVerified:  mfaVerified,
	}
}
