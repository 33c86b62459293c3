// internal/app/features/authgoogle/handler.go
package authgoogle

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	logins "github.com/dalemusser/ivrhub/internal/app/store/logins"
	"github.com/dalemusser/ivrhub/internal/app/store/mfacodes"
	"github.com/dalemusser/ivrhub/internal/app/store/oauthstate"
	portalusers "github.com/dalemusser/ivrhub/internal/app/store/portalusers"
	"github.com/dalemusser/ivrhub/internal/app/store/sessions"
	"github.com/dalemusser/ivrhub/internal/app/system/auditlog"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/app/system/authz"
	"github.com/dalemusser/ivrhub/internal/app/system/metrics"
	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/app/system/ratelimit"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// stateTTL bounds how long a consent round trip may take.
const stateTTL = 10 * time.Minute

// Handler runs the Google OAuth sign-in flow for accounts whose auth method
// is "google". Accounts are matched by email; there is no self-signup.
type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
	Users      *portalusers.Store
	Logins     *logins.Store
	Sessions   *sessions.Store
	States     *oauthstate.Store
	MFA        *mfacodes.Store
	Audit      *auditlog.Logger

	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func NewHandler(
	db *mongo.Database,
	sessionMgr *auth.SessionManager,
	audit *auditlog.Logger,
	clientID, clientSecret, baseURL string,
	mfaExpiry time.Duration,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Log:          logger,
		SessionMgr:   sessionMgr,
		Users:        portalusers.New(db),
		Logins:       logins.New(db),
		Sessions:     sessions.New(db),
		States:       oauthstate.New(db),
		MFA:          mfacodes.New(db, mfaExpiry),
		Audit:        audit,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  baseURL + "/auth/google/callback",
	}
}

func (h *Handler) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.ClientID,
		ClientSecret: h.ClientSecret,
		RedirectURL:  h.RedirectURL,
		Scopes: []string{
			"openid",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

// IsConfigured returns true if Google OAuth credentials are set.
func (h *Handler) IsConfigured() bool {
	return h.ClientID != "" && h.ClientSecret != ""
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/google                                                             |
| Starts the flow: save a one-time state, redirect to the consent screen.      |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if !h.IsConfigured() {
		h.Log.Warn("google oauth not configured")
		http.Redirect(w, r, "/login?error=google_not_configured", http.StatusSeeOther)
		return
	}

	state, err := generateState()
	if err != nil {
		h.Log.Error("generate oauth state", zap.Error(err))
		http.Redirect(w, r, "/login?error=internal", http.StatusSeeOther)
		return
	}

	returnURL := r.URL.Query().Get("return")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.States.Save(ctx, state, returnURL, time.Now().UTC().Add(stateTTL)); err != nil {
		h.Log.Error("save oauth state", zap.Error(err))
		http.Redirect(w, r, "/login?error=internal", http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, h.oauth2Config().AuthCodeURL(state, oauth2.AccessTypeOffline), http.StatusTemporaryRedirect)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/google/callback                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.Log.Warn("google oauth error",
			zap.String("error", errParam),
			zap.String("description", r.URL.Query().Get("error_description")))
		http.Redirect(w, r, "/login?error=google_denied", http.StatusSeeOther)
		return
	}

	state := r.URL.Query().Get("state")
	if state == "" {
		http.Redirect(w, r, "/login?error=invalid_state", http.StatusSeeOther)
		return
	}

	shortCtx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	returnURL, valid, err := h.States.Validate(shortCtx, state)
	if err != nil {
		h.Log.Error("validate oauth state", zap.Error(err))
		http.Redirect(w, r, "/login?error=internal", http.StatusSeeOther)
		return
	}
	if !valid {
		h.Log.Warn("invalid or expired oauth state")
		http.Redirect(w, r, "/login?error=invalid_state", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, "/login?error=invalid_code", http.StatusSeeOther)
		return
	}

	token, err := h.oauth2Config().Exchange(ctx, code)
	if err != nil {
		h.Log.Error("exchange oauth code", zap.Error(err))
		http.Redirect(w, r, "/login?error=token_exchange", http.StatusSeeOther)
		return
	}

	googleUser, err := fetchGoogleUserInfo(ctx, token)
	if err != nil {
		h.Log.Error("fetch google user info", zap.Error(err))
		http.Redirect(w, r, "/login?error=user_info", http.StatusSeeOther)
		return
	}
	if !googleUser.EmailVerified {
		h.Log.Warn("google account email not verified", zap.String("email", googleUser.Email))
		http.Redirect(w, r, "/login?error=email_unverified", http.StatusSeeOther)
		return
	}

	u, err := h.Users.GetByEmail(shortCtx, googleUser.Email)
	switch {
	case err == mongo.ErrNoDocuments:
		h.Audit.LoginFailedUserNotFound(ctx, r, googleUser.Email)
		metrics.LoginAttempt(models.AuthMethodGoogle, "failure")
		http.Redirect(w, r, "/login?error=no_account", http.StatusSeeOther)
		return
	case err != nil:
		h.Log.Error("look up account for oauth callback", zap.Error(err))
		http.Redirect(w, r, "/login?error=internal", http.StatusSeeOther)
		return
	}

	if normalize.Status(u.Status) == "disabled" {
		h.Audit.LoginFailedUserDisabled(ctx, r, u.ID, u.HierarchyID, u.Email)
		metrics.LoginAttempt(models.AuthMethodGoogle, "failure")
		http.Redirect(w, r, "/login?error=account_disabled", http.StatusSeeOther)
		return
	}

	if normalize.AuthMethod(u.AuthMethod) != models.AuthMethodGoogle {
		// The account exists but signs in with a password; don't let a
		// Google identity with the same email take it over.
		h.Log.Warn("oauth callback for non-google account", zap.String("email", u.Email))
		http.Redirect(w, r, "/login?error=auth_method", http.StatusSeeOther)
		return
	}

	if u.MFAEnabled && u.MFAPhone != "" {
		h.startMFAStep(w, r, u, returnURL)
		return
	}

	h.createSessionAndRedirect(w, r, u, returnURL)
}

// startMFAStep parks the session pre-MFA and hands off to /login/mfa, which
// verifies codes regardless of which flow created the challenge.
func (h *Handler) startMFAStep(w http.ResponseWriter, r *http.Request, u *models.PortalUser, returnURL string) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if _, err := h.MFA.Create(ctx, u.ID, u.MFAPhone, mfacodes.ChannelIVRCall, false); err != nil {
		h.Log.Error("create mfa challenge for oauth login", zap.Error(err), zap.String("user_id", u.ID.Hex()))
		http.Redirect(w, r, "/login?error=internal", http.StatusSeeOther)
		return
	}

	if err := h.SessionMgr.SignIn(w, r, sessionUserFor(u, false)); err != nil {
		h.Log.Error("save pre-mfa session for oauth login", zap.Error(err))
		http.Redirect(w, r, "/login?error=internal", http.StatusSeeOther)
		return
	}

	h.Audit.MFACodeSent(r.Context(), r, u.ID, mfacodes.ChannelIVRCall, u.MFAPhone)

	dest := "/login/mfa"
	if returnURL != "" {
		dest += "?return=" + returnURL
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

func (h *Handler) createSessionAndRedirect(w http.ResponseWriter, r *http.Request, u *models.PortalUser, returnURL string) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	sess, err := h.SessionMgr.GetSession(r)
	if err != nil {
		h.Log.Warn("session cookie invalid during oauth callback, using fresh session", zap.Error(err))
	}
	if h.Sessions != nil && sess != nil {
		ip := ratelimit.ClientIP(r)
		activity, err := h.Sessions.Create(ctx, u.ID, normalize.Role(u.Role), u.HierarchyID, ip, r.UserAgent(), sessions.CreatedByLogin)
		if err != nil {
			h.Log.Warn("create activity session for oauth login", zap.Error(err))
		} else {
			sess.Values["activity_session_id"] = activity.ID.Hex()
		}
	}

	if err := h.SessionMgr.SignIn(w, r, sessionUserFor(u, false)); err != nil {
		h.Log.Error("save session for oauth login", zap.Error(err))
		http.Redirect(w, r, "/login?error=internal", http.StatusSeeOther)
		return
	}

	if err := h.Logins.CreateFrom(ctx, r, u.ID, models.AuthMethodGoogle); err != nil {
		h.Log.Warn("record oauth login", zap.Error(err))
	}

	h.Audit.LoginSuccess(r.Context(), r, u.ID, u.HierarchyID, models.AuthMethodGoogle, u.Email)
	metrics.LoginAttempt(models.AuthMethodGoogle, "success")

	http.Redirect(w, r, urlutil.SafeReturn(returnURL, "", "/dashboard"), http.StatusSeeOther)
}

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

// googleUserInfo is the subset of Google's userinfo payload the portal uses.
type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"verified_email"`
	Name          string `json:"name"`
}

func fetchGoogleUserInfo(ctx context.Context, token *oauth2.Token) (*googleUserInfo, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	return &info, nil
}

// generateState returns a cryptographically random URL-safe state token.
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
