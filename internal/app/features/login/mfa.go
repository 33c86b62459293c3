// internal/app/features/login/mfa.go
package login

import (
	"context"
	"net/http"
	"strings"

	"github.com/dalemusser/ivrhub/internal/app/store/mfacodes"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/app/system/metrics"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/viewdata"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type mfaPage struct {
	Viewer        viewdata.Viewer `json:"viewer"`
	Page          string          `json:"page"`
	Phone         string          `json:"phone"` // masked
	Channel       string          `json:"channel"`
	ReturnURL     string          `json:"return_url,omitempty"`
	CodeExpiryMin int             `json:"code_expiry_minutes"`
}

// startMFAChallenge begins the MFA step after the password is verified: the
// session is signed in without the MFA claim, a code is created, and the
// user is redirected to /login/mfa. Code delivery is an automated IVR
// callback handled by the telephony platform; this layer records the send
// and never logs or returns the code itself.
func (h *Handler) startMFAChallenge(w http.ResponseWriter, r *http.Request, u *models.PortalUser, returnURL string) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	phone := u.MFAPhone
	if phone == "" {
		// An MFA-required account without a delivery number can't finish
		// login. Surface it rather than silently skipping the step.
		h.Log.Error("login: mfa required but account has no phone",
			zap.String("user_id", u.ID.Hex()))
		webwrite.Error(w, http.StatusConflict, "mfa_unavailable",
			"Your account requires verification but has no phone number on file. Please contact an administrator.")
		return
	}

	result, err := h.MFA.Create(ctx, u.ID, phone, mfacodes.ChannelIVRCall, false)
	if err != nil {
		h.Log.Error("login: create mfa challenge", zap.Error(err), zap.String("user_id", u.ID.Hex()))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	_ = result // the code stays server-side; delivery is out of band

	if err := h.SessionMgr.SignIn(w, r, sessionUserFor(u, false)); err != nil {
		h.Log.Error("login: save pre-mfa session", zap.Error(err), zap.String("user_id", u.ID.Hex()))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "Unable to create session. Please try again.")
		return
	}

	h.Audit.MFACodeSent(r.Context(), r, u.ID, mfacodes.ChannelIVRCall, phone)

	dest := "/login/mfa"
	if returnURL != "" {
		dest += "?return=" + returnURL
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /login/mfa                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeMFA(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if user.MFAVerified {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	phone := ""
	if oid, err := primitive.ObjectIDFromHex(user.ID); err == nil {
		ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
		defer cancel()
		if u, err := h.Users.GetByID(ctx, oid); err == nil {
			phone = maskPhone(u.MFAPhone)
		}
	}

	webwrite.JSON(w, mfaPage{
		Viewer:        viewdata.NewViewer(r),
		Page:          "login_mfa",
		Phone:         phone,
		Channel:       mfacodes.ChannelIVRCall,
		ReturnURL:     strings.TrimSpace(r.URL.Query().Get("return")),
		CodeExpiryMin: int(h.MFA.Expiry().Minutes()),
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /login/mfa                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleMFAPost(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
		return
	}
	code := strings.TrimSpace(r.FormValue("code"))
	ret := strings.TrimSpace(r.FormValue("return"))

	oid, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_session", "Session is invalid. Please sign in again.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	challenge, err := h.MFA.VerifyCode(ctx, oid, code)
	switch err {
	case nil:
		// verified, continue below
	case mfacodes.ErrInvalidCode:
		h.Audit.MFACodeFailed(r.Context(), r, oid, "invalid_code")
		metrics.LoginAttempt("mfa", "failure")
		webwrite.Error(w, http.StatusUnauthorized, "invalid_code", "That code is incorrect. Please try again.")
		return
	case mfacodes.ErrTooManyAttempts:
		h.Audit.MFACodeFailed(r.Context(), r, oid, "too_many_attempts")
		metrics.LoginAttempt("mfa", "failure")
		webwrite.Error(w, http.StatusTooManyRequests, "too_many_attempts", "Too many attempts. Request a new code.")
		return
	case mfacodes.ErrNotFound:
		webwrite.Error(w, http.StatusGone, "code_expired", "Your code has expired. Request a new one.")
		return
	default:
		h.Log.Error("login: verify mfa code", zap.Error(err), zap.String("user_id", user.ID))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	if err := h.MFA.DeleteByUser(ctx, oid); err != nil {
		h.Log.Warn("login: clear mfa challenge", zap.Error(err), zap.String("user_id", user.ID))
	}

	u, err := h.Users.GetByID(ctx, oid)
	if err != nil {
		h.Log.Error("login: reload account after mfa", zap.Error(err), zap.String("user_id", user.ID))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.Audit.MFAVerified(r.Context(), r, oid, challenge.Channel)
	h.completeSignIn(w, r, u, models.AuthMethodPassword, true, ret)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /login/mfa/resend                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleMFAResend(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	oid, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_session", "Session is invalid. Please sign in again.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.GetByID(ctx, oid)
	if err != nil {
		h.Log.Error("login: load account for resend", zap.Error(err), zap.String("user_id", user.ID))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	result, err := h.MFA.Create(ctx, oid, u.MFAPhone, mfacodes.ChannelIVRCall, true)
	switch err {
	case nil:
		// resent, continue below
	case mfacodes.ErrTooManyResends:
		webwrite.Error(w, http.StatusTooManyRequests, "too_many_resends", "Resend limit reached. Please wait for your current code or try again later.")
		return
	default:
		h.Log.Error("login: resend mfa code", zap.Error(err), zap.String("user_id", user.ID))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.Audit.MFACodeResent(r.Context(), r, oid, mfacodes.ChannelIVRCall, u.MFAPhone, result.ResendCount)

	webwrite.JSON(w, map[string]any{
		"resent":       true,
		"resend_count": result.ResendCount,
		"phone":        maskPhone(u.MFAPhone),
	})
}

// maskPhone keeps the last four digits for display, e.g. "***-**-0199".
func maskPhone(phone string) string {
	digits := make([]rune, 0, len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return "****"
	}
	return "***-***-" + string(digits[len(digits)-4:])
}
