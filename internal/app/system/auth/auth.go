// internal/app/system/auth/auth.go
package auth

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a portal account
//   - LoginID / loginID / login_id: The email address users type to sign in

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// Session value keys.
const (
	isAuthKey      = "is_authenticated"
	userIDKey      = "user_id"
	userNameKey    = "user_name"
	userLoginIDKey = "user_login_id"
	userRoleKey    = "user_role"
	mfaVerifiedKey = "mfa_verified"
)

// SessionUser is the signed-in account as handlers see it. LoadSessionUser
// places it in the request context; CurrentUser reads it back.
//
// Identity fields are cached in the session cookie and refreshed from the
// database on each request when a UserFetcher is configured. MFAVerified is
// session-scoped: it records whether this session completed the MFA step,
// not whether the account has MFA enabled.
type SessionUser struct {
	ID      string
	Name    string
	LoginID string
	Role    string

	HierarchyID  string
	TerritoryIDs []string
	Permissions  []string
	PHIAccess    bool
	MFAVerified  bool
}

// UserFetcher loads fresh account data for the session's user ID. A nil
// return means the account no longer exists or is disabled, in which case
// the request proceeds anonymously and the user must sign in again.
type UserFetcher interface {
	FetchUser(ctx context.Context, userID string) *SessionUser
}

// SessionManager owns the cookie store and the middleware that gate
// signed-in routes.
type SessionManager struct {
	store   *sessions.CookieStore
	name    string
	fetcher UserFetcher
	log     *zap.Logger
}

// NewSessionManager builds a cookie-backed session manager.
//
// In production (secure=true), cookies are Secure + SameSite=None so they
// survive the cross-site redirects used by the hosted sign-in flows. For
// local dev over http://localhost use secure=false so browsers accept the
// cookie.
func NewSessionManager(sessionKey, cookieName, domain string, ttl time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide 32+ random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}
	if cookieName == "" {
		return nil, fmt.Errorf("session cookie name is empty")
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Secure:   secure,
		HttpOnly: true,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	} else {
		opts.SameSite = http.SameSiteLaxMode
	}
	store.Options = opts

	logger.Info("session store initialized",
		zap.String("cookie", cookieName),
		zap.Bool("secure", secure),
		zap.String("domain", domain),
		zap.Duration("ttl", ttl))

	return &SessionManager{store: store, name: cookieName, log: logger}, nil
}

// SetUserFetcher installs the per-request account refresh used by
// LoadSessionUser. Without a fetcher the middleware falls back to the
// identity cached in the cookie.
func (sm *SessionManager) SetUserFetcher(f UserFetcher) { sm.fetcher = f }

// Store exposes the underlying cookie store. Logout needs its Options to
// build a deletion cookie that matches the original.
func (sm *SessionManager) Store() *sessions.CookieStore { return sm.store }

// GetSession returns the request's session. Like gorilla's Get, it returns
// a fresh session along with the error when the cookie fails to decode.
func (sm *SessionManager) GetSession(r *http.Request) (*sessions.Session, error) {
	return sm.store.Get(r, sm.name)
}

// SignIn writes the user's identity into the session cookie. Call it after
// credentials are verified, and again with MFAVerified set once the MFA
// step completes.
func (sm *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, u *SessionUser) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = u.ID
	sess.Values[userNameKey] = u.Name
	sess.Values[userLoginIDKey] = u.LoginID
	sess.Values[userRoleKey] = u.Role
	sess.Values[mfaVerifiedKey] = u.MFAVerified
	return sess.Save(r, w)
}

// LoadSessionUser injects the signed-in user into the request context.
// When a UserFetcher is configured the identity is refreshed from the
// database so role and access changes apply on the next request; a
// vanished or disabled account leaves the request anonymous.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.store.Get(r, sm.name)
		if err != nil {
			sm.log.Debug("session decode failed", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		isAuth, _ := sess.Values[isAuthKey].(bool)
		if !isAuth {
			next.ServeHTTP(w, r)
			return
		}

		u := &SessionUser{
			ID:      getString(sess, userIDKey),
			Name:    getString(sess, userNameKey),
			LoginID: getString(sess, userLoginIDKey),
			Role:    getString(sess, userRoleKey),
		}
		u.MFAVerified, _ = sess.Values[mfaVerifiedKey].(bool)

		if sm.fetcher != nil {
			fresh := sm.fetcher.FetchUser(r.Context(), u.ID)
			if fresh == nil {
				next.ServeHTTP(w, r)
				return
			}
			// MFA verification belongs to the session, not the record.
			fresh.MFAVerified = u.MFAVerified
			u = fresh
		}

		next.ServeHTTP(w, withUser(r, u))
	})
}

// RequireSignedIn ensures there is a user in context (set by LoadSessionUser).
// If not signed in:
//   - HTMX: sends HX-Redirect to /login?return=...
//   - HTML: 303 redirect to /login?return=...
//   - API:  401 Unauthorized with a plain error body.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		sm.denyUnauthenticated(w, r)
	})
}

// RequireRole ensures the signed-in user has one of the allowed roles.
// Role comparison is case-insensitive. Denials redirect HTML and HTMX
// clients instead of writing a blank error body.
func (sm *SessionManager) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)

			// Not signed in: 401 semantics.
			if !ok {
				sm.denyUnauthenticated(w, r)
				return
			}

			// Signed in but wrong role: 403 semantics.
			if _, has := set[strings.ToLower(u.Role)]; !has {
				if r.Header.Get("HX-Request") == "true" {
					w.Header().Set("HX-Redirect", "/forbidden")
					w.WriteHeader(http.StatusForbidden)
					return
				}
				if wantsHTML(r) {
					http.Redirect(w, r, "/forbidden", http.StatusSeeOther)
					return
				}
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// denyUnauthenticated answers a request that has no signed-in user: 401
// for API and HTMX callers, a 303 to /login for browsers. The original
// location rides along as the return parameter so login can send the user
// back.
func (sm *SessionManager) denyUnauthenticated(w http.ResponseWriter, r *http.Request) {
	ret := url.QueryEscape(currentURI(r))

	// HTMX: full-page client redirect (no partial swap).
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/login?return="+ret)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if wantsHTML(r) {
		http.Redirect(w, r, "/login?return="+ret, http.StatusSeeOther)
		return
	}

	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// context plumbing

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user and a found flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

// WithTestUser injects a SessionUser into the request context the same way
// LoadSessionUser does. Tests use it to simulate a signed-in request.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

func wantsHTML(r *http.Request) bool {
	// Light heuristic: treat it as HTML if it's HTMX or Accepts text/html.
	if r.Header.Get("HX-Request") == "true" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func currentURI(r *http.Request) string {
	// Preserve path + query as a return param.
	u := *r.URL
	return u.RequestURI()
}
