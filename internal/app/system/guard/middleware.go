// internal/app/system/guard/middleware.go
package guard

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/dalemusser/ivrhub/internal/app/system/metrics"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"go.uber.org/zap"
)

// Verifier turns a request into verified claims. Implementations must not
// write to the response; the guard owns all output. An error means
// verification itself failed (network, malformed token), not that the
// claims are insufficient.
type Verifier interface {
	Verify(ctx context.Context, r *http.Request) (Claims, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, r *http.Request) (Claims, error)

func (f VerifierFunc) Verify(ctx context.Context, r *http.Request) (Claims, error) {
	return f(ctx, r)
}

// Guard enforces requirements on routes using a Verifier. Decisions are
// re-evaluated on every request; nothing is cached.
type Guard struct {
	verifier Verifier
	log      *zap.Logger
	onDeny   func(r *http.Request, d Decision)
}

// New builds a Guard around a verifier.
func New(v Verifier, logger *zap.Logger) *Guard {
	return &Guard{verifier: v, log: logger}
}

// OnDeny installs a hook invoked for every denial. The bootstrap wires it
// to the audit trail.
func (g *Guard) OnDeny(fn func(*http.Request, Decision)) {
	g.onDeny = fn
}

// Require returns middleware enforcing fixed requirements.
func (g *Guard) Require(req Requirements) func(http.Handler) http.Handler {
	return g.RequireFunc(func(*http.Request) Requirements { return req })
}

// RequireFunc returns middleware whose requirements are computed per
// request, for routes where a requirement depends on the URL (the
// territory-scoped API, for example).
func (g *Guard) RequireFunc(fn func(*http.Request) Requirements) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := g.verifier.Verify(r.Context(), r)

			// A caller that went away mid-verification gets no response;
			// writing one would race the connection teardown.
			if r.Context().Err() != nil {
				return
			}

			var d Decision
			if err != nil {
				g.log.Warn("token verification failed", zap.Error(err))
				d = Decision{Reason: ReasonVerificationError}
			} else {
				d = Evaluate(claims, fn(r))
			}

			metrics.GuardDecision(d.Reason.String())

			if !d.Authorized {
				if g.onDeny != nil {
					g.onDeny(r, d)
				}
				g.deny(w, r, d)
				return
			}

			next.ServeHTTP(w, withClaims(r, claims))
		})
	}
}

// deny writes the denial. Browsers always land on login with the original
// location preserved; API callers get an opaque envelope whose status
// distinguishes only 401 from 403. The fine-grained reason stays internal
// (metrics, audit), never in the response.
func (g *Guard) deny(w http.ResponseWriter, r *http.Request, d Decision) {
	ret := url.QueryEscape(r.URL.RequestURI())
	dest := "/login?return=" + ret

	status := http.StatusForbidden
	code := "forbidden"
	message := "You don't have access to this resource."
	if d.Reason == ReasonUnauthenticated || d.Reason == ReasonVerificationError {
		status = http.StatusUnauthorized
		code = "unauthorized"
		message = "Please sign in to continue."
	}

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", dest)
		w.WriteHeader(status)
		return
	}
	if wantsHTML(r) {
		http.Redirect(w, r, dest, http.StatusSeeOther)
		return
	}

	webwrite.Error(w, status, code, message)
}

type ctxKey struct{}

var claimsKey ctxKey

// ClaimsFrom returns the verified claims an authorized request carries.
func ClaimsFrom(r *http.Request) (Claims, bool) {
	c, ok := r.Context().Value(claimsKey).(Claims)
	return c, ok
}

func withClaims(r *http.Request, c Claims) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), claimsKey, c))
}

func wantsHTML(r *http.Request) bool {
	if r.Header.Get("HX-Request") == "true" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
