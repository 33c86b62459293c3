// internal/app/features/errors/render.go

// Package errors renders access denial responses for handler-level gates.
// Browsers are redirected so they land somewhere useful; API and fetch
// callers get the standard error envelope. The specific rule that denied
// the request never appears in the body.
package errors

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
)

// RenderUnauthorized answers a request with no signed-in user. Browsers
// and HTMX clients are sent to loginURL with the original location in the
// return parameter; everyone else gets a 401 envelope. An empty loginURL
// means /login.
func RenderUnauthorized(w http.ResponseWriter, r *http.Request, loginURL string) {
	if loginURL == "" {
		loginURL = "/login"
	}
	dest := loginURL + "?return=" + url.QueryEscape(r.URL.RequestURI())

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", dest)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if wantsHTML(r) {
		http.Redirect(w, r, dest, http.StatusSeeOther)
		return
	}

	webwrite.Error(w, http.StatusUnauthorized, "unauthorized", "Please sign in to continue.")
}

// RenderForbidden answers a signed-in user who lacks access. Browsers and
// HTMX clients are sent to backURL so they stay inside pages their role
// can see; everyone else gets a 403 envelope carrying msg. An empty
// backURL means /dashboard.
func RenderForbidden(w http.ResponseWriter, r *http.Request, msg, backURL string) {
	if backURL == "" {
		backURL = "/dashboard"
	}
	if msg == "" {
		msg = "You don't have permission to access this page."
	}

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", backURL)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if wantsHTML(r) {
		http.Redirect(w, r, backURL, http.StatusSeeOther)
		return
	}

	webwrite.Error(w, http.StatusForbidden, "forbidden", msg)
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
