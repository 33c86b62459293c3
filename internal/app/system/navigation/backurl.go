// Package navigation provides helpers for safe URL navigation and redirects.
package navigation

import (
	"net/http"
	"strings"

	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/urlutil"
)

// BackURLOptions configures the behavior of SafeBackURL.
type BackURLOptions struct {
	// AllowedPrefix is the required URL prefix (e.g., "/patients", "/portal-users").
	// If empty, any safe URL is allowed.
	AllowedPrefix string

	// ExcludedSubpaths are subpath patterns to reject (e.g., "/edit", "/delete", "/new").
	// These prevent redirect loops back to action pages.
	ExcludedSubpaths []string

	// Fallback is the default URL if no valid return URL is found.
	Fallback string

	// PreserveQueryParam is an optional query parameter to preserve in the fallback URL.
	// For example, "territory" would check for a territory parameter and append it
	// to the fallback.
	PreserveQueryParam string
}

// SafeBackURL extracts and validates a return URL from the request.
//
// It checks both the query parameter and form value for "return", validates
// the URL is safe (not an open redirect), optionally validates the prefix,
// and excludes specified subpaths to prevent redirect loops.
//
// Example usage:
//
//	url := navigation.SafeBackURL(r, navigation.BackURLOptions{
//	    AllowedPrefix:    "/patients",
//	    ExcludedSubpaths: []string{"/upload_csv"},
//	    Fallback:         "/patients",
//	    PreserveQueryParam: "territory",
//	})
func SafeBackURL(r *http.Request, opts BackURLOptions) string {
	// Try query parameter first, then form value
	ret := urlutil.SafeReturn(query.Get(r, "return"), "", "")
	if ret == "" {
		ret = urlutil.SafeReturn(strings.TrimSpace(r.FormValue("return")), "", "")
	}

	// Validate against allowed prefix if specified
	if ret != "" {
		valid := true

		if opts.AllowedPrefix != "" && !strings.HasPrefix(ret, opts.AllowedPrefix) {
			valid = false
		}

		// Check excluded subpaths
		for _, excluded := range opts.ExcludedSubpaths {
			if strings.Contains(ret, excluded) {
				valid = false
				break
			}
		}

		if valid {
			return ret
		}
	}

	// Build fallback URL, optionally preserving a query parameter
	fallback := opts.Fallback
	if opts.PreserveQueryParam != "" {
		param := query.Get(r, opts.PreserveQueryParam)
		if param == "" {
			param = strings.TrimSpace(r.FormValue(opts.PreserveQueryParam))
		}
		if param == "" {
			// Also check common variations like "territoryID" for "territory"
			param = strings.TrimSpace(r.FormValue(opts.PreserveQueryParam + "ID"))
		}
		if param != "" && param != "all" {
			if strings.Contains(fallback, "?") {
				fallback += "&" + opts.PreserveQueryParam + "=" + param
			} else {
				fallback += "?" + opts.PreserveQueryParam + "=" + param
			}
		}
	}

	return fallback
}

// Common back URL configurations for reuse across packages.
var (
	// PortalUsersBackURL returns options for portal-users pages.
	PortalUsersBackURL = BackURLOptions{
		AllowedPrefix:    "/portal-users",
		ExcludedSubpaths: []string{"/edit", "/delete", "/new"},
		Fallback:         "/portal-users",
	}

	// PatientsBackURL returns options for patients pages.
	PatientsBackURL = BackURLOptions{
		AllowedPrefix:      "/patients",
		ExcludedSubpaths:   []string{"/upload_csv"},
		Fallback:           "/patients",
		PreserveQueryParam: "territory",
	}

	// HierarchyBackURL returns options for hierarchy pages.
	HierarchyBackURL = BackURLOptions{
		AllowedPrefix:    "/hierarchy",
		ExcludedSubpaths: []string{"/edit", "/delete", "/new", "/move"},
		Fallback:         "/hierarchy",
	}

	// TerritoriesBackURL returns options for territories pages.
	TerritoriesBackURL = BackURLOptions{
		AllowedPrefix:    "/territories",
		ExcludedSubpaths: []string{"/edit", "/delete", "/new"},
		Fallback:         "/territories",
	}

	// OrdersBackURL returns options for orders pages.
	OrdersBackURL = BackURLOptions{
		AllowedPrefix:      "/orders",
		ExcludedSubpaths:   []string{"/edit", "/delete", "/new"},
		Fallback:           "/orders",
		PreserveQueryParam: "territory",
	}
)
