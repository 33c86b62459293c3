// internal/app/system/search/search.go
package search

import "strings"

// EmailPivotOK reports whether it is safe and useful to pivot a paged
// search from name-based sorting to email-based sorting.
//
// The pivot is safe when the user is clearly searching by email (the
// query contains '@') and the result set is constrained by status. For
// lists scoped under a territory (patients, hierarchy members) a
// territory constraint is also required to keep the indexed path
// selective.
//
// Typical usage in territory-scoped lists:
//
//	pivot := search.EmailPivotOK(query, status, territoryID != "")
//	sortField := "full_name_ci"
//	if pivot {
//	    sortField = "email_ci"
//	}
//
// For unscoped lists (portal users across all territories), use
// EmailPivotUnscopedOK.
func EmailPivotOK(query, status string, hasTerritory bool) bool {
	qHasAt := strings.Contains(query, "@")
	statusFixed := equalsAnyFold(status, "active", "disabled")
	return qHasAt && statusFixed && hasTerritory
}

// EmailPivotUnscopedOK is the variant for global lists with no
// territory constraint. It requires that the query looks like an email
// and the status filter is constrained.
func EmailPivotUnscopedOK(query, status string) bool {
	qHasAt := strings.Contains(query, "@")
	statusFixed := equalsAnyFold(status, "active", "disabled")
	return qHasAt && statusFixed
}

func equalsAnyFold(s string, vals ...string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	for _, v := range vals {
		if s == strings.ToLower(v) {
			return true
		}
	}
	return false
}
