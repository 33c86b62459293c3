// Package reportpolicy provides authorization policies for report access.
//
// Authorization rules:
//   - Admins can view reports across the whole hierarchy
//   - Master distributors, distributors, and sales reps view reports rolled
//     up over their own subtree
//   - Doctors view only their own numbers
package reportpolicy

import (
	"net/http"

	"github.com/dalemusser/ivrhub/internal/app/system/authz"
	"github.com/dalemusser/ivrhub/internal/domain/models"
)

// ReportScope represents the slice of the hierarchy a user can report over.
type ReportScope struct {
	// CanView indicates whether the user can view reports at all.
	CanView bool
	// AllHierarchy indicates whether the user reports over every subtree.
	// If false, RootID is the subtree the rollup is anchored at.
	AllHierarchy bool
	// RootID is the hierarchy node the user's reports are rooted at.
	RootID string
}

// CanViewReports determines what slice of the hierarchy the current user can
// report over.
//
// Authorization:
//   - Admin: whole hierarchy
//   - Master distributor / distributor / sales / doctor: own subtree
//     (a doctor's subtree is just themselves)
//   - No linked hierarchy node: nothing
func CanViewReports(r *http.Request) ReportScope {
	role, _, _, ok := authz.UserCtx(r)
	if !ok {
		return ReportScope{CanView: false}
	}

	if role == models.PortalRoleAdmin {
		return ReportScope{CanView: true, AllHierarchy: true}
	}

	hierarchyID := authz.HierarchyID(r)
	if hierarchyID == "" {
		return ReportScope{CanView: false}
	}
	return ReportScope{CanView: true, RootID: hierarchyID}
}

// CanExportReports reports whether the current user may download report CSV
// exports. Doctors are excluded; exports aggregate other people's activity.
func CanExportReports(r *http.Request) bool {
	scope := CanViewReports(r)
	if !scope.CanView {
		return false
	}
	role, _, _, _ := authz.UserCtx(r)
	return role != models.RoleDoctor
}
