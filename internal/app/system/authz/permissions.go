// internal/app/system/authz/permissions.go
package authz

import (
	"net/http"
	"strings"

	"github.com/dalemusser/ivrhub/internal/app/system/auth"
)

// Permission identifiers. These are the strings carried in token claims and
// session users; route requirements match against them with OR semantics.
const (
	PermManageUsers       = "manage_users"
	PermManageSettings    = "manage_settings"
	PermManageHierarchy   = "manage_hierarchy"
	PermManageTerritories = "manage_territories"
	PermManagePatients    = "manage_patients"
	PermViewPatients      = "view_patients"
	PermManageOrders      = "manage_orders"
	PermViewOrders        = "view_orders"
	PermViewCalls         = "view_calls"
	PermViewReports       = "view_reports"
	PermViewAudit         = "view_audit"
)

// rolePermissions maps each portal role to the permissions it carries.
// Admins hold everything; distributors manage their network and read the
// operational data under it; doctors work their own patients and orders.
var rolePermissions = map[string][]string{
	"admin": {
		PermManageUsers,
		PermManageSettings,
		PermManageHierarchy,
		PermManageTerritories,
		PermManagePatients,
		PermViewPatients,
		PermManageOrders,
		PermViewOrders,
		PermViewCalls,
		PermViewReports,
		PermViewAudit,
	},
	"master_distributor": {
		PermManageHierarchy,
		PermViewPatients,
		PermViewOrders,
		PermViewCalls,
		PermViewReports,
	},
	"distributor": {
		PermManageHierarchy,
		PermViewPatients,
		PermViewOrders,
		PermViewCalls,
		PermViewReports,
	},
	"sales": {
		PermViewPatients,
		PermViewOrders,
		PermViewReports,
	},
	"doctor": {
		PermManagePatients,
		PermViewPatients,
		PermManageOrders,
		PermViewOrders,
	},
}

// PermissionsForRole returns the permission set for a role, nil for an
// unknown role. Callers must not mutate the returned slice.
func PermissionsForRole(role string) []string {
	return rolePermissions[strings.ToLower(strings.TrimSpace(role))]
}

// HasPermission reports whether the current user carries the given
// permission. Explicit permissions on the session user win; when none were
// loaded the role's default set applies.
func HasPermission(r *http.Request, perm string) bool {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return false
	}

	perms := user.Permissions
	if len(perms) == 0 {
		perms = PermissionsForRole(user.Role)
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}
