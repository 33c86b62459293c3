// internal/app/system/authz/authz.go
package authz

import (
	"net/http"
	"strings"

	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserCtx returns the user's role (lowercased), name, Mongo ObjectID, and a found flag.
// If no user is present in context or the user ID is malformed, it returns
// "visitor", "", NilObjectID, false. This ensures callers can trust that
// ok=true means a valid, authenticated user with a valid ObjectID.
// The role is normalized to lowercase for consistent comparison.
func UserCtx(r *http.Request) (role string, name string, userID primitive.ObjectID, ok bool) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return "visitor", "", primitive.NilObjectID, false
	}
	userID, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		// Malformed user ID in session - fail closed for security.
		// This should not happen in normal operation; indicates session corruption.
		return "visitor", "", primitive.NilObjectID, false
	}
	return strings.ToLower(user.Role), user.Name, userID, true
}

// IsAdmin reports whether the current request's user is an operations admin.
func IsAdmin(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == "admin"
}

// IsMasterDistributor reports whether the current request's user is a master distributor.
func IsMasterDistributor(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == "master_distributor"
}

// IsDistributor reports whether the current request's user is a regional distributor.
func IsDistributor(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == "distributor"
}

// IsSales reports whether the current request's user is a sales rep.
func IsSales(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == "sales"
}

// IsDoctor reports whether the current request's user is a doctor.
func IsDoctor(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && role == "doctor"
}

// HierarchyID returns the hierarchy node linked to the current user's
// account. Admins have no hierarchy node, so this returns "" for them and
// for anonymous requests.
func HierarchyID(r *http.Request) string {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return ""
	}
	return user.HierarchyID
}

// UserTerritories returns the territory ids assigned to the current user.
// Returns nil if no user is signed in or none are assigned.
func UserTerritories(r *http.Request) []string {
	user, ok := auth.CurrentUser(r)
	if !ok || len(user.TerritoryIDs) == 0 {
		return nil
	}
	return user.TerritoryIDs
}

// CanViewPHI reports whether the current user may see protected health
// information. This is an account flag, not a role: even admins need it
// granted explicitly.
func CanViewPHI(r *http.Request) bool {
	user, ok := auth.CurrentUser(r)
	return ok && user.PHIAccess
}

// CanAccessTerritory reports whether the current user can work with data in
// the given territory. Admins can access every territory; everyone else is
// limited to the territories assigned on their account.
func CanAccessTerritory(r *http.Request, territoryID string) bool {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return false
	}

	if strings.ToLower(user.Role) == "admin" {
		return true
	}

	for _, id := range user.TerritoryIDs {
		if id == territoryID {
			return true
		}
	}
	return false
}

// CanManageHierarchy reports whether the current user may create, move, or
// delete hierarchy users. Admins always can; master distributors and
// regional distributors manage their own downline; sales reps and doctors
// cannot.
func CanManageHierarchy(r *http.Request) bool {
	return HasPermission(r, PermManageHierarchy)
}
