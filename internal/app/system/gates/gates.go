// Package gates provides authorization gate functions for HTTP handlers.
// Gates check authentication and authorization, writing the appropriate
// denial responses when checks fail.
//
// # Three-Tier Authorization Pattern
//
// IVRHub uses a three-tier authorization approach:
//
//  1. Route-Level Middleware (auth.RequireSignedIn, auth.RequireRole, guard.Middleware)
//     Applied in routes.go files for coarse-grained access control.
//     Example: sm.RequireRole("admin") ensures all routes in a group require admin.
//     When middleware handles role checking, handlers don't need gates.
//
//  2. Handler-Level Gates (this package)
//     Used in handlers that need role checks WITHOUT route-level middleware,
//     or need different role requirements than the route group.
//     Gates write denial responses and return user context (role, name, userID).
//     Example: gates.RequireAdminOrDistributor for a handler in a mixed-access route.
//
//  3. Policy Layer (internal/app/policy/*)
//     Used for resource-specific authorization requiring database lookups.
//     Example: patientpolicy.CanViewPatient checks whether the patient's doctor
//     sits in the caller's downline. Policies return (bool, error) - callers
//     handle error rendering.
//
// # When to Use Each Tier
//
// Use middleware when: All routes in a group have the same role requirements.
// Use gates when: Individual handlers need different role checks than the route.
// Use policies when: Authorization depends on the specific resource being accessed.
//
// # Avoiding Redundancy
//
// Don't use gates in handlers that are behind role-specific middleware.
// If routes.go has RequireRole("admin"), handlers don't need gates.RequireAdmin.
// Instead, use authz.UserCtx(r) to get user context without re-checking role.
package gates

import (
	"net/http"

	uierrors "github.com/dalemusser/ivrhub/internal/app/features/errors"
	"github.com/dalemusser/ivrhub/internal/app/system/authz"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Result contains the result of an authorization gate check.
type Result struct {
	Role   string
	Name   string
	UserID primitive.ObjectID
	OK     bool
}

// RequireAuth ensures a user is authenticated.
// If not authenticated, it writes an unauthorized response and returns OK=false.
// The loginURL parameter specifies where to redirect for login.
func RequireAuth(w http.ResponseWriter, r *http.Request, loginURL string) Result {
	role, name, uid, ok := authz.UserCtx(r)
	if !ok {
		uierrors.RenderUnauthorized(w, r, loginURL)
		return Result{OK: false}
	}
	return Result{Role: role, Name: name, UserID: uid, OK: true}
}

// RequireAdmin ensures the user is authenticated and has the admin role.
// If not authenticated, writes an unauthorized response.
// If authenticated but not admin, writes a forbidden response with the provided message and fallback URL.
func RequireAdmin(w http.ResponseWriter, r *http.Request, forbiddenMsg, fallbackURL string) Result {
	role, name, uid, ok := authz.UserCtx(r)
	if !ok {
		uierrors.RenderUnauthorized(w, r, "/login")
		return Result{OK: false}
	}
	if role != "admin" {
		uierrors.RenderForbidden(w, r, forbiddenMsg, fallbackURL)
		return Result{OK: false}
	}
	return Result{Role: role, Name: name, UserID: uid, OK: true}
}

// RequireAdminOrDistributor ensures the user is authenticated and is an admin,
// master distributor, or regional distributor - the roles that manage the
// hierarchy and see network-wide data.
// If not authenticated, writes an unauthorized response.
// If authenticated but outside those roles, writes a forbidden response.
func RequireAdminOrDistributor(w http.ResponseWriter, r *http.Request, forbiddenMsg, fallbackURL string) Result {
	role, name, uid, ok := authz.UserCtx(r)
	if !ok {
		uierrors.RenderUnauthorized(w, r, "/login")
		return Result{OK: false}
	}
	if role != "admin" && role != "master_distributor" && role != "distributor" {
		uierrors.RenderForbidden(w, r, forbiddenMsg, fallbackURL)
		return Result{OK: false}
	}
	return Result{Role: role, Name: name, UserID: uid, OK: true}
}

// RequirePHIAccess ensures the user is authenticated and holds the PHI access
// flag on their account. Role alone never grants PHI - the flag is explicit.
// If not authenticated, writes an unauthorized response.
// If authenticated without PHI access, writes a forbidden response.
func RequirePHIAccess(w http.ResponseWriter, r *http.Request, fallbackURL string) Result {
	role, name, uid, ok := authz.UserCtx(r)
	if !ok {
		uierrors.RenderUnauthorized(w, r, "/login")
		return Result{OK: false}
	}
	if !authz.CanViewPHI(r) {
		uierrors.RenderForbidden(w, r, "Your account does not have access to protected health information.", fallbackURL)
		return Result{OK: false}
	}
	return Result{Role: role, Name: name, UserID: uid, OK: true}
}

// RequireAnyRole ensures the user is authenticated and has one of the specified roles.
// If not authenticated, writes an unauthorized response.
// If authenticated but role not in allowed list, writes a forbidden response.
func RequireAnyRole(w http.ResponseWriter, r *http.Request, forbiddenMsg, fallbackURL string, allowedRoles ...string) Result {
	role, name, uid, ok := authz.UserCtx(r)
	if !ok {
		uierrors.RenderUnauthorized(w, r, "/login")
		return Result{OK: false}
	}

	for _, allowed := range allowedRoles {
		if role == allowed {
			return Result{Role: role, Name: name, UserID: uid, OK: true}
		}
	}

	uierrors.RenderForbidden(w, r, forbiddenMsg, fallbackURL)
	return Result{OK: false}
}
