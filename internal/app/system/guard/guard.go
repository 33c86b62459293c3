// internal/app/system/guard/guard.go

// Package guard decides whether protected content may be served, given
// declarative requirements and a verified token's claims.
//
// Evaluate is the pure decision core; Guard wraps it as chi middleware with
// a pluggable Verifier (portal session, JWT bearer, or a remote
// verification service). Every failure mode is externally identical - a
// redirect to login or an opaque envelope - but decisions carry a tagged
// reason for metrics and the audit trail.
package guard

import "strings"

// Reason tags why a request was denied. ReasonNone means authorized.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnauthenticated
	ReasonMFARequired
	ReasonPHIRequired
	ReasonTerritoryDenied
	ReasonInsufficientRole
	ReasonInsufficientPermission
	ReasonVerificationError
)

var reasonNames = map[Reason]string{
	ReasonNone:                   "authorized",
	ReasonUnauthenticated:        "unauthenticated",
	ReasonMFARequired:            "mfa_required",
	ReasonPHIRequired:            "phi_required",
	ReasonTerritoryDenied:        "territory_denied",
	ReasonInsufficientRole:       "insufficient_role",
	ReasonInsufficientPermission: "insufficient_permission",
	ReasonVerificationError:      "verification_error",
}

func (re Reason) String() string {
	if s, ok := reasonNames[re]; ok {
		return s
	}
	return "unknown"
}

// Decision is the outcome of evaluating claims against requirements.
type Decision struct {
	Authorized bool
	Reason     Reason
}

// Requirements declares what a route demands. The zero value admits any
// valid token.
type Requirements struct {
	RequireMFA  bool
	RequirePHI  bool
	Territory   string
	Roles       []string
	Permissions []string
}

// Evaluate checks claims against requirements. The checks run in a fixed
// order and the first failure wins:
//
//  1. invalid token
//  2. MFA required but not verified
//  3. PHI required but not granted
//  4. territory required but not held
//  5. required roles with no overlap (OR semantics)
//  6. required permissions with no overlap (OR semantics)
//
// Role and permission matching ignores case; territory ids match exactly.
func Evaluate(c Claims, req Requirements) Decision {
	if !c.Valid {
		return Decision{Reason: ReasonUnauthenticated}
	}
	if req.RequireMFA && !c.User.MFAVerified {
		return Decision{Reason: ReasonMFARequired}
	}
	if req.RequirePHI && !c.PHIAccess {
		return Decision{Reason: ReasonPHIRequired}
	}
	if req.Territory != "" && !containsString(c.User.Territories, req.Territory) {
		return Decision{Reason: ReasonTerritoryDenied}
	}
	if len(req.Roles) > 0 && !overlapsFold(c.User.Roles, req.Roles) {
		return Decision{Reason: ReasonInsufficientRole}
	}
	if len(req.Permissions) > 0 && !overlapsFold(c.User.Permissions, req.Permissions) {
		return Decision{Reason: ReasonInsufficientPermission}
	}
	return Decision{Authorized: true}
}

func containsString(haystack []string, want string) bool {
	for _, h := range haystack {
		if h == want {
			return true
		}
	}
	return false
}

func overlapsFold(held, required []string) bool {
	for _, h := range held {
		for _, want := range required {
			if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(want)) {
				return true
			}
		}
	}
	return false
}
