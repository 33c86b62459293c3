// Package callpolicy provides authorization policies for IVR call records.
//
// Authorization rules:
//   - Admins see every call, including calls that never identified a patient
//   - Hierarchy users see calls linked to doctors in their downline
//   - Doctors see only calls linked to themselves
//   - Unlinked calls (no doctor identified) are admin-only
package callpolicy

import (
	"context"
	"net/http"

	"github.com/dalemusser/ivrhub/internal/app/system/authz"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
)

// ListScope represents the set of calls a user can list.
type ListScope struct {
	// CanList indicates whether the user can list calls at all.
	CanList bool
	// AllDoctors indicates whether the user sees every call, linked or not.
	// If false, DoctorIDs holds the allowed doctors.
	AllDoctors bool
	// DoctorIDs is the set of hierarchy doctor IDs the user is limited to.
	DoctorIDs []string
}

// Allows reports whether a call linked to the given doctor falls in the scope.
func (s ListScope) Allows(doctorID string) bool {
	if !s.CanList {
		return false
	}
	if s.AllDoctors {
		return true
	}
	for _, id := range s.DoctorIDs {
		if id == doctorID {
			return true
		}
	}
	return false
}

// CanListCalls determines what scope of calls the current user can list.
// Non-admin scopes filter on the call's doctor link, which drops unlinked
// calls from the listing.
func CanListCalls(ctx context.Context, svc *hierarchy.Service, r *http.Request) (ListScope, error) {
	role, _, _, ok := authz.UserCtx(r)
	if !ok {
		return ListScope{CanList: false}, nil
	}

	if role == models.PortalRoleAdmin {
		return ListScope{CanList: true, AllDoctors: true}, nil
	}

	hierarchyID := authz.HierarchyID(r)
	if hierarchyID == "" {
		return ListScope{CanList: false}, nil
	}

	if role == models.RoleDoctor {
		return ListScope{CanList: true, DoctorIDs: []string{hierarchyID}}, nil
	}

	doctors, err := svc.DoctorsInDownline(ctx, hierarchyID)
	if err != nil {
		return ListScope{CanList: false}, err
	}
	if len(doctors) == 0 {
		return ListScope{CanList: false}, nil
	}

	ids := make([]string, 0, len(doctors))
	for _, d := range doctors {
		ids = append(ids, d.ID)
	}
	return ListScope{CanList: true, DoctorIDs: ids}, nil
}

// CanViewCall reports whether the current user can view a call linked to the
// given doctor. An empty doctorID means the caller never identified a
// patient; those calls are admin-only.
//
// Returns an error only if the downline walk fails.
func CanViewCall(ctx context.Context, svc *hierarchy.Service, r *http.Request, doctorID string) (bool, error) {
	role, _, _, ok := authz.UserCtx(r)
	if !ok {
		return false, nil
	}

	switch role {
	case models.PortalRoleAdmin:
		return true, nil
	case models.RoleDoctor:
		return doctorID != "" && authz.HierarchyID(r) == doctorID, nil
	default:
		hierarchyID := authz.HierarchyID(r)
		if hierarchyID == "" || doctorID == "" {
			return false, nil
		}
		return svc.IsDescendant(ctx, doctorID, hierarchyID)
	}
}

// CanRecordCall reports whether the current user can record a call by hand.
// Backfilling missed provider events is admin work.
func CanRecordCall(r *http.Request) bool {
	return authz.IsAdmin(r)
}
