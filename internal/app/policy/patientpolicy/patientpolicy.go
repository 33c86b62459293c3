// Package patientpolicy provides authorization policies for patient records.
//
// Authorization rules:
//   - Admins with PHI access can view and manage all patients
//   - Hierarchy users with PHI access see patients of doctors in their downline
//   - Doctors with PHI access see only their own patients
//   - Accounts without the PHI access flag cannot see patients at all
package patientpolicy

import (
	"context"
	"net/http"

	"github.com/dalemusser/ivrhub/internal/app/system/authz"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
)

// ListScope represents the set of patients a user can list.
type ListScope struct {
	// CanList indicates whether the user can list patients at all.
	CanList bool
	// AllDoctors indicates whether the user can see every doctor's patients.
	// If false, DoctorIDs holds the allowed attending doctors.
	AllDoctors bool
	// DoctorIDs is the set of hierarchy doctor IDs the user is limited to.
	DoctorIDs []string
}

// Allows reports whether a patient attended by doctorID falls in the scope.
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

// CanListPatients determines what scope of patients the current user can list.
//
// Authorization:
//   - Admin (with PHI access): all patients
//   - Master distributor / distributor / sales (with PHI access): patients of
//     doctors in their downline
//   - Doctor (with PHI access): own patients
//   - No PHI access, or no linked hierarchy node: nothing
func CanListPatients(ctx context.Context, svc *hierarchy.Service, r *http.Request) (ListScope, error) {
	role, _, _, ok := authz.UserCtx(r)
	if !ok || !authz.CanViewPHI(r) {
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

// CanViewPatient reports whether the current user can view a patient attended
// by the given doctor.
//
// Returns an error only if the downline walk fails.
func CanViewPatient(ctx context.Context, svc *hierarchy.Service, r *http.Request, doctorID string) (bool, error) {
	role, _, _, ok := authz.UserCtx(r)
	if !ok || !authz.CanViewPHI(r) {
		return false, nil
	}

	switch role {
	case models.PortalRoleAdmin:
		return true, nil
	case models.RoleDoctor:
		return authz.HierarchyID(r) == doctorID, nil
	default:
		hierarchyID := authz.HierarchyID(r)
		if hierarchyID == "" || doctorID == "" {
			return false, nil
		}
		return svc.IsDescendant(ctx, doctorID, hierarchyID)
	}
}

// CanManagePatient reports whether the current user can create, edit, or
// delete a patient under the given doctor. Same rules as CanViewPatient.
func CanManagePatient(ctx context.Context, svc *hierarchy.Service, r *http.Request, doctorID string) (bool, error) {
	return CanViewPatient(ctx, svc, r, doctorID)
}

// CanImportPatients reports whether the current user may bulk-import patients
// for the given doctor. Import is limited to admins and the attending doctor
// so roster files can't be pushed into someone else's panel.
func CanImportPatients(r *http.Request, doctorID string) bool {
	role, _, _, ok := authz.UserCtx(r)
	if !ok || !authz.CanViewPHI(r) {
		return false
	}
	switch role {
	case models.PortalRoleAdmin:
		return true
	case models.RoleDoctor:
		return authz.HierarchyID(r) == doctorID
	default:
		return false
	}
}
