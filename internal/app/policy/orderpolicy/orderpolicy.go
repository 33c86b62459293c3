// Package orderpolicy provides authorization policies for orders.
//
// Authorization rules:
//   - Admins can view and manage all orders
//   - Hierarchy users see orders placed for doctors in their downline
//   - Doctors see only their own orders
//   - Sales reps may additionally be limited by territory claims
package orderpolicy

import (
	"context"
	"net/http"

	"github.com/dalemusser/ivrhub/internal/app/system/authz"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
)

// ListScope represents the set of orders a user can list.
type ListScope struct {
	// CanList indicates whether the user can list orders at all.
	CanList bool
	// AllDoctors indicates whether the user can see every doctor's orders.
	// If false, DoctorIDs holds the allowed doctors.
	AllDoctors bool
	// DoctorIDs is the set of hierarchy doctor IDs the user is limited to.
	DoctorIDs []string
}

// Allows reports whether an order for the given doctor falls in the scope.
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

// CanListOrders determines what scope of orders the current user can list.
//
// Authorization:
//   - Admin: all orders
//   - Master distributor / distributor / sales: orders for doctors in their
//     downline
//   - Doctor: own orders
//   - No linked hierarchy node: nothing
func CanListOrders(ctx context.Context, svc *hierarchy.Service, r *http.Request) (ListScope, error) {
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

// CanViewOrder reports whether the current user can view an order placed for
// the given doctor in the given territory.
//
// Territory claims apply on top of the downline rule: a caller whose account
// carries territory assignments is refused orders outside them.
//
// Returns an error only if the downline walk fails.
func CanViewOrder(ctx context.Context, svc *hierarchy.Service, r *http.Request, doctorID, territoryID string) (bool, error) {
	role, _, _, ok := authz.UserCtx(r)
	if !ok {
		return false, nil
	}

	if territoryID != "" {
		if terrs := authz.UserTerritories(r); len(terrs) > 0 && !authz.CanAccessTerritory(r, territoryID) {
			return false, nil
		}
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

// CanCreateOrder reports whether the current user can place a portal order
// for the given doctor. Admins and the doctor's upline can place on the
// doctor's behalf; doctors place their own.
func CanCreateOrder(ctx context.Context, svc *hierarchy.Service, r *http.Request, doctorID string) (bool, error) {
	return CanViewOrder(ctx, svc, r, doctorID, "")
}

// CanTransitionOrder reports whether the current user can move an order's
// status. Only admins approve, ship, or cancel; the status machine itself is
// enforced by the order store.
func CanTransitionOrder(r *http.Request) bool {
	return authz.IsAdmin(r)
}
