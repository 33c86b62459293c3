// internal/app/features/dashboard/admin.go
package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson"
)

// activeSessionWindow is how recently a session must have been touched to
// count as active on the admin dashboard.
const activeSessionWindow = 15 * time.Minute

type adminSummary struct {
	HierarchyByRole map[string]int64 `json:"hierarchy_by_role"`
	PortalAccounts  int64            `json:"portal_accounts"`
	Patients        int64            `json:"patients"`
	OrdersByStatus  map[string]int64 `json:"orders_by_status"`
	CallsToday      int64            `json:"calls_today"`
	ActiveSessions  int64            `json:"active_sessions"`
}

func (h *Handler) adminSummary(r *http.Request) (any, error) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	byRole, err := h.Hierarchy.CountByRole(ctx)
	if err != nil {
		return nil, err
	}
	accounts, err := h.Users.Count(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	patientCount, err := h.Patients.Count(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	ordersByStatus, err := h.Orders.CountByStatus(ctx, nil)
	if err != nil {
		return nil, err
	}
	callsToday, err := h.Calls.Count(ctx, bson.M{"started_at": bson.M{"$gte": startOfToday()}})
	if err != nil {
		return nil, err
	}
	active, err := h.Sessions.CountActive(ctx, activeSessionWindow)
	if err != nil {
		return nil, err
	}

	return adminSummary{
		HierarchyByRole: byRole,
		PortalAccounts:  accounts,
		Patients:        patientCount,
		OrdersByStatus:  ordersByStatus,
		CallsToday:      callsToday,
		ActiveSessions:  active,
	}, nil
}

func startOfToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
