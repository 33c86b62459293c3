// internal/app/features/dashboard/downline.go
package dashboard

import (
	"context"
	"net/http"

	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson"
)

// downlineSummary covers the distribution roles: master distributors,
// distributors, and sales reps all see their subtree, just of different
// sizes.
type downlineSummary struct {
	DownlineSize   int              `json:"downline_size"`
	Doctors        int              `json:"doctors"`
	Patients       int64            `json:"patients"`
	OrdersByStatus map[string]int64 `json:"orders_by_status"`
	OrdersByDoctor map[string]int64 `json:"orders_by_doctor"`
	Calls          int64            `json:"calls"`
}

func (h *Handler) downlineSummary(r *http.Request, hierarchyID string) (any, error) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if hierarchyID == "" {
		// Account not linked to a node; an empty summary is more useful
		// than an error page.
		return downlineSummary{
			OrdersByStatus: map[string]int64{},
			OrdersByDoctor: map[string]int64{},
		}, nil
	}

	descendants, err := h.Svc.Descendants(ctx, hierarchyID)
	if err != nil {
		return nil, err
	}
	doctors, err := h.Svc.DoctorsInDownline(ctx, hierarchyID)
	if err != nil {
		return nil, err
	}
	doctorIDs := make([]string, 0, len(doctors))
	for _, d := range doctors {
		doctorIDs = append(doctorIDs, d.ID)
	}

	summary := downlineSummary{
		DownlineSize:   len(descendants),
		Doctors:        len(doctorIDs),
		OrdersByStatus: map[string]int64{},
		OrdersByDoctor: map[string]int64{},
	}
	if len(doctorIDs) == 0 {
		return summary, nil
	}

	scope := bson.M{"doctor_id": bson.M{"$in": doctorIDs}}

	if summary.Patients, err = h.Patients.Count(ctx, scope); err != nil {
		return nil, err
	}
	if summary.OrdersByStatus, err = h.Orders.CountByStatus(ctx, doctorIDs); err != nil {
		return nil, err
	}
	if summary.OrdersByDoctor, err = h.Orders.CountByDoctor(ctx, doctorIDs); err != nil {
		return nil, err
	}
	if summary.Calls, err = h.Calls.Count(ctx, scope); err != nil {
		return nil, err
	}
	return summary, nil
}
