// internal/app/features/dashboard/doctor.go
package dashboard

import (
	"context"
	"net/http"

	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson"
)

// doctorSummary is the doctor's own panel: their patients, their orders,
// calls attributed to them.
type doctorSummary struct {
	Patients       int64            `json:"patients"`
	OrdersByStatus map[string]int64 `json:"orders_by_status"`
	CallsToday     int64            `json:"calls_today"`
	CallsTotal     int64            `json:"calls_total"`
}

func (h *Handler) doctorSummary(r *http.Request, doctorID string) (any, error) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	summary := doctorSummary{OrdersByStatus: map[string]int64{}}
	if doctorID == "" {
		return summary, nil
	}

	var err error
	if summary.Patients, err = h.Patients.Count(ctx, bson.M{"doctor_id": doctorID}); err != nil {
		return nil, err
	}
	if summary.OrdersByStatus, err = h.Orders.CountByStatus(ctx, []string{doctorID}); err != nil {
		return nil, err
	}
	if summary.CallsTotal, err = h.Calls.Count(ctx, bson.M{"doctor_id": doctorID}); err != nil {
		return nil, err
	}
	if summary.CallsToday, err = h.Calls.Count(ctx, bson.M{
		"doctor_id":  doctorID,
		"started_at": bson.M{"$gte": startOfToday()},
	}); err != nil {
		return nil, err
	}
	return summary, nil
}
