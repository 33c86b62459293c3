// internal/app/features/orders/export.go
package orders

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// exportCap bounds a single CSV download. The filters narrow the set; a
// larger pull is a reporting job, not a browser download.
const exportCap = 10000

// ServeExportCSV handles GET /orders/export.csv with the same filters as
// the list. Rows carry the patient's record id only; patient PHI never
// leaves the patients routes.
func (h *Handler) ServeExportCSV(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAuth(w, r, "/login"); !res.OK {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	base, ok := h.listFilter(ctx, w, r)
	if !ok {
		return
	}

	find := options.Find().
		SetSort(bson.D{{Key: "order_number", Value: 1}}).
		SetLimit(exportCap)
	rows, err := h.Orders.Find(ctx, base, find)
	if err != nil {
		h.Log.Error("find orders for export", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	filename := fmt.Sprintf("orders_%s.csv", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, url.PathEscape(filename)))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"order_number", "patient_record_id", "doctor_id", "territory_id", "q_code", "graft_size_sq_cm", "wound_length_cm", "wound_width_cm", "status", "source", "created_at"})
	for _, o := range rows {
		_ = cw.Write([]string{
			o.OrderNumber,
			o.PatientID.Hex(),
			o.DoctorID,
			o.TerritoryID,
			o.QCode,
			strconv.FormatFloat(o.GraftSizeSqCm, 'f', -1, 64),
			strconv.FormatFloat(o.WoundLengthCm, 'f', -1, 64),
			strconv.FormatFloat(o.WoundWidthCm, 'f', -1, 64),
			o.Status,
			o.Source,
			o.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
}
