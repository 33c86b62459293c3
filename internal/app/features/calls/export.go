// internal/app/features/calls/export.go
package calls

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// exportCap bounds a single CSV download.
const exportCap = 10000

// ServeExportCSV handles GET /calls/export.csv with the same filters as the
// list. The caller's phone number stays out of the export; rows identify the
// caller only through the linked patient record id.
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
		SetSort(bson.D{{Key: "started_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(exportCap)
	rows, err := h.Calls.Find(ctx, base, find)
	if err != nil {
		h.Log.Error("find calls for export", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	filename := fmt.Sprintf("calls_%s.csv", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, url.PathEscape(filename)))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"call_sid", "started_at", "ended_at", "duration_secs", "outcome", "doctor_id", "patient_record_id", "order_id", "menu_path"})
	for _, c := range rows {
		ended := ""
		if c.EndedAt != nil {
			ended = c.EndedAt.UTC().Format(time.RFC3339)
		}
		patientID := ""
		if c.PatientID != nil {
			patientID = c.PatientID.Hex()
		}
		orderID := ""
		if c.OrderID != nil {
			orderID = c.OrderID.Hex()
		}
		_ = cw.Write([]string{
			c.CallSID,
			c.StartedAt.UTC().Format(time.RFC3339),
			ended,
			strconv.FormatInt(c.DurationSecs, 10),
			c.Outcome,
			c.DoctorID,
			patientID,
			orderID,
			strings.Join(c.MenuPath, ">"),
		})
	}
	cw.Flush()
}
