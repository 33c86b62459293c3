// internal/app/features/reports/territorycsv.go
package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/dalemusser/ivrhub/internal/app/policy/reportpolicy"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// ServeOrdersByTerritoryCSV handles GET /reports/orders_by_territory.csv:
// one row per territory with the order count over the caller's scope.
// Orders recorded before a territory was assigned land in an unassigned row.
func (h *Handler) ServeOrdersByTerritoryCSV(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAuth(w, r, "/login"); !res.OK {
		return
	}
	if !reportpolicy.CanExportReports(r) {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "Report exports are not available for your account.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	filter, ok := h.exportScope(ctx, w, r)
	if !ok {
		return
	}

	counts, err := h.Orders.CountByTerritory(ctx, filter)
	if err != nil {
		h.Log.Error("count orders by territory", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		if id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	names := make(map[string]string, len(ids))
	if len(ids) > 0 {
		terrs, err := h.Territories.GetByIDs(ctx, ids)
		if err != nil {
			h.Log.Error("load territories for report", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
		for _, t := range terrs {
			names[t.ID] = t.Name
		}
	}

	filename := fmt.Sprintf("orders_by_territory_%s.csv", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, url.PathEscape(filename)))

	// UTF-8 BOM for Excel
	_, _ = w.Write([]byte{0xEF, 0xBB, 0xBF})

	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	defer cw.Flush()

	_ = cw.Write([]string{"territory_id", "territory_name", "orders"})
	for _, id := range ids {
		_ = cw.Write([]string{id, names[id], strconv.FormatInt(counts[id], 10)})
	}
	if n, ok := counts[""]; ok {
		_ = cw.Write([]string{"", "(unassigned)", strconv.FormatInt(n, 10)})
	}
}

// exportScope resolves the order filter for the caller's report scope.
// Returns ok=false after writing the refusal.
func (h *Handler) exportScope(ctx context.Context, w http.ResponseWriter, r *http.Request) (bson.M, bool) {
	scope := reportpolicy.CanViewReports(r)
	if scope.AllHierarchy {
		return bson.M{}, true
	}

	root, err := h.Svc.Lookup(ctx, scope.RootID)
	if err != nil {
		h.Log.Error("resolve report scope", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return nil, false
	}
	if root == nil {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "Your account is not linked to the hierarchy.")
		return nil, false
	}
	ids, err := h.doctorIDsForSubtree(ctx, *root)
	if err != nil {
		h.Log.Error("walk downline for report scope", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return nil, false
	}
	if len(ids) == 0 {
		// An empty downline exports an empty report, not an error.
		ids = []string{""}
	}
	return bson.M{"doctor_id": bson.M{"$in": ids}}, true
}
