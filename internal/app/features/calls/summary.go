// internal/app/features/calls/summary.go
package calls

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/ivrhub/internal/app/policy/callpolicy"
	callstore "github.com/dalemusser/ivrhub/internal/app/store/calls"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/viewdata"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/waffle/pantry/query"
	"go.uber.org/zap"
)

// summaryDefaultDays is the window served when no range is given.
const summaryDefaultDays = 30

type summaryPage struct {
	Viewer viewdata.Viewer        `json:"viewer"`
	Page   string                 `json:"page"`
	From   string                 `json:"from"`
	To     string                 `json:"to"`
	Days   []callstore.DaySummary `json:"days"`
}

// ServeSummary handles GET /calls/summary (?from=/?to= UTC days, ?doctor=).
// Volume rolls up per UTC day over the range, scoped to the caller's
// downline.
func (h *Handler) ServeSummary(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAuth(w, r, "/login"); !res.OK {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	scope, err := callpolicy.CanListCalls(ctx, h.Svc, r)
	if err != nil {
		h.Log.Error("resolve call summary scope", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if !scope.CanList {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "You do not have access to call records.")
		return
	}

	doctorIDs := scope.DoctorIDs
	if doctorID := query.Get(r, "doctor"); doctorID != "" {
		if !scope.Allows(doctorID) {
			webwrite.Error(w, http.StatusForbidden, "forbidden", "That doctor is outside your downline.")
			return
		}
		doctorIDs = []string{doctorID}
	}

	now := time.Now().UTC()
	end := now.Truncate(24 * time.Hour).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -summaryDefaultDays)
	if from, ok := parseDay(query.Get(r, "from")); ok {
		start = from
	}
	if to, ok := parseDay(query.Get(r, "to")); ok {
		end = to.AddDate(0, 0, 1)
	}
	if !end.After(start) {
		webwrite.Error(w, http.StatusBadRequest, "bad_range", "The to day must not precede the from day.")
		return
	}

	days, err := h.Calls.SummarizeByDay(ctx, start, end, doctorIDs)
	if err != nil {
		h.Log.Error("summarize calls", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if days == nil {
		days = []callstore.DaySummary{}
	}

	webwrite.JSON(w, summaryPage{
		Viewer: viewdata.NewViewer(r),
		Page:   "calls_summary",
		From:   start.Format("2006-01-02"),
		To:     end.AddDate(0, 0, -1).Format("2006-01-02"),
		Days:   days,
	})
}
