// internal/app/features/hierarchy/verify.go
package hierarchy

import (
	"context"
	"net/http"

	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	hiersvc "github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"go.uber.org/zap"
)

type verifyReport struct {
	OK           bool     `json:"ok"`
	CheckedUsers int      `json:"checked_users"`
	CheckedEdges int      `json:"checked_edges"`
	Problems     []string `json:"problems"`
}

// ServeVerify runs the integrity sweep over the whole forest: cycles,
// doctor-leaf violations, non-master roots, ref drift, dangling edges.
func (h *Handler) ServeVerify(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAdmin(w, r, "Only admins can run the integrity report.", "/dashboard"); !res.OK {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	users, err := h.Users.All(ctx)
	if err != nil {
		h.Log.Error("hierarchy verify: load users", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	edges, err := h.Edges.All(ctx)
	if err != nil {
		h.Log.Error("hierarchy verify: load edges", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	problems := hiersvc.Verify(users, edges)
	report := verifyReport{
		OK:           len(problems) == 0,
		CheckedUsers: len(users),
		CheckedEdges: len(edges),
		Problems:     make([]string, 0, len(problems)),
	}
	for _, p := range problems {
		report.Problems = append(report.Problems, p.String())
	}

	webwrite.JSON(w, report)
}
