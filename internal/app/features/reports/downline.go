// internal/app/features/reports/downline.go
package reports

import (
	"context"
	"net/http"

	"github.com/dalemusser/ivrhub/internal/app/policy/reportpolicy"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/viewdata"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

type rollupNode struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type subtreeRollup struct {
	Node     rollupNode `json:"node"`
	Doctors  int64      `json:"doctors"`
	Patients int64      `json:"patients"`
	Orders   int64      `json:"orders"`
	Calls    int64      `json:"calls"`
}

type downlinePage struct {
	Viewer   viewdata.Viewer `json:"viewer"`
	Page     string          `json:"page"`
	Total    subtreeRollup   `json:"total"`
	Subtrees []subtreeRollup `json:"subtrees"`
}

// doctorIDsForSubtree returns the doctor ids the rollup for the given node
// counts over. The node itself is included when it is a doctor; the downline
// walk alone would miss a leaf's own numbers.
func (h *Handler) doctorIDsForSubtree(ctx context.Context, node models.HierarchyUser) ([]string, error) {
	doctors, err := h.Svc.DoctorsInDownline(ctx, node.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(doctors)+1)
	if node.Role == models.RoleDoctor {
		ids = append(ids, node.ID)
	}
	for _, d := range doctors {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// rollup counts doctors, patients, orders, and calls over the given doctor
// set. A nil set means unscoped (the admin's whole-portal row).
func (h *Handler) rollup(ctx context.Context, node rollupNode, doctorIDs []string, unscoped bool) (subtreeRollup, error) {
	out := subtreeRollup{Node: node}

	filter := bson.M{}
	if !unscoped {
		out.Doctors = int64(len(doctorIDs))
		if len(doctorIDs) == 0 {
			return out, nil
		}
		filter = bson.M{"doctor_id": bson.M{"$in": doctorIDs}}
	}

	var err error
	if out.Patients, err = h.Patients.Count(ctx, filter); err != nil {
		return out, err
	}
	if out.Orders, err = h.Orders.Count(ctx, filter); err != nil {
		return out, err
	}
	if out.Calls, err = h.Calls.Count(ctx, filter); err != nil {
		return out, err
	}
	return out, nil
}

// ServeDownline handles GET /reports/downline: one rollup row for the
// caller's whole scope and one per immediate child subtree.
func (h *Handler) ServeDownline(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAuth(w, r, "/login"); !res.OK {
		return
	}

	scope := reportpolicy.CanViewReports(r)
	if !scope.CanView {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "Reports are not available for your account.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	var (
		total    subtreeRollup
		branches []models.HierarchyUser
	)

	if scope.AllHierarchy {
		t, err := h.adminTotal(ctx)
		if err != nil {
			h.Log.Error("build downline report", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
		total = t
		// Admin rows break down by root distributor.
		branches, err = h.Svc.Roots(ctx)
		if err != nil {
			h.Log.Error("build downline report", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
	} else {
		root, err := h.Svc.Lookup(ctx, scope.RootID)
		if err != nil {
			h.Log.Error("build downline report", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
		if root == nil {
			webwrite.Error(w, http.StatusForbidden, "forbidden", "Your account is not linked to the hierarchy.")
			return
		}
		ids, err := h.doctorIDsForSubtree(ctx, *root)
		if err == nil {
			node := rollupNode{ID: root.ID, Name: root.FullName, Role: root.Role}
			if total, err = h.rollup(ctx, node, ids, false); err == nil {
				branches, err = h.Svc.Children(ctx, root.ID)
			}
		}
		if err != nil {
			h.Log.Error("build downline report", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
	}

	subtrees := make([]subtreeRollup, 0, len(branches))
	for _, child := range branches {
		ids, err := h.doctorIDsForSubtree(ctx, child)
		if err != nil {
			h.Log.Error("walk subtree for report", zap.Error(err), zap.String("node", child.ID))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
		row, err := h.rollup(ctx, rollupNode{ID: child.ID, Name: child.FullName, Role: child.Role}, ids, false)
		if err != nil {
			h.Log.Error("count subtree for report", zap.Error(err), zap.String("node", child.ID))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
		subtrees = append(subtrees, row)
	}

	webwrite.JSON(w, downlinePage{
		Viewer:   viewdata.NewViewer(r),
		Page:     "reports_downline",
		Total:    total,
		Subtrees: subtrees,
	})
}

// adminTotal builds the unscoped whole-portal row. Doctor counts come from
// walking each root subtree; the record counts are unfiltered.
func (h *Handler) adminTotal(ctx context.Context) (subtreeRollup, error) {
	total, err := h.rollup(ctx, rollupNode{Name: "All"}, nil, true)
	if err != nil {
		return total, err
	}
	roots, err := h.Svc.Roots(ctx)
	if err != nil {
		return total, err
	}
	for _, root := range roots {
		ids, err := h.doctorIDsForSubtree(ctx, root)
		if err != nil {
			return total, err
		}
		total.Doctors += int64(len(ids))
	}
	return total, nil
}
