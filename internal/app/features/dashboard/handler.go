// internal/app/features/dashboard/handler.go
package dashboard

import (
	"net/http"

	calls "github.com/dalemusser/ivrhub/internal/app/store/calls"
	hierarchyusers "github.com/dalemusser/ivrhub/internal/app/store/hierarchyusers"
	orders "github.com/dalemusser/ivrhub/internal/app/store/orders"
	patients "github.com/dalemusser/ivrhub/internal/app/store/patients"
	portalusers "github.com/dalemusser/ivrhub/internal/app/store/portalusers"
	"github.com/dalemusser/ivrhub/internal/app/store/sessions"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/app/system/viewdata"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves the role-dispatched dashboard. Each role sees a summary
// scoped to what it can act on: admins the whole portal, hierarchy roles
// their downline, doctors their own panel.
type Handler struct {
	DB  *mongo.Database
	Log *zap.Logger
	Svc *hierarchy.Service

	Hierarchy *hierarchyusers.Store
	Users     *portalusers.Store
	Patients  *patients.Store
	Orders    *orders.Store
	Calls     *calls.Store
	Sessions  *sessions.Store
}

func NewHandler(db *mongo.Database, svc *hierarchy.Service, logger *zap.Logger) *Handler {
	return &Handler{
		DB:        db,
		Log:       logger,
		Svc:       svc,
		Hierarchy: hierarchyusers.New(db),
		Users:     portalusers.New(db),
		Patients:  patients.New(db),
		Orders:    orders.New(db),
		Calls:     calls.New(db),
		Sessions:  sessions.New(db),
	}
}

type page struct {
	Viewer  viewdata.Viewer `json:"viewer"`
	Portal  viewdata.Portal `json:"portal"`
	Page    string          `json:"page"`
	Role    string          `json:"role"`
	Summary any             `json:"summary"`
}

// ServeDashboard dispatches to the summary builder for the signed-in role.
func (h *Handler) ServeDashboard(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAuth(w, r, "/login"); !res.OK {
		return
	}
	user, _ := auth.CurrentUser(r)

	var (
		summary any
		err     error
	)
	role := normalize.Role(user.Role)
	switch role {
	case models.PortalRoleAdmin:
		summary, err = h.adminSummary(r)
	case models.RoleMasterDistributor, models.RoleDistributor, models.RoleSales:
		summary, err = h.downlineSummary(r, user.HierarchyID)
	case models.RoleDoctor:
		summary, err = h.doctorSummary(r, user.HierarchyID)
	default:
		webwrite.Error(w, http.StatusForbidden, "unknown_role", "Your account role has no dashboard.")
		return
	}
	if err != nil {
		h.Log.Error("build dashboard summary", zap.Error(err), zap.String("role", role))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	webwrite.JSON(w, page{
		Viewer:  viewdata.NewViewer(r),
		Portal:  viewdata.NewPortal(r, h.DB),
		Page:    "dashboard",
		Role:    role,
		Summary: summary,
	})
}
