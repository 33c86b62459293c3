// internal/app/features/hierarchy/handler.go
package hierarchy

import (
	"context"
	"net/http"

	hierarchyusers "github.com/dalemusser/ivrhub/internal/app/store/hierarchyusers"
	relationships "github.com/dalemusser/ivrhub/internal/app/store/relationships"
	"github.com/dalemusser/ivrhub/internal/app/system/auditlog"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/app/system/authz"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	hiersvc "github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler exposes the distribution network: traversal for the roles that
// manage it, mutations for placing and moving nodes, and the integrity
// report for admins.
type Handler struct {
	Log    *zap.Logger
	Client *mongo.Client
	Svc    *hiersvc.Service

	Users *hierarchyusers.Store
	Edges *relationships.Store
	Audit *auditlog.Logger
}

func NewHandler(db *mongo.Database, svc *hiersvc.Service, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Log:    logger,
		Client: db.Client(),
		Svc:    svc,
		Users:  hierarchyusers.New(db),
		Edges:  relationships.New(db),
		Audit:  audit,
	}
}

// canAccessNode reports whether the signed-in user may read or mutate the
// node: admins anywhere, hierarchy roles within their own subtree (their
// own node included).
func (h *Handler) canAccessNode(ctx context.Context, r *http.Request, nodeID string) (bool, error) {
	if authz.IsAdmin(r) {
		return true, nil
	}
	own := authz.HierarchyID(r)
	if own == "" {
		return false, nil
	}
	if own == nodeID {
		return true, nil
	}
	return h.Svc.IsDescendant(ctx, nodeID, own)
}

type nodeView struct {
	Node     *models.HierarchyUser  `json:"node"`
	Path     []models.HierarchyUser `json:"path"` // root first, node last
	Children []models.HierarchyUser `json:"children"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /hierarchy                                                              |
| The caller's own subtree root: admins see role counts instead.              |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeIndex(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAdminOrDistributor(w, r, "Only distribution management can browse the hierarchy.", "/dashboard")
	if !res.OK {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if authz.IsAdmin(r) {
		counts, err := h.Users.CountByRole(ctx)
		if err != nil {
			h.Log.Error("hierarchy index: count by role", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
		webwrite.JSON(w, map[string]any{"by_role": counts})
		return
	}

	user, _ := auth.CurrentUser(r)
	h.writeNode(w, r, ctx, user.HierarchyID)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /hierarchy/{id}                                                         |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeNode(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAdminOrDistributor(w, r, "Only distribution management can browse the hierarchy.", "/dashboard")
	if !res.OK {
		return
	}
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	ok, err := h.canAccessNode(ctx, r, id)
	if err != nil {
		h.Log.Error("hierarchy node: access check", zap.Error(err), zap.String("node", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if !ok {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "That node is outside your downline.")
		return
	}

	h.writeNode(w, r, ctx, id)
}

func (h *Handler) writeNode(w http.ResponseWriter, r *http.Request, ctx context.Context, id string) {
	node, err := h.Svc.Lookup(ctx, id)
	if err != nil {
		h.Log.Error("hierarchy node: lookup", zap.Error(err), zap.String("node", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if node == nil {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such hierarchy user.")
		return
	}

	path, err := h.Svc.AncestorPath(ctx, id)
	if err != nil {
		h.Log.Error("hierarchy node: ancestor path", zap.Error(err), zap.String("node", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	children, err := h.Svc.Children(ctx, id)
	if err != nil {
		h.Log.Error("hierarchy node: children", zap.Error(err), zap.String("node", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	webwrite.JSON(w, nodeView{Node: node, Path: path, Children: children})
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /hierarchy/{id}/descendants and /hierarchy/{id}/doctors                 |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeDescendants(w http.ResponseWriter, r *http.Request) {
	h.serveSubtree(w, r, h.Svc.Descendants)
}

func (h *Handler) ServeDoctors(w http.ResponseWriter, r *http.Request) {
	h.serveSubtree(w, r, h.Svc.DoctorsInDownline)
}

func (h *Handler) serveSubtree(w http.ResponseWriter, r *http.Request, fetch func(context.Context, string) ([]models.HierarchyUser, error)) {
	res := gates.RequireAdminOrDistributor(w, r, "Only distribution management can browse the hierarchy.", "/dashboard")
	if !res.OK {
		return
	}
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	ok, err := h.canAccessNode(ctx, r, id)
	if err != nil {
		h.Log.Error("hierarchy subtree: access check", zap.Error(err), zap.String("node", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if !ok {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "That node is outside your downline.")
		return
	}

	users, err := fetch(ctx, id)
	if err != nil {
		h.Log.Error("hierarchy subtree: fetch", zap.Error(err), zap.String("node", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	webwrite.JSON(w, map[string]any{"users": users, "count": len(users)})
}
