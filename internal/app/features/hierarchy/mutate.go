// internal/app/features/hierarchy/mutate.go
package hierarchy

import (
	"context"
	"net/http"
	"strings"
	"time"

	hierarchyusers "github.com/dalemusser/ivrhub/internal/app/store/hierarchyusers"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/txn"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| POST /hierarchy                                                             |
| Create a user under a parent. Derives the denormalized ancestor refs and   |
| writes the mirror relationship edge.                                       |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAdminOrDistributor(w, r, "Only distribution management can add hierarchy users.", "/hierarchy")
	if !res.OK {
		return
	}

	if err := r.ParseForm(); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
		return
	}

	u := models.HierarchyUser{
		ID:             strings.TrimSpace(r.FormValue("id")),
		Email:          normalize.Email(r.FormValue("email")),
		FullName:       normalize.Name(r.FormValue("full_name")),
		Role:           normalize.Role(r.FormValue("role")),
		ParentID:       strings.TrimSpace(r.FormValue("parent_id")),
		TerritoryID:    normalize.TerritoryID(r.FormValue("territory_id")),
		OrganizationID: strings.TrimSpace(r.FormValue("organization_id")),
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	if u.Email == "" || u.FullName == "" {
		webwrite.Error(w, http.StatusBadRequest, "missing_fields", "Email and full name are required.")
		return
	}
	if !models.IsValidHierarchyRole(u.Role) {
		webwrite.Error(w, http.StatusBadRequest, "bad_role", "Unknown hierarchy role.")
		return
	}
	if u.ParentID == "" && u.Role != models.RoleMasterDistributor {
		webwrite.Error(w, http.StatusBadRequest, "root_must_be_master", "Only master distributors may be roots.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if u.ParentID != "" {
		parent, err := h.Svc.Lookup(ctx, u.ParentID)
		if err != nil {
			h.Log.Error("hierarchy create: look up parent", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
		if parent == nil {
			webwrite.Error(w, http.StatusBadRequest, "no_parent", "Parent does not exist.")
			return
		}
		if parent.Role == models.RoleDoctor {
			webwrite.Error(w, http.StatusBadRequest, "doctor_leaf", "Doctors may not have children.")
			return
		}

		ok, err := h.canAccessNode(ctx, r, u.ParentID)
		if err != nil {
			h.Log.Error("hierarchy create: access check", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
		if !ok {
			webwrite.Error(w, http.StatusForbidden, "forbidden", "That parent is outside your downline.")
			return
		}

		refs, err := h.Svc.DeriveRefs(ctx, u.ParentID)
		if err != nil {
			h.Log.Error("hierarchy create: derive refs", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
		u.DistributorID = refs.DistributorID
		u.RegionalDistributorID = refs.RegionalDistributorID
		u.SalesRepID = refs.SalesRepID
	}

	created := u
	err := txn.WithTransaction(ctx, h.Client, func(tc context.Context) error {
		var err error
		created, err = h.Users.Insert(tc, u)
		if err != nil {
			return err
		}
		if u.ParentID == "" {
			return nil
		}
		_, err = h.Edges.Create(tc, models.HierarchyRelationship{
			ParentID:  u.ParentID,
			ChildID:   u.ID,
			Kind:      u.Role,
			CreatedAt: time.Now().UTC(),
		})
		return err
	})
	switch err {
	case nil:
		// created
	case hierarchyusers.ErrDuplicateEmail:
		webwrite.Error(w, http.StatusConflict, "duplicate_email", "That email is already in the hierarchy.")
		return
	case hierarchyusers.ErrDuplicateID:
		webwrite.Error(w, http.StatusConflict, "duplicate_id", "That id is already in use.")
		return
	default:
		h.Log.Error("hierarchy create: insert", zap.Error(err), zap.String("node", u.ID))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.Audit.HierarchyUserCreated(r.Context(), r, res.UserID, res.Role, created.ID, created.Role, created.ParentID)
	webwrite.JSONStatus(w, http.StatusCreated, created)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /hierarchy/{id}/move                                                   |
| Reparent a subtree. The cycle check runs before anything is written;        |
| every moved descendant gets its ancestor refs recomputed.                   |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleMove(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAdminOrDistributor(w, r, "Only distribution management can move hierarchy users.", "/hierarchy")
	if !res.OK {
		return
	}

	if err := r.ParseForm(); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
		return
	}
	id := chi.URLParam(r, "id")
	newParentID := strings.TrimSpace(r.FormValue("parent_id"))

	if newParentID == "" {
		webwrite.Error(w, http.StatusBadRequest, "missing_parent", "A new parent is required.")
		return
	}
	if newParentID == id {
		webwrite.Error(w, http.StatusBadRequest, "cycle", "A user cannot be its own parent.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	node, err := h.Svc.Lookup(ctx, id)
	if err != nil {
		h.Log.Error("hierarchy move: lookup", zap.Error(err), zap.String("node", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if node == nil {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such hierarchy user.")
		return
	}
	oldParentID := node.ParentID

	newParent, err := h.Svc.Lookup(ctx, newParentID)
	if err != nil {
		h.Log.Error("hierarchy move: look up parent", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if newParent == nil {
		webwrite.Error(w, http.StatusBadRequest, "no_parent", "New parent does not exist.")
		return
	}
	if newParent.Role == models.RoleDoctor {
		webwrite.Error(w, http.StatusBadRequest, "doctor_leaf", "Doctors may not have children.")
		return
	}

	// Both ends must be inside the actor's reach.
	for _, nodeID := range []string{id, newParentID} {
		ok, err := h.canAccessNode(ctx, r, nodeID)
		if err != nil {
			h.Log.Error("hierarchy move: access check", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
		if !ok {
			webwrite.Error(w, http.StatusForbidden, "forbidden", "That node is outside your downline.")
			return
		}
	}

	// Moving a node under its own descendant would cut the subtree loose.
	inSubtree, err := h.Svc.IsDescendant(ctx, newParentID, id)
	if err != nil {
		h.Log.Error("hierarchy move: cycle check", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if inSubtree {
		webwrite.Error(w, http.StatusBadRequest, "cycle", "Cannot move a user under its own descendant.")
		return
	}

	err = txn.WithTransaction(ctx, h.Client, func(tc context.Context) error {
		if err := h.placeUnder(tc, id, newParentID); err != nil {
			return err
		}
		if err := h.Edges.Replace(tc, id, newParentID, node.Role); err != nil {
			return err
		}
		return h.reref(tc, id)
	})
	if err != nil {
		h.Log.Error("hierarchy move: apply", zap.Error(err), zap.String("node", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.Audit.HierarchyUserMoved(r.Context(), r, res.UserID, res.Role, id, oldParentID, newParentID)

	moved, err := h.Svc.Lookup(ctx, id)
	if err != nil || moved == nil {
		webwrite.JSON(w, map[string]any{"moved": true})
		return
	}
	webwrite.JSON(w, moved)
}

// placeUnder updates one node's parent link and refs.
func (h *Handler) placeUnder(ctx context.Context, id, parentID string) error {
	refs, err := h.Svc.DeriveRefs(ctx, parentID)
	if err != nil {
		return err
	}
	return h.Users.UpdatePlacement(ctx, id, parentID, refs.DistributorID, refs.RegionalDistributorID, refs.SalesRepID)
}

// reref recomputes ancestor refs for every descendant of id, top-down so
// each child derives from an already-updated parent.
func (h *Handler) reref(ctx context.Context, id string) error {
	children, err := h.Svc.Children(ctx, id)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := h.placeUnder(ctx, c.ID, id); err != nil {
			return err
		}
		if err := h.reref(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| DELETE /hierarchy/{id}                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAdminOrDistributor(w, r, "Only distribution management can remove hierarchy users.", "/hierarchy")
	if !res.OK {
		return
	}
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	node, err := h.Svc.Lookup(ctx, id)
	if err != nil {
		h.Log.Error("hierarchy delete: lookup", zap.Error(err), zap.String("node", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if node == nil {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such hierarchy user.")
		return
	}

	ok, err := h.canAccessNode(ctx, r, id)
	if err != nil {
		h.Log.Error("hierarchy delete: access check", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if !ok {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "That node is outside your downline.")
		return
	}

	children, err := h.Svc.Children(ctx, id)
	if err != nil {
		h.Log.Error("hierarchy delete: children", zap.Error(err), zap.String("node", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if len(children) > 0 {
		webwrite.Error(w, http.StatusConflict, "not_a_leaf", "Move or remove this user's downline first.")
		return
	}

	err = txn.WithTransaction(ctx, h.Client, func(tc context.Context) error {
		if _, err := h.Users.Delete(tc, id); err != nil {
			return err
		}
		_, err := h.Edges.DeleteByChild(tc, id)
		return err
	})
	if err != nil {
		h.Log.Error("hierarchy delete: apply", zap.Error(err), zap.String("node", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.Audit.HierarchyUserDeleted(r.Context(), r, res.UserID, res.Role, id, node.Role)
	webwrite.JSON(w, map[string]any{"deleted": true})
}
