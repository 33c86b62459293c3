// internal/app/features/api/hierarchy.go
package api

import (
	"context"
	"net/http"

	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ServeRoots handles GET /api/v1/hierarchy: the top-level master
// distributors.
func (h *Handler) ServeRoots(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	roots, err := h.Svc.Roots(ctx)
	if err != nil {
		h.Log.Error("list hierarchy roots", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if roots == nil {
		roots = []models.HierarchyUser{}
	}
	webwrite.JSON(w, map[string]any{"roots": roots})
}

// ServeNode handles GET /api/v1/hierarchy/{id}: the node with its ancestor
// path and direct children.
func (h *Handler) ServeNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	node, err := h.Svc.Lookup(ctx, id)
	if err != nil {
		h.Log.Error("lookup hierarchy node", zap.Error(err), zap.String("id", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if node == nil {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such hierarchy user.")
		return
	}

	path, err := h.Svc.AncestorPath(ctx, id)
	if err != nil {
		h.Log.Error("hierarchy ancestor path", zap.Error(err), zap.String("id", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	children, err := h.Svc.Children(ctx, id)
	if err != nil {
		h.Log.Error("hierarchy children", zap.Error(err), zap.String("id", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if children == nil {
		children = []models.HierarchyUser{}
	}

	webwrite.JSON(w, map[string]any{
		"node":     node,
		"path":     path,
		"children": children,
	})
}

// ServeDescendants handles GET /api/v1/hierarchy/{id}/descendants: the full
// subtree below the node, excluding the node itself.
func (h *Handler) ServeDescendants(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	node, err := h.Svc.Lookup(ctx, id)
	if err != nil {
		h.Log.Error("lookup hierarchy node", zap.Error(err), zap.String("id", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if node == nil {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such hierarchy user.")
		return
	}

	desc, err := h.Svc.Descendants(ctx, id)
	if err != nil {
		h.Log.Error("hierarchy descendants", zap.Error(err), zap.String("id", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if desc == nil {
		desc = []models.HierarchyUser{}
	}
	webwrite.JSON(w, map[string]any{"id": id, "descendants": desc})
}

// ServeDoctors handles GET /api/v1/hierarchy/{id}/doctors: the doctors in
// the node's downline.
func (h *Handler) ServeDoctors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	node, err := h.Svc.Lookup(ctx, id)
	if err != nil {
		h.Log.Error("lookup hierarchy node", zap.Error(err), zap.String("id", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if node == nil {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such hierarchy user.")
		return
	}

	doctors, err := h.Svc.DoctorsInDownline(ctx, id)
	if err != nil {
		h.Log.Error("hierarchy downline doctors", zap.Error(err), zap.String("id", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if doctors == nil {
		doctors = []models.HierarchyUser{}
	}
	webwrite.JSON(w, map[string]any{"id": id, "doctors": doctors})
}
