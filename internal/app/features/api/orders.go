// internal/app/features/api/orders.go
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	defaultOrderLimit = 100
	maxOrderLimit     = 500
)

// ServeTerritoryOrders handles GET /api/v1/territories/{id}/orders. The
// guard has already checked that the token holds this territory; the
// handler only filters and pages. Orders reference patients by record id
// only, so the response carries no PHI.
func (h *Handler) ServeTerritoryOrders(w http.ResponseWriter, r *http.Request) {
	territoryID := normalize.TerritoryID(chi.URLParam(r, "id"))

	filter := bson.M{"territory_id": territoryID}
	if st := normalize.Status(r.URL.Query().Get("status")); st != "" {
		if !models.IsValidOrderStatus(st) {
			webwrite.Error(w, http.StatusBadRequest, "bad_status", "Unknown order status.")
			return
		}
		filter["status"] = st
	}

	limit := int64(defaultOrderLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			webwrite.Error(w, http.StatusBadRequest, "bad_limit", "The limit must be a positive number.")
			return
		}
		limit = min(n, maxOrderLimit)
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	total, err := h.Orders.Count(ctx, filter)
	if err != nil {
		h.Log.Error("count territory orders", zap.Error(err), zap.String("territory", territoryID))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	find := options.Find().
		SetSort(bson.D{{Key: "order_number", Value: -1}}).
		SetLimit(limit)
	rows, err := h.Orders.Find(ctx, filter, find)
	if err != nil {
		h.Log.Error("find territory orders", zap.Error(err), zap.String("territory", territoryID))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if rows == nil {
		rows = []models.Order{}
	}

	webwrite.JSON(w, map[string]any{
		"territory_id": territoryID,
		"orders":       rows,
		"total":        total,
	})
}
