// internal/app/features/orders/handler.go
package orders

import (
	"context"
	"maps"
	"net/http"
	"strings"

	"github.com/dalemusser/ivrhub/internal/app/policy/orderpolicy"
	orderstore "github.com/dalemusser/ivrhub/internal/app/store/orders"
	patientstore "github.com/dalemusser/ivrhub/internal/app/store/patients"
	"github.com/dalemusser/ivrhub/internal/app/system/auditlog"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/app/system/paging"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/viewdata"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Handler serves product orders. Orders carry no PHI beyond the patient's
// record id, so they sit behind the downline scope rather than the PHI
// claim; patient details stay on the patients routes.
type Handler struct {
	Log      *zap.Logger
	Svc      *hierarchy.Service
	Orders   *orderstore.Store
	Patients *patientstore.Store
	Audit    *auditlog.Logger
}

func NewHandler(db *mongo.Database, svc *hierarchy.Service, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Log:      logger,
		Svc:      svc,
		Orders:   orderstore.New(db),
		Patients: patientstore.New(db),
		Audit:    audit,
	}
}

// listFilter builds the scoped base filter from the request's query params.
// Returns ok=false after writing the refusal.
func (h *Handler) listFilter(ctx context.Context, w http.ResponseWriter, r *http.Request) (bson.M, bool) {
	scope, err := orderpolicy.CanListOrders(ctx, h.Svc, r)
	if err != nil {
		h.Log.Error("resolve order list scope", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return nil, false
	}
	if !scope.CanList {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "You do not have access to orders.")
		return nil, false
	}

	base := bson.M{}
	if !scope.AllDoctors {
		base["doctor_id"] = bson.M{"$in": scope.DoctorIDs}
	}

	if doctorID := query.Get(r, "doctor"); doctorID != "" {
		if !scope.Allows(doctorID) {
			webwrite.Error(w, http.StatusForbidden, "forbidden", "That doctor is outside your downline.")
			return nil, false
		}
		base["doctor_id"] = doctorID
	}
	if st := normalize.Status(query.Get(r, "status")); st != "" {
		if !models.IsValidOrderStatus(st) {
			webwrite.Error(w, http.StatusBadRequest, "bad_status", "Unknown order status.")
			return nil, false
		}
		base["status"] = st
	}
	if terr := normalize.TerritoryID(query.Get(r, "territory")); terr != "" {
		base["territory_id"] = terr
	}
	return base, true
}

type listPage struct {
	Viewer     viewdata.Viewer `json:"viewer"`
	Page       string          `json:"page"`
	Orders     []models.Order  `json:"orders"`
	Total      int64           `json:"total"`
	HasPrev    bool            `json:"has_prev"`
	HasNext    bool            `json:"has_next"`
	PrevCursor string          `json:"prev_cursor,omitempty"`
	NextCursor string          `json:"next_cursor,omitempty"`
	RangeStart int             `json:"range_start"`
	RangeEnd   int             `json:"range_end"`
}

// ServeList handles GET /orders (?status=, ?doctor=, ?territory=,
// ?after=/?before= keyset cursors). Order numbers are unique and allocated
// chronologically, so they double as the keyset sort key.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAuth(w, r, "/login"); !res.OK {
		return
	}

	after := query.Get(r, "after")
	before := query.Get(r, "before")
	start := paging.ParseStart(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	base, ok := h.listFilter(ctx, w, r)
	if !ok {
		return
	}

	total, err := h.Orders.Count(ctx, base)
	if err != nil {
		h.Log.Error("count orders", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	sortField := "order_number"
	cfg := paging.ConfigureKeyset(before, after)
	find := options.Find()
	cfg.ApplyToFind(find, sortField)

	f := maps.Clone(base)
	if ks := cfg.KeysetWindow(sortField); ks != nil {
		maps.Copy(f, ks)
	}

	rows, err := h.Orders.Find(ctx, f, find)
	if err != nil {
		h.Log.Error("find orders", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	if cfg.Direction == paging.Backward {
		paging.Reverse(rows)
	}
	pageInfo := paging.TrimPage(&rows, before, after)
	rng := paging.ComputeRange(start, len(rows))

	prevCur, nextCur := paging.BuildCursors(rows,
		func(o models.Order) string { return o.OrderNumber },
		func(o models.Order) primitive.ObjectID { return o.ID })

	webwrite.JSON(w, listPage{
		Viewer:     viewdata.NewViewer(r),
		Page:       "orders",
		Orders:     rows,
		Total:      total,
		HasPrev:    pageInfo.HasPrev,
		HasNext:    pageInfo.HasNext,
		PrevCursor: prevCur,
		NextCursor: nextCur,
		RangeStart: rng.Start,
		RangeEnd:   rng.End,
	})
}

// ServeDetail handles GET /orders/{id}. The id may be the Mongo id or the
// human-facing order number.
func (h *Handler) ServeDetail(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAuth(w, r, "/login"); !res.OK {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	o, found, err := h.lookupOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.Log.Error("load order", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if !found {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such order.")
		return
	}

	ok, err := orderpolicy.CanViewOrder(ctx, h.Svc, r, o.DoctorID, o.TerritoryID)
	if err != nil {
		h.Log.Error("check order access", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if !ok {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "That order is outside your downline.")
		return
	}

	webwrite.JSON(w, map[string]any{"order": o})
}

func (h *Handler) lookupOrder(ctx context.Context, key string) (models.Order, bool, error) {
	key = strings.TrimSpace(key)
	if id, err := primitive.ObjectIDFromHex(key); err == nil {
		o, err := h.Orders.GetByID(ctx, id)
		if err == mongo.ErrNoDocuments {
			return models.Order{}, false, nil
		}
		if err != nil {
			return models.Order{}, false, err
		}
		return o, true, nil
	}
	o, err := h.Orders.GetByOrderNumber(ctx, strings.ToUpper(key))
	if err != nil {
		return models.Order{}, false, err
	}
	if o == nil {
		return models.Order{}, false, nil
	}
	return *o, true, nil
}
