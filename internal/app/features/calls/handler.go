// internal/app/features/calls/handler.go
package calls

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/ivrhub/internal/app/policy/callpolicy"
	callstore "github.com/dalemusser/ivrhub/internal/app/store/calls"
	"github.com/dalemusser/ivrhub/internal/app/system/auditlog"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/app/system/paging"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/viewdata"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Handler serves the IVR call log. The telephony provider drives call
// lifecycle; the portal lists, summarizes, and exports what was recorded.
// Calls carry the caller's phone number, so the detail view sits behind the
// same downline rule as patients, with unlinked calls visible to admins only.
type Handler struct {
	Log   *zap.Logger
	Svc   *hierarchy.Service
	Calls *callstore.Store
	Audit *auditlog.Logger
}

func NewHandler(db *mongo.Database, svc *hierarchy.Service, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Log:   logger,
		Svc:   svc,
		Calls: callstore.New(db),
		Audit: audit,
	}
}

// parseDay parses a YYYY-MM-DD query value as a UTC day boundary.
func parseDay(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// listFilter builds the scoped base filter from the request's query params.
// Returns ok=false after writing the refusal.
func (h *Handler) listFilter(ctx context.Context, w http.ResponseWriter, r *http.Request) (bson.M, bool) {
	scope, err := callpolicy.CanListCalls(ctx, h.Svc, r)
	if err != nil {
		h.Log.Error("resolve call list scope", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return nil, false
	}
	if !scope.CanList {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "You do not have access to call records.")
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
	if out := normalize.Status(query.Get(r, "outcome")); out != "" {
		if !models.IsValidCallOutcome(out) {
			webwrite.Error(w, http.StatusBadRequest, "bad_outcome", "Unknown call outcome.")
			return nil, false
		}
		base["outcome"] = out
	}

	window := bson.M{}
	if from, ok := parseDay(query.Get(r, "from")); ok {
		window["$gte"] = from
	}
	if to, ok := parseDay(query.Get(r, "to")); ok {
		window["$lt"] = to.AddDate(0, 0, 1)
	}
	if len(window) > 0 {
		base["started_at"] = window
	}
	return base, true
}

type listPage struct {
	Viewer     viewdata.Viewer `json:"viewer"`
	Page       string          `json:"page"`
	Calls      []models.Call   `json:"calls"`
	Total      int64           `json:"total"`
	HasPrev    bool            `json:"has_prev"`
	HasNext    bool            `json:"has_next"`
	PrevCursor string          `json:"prev_cursor,omitempty"`
	NextCursor string          `json:"next_cursor,omitempty"`
	RangeStart int             `json:"range_start"`
	RangeEnd   int             `json:"range_end"`
}

// ServeList handles GET /calls (?doctor=, ?outcome=, ?from=/?to= UTC days,
// ?after=/?before= keyset cursors). The log reads newest first; start times
// are not unique, so the cursor pairs the start instant with the record id.
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

	total, err := h.Calls.Count(ctx, base)
	if err != nil {
		h.Log.Error("count calls", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	// Newest first, so the forward direction walks toward older calls.
	sortOrder := -1
	windowOp := "$lt"
	cursorParam := after
	if before != "" {
		sortOrder = 1
		windowOp = "$gt"
		cursorParam = before
	}

	filter := base
	if cur, ok := wafflemongo.DecodeCursor(cursorParam); ok {
		if at, err := time.Parse(time.RFC3339Nano, cur.CI); err == nil {
			window := bson.M{"$or": []bson.M{
				{"started_at": bson.M{windowOp: at}},
				{"started_at": at, "_id": bson.M{windowOp: cur.ID}},
			}}
			filter = bson.M{"$and": []bson.M{base, window}}
		}
	}

	find := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: sortOrder}, {Key: "_id", Value: sortOrder}}).
		SetLimit(paging.LimitPlusOne())

	rows, err := h.Calls.Find(ctx, filter, find)
	if err != nil {
		h.Log.Error("find calls", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	if before != "" {
		paging.Reverse(rows)
	}
	pageInfo := paging.TrimPage(&rows, before, after)
	rng := paging.ComputeRange(start, len(rows))

	prevCur, nextCur := paging.BuildCursors(rows,
		func(c models.Call) string { return c.StartedAt.UTC().Format(time.RFC3339Nano) },
		func(c models.Call) primitive.ObjectID { return c.ID })

	webwrite.JSON(w, listPage{
		Viewer:     viewdata.NewViewer(r),
		Page:       "calls",
		Calls:      rows,
		Total:      total,
		HasPrev:    pageInfo.HasPrev,
		HasNext:    pageInfo.HasNext,
		PrevCursor: prevCur,
		NextCursor: nextCur,
		RangeStart: rng.Start,
		RangeEnd:   rng.End,
	})
}

// ServeDetail handles GET /calls/{id}.
func (h *Handler) ServeDetail(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAuth(w, r, "/login"); !res.OK {
		return
	}

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such call.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	call, err := h.Calls.GetByID(ctx, id)
	if err == mongo.ErrNoDocuments {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such call.")
		return
	}
	if err != nil {
		h.Log.Error("load call", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	ok, err := callpolicy.CanViewCall(ctx, h.Svc, r, call.DoctorID)
	if err != nil {
		h.Log.Error("check call access", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if !ok {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "That call is outside your downline.")
		return
	}

	webwrite.JSON(w, map[string]any{"call": call})
}
