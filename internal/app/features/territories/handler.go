// internal/app/features/territories/handler.go
package territories

import (
	"context"
	"encoding/base64"
	"net/http"

	territorystore "github.com/dalemusser/ivrhub/internal/app/store/territories"
	hierarchyusers "github.com/dalemusser/ivrhub/internal/app/store/hierarchyusers"
	"github.com/dalemusser/ivrhub/internal/app/system/auditlog"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/paging"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/viewdata"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Handler manages territory records. Territories partition the sales
// hierarchy geographically; orders and hierarchy users reference them by id.
// Reads are open to admins and distributor roles, writes are admin only.
type Handler struct {
	Log         *zap.Logger
	Territories *territorystore.Store
	Hierarchy   *hierarchyusers.Store
	Audit       *auditlog.Logger
}

func NewHandler(db *mongo.Database, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Log:         logger,
		Territories: territorystore.New(db),
		Hierarchy:   hierarchyusers.New(db),
		Audit:       audit,
	}
}

// Territory names are CI-unique, so name_ci alone is a total sort key and
// the page cursor is just the folded name, base64 wrapped to keep it opaque.
func encodeCursor(nameCI string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(nameCI))
}

func decodeCursor(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(b) == 0 {
		return "", false
	}
	return string(b), true
}

type listPage struct {
	Viewer      viewdata.Viewer    `json:"viewer"`
	Page        string             `json:"page"`
	Territories []models.Territory `json:"territories"`
	Total       int64              `json:"total"`
	Query       string             `json:"query,omitempty"`
	HasPrev     bool               `json:"has_prev"`
	HasNext     bool               `json:"has_next"`
	PrevCursor  string             `json:"prev_cursor,omitempty"`
	NextCursor  string             `json:"next_cursor,omitempty"`
	RangeStart  int                `json:"range_start"`
	RangeEnd    int                `json:"range_end"`
}

// ServeList handles GET /territories (with optional ?q= name search and
// keyset cursors ?after= / ?before=).
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAdminOrDistributor(w, r, "Territories are not available for your role.", "/dashboard"); !res.OK {
		return
	}

	q := query.Search(r, "q")
	after := query.Get(r, "after")
	before := query.Get(r, "before")
	start := paging.ParseStart(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	base := bson.M{}
	if fq := text.Fold(q); fq != "" {
		base["name_ci"] = bson.M{"$gte": fq, "$lt": fq + "\uffff"}
	}

	total, err := h.Territories.Count(ctx, base)
	if err != nil {
		h.Log.Error("count territories", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	sortOrder := 1
	windowOp := "$gt"
	cursorParam := after
	if before != "" {
		sortOrder = -1
		windowOp = "$lt"
		cursorParam = before
	}

	filter := base
	if cur, ok := decodeCursor(cursorParam); ok {
		window := bson.M{"name_ci": bson.M{windowOp: cur}}
		if _, searching := base["name_ci"]; searching {
			filter = bson.M{"$and": []bson.M{base, window}}
		} else {
			filter = bson.M{"name_ci": window["name_ci"]}
		}
	}

	find := options.Find().
		SetSort(bson.D{{Key: "name_ci", Value: sortOrder}}).
		SetLimit(paging.LimitPlusOne())

	rows, err := h.Territories.Find(ctx, filter, find)
	if err != nil {
		h.Log.Error("find territories", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	if before != "" {
		paging.Reverse(rows)
	}
	pageInfo := paging.TrimPage(&rows, before, after)
	rng := paging.ComputeRange(start, len(rows))

	prevCur, nextCur := "", ""
	if len(rows) > 0 {
		prevCur = encodeCursor(rows[0].NameCI)
		nextCur = encodeCursor(rows[len(rows)-1].NameCI)
	}

	webwrite.JSON(w, listPage{
		Viewer:      viewdata.NewViewer(r),
		Page:        "territories",
		Territories: rows,
		Total:       total,
		Query:       q,
		HasPrev:     pageInfo.HasPrev,
		HasNext:     pageInfo.HasNext,
		PrevCursor:  prevCur,
		NextCursor:  nextCur,
		RangeStart:  rng.Start,
		RangeEnd:    rng.End,
	})
}

type detailView struct {
	Territory     models.Territory `json:"territory"`
	AssignedUsers int64            `json:"assigned_users"`
}

// ServeDetail handles GET /territories/{id}.
func (h *Handler) ServeDetail(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAdminOrDistributor(w, r, "Territories are not available for your role.", "/dashboard"); !res.OK {
		return
	}
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	terr, err := h.Territories.GetByID(ctx, id)
	if err == mongo.ErrNoDocuments {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such territory.")
		return
	}
	if err != nil {
		h.Log.Error("load territory", zap.Error(err), zap.String("id", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	assigned, err := h.Hierarchy.Count(ctx, bson.M{"territory_id": id})
	if err != nil {
		h.Log.Error("count territory users", zap.Error(err), zap.String("id", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	webwrite.JSON(w, detailView{Territory: terr, AssignedUsers: assigned})
}
