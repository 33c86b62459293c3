// internal/app/features/portalusers/handler.go
package portalusers

import (
	"context"
	"maps"
	"net/http"

	userstore "github.com/dalemusser/ivrhub/internal/app/store/portalusers"
	"github.com/dalemusser/ivrhub/internal/app/system/auditlog"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/app/system/paging"
	"github.com/dalemusser/ivrhub/internal/app/system/search"
	"github.com/dalemusser/ivrhub/internal/app/system/status"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/viewdata"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Handler manages portal accounts. Account administration is admin-only;
// the claims recorded here (role, territories, PHI access, MFA) are what the
// access guard evaluates on every request.
type Handler struct {
	Log   *zap.Logger
	Users *userstore.Store
	Svc   *hierarchy.Service
	Audit *auditlog.Logger
}

func NewHandler(db *mongo.Database, svc *hierarchy.Service, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Log:   logger,
		Users: userstore.New(db),
		Svc:   svc,
		Audit: audit,
	}
}

type listPage struct {
	Viewer     viewdata.Viewer     `json:"viewer"`
	Page       string              `json:"page"`
	Accounts   []models.PortalUser `json:"accounts"`
	Total      int64               `json:"total"`
	Query      string              `json:"query,omitempty"`
	HasPrev    bool                `json:"has_prev"`
	HasNext    bool                `json:"has_next"`
	PrevCursor string              `json:"prev_cursor,omitempty"`
	NextCursor string              `json:"next_cursor,omitempty"`
	RangeStart int                 `json:"range_start"`
	RangeEnd   int                 `json:"range_end"`
}

// ServeList handles GET /portal-users (?q= name/email prefix, ?role=,
// ?status=, keyset cursors ?after=/?before=).
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAdmin(w, r, "Account administration is admin only.", "/dashboard"); !res.OK {
		return
	}

	q := query.Search(r, "q")
	after := query.Get(r, "after")
	before := query.Get(r, "before")
	start := paging.ParseStart(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	base := bson.M{}
	if role := normalize.Role(query.Get(r, "role")); role != "" {
		if !models.IsValidPortalRole(role) {
			webwrite.Error(w, http.StatusBadRequest, "bad_role", "Unknown account role.")
			return
		}
		base["role"] = role
	}
	statusFilter := normalize.Status(query.Get(r, "status"))
	if statusFilter != "" {
		if !status.IsValid(statusFilter) {
			webwrite.Error(w, http.StatusBadRequest, "bad_status", "Unknown account status.")
			return
		}
		base["status"] = statusFilter
	}

	// An email-shaped query with a constrained status pivots the sort to
	// the email index, so the prefix match and the page window walk the
	// same indexed path.
	pivot := search.EmailPivotUnscopedOK(q, statusFilter)

	var searchClause bson.M
	if fq := text.Fold(q); fq != "" {
		if pivot {
			searchClause = bson.M{"email_ci": bson.M{"$gte": fq, "$lt": fq + "\uffff"}}
		} else {
			searchClause = bson.M{"$or": []bson.M{
				{"full_name_ci": bson.M{"$gte": fq, "$lt": fq + "\uffff"}},
				{"email_ci": bson.M{"$gte": fq, "$lt": fq + "\uffff"}},
			}}
		}
		maps.Copy(base, searchClause)
	}

	total, err := h.Users.Count(ctx, base)
	if err != nil {
		h.Log.Error("count portal users", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	sortField := "full_name_ci"
	keyFn := func(u models.PortalUser) string { return u.FullNameCI }
	if pivot {
		sortField = "email_ci"
		keyFn = func(u models.PortalUser) string { return u.EmailCI }
	}
	cfg := paging.ConfigureKeyset(before, after)
	find := options.Find()
	cfg.ApplyToFind(find, sortField)

	f := maps.Clone(base)
	if ks := cfg.KeysetWindow(sortField); ks != nil {
		if _, collides := searchClause["$or"]; collides {
			delete(f, "$or")
			f = bson.M{"$and": []bson.M{f, searchClause, ks}}
		} else {
			maps.Copy(f, ks)
		}
	}

	rows, err := h.Users.Find(ctx, f, find)
	if err != nil {
		h.Log.Error("find portal users", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	if cfg.Direction == paging.Backward {
		paging.Reverse(rows)
	}
	pageInfo := paging.TrimPage(&rows, before, after)
	rng := paging.ComputeRange(start, len(rows))

	prevCur, nextCur := paging.BuildCursors(rows, keyFn,
		func(u models.PortalUser) primitive.ObjectID { return u.ID })

	webwrite.JSON(w, listPage{
		Viewer:     viewdata.NewViewer(r),
		Page:       "portal_users",
		Accounts:   rows,
		Total:      total,
		Query:      q,
		HasPrev:    pageInfo.HasPrev,
		HasNext:    pageInfo.HasNext,
		PrevCursor: prevCur,
		NextCursor: nextCur,
		RangeStart: rng.Start,
		RangeEnd:   rng.End,
	})
}

// ServeDetail handles GET /portal-users/{id}.
func (h *Handler) ServeDetail(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAdmin(w, r, "Account administration is admin only.", "/dashboard"); !res.OK {
		return
	}

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such account.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err == mongo.ErrNoDocuments {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such account.")
		return
	}
	if err != nil {
		h.Log.Error("load portal user", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	webwrite.JSON(w, map[string]any{"account": u})
}
