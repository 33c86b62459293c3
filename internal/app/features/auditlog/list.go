// internal/app/features/auditlog/list.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/ivrhub/internal/app/store/audit"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/viewdata"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200

	// reviewWindow is how far back the failed-login and denial views reach
	// by default.
	reviewWindow = 24 * time.Hour
)

// eventView is one audit row with actor and target names resolved.
type eventView struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Category    string            `json:"category"`
	EventType   string            `json:"event_type"`
	ActorName   string            `json:"actor_name,omitempty"`
	TargetName  string            `json:"target_name,omitempty"`
	HierarchyID string            `json:"hierarchy_id,omitempty"`
	TerritoryID string            `json:"territory_id,omitempty"`
	IP          string            `json:"ip,omitempty"`
	Success     bool              `json:"success"`
	Failure     string            `json:"failure_reason,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}

type listPage struct {
	Viewer viewdata.Viewer `json:"viewer"`
	Page   string          `json:"page"`
	Events []eventView     `json:"events"`
	Total  int64           `json:"total"`
	Limit  int64           `json:"limit"`
	Offset int64           `json:"offset"`
}

// parseDay reads a YYYY-MM-DD filter value.
func parseDay(s string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// buildFilter assembles the store filter from the query string. Writes the
// error response itself on bad input.
func buildFilter(w http.ResponseWriter, r *http.Request) (audit.QueryFilter, bool) {
	q := r.URL.Query()
	f := audit.QueryFilter{
		Category:    strings.TrimSpace(q.Get("category")),
		EventType:   strings.TrimSpace(q.Get("event_type")),
		HierarchyID: strings.TrimSpace(q.Get("hierarchy_id")),
		TerritoryID: strings.TrimSpace(q.Get("territory_id")),
		Limit:       defaultPageSize,
	}

	if raw := strings.TrimSpace(q.Get("user_id")); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			webwrite.Error(w, http.StatusBadRequest, "bad_user", "Invalid user id.")
			return audit.QueryFilter{}, false
		}
		f.UserID = &id
	}
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		day, ok := parseDay(raw)
		if !ok {
			webwrite.Error(w, http.StatusBadRequest, "bad_from", "Dates use YYYY-MM-DD.")
			return audit.QueryFilter{}, false
		}
		f.StartTime = &day
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		day, ok := parseDay(raw)
		if !ok {
			webwrite.Error(w, http.StatusBadRequest, "bad_to", "Dates use YYYY-MM-DD.")
			return audit.QueryFilter{}, false
		}
		end := day.Add(24 * time.Hour)
		f.EndTime = &end
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			f.Limit = min(n, maxPageSize)
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			f.Offset = n
		}
	}
	return f, true
}

// resolveNames maps the user ids appearing in the events to account names.
// Deleted accounts show their id so the row stays attributable.
func (h *Handler) resolveNames(ctx context.Context, events []audit.Event) map[string]string {
	names := make(map[string]string)
	for _, ev := range events {
		for _, id := range []*primitive.ObjectID{ev.ActorID, ev.UserID} {
			if id == nil {
				continue
			}
			hex := id.Hex()
			if _, seen := names[hex]; seen {
				continue
			}
			u, err := h.Users.GetByID(ctx, *id)
			if err == mongo.ErrNoDocuments {
				names[hex] = hex
				continue
			}
			if err != nil {
				h.Log.Warn("resolve audit name", zap.String("id", hex), zap.Error(err))
				names[hex] = hex
				continue
			}
			names[hex] = u.FullName
		}
	}
	return names
}

func (h *Handler) render(events []audit.Event, names map[string]string) []eventView {
	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		v := eventView{
			ID:          ev.ID.Hex(),
			Timestamp:   ev.Timestamp,
			Category:    ev.Category,
			EventType:   ev.EventType,
			HierarchyID: ev.HierarchyID,
			TerritoryID: ev.TerritoryID,
			IP:          ev.IP,
			Success:     ev.Success,
			Failure:     ev.FailureReason,
			Details:     ev.Details,
		}
		if ev.ActorID != nil {
			v.ActorName = names[ev.ActorID.Hex()]
		}
		if ev.UserID != nil {
			v.TargetName = names[ev.UserID.Hex()]
		}
		views = append(views, v)
	}
	return views
}

// ServeList handles GET /audit with category/event_type/user/hierarchy/
// territory/date filters and offset paging.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAdmin(w, r, "The audit trail is admin only.", "/dashboard"); !res.OK {
		return
	}

	f, ok := buildFilter(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	total, err := h.Events.CountByFilter(ctx, f)
	if err != nil {
		h.Log.Error("count audit events", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	events, err := h.Events.Query(ctx, f)
	if err != nil {
		h.Log.Error("query audit events", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	webwrite.JSON(w, listPage{
		Viewer: viewdata.NewViewer(r),
		Page:   "audit",
		Events: h.render(events, h.resolveNames(ctx, events)),
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

// ServeFailedLogins handles GET /audit/failed-logins: the last day of failed
// sign-in attempts, for the security review view.
func (h *Handler) ServeFailedLogins(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAdmin(w, r, "The audit trail is admin only.", "/dashboard"); !res.OK {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	since := time.Now().UTC().Add(-reviewWindow)
	events, err := h.Events.GetFailedLogins(ctx, since, maxPageSize)
	if err != nil {
		h.Log.Error("load failed logins", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	webwrite.JSON(w, map[string]any{
		"viewer": viewdata.NewViewer(r),
		"page":   "audit_failed_logins",
		"since":  since,
		"events": h.render(events, h.resolveNames(ctx, events)),
	})
}

// ServeDenials handles GET /audit/denials: recent access-denied events.
func (h *Handler) ServeDenials(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAdmin(w, r, "The audit trail is admin only.", "/dashboard"); !res.OK {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	since := time.Now().UTC().Add(-reviewWindow)
	events, err := h.Events.GetDenials(ctx, since, maxPageSize)
	if err != nil {
		h.Log.Error("load access denials", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	webwrite.JSON(w, map[string]any{
		"viewer": viewdata.NewViewer(r),
		"page":   "audit_denials",
		"since":  since,
		"events": h.render(events, h.resolveNames(ctx, events)),
	})
}
