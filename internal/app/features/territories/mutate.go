// internal/app/features/territories/mutate.go
package territories

import (
	"context"
	"net/http"
	"strings"

	territorystore "github.com/dalemusser/ivrhub/internal/app/store/territories"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/app/system/status"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/timezones"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// HandleCreate handles POST /territories.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAdmin(w, r, "Only admins can manage territories.", "/territories")
	if !res.OK {
		return
	}

	if err := r.ParseForm(); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
		return
	}

	terr := models.Territory{
		ID:       normalize.TerritoryID(r.FormValue("id")),
		Name:     normalize.Name(r.FormValue("name")),
		Code:     strings.ToUpper(strings.TrimSpace(r.FormValue("code"))),
		State:    strings.ToUpper(strings.TrimSpace(r.FormValue("state"))),
		TimeZone: strings.TrimSpace(r.FormValue("time_zone")),
		Status:   normalize.Status(r.FormValue("status")),
	}

	if terr.Name == "" {
		webwrite.Error(w, http.StatusBadRequest, "missing_name", "Territory name is required.")
		return
	}
	if terr.Status != "" && !status.IsValid(terr.Status) {
		webwrite.Error(w, http.StatusBadRequest, "bad_status", "Unknown status.")
		return
	}
	if terr.TimeZone != "" && !timezones.Valid(terr.TimeZone) {
		webwrite.Error(w, http.StatusBadRequest, "bad_time_zone", "Unknown time zone.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	created, err := h.Territories.Create(ctx, terr)
	if err == territorystore.ErrDuplicateTerritory {
		webwrite.Error(w, http.StatusConflict, "duplicate_territory", "A territory with this name already exists.")
		return
	}
	if err != nil {
		h.Log.Error("create territory", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.Audit.TerritoryCreated(r.Context(), r, res.UserID, created.ID, res.Role, created.Name)
	webwrite.JSONStatus(w, http.StatusCreated, created)
}

// HandleUpdate handles POST /territories/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAdmin(w, r, "Only admins can manage territories.", "/territories")
	if !res.OK {
		return
	}
	id := chi.URLParam(r, "id")

	if err := r.ParseForm(); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
		return
	}

	upd := models.Territory{
		Name:     normalize.Name(r.FormValue("name")),
		Code:     strings.ToUpper(strings.TrimSpace(r.FormValue("code"))),
		State:    strings.ToUpper(strings.TrimSpace(r.FormValue("state"))),
		TimeZone: strings.TrimSpace(r.FormValue("time_zone")),
		Status:   normalize.Status(r.FormValue("status")),
	}
	if upd.Status != "" && !status.IsValid(upd.Status) {
		webwrite.Error(w, http.StatusBadRequest, "bad_status", "Unknown status.")
		return
	}
	if upd.TimeZone != "" && !timezones.Valid(upd.TimeZone) {
		webwrite.Error(w, http.StatusBadRequest, "bad_time_zone", "Unknown time zone.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	existing, err := h.Territories.GetByID(ctx, id)
	if err == mongo.ErrNoDocuments {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such territory.")
		return
	}
	if err != nil {
		h.Log.Error("load territory for update", zap.Error(err), zap.String("id", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	if upd.Name != "" && text.Fold(upd.Name) != existing.NameCI {
		taken, err := h.Territories.NameExistsForOther(ctx, text.Fold(upd.Name), id)
		if err != nil {
			h.Log.Error("check territory name", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
		if taken {
			webwrite.Error(w, http.StatusConflict, "duplicate_territory", "A territory with this name already exists.")
			return
		}
	}

	if err := h.Territories.Update(ctx, id, upd); err != nil {
		if err == territorystore.ErrDuplicateTerritory {
			webwrite.Error(w, http.StatusConflict, "duplicate_territory", "A territory with this name already exists.")
			return
		}
		h.Log.Error("update territory", zap.Error(err), zap.String("id", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.Audit.TerritoryUpdated(r.Context(), r, res.UserID, id, res.Role, changedFields(existing, upd))

	updated, err := h.Territories.GetByID(ctx, id)
	if err != nil {
		h.Log.Error("reload territory", zap.Error(err), zap.String("id", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	webwrite.JSON(w, updated)
}

// HandleDelete handles DELETE /territories/{id}. A territory still referenced
// by hierarchy users cannot be removed.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAdmin(w, r, "Only admins can manage territories.", "/territories")
	if !res.OK {
		return
	}
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	existing, err := h.Territories.GetByID(ctx, id)
	if err == mongo.ErrNoDocuments {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such territory.")
		return
	}
	if err != nil {
		h.Log.Error("load territory for delete", zap.Error(err), zap.String("id", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	assigned, err := h.Hierarchy.Count(ctx, bson.M{"territory_id": id})
	if err != nil {
		h.Log.Error("count territory users", zap.Error(err), zap.String("id", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if assigned > 0 {
		webwrite.Error(w, http.StatusConflict, "territory_in_use", "Reassign hierarchy users before deleting this territory.")
		return
	}

	if _, err := h.Territories.Delete(ctx, id); err != nil {
		h.Log.Error("delete territory", zap.Error(err), zap.String("id", id))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.Audit.TerritoryDeleted(r.Context(), r, res.UserID, id, res.Role, existing.Name)
	webwrite.JSON(w, map[string]any{"deleted": true, "id": id})
}

// changedFields lists which mutable fields the update touched, for the audit
// trail.
func changedFields(old, upd models.Territory) string {
	var fields []string
	if upd.Name != "" && upd.Name != old.Name {
		fields = append(fields, "name")
	}
	if upd.Code != "" && upd.Code != old.Code {
		fields = append(fields, "code")
	}
	if upd.State != "" && upd.State != old.State {
		fields = append(fields, "state")
	}
	if upd.TimeZone != "" && upd.TimeZone != old.TimeZone {
		fields = append(fields, "time_zone")
	}
	if upd.Status != "" && upd.Status != old.Status {
		fields = append(fields, "status")
	}
	return strings.Join(fields, ",")
}
