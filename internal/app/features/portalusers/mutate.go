// internal/app/features/portalusers/mutate.go
package portalusers

import (
	"context"
	"net/http"
	"strings"

	userstore "github.com/dalemusser/ivrhub/internal/app/store/portalusers"
	"github.com/dalemusser/ivrhub/internal/app/system/authutil"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/app/system/status"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const adminOnlyMsg = "Account administration is admin only."

// formTerritoryIDs reads the repeated territory_ids field, dropping blanks.
func formTerritoryIDs(r *http.Request) []string {
	var ids []string
	for _, raw := range r.Form["territory_ids"] {
		if id := normalize.TerritoryID(raw); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// resolveHierarchyLink validates the role/hierarchy pairing: admins stay
// unlinked, every other role must name an existing hierarchy node whose role
// matches the account role. Writes the error response itself on failure.
func (h *Handler) resolveHierarchyLink(ctx context.Context, w http.ResponseWriter, role, hierarchyID string) (string, bool) {
	if role == models.PortalRoleAdmin {
		if hierarchyID != "" {
			webwrite.Error(w, http.StatusBadRequest, "bad_link", "Admin accounts are not linked to the hierarchy.")
			return "", false
		}
		return "", true
	}
	if hierarchyID == "" {
		webwrite.Error(w, http.StatusBadRequest, "missing_link", "Hierarchy roles must be linked to a hierarchy user.")
		return "", false
	}
	node, err := h.Svc.Lookup(ctx, hierarchyID)
	if err != nil {
		h.Log.Error("lookup hierarchy node", zap.Error(err), zap.String("hierarchy_id", hierarchyID))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return "", false
	}
	if node == nil {
		webwrite.Error(w, http.StatusBadRequest, "unknown_link", "No such hierarchy user.")
		return "", false
	}
	if node.Role != role {
		webwrite.Error(w, http.StatusBadRequest, "role_mismatch", "The account role must match the linked hierarchy user's role.")
		return "", false
	}
	return hierarchyID, true
}

// HandleCreate handles POST /portal-users.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAdmin(w, r, adminOnlyMsg, "/dashboard")
	if !res.OK {
		return
	}

	if err := r.ParseForm(); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
		return
	}

	role := normalize.Role(r.FormValue("role"))
	if !models.IsValidPortalRole(role) {
		webwrite.Error(w, http.StatusBadRequest, "bad_role", "Unknown account role.")
		return
	}

	resolved, err := authutil.ValidateAndResolve(authutil.AuthInput{
		Method:       r.FormValue("auth_method"),
		Email:        r.FormValue("email"),
		TempPassword: r.FormValue("temp_password"),
	})
	if err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_auth", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	hierarchyID, ok := h.resolveHierarchyLink(ctx, w, role, strings.TrimSpace(r.FormValue("hierarchy_id")))
	if !ok {
		return
	}
	if hierarchyID != "" {
		linked, err := h.Users.GetByHierarchyID(ctx, hierarchyID)
		if err != nil {
			h.Log.Error("check hierarchy link", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
		if linked != nil {
			webwrite.Error(w, http.StatusConflict, "link_taken", "This hierarchy user already has a portal account.")
			return
		}
	}

	u := models.PortalUser{
		FullName:     r.FormValue("full_name"),
		Email:        resolved.Email,
		Role:         role,
		HierarchyID:  hierarchyID,
		TerritoryIDs: formTerritoryIDs(r),
		PHIAccess:    r.FormValue("phi_access") != "",
		MFAEnabled:   r.FormValue("mfa_enabled") != "",
		MFAPhone:     normalize.Phone(r.FormValue("mfa_phone")),
		AuthMethod:   resolved.Method,
	}
	if u.FullName == "" || normalize.Name(u.FullName) == "" {
		webwrite.Error(w, http.StatusBadRequest, "missing_name", "A full name is required.")
		return
	}
	if resolved.PasswordHash != nil {
		u.PasswordHash = *resolved.PasswordHash
	}

	created, err := h.Users.Create(ctx, u)
	if err == userstore.ErrDuplicateEmail {
		webwrite.Error(w, http.StatusConflict, "duplicate_email", "An account with this email already exists.")
		return
	}
	if err != nil {
		h.Log.Error("create portal user", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.Audit.AccountCreated(r.Context(), r, res.UserID, created.ID, res.Role, created.Role)
	webwrite.JSONStatus(w, http.StatusCreated, map[string]any{"account": created})
}

// HandleUpdate handles POST /portal-users/{id}. The form replaces all of the
// admin-editable fields; sign-in settings change here too, but the password
// only when a new temporary one is supplied.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAdmin(w, r, adminOnlyMsg, "/dashboard")
	if !res.OK {
		return
	}

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such account.")
		return
	}
	if err := r.ParseForm(); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
		return
	}

	role := normalize.Role(r.FormValue("role"))
	if !models.IsValidPortalRole(role) {
		webwrite.Error(w, http.StatusBadRequest, "bad_role", "Unknown account role.")
		return
	}
	st := normalize.Status(r.FormValue("status"))
	if st == "" {
		st = status.Active
	}
	if !status.IsValid(st) {
		webwrite.Error(w, http.StatusBadRequest, "bad_status", "Unknown account status.")
		return
	}

	resolved, err := authutil.ValidateAndResolve(authutil.AuthInput{
		Method:       r.FormValue("auth_method"),
		Email:        r.FormValue("email"),
		TempPassword: r.FormValue("temp_password"),
		IsEdit:       true,
	})
	if err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_auth", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	existing, err := h.Users.GetByID(ctx, id)
	if err == mongo.ErrNoDocuments {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such account.")
		return
	}
	if err != nil {
		h.Log.Error("load portal user for update", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	hierarchyID, ok := h.resolveHierarchyLink(ctx, w, role, strings.TrimSpace(r.FormValue("hierarchy_id")))
	if !ok {
		return
	}
	if hierarchyID != "" && hierarchyID != existing.HierarchyID {
		linked, err := h.Users.GetByHierarchyID(ctx, hierarchyID)
		if err != nil {
			h.Log.Error("check hierarchy link", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
		if linked != nil && linked.ID != id {
			webwrite.Error(w, http.StatusConflict, "link_taken", "This hierarchy user already has a portal account.")
			return
		}
	}

	upd := userstore.AccountUpdate{
		FullName:     r.FormValue("full_name"),
		Email:        resolved.Email,
		Role:         role,
		HierarchyID:  hierarchyID,
		Status:       st,
		TerritoryIDs: formTerritoryIDs(r),
		PHIAccess:    r.FormValue("phi_access") != "",
		MFAEnabled:   r.FormValue("mfa_enabled") != "",
		MFAPhone:     r.FormValue("mfa_phone"),
	}

	if err := h.Users.Update(ctx, id, upd); err != nil {
		if err == userstore.ErrDuplicateEmail {
			webwrite.Error(w, http.StatusConflict, "duplicate_email", "An account with this email already exists.")
			return
		}
		h.Log.Error("update portal user", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if resolved.PasswordHash != nil {
		if err := h.Users.SetPasswordHash(ctx, id, *resolved.PasswordHash); err != nil {
			h.Log.Error("set password hash", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
	}

	h.Audit.AccountUpdated(r.Context(), r, res.UserID, id, res.Role, accountChangedFields(existing, upd, resolved.PasswordHash != nil))

	updated, err := h.Users.GetByID(ctx, id)
	if err != nil {
		h.Log.Error("reload portal user", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	webwrite.JSON(w, map[string]any{"account": updated})
}

// HandleStatus handles POST /portal-users/{id}/status with status=active or
// status=disabled. An admin cannot disable their own account.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAdmin(w, r, adminOnlyMsg, "/dashboard")
	if !res.OK {
		return
	}

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such account.")
		return
	}
	if err := r.ParseForm(); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
		return
	}
	st := normalize.Status(r.FormValue("status"))
	if !status.IsValid(st) {
		webwrite.Error(w, http.StatusBadRequest, "bad_status", "Unknown account status.")
		return
	}
	if st == status.Disabled && id == res.UserID {
		webwrite.Error(w, http.StatusConflict, "own_account", "You cannot disable your own account.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if _, err := h.Users.GetByID(ctx, id); err != nil {
		if err == mongo.ErrNoDocuments {
			webwrite.Error(w, http.StatusNotFound, "not_found", "No such account.")
			return
		}
		h.Log.Error("load portal user for status", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if err := h.Users.SetStatus(ctx, id, st); err != nil {
		h.Log.Error("set account status", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	if st == status.Disabled {
		h.Audit.AccountDisabled(r.Context(), r, res.UserID, id, res.Role)
	} else {
		h.Audit.AccountEnabled(r.Context(), r, res.UserID, id, res.Role)
	}
	webwrite.JSON(w, map[string]any{"id": id.Hex(), "status": st})
}

// HandleDelete handles DELETE /portal-users/{id}. An admin cannot delete
// their own account.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAdmin(w, r, adminOnlyMsg, "/dashboard")
	if !res.OK {
		return
	}

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such account.")
		return
	}
	if id == res.UserID {
		webwrite.Error(w, http.StatusConflict, "own_account", "You cannot delete your own account.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	existing, err := h.Users.GetByID(ctx, id)
	if err == mongo.ErrNoDocuments {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such account.")
		return
	}
	if err != nil {
		h.Log.Error("load portal user for delete", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	if _, err := h.Users.Delete(ctx, id); err != nil {
		h.Log.Error("delete portal user", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.Audit.AccountDeleted(r.Context(), r, res.UserID, id, res.Role, existing.Role)
	webwrite.JSON(w, map[string]any{"deleted": true, "id": id.Hex()})
}

// accountChangedFields lists which fields the update touched, for the audit
// trail.
func accountChangedFields(old *models.PortalUser, upd userstore.AccountUpdate, passwordChanged bool) string {
	var fields []string
	if normalize.Name(upd.FullName) != old.FullName {
		fields = append(fields, "full_name")
	}
	if upd.Email != old.Email {
		fields = append(fields, "email")
	}
	if upd.Role != old.Role {
		fields = append(fields, "role")
	}
	if upd.HierarchyID != old.HierarchyID {
		fields = append(fields, "hierarchy_id")
	}
	if upd.Status != old.Status {
		fields = append(fields, "status")
	}
	if !equalIDs(upd.TerritoryIDs, old.TerritoryIDs) {
		fields = append(fields, "territory_ids")
	}
	if upd.PHIAccess != old.PHIAccess {
		fields = append(fields, "phi_access")
	}
	if upd.MFAEnabled != old.MFAEnabled {
		fields = append(fields, "mfa_enabled")
	}
	if normalize.Phone(upd.MFAPhone) != old.MFAPhone {
		fields = append(fields, "mfa_phone")
	}
	if passwordChanged {
		fields = append(fields, "password")
	}
	return strings.Join(fields, ",")
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
