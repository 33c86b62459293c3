// internal/app/features/patients/mutate.go
package patients

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/ivrhub/internal/app/policy/patientpolicy"
	patientstore "github.com/dalemusser/ivrhub/internal/app/store/patients"
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

func validDOB(dob string) bool {
	if dob == "" {
		return true
	}
	_, err := time.Parse("2006-01-02", dob)
	return err == nil
}

// attendingDoctor resolves the doctor node for a patient mutation. A missing
// node or a non-doctor role is a caller error.
func (h *Handler) attendingDoctor(ctx context.Context, w http.ResponseWriter, doctorID string) (*models.HierarchyUser, bool) {
	doc, err := h.Svc.Lookup(ctx, doctorID)
	if err != nil {
		h.Log.Error("look up attending doctor", zap.Error(err), zap.String("doctor_id", doctorID))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return nil, false
	}
	if doc == nil || doc.Role != models.RoleDoctor {
		webwrite.Error(w, http.StatusBadRequest, "bad_doctor", "Attending doctor does not exist.")
		return nil, false
	}
	return doc, true
}

// HandleCreate handles POST /patients.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	res := gates.RequirePHIAccess(w, r, "/dashboard")
	if !res.OK {
		return
	}

	if err := r.ParseForm(); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
		return
	}

	p := models.Patient{
		FirstName:   normalize.Name(r.FormValue("first_name")),
		LastName:    normalize.Name(r.FormValue("last_name")),
		DOB:         strings.TrimSpace(r.FormValue("dob")),
		Phone:       normalize.Phone(r.FormValue("phone")),
		MRN:         strings.TrimSpace(r.FormValue("mrn")),
		DoctorID:    strings.TrimSpace(r.FormValue("doctor_id")),
		TerritoryID: normalize.TerritoryID(r.FormValue("territory_id")),
	}

	if p.FirstName == "" || p.LastName == "" || p.MRN == "" || p.DoctorID == "" {
		webwrite.Error(w, http.StatusBadRequest, "missing_fields", "First name, last name, MRN, and attending doctor are required.")
		return
	}
	if !validDOB(p.DOB) {
		webwrite.Error(w, http.StatusBadRequest, "bad_dob", "Date of birth must be YYYY-MM-DD.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	doc, ok := h.attendingDoctor(ctx, w, p.DoctorID)
	if !ok {
		return
	}
	if p.TerritoryID == "" {
		p.TerritoryID = doc.TerritoryID
	}

	allowed, err := patientpolicy.CanManagePatient(ctx, h.Svc, r, p.DoctorID)
	if err != nil {
		h.Log.Error("check patient manage access", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if !allowed {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "That doctor is outside your downline.")
		return
	}

	created, err := h.Patients.Create(ctx, p)
	if err == patientstore.ErrDuplicateMRN {
		webwrite.Error(w, http.StatusConflict, "duplicate_mrn", "A patient with this medical record number already exists.")
		return
	}
	if err != nil {
		h.Log.Error("create patient", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.Audit.PatientCreated(r.Context(), r, res.UserID, created.ID, res.Role)
	webwrite.JSONStatus(w, http.StatusCreated, created)
}

// HandleUpdate handles POST /patients/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	res := gates.RequirePHIAccess(w, r, "/dashboard")
	if !res.OK {
		return
	}

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such patient.")
		return
	}

	if err := r.ParseForm(); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
		return
	}

	upd := models.Patient{
		FirstName:   normalize.Name(r.FormValue("first_name")),
		LastName:    normalize.Name(r.FormValue("last_name")),
		DOB:         strings.TrimSpace(r.FormValue("dob")),
		Phone:       normalize.Phone(r.FormValue("phone")),
		DoctorID:    strings.TrimSpace(r.FormValue("doctor_id")),
		TerritoryID: normalize.TerritoryID(r.FormValue("territory_id")),
		Status:      normalize.Status(r.FormValue("status")),
	}
	if !validDOB(upd.DOB) {
		webwrite.Error(w, http.StatusBadRequest, "bad_dob", "Date of birth must be YYYY-MM-DD.")
		return
	}
	if upd.Status != "" && !status.IsValid(upd.Status) {
		webwrite.Error(w, http.StatusBadRequest, "bad_status", "Unknown status.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	existing, err := h.Patients.GetByID(ctx, id)
	if err == mongo.ErrNoDocuments {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such patient.")
		return
	}
	if err != nil {
		h.Log.Error("load patient for update", zap.Error(err), zap.String("id", id.Hex()))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	allowed, err := patientpolicy.CanManagePatient(ctx, h.Svc, r, existing.DoctorID)
	if err != nil {
		h.Log.Error("check patient manage access", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if !allowed {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "That patient is outside your downline.")
		return
	}

	// Reassignment also requires the new doctor to be in the caller's scope.
	if upd.DoctorID != "" && upd.DoctorID != existing.DoctorID {
		if _, ok := h.attendingDoctor(ctx, w, upd.DoctorID); !ok {
			return
		}
		allowed, err := patientpolicy.CanManagePatient(ctx, h.Svc, r, upd.DoctorID)
		if err != nil {
			h.Log.Error("check patient manage access", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
			return
		}
		if !allowed {
			webwrite.Error(w, http.StatusForbidden, "forbidden", "That doctor is outside your downline.")
			return
		}
	}

	if err := h.Patients.Update(ctx, id, upd); err != nil {
		h.Log.Error("update patient", zap.Error(err), zap.String("id", id.Hex()))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.Audit.PatientUpdated(r.Context(), r, res.UserID, id, res.Role, patientChangedFields(existing, upd))

	updated, err := h.Patients.GetByID(ctx, id)
	if err != nil {
		h.Log.Error("reload patient", zap.Error(err), zap.String("id", id.Hex()))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	webwrite.JSON(w, updated)
}

// HandleDelete handles DELETE /patients/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	res := gates.RequirePHIAccess(w, r, "/dashboard")
	if !res.OK {
		return
	}

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such patient.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	existing, err := h.Patients.GetByID(ctx, id)
	if err == mongo.ErrNoDocuments {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such patient.")
		return
	}
	if err != nil {
		h.Log.Error("load patient for delete", zap.Error(err), zap.String("id", id.Hex()))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	allowed, err := patientpolicy.CanManagePatient(ctx, h.Svc, r, existing.DoctorID)
	if err != nil {
		h.Log.Error("check patient manage access", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if !allowed {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "That patient is outside your downline.")
		return
	}

	if _, err := h.Patients.Delete(ctx, id); err != nil {
		h.Log.Error("delete patient", zap.Error(err), zap.String("id", id.Hex()))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.Audit.PatientDeleted(r.Context(), r, res.UserID, id, res.Role)
	webwrite.JSON(w, map[string]any{"deleted": true, "id": id.Hex()})
}

func patientChangedFields(old, upd models.Patient) string {
	var fields []string
	if upd.FirstName != "" && upd.FirstName != old.FirstName {
		fields = append(fields, "first_name")
	}
	if upd.LastName != "" && upd.LastName != old.LastName {
		fields = append(fields, "last_name")
	}
	if upd.DOB != "" && upd.DOB != old.DOB {
		fields = append(fields, "dob")
	}
	if upd.Phone != "" && upd.Phone != old.Phone {
		fields = append(fields, "phone")
	}
	if upd.DoctorID != "" && upd.DoctorID != old.DoctorID {
		fields = append(fields, "doctor_id")
	}
	if upd.TerritoryID != "" && upd.TerritoryID != old.TerritoryID {
		fields = append(fields, "territory_id")
	}
	if upd.Status != "" && upd.Status != old.Status {
		fields = append(fields, "status")
	}
	return strings.Join(fields, ",")
}
