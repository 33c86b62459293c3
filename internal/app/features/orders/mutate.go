// internal/app/features/orders/mutate.go
package orders

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/ivrhub/internal/app/policy/orderpolicy"
	orderstore "github.com/dalemusser/ivrhub/internal/app/store/orders"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/ivrhub/internal/app/system/metrics"
	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func parseDimension(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// HandleCreate handles POST /orders. Portal orders are placed against a
// patient; the attending doctor and territory come off the patient record.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAuth(w, r, "/login")
	if !res.OK {
		return
	}

	if err := r.ParseForm(); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
		return
	}

	patientID, err := primitive.ObjectIDFromHex(strings.TrimSpace(r.FormValue("patient_id")))
	if err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_patient", "A valid patient id is required.")
		return
	}
	length, ok := parseDimension(r.FormValue("wound_length_cm"))
	if !ok {
		webwrite.Error(w, http.StatusBadRequest, "bad_dimensions", "Wound dimensions must be non-negative numbers.")
		return
	}
	width, ok := parseDimension(r.FormValue("wound_width_cm"))
	if !ok {
		webwrite.Error(w, http.StatusBadRequest, "bad_dimensions", "Wound dimensions must be non-negative numbers.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	patient, err := h.Patients.GetByID(ctx, patientID)
	if err == mongo.ErrNoDocuments {
		webwrite.Error(w, http.StatusBadRequest, "bad_patient", "Patient does not exist.")
		return
	}
	if err != nil {
		h.Log.Error("load patient for order", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	allowed, err := orderpolicy.CanCreateOrder(ctx, h.Svc, r, patient.DoctorID)
	if err != nil {
		h.Log.Error("check order create access", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if !allowed {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "That patient is outside your downline.")
		return
	}

	o := models.Order{
		PatientID:     patient.ID,
		DoctorID:      patient.DoctorID,
		TerritoryID:   patient.TerritoryID,
		WoundLengthCm: length,
		WoundWidthCm:  width,
		QCode:         strings.ToUpper(strings.TrimSpace(r.FormValue("q_code"))),
		Source:        models.OrderSourcePortal,
		Notes:         htmlsanitize.Sanitize(r.FormValue("notes")),
	}

	// No explicit Q-code means order entry picks the smallest sheet that
	// covers the measured wound.
	if o.QCode == "" {
		opt, found := models.SuggestGraft(length, width)
		if !found {
			webwrite.Error(w, http.StatusUnprocessableEntity, "no_adequate_graft", "No catalog sheet covers a wound of this size; enter a Q-code manually.")
			return
		}
		o.QCode = opt.QCode
		o.GraftSizeSqCm = opt.SizeSqCm
	} else if size, ok := parseDimension(r.FormValue("graft_size_sq_cm")); ok {
		o.GraftSizeSqCm = size
	}

	created, err := h.Orders.Create(ctx, o)
	if err != nil {
		h.Log.Error("create order", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	metrics.OrderCreated(created.Source)
	h.Audit.OrderCreated(r.Context(), r, res.UserID, created.ID, res.Role, created.OrderNumber)
	webwrite.JSONStatus(w, http.StatusCreated, created)
}

// HandleTransition handles POST /orders/{id}/status. Only admins move
// orders through the status machine.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAuth(w, r, "/login")
	if !res.OK {
		return
	}
	if !orderpolicy.CanTransitionOrder(r) {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "Only admins can change order status.")
		return
	}

	if err := r.ParseForm(); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
		return
	}
	to := normalize.Status(r.FormValue("to"))
	if !models.IsValidOrderStatus(to) {
		webwrite.Error(w, http.StatusBadRequest, "bad_status", "Unknown order status.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	o, found, err := h.lookupOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.Log.Error("load order for transition", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if !found {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such order.")
		return
	}

	from := o.Status
	if err := h.Orders.Transition(ctx, o.ID, from, to); err != nil {
		if err == orderstore.ErrInvalidTransition {
			webwrite.Error(w, http.StatusConflict, "invalid_transition", "Order cannot move from "+from+" to "+to+".")
			return
		}
		h.Log.Error("transition order", zap.Error(err), zap.String("order", o.OrderNumber))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.Audit.OrderStatusChanged(r.Context(), r, res.UserID, o.ID, res.Role, o.OrderNumber, from, to)

	o.Status = to
	webwrite.JSON(w, o)
}
