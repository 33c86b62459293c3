// internal/app/features/calls/record.go
package calls

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/ivrhub/internal/app/policy/callpolicy"
	callstore "github.com/dalemusser/ivrhub/internal/app/store/calls"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/metrics"
	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// HandleRecord handles POST /calls. The provider normally posts call events
// directly; this endpoint lets an admin backfill a record the provider
// failed to deliver.
func (h *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAuth(w, r, "/login"); !res.OK {
		return
	}
	if !callpolicy.CanRecordCall(r) {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "Only admins can record calls by hand.")
		return
	}

	if err := r.ParseForm(); err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
		return
	}

	sid := strings.TrimSpace(r.FormValue("call_sid"))
	if sid == "" {
		webwrite.Error(w, http.StatusBadRequest, "missing_call_sid", "The provider call SID is required.")
		return
	}

	call := models.Call{
		CallSID:  sid,
		From:     normalize.Phone(r.FormValue("from")),
		DoctorID: strings.TrimSpace(r.FormValue("doctor_id")),
	}

	if v := strings.TrimSpace(r.FormValue("started_at")); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			webwrite.Error(w, http.StatusBadRequest, "bad_time", "started_at must be RFC 3339.")
			return
		}
		call.StartedAt = at.UTC()
	}
	if v := strings.TrimSpace(r.FormValue("ended_at")); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			webwrite.Error(w, http.StatusBadRequest, "bad_time", "ended_at must be RFC 3339.")
			return
		}
		end := at.UTC()
		call.EndedAt = &end
	}
	if out := normalize.Status(r.FormValue("outcome")); out != "" {
		if !models.IsValidCallOutcome(out) {
			webwrite.Error(w, http.StatusBadRequest, "bad_outcome", "Unknown call outcome.")
			return
		}
		call.Outcome = out
	}
	if v := strings.TrimSpace(r.FormValue("patient_id")); v != "" {
		pid, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			webwrite.Error(w, http.StatusBadRequest, "bad_patient", "patient_id must be a record id.")
			return
		}
		call.PatientID = &pid
	}
	if call.EndedAt != nil && !call.StartedAt.IsZero() {
		secs := int64(call.EndedAt.Sub(call.StartedAt).Seconds())
		if secs < 0 {
			secs = 0
		}
		call.DurationSecs = secs
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	created, err := h.Calls.Create(ctx, call)
	if err == callstore.ErrDuplicateCallSID {
		webwrite.Error(w, http.StatusConflict, "duplicate_call_sid", "A call with this provider SID already exists.")
		return
	}
	if err != nil {
		h.Log.Error("record call", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	metrics.CallRecorded(created.Outcome)
	webwrite.JSONStatus(w, http.StatusCreated, created)
}
