// internal/app/features/patients/import.go
package patients

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/ivrhub/internal/app/policy/patientpolicy"
	patientstore "github.com/dalemusser/ivrhub/internal/app/store/patients"
	"github.com/dalemusser/ivrhub/internal/app/system/csvutil"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"go.uber.org/zap"
)

type importRowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

type importResult struct {
	Imported int              `json:"imported"`
	Skipped  int              `json:"skipped"`
	Errors   []importRowError `json:"errors,omitempty"`
}

// HandleImport handles POST /patients/import: a multipart roster CSV
// (first name, last name, DOB, phone, MRN) imported into one doctor's panel.
// Rows with validation problems reject the whole file; rows whose MRN is
// already on record are skipped, not overwritten.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	res := gates.RequirePHIAccess(w, r, "/dashboard")
	if !res.OK {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, csvutil.MaxUploadSize)

	doctorID := strings.TrimSpace(r.FormValue("doctor_id"))
	if doctorID == "" {
		webwrite.Error(w, http.StatusBadRequest, "missing_doctor", "Attending doctor is required.")
		return
	}

	if !patientpolicy.CanImportPatients(r, doctorID) {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "Roster import is limited to admins and the attending doctor.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Batch())
	defer cancel()

	doc, ok := h.attendingDoctor(ctx, w, doctorID)
	if !ok {
		return
	}

	file, _, err := r.FormFile("csv")
	if err != nil {
		msg := "CSV file is required."
		if strings.Contains(err.Error(), "request body too large") {
			msg = "CSV file is too large. Maximum size is 5 MB."
		}
		webwrite.Error(w, http.StatusBadRequest, "bad_file", msg)
		return
	}
	defer file.Close()

	parsed, err := csvutil.ParsePatientCSV(file, csvutil.ParseOptions{MaxRows: csvutil.MaxRows})
	if errors.Is(err, csvutil.ErrTooManyRows) {
		webwrite.Error(w, http.StatusBadRequest, "too_many_rows", "CSV has too many rows.")
		return
	}
	if err != nil {
		webwrite.Error(w, http.StatusBadRequest, "bad_csv", "CSV file could not be parsed: "+err.Error())
		return
	}

	if parsed.HasErrors() {
		result := importResult{}
		for _, e := range parsed.Errors {
			result.Errors = append(result.Errors, importRowError{Line: e.Line, Reason: e.Reason})
		}
		webwrite.JSONStatus(w, http.StatusBadRequest, result)
		return
	}

	result := importResult{}
	for _, row := range parsed.Rows {
		_, err := h.Patients.Create(ctx, models.Patient{
			FirstName:   row.FirstName,
			LastName:    row.LastName,
			DOB:         row.DOB,
			Phone:       row.Phone,
			MRN:         row.MRN,
			DoctorID:    doctorID,
			TerritoryID: doc.TerritoryID,
		})
		if err == patientstore.ErrDuplicateMRN {
			result.Skipped++
			continue
		}
		if err != nil {
			h.Log.Error("import patient row", zap.Error(err), zap.String("doctor_id", doctorID))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred during import.")
			return
		}
		result.Imported++
	}

	h.Audit.PatientImported(r.Context(), r, res.UserID, res.Role, result.Imported, result.Skipped)
	webwrite.JSON(w, result)
}
