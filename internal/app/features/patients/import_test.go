package patients_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	feature "github.com/dalemusser/ivrhub/internal/app/features/patients"
	patientstore "github.com/dalemusser/ivrhub/internal/app/store/patients"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
)

func postImport(t *testing.T, h *feature.Handler, doctorID, csvBody string, u *auth.SessionUser) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("doctor_id", doctorID); err != nil {
		t.Fatalf("write doctor_id field: %v", err)
	}
	fw, err := mw.CreateFormFile("csv", "roster.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(csvBody)); err != nil {
		t.Fatalf("write csv body: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest("POST", "/patients/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = auth.WithTestUser(req, u)
	return routeRequest(h, req)
}

func TestHandleImport_AdminImportsRoster(t *testing.T) {
	handler, db := newPatientHandler(t)

	csvBody := "First Name,Last Name,DOB,Phone,MRN\n" +
		"Ada,Alvarez,1957-03-14,555-0101,MRN-001\n" +
		"Ben,Baker,,555-0102,MRN-002\n" +
		"Cai,Cooper,1980-11-02,,MRN-003\n"

	rec := postImport(t, handler, "D-001", csvBody, phiAdmin())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var result struct {
		Imported int `json:"imported"`
		Skipped  int `json:"skipped"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if result.Imported != 3 || result.Skipped != 0 {
		t.Errorf("imported=%d skipped=%d, want 3/0", result.Imported, result.Skipped)
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	count, err := patientstore.New(db).Count(ctx, bson.M{"doctor_id": "D-001"})
	if err != nil {
		t.Fatalf("count imported patients: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 patients in the panel, got %d", count)
	}
}

func TestHandleImport_SkipsExistingMRN(t *testing.T) {
	handler, db := newPatientHandler(t)
	seedPatient(t, db, "Ada", "Alvarez", "MRN-001", "D-001")

	csvBody := "Ada,Alvarez,1957-03-14,555-0101,MRN-001\n" +
		"Ben,Baker,,555-0102,MRN-002\n"

	rec := postImport(t, handler, "D-001", csvBody, phiAdmin())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var result struct {
		Imported int `json:"imported"`
		Skipped  int `json:"skipped"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if result.Imported != 1 || result.Skipped != 1 {
		t.Errorf("imported=%d skipped=%d, want 1/1", result.Imported, result.Skipped)
	}
}

func TestHandleImport_RejectsInvalidRows(t *testing.T) {
	handler, db := newPatientHandler(t)

	csvBody := "Ada,Alvarez,1957-03-14,555-0101,MRN-001\n" +
		"Ben,,,555-0102,MRN-002\n" // missing last name

	rec := postImport(t, handler, "D-001", csvBody, phiAdmin())

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d: %s", http.StatusBadRequest, rec.Code, rec.Body.String())
	}
	var result struct {
		Errors []struct {
			Line   int    `json:"line"`
			Reason string `json:"reason"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].Line != 2 {
		t.Errorf("expected one error on line 2, got %+v", result.Errors)
	}

	// A rejected file imports nothing.
	ctx, cancel := testutil.TestContext()
	defer cancel()
	count, err := patientstore.New(db).Count(ctx, bson.M{})
	if err != nil {
		t.Fatalf("count patients: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no inserts on rejected file, got %d", count)
	}
}

func TestHandleImport_DistributorForbidden(t *testing.T) {
	handler, _ := newPatientHandler(t)

	rec := postImport(t, handler, "D-001", "Ada,Alvarez,,,MRN-001\n", phiDistributor("regional-dist-1"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestHandleImport_DoctorOwnPanelOnly(t *testing.T) {
	handler, _ := newPatientHandler(t)

	rec := postImport(t, handler, "D-001", "Ada,Alvarez,,,MRN-001\n", phiDoctor("D-001"))
	if rec.Code != http.StatusOK {
		t.Errorf("own panel import: expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = postImport(t, handler, "D-002", "Ben,Baker,,,MRN-002\n", phiDoctor("D-001"))
	if rec.Code != http.StatusForbidden {
		t.Errorf("other panel import: expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}
