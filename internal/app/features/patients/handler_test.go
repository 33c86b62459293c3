package patients_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	feature "github.com/dalemusser/ivrhub/internal/app/features/patients"
	patientstore "github.com/dalemusser/ivrhub/internal/app/store/patients"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/ivrhub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newPatientHandler(t *testing.T) (*feature.Handler, *mongo.Database) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	svc := hierarchy.NewService(hierarchy.NewMemory(hierarchy.SeedUsers()...))
	return feature.NewHandler(db, svc, nil, zap.NewNop()), db
}

func phiAdmin() *auth.SessionUser {
	return &auth.SessionUser{ID: "507f1f77bcf86cd799439041", Name: "Admin", Role: "admin", PHIAccess: true}
}

func phiDoctor(hierarchyID string) *auth.SessionUser {
	return &auth.SessionUser{ID: "507f1f77bcf86cd799439042", Name: "Doctor", Role: "doctor", HierarchyID: hierarchyID, PHIAccess: true}
}

func phiDistributor(hierarchyID string) *auth.SessionUser {
	return &auth.SessionUser{ID: "507f1f77bcf86cd799439043", Name: "Distributor", Role: "distributor", HierarchyID: hierarchyID, PHIAccess: true}
}

func routeRequest(h *feature.Handler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/patients", h.ServeList)
	r.Post("/patients", h.HandleCreate)
	r.Post("/patients/import", h.HandleImport)
	r.Get("/patients/{id}", h.ServeDetail)
	r.Post("/patients/{id}", h.HandleUpdate)
	r.Delete("/patients/{id}", h.HandleDelete)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func postForm(h *feature.Handler, target string, form url.Values, u *auth.SessionUser) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = auth.WithTestUser(req, u)
	return routeRequest(h, req)
}

func seedPatient(t *testing.T, db *mongo.Database, first, last, mrn, doctorID string) models.Patient {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	p, err := patientstore.New(db).Create(ctx, models.Patient{
		FirstName: first,
		LastName:  last,
		MRN:       mrn,
		DoctorID:  doctorID,
	})
	if err != nil {
		t.Fatalf("seed patient %s: %v", mrn, err)
	}
	return p
}

func TestServeList_RequiresPHIClaim(t *testing.T) {
	handler, _ := newPatientHandler(t)

	noPHI := &auth.SessionUser{ID: "507f1f77bcf86cd799439044", Name: "Admin", Role: "admin"}
	req := auth.WithTestUser(httptest.NewRequest("GET", "/patients", nil), noPHI)
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestServeList_DoctorSeesOwnPanelOnly(t *testing.T) {
	handler, db := newPatientHandler(t)
	seedPatient(t, db, "Ada", "Alvarez", "MRN-001", "D-001")
	seedPatient(t, db, "Ben", "Baker", "MRN-002", "D-004")

	req := auth.WithTestUser(httptest.NewRequest("GET", "/patients", nil), phiDoctor("D-001"))
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var page struct {
		Patients []models.Patient `json:"patients"`
		Total    int64            `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if page.Total != 1 || len(page.Patients) != 1 {
		t.Fatalf("expected 1 patient, got total=%d len=%d", page.Total, len(page.Patients))
	}
	if page.Patients[0].MRN != "MRN-001" {
		t.Errorf("patient: got %q, want MRN-001", page.Patients[0].MRN)
	}
}

func TestServeList_DistributorScopedToDownline(t *testing.T) {
	handler, db := newPatientHandler(t)
	seedPatient(t, db, "Ada", "Alvarez", "MRN-001", "D-001")
	seedPatient(t, db, "Ben", "Baker", "MRN-002", "D-003")
	seedPatient(t, db, "Cai", "Cooper", "MRN-003", "D-004")

	req := auth.WithTestUser(httptest.NewRequest("GET", "/patients", nil), phiDistributor("regional-dist-1"))
	rec := routeRequest(handler, req)

	var page struct {
		Patients []models.Patient `json:"patients"`
		Total    int64            `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 patients in downline, got %d", page.Total)
	}
	for _, p := range page.Patients {
		if p.DoctorID == "D-004" {
			t.Errorf("patient of D-004 leaked into regional-dist-1 scope")
		}
	}
}

func TestServeList_DoctorFilterOutsideScopeForbidden(t *testing.T) {
	handler, _ := newPatientHandler(t)

	req := auth.WithTestUser(httptest.NewRequest("GET", "/patients?doctor=D-004", nil), phiDistributor("regional-dist-1"))
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestServeDetail_OutsideDownlineForbidden(t *testing.T) {
	handler, db := newPatientHandler(t)
	p := seedPatient(t, db, "Cai", "Cooper", "MRN-003", "D-004")

	req := auth.WithTestUser(httptest.NewRequest("GET", "/patients/"+p.ID.Hex(), nil), phiDistributor("regional-dist-1"))
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestServeDetail_ReturnsPatient(t *testing.T) {
	handler, db := newPatientHandler(t)
	p := seedPatient(t, db, "Ada", "Alvarez", "MRN-001", "D-001")

	req := auth.WithTestUser(httptest.NewRequest("GET", "/patients/"+p.ID.Hex(), nil), phiDoctor("D-001"))
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var view struct {
		Patient models.Patient `json:"patient"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if view.Patient.MRN != "MRN-001" {
		t.Errorf("patient: got %q, want MRN-001", view.Patient.MRN)
	}
}

func TestHandleCreate_DerivesTerritoryFromDoctor(t *testing.T) {
	handler, _ := newPatientHandler(t)

	form := url.Values{}
	form.Set("first_name", "Ada")
	form.Set("last_name", "Alvarez")
	form.Set("mrn", "MRN-100")
	form.Set("doctor_id", "D-001")
	form.Set("dob", "1957-03-14")

	rec := postForm(handler, "/patients", form, phiAdmin())

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var created models.Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if created.TerritoryID != "tx-north" {
		t.Errorf("territory_id: got %q, want tx-north (attending doctor's territory)", created.TerritoryID)
	}
	if created.LastNameCI == "" {
		t.Error("last_name_ci should be stored")
	}
}

func TestHandleCreate_DuplicateMRN(t *testing.T) {
	handler, db := newPatientHandler(t)
	seedPatient(t, db, "Ada", "Alvarez", "MRN-001", "D-001")

	form := url.Values{}
	form.Set("first_name", "Another")
	form.Set("last_name", "Person")
	form.Set("mrn", "MRN-001")
	form.Set("doctor_id", "D-002")

	rec := postForm(handler, "/patients", form, phiAdmin())

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "duplicate_mrn") {
		t.Errorf("expected duplicate_mrn error, got %s", rec.Body.String())
	}
}

func TestHandleCreate_BadDOBRejected(t *testing.T) {
	handler, _ := newPatientHandler(t)

	form := url.Values{}
	form.Set("first_name", "Ada")
	form.Set("last_name", "Alvarez")
	form.Set("mrn", "MRN-101")
	form.Set("doctor_id", "D-001")
	form.Set("dob", "03/14/1957")

	rec := postForm(handler, "/patients", form, phiAdmin())

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHandleCreate_DoctorOutsideDownlineForbidden(t *testing.T) {
	handler, _ := newPatientHandler(t)

	form := url.Values{}
	form.Set("first_name", "Cai")
	form.Set("last_name", "Cooper")
	form.Set("mrn", "MRN-102")
	form.Set("doctor_id", "D-001")

	rec := postForm(handler, "/patients", form, phiDistributor("regional-dist-2"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestHandleUpdate_ChangesFields(t *testing.T) {
	handler, db := newPatientHandler(t)
	p := seedPatient(t, db, "Ada", "Alvarez", "MRN-001", "D-001")

	form := url.Values{}
	form.Set("phone", "555-0188")
	form.Set("status", "disabled")

	rec := postForm(handler, "/patients/"+p.ID.Hex(), form, phiAdmin())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var updated models.Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if updated.Phone != "555-0188" {
		t.Errorf("phone: got %q, want 555-0188", updated.Phone)
	}
	if updated.Status != "disabled" {
		t.Errorf("status: got %q, want disabled", updated.Status)
	}
}

func TestHandleUpdate_ReassignOutsideScopeForbidden(t *testing.T) {
	handler, db := newPatientHandler(t)
	p := seedPatient(t, db, "Ada", "Alvarez", "MRN-001", "D-001")

	form := url.Values{}
	form.Set("doctor_id", "D-004")

	rec := postForm(handler, "/patients/"+p.ID.Hex(), form, phiDistributor("regional-dist-1"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestHandleDelete_RemovesRecord(t *testing.T) {
	handler, db := newPatientHandler(t)
	p := seedPatient(t, db, "Ada", "Alvarez", "MRN-001", "D-001")

	req := auth.WithTestUser(httptest.NewRequest("DELETE", "/patients/"+p.ID.Hex(), nil), phiAdmin())
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	_, err := patientstore.New(db).GetByID(ctx, p.ID)
	if err != mongo.ErrNoDocuments {
		t.Errorf("expected patient to be gone, got err=%v", err)
	}
}
