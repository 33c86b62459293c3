package orders_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	feature "github.com/dalemusser/ivrhub/internal/app/features/orders"
	orderstore "github.com/dalemusser/ivrhub/internal/app/store/orders"
	patientstore "github.com/dalemusser/ivrhub/internal/app/store/patients"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/ivrhub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newOrderHandler(t *testing.T) (*feature.Handler, *mongo.Database) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	svc := hierarchy.NewService(hierarchy.NewMemory(hierarchy.SeedUsers()...))
	return feature.NewHandler(db, svc, nil, zap.NewNop()), db
}

func adminUser() *auth.SessionUser {
	return &auth.SessionUser{ID: "507f1f77bcf86cd799439051", Name: "Admin", Role: "admin"}
}

func doctorUser(hierarchyID string) *auth.SessionUser {
	return &auth.SessionUser{ID: "507f1f77bcf86cd799439052", Name: "Doctor", Role: "doctor", HierarchyID: hierarchyID}
}

func distributorUser(hierarchyID string) *auth.SessionUser {
	return &auth.SessionUser{ID: "507f1f77bcf86cd799439053", Name: "Distributor", Role: "distributor", HierarchyID: hierarchyID}
}

func routeRequest(h *feature.Handler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/orders", h.ServeList)
	r.Post("/orders", h.HandleCreate)
	r.Get("/orders/suggest", h.ServeSuggest)
	r.Get("/orders/export.csv", h.ServeExportCSV)
	r.Get("/orders/{id}", h.ServeDetail)
	r.Post("/orders/{id}/status", h.HandleTransition)
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

func seedOrderPatient(t *testing.T, db *mongo.Database, mrn, doctorID, territoryID string) models.Patient {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	p, err := patientstore.New(db).Create(ctx, models.Patient{
		FirstName:   "Pat",
		LastName:    "Record",
		MRN:         mrn,
		DoctorID:    doctorID,
		TerritoryID: territoryID,
	})
	if err != nil {
		t.Fatalf("seed patient %s: %v", mrn, err)
	}
	return p
}

func seedOrder(t *testing.T, db *mongo.Database, p models.Patient, status string) models.Order {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	o, err := orderstore.New(db).Create(ctx, models.Order{
		PatientID:   p.ID,
		DoctorID:    p.DoctorID,
		TerritoryID: p.TerritoryID,
		Status:      status,
		Source:      models.OrderSourceIVR,
	})
	if err != nil {
		t.Fatalf("seed order for %s: %v", p.MRN, err)
	}
	return o
}

func TestServeList_DoctorSeesOwnOrdersOnly(t *testing.T) {
	handler, db := newOrderHandler(t)
	mine := seedOrderPatient(t, db, "MRN-001", "D-001", "tx-north")
	other := seedOrderPatient(t, db, "MRN-002", "D-004", "tx-south")
	seedOrder(t, db, mine, models.OrderPending)
	seedOrder(t, db, other, models.OrderPending)

	req := auth.WithTestUser(httptest.NewRequest("GET", "/orders", nil), doctorUser("D-001"))
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var page struct {
		Orders []models.Order `json:"orders"`
		Total  int64          `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if page.Total != 1 || len(page.Orders) != 1 {
		t.Fatalf("expected 1 order, got total=%d len=%d", page.Total, len(page.Orders))
	}
	if page.Orders[0].DoctorID != "D-001" {
		t.Errorf("order doctor: got %q, want D-001", page.Orders[0].DoctorID)
	}
}

func TestServeList_StatusFilter(t *testing.T) {
	handler, db := newOrderHandler(t)
	p := seedOrderPatient(t, db, "MRN-001", "D-001", "tx-north")
	seedOrder(t, db, p, models.OrderPending)
	seedOrder(t, db, p, models.OrderShipped)

	req := auth.WithTestUser(httptest.NewRequest("GET", "/orders?status=shipped", nil), adminUser())
	rec := routeRequest(handler, req)

	var page struct {
		Orders []models.Order `json:"orders"`
		Total  int64          `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if page.Total != 1 || page.Orders[0].Status != models.OrderShipped {
		t.Errorf("expected only the shipped order, got %+v", page.Orders)
	}
}

func TestServeDetail_ByOrderNumber(t *testing.T) {
	handler, db := newOrderHandler(t)
	p := seedOrderPatient(t, db, "MRN-001", "D-001", "tx-north")
	o := seedOrder(t, db, p, models.OrderPending)

	req := auth.WithTestUser(httptest.NewRequest("GET", "/orders/"+o.OrderNumber, nil), adminUser())
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var view struct {
		Order models.Order `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if view.Order.ID != o.ID {
		t.Errorf("order: got %s, want %s", view.Order.ID.Hex(), o.ID.Hex())
	}
}

func TestServeDetail_TerritoryClaimRefused(t *testing.T) {
	handler, db := newOrderHandler(t)
	p := seedOrderPatient(t, db, "MRN-002", "D-004", "tx-south")
	o := seedOrder(t, db, p, models.OrderPending)

	// Master distributor has the whole forest in their downline, but the
	// account's territory claims still pin them to tx-north.
	u := &auth.SessionUser{
		ID: "507f1f77bcf86cd799439054", Name: "Master", Role: "master_distributor",
		HierarchyID: "master-dist-1", TerritoryIDs: []string{"tx-north"},
	}
	req := auth.WithTestUser(httptest.NewRequest("GET", "/orders/"+o.ID.Hex(), nil), u)
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestHandleCreate_SuggestsGraftFromWound(t *testing.T) {
	handler, db := newOrderHandler(t)
	p := seedOrderPatient(t, db, "MRN-001", "D-001", "tx-north")

	form := url.Values{}
	form.Set("patient_id", p.ID.Hex())
	form.Set("wound_length_cm", "3")
	form.Set("wound_width_cm", "3")

	rec := postForm(handler, "/orders", form, doctorUser("D-001"))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var created models.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	// 9 sq cm wound: 2x4 (8) is too small, 4x4 (16) is the smallest cover.
	if created.QCode != "Q4187" || created.GraftSizeSqCm != 16 {
		t.Errorf("suggestion: got %s/%v, want Q4187/16", created.QCode, created.GraftSizeSqCm)
	}
	if created.Source != models.OrderSourcePortal {
		t.Errorf("source: got %q, want portal", created.Source)
	}
	if created.TerritoryID != "tx-north" {
		t.Errorf("territory: got %q, want tx-north (patient's territory)", created.TerritoryID)
	}
	if !strings.HasPrefix(created.OrderNumber, "ORD-") {
		t.Errorf("order number: got %q", created.OrderNumber)
	}
}

func TestHandleCreate_NoAdequateGraft(t *testing.T) {
	handler, db := newOrderHandler(t)
	p := seedOrderPatient(t, db, "MRN-001", "D-001", "tx-north")

	form := url.Values{}
	form.Set("patient_id", p.ID.Hex())
	form.Set("wound_length_cm", "20")
	form.Set("wound_width_cm", "20")

	rec := postForm(handler, "/orders", form, adminUser())

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d, got %d: %s", http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	}
}

func TestHandleCreate_OutsideDownlineForbidden(t *testing.T) {
	handler, db := newOrderHandler(t)
	p := seedOrderPatient(t, db, "MRN-002", "D-004", "tx-south")

	form := url.Values{}
	form.Set("patient_id", p.ID.Hex())
	form.Set("wound_length_cm", "2")
	form.Set("wound_width_cm", "2")

	rec := postForm(handler, "/orders", form, distributorUser("regional-dist-1"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestHandleTransition_AdminOnly(t *testing.T) {
	handler, db := newOrderHandler(t)
	p := seedOrderPatient(t, db, "MRN-001", "D-001", "tx-north")
	o := seedOrder(t, db, p, models.OrderPending)

	form := url.Values{}
	form.Set("to", models.OrderApproved)

	rec := postForm(handler, "/orders/"+o.ID.Hex()+"/status", form, distributorUser("regional-dist-1"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestHandleTransition_Approve(t *testing.T) {
	handler, db := newOrderHandler(t)
	p := seedOrderPatient(t, db, "MRN-001", "D-001", "tx-north")
	o := seedOrder(t, db, p, models.OrderPending)

	form := url.Values{}
	form.Set("to", models.OrderApproved)

	rec := postForm(handler, "/orders/"+o.ID.Hex()+"/status", form, adminUser())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	got, err := orderstore.New(db).GetByID(ctx, o.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if got.Status != models.OrderApproved {
		t.Errorf("status: got %q, want approved", got.Status)
	}
}

func TestHandleTransition_SkipMoveRejected(t *testing.T) {
	handler, db := newOrderHandler(t)
	p := seedOrderPatient(t, db, "MRN-001", "D-001", "tx-north")
	o := seedOrder(t, db, p, models.OrderPending)

	form := url.Values{}
	form.Set("to", models.OrderShipped)

	rec := postForm(handler, "/orders/"+o.ID.Hex()+"/status", form, adminUser())

	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}
}

func TestServeSuggest_PicksSmallestAdequateSheet(t *testing.T) {
	handler, _ := newOrderHandler(t)

	req := auth.WithTestUser(httptest.NewRequest("GET", "/orders/suggest?length_cm=2.5&width_cm=3", nil), doctorUser("D-001"))
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var got struct {
		WoundAreaSqCm float64            `json:"wound_area_sq_cm"`
		Suggested     models.GraftOption `json:"suggested"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if got.WoundAreaSqCm != 7.5 {
		t.Errorf("area: got %v, want 7.5", got.WoundAreaSqCm)
	}
	if got.Suggested.SizeSqCm != 8 {
		t.Errorf("suggested sheet: got %v sq cm, want 8", got.Suggested.SizeSqCm)
	}
}

func TestServeSuggest_BadDimensions(t *testing.T) {
	handler, _ := newOrderHandler(t)

	req := auth.WithTestUser(httptest.NewRequest("GET", "/orders/suggest?length_cm=0&width_cm=3", nil), doctorUser("D-001"))
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestServeExportCSV_ScopedToDownline(t *testing.T) {
	handler, db := newOrderHandler(t)
	mine := seedOrderPatient(t, db, "MRN-001", "D-001", "tx-north")
	other := seedOrderPatient(t, db, "MRN-002", "D-004", "tx-south")
	inScope := seedOrder(t, db, mine, models.OrderPending)
	outScope := seedOrder(t, db, other, models.OrderPending)

	req := auth.WithTestUser(httptest.NewRequest("GET", "/orders/export.csv", nil), distributorUser("regional-dist-1"))
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type: got %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, inScope.OrderNumber) {
		t.Errorf("export should include %s", inScope.OrderNumber)
	}
	if strings.Contains(body, outScope.OrderNumber) {
		t.Errorf("export leaked out-of-scope order %s", outScope.OrderNumber)
	}
	if !strings.HasPrefix(body, "order_number,") {
		t.Errorf("export should start with the header row, got %q", body[:40])
	}
}
