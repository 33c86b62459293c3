package portalusers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	feature "github.com/dalemusser/ivrhub/internal/app/features/portalusers"
	userstore "github.com/dalemusser/ivrhub/internal/app/store/portalusers"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/ivrhub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newPortalUserHandler(t *testing.T) (*feature.Handler, *mongo.Database) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	svc := hierarchy.NewService(hierarchy.NewMemory(hierarchy.SeedUsers()...))
	return feature.NewHandler(db, svc, nil, zap.NewNop()), db
}

func adminUser() *auth.SessionUser {
	return &auth.SessionUser{ID: "507f1f77bcf86cd799439091", Name: "Admin", Role: "admin"}
}

func distributorUser(hierarchyID string) *auth.SessionUser {
	return &auth.SessionUser{ID: "507f1f77bcf86cd799439092", Name: "Distributor", Role: "distributor", HierarchyID: hierarchyID}
}

func routeRequest(h *feature.Handler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/portal-users", h.ServeList)
	r.Post("/portal-users", h.HandleCreate)
	r.Get("/portal-users/{id}", h.ServeDetail)
	r.Post("/portal-users/{id}", h.HandleUpdate)
	r.Post("/portal-users/{id}/status", h.HandleStatus)
	r.Delete("/portal-users/{id}", h.HandleDelete)
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

func seedAccount(t *testing.T, db *mongo.Database, name, email, role, hierarchyID string) models.PortalUser {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	u, err := userstore.New(db).Create(ctx, models.PortalUser{
		FullName:    name,
		Email:       email,
		Role:        role,
		HierarchyID: hierarchyID,
		AuthMethod:  models.AuthMethodPassword,
	})
	if err != nil {
		t.Fatalf("seed account %s: %v", email, err)
	}
	return u
}

func createForm(role, hierarchyID string) url.Values {
	form := url.Values{}
	form.Set("full_name", "Dana Porter")
	form.Set("email", "dana.porter@example.com")
	form.Set("role", role)
	form.Set("hierarchy_id", hierarchyID)
	form.Set("auth_method", "password")
	form.Set("temp_password", "first-login-9")
	return form
}

func TestServeList_NonAdminForbidden(t *testing.T) {
	handler, _ := newPortalUserHandler(t)

	req := auth.WithTestUser(httptest.NewRequest("GET", "/portal-users", nil), distributorUser("regional-dist-1"))
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestServeList_FiltersByRoleAndPrefix(t *testing.T) {
	handler, db := newPortalUserHandler(t)
	seedAccount(t, db, "Carol Hughes", "carol@example.com", "master_distributor", "master-dist-1")
	seedAccount(t, db, "Dan Porter", "dan@example.com", "distributor", "regional-dist-1")
	seedAccount(t, db, "Dr. Alice Chen", "achen@example.com", "doctor", "D-001")

	req := auth.WithTestUser(httptest.NewRequest("GET", "/portal-users?role=distributor", nil), adminUser())
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var page struct {
		Accounts []models.PortalUser `json:"accounts"`
		Total    int64               `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if page.Total != 1 || len(page.Accounts) != 1 {
		t.Fatalf("role filter: got total %d, %d rows", page.Total, len(page.Accounts))
	}
	if page.Accounts[0].Email != "dan@example.com" {
		t.Errorf("expected dan@example.com, got %q", page.Accounts[0].Email)
	}

	req = auth.WithTestUser(httptest.NewRequest("GET", "/portal-users?q=car", nil), adminUser())
	rec = routeRequest(handler, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("prefix search failed: %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if page.Total != 1 || page.Accounts[0].FullName != "Carol Hughes" {
		t.Errorf("prefix search: got total %d, rows %+v", page.Total, page.Accounts)
	}
}

func TestServeList_EmailQueryWithStatusPivots(t *testing.T) {
	handler, db := newPortalUserHandler(t)
	seedAccount(t, db, "Carol Hughes", "carol@example.com", "master_distributor", "master-dist-1")
	seedAccount(t, db, "Dan Porter", "dan@example.com", "distributor", "regional-dist-1")

	target := "/portal-users?q=" + url.QueryEscape("dan@") + "&status=active"
	req := auth.WithTestUser(httptest.NewRequest("GET", target, nil), adminUser())
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var page struct {
		Accounts []models.PortalUser `json:"accounts"`
		Total    int64               `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if page.Total != 1 || len(page.Accounts) != 1 {
		t.Fatalf("email search: got total %d, %d rows", page.Total, len(page.Accounts))
	}
	if page.Accounts[0].Email != "dan@example.com" {
		t.Errorf("expected dan@example.com, got %q", page.Accounts[0].Email)
	}
}

func TestHandleCreate_LinksHierarchyRole(t *testing.T) {
	handler, _ := newPortalUserHandler(t)

	rec := postForm(handler, "/portal-users", createForm("distributor", "regional-dist-1"), adminUser())

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var view struct {
		Account models.PortalUser `json:"account"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if view.Account.HierarchyID != "regional-dist-1" {
		t.Errorf("hierarchy_id: got %q", view.Account.HierarchyID)
	}
	if view.Account.Role != "distributor" {
		t.Errorf("role: got %q", view.Account.Role)
	}
	if view.Account.Status != "active" {
		t.Errorf("status: got %q, want active", view.Account.Status)
	}
}

func TestHandleCreate_RoleMustMatchLinkedNode(t *testing.T) {
	handler, _ := newPortalUserHandler(t)

	// regional-dist-1 is a distributor node, not a sales rep.
	rec := postForm(handler, "/portal-users", createForm("sales", "regional-dist-1"), adminUser())

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d: %s", http.StatusBadRequest, rec.Code, rec.Body.String())
	}
}

func TestHandleCreate_HierarchyRoleNeedsLink(t *testing.T) {
	handler, _ := newPortalUserHandler(t)

	rec := postForm(handler, "/portal-users", createForm("doctor", ""), adminUser())

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d: %s", http.StatusBadRequest, rec.Code, rec.Body.String())
	}
}

func TestHandleCreate_DuplicateEmail(t *testing.T) {
	handler, db := newPortalUserHandler(t)
	seedAccount(t, db, "Dana Porter", "dana.porter@example.com", "distributor", "regional-dist-1")

	rec := postForm(handler, "/portal-users", createForm("distributor", "regional-dist-2"), adminUser())

	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}
}

func TestHandleCreate_LinkAlreadyTaken(t *testing.T) {
	handler, db := newPortalUserHandler(t)
	seedAccount(t, db, "Dan Porter", "dan@example.com", "distributor", "regional-dist-1")

	rec := postForm(handler, "/portal-users", createForm("distributor", "regional-dist-1"), adminUser())

	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}
}

func TestHandleCreate_WeakPasswordRejected(t *testing.T) {
	handler, _ := newPortalUserHandler(t)

	form := createForm("distributor", "regional-dist-1")
	form.Set("temp_password", "password")
	rec := postForm(handler, "/portal-users", form, adminUser())

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d: %s", http.StatusBadRequest, rec.Code, rec.Body.String())
	}
}

func TestHandleUpdate_ChangesClaims(t *testing.T) {
	handler, db := newPortalUserHandler(t)
	seeded := seedAccount(t, db, "Dan Porter", "dan@example.com", "distributor", "regional-dist-1")

	form := url.Values{}
	form.Set("full_name", "Dan Porter")
	form.Set("email", "dan@example.com")
	form.Set("role", "distributor")
	form.Set("hierarchy_id", "regional-dist-1")
	form.Set("status", "active")
	form.Set("auth_method", "password")
	form.Add("territory_ids", "tx-north")
	form.Add("territory_ids", "tx-south")
	form.Set("phi_access", "on")
	form.Set("mfa_enabled", "on")
	form.Set("mfa_phone", "+1 555 000 7777")

	rec := postForm(handler, "/portal-users/"+seeded.ID.Hex(), form, adminUser())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var view struct {
		Account models.PortalUser `json:"account"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !view.Account.PHIAccess {
		t.Error("expected phi_access on")
	}
	if !view.Account.MFAEnabled {
		t.Error("expected mfa_enabled on")
	}
	if len(view.Account.TerritoryIDs) != 2 {
		t.Errorf("territory_ids: got %v", view.Account.TerritoryIDs)
	}
	if view.Account.MFAPhone == "" {
		t.Error("expected mfa_phone to be stored")
	}
}

func TestHandleStatus_DisableAndReenable(t *testing.T) {
	handler, db := newPortalUserHandler(t)
	seeded := seedAccount(t, db, "Dan Porter", "dan@example.com", "distributor", "regional-dist-1")

	form := url.Values{}
	form.Set("status", "disabled")
	rec := postForm(handler, "/portal-users/"+seeded.ID.Hex()+"/status", form, adminUser())
	if rec.Code != http.StatusOK {
		t.Fatalf("disable failed: %d: %s", rec.Code, rec.Body.String())
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	reloaded, err := userstore.New(db).GetByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if reloaded.Status != "disabled" {
		t.Errorf("status after disable: got %q", reloaded.Status)
	}

	form.Set("status", "active")
	rec = postForm(handler, "/portal-users/"+seeded.ID.Hex()+"/status", form, adminUser())
	if rec.Code != http.StatusOK {
		t.Fatalf("re-enable failed: %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleStatus_CannotDisableOwnAccount(t *testing.T) {
	handler, db := newPortalUserHandler(t)
	self := seedAccount(t, db, "Admin", "admin@example.com", "admin", "")

	u := &auth.SessionUser{ID: self.ID.Hex(), Name: "Admin", Role: "admin"}
	form := url.Values{}
	form.Set("status", "disabled")
	rec := postForm(handler, "/portal-users/"+self.ID.Hex()+"/status", form, u)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}
}

func TestHandleDelete_CannotDeleteSelf(t *testing.T) {
	handler, db := newPortalUserHandler(t)
	self := seedAccount(t, db, "Admin", "admin@example.com", "admin", "")

	u := &auth.SessionUser{ID: self.ID.Hex(), Name: "Admin", Role: "admin"}
	req := auth.WithTestUser(httptest.NewRequest("DELETE", "/portal-users/"+self.ID.Hex(), nil), u)
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}
}

func TestHandleDelete_RemovesAccount(t *testing.T) {
	handler, db := newPortalUserHandler(t)
	seeded := seedAccount(t, db, "Dan Porter", "dan@example.com", "distributor", "regional-dist-1")

	req := auth.WithTestUser(httptest.NewRequest("DELETE", "/portal-users/"+seeded.ID.Hex(), nil), adminUser())
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if _, err := userstore.New(db).GetByID(ctx, seeded.ID); err != mongo.ErrNoDocuments {
		t.Errorf("expected the account to be gone, got err %v", err)
	}
}
