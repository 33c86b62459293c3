package territories_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	feature "github.com/dalemusser/ivrhub/internal/app/features/territories"
	hierarchyusers "github.com/dalemusser/ivrhub/internal/app/store/hierarchyusers"
	territorystore "github.com/dalemusser/ivrhub/internal/app/store/territories"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/app/system/paging"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/ivrhub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newTerritoryHandler(t *testing.T) (*feature.Handler, *mongo.Database) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return feature.NewHandler(db, nil, zap.NewNop()), db
}

func adminUser() *auth.SessionUser {
	return &auth.SessionUser{ID: "507f1f77bcf86cd799439031", Name: "Admin", Role: "admin"}
}

func distributorUser() *auth.SessionUser {
	return &auth.SessionUser{ID: "507f1f77bcf86cd799439032", Name: "Distributor", Role: "distributor", HierarchyID: "regional-dist-1"}
}

// routeRequest runs the request through a chi router so URL params resolve.
func routeRequest(h *feature.Handler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/territories", h.ServeList)
	r.Post("/territories", h.HandleCreate)
	r.Get("/territories/{id}", h.ServeDetail)
	r.Post("/territories/{id}", h.HandleUpdate)
	r.Delete("/territories/{id}", h.HandleDelete)
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

func seedTerritory(t *testing.T, db *mongo.Database, id, name string) models.Territory {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	terr, err := territorystore.New(db).Create(ctx, models.Territory{
		ID:       id,
		Name:     name,
		Code:     "TX-N",
		State:    "TX",
		TimeZone: "America/Chicago",
	})
	if err != nil {
		t.Fatalf("seed territory %s: %v", name, err)
	}
	return terr
}

func TestHandleCreate_Defaults(t *testing.T) {
	handler, _ := newTerritoryHandler(t)

	form := url.Values{}
	form.Set("name", "North Texas")
	form.Set("code", "tx-n")
	form.Set("state", "tx")
	form.Set("time_zone", "America/Chicago")

	rec := postForm(handler, "/territories", form, adminUser())

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var created models.Territory
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if created.ID == "" {
		t.Error("created territory should get a generated id")
	}
	if created.Status != "active" {
		t.Errorf("status: got %q, want active", created.Status)
	}
	if created.Code != "TX-N" || created.State != "TX" {
		t.Errorf("code/state should be uppercased, got %q/%q", created.Code, created.State)
	}
	if created.NameCI == "" || created.NameCI == created.Name {
		t.Errorf("name_ci should be the folded name, got %q", created.NameCI)
	}
}

func TestHandleCreate_DuplicateNameCaseInsensitive(t *testing.T) {
	handler, db := newTerritoryHandler(t)
	seedTerritory(t, db, "tx-north", "North Texas")

	form := url.Values{}
	form.Set("name", "NORTH TEXAS")

	rec := postForm(handler, "/territories", form, adminUser())

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "duplicate_territory") {
		t.Errorf("expected duplicate_territory error, got %s", rec.Body.String())
	}
}

func TestHandleCreate_RejectsUnknownTimeZone(t *testing.T) {
	handler, _ := newTerritoryHandler(t)

	form := url.Values{}
	form.Set("name", "Mars Colony")
	form.Set("time_zone", "Mars/Olympus_Mons")

	rec := postForm(handler, "/territories", form, adminUser())

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHandleCreate_NonAdminForbidden(t *testing.T) {
	handler, _ := newTerritoryHandler(t)

	form := url.Values{}
	form.Set("name", "South Texas")

	rec := postForm(handler, "/territories", form, distributorUser())

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestServeList_SortsByFoldedName(t *testing.T) {
	handler, db := newTerritoryHandler(t)
	seedTerritory(t, db, "tx-south", "south texas")
	seedTerritory(t, db, "tx-north", "North Texas")
	seedTerritory(t, db, "ok-east", "Eastern Oklahoma")

	req := auth.WithTestUser(httptest.NewRequest("GET", "/territories", nil), distributorUser())
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var page struct {
		Territories []models.Territory `json:"territories"`
		Total       int64              `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if page.Total != 3 || len(page.Territories) != 3 {
		t.Fatalf("expected 3 territories, got total=%d len=%d", page.Total, len(page.Territories))
	}
	want := []string{"Eastern Oklahoma", "North Texas", "south texas"}
	for i, name := range want {
		if page.Territories[i].Name != name {
			t.Errorf("row %d: got %q, want %q", i, page.Territories[i].Name, name)
		}
	}
}

func TestServeList_SearchFiltersByPrefix(t *testing.T) {
	handler, db := newTerritoryHandler(t)
	seedTerritory(t, db, "tx-north", "North Texas")
	seedTerritory(t, db, "ok-east", "Eastern Oklahoma")

	req := auth.WithTestUser(httptest.NewRequest("GET", "/territories?q=north", nil), adminUser())
	rec := routeRequest(handler, req)

	var page struct {
		Territories []models.Territory `json:"territories"`
		Total       int64              `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if page.Total != 1 || len(page.Territories) != 1 {
		t.Fatalf("expected 1 match, got total=%d len=%d", page.Total, len(page.Territories))
	}
	if page.Territories[0].ID != "tx-north" {
		t.Errorf("match: got %q, want tx-north", page.Territories[0].ID)
	}
}

func TestServeList_KeysetPagination(t *testing.T) {
	handler, db := newTerritoryHandler(t)
	for i := 0; i < paging.PageSize+5; i++ {
		seedTerritory(t, db, fmt.Sprintf("zone-%03d", i), fmt.Sprintf("Zone %03d", i))
	}

	req := auth.WithTestUser(httptest.NewRequest("GET", "/territories", nil), adminUser())
	rec := routeRequest(handler, req)

	var first struct {
		Territories []models.Territory `json:"territories"`
		HasNext     bool               `json:"has_next"`
		HasPrev     bool               `json:"has_prev"`
		NextCursor  string             `json:"next_cursor"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("failed to parse first page: %v", err)
	}
	if len(first.Territories) != paging.PageSize {
		t.Fatalf("first page: got %d rows, want %d", len(first.Territories), paging.PageSize)
	}
	if !first.HasNext || first.HasPrev {
		t.Errorf("first page: has_next=%v has_prev=%v", first.HasNext, first.HasPrev)
	}

	req = auth.WithTestUser(httptest.NewRequest("GET", "/territories?after="+url.QueryEscape(first.NextCursor), nil), adminUser())
	rec = routeRequest(handler, req)

	var second struct {
		Territories []models.Territory `json:"territories"`
		HasNext     bool               `json:"has_next"`
		HasPrev     bool               `json:"has_prev"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("failed to parse second page: %v", err)
	}
	if len(second.Territories) != 5 {
		t.Fatalf("second page: got %d rows, want 5", len(second.Territories))
	}
	if second.HasNext || !second.HasPrev {
		t.Errorf("second page: has_next=%v has_prev=%v", second.HasNext, second.HasPrev)
	}
	if second.Territories[0].ID != fmt.Sprintf("zone-%03d", paging.PageSize) {
		t.Errorf("second page starts at %q", second.Territories[0].ID)
	}
}

func TestHandleUpdate_RenameCollision(t *testing.T) {
	handler, db := newTerritoryHandler(t)
	seedTerritory(t, db, "tx-north", "North Texas")
	seedTerritory(t, db, "tx-south", "South Texas")

	form := url.Values{}
	form.Set("name", "north TEXAS")

	rec := postForm(handler, "/territories/tx-south", form, adminUser())

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}
}

func TestHandleUpdate_ChangesFields(t *testing.T) {
	handler, db := newTerritoryHandler(t)
	seedTerritory(t, db, "tx-north", "North Texas")

	form := url.Values{}
	form.Set("time_zone", "America/Denver")
	form.Set("status", "disabled")

	rec := postForm(handler, "/territories/tx-north", form, adminUser())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var updated models.Territory
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if updated.TimeZone != "America/Denver" {
		t.Errorf("time_zone: got %q, want America/Denver", updated.TimeZone)
	}
	if updated.Status != "disabled" {
		t.Errorf("status: got %q, want disabled", updated.Status)
	}
	if updated.Name != "North Texas" {
		t.Errorf("name should be unchanged, got %q", updated.Name)
	}
}

func TestHandleUpdate_NotFound(t *testing.T) {
	handler, _ := newTerritoryHandler(t)

	form := url.Values{}
	form.Set("name", "Ghost Zone")

	rec := postForm(handler, "/territories/no-such-id", form, adminUser())

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestHandleDelete_InUseRejected(t *testing.T) {
	handler, db := newTerritoryHandler(t)
	seedTerritory(t, db, "tx-north", "North Texas")

	ctx, cancel := testutil.TestContext()
	defer cancel()
	if _, err := hierarchyusers.New(db).Insert(ctx, models.HierarchyUser{
		ID:          "sales-rep-9",
		Email:       "rep@example.com",
		FullName:    "Rep Nine",
		Role:        models.RoleSales,
		TerritoryID: "tx-north",
	}); err != nil {
		t.Fatalf("seed hierarchy user: %v", err)
	}

	req := auth.WithTestUser(httptest.NewRequest("DELETE", "/territories/tx-north", nil), adminUser())
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "territory_in_use") {
		t.Errorf("expected territory_in_use error, got %s", rec.Body.String())
	}
}

func TestHandleDelete_Unreferenced(t *testing.T) {
	handler, db := newTerritoryHandler(t)
	seedTerritory(t, db, "tx-north", "North Texas")

	req := auth.WithTestUser(httptest.NewRequest("DELETE", "/territories/tx-north", nil), adminUser())
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	_, err := territorystore.New(db).GetByID(ctx, "tx-north")
	if err != mongo.ErrNoDocuments {
		t.Errorf("expected territory to be gone, got err=%v", err)
	}
}

func TestServeDetail_CountsAssignedUsers(t *testing.T) {
	handler, db := newTerritoryHandler(t)
	seedTerritory(t, db, "tx-north", "North Texas")

	ctx, cancel := testutil.TestContext()
	defer cancel()
	if _, err := hierarchyusers.New(db).Insert(ctx, models.HierarchyUser{
		ID:          "D-010",
		Email:       "doc@example.com",
		FullName:    "Dr. Ten",
		Role:        models.RoleDoctor,
		TerritoryID: "tx-north",
	}); err != nil {
		t.Fatalf("seed hierarchy user: %v", err)
	}

	req := auth.WithTestUser(httptest.NewRequest("GET", "/territories/tx-north", nil), adminUser())
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var view struct {
		Territory     models.Territory `json:"territory"`
		AssignedUsers int64            `json:"assigned_users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if view.Territory.ID != "tx-north" {
		t.Errorf("territory: got %q, want tx-north", view.Territory.ID)
	}
	if view.AssignedUsers != 1 {
		t.Errorf("assigned_users: got %d, want 1", view.AssignedUsers)
	}
}
