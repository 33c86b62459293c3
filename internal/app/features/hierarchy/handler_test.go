package hierarchy_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	feature "github.com/dalemusser/ivrhub/internal/app/features/hierarchy"
	hierarchyusers "github.com/dalemusser/ivrhub/internal/app/store/hierarchyusers"
	relationships "github.com/dalemusser/ivrhub/internal/app/store/relationships"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	hiersvc "github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/ivrhub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// newSeededHandler loads the demo forest into a disposable database and
// returns a handler reading from it.
func newSeededHandler(t *testing.T) (*feature.Handler, *mongo.Database) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	users := hiersvc.SeedUsers()
	userStore := hierarchyusers.New(db)
	for _, u := range users {
		if _, err := userStore.Insert(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	edgeStore := relationships.New(db)
	for _, e := range hiersvc.SeedEdges(users) {
		if _, err := edgeStore.Create(ctx, e); err != nil {
			t.Fatalf("seed edge %s->%s: %v", e.ParentID, e.ChildID, err)
		}
	}

	svc := hiersvc.NewService(userStore)
	return feature.NewHandler(db, svc, nil, zap.NewNop()), db
}

func adminUser() *auth.SessionUser {
	return &auth.SessionUser{ID: "507f1f77bcf86cd799439021", Name: "Admin", Role: "admin"}
}

func distributorUser(hierarchyID string) *auth.SessionUser {
	return &auth.SessionUser{ID: "507f1f77bcf86cd799439022", Name: "Distributor", Role: "distributor", HierarchyID: hierarchyID}
}

// routeRequest runs the request through a chi router so URL params resolve.
func routeRequest(h *feature.Handler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/hierarchy/{id}", h.ServeNode)
	r.Get("/hierarchy/{id}/descendants", h.ServeDescendants)
	r.Get("/hierarchy/{id}/doctors", h.ServeDoctors)
	r.Post("/hierarchy/{id}/move", h.HandleMove)
	r.Delete("/hierarchy/{id}", h.HandleDelete)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestServeNode_AdminSeesAnyNode(t *testing.T) {
	handler, _ := newSeededHandler(t)

	req := auth.WithTestUser(httptest.NewRequest("GET", "/hierarchy/D-001", nil), adminUser())
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var view struct {
		Node struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"node"`
		Path []models.HierarchyUser `json:"path"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if view.Node.ID != "D-001" || view.Node.Role != models.RoleDoctor {
		t.Errorf("node: got %+v", view.Node)
	}
	if len(view.Path) == 0 || view.Path[0].ID != "master-dist-1" {
		t.Errorf("path should start at the root, got %+v", view.Path)
	}
}

func TestServeDoctors_DistributorDownline(t *testing.T) {
	handler, _ := newSeededHandler(t)

	req := auth.WithTestUser(httptest.NewRequest("GET", "/hierarchy/regional-dist-1/doctors", nil), distributorUser("regional-dist-1"))
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var resp struct {
		Users []models.HierarchyUser `json:"users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	got := make([]string, 0, len(resp.Users))
	for _, u := range resp.Users {
		got = append(got, u.ID)
	}
	sort.Strings(got)
	want := []string{"D-001", "D-002", "D-003", "D-006"}
	if len(got) != len(want) {
		t.Fatalf("doctors: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("doctors: got %v, want %v", got, want)
		}
	}
}

func TestServeNode_OutsideDownlineForbidden(t *testing.T) {
	handler, _ := newSeededHandler(t)

	req := auth.WithTestUser(httptest.NewRequest("GET", "/hierarchy/D-001", nil), distributorUser("regional-dist-2"))
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestServeNode_DoctorRoleForbidden(t *testing.T) {
	handler, _ := newSeededHandler(t)

	req := auth.WithTestUser(httptest.NewRequest("GET", "/hierarchy/D-001", nil), &auth.SessionUser{
		ID: "507f1f77bcf86cd799439023", Name: "Dr", Role: "doctor", HierarchyID: "D-001",
	})
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestServeVerify_CleanForest(t *testing.T) {
	handler, _ := newSeededHandler(t)

	req := auth.WithTestUser(httptest.NewRequest("GET", "/hierarchy/verify", nil), adminUser())
	rec := httptest.NewRecorder()
	handler.ServeVerify(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var report struct {
		OK           bool     `json:"ok"`
		CheckedUsers int      `json:"checked_users"`
		Problems     []string `json:"problems"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !report.OK {
		t.Errorf("seeded forest should verify clean, problems: %v", report.Problems)
	}
	if report.CheckedUsers != 12 {
		t.Errorf("checked_users: got %d, want 12", report.CheckedUsers)
	}
}

func TestServeVerify_ReportsDanglingEdge(t *testing.T) {
	handler, db := newSeededHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := relationships.New(db).Create(ctx, models.HierarchyRelationship{
		ParentID: "regional-dist-1",
		ChildID:  "ghost-user",
		Kind:     models.RoleSales,
	}); err != nil {
		t.Fatalf("create dangling edge: %v", err)
	}

	req := auth.WithTestUser(httptest.NewRequest("GET", "/hierarchy/verify", nil), adminUser())
	rec := httptest.NewRecorder()
	handler.ServeVerify(rec, req)

	var report struct {
		OK       bool     `json:"ok"`
		Problems []string `json:"problems"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if report.OK {
		t.Error("dangling edge should fail verification")
	}
	if len(report.Problems) == 0 {
		t.Error("expected at least one problem reported")
	}
}
