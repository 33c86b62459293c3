package bootstrap

import (
	"testing"

	hierarchystore "github.com/dalemusser/ivrhub/internal/app/store/hierarchyusers"
	userstore "github.com/dalemusser/ivrhub/internal/app/store/portalusers"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/ivrhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func TestEnsureAdminAccount_CreatesNew(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	deps := DBDeps{MongoDatabase: db}

	if err := ensureAdminAccount(ctx, deps, "ops@ivrhub.example.com", testLogger()); err != nil {
		t.Fatalf("ensureAdminAccount failed: %v", err)
	}

	user, err := userstore.New(db).GetByEmail(ctx, "ops@ivrhub.example.com")
	if err != nil {
		t.Fatalf("failed to find created account: %v", err)
	}
	if user.Role != models.PortalRoleAdmin {
		t.Errorf("expected role %q, got %q", models.PortalRoleAdmin, user.Role)
	}
	if user.HierarchyID != "" {
		t.Errorf("expected admin to carry no hierarchy link, got %q", user.HierarchyID)
	}
	if user.Status != "active" {
		t.Errorf("expected status 'active', got %q", user.Status)
	}
	if user.AuthMethod != models.AuthMethodGoogle {
		t.Errorf("expected google sign-in for a bootstrapped admin, got %q", user.AuthMethod)
	}
}

func TestEnsureAdminAccount_PromotesExisting(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	users := userstore.New(db)
	existing, err := users.Create(ctx, models.PortalUser{
		FullName:    "Dana Porter",
		Email:       "dana@ivrhub.example.com",
		Role:        "sales",
		HierarchyID: "sales-rep-1",
		AuthMethod:  models.AuthMethodPassword,
		Status:      "disabled",
	})
	if err != nil {
		t.Fatalf("failed to seed existing account: %v", err)
	}

	deps := DBDeps{MongoDatabase: db}

	if err := ensureAdminAccount(ctx, deps, "dana@ivrhub.example.com", testLogger()); err != nil {
		t.Fatalf("ensureAdminAccount failed: %v", err)
	}

	user, err := users.GetByID(ctx, existing.ID)
	if err != nil {
		t.Fatalf("failed to reload account: %v", err)
	}
	if user.Role != models.PortalRoleAdmin {
		t.Errorf("expected role %q after promotion, got %q", models.PortalRoleAdmin, user.Role)
	}
	if user.HierarchyID != "" {
		t.Errorf("expected hierarchy link cleared after promotion, got %q", user.HierarchyID)
	}
	if user.Status != "active" {
		t.Errorf("expected status 'active' after promotion, got %q", user.Status)
	}
	if user.FullName != "Dana Porter" {
		t.Errorf("promotion must not rename the account, got %q", user.FullName)
	}
}

func TestEnsureAdminAccount_AlreadyAdmin(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	users := userstore.New(db)
	existing, err := users.Create(ctx, models.PortalUser{
		FullName:   "Carol Hughes",
		Email:      "carol@ivrhub.example.com",
		Role:       models.PortalRoleAdmin,
		AuthMethod: models.AuthMethodGoogle,
		Status:     "active",
	})
	if err != nil {
		t.Fatalf("failed to seed admin account: %v", err)
	}

	deps := DBDeps{MongoDatabase: db}

	if err := ensureAdminAccount(ctx, deps, "carol@ivrhub.example.com", testLogger()); err != nil {
		t.Fatalf("ensureAdminAccount failed: %v", err)
	}

	user, err := users.GetByID(ctx, existing.ID)
	if err != nil {
		t.Fatalf("failed to reload account: %v", err)
	}
	if user.Role != models.PortalRoleAdmin || user.UpdatedAt != existing.UpdatedAt {
		t.Error("expected an existing admin to be left untouched")
	}
}

func TestSeedDemoForest_PopulatesEmptyDatabaseOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	deps := DBDeps{MongoDatabase: db}

	if err := seedDemoForest(ctx, deps, testLogger()); err != nil {
		t.Fatalf("seedDemoForest failed: %v", err)
	}

	users := hierarchystore.New(db)
	roots, err := users.Roots(ctx)
	if err != nil {
		t.Fatalf("Roots failed: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != "master-dist-1" {
		t.Fatalf("roots = %+v, want [master-dist-1]", roots)
	}

	want := int64(len(hierarchy.SeedUsers()))
	n, err := users.Count(ctx, bson.M{})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != want {
		t.Fatalf("seeded users = %d, want %d", n, want)
	}

	// A second run must leave the populated database alone.
	if err := seedDemoForest(ctx, deps, testLogger()); err != nil {
		t.Fatalf("second seedDemoForest failed: %v", err)
	}
	n, err = users.Count(ctx, bson.M{})
	if err != nil {
		t.Fatalf("Count after reseed failed: %v", err)
	}
	if n != want {
		t.Errorf("users after reseed = %d, want %d", n, want)
	}
}
