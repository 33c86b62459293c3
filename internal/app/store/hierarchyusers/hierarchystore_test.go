package hierarchystore_test

import (
	"errors"
	"testing"

	hierarchystore "github.com/dalemusser/ivrhub/internal/app/store/hierarchyusers"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/ivrhub/internal/testutil"
)

func TestStore_InsertAndByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := hierarchystore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := models.HierarchyUser{
		ID:       "md-1",
		Email:    "Master@Example.com",
		FullName: "Master One",
		Role:     models.RoleMasterDistributor,
	}

	created, err := store.Insert(ctx, u)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if created.EmailCI == "" || created.FullNameCI == "" {
		t.Error("expected CI shadow fields to be set")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
	if created.Status != "active" {
		t.Errorf("status = %q, want active", created.Status)
	}

	found, err := store.ByID(ctx, "md-1")
	if err != nil {
		t.Fatalf("ByID failed: %v", err)
	}
	if found == nil || found.Email != "Master@Example.com" {
		t.Fatalf("ByID = %+v, want the inserted user", found)
	}
}

func TestStore_ByID_MissingReturnsNil(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := hierarchystore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	found, err := store.ByID(ctx, "nobody")
	if err != nil {
		t.Fatalf("ByID failed: %v", err)
	}
	if found != nil {
		t.Errorf("ByID = %+v, want nil for a missing id", found)
	}
}

func TestStore_ByEmail_CaseInsensitive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := hierarchystore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.Insert(ctx, models.HierarchyUser{
		ID:    "s-1",
		Email: "Rep@Example.com",
		Role:  models.RoleSales,
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	found, err := store.ByEmail(ctx, "rep@EXAMPLE.com")
	if err != nil {
		t.Fatalf("ByEmail failed: %v", err)
	}
	if found == nil || found.ID != "s-1" {
		t.Fatalf("ByEmail = %+v, want s-1", found)
	}
}

func TestStore_Insert_DuplicateEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := hierarchystore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Insert(ctx, models.HierarchyUser{ID: "a", Email: "dup@example.com", Role: models.RoleSales}); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	_, err := store.Insert(ctx, models.HierarchyUser{ID: "b", Email: "DUP@example.com", Role: models.RoleSales})
	if !errors.Is(err, hierarchystore.ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestStore_ChildrenOf_InsertionOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := hierarchystore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	seedForest(t, store)

	kids, err := store.ChildrenOf(ctx, "md-1")
	if err != nil {
		t.Fatalf("ChildrenOf failed: %v", err)
	}
	if len(kids) != 2 {
		t.Fatalf("len(children) = %d, want 2", len(kids))
	}
	if kids[0].ID != "rd-1" || kids[1].ID != "rd-2" {
		t.Errorf("children order = [%s %s], want [rd-1 rd-2]", kids[0].ID, kids[1].ID)
	}
}

// TestStore_Roots matches on an absent parent_id as well as an empty one,
// so roots answer whether the document omitted the field on insert or had
// it unset by a move.
func TestStore_Roots(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := hierarchystore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	seedForest(t, store)

	roots, err := store.Roots(ctx)
	if err != nil {
		t.Fatalf("Roots failed: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != "md-1" {
		t.Fatalf("roots = %+v, want [md-1]", roots)
	}

	// Promoting rd-2 to a root clears its parent link entirely.
	if err := store.UpdatePlacement(ctx, "rd-2", "", "", "", ""); err != nil {
		t.Fatalf("UpdatePlacement failed: %v", err)
	}
	roots, err = store.Roots(ctx)
	if err != nil {
		t.Fatalf("Roots after move failed: %v", err)
	}
	if len(roots) != 2 || roots[0].ID != "md-1" || roots[1].ID != "rd-2" {
		t.Errorf("roots after move = %+v, want [md-1 rd-2]", roots)
	}

	// The promoted node must no longer answer as a child of anything.
	kids, err := store.ChildrenOf(ctx, "md-1")
	if err != nil {
		t.Fatalf("ChildrenOf failed: %v", err)
	}
	if len(kids) != 1 || kids[0].ID != "rd-1" {
		t.Errorf("children of md-1 = %+v, want [rd-1]", kids)
	}
}

// TestStore_ServesTraversalService exercises the store through the same
// Directory interface the in-memory tests use, so Mongo-backed traversal
// answers match.
func TestStore_ServesTraversalService(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := hierarchystore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	seedForest(t, store)
	svc := hierarchy.NewService(store)

	desc, err := svc.Descendants(ctx, "md-1")
	if err != nil {
		t.Fatalf("Descendants failed: %v", err)
	}
	if len(desc) != 4 {
		t.Errorf("len(descendants) = %d, want 4", len(desc))
	}

	docs, err := svc.DoctorsInDownline(ctx, "rd-1")
	if err != nil {
		t.Fatalf("DoctorsInDownline failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "d-1" {
		t.Errorf("doctors = %+v, want [d-1]", docs)
	}

	ok, err := svc.IsDescendant(ctx, "d-1", "md-1")
	if err != nil {
		t.Fatalf("IsDescendant failed: %v", err)
	}
	if !ok {
		t.Error("expected d-1 to be a descendant of md-1")
	}
}

func TestStore_Delete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := hierarchystore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	seedForest(t, store)

	n, err := store.Delete(ctx, "d-1")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	found, err := store.ByID(ctx, "d-1")
	if err != nil {
		t.Fatalf("ByID failed: %v", err)
	}
	if found != nil {
		t.Error("expected d-1 to be gone")
	}
}

func TestStore_CountByRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := hierarchystore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	seedForest(t, store)

	counts, err := store.CountByRole(ctx)
	if err != nil {
		t.Fatalf("CountByRole failed: %v", err)
	}
	if counts[models.RoleMasterDistributor] != 1 || counts[models.RoleDistributor] != 2 || counts[models.RoleDoctor] != 2 {
		t.Errorf("counts = %v", counts)
	}
}

// seedForest inserts md-1 → {rd-1 → d-1, rd-2 → d-2}.
func seedForest(t *testing.T, store *hierarchystore.Store) {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	users := []models.HierarchyUser{
		{ID: "md-1", Email: "md1@example.com", Role: models.RoleMasterDistributor},
		{ID: "rd-1", Email: "rd1@example.com", Role: models.RoleDistributor, ParentID: "md-1", DistributorID: "md-1"},
		{ID: "rd-2", Email: "rd2@example.com", Role: models.RoleDistributor, ParentID: "md-1", DistributorID: "md-1"},
		{ID: "d-1", Email: "d1@example.com", Role: models.RoleDoctor, ParentID: "rd-1", DistributorID: "md-1", RegionalDistributorID: "rd-1"},
		{ID: "d-2", Email: "d2@example.com", Role: models.RoleDoctor, ParentID: "rd-2", DistributorID: "md-1", RegionalDistributorID: "rd-2"},
	}
	for _, u := range users {
		if _, err := store.Insert(ctx, u); err != nil {
			t.Fatalf("seed insert %s: %v", u.ID, err)
		}
	}
}
