package relationshipstore_test

import (
	"testing"

	relationshipstore "github.com/dalemusser/ivrhub/internal/app/store/relationships"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/ivrhub/internal/testutil"
)

func TestStore_CreateAndByParent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := relationshipstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.HierarchyRelationship{
		ParentID: "rd-1",
		ChildID:  "d-1",
		Kind:     models.RoleDoctor,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	edges, err := store.ByParent(ctx, "rd-1")
	if err != nil {
		t.Fatalf("ByParent failed: %v", err)
	}
	if len(edges) != 1 || edges[0].ChildID != "d-1" {
		t.Fatalf("edges = %+v, want one edge to d-1", edges)
	}
}

func TestStore_Replace_RewiresChild(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := relationshipstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, models.HierarchyRelationship{ParentID: "rd-1", ChildID: "s-1", Kind: models.RoleSales}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.Replace(ctx, "s-1", "rd-2", models.RoleSales); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	old, err := store.ByParent(ctx, "rd-1")
	if err != nil {
		t.Fatalf("ByParent failed: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("old parent still has %d edges", len(old))
	}

	cur, err := store.ByParent(ctx, "rd-2")
	if err != nil {
		t.Fatalf("ByParent failed: %v", err)
	}
	if len(cur) != 1 || cur[0].ChildID != "s-1" {
		t.Errorf("new parent edges = %+v, want one edge to s-1", cur)
	}
}

func TestStore_DeleteByChild(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := relationshipstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, models.HierarchyRelationship{ParentID: "rd-1", ChildID: "d-9", Kind: models.RoleDoctor}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	n, err := store.DeleteByChild(ctx, "d-9")
	if err != nil {
		t.Fatalf("DeleteByChild failed: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected no edges, got %d", len(all))
	}
}
