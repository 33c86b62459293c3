package hierarchy

import (
	"strings"
	"testing"

	"github.com/dalemusser/ivrhub/internal/domain/models"
)

func problemWith(problems []Problem, userID, fragment string) bool {
	for _, p := range problems {
		if p.UserID == userID && strings.Contains(p.Detail, fragment) {
			return true
		}
	}
	return false
}

func TestVerify_CleanSeedHasNoProblems(t *testing.T) {
	users := SeedUsers()
	problems := Verify(users, SeedEdges(users))
	if len(problems) != 0 {
		t.Errorf("expected a clean seed, got %d problems: %v", len(problems), problems)
	}
}

func TestVerify_UnknownParent(t *testing.T) {
	users := SeedUsers()
	users = append(users, models.HierarchyUser{
		ID: "stray", Role: models.RoleSales, ParentID: "vanished",
	})
	problems := Verify(users, SeedEdges(users))
	if !problemWith(problems, "stray", "does not exist") {
		t.Errorf("expected a dangling-parent problem for stray, got %v", problems)
	}
}

func TestVerify_DoctorWithChild(t *testing.T) {
	users := SeedUsers()
	users = append(users, models.HierarchyUser{
		ID: "under-doc", Role: models.RoleSales, ParentID: "D-001",
		DistributorID: "master-dist-1", RegionalDistributorID: "regional-dist-1", SalesRepID: "sales-rep-1",
	})
	problems := Verify(users, SeedEdges(users))
	if !problemWith(problems, "under-doc", "doctor") {
		t.Errorf("expected a doctor-parent problem, got %v", problems)
	}
}

func TestVerify_NonMasterRoot(t *testing.T) {
	users := SeedUsers()
	users = append(users, models.HierarchyUser{ID: "rogue", Role: models.RoleSales})
	problems := Verify(users, SeedEdges(users))
	if !problemWith(problems, "rogue", "only master distributors may be roots") {
		t.Errorf("expected a root-role problem, got %v", problems)
	}
}

func TestVerify_ParentCycle(t *testing.T) {
	users := []models.HierarchyUser{
		{ID: "a", Role: models.RoleDistributor, ParentID: "b"},
		{ID: "b", Role: models.RoleDistributor, ParentID: "a"},
	}
	problems := Verify(users, nil)
	if !problemWith(problems, "a", "cycles") && !problemWith(problems, "b", "cycles") {
		t.Errorf("expected a cycle problem, got %v", problems)
	}
}

func TestVerify_StaleDenormalizedRefs(t *testing.T) {
	users := SeedUsers()
	for i := range users {
		if users[i].ID == "D-001" {
			users[i].SalesRepID = "sales-rep-2"
		}
	}
	problems := Verify(users, SeedEdges(users))
	if !problemWith(problems, "D-001", "sales_rep_id") {
		t.Errorf("expected a stale sales_rep_id problem, got %v", problems)
	}
}

func TestVerify_EdgeWithoutParentLink(t *testing.T) {
	users := SeedUsers()
	edges := append(SeedEdges(users), models.HierarchyRelationship{
		ParentID: "sales-rep-2", ChildID: "D-001", Kind: models.RoleDoctor,
	})
	problems := Verify(users, edges)
	if !problemWith(problems, "D-001", "edge claims parent") {
		t.Errorf("expected a dangling-edge problem, got %v", problems)
	}
}

func TestVerify_ParentLinkWithoutEdge(t *testing.T) {
	users := SeedUsers()
	edges := SeedEdges(users)
	trimmed := edges[:0]
	for _, e := range edges {
		if e.ChildID != "D-002" {
			trimmed = append(trimmed, e)
		}
	}
	problems := Verify(users, trimmed)
	if !problemWith(problems, "D-002", "no mirroring edge") {
		t.Errorf("expected a missing-edge problem, got %v", problems)
	}
}

func TestVerify_DuplicateEmail(t *testing.T) {
	users := SeedUsers()
	users = append(users, models.HierarchyUser{
		ID: "clone", Email: "ALICE.WERNER@example.com", Role: models.RoleDoctor, ParentID: "sales-rep-1",
		DistributorID: "master-dist-1", RegionalDistributorID: "regional-dist-1", SalesRepID: "sales-rep-1",
	})
	problems := Verify(users, SeedEdges(users))
	if !problemWith(problems, "clone", "already used") {
		t.Errorf("expected a duplicate-email problem, got %v", problems)
	}
}
