// internal/domain/hierarchy/seed.go
package hierarchy

import (
	"time"

	"github.com/dalemusser/ivrhub/internal/domain/models"
)

// SeedUsers returns the demo distributor forest used by development
// seeding and the traversal tests. Two regional distributors hang off
// one master distributor; regional-dist-1 carries two sales reps and a
// house-account doctor (D-006) reporting to it directly.
func SeedUsers() []models.HierarchyUser {
	base := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)
	at := func(n int) time.Time { return base.Add(time.Duration(n) * time.Minute) }
	u := func(n int, id, email, name, role, territoryID, parentID string, refs Refs) models.HierarchyUser {
		return models.HierarchyUser{
			ID:                    id,
			Email:                 email,
			FullName:              name,
			Role:                  role,
			OrganizationID:        "meridian-medical",
			TerritoryID:           territoryID,
			ParentID:              parentID,
			DistributorID:         refs.DistributorID,
			RegionalDistributorID: refs.RegionalDistributorID,
			SalesRepID:            refs.SalesRepID,
			Status:                "active",
			CreatedAt:             at(n),
			UpdatedAt:             at(n),
		}
	}

	underMaster := Refs{DistributorID: "master-dist-1"}
	underRD1 := Refs{DistributorID: "master-dist-1", RegionalDistributorID: "regional-dist-1"}
	underRD2 := Refs{DistributorID: "master-dist-1", RegionalDistributorID: "regional-dist-2"}
	underSR1 := Refs{DistributorID: "master-dist-1", RegionalDistributorID: "regional-dist-1", SalesRepID: "sales-rep-1"}
	underSR2 := Refs{DistributorID: "master-dist-1", RegionalDistributorID: "regional-dist-1", SalesRepID: "sales-rep-2"}
	underSR3 := Refs{DistributorID: "master-dist-1", RegionalDistributorID: "regional-dist-2", SalesRepID: "sales-rep-3"}

	return []models.HierarchyUser{
		u(0, "master-dist-1", "carol.hughes@example.com", "Carol Hughes", models.RoleMasterDistributor, "national", "", Refs{}),
		u(1, "regional-dist-1", "dan.porter@example.com", "Dan Porter", models.RoleDistributor, "tx-north", "master-dist-1", underMaster),
		u(2, "regional-dist-2", "elena.ruiz@example.com", "Elena Ruiz", models.RoleDistributor, "tx-south", "master-dist-1", underMaster),
		u(3, "sales-rep-1", "frank.lee@example.com", "Frank Lee", models.RoleSales, "tx-north", "regional-dist-1", underRD1),
		u(4, "sales-rep-2", "grace.kim@example.com", "Grace Kim", models.RoleSales, "tx-north", "regional-dist-1", underRD1),
		u(5, "D-006", "felix.grant@example.com", "Dr. Felix Grant", models.RoleDoctor, "tx-north", "regional-dist-1", underRD1),
		u(6, "sales-rep-3", "henry.adams@example.com", "Henry Adams", models.RoleSales, "tx-south", "regional-dist-2", underRD2),
		u(7, "D-001", "alice.werner@example.com", "Dr. Alice Werner", models.RoleDoctor, "tx-north", "sales-rep-1", underSR1),
		u(8, "D-002", "brian.soto@example.com", "Dr. Brian Soto", models.RoleDoctor, "tx-north", "sales-rep-1", underSR1),
		u(9, "D-003", "chloe.park@example.com", "Dr. Chloe Park", models.RoleDoctor, "tx-north", "sales-rep-2", underSR2),
		u(10, "D-004", "david.nguyen@example.com", "Dr. David Nguyen", models.RoleDoctor, "tx-south", "sales-rep-3", underSR3),
		u(11, "D-005", "emma.fischer@example.com", "Dr. Emma Fischer", models.RoleDoctor, "tx-south", "sales-rep-3", underSR3),
	}
}

// SeedEdges derives the edge records mirroring the parent links in users.
func SeedEdges(users []models.HierarchyUser) []models.HierarchyRelationship {
	var edges []models.HierarchyRelationship
	for _, u := range users {
		if !u.HasParent() {
			continue
		}
		edges = append(edges, models.HierarchyRelationship{
			ParentID:  u.ParentID,
			ChildID:   u.ID,
			Kind:      u.Role,
			CreatedAt: u.CreatedAt,
		})
	}
	return edges
}
