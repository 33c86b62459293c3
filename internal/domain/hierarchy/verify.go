// internal/domain/hierarchy/verify.go
package hierarchy

import (
	"fmt"

	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
)

// Problem describes one integrity defect found by Verify.
type Problem struct {
	UserID string `json:"user_id,omitempty"`
	Detail string `json:"detail"`
}

func (p Problem) String() string {
	if p.UserID == "" {
		return p.Detail
	}
	return fmt.Sprintf("%s: %s", p.UserID, p.Detail)
}

// Verify sweeps the full user and edge sets for structural defects:
// duplicate ids or emails, unknown or doctor parents, non-master roots,
// cycles in the parent chain, stale denormalized ancestor references,
// and edge records that do not mirror an actual parent link. It returns
// every problem found rather than stopping at the first.
func Verify(users []models.HierarchyUser, edges []models.HierarchyRelationship) []Problem {
	var problems []Problem
	add := func(userID, format string, args ...any) {
		problems = append(problems, Problem{UserID: userID, Detail: fmt.Sprintf(format, args...)})
	}

	byID := make(map[string]*models.HierarchyUser, len(users))
	byEmail := make(map[string]string, len(users))
	for i := range users {
		u := &users[i]
		if _, dup := byID[u.ID]; dup {
			add(u.ID, "duplicate user id")
			continue
		}
		byID[u.ID] = u
		if key := text.Fold(u.Email); key != "" {
			if other, dup := byEmail[key]; dup {
				add(u.ID, "email %s already used by %s", u.Email, other)
			} else {
				byEmail[key] = u.ID
			}
		}
	}

	for i := range users {
		u := &users[i]
		if !models.IsValidHierarchyRole(u.Role) {
			add(u.ID, "unknown role %q", u.Role)
			continue
		}
		if !u.HasParent() {
			if !u.MayBeRoot() {
				add(u.ID, "%s has no parent; only master distributors may be roots", models.RoleLabel[u.Role])
			}
			continue
		}
		parent, ok := byID[u.ParentID]
		if !ok {
			add(u.ID, "parent %s does not exist", u.ParentID)
			continue
		}
		if !parent.CanHaveChildren() {
			add(u.ID, "parent %s is a doctor and cannot have children", parent.ID)
		}
	}

	// Cycle detection: walk each parent chain once, remembering nodes
	// already proven to reach a root.
	safe := make(map[string]bool, len(users))
	for i := range users {
		start := &users[i]
		onPath := map[string]bool{}
		var chain []string
		cur := start
		for cur != nil && !safe[cur.ID] {
			if onPath[cur.ID] {
				add(start.ID, "parent chain cycles through %s", cur.ID)
				chain = nil
				break
			}
			onPath[cur.ID] = true
			chain = append(chain, cur.ID)
			if !cur.HasParent() {
				break
			}
			cur = byID[cur.ParentID]
		}
		for _, id := range chain {
			safe[id] = true
		}
	}

	for i := range users {
		u := &users[i]
		if !safe[u.ID] {
			continue
		}
		want := walkRefs(byID, u.ParentID)
		if u.DistributorID != want.DistributorID {
			add(u.ID, "distributor_id is %q, parent chain says %q", u.DistributorID, want.DistributorID)
		}
		if u.RegionalDistributorID != want.RegionalDistributorID {
			add(u.ID, "regional_distributor_id is %q, parent chain says %q", u.RegionalDistributorID, want.RegionalDistributorID)
		}
		if u.SalesRepID != want.SalesRepID {
			add(u.ID, "sales_rep_id is %q, parent chain says %q", u.SalesRepID, want.SalesRepID)
		}
	}

	linked := make(map[string]string, len(users))
	for i := range users {
		if users[i].HasParent() {
			linked[users[i].ID] = users[i].ParentID
		}
	}
	mirrored := make(map[string]bool, len(edges))
	for _, e := range edges {
		if _, ok := byID[e.ChildID]; !ok {
			add(e.ChildID, "edge child does not exist")
			continue
		}
		if _, ok := byID[e.ParentID]; !ok {
			add(e.ChildID, "edge parent %s does not exist", e.ParentID)
			continue
		}
		if linked[e.ChildID] != e.ParentID {
			add(e.ChildID, "edge claims parent %s but the user record says %q", e.ParentID, linked[e.ChildID])
			continue
		}
		mirrored[e.ChildID] = true
	}
	for id, parentID := range linked {
		if !mirrored[id] {
			add(id, "parent link to %s has no mirroring edge record", parentID)
		}
	}

	return problems
}

// walkRefs recomputes the denormalized ancestor references from the
// parent chain. Callers only pass nodes already proven cycle-free.
func walkRefs(byID map[string]*models.HierarchyUser, parentID string) Refs {
	var refs Refs
	for parentID != "" {
		a, ok := byID[parentID]
		if !ok {
			break
		}
		switch a.Role {
		case models.RoleMasterDistributor:
			if refs.DistributorID == "" {
				refs.DistributorID = a.ID
			}
		case models.RoleDistributor:
			if refs.RegionalDistributorID == "" {
				refs.RegionalDistributorID = a.ID
			}
		case models.RoleSales:
			if refs.SalesRepID == "" {
				refs.SalesRepID = a.ID
			}
		}
		parentID = a.ParentID
	}
	return refs
}
