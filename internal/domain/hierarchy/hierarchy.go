// internal/domain/hierarchy/hierarchy.go
//
// Package hierarchy answers ancestry and descendancy questions over the
// distributor forest (master distributor → distributor → sales rep → doctor).
// Traversals are written against the Directory capability so the same
// algorithms run over Mongo-backed data and in-memory fixtures.
package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/ivrhub/internal/domain/models"
)

// ErrIntegrity reports corrupted hierarchy data: a cycle in the parent
// chain or a node reachable through more than one parent. Wrap checks
// should use errors.Is.
var ErrIntegrity = errors.New("hierarchy integrity violation")

// Directory is the read surface the traversal operations need.
// Lookups return (nil, nil) when no user matches; callers check for
// absence rather than a not-found error.
type Directory interface {
	ByID(ctx context.Context, id string) (*models.HierarchyUser, error)
	ByEmail(ctx context.Context, email string) (*models.HierarchyUser, error)
	ChildrenOf(ctx context.Context, parentID string) ([]models.HierarchyUser, error)
	Roots(ctx context.Context) ([]models.HierarchyUser, error)
}

// Service runs traversal queries over a Directory.
type Service struct {
	dir Directory
}

func NewService(dir Directory) *Service {
	return &Service{dir: dir}
}

// Lookup returns the user with the given id, or nil when none exists.
func (s *Service) Lookup(ctx context.Context, id string) (*models.HierarchyUser, error) {
	return s.dir.ByID(ctx, id)
}

// LookupByEmail returns the user with the given email (case-insensitive),
// or nil when none exists.
func (s *Service) LookupByEmail(ctx context.Context, email string) (*models.HierarchyUser, error) {
	return s.dir.ByEmail(ctx, email)
}

// Children returns the direct children of id in insertion order.
func (s *Service) Children(ctx context.Context, id string) ([]models.HierarchyUser, error) {
	return s.dir.ChildrenOf(ctx, id)
}

// Roots returns the users with no parent link, in insertion order. Roots
// are not children of anything; Children never returns them.
func (s *Service) Roots(ctx context.Context) ([]models.HierarchyUser, error) {
	return s.dir.Roots(ctx)
}

// Descendants returns every user below id, flattened breadth-first.
// The root itself is not included. A node encountered twice means the
// data holds a cycle or a double parent link; the walk stops and
// reports ErrIntegrity instead of looping.
func (s *Service) Descendants(ctx context.Context, id string) ([]models.HierarchyUser, error) {
	seen := map[string]bool{id: true}
	queue := []string{id}
	var out []models.HierarchyUser
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		kids, err := s.dir.ChildrenOf(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, k := range kids {
			if seen[k.ID] {
				return nil, fmt.Errorf("%w: %s reached twice in the downline of %s", ErrIntegrity, k.ID, id)
			}
			seen[k.ID] = true
			out = append(out, k)
			queue = append(queue, k.ID)
		}
	}
	return out, nil
}

// IsDescendant reports whether candidateID sits in the downline of
// ancestorID. A user is not its own descendant. The check walks parent
// links upward from the candidate; a dangling parent reference ends the
// walk with a false result.
func (s *Service) IsDescendant(ctx context.Context, candidateID, ancestorID string) (bool, error) {
	if candidateID == ancestorID {
		return false, nil
	}
	cur, err := s.dir.ByID(ctx, candidateID)
	if err != nil {
		return false, err
	}
	seen := map[string]bool{}
	for cur != nil && cur.HasParent() {
		if seen[cur.ID] {
			return false, fmt.Errorf("%w: cycle through %s above %s", ErrIntegrity, cur.ID, candidateID)
		}
		seen[cur.ID] = true
		if cur.ParentID == ancestorID {
			return true, nil
		}
		cur, err = s.dir.ByID(ctx, cur.ParentID)
		if err != nil {
			return false, err
		}
	}
	return false, nil
}

// DoctorsInDownline returns the doctors among the descendants of id.
func (s *Service) DoctorsInDownline(ctx context.Context, id string) ([]models.HierarchyUser, error) {
	desc, err := s.Descendants(ctx, id)
	if err != nil {
		return nil, err
	}
	var doctors []models.HierarchyUser
	for _, u := range desc {
		if u.Role == models.RoleDoctor {
			doctors = append(doctors, u)
		}
	}
	return doctors, nil
}

// AncestorPath returns the chain from the root down to id, inclusive.
// The walk ends silently at a node with no parent or whose parent no
// longer exists; a repeated node reports ErrIntegrity. A missing id
// yields (nil, nil).
func (s *Service) AncestorPath(ctx context.Context, id string) ([]models.HierarchyUser, error) {
	u, err := s.dir.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, nil
	}
	path := []models.HierarchyUser{*u}
	seen := map[string]bool{u.ID: true}
	for u.HasParent() {
		parent, err := s.dir.ByID(ctx, u.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		if seen[parent.ID] {
			return nil, fmt.Errorf("%w: cycle through %s on the path above %s", ErrIntegrity, parent.ID, id)
		}
		seen[parent.ID] = true
		path = append(path, *parent)
		u = parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Refs holds the denormalized ancestor references stored on each user:
// the nearest master distributor, distributor, and sales rep above it.
type Refs struct {
	DistributorID         string
	RegionalDistributorID string
	SalesRepID            string
}

// DeriveRefs computes the ancestor references for a user placed under
// parentID. The parent itself counts as its own nearest ancestor for
// its role tier. An empty parentID yields empty refs.
func (s *Service) DeriveRefs(ctx context.Context, parentID string) (Refs, error) {
	var refs Refs
	if parentID == "" {
		return refs, nil
	}
	path, err := s.AncestorPath(ctx, parentID)
	if err != nil {
		return Refs{}, err
	}
	// Path runs root → parent; scan from the parent end so the
	// nearest ancestor of each tier wins.
	for i := len(path) - 1; i >= 0; i-- {
		switch a := path[i]; a.Role {
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
	}
	return refs, nil
}
