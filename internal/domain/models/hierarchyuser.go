// internal/domain/models/hierarchyuser.go
package models

import "time"

// Canonical hierarchy role identifiers.
//
// These values are stored in the database in the HierarchyUser.Role field and
// are used throughout the application as stable keys. Human-facing labels
// come from RoleLabel.
const (
	RoleMasterDistributor = "master_distributor"
	RoleDistributor       = "distributor"
	RoleSales             = "sales"
	RoleDoctor            = "doctor"
)

// HierarchyRoles is the full set of allowed hierarchy role identifiers.
//
// This slice is the single source of truth for validation and schema enums.
var HierarchyRoles = []string{
	RoleMasterDistributor,
	RoleDistributor,
	RoleSales,
	RoleDoctor,
}

// RoleLabel maps a role identifier to its display label.
var RoleLabel = map[string]string{
	RoleMasterDistributor: "Master Distributor",
	RoleDistributor:       "Distributor",
	RoleSales:             "Sales",
	RoleDoctor:            "Doctor",
}

// IsValidHierarchyRole checks if a value is a valid hierarchy role.
func IsValidHierarchyRole(role string) bool {
	for _, r := range HierarchyRoles {
		if r == role {
			return true
		}
	}
	return false
}

// HierarchyUser is a node in the distributor network: master distributors at
// the roots, regional distributors and sales reps in the middle, doctors at
// the leaves. IDs are caller-visible strings (seed data uses slugs, users
// created through the portal get UUIDs).
//
// ParentID links each node to the user who recruited/manages it; empty means
// the node is a root. The three ancestor reference fields are denormalized
// from the parent chain and must stay consistent with it:
//
//   - SalesRepID:            nearest ancestor with role sales
//   - RegionalDistributorID: nearest ancestor with role distributor
//   - DistributorID:         nearest ancestor with role master_distributor
type HierarchyUser struct {
	ID         string `bson:"_id" json:"id"`
	Email      string `bson:"email" json:"email"`
	EmailCI    string `bson:"email_ci" json:"email_ci"` // lowercase, diacritics-stripped
	FullName   string `bson:"full_name" json:"full_name"`
	FullNameCI string `bson:"full_name_ci" json:"full_name_ci"`
	Role       string `bson:"role" json:"role"`

	OrganizationID string `bson:"organization_id,omitempty" json:"organization_id,omitempty"`
	TerritoryID    string `bson:"territory_id,omitempty" json:"territory_id,omitempty"`

	ParentID string `bson:"parent_id,omitempty" json:"parent_id,omitempty"`

	DistributorID         string `bson:"distributor_id,omitempty" json:"distributor_id,omitempty"`
	RegionalDistributorID string `bson:"regional_distributor_id,omitempty" json:"regional_distributor_id,omitempty"`
	SalesRepID            string `bson:"sales_rep_id,omitempty" json:"sales_rep_id,omitempty"`

	Status    string    `bson:"status,omitempty" json:"status,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// HasParent reports whether the user is linked under another hierarchy user.
func (u *HierarchyUser) HasParent() bool {
	return u.ParentID != ""
}

// CanHaveChildren reports whether this user's role may appear above other
// nodes. Doctors are always leaves.
func (u *HierarchyUser) CanHaveChildren() bool {
	return u.Role != RoleDoctor
}

// MayBeRoot reports whether this user's role is allowed to have no parent.
// Only master distributors sit at the top of the forest.
func (u *HierarchyUser) MayBeRoot() bool {
	return u.Role == RoleMasterDistributor
}
