// internal/domain/models/portaluser.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PortalRoleAdmin is the operations-staff role. The remaining portal roles
// are the hierarchy roles: portal accounts for distributors, sales reps, and
// doctors link to their hierarchy node via HierarchyID.
const PortalRoleAdmin = "admin"

// PortalRoles is the full set of allowed portal account roles.
var PortalRoles = []string{
	PortalRoleAdmin,
	RoleMasterDistributor,
	RoleDistributor,
	RoleSales,
	RoleDoctor,
}

// IsValidPortalRole checks if a value is a valid portal role.
func IsValidPortalRole(role string) bool {
	for _, r := range PortalRoles {
		if r == role {
			return true
		}
	}
	return false
}

// PortalUser is an account that can sign in to the portal. Email is the
// login identity. Territory membership, PHI access, and the MFA requirement
// recorded here become the claims the access guard evaluates.
type PortalUser struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName   string             `bson:"full_name" json:"full_name"`
	FullNameCI string             `bson:"full_name_ci" json:"full_name_ci"` // lowercase, diacritics-stripped
	Email      string             `bson:"email" json:"email"`
	EmailCI    string             `bson:"email_ci" json:"email_ci"`

	Role        string `bson:"role" json:"role"`
	HierarchyID string `bson:"hierarchy_id,omitempty" json:"hierarchy_id,omitempty"` // linked hierarchy user, empty for admins

	TerritoryIDs []string `bson:"territory_ids,omitempty" json:"territory_ids,omitempty"`
	PHIAccess    bool     `bson:"phi_access" json:"phi_access"`
	MFAEnabled   bool     `bson:"mfa_enabled" json:"mfa_enabled"`
	MFAPhone     string   `bson:"mfa_phone,omitempty" json:"mfa_phone,omitempty"` // normalized; destination for MFA code delivery

	AuthMethod   string `bson:"auth_method,omitempty" json:"auth_method,omitempty"`
	PasswordHash string `bson:"password_hash,omitempty" json:"-"`

	Status    string    `bson:"status,omitempty" json:"status,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// InTerritory reports whether the account is assigned to the given territory.
func (u *PortalUser) InTerritory(id string) bool {
	for _, t := range u.TerritoryIDs {
		if t == id {
			return true
		}
	}
	return false
}
