// internal/app/store/portalusers/fetcher.go
package userstore

import (
	"context"

	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/app/system/authz"
	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Fetcher implements auth.UserFetcher to load fresh account data on each
// request, so role or territory changes take effect without re-login.
type Fetcher struct {
	users *mongo.Collection
}

// NewFetcher creates a UserFetcher that queries the given database.
func NewFetcher(db *mongo.Database) *Fetcher {
	return &Fetcher{users: db.Collection("portal_users")}
}

// FetchUser retrieves an account by ID and returns nil if the account is not
// found, disabled, or if any error occurs. This implements auth.UserFetcher.
func (f *Fetcher) FetchUser(ctx context.Context, userID string) *auth.SessionUser {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	var u models.PortalUser
	proj := options.FindOne().SetProjection(bson.M{
		"_id":           1,
		"full_name":     1,
		"email":         1,
		"role":          1,
		"status":        1,
		"hierarchy_id":  1,
		"territory_ids": 1,
		"phi_access":    1,
		"mfa_enabled":   1,
	})

	if err := f.users.FindOne(ctx, bson.M{"_id": oid}, proj).Decode(&u); err != nil {
		return nil
	}

	if normalize.Status(u.Status) == "disabled" {
		return nil
	}

	role := normalize.Role(u.Role)
	su := &auth.SessionUser{
		ID:           u.ID.Hex(),
		Name:         u.FullName,
		LoginID:      u.Email,
		Role:         role,
		HierarchyID:  u.HierarchyID,
		TerritoryIDs: u.TerritoryIDs,
		Permissions:  authz.PermissionsForRole(role),
		PHIAccess:    u.PHIAccess,
	}

	// MFAVerified is session-scoped; the session layer carries it across
	// refreshes, so it is not derived from the account record here.

	return su
}

var _ auth.UserFetcher = (*Fetcher)(nil)
