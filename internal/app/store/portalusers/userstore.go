// internal/app/store/portalusers/userstore.go
package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/app/system/status"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("portal_users")}
}

var (
	// ErrDuplicateEmail is returned when attempting to create an account with
	// an email that already exists.
	ErrDuplicateEmail = errors.New("an account with this email already exists")
	errBadRole        = errors.New(`role must be "admin"|"master_distributor"|"distributor"|"sales"|"doctor"`)
	errBadStatus      = errors.New(`status must be "active"|"disabled"`)
	errLinkNeeded     = errors.New("hierarchy roles must link a hierarchy_id")
)

// GetByID loads an account by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.PortalUser, error) {
	var u models.PortalUser
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail looks up an account by case-insensitive email. Returns
// mongo.ErrNoDocuments if not found.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.PortalUser, error) {
	var u models.PortalUser
	if err := s.c.FindOne(ctx, bson.M{"email_ci": text.Fold(normalize.Email(email))}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByHierarchyID loads the account linked to a hierarchy node, or nil when
// the node has no portal account.
func (s *Store) GetByHierarchyID(ctx context.Context, hierarchyID string) (*models.PortalUser, error) {
	var u models.PortalUser
	err := s.c.FindOne(ctx, bson.M{"hierarchy_id": hierarchyID}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new account after normalizing and validating fields.
func (s *Store) Create(ctx context.Context, u models.PortalUser) (models.PortalUser, error) {
	u.ID = primitive.NewObjectID()
	u.FullName = normalize.Name(u.FullName)
	u.FullNameCI = text.Fold(u.FullName)
	u.Email = normalize.Email(u.Email)
	u.EmailCI = text.Fold(u.Email)
	if u.Status == "" {
		u.Status = status.Active
	}

	if !models.IsValidPortalRole(u.Role) {
		return models.PortalUser{}, errBadRole
	}
	if !status.IsValid(u.Status) {
		return models.PortalUser{}, errBadStatus
	}

	// Hierarchy roles sign in as a node in the distribution tree; admins are
	// the only unlinked accounts.
	if u.Role != models.PortalRoleAdmin && u.HierarchyID == "" {
		return models.PortalUser{}, errLinkNeeded
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.PortalUser{}, ErrDuplicateEmail
		}
		return models.PortalUser{}, err
	}
	return u, nil
}

// AccountUpdate holds the fields an admin can change on an account.
type AccountUpdate struct {
	FullName     string
	Email        string
	Role         string
	HierarchyID  string
	Status       string
	TerritoryIDs []string
	PHIAccess    bool
	MFAEnabled   bool
	MFAPhone     string
}

// Update rewrites an account's admin-editable fields. Returns
// ErrDuplicateEmail if the email already belongs to another account.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, upd AccountUpdate) error {
	email := normalize.Email(upd.Email)
	set := bson.M{
		"full_name":     normalize.Name(upd.FullName),
		"full_name_ci":  text.Fold(normalize.Name(upd.FullName)),
		"email":         email,
		"email_ci":      text.Fold(email),
		"role":          upd.Role,
		"hierarchy_id":  upd.HierarchyID,
		"status":        upd.Status,
		"territory_ids": upd.TerritoryIDs,
		"phi_access":    upd.PHIAccess,
		"mfa_enabled":   upd.MFAEnabled,
		"mfa_phone":     normalize.Phone(upd.MFAPhone),
		"updated_at":    time.Now().UTC(),
	}

	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// SetPasswordHash stores a new bcrypt hash for the account.
func (s *Store) SetPasswordHash(ctx context.Context, id primitive.ObjectID, hash string) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"password_hash": hash,
		"updated_at":    time.Now().UTC(),
	}})
	return err
}

// SetStatus enables or disables an account.
func (s *Store) SetStatus(ctx context.Context, id primitive.ObjectID, st string) error {
	if !status.IsValid(st) {
		return errBadStatus
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":     st,
		"updated_at": time.Now().UTC(),
	}})
	return err
}

// Delete removes an account by ID. Returns the number of documents deleted
// (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// EmailExistsForOther checks if an email already exists for an account other
// than the given ID.
func (s *Store) EmailExistsForOther(ctx context.Context, email string, excludeID primitive.ObjectID) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{
		"email_ci": text.Fold(normalize.Email(email)),
		"_id":      bson.M{"$ne": excludeID},
	}).Err()
	if err == nil {
		return true, nil
	}
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	return false, err
}

// Find returns accounts matching the given filter with optional find options.
func (s *Store) Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.PortalUser, error) {
	cur, err := s.c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var users []models.PortalUser
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Count returns the number of accounts matching the given filter.
func (s *Store) Count(ctx context.Context, filter bson.M) (int64, error) {
	return s.c.CountDocuments(ctx, filter)
}
