// internal/app/store/hierarchyusers/hierarchystore.go
package hierarchystore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/ivrhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists hierarchy users and implements hierarchy.Directory, so the
// traversal service runs over this collection the same way it runs over the
// in-memory fixture directory.
type Store struct {
	c *mongo.Collection
}

var (
	ErrDuplicateID    = errors.New("a hierarchy user with this id already exists")
	ErrDuplicateEmail = errors.New("a hierarchy user with this email already exists")
)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("hierarchy_users")}
}

// ByID returns the user with the given id, or nil when none exists.
func (s *Store) ByID(ctx context.Context, id string) (*models.HierarchyUser, error) {
	var u models.HierarchyUser
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ByEmail returns the user with the given email (case-insensitive), or nil
// when none exists.
func (s *Store) ByEmail(ctx context.Context, email string) (*models.HierarchyUser, error) {
	var u models.HierarchyUser
	err := s.c.FindOne(ctx, bson.M{"email_ci": text.Fold(email)}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ChildrenOf returns the users whose parent_id equals parentID, in insertion
// order (created_at ascending, id as tiebreaker).
func (s *Store) ChildrenOf(ctx context.Context, parentID string) ([]models.HierarchyUser, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	cur, err := s.c.Find(ctx, bson.M{"parent_id": parentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var kids []models.HierarchyUser
	if err := cur.All(ctx, &kids); err != nil {
		return nil, err
	}
	return kids, nil
}

// Roots returns the users with no parent link, in insertion order. The
// field is omitted on unparented documents, so the query matches absence
// as well as an explicit empty value.
func (s *Store) Roots(ctx context.Context) ([]models.HierarchyUser, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	filter := bson.M{"$or": []bson.M{
		{"parent_id": bson.M{"$exists": false}},
		{"parent_id": ""},
	}}
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var roots []models.HierarchyUser
	if err := cur.All(ctx, &roots); err != nil {
		return nil, err
	}
	return roots, nil
}

// Insert adds a new hierarchy user. The caller supplies the id (a slug or
// UUID) and the denormalized ancestor refs; CI shadow fields and timestamps
// are filled in here.
func (s *Store) Insert(ctx context.Context, u models.HierarchyUser) (models.HierarchyUser, error) {
	now := time.Now().UTC()
	u.EmailCI = text.Fold(u.Email)
	u.FullNameCI = text.Fold(u.FullName)
	if u.Status == "" {
		u.Status = "active"
	}
	// Seed loading passes its own staggered timestamps so insertion
	// order survives; everything else gets now.
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}

	if u.Email != "" {
		err := s.c.FindOne(ctx, bson.M{"email_ci": u.EmailCI}).Err()
		if err == nil {
			return models.HierarchyUser{}, ErrDuplicateEmail
		}
		if err != mongo.ErrNoDocuments {
			return models.HierarchyUser{}, err
		}
	}

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.HierarchyUser{}, ErrDuplicateID
		}
		return models.HierarchyUser{}, err
	}
	return u, nil
}

// UpdatePlacement rewrites a user's parent link and denormalized ancestor
// refs. Used when a subtree moves; the hierarchy feature recomputes refs for
// every affected descendant and calls this per node.
func (s *Store) UpdatePlacement(ctx context.Context, id, parentID string, distributorID, regionalDistributorID, salesRepID string) error {
	set := bson.M{
		"updated_at": time.Now().UTC(),
	}
	unset := bson.M{}
	// An empty ref is removed, not stored: documents with no parent omit
	// the field entirely, which is what Roots queries for.
	unsetOrSet := func(key, val string) {
		if val == "" {
			unset[key] = ""
			return
		}
		set[key] = val
	}
	unsetOrSet("parent_id", parentID)
	unsetOrSet("distributor_id", distributorID)
	unsetOrSet("regional_distributor_id", regionalDistributorID)
	unsetOrSet("sales_rep_id", salesRepID)

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// UpdateProfile modifies a user's non-structural fields.
func (s *Store) UpdateProfile(ctx context.Context, id string, u models.HierarchyUser) error {
	set := bson.M{
		"updated_at": time.Now().UTC(),
	}
	if u.FullName != "" {
		set["full_name"] = u.FullName
		set["full_name_ci"] = text.Fold(u.FullName)
	}
	if u.Email != "" {
		set["email"] = u.Email
		set["email_ci"] = text.Fold(u.Email)
	}
	if u.TerritoryID != "" {
		set["territory_id"] = u.TerritoryID
	}
	if u.OrganizationID != "" {
		set["organization_id"] = u.OrganizationID
	}
	if u.Status != "" {
		set["status"] = u.Status
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil && wafflemongo.IsDup(err) {
		return ErrDuplicateEmail
	}
	return err
}

// Delete removes a hierarchy user by id. Returns the number of documents
// deleted (0 or 1). Callers must verify the node is a leaf first.
func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// All returns every hierarchy user in insertion order. The integrity sweep
// and the seed loader use it; normal traffic goes through the traversal
// service.
func (s *Store) All(ctx context.Context) ([]models.HierarchyUser, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var users []models.HierarchyUser
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CountByRole returns the number of users holding each role.
func (s *Store) CountByRole(ctx context.Context) (map[string]int64, error) {
	cur, err := s.c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$role", "n": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	counts := make(map[string]int64)
	for cur.Next(ctx) {
		var row struct {
			Role string `bson:"_id"`
			N    int64  `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		counts[row.Role] = row.N
	}
	return counts, cur.Err()
}

// Count returns the number of hierarchy users matching the filter.
func (s *Store) Count(ctx context.Context, filter bson.M) (int64, error) {
	return s.c.CountDocuments(ctx, filter)
}
