// internal/app/store/relationships/relationshipstore.go
package relationshipstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/ivrhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists the redundant relationship edges that mirror parent_id
// links on hierarchy users. One document per (parent, child); the integrity
// sweep cross-checks edges against the user collection.
type Store struct {
	c *mongo.Collection
}

var ErrDuplicateEdge = errors.New("a relationship between these users already exists")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("hierarchy_relationships")}
}

// Create writes the edge mirroring a new parent link.
func (s *Store) Create(ctx context.Context, rel models.HierarchyRelationship) (models.HierarchyRelationship, error) {
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, rel); err != nil {
		if wafflemongo.IsDup(err) {
			return models.HierarchyRelationship{}, ErrDuplicateEdge
		}
		return models.HierarchyRelationship{}, err
	}
	return rel, nil
}

// Replace rewires the edge for a child after a subtree move: the old edge is
// removed and the new parent edge written in its place.
func (s *Store) Replace(ctx context.Context, childID, newParentID, kind string) error {
	if _, err := s.c.DeleteMany(ctx, bson.M{"child_id": childID}); err != nil {
		return err
	}
	if newParentID == "" {
		return nil
	}
	_, err := s.c.InsertOne(ctx, models.HierarchyRelationship{
		ParentID:  newParentID,
		ChildID:   childID,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	})
	return err
}

// DeleteByChild removes the edge pointing at childID. Used when a leaf is
// deleted from the hierarchy.
func (s *Store) DeleteByChild(ctx context.Context, childID string) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"child_id": childID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ByParent returns the edges leaving parentID, oldest first.
func (s *Store) ByParent(ctx context.Context, parentID string) ([]models.HierarchyRelationship, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"parent_id": parentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rels []models.HierarchyRelationship
	if err := cur.All(ctx, &rels); err != nil {
		return nil, err
	}
	return rels, nil
}

// All returns every edge. The integrity sweep walks the full set.
func (s *Store) All(ctx context.Context) ([]models.HierarchyRelationship, error) {
	cur, err := s.c.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rels []models.HierarchyRelationship
	if err := cur.All(ctx, &rels); err != nil {
		return nil, err
	}
	return rels, nil
}
