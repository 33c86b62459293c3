// internal/app/store/territories/territorystore.go
package territorystore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/ivrhub/internal/app/system/status"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

var ErrDuplicateTerritory = errors.New("a territory with this name already exists")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("territories")}
}

// Create inserts a territory. Territory ids are caller-visible strings:
// seed data uses slugs, portal-created territories get UUIDs.
func (s *Store) Create(ctx context.Context, terr models.Territory) (models.Territory, error) {
	now := time.Now().UTC()
	if terr.ID == "" {
		terr.ID = uuid.NewString()
	}
	terr.NameCI = text.Fold(terr.Name)
	if terr.Status == "" {
		terr.Status = status.Active
	}
	terr.CreatedAt = now
	terr.UpdatedAt = now

	exists, err := s.ExistsByNameCI(ctx, terr.NameCI)
	if err != nil {
		return models.Territory{}, err
	}
	if exists {
		return models.Territory{}, ErrDuplicateTerritory
	}

	if _, err := s.c.InsertOne(ctx, terr); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Territory{}, ErrDuplicateTerritory
		}
		return models.Territory{}, err
	}
	return terr, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (models.Territory, error) {
	var terr models.Territory
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&terr)
	if err != nil {
		return models.Territory{}, err
	}
	return terr, nil
}

// GetByIDs loads multiple territories by id.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]models.Territory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var terrs []models.Territory
	if err := cur.All(ctx, &terrs); err != nil {
		return nil, err
	}
	return terrs, nil
}

// Update modifies a territory's mutable fields and refreshes UpdatedAt.
func (s *Store) Update(ctx context.Context, id string, terr models.Territory) error {
	set := bson.M{
		"updated_at": time.Now().UTC(),
	}
	if terr.Name != "" {
		set["name"] = terr.Name
		set["name_ci"] = text.Fold(terr.Name)
	}
	if terr.Code != "" {
		set["code"] = terr.Code
	}
	if terr.State != "" {
		set["state"] = terr.State
	}
	if terr.TimeZone != "" {
		set["time_zone"] = terr.TimeZone
	}
	if terr.Status != "" {
		set["status"] = terr.Status
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateTerritory
		}
		return err
	}
	return nil
}

// Delete removes a territory by id. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ExistsByNameCI checks if a territory with the given case-insensitive name exists.
func (s *Store) ExistsByNameCI(ctx context.Context, nameCI string) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{"name_ci": nameCI}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NameExistsForOther checks if a territory with the given name exists, excluding
// the specified id. Used by update validation so a record can keep its name.
func (s *Store) NameExistsForOther(ctx context.Context, nameCI string, excludeID string) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{
		"name_ci": nameCI,
		"_id":     bson.M{"$ne": excludeID},
	}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Find returns territories matching the given filter with optional find options.
// The caller builds the filter and options (pagination, sorting, projection).
func (s *Store) Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.Territory, error) {
	cur, err := s.c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var terrs []models.Territory
	if err := cur.All(ctx, &terrs); err != nil {
		return nil, err
	}
	return terrs, nil
}

// Count returns the number of territories matching the given filter.
func (s *Store) Count(ctx context.Context, filter bson.M) (int64, error) {
	return s.c.CountDocuments(ctx, filter)
}
