// internal/app/store/orders/orderstore.go
package orderstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/ivrhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c        *mongo.Collection
	counters *mongo.Collection
}

var (
	ErrDuplicateOrderNumber = errors.New("an order with this number already exists")
	ErrInvalidTransition    = errors.New("order status transition not allowed")
)

func New(db *mongo.Database) *Store {
	return &Store{
		c:        db.Collection("orders"),
		counters: db.Collection("counters"),
	}
}

// nextOrderNumber allocates the next human-facing order number from a
// per-year counter document. Numbers look like ORD-2026-000187.
func (s *Store) nextOrderNumber(ctx context.Context) (string, error) {
	year := time.Now().UTC().Year()
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": fmt.Sprintf("orders_%d", year)},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%d-%06d", year, doc.Seq), nil
}

// Create inserts an order. The order number is allocated here unless the
// caller supplied one (IVR callbacks carry the provider's number through).
func (s *Store) Create(ctx context.Context, o models.Order) (models.Order, error) {
	now := time.Now().UTC()
	o.ID = primitive.NewObjectID()
	if o.OrderNumber == "" {
		num, err := s.nextOrderNumber(ctx)
		if err != nil {
			return models.Order{}, err
		}
		o.OrderNumber = num
	}
	if o.Status == "" {
		o.Status = models.OrderPending
	}
	if o.Source == "" {
		o.Source = models.OrderSourcePortal
	}
	o.CreatedAt = now
	o.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, o); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Order{}, ErrDuplicateOrderNumber
		}
		return models.Order{}, err
	}
	return o, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	var o models.Order
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if err != nil {
		return models.Order{}, err
	}
	return o, nil
}

// GetByOrderNumber returns the order with the given human-facing number, or
// nil when none exists.
func (s *Store) GetByOrderNumber(ctx context.Context, num string) (*models.Order, error) {
	var o models.Order
	err := s.c.FindOne(ctx, bson.M{"order_number": num}).Decode(&o)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Transition moves an order to a new status. The filter pins the current
// status so two concurrent transitions cannot both win.
func (s *Store) Transition(ctx context.Context, id primitive.ObjectID, from, to string) error {
	if !models.CanTransitionOrder(from, to) {
		return ErrInvalidTransition
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// Update modifies an order's mutable fields and refreshes UpdatedAt. Status
// changes go through Transition, not here.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, o models.Order) error {
	set := bson.M{
		"updated_at": time.Now().UTC(),
	}
	if o.QCode != "" {
		set["q_code"] = o.QCode
	}
	if o.GraftSizeSqCm > 0 {
		set["graft_size_sq_cm"] = o.GraftSizeSqCm
	}
	if o.WoundLengthCm > 0 {
		set["wound_length_cm"] = o.WoundLengthCm
	}
	if o.WoundWidthCm > 0 {
		set["wound_width_cm"] = o.WoundWidthCm
	}
	if o.Notes != "" {
		set["notes"] = o.Notes
	}
	if o.TerritoryID != "" {
		set["territory_id"] = o.TerritoryID
	}
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": set})
	return err
}

// Find returns orders matching the given filter with optional find options.
// The caller builds the filter (downline scoping, status, date range).
func (s *Store) Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.Order, error) {
	cur, err := s.c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var orders []models.Order
	if err := cur.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Count returns the number of orders matching the given filter.
func (s *Store) Count(ctx context.Context, filter bson.M) (int64, error) {
	return s.c.CountDocuments(ctx, filter)
}

// CountByStatus returns order counts grouped by status for the given doctor
// ids. An empty doctorIDs slice counts across all doctors.
func (s *Store) CountByStatus(ctx context.Context, doctorIDs []string) (map[string]int64, error) {
	match := bson.M{}
	if len(doctorIDs) > 0 {
		match["doctor_id"] = bson.M{"$in": doctorIDs}
	}
	return s.groupCount(ctx, match, "$status")
}

// CountByTerritory returns order counts grouped by territory, for the
// orders-by-territory report.
func (s *Store) CountByTerritory(ctx context.Context, filter bson.M) (map[string]int64, error) {
	if filter == nil {
		filter = bson.M{}
	}
	return s.groupCount(ctx, filter, "$territory_id")
}

// CountByDoctor returns order counts grouped by doctor for downline rollups.
func (s *Store) CountByDoctor(ctx context.Context, doctorIDs []string) (map[string]int64, error) {
	if len(doctorIDs) == 0 {
		return map[string]int64{}, nil
	}
	return s.groupCount(ctx, bson.M{"doctor_id": bson.M{"$in": doctorIDs}}, "$doctor_id")
}

func (s *Store) groupCount(ctx context.Context, match bson.M, key string) (map[string]int64, error) {
	cur, err := s.c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": key, "n": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	counts := make(map[string]int64)
	for cur.Next(ctx) {
		var row struct {
			Key string `bson:"_id"`
			N   int64  `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		counts[row.Key] = row.N
	}
	return counts, cur.Err()
}

// StalePending returns pending orders that have not been touched since the
// cutoff. The escalation worker flags these for follow-up.
func (s *Store) StalePending(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	return s.Find(ctx, bson.M{
		"status":     models.OrderPending,
		"updated_at": bson.M{"$lt": cutoff},
	})
}
