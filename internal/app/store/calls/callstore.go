// internal/app/store/calls/callstore.go
package callstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/ivrhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store manages IVR call records. The telephony provider posts call events;
// the portal reads them for lists, detail views, and daily summaries.
type Store struct {
	c *mongo.Collection
}

var ErrDuplicateCallSID = errors.New("a call with this provider SID already exists")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("calls")}
}

// Create records a new call.
func (s *Store) Create(ctx context.Context, call models.Call) (models.Call, error) {
	if call.ID.IsZero() {
		call.ID = primitive.NewObjectID()
	}
	if call.StartedAt.IsZero() {
		call.StartedAt = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, call); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Call{}, ErrDuplicateCallSID
		}
		return models.Call{}, err
	}
	return call, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Call, error) {
	var call models.Call
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&call)
	if err != nil {
		return models.Call{}, err
	}
	return call, nil
}

// GetByCallSID returns the call keyed by the provider's correlation id, or
// nil when none exists.
func (s *Store) GetByCallSID(ctx context.Context, sid string) (*models.Call, error) {
	var call models.Call
	err := s.c.FindOne(ctx, bson.M{"call_sid": sid}).Decode(&call)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &call, nil
}

// Complete closes out a call with its outcome. Duration is derived from the
// recorded start so provider clock skew cannot produce negative durations.
func (s *Store) Complete(ctx context.Context, id primitive.ObjectID, endedAt time.Time, outcome string) error {
	call, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	secs := int64(endedAt.Sub(call.StartedAt).Seconds())
	if secs < 0 {
		secs = 0
	}
	_, err = s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"ended_at":      endedAt,
		"duration_secs": secs,
		"outcome":       outcome,
	}})
	return err
}

// LinkPatient attaches an identified patient (and their doctor) to a call.
func (s *Store) LinkPatient(ctx context.Context, id, patientID primitive.ObjectID, doctorID string) error {
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"patient_id": patientID,
		"doctor_id":  doctorID,
	}})
	return err
}

// LinkOrder attaches an order placed during the call.
func (s *Store) LinkOrder(ctx context.Context, id, orderID primitive.ObjectID) error {
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{"order_id": orderID}})
	return err
}

// AppendMenuStep records one IVR prompt visited during the call.
func (s *Store) AppendMenuStep(ctx context.Context, id primitive.ObjectID, step string) error {
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$push": bson.M{"menu_path": step}})
	return err
}

// Find returns calls matching the given filter with optional find options.
// The caller builds the filter (doctor scoping, date range, outcome).
func (s *Store) Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.Call, error) {
	cur, err := s.c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var calls []models.Call
	if err := cur.All(ctx, &calls); err != nil {
		return nil, err
	}
	return calls, nil
}

// Count returns the number of calls matching the given filter.
func (s *Store) Count(ctx context.Context, filter bson.M) (int64, error) {
	return s.c.CountDocuments(ctx, filter)
}

// DaySummary is one day's call volume rollup.
type DaySummary struct {
	Day          string  `bson:"_id" json:"day"` // YYYY-MM-DD, UTC
	Calls        int64   `bson:"calls" json:"calls"`
	Completed    int64   `bson:"completed" json:"completed"`
	Abandoned    int64   `bson:"abandoned" json:"abandoned"`
	AvgDuration  float64 `bson:"avg_duration" json:"avg_duration_secs"`
	OrdersPlaced int64   `bson:"orders_placed" json:"orders_placed"`
}

// SummarizeByDay aggregates call volume per UTC day over the given range,
// optionally scoped to the given doctor ids.
func (s *Store) SummarizeByDay(ctx context.Context, start, end time.Time, doctorIDs []string) ([]DaySummary, error) {
	match := bson.M{
		"started_at": bson.M{"$gte": start, "$lt": end},
	}
	if len(doctorIDs) > 0 {
		match["doctor_id"] = bson.M{"$in": doctorIDs}
	}
	cur, err := s.c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$started_at"}},
			"calls": bson.M{"$sum": 1},
			"completed": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$outcome", models.CallCompleted}}, 1, 0,
			}}},
			"abandoned": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$outcome", models.CallAbandoned}}, 1, 0,
			}}},
			"avg_duration": bson.M{"$avg": "$duration_secs"},
			"orders_placed": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$ifNull": bson.A{"$order_id", false}}, 1, 0,
			}}},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var summaries []DaySummary
	if err := cur.All(ctx, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}
