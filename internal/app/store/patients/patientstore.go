// internal/app/store/patients/patientstore.go
package patientstore

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

// Store persists patient records. Every document here is PHI; list scoping
// by doctor downline happens in the feature layer, which passes the allowed
// doctor ids into Find.
type Store struct {
	c *mongo.Collection
}

var ErrDuplicateMRN = errors.New("a patient with this medical record number already exists")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("patients")}
}

func (s *Store) Create(ctx context.Context, p models.Patient) (models.Patient, error) {
	now := time.Now().UTC()
	p.ID = primitive.NewObjectID()
	p.LastNameCI = text.Fold(p.LastName)
	p.Phone = normalize.Phone(p.Phone)
	if p.Status == "" {
		p.Status = status.Active
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	exists, err := s.MRNExists(ctx, p.MRN)
	if err != nil {
		return models.Patient{}, err
	}
	if exists {
		return models.Patient{}, ErrDuplicateMRN
	}

	if _, err := s.c.InsertOne(ctx, p); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Patient{}, ErrDuplicateMRN
		}
		return models.Patient{}, err
	}
	return p, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Patient, error) {
	var p models.Patient
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		return models.Patient{}, err
	}
	return p, nil
}

// GetByMRN returns the patient keyed by medical record number, or nil when
// none exists. The IVR line identifies callers by MRN.
func (s *Store) GetByMRN(ctx context.Context, mrn string) (*models.Patient, error) {
	var p models.Patient
	err := s.c.FindOne(ctx, bson.M{"mrn": mrn}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MRNExists checks whether a patient with the given MRN exists.
func (s *Store) MRNExists(ctx context.Context, mrn string) (bool, error) {
	if mrn == "" {
		return false, nil
	}
	err := s.c.FindOne(ctx, bson.M{"mrn": mrn}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Update modifies a patient's mutable fields and refreshes UpdatedAt.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, p models.Patient) error {
	set := bson.M{
		"updated_at": time.Now().UTC(),
	}
	if p.FirstName != "" {
		set["first_name"] = p.FirstName
	}
	if p.LastName != "" {
		set["last_name"] = p.LastName
		set["last_name_ci"] = text.Fold(p.LastName)
	}
	if p.DOB != "" {
		set["dob"] = p.DOB
	}
	if p.Phone != "" {
		set["phone"] = normalize.Phone(p.Phone)
	}
	if p.DoctorID != "" {
		set["doctor_id"] = p.DoctorID
	}
	if p.TerritoryID != "" {
		set["territory_id"] = p.TerritoryID
	}
	if p.Status != "" {
		set["status"] = p.Status
	}
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": set})
	return err
}

// Delete removes a patient by ID. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Find returns patients matching the given filter with optional find options.
// The caller builds the filter (downline scoping, search) and options.
func (s *Store) Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.Patient, error) {
	cur, err := s.c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var patients []models.Patient
	if err := cur.All(ctx, &patients); err != nil {
		return nil, err
	}
	return patients, nil
}

// Count returns the number of patients matching the given filter.
func (s *Store) Count(ctx context.Context, filter bson.M) (int64, error) {
	return s.c.CountDocuments(ctx, filter)
}

// CountByDoctor returns patient counts grouped by attending doctor for the
// given doctor ids. Reports use it for downline rollups.
func (s *Store) CountByDoctor(ctx context.Context, doctorIDs []string) (map[string]int64, error) {
	if len(doctorIDs) == 0 {
		return map[string]int64{}, nil
	}
	cur, err := s.c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"doctor_id": bson.M{"$in": doctorIDs}}}},
		{{Key: "$group", Value: bson.M{"_id": "$doctor_id", "n": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	counts := make(map[string]int64)
	for cur.Next(ctx) {
		var row struct {
			DoctorID string `bson:"_id"`
			N        int64  `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		counts[row.DoctorID] = row.N
	}
	return counts, cur.Err()
}
