// internal/testutil/fixtures.go
package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateTerritory inserts a test territory and returns it.
func (f *Fixtures) CreateTerritory(ctx context.Context, id, name string) models.Territory {
	f.t.Helper()

	now := time.Now().UTC()
	terr := models.Territory{
		ID:        id,
		Name:      name,
		NameCI:    text.Fold(name),
		Code:      id,
		State:     "TX",
		TimeZone:  "America/Chicago",
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("territories").InsertOne(ctx, terr); err != nil {
		f.t.Fatalf("insert test territory: %v", err)
	}
	return terr
}

// CreateHierarchyUser inserts a hierarchy user with the given id, role, and
// parent, plus the mirroring relationship edge when a parent is set.
func (f *Fixtures) CreateHierarchyUser(ctx context.Context, id, role, parentID string) models.HierarchyUser {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.HierarchyUser{
		ID:         id,
		Email:      id + "@example.com",
		EmailCI:    text.Fold(id + "@example.com"),
		FullName:   "Test " + id,
		FullNameCI: text.Fold("Test " + id),
		Role:       role,
		ParentID:   parentID,
		Status:     "active",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := f.db.Collection("hierarchy_users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("insert test hierarchy user: %v", err)
	}
	if parentID != "" {
		edge := models.HierarchyRelationship{
			ParentID:  parentID,
			ChildID:   id,
			Kind:      role,
			CreatedAt: now,
		}
		if _, err := f.db.Collection("hierarchy_relationships").InsertOne(ctx, edge); err != nil {
			f.t.Fatalf("insert test relationship edge: %v", err)
		}
	}
	return u
}

// CreatePatient inserts a test patient attended by the given doctor.
func (f *Fixtures) CreatePatient(ctx context.Context, lastName, mrn, doctorID string) models.Patient {
	f.t.Helper()

	now := time.Now().UTC()
	p := models.Patient{
		ID:         primitive.NewObjectID(),
		FirstName:  "Test",
		LastName:   lastName,
		LastNameCI: text.Fold(lastName),
		MRN:        mrn,
		DoctorID:   doctorID,
		Status:     "active",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := f.db.Collection("patients").InsertOne(ctx, p); err != nil {
		f.t.Fatalf("insert test patient: %v", err)
	}
	return p
}

// CreateOrder inserts a pending portal order for the given patient/doctor.
func (f *Fixtures) CreateOrder(ctx context.Context, orderNumber string, patientID primitive.ObjectID, doctorID string) models.Order {
	f.t.Helper()

	now := time.Now().UTC()
	o := models.Order{
		ID:          primitive.NewObjectID(),
		OrderNumber: orderNumber,
		PatientID:   patientID,
		DoctorID:    doctorID,
		Status:      models.OrderPending,
		Source:      models.OrderSourcePortal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := f.db.Collection("orders").InsertOne(ctx, o); err != nil {
		f.t.Fatalf("insert test order: %v", err)
	}
	return o
}

// CreatePortalUser inserts a portal account with the given role.
func (f *Fixtures) CreatePortalUser(ctx context.Context, email, role string) models.PortalUser {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.PortalUser{
		ID:         primitive.NewObjectID(),
		FullName:   "Test User",
		FullNameCI: text.Fold("Test User"),
		Email:      email,
		EmailCI:    text.Fold(email),
		Role:       role,
		AuthMethod: models.AuthMethodPassword,
		Status:     "active",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := f.db.Collection("portal_users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("insert test portal user: %v", err)
	}
	return u
}
