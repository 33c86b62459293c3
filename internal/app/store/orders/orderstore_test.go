package orderstore_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	orderstore "github.com/dalemusser/ivrhub/internal/app/store/orders"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/ivrhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_Create_AssignsNumberAndDefaults(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := orderstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.Order{
		PatientID: primitive.NewObjectID(),
		DoctorID:  "d-001",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !strings.HasPrefix(created.OrderNumber, "ORD-") {
		t.Errorf("order number = %q, want ORD- prefix", created.OrderNumber)
	}
	if created.Status != models.OrderPending {
		t.Errorf("status = %q, want pending", created.Status)
	}
	if created.Source != models.OrderSourcePortal {
		t.Errorf("source = %q, want portal", created.Source)
	}

	second, err := store.Create(ctx, models.Order{PatientID: primitive.NewObjectID(), DoctorID: "d-001"})
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if second.OrderNumber == created.OrderNumber {
		t.Errorf("order numbers collided: %q", second.OrderNumber)
	}
}

func TestStore_GetByOrderNumber(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := orderstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.Order{PatientID: primitive.NewObjectID(), DoctorID: "d-001"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	found, err := store.GetByOrderNumber(ctx, created.OrderNumber)
	if err != nil {
		t.Fatalf("GetByOrderNumber failed: %v", err)
	}
	if found == nil || found.ID != created.ID {
		t.Fatalf("GetByOrderNumber = %+v", found)
	}

	missing, err := store.GetByOrderNumber(ctx, "ORD-1999-000000")
	if err != nil {
		t.Fatalf("GetByOrderNumber failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for a missing order number, got %+v", missing)
	}
}

func TestStore_Transition(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := orderstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.Order{PatientID: primitive.NewObjectID(), DoctorID: "d-001"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.Transition(ctx, created.ID, models.OrderPending, models.OrderApproved); err != nil {
		t.Fatalf("pending -> approved failed: %v", err)
	}

	got, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != models.OrderApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}

	// pending -> shipped skips approval and must be rejected.
	err = store.Transition(ctx, created.ID, models.OrderPending, models.OrderShipped)
	if !errors.Is(err, orderstore.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	// Stale from-status loses the race and must not apply.
	err = store.Transition(ctx, created.ID, models.OrderPending, models.OrderCancelled)
	if !errors.Is(err, orderstore.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for stale from-status, got %v", err)
	}
}

func TestStore_CountByStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := orderstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	seed := []struct {
		doctor string
		status string
	}{
		{"d-001", models.OrderPending},
		{"d-001", models.OrderApproved},
		{"d-002", models.OrderPending},
	}
	for _, s := range seed {
		if _, err := store.Create(ctx, models.Order{
			PatientID: primitive.NewObjectID(),
			DoctorID:  s.doctor,
			Status:    s.status,
		}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	counts, err := store.CountByStatus(ctx, []string{"d-001"})
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if counts[models.OrderPending] != 1 || counts[models.OrderApproved] != 1 {
		t.Errorf("counts = %v", counts)
	}

	all, err := store.CountByStatus(ctx, nil)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if all[models.OrderPending] != 2 {
		t.Errorf("all pending = %d, want 2", all[models.OrderPending])
	}
}

func TestStore_StalePending(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := orderstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.Order{PatientID: primitive.NewObjectID(), DoctorID: "d-001"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := db.Collection("orders").UpdateByID(ctx, created.ID, bson.M{
		"$set": bson.M{"updated_at": time.Now().UTC().Add(-72 * time.Hour)},
	}); err != nil {
		t.Fatalf("backdate failed: %v", err)
	}
	if _, err := store.Create(ctx, models.Order{PatientID: primitive.NewObjectID(), DoctorID: "d-002"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	stale, err := store.StalePending(ctx, time.Now().UTC().Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("StalePending failed: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != created.ID {
		t.Errorf("stale = %+v, want only the backdated order", stale)
	}
}
