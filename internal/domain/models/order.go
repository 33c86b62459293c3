// internal/domain/models/order.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Canonical order status identifiers.
const (
	OrderPending   = "pending"
	OrderApproved  = "approved"
	OrderShipped   = "shipped"
	OrderCancelled = "cancelled"
)

// OrderStatuses is the full set of allowed order statuses.
var OrderStatuses = []string{
	OrderPending,
	OrderApproved,
	OrderShipped,
	OrderCancelled,
}

// Order sources: how the order entered the system.
const (
	OrderSourceIVR    = "ivr"
	OrderSourcePortal = "portal"
)

// orderTransitions lists the allowed status moves. Cancelled and shipped are
// terminal.
var orderTransitions = map[string][]string{
	OrderPending:  {OrderApproved, OrderCancelled},
	OrderApproved: {OrderShipped, OrderCancelled},
}

// CanTransitionOrder reports whether an order may move from one status to
// another.
func CanTransitionOrder(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValidOrderStatus checks if a value is a valid order status.
func IsValidOrderStatus(status string) bool {
	for _, s := range OrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Order is a product order placed for a patient, either over the IVR line or
// through the portal. Wound dimensions drive Q-code/graft-size selection.
type Order struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderNumber string             `bson:"order_number" json:"order_number"` // human-facing, unique

	PatientID   primitive.ObjectID `bson:"patient_id" json:"patient_id"`
	DoctorID    string             `bson:"doctor_id" json:"doctor_id"` // hierarchy user ID
	TerritoryID string             `bson:"territory_id,omitempty" json:"territory_id,omitempty"`

	QCode         string  `bson:"q_code,omitempty" json:"q_code,omitempty"`
	GraftSizeSqCm float64 `bson:"graft_size_sq_cm,omitempty" json:"graft_size_sq_cm,omitempty"`
	WoundLengthCm float64 `bson:"wound_length_cm,omitempty" json:"wound_length_cm,omitempty"`
	WoundWidthCm  float64 `bson:"wound_width_cm,omitempty" json:"wound_width_cm,omitempty"`

	Status string `bson:"status" json:"status"`
	Source string `bson:"source" json:"source"` // "ivr" | "portal"
	Notes  string `bson:"notes,omitempty" json:"notes,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// WoundAreaSqCm returns the recorded wound area.
func (o *Order) WoundAreaSqCm() float64 {
	return o.WoundLengthCm * o.WoundWidthCm
}
