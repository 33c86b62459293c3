// internal/domain/models/call.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Canonical call outcome identifiers.
const (
	CallCompleted   = "completed"
	CallAbandoned   = "abandoned"
	CallTransferred = "transferred"
)

// CallOutcomes is the full set of allowed call outcomes.
var CallOutcomes = []string{
	CallCompleted,
	CallAbandoned,
	CallTransferred,
}

// IsValidCallOutcome checks if a value is a valid call outcome.
func IsValidCallOutcome(outcome string) bool {
	for _, o := range CallOutcomes {
		if o == outcome {
			return true
		}
	}
	return false
}

// Call is one inbound IVR call. The telephony provider drives call lifecycle;
// the portal only records and reports on it. PatientID/DoctorID/OrderID are
// filled in as the caller identifies themselves and places an order.
type Call struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CallSID string             `bson:"call_sid" json:"call_sid"` // provider correlation ID
	From    string             `bson:"from" json:"from"`         // caller phone, normalized

	PatientID *primitive.ObjectID `bson:"patient_id,omitempty" json:"patient_id,omitempty"`
	DoctorID  string              `bson:"doctor_id,omitempty" json:"doctor_id,omitempty"`
	OrderID   *primitive.ObjectID `bson:"order_id,omitempty" json:"order_id,omitempty"`

	StartedAt    time.Time  `bson:"started_at" json:"started_at"`
	EndedAt      *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
	DurationSecs int64      `bson:"duration_secs,omitempty" json:"duration_secs,omitempty"`

	Outcome  string   `bson:"outcome,omitempty" json:"outcome,omitempty"`
	MenuPath []string `bson:"menu_path,omitempty" json:"menu_path,omitempty"` // prompts visited, in order
}
