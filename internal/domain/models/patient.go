// internal/domain/models/patient.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Patient is a wound-care patient record. Everything on it is PHI: routes
// serving patients require the phiAccess claim, and list visibility is
// scoped to the caller's downline.
//
// MRN (medical record number) is the external identifier patients key in on
// the IVR line; it is unique across the portal.
type Patient struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FirstName  string             `bson:"first_name" json:"first_name"`
	LastName   string             `bson:"last_name" json:"last_name"`
	LastNameCI string             `bson:"last_name_ci" json:"last_name_ci"` // lowercase, diacritics-stripped
	DOB        string             `bson:"dob,omitempty" json:"dob,omitempty"` // YYYY-MM-DD
	Phone      string             `bson:"phone,omitempty" json:"phone,omitempty"`
	MRN        string             `bson:"mrn" json:"mrn"`

	DoctorID    string `bson:"doctor_id" json:"doctor_id"` // hierarchy user ID of the attending doctor
	TerritoryID string `bson:"territory_id,omitempty" json:"territory_id,omitempty"`

	Status    string    `bson:"status,omitempty" json:"status,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// FullName returns the patient's display name.
func (p *Patient) FullName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	return p.FirstName + " " + p.LastName
}
