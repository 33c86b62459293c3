// internal/domain/models/territory.go
package models

import "time"

// Territory is a geographic/organizational partition used to scope a user's
// visibility. Hierarchy users and orders reference territories by ID; token
// claims carry the set of territory IDs a caller may act in.
//
// Includes case/diacritic-insensitive fields for search/sort.
type Territory struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	NameCI    string    `bson:"name_ci" json:"name_ci"` // ← always stored
	Code      string    `bson:"code" json:"code"`       // short label, e.g. "TX-N"
	State     string    `bson:"state" json:"state"`
	TimeZone  string    `bson:"time_zone" json:"time_zone"`
	Status    string    `bson:"status" json:"status"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
