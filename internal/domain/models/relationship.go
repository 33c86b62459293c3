// internal/domain/models/relationship.go
package models

import "time"

// HierarchyRelationship is a redundant edge record mirroring the parent_id
// link between two hierarchy users. Exactly one document per (parent, child);
// Kind is the child's role identifier.
//
// Every record must correspond to an actual parent_id relationship between
// the two referenced users. Dangling edges are a data-integrity violation
// surfaced by the hierarchy verify sweep.
type HierarchyRelationship struct {
	ParentID  string    `bson:"parent_id" json:"parent_id"`
	ChildID   string    `bson:"child_id" json:"child_id"`
	Kind      string    `bson:"kind" json:"kind"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
