// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/ivrhub/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	// helper: ensure collection exists (with truthful logging) and then validator (if provided)
	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			// DocumentDB or other deployments may not support collMod/validators.
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	// Core collections this app uses
	ensure("portal_users", portalUsersSchema())
	ensure("hierarchy_users", hierarchyUsersSchema())
	ensure("hierarchy_relationships", hierarchyRelationshipsSchema())
	ensure("territories", territoriesSchema())

	// Patient and order data
	ensure("patients", patientsSchema())
	ensure("orders", ordersSchema())
	ensure("calls", callsSchema())

	// These don't strictly need validators; we still ensure the collections exist.
	ensure("login_records", nil)
	ensure("sessions", nil)
	ensure("audit_events", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

// enumOf converts a canonical string slice from the domain models into a
// bson.A enum so the schemas and Go-side validation can't drift apart.
func enumOf(values []string) bson.A {
	out := bson.A{}
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func portalUsersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"full_name", "email", "email_ci", "role"},
			"properties": bson.M{
				"full_name":    bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"full_name_ci": bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"email":        bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"email_ci":     bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"role":         bson.M{"enum": enumOf(models.PortalRoles)},
				"hierarchy_id": bson.M{"bsonType": "string"},
				"phi_access":   bson.M{"bsonType": "bool"},
				"mfa_enabled":  bson.M{"bsonType": "bool"},
				"auth_method":  bson.M{"enum": enumOf(models.AuthMethodValues())},
				"status":       bson.M{"enum": bson.A{"active", "disabled"}},
			},
		},
	}
}

func hierarchyUsersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"email", "email_ci", "full_name", "role"},
			"properties": bson.M{
				"email":        bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"email_ci":     bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"full_name":    bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"full_name_ci": bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"role":         bson.M{"enum": enumOf(models.HierarchyRoles)},

				"parent_id":               bson.M{"bsonType": "string"},
				"distributor_id":          bson.M{"bsonType": "string"},
				"regional_distributor_id": bson.M{"bsonType": "string"},
				"sales_rep_id":            bson.M{"bsonType": "string"},
				"territory_id":            bson.M{"bsonType": "string"},

				"status": bson.M{"enum": bson.A{"active", "disabled"}},
			},
		},
	}
}

func hierarchyRelationshipsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"parent_id", "child_id", "kind"},
			"properties": bson.M{
				"parent_id":  bson.M{"bsonType": "string", "minLength": 1},
				"child_id":   bson.M{"bsonType": "string", "minLength": 1},
				"kind":       bson.M{"enum": enumOf(models.HierarchyRoles)},
				"created_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

func territoriesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "name_ci"},
			"properties": bson.M{
				"name":      bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"name_ci":   bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"code":      bson.M{"bsonType": "string"},
				"state":     bson.M{"bsonType": "string"},
				"time_zone": bson.M{"bsonType": "string"},
				"status":    bson.M{"enum": bson.A{"active", "disabled"}},
			},
		},
	}
}

func patientsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"first_name", "last_name", "mrn", "doctor_id"},
			"properties": bson.M{
				"first_name":   bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"last_name":    bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"last_name_ci": bson.M{"bsonType": "string"},
				"dob":          bson.M{"bsonType": "string"},
				"phone":        bson.M{"bsonType": "string"},
				"mrn":          bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"doctor_id":    bson.M{"bsonType": "string", "minLength": 1},
				"territory_id": bson.M{"bsonType": "string"},
				"status":       bson.M{"enum": bson.A{"active", "archived"}},
			},
		},
	}
}

func ordersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"order_number", "patient_id", "doctor_id", "status", "source"},
			"properties": bson.M{
				"order_number": bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"patient_id":   bson.M{"bsonType": "objectId"},
				"doctor_id":    bson.M{"bsonType": "string", "minLength": 1},
				"territory_id": bson.M{"bsonType": "string"},

				"q_code":           bson.M{"bsonType": "string"},
				"graft_size_sq_cm": bson.M{"bsonType": bson.A{"double", "int", "long"}},
				"wound_length_cm":  bson.M{"bsonType": bson.A{"double", "int", "long"}},
				"wound_width_cm":   bson.M{"bsonType": bson.A{"double", "int", "long"}},

				"status": bson.M{"enum": enumOf(models.OrderStatuses)},
				"source": bson.M{"enum": bson.A{models.OrderSourceIVR, models.OrderSourcePortal}},
				"notes":  bson.M{"bsonType": "string"},
			},
		},
	}
}

func callsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"call_sid", "from", "started_at"},
			"properties": bson.M{
				"call_sid":      bson.M{"bsonType": "string", "minLength": 1},
				"from":          bson.M{"bsonType": "string"},
				"patient_id":    bson.M{"bsonType": bson.A{"objectId", "null"}},
				"doctor_id":     bson.M{"bsonType": "string"},
				"order_id":      bson.M{"bsonType": bson.A{"objectId", "null"}},
				"started_at":    bson.M{"bsonType": "date"},
				"ended_at":      bson.M{"bsonType": bson.A{"date", "null"}},
				"duration_secs": bson.M{"bsonType": bson.A{"int", "long"}},
				"outcome":       bson.M{"enum": enumOf(models.CallOutcomes)},
				"menu_path":     bson.M{"bsonType": "array"},
			},
		},
	}
}
