// internal/app/store/settings/settingsstore.go
package settingsstore

import (
	"context"
	"time"

	"github.com/dalemusser/ivrhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store provides access to the ivr_settings collection. The portal keeps a
// single settings document.
type Store struct {
	c *mongo.Collection
}

// New creates a new settings store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("ivr_settings")}
}

// settingsKey pins the singleton document.
const settingsKey = "portal"

// Get returns the portal settings. If none have been saved yet, returns
// defaults.
func (s *Store) Get(ctx context.Context) (models.IVRSettings, error) {
	var settings models.IVRSettings
	err := s.c.FindOne(ctx, bson.M{"key": settingsKey}).Decode(&settings)
	if err == mongo.ErrNoDocuments {
		return models.IVRSettings{
			OrderCutoffHour:       models.DefaultOrderCutoffHour,
			SessionInactivityMins: models.DefaultSessionInactivityMins,
			TimeZone:              models.DefaultTimeZone,
		}, nil
	}
	if err != nil {
		return models.IVRSettings{}, err
	}
	return settings, nil
}

// Save updates the portal settings. Uses upsert so it works whether settings
// exist or not.
func (s *Store) Save(ctx context.Context, settings models.IVRSettings) error {
	now := time.Now().UTC()
	settings.UpdatedAt = &now

	update := bson.M{
		"$set": bson.M{
			"greeting":                settings.Greeting,
			"support_phone":           settings.SupportPhone,
			"order_cutoff_hour":       settings.OrderCutoffHour,
			"time_zone":               settings.TimeZone,
			"require_admin_mfa":       settings.RequireAdminMFA,
			"session_inactivity_mins": settings.SessionInactivityMins,
			"logo_path":               settings.LogoPath,
			"logo_name":               settings.LogoName,
			"updated_at":              settings.UpdatedAt,
			"updated_by_id":           settings.UpdatedByID,
			"updated_by_name":         settings.UpdatedByName,
		},
		"$setOnInsert": bson.M{
			"_id": primitive.NewObjectID(),
			"key": settingsKey,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := s.c.UpdateOne(ctx, bson.M{"key": settingsKey}, update, opts)
	return err
}

// Exists checks if settings have ever been saved.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	count, err := s.c.CountDocuments(ctx, bson.M{"key": settingsKey})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
