// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	hierarchystore "github.com/dalemusser/ivrhub/internal/app/store/hierarchyusers"
	"github.com/dalemusser/ivrhub/internal/app/store/oauthstate"
	orderstore "github.com/dalemusser/ivrhub/internal/app/store/orders"
	userstore "github.com/dalemusser/ivrhub/internal/app/store/portalusers"
	relationships "github.com/dalemusser/ivrhub/internal/app/store/relationships"
	sessionstore "github.com/dalemusser/ivrhub/internal/app/store/sessions"
	"github.com/dalemusser/ivrhub/internal/app/system/metrics"
	"github.com/dalemusser/ivrhub/internal/app/system/status"
	"github.com/dalemusser/ivrhub/internal/app/system/tasks"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// taskRunner drives the periodic maintenance jobs for the lifetime of the
// process. Startup creates and starts it; Shutdown stops it.
var taskRunner *tasks.Runner

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It
// registers Prometheus collectors, bootstraps the admin account when one is
// configured, and starts the background maintenance jobs.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	metrics.Init()

	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("database timeout tiers overridden from environment", zap.Int("tiers", n))
	}

	if appCfg.AdminEmail != "" {
		if err := ensureAdminAccount(ctx, deps, appCfg.AdminEmail, logger); err != nil {
			return err
		}
	}

	if appCfg.SeedDemoData {
		if err := seedDemoForest(ctx, deps, logger); err != nil {
			return err
		}
	}

	taskRunner = tasks.NewRunner(logger,
		tasks.InactiveSessionCleanupJob(sessionstore.New(deps.MongoDatabase), logger, appCfg.SessionInactivity),
		tasks.OAuthStateCleanupJob(oauthstate.New(deps.MongoDatabase), logger),
		tasks.StaleOrderEscalationJob(orderstore.New(deps.MongoDatabase), logger, appCfg.StaleOrderMaxAge),
	)
	taskRunner.Start()

	return nil
}

// seedDemoForest loads the demo distributor forest into an empty
// hierarchy collection. A database already holding hierarchy users is
// left alone, so the flag is safe to leave on across dev restarts.
func seedDemoForest(ctx context.Context, deps DBDeps, logger *zap.Logger) error {
	users := hierarchystore.New(deps.MongoDatabase)

	n, err := users.Count(ctx, bson.M{})
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("demo seed skipped: hierarchy users already present", zap.Int64("count", n))
		return nil
	}

	seed := hierarchy.SeedUsers()
	for _, u := range seed {
		if _, err := users.Insert(ctx, u); err != nil {
			return fmt.Errorf("seed hierarchy user %s: %w", u.ID, err)
		}
	}
	edges := relationships.New(deps.MongoDatabase)
	for _, e := range hierarchy.SeedEdges(seed) {
		if _, err := edges.Create(ctx, e); err != nil {
			return fmt.Errorf("seed edge %s under %s: %w", e.ChildID, e.ParentID, err)
		}
	}

	logger.Info("seeded demo distributor forest", zap.Int("users", len(seed)))
	return nil
}

// ensureAdminAccount guarantees that the configured email owns an active
// admin portal account. A missing account is created with Google sign-in
// (no password material to distribute); an existing account is promoted.
// Admin accounts never carry a hierarchy link, so promotion clears it.
func ensureAdminAccount(ctx context.Context, deps DBDeps, email string, logger *zap.Logger) error {
	users := userstore.New(deps.MongoDatabase)

	existing, err := users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == models.PortalRoleAdmin && existing.Status == status.Active {
			logger.Info("admin account already in place", zap.String("email", email))
			return nil
		}
		upd := userstore.AccountUpdate{
			FullName:     existing.FullName,
			Email:        existing.Email,
			Role:         models.PortalRoleAdmin,
			HierarchyID:  "",
			Status:       status.Active,
			TerritoryIDs: existing.TerritoryIDs,
			PHIAccess:    existing.PHIAccess,
			MFAEnabled:   existing.MFAEnabled,
			MFAPhone:     existing.MFAPhone,
		}
		if err := users.Update(ctx, existing.ID, upd); err != nil {
			return err
		}
		logger.Info("promoted existing account to admin",
			zap.String("email", email),
			zap.String("previous_role", existing.Role))
		return nil

	case errors.Is(err, mongo.ErrNoDocuments):
		created, err := users.Create(ctx, models.PortalUser{
			FullName:   "Portal Administrator",
			Email:      email,
			Role:       models.PortalRoleAdmin,
			AuthMethod: models.AuthMethodGoogle,
			Status:     status.Active,
		})
		if err != nil {
			return err
		}
		logger.Info("created admin account",
			zap.String("email", email),
			zap.String("id", created.ID.Hex()))
		return nil

	default:
		return err
	}
}
