// internal/app/features/api/handler.go
//
// Package api is the /api/v1 bearer-token surface: read-only hierarchy
// traversal and territory-scoped order listing for external integrations.
// Access control happens entirely in the guard middleware; handlers assume
// the request already carries verified claims.
package api

import (
	orderstore "github.com/dalemusser/ivrhub/internal/app/store/orders"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	Log    *zap.Logger
	Svc    *hierarchy.Service
	Orders *orderstore.Store
}

func NewHandler(db *mongo.Database, svc *hierarchy.Service, logger *zap.Logger) *Handler {
	return &Handler{
		Log:    logger,
		Svc:    svc,
		Orders: orderstore.New(db),
	}
}
