// internal/app/features/auditlog/handler.go
package auditlog

import (
	"github.com/dalemusser/ivrhub/internal/app/store/audit"
	userstore "github.com/dalemusser/ivrhub/internal/app/store/portalusers"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves the admin audit trail views.
type Handler struct {
	Log    *zap.Logger
	Events *audit.Store
	Users  *userstore.Store
}

func NewHandler(db *mongo.Database, logger *zap.Logger) *Handler {
	return &Handler{
		Log:    logger,
		Events: audit.New(db),
		Users:  userstore.New(db),
	}
}
