// internal/app/features/profile/handler.go
package profile

import (
	loginstore "github.com/dalemusser/ivrhub/internal/app/store/logins"
	userstore "github.com/dalemusser/ivrhub/internal/app/store/portalusers"
	"github.com/dalemusser/ivrhub/internal/app/system/auditlog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves the signed-in user's own account page.
type Handler struct {
	Log    *zap.Logger
	Users  *userstore.Store
	Logins *loginstore.Store
	Audit  *auditlog.Logger
}

func NewHandler(db *mongo.Database, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Log:    logger,
		Users:  userstore.New(db),
		Logins: loginstore.New(db),
		Audit:  audit,
	}
}
