// internal/app/features/reports/handler.go
package reports

import (
	callstore "github.com/dalemusser/ivrhub/internal/app/store/calls"
	orderstore "github.com/dalemusser/ivrhub/internal/app/store/orders"
	patientstore "github.com/dalemusser/ivrhub/internal/app/store/patients"
	territorystore "github.com/dalemusser/ivrhub/internal/app/store/territories"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves rollup reports over the caller's slice of the hierarchy.
// Reports aggregate counts only; record-level access stays with the
// patients, orders, and calls features and their own scoping.
type Handler struct {
	Log         *zap.Logger
	Svc         *hierarchy.Service
	Patients    *patientstore.Store
	Orders      *orderstore.Store
	Calls       *callstore.Store
	Territories *territorystore.Store
}

func NewHandler(db *mongo.Database, svc *hierarchy.Service, logger *zap.Logger) *Handler {
	return &Handler{
		Log:         logger,
		Svc:         svc,
		Patients:    patientstore.New(db),
		Orders:      orderstore.New(db),
		Calls:       callstore.New(db),
		Territories: territorystore.New(db),
	}
}
