// internal/app/features/reports/routes.go
package reports

import (
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)

		pr.Get("/downline", h.ServeDownline)
		pr.Get("/orders_by_territory.csv", h.ServeOrdersByTerritoryCSV)
	})

	return r
}
