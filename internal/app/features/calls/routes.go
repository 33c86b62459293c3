// internal/app/features/calls/routes.go
package calls

import (
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)

		pr.Get("/", h.ServeList)
		pr.Post("/", h.HandleRecord)
		pr.Get("/summary", h.ServeSummary)
		pr.Get("/export.csv", h.ServeExportCSV)

		pr.Get("/{id}", h.ServeDetail)
	})

	return r
}
