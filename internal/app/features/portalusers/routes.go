// internal/app/features/portalusers/routes.go
package portalusers

import (
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)

		pr.Get("/", h.ServeList)
		pr.Post("/", h.HandleCreate)

		pr.Get("/{id}", h.ServeDetail)
		pr.Post("/{id}", h.HandleUpdate)
		pr.Post("/{id}/status", h.HandleStatus)
		pr.Delete("/{id}", h.HandleDelete)
	})

	return r
}
