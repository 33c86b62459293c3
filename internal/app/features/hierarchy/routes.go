// internal/app/features/hierarchy/routes.go
package hierarchy

import (
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)

		pr.Get("/", h.ServeIndex)
		pr.Post("/", h.HandleCreate)
		pr.Get("/verify", h.ServeVerify)

		pr.Get("/{id}", h.ServeNode)
		pr.Get("/{id}/descendants", h.ServeDescendants)
		pr.Get("/{id}/doctors", h.ServeDoctors)
		pr.Post("/{id}/move", h.HandleMove)
		pr.Delete("/{id}", h.HandleDelete)
	})

	return r
}
