// internal/app/features/auditlog/routes.go
package auditlog

import (
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)

		pr.Get("/", h.ServeList)
		pr.Get("/failed-logins", h.ServeFailedLogins)
		pr.Get("/denials", h.ServeDenials)
	})

	return r
}
