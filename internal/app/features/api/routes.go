// internal/app/features/api/routes.go
package api

import (
	"net/http"

	"github.com/dalemusser/ivrhub/internal/app/system/guard"
	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the bearer-token API. Hierarchy traversal admits any valid
// token; the territory order listing additionally requires the territory
// named in the URL.
func Routes(h *Handler, g *guard.Guard) chi.Router {
	r := chi.NewRouter()

	r.Group(func(ar chi.Router) {
		ar.Use(g.Require(guard.Requirements{}))

		ar.Get("/hierarchy", h.ServeRoots)
		ar.Get("/hierarchy/{id}", h.ServeNode)
		ar.Get("/hierarchy/{id}/descendants", h.ServeDescendants)
		ar.Get("/hierarchy/{id}/doctors", h.ServeDoctors)
	})

	r.Route("/territories/{id}/orders", func(tr chi.Router) {
		tr.Use(g.RequireFunc(func(req *http.Request) guard.Requirements {
			return guard.Requirements{Territory: normalize.TerritoryID(chi.URLParam(req, "id"))}
		}))
		tr.Get("/", h.ServeTerritoryOrders)
	})

	return r
}
