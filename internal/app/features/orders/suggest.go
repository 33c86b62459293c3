// internal/app/features/orders/suggest.go
package orders

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
)

type suggestion struct {
	WoundAreaSqCm float64            `json:"wound_area_sq_cm"`
	Suggested     models.GraftOption `json:"suggested"`
	Catalog       []models.GraftOption `json:"catalog"`
}

// ServeSuggest handles GET /orders/suggest?length_cm=&width_cm=.
// It is a pure catalog lookup with no record access, so plain sign-in
// suffices.
func (h *Handler) ServeSuggest(w http.ResponseWriter, r *http.Request) {
	if res := gates.RequireAuth(w, r, "/login"); !res.OK {
		return
	}

	length, err1 := strconv.ParseFloat(strings.TrimSpace(query.Get(r, "length_cm")), 64)
	width, err2 := strconv.ParseFloat(strings.TrimSpace(query.Get(r, "width_cm")), 64)
	if err1 != nil || err2 != nil || length <= 0 || width <= 0 {
		webwrite.Error(w, http.StatusBadRequest, "bad_dimensions", "length_cm and width_cm must be positive numbers.")
		return
	}

	opt, found := models.SuggestGraft(length, width)
	if !found {
		webwrite.Error(w, http.StatusUnprocessableEntity, "no_adequate_graft", "No catalog sheet covers a wound of this size.")
		return
	}

	webwrite.JSON(w, suggestion{
		WoundAreaSqCm: length * width,
		Suggested:     opt,
		Catalog:       models.GraftCatalog,
	})
}
