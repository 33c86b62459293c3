// internal/domain/models/graftcatalog.go
package models

// GraftOption is one orderable graft sheet: the HCPCS Q-code it bills
// under, the sheet dimensions, and the usable area.
type GraftOption struct {
	QCode    string  `json:"q_code"`
	Label    string  `json:"label"` // sheet dimensions, e.g. "4 cm x 4 cm"
	SizeSqCm float64 `json:"size_sq_cm"`
}

// GraftCatalog is the orderable sheet catalog, ascending by area. Order
// entry suggests the smallest sheet that covers the measured wound.
var GraftCatalog = []GraftOption{
	{QCode: "Q4186", Label: "2 cm x 2 cm", SizeSqCm: 4},
	{QCode: "Q4186", Label: "2 cm x 3 cm", SizeSqCm: 6},
	{QCode: "Q4186", Label: "2 cm x 4 cm", SizeSqCm: 8},
	{QCode: "Q4187", Label: "4 cm x 4 cm", SizeSqCm: 16},
	{QCode: "Q4187", Label: "4 cm x 6 cm", SizeSqCm: 24},
	{QCode: "Q4188", Label: "4 cm x 8 cm", SizeSqCm: 32},
	{QCode: "Q4188", Label: "7 cm x 7 cm", SizeSqCm: 49},
	{QCode: "Q4188", Label: "9 cm x 11 cm", SizeSqCm: 99},
}

// SuggestGraft returns the smallest catalog sheet whose area covers a wound
// of the given dimensions. The second return is false when the dimensions
// are not positive or the wound exceeds the largest sheet.
func SuggestGraft(lengthCm, widthCm float64) (GraftOption, bool) {
	area := lengthCm * widthCm
	if lengthCm <= 0 || widthCm <= 0 {
		return GraftOption{}, false
	}
	for _, opt := range GraftCatalog {
		if opt.SizeSqCm >= area {
			return opt, true
		}
	}
	return GraftOption{}, false
}
