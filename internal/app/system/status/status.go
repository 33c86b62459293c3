// internal/app/system/status/status.go
//
// Package status holds the record states shared by every collection.
package status

const (
	Active   = "active"
	Disabled = "disabled"
)

// All lists the valid states in display order.
var All = []string{Active, Disabled}

func IsValid(s string) bool {
	for _, v := range All {
		if s == v {
			return true
		}
	}
	return false
}
