// internal/app/system/normalize/normalize.go
//
// Package normalize trims and canonicalizes user-supplied form and
// query values before they reach validation or the stores.
package normalize

import "strings"

// Email lowercases and trims an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a display name, preserving case.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// Phone trims a phone number, preserving formatting characters.
func Phone(s string) string {
	return strings.TrimSpace(s)
}

// AuthMethod lowercases and trims an auth-method value.
func AuthMethod(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Status lowercases and trims a record-status value.
func Status(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Role lowercases and trims a role value.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// QueryParam trims a free-text query value, preserving case.
func QueryParam(s string) string {
	return strings.TrimSpace(s)
}

// TerritoryID trims a territory filter value. The pseudo-value "all"
// (any case) means no filter and becomes the empty string.
func TerritoryID(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		return ""
	}
	return s
}
