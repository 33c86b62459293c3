// internal/domain/models/authmethods.go
package models

// AuthMethod represents an authentication method option for portal accounts.
type AuthMethod struct {
	Value string // The value stored in the database
	Label string // The display label
}

// Canonical auth-method values.
const (
	AuthMethodPassword = "password"
	AuthMethodGoogle   = "google"
	AuthMethodTrust    = "trust"
)

// AllAuthMethods contains all supported auth methods with their display
// labels. This is used for validation and as a reference for all possible
// values.
var AllAuthMethods = []AuthMethod{
	{Value: AuthMethodPassword, Label: "Password"},
	{Value: AuthMethodGoogle, Label: "Google"},
	{Value: AuthMethodTrust, Label: "Trust"},
}

// IsValidAuthMethod checks if a value is a valid auth method.
func IsValidAuthMethod(value string) bool {
	for _, m := range AllAuthMethods {
		if m.Value == value {
			return true
		}
	}
	return false
}

// AuthMethodValues returns just the values of the supported auth methods.
func AuthMethodValues() []string {
	out := make([]string, 0, len(AllAuthMethods))
	for _, m := range AllAuthMethods {
		out = append(out, m.Value)
	}
	return out
}
