// internal/app/system/guard/claims.go
package guard

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TokenUser is the user block of a verified token.
type TokenUser struct {
	Roles       []string      `json:"roles"`
	Permissions []string      `json:"permissions"`
	Territories TerritoryList `json:"territories"`
	MFAVerified bool          `json:"mfa_verified"`
}

// Claims is the verified-token shape the guard consumes. It is produced by
// a Verifier and never mutated by the guard. The zero value is an invalid
// token.
type Claims struct {
	Valid     bool      `json:"valid"`
	User      TokenUser `json:"user"`
	PHIAccess bool      `json:"phiAccess"`
}

// TerritoryList is a set of territory ids. External verifiers sometimes
// send numeric ids; they are normalized to strings on decode.
type TerritoryList []string

func (t *TerritoryList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch x := v.(type) {
		case string:
			out = append(out, x)
		case json.Number:
			out = append(out, x.String())
		default:
			return fmt.Errorf("territory entries must be strings or numbers, got %T", v)
		}
	}
	*t = out
	return nil
}
