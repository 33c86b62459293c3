// internal/app/system/guard/session.go
package guard

import (
	"context"
	"net/http"

	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/app/system/authz"
)

// SessionVerifier builds claims from the portal session user that
// auth.LoadSessionUser placed in the request context. An anonymous request
// yields invalid claims, never an error.
type SessionVerifier struct{}

func (SessionVerifier) Verify(_ context.Context, r *http.Request) (Claims, error) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		return Claims{}, nil
	}

	perms := u.Permissions
	if len(perms) == 0 {
		perms = authz.PermissionsForRole(u.Role)
	}

	return Claims{
		Valid: true,
		User: TokenUser{
			Roles:       []string{u.Role},
			Permissions: perms,
			Territories: TerritoryList(u.TerritoryIDs),
			MFAVerified: u.MFAVerified,
		},
		PHIAccess: u.PHIAccess,
	}, nil
}
