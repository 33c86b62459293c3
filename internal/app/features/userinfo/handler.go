// internal/app/features/userinfo/handler.go
package userinfo

import (
	"net/http"

	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
)

// Handler serves session introspection for authenticated callers.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

type userInfo struct {
	IsAuthenticated bool     `json:"is_authenticated"`
	Name            string   `json:"name,omitempty"`
	LoginID         string   `json:"login_id,omitempty"`
	Role            string   `json:"role,omitempty"`
	HierarchyID     string   `json:"hierarchy_id,omitempty"`
	TerritoryIDs    []string `json:"territory_ids,omitempty"`
	PHIAccess       bool     `json:"phi_access,omitempty"`
	MFAVerified     bool     `json:"mfa_verified,omitempty"`
}

// ServeUserInfo returns the caller's session claims. An anonymous request
// gets is_authenticated: false rather than a 401, so front-end polling can
// detect expiry without error handling.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		webwrite.JSON(w, userInfo{IsAuthenticated: false})
		return
	}

	webwrite.JSON(w, userInfo{
		IsAuthenticated: true,
		Name:            user.Name,
		LoginID:         user.LoginID,
		Role:            user.Role,
		HierarchyID:     user.HierarchyID,
		TerritoryIDs:    user.TerritoryIDs,
		PHIAccess:       user.PHIAccess,
		MFAVerified:     user.MFAVerified,
	})
}
