// internal/app/system/guard/remote.go
package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RemoteVerifier asks an external verification service whether a bearer
// token is valid. The service answers the claims shape directly:
//
//	{ "valid": true,
//	  "user": { "roles": [...], "permissions": [...],
//	            "territories": [...], "mfa_verified": true },
//	  "phiAccess": true }
//
// Network failures and malformed responses are verification errors; the
// middleware collapses them into the same denial as everything else.
type RemoteVerifier struct {
	endpoint string
	client   *http.Client
}

// NewRemoteVerifier points the guard at a verification endpoint. A nil
// client gets a default with a 10s timeout so a hung verifier cannot pin
// requests forever.
func NewRemoteVerifier(endpoint string, client *http.Client) *RemoteVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteVerifier{endpoint: endpoint, client: client}
}

func (v *RemoteVerifier) Verify(ctx context.Context, r *http.Request) (Claims, error) {
	raw := bearerToken(r)
	if raw == "" {
		return Claims{}, nil
	}

	body, err := json.Marshal(map[string]string{"token": raw})
	if err != nil {
		return Claims{}, fmt.Errorf("encode verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return Claims{}, fmt.Errorf("build verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return Claims{}, fmt.Errorf("verification service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Claims{}, fmt.Errorf("verification service returned %d", resp.StatusCode)
	}

	var claims Claims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return Claims{}, fmt.Errorf("decode verification response: %w", err)
	}
	return claims, nil
}
