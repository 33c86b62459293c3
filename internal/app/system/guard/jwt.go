// internal/app/system/guard/jwt.go
package guard

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every JWT parse or validation failure. The parse
// detail is never surfaced to callers; a bad token and a forged token look
// identical from the outside.
var ErrInvalidToken = errors.New("invalid token")

const jwtIssuer = "ivrhub"

// tokenClaims is the JWT payload the portal issues for API callers. The
// registered claims carry identity and expiry; the custom fields carry the
// access attributes the guard evaluates.
type tokenClaims struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Territories []string `json:"territories"`
	MFAVerified bool     `json:"mfa_verified"`
	PHIAccess   bool     `json:"phi_access"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 bearer tokens minted by this portal and turns
// them into guard claims. A missing or malformed Authorization header is an
// invalid token (denial), not a verification error.
type JWTVerifier struct {
	secret []byte
	leeway time.Duration
}

// NewJWTVerifier builds a verifier over a shared HS256 secret. leeway
// tolerates small clock skew between issuer and verifier; zero disables it.
func NewJWTVerifier(secret string, leeway time.Duration) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), leeway: leeway}
}

func (v *JWTVerifier) Verify(_ context.Context, r *http.Request) (Claims, error) {
	raw := bearerToken(r)
	if raw == "" {
		return Claims{}, nil
	}

	claims, err := v.parse(raw)
	if err != nil {
		// An unparseable token is indistinguishable from no token.
		return Claims{}, nil
	}

	return Claims{
		Valid: true,
		User: TokenUser{
			Roles:       claims.Roles,
			Permissions: claims.Permissions,
			Territories: TerritoryList(claims.Territories),
			MFAVerified: claims.MFAVerified,
		},
		PHIAccess: claims.PHIAccess,
	}, nil
}

func (v *JWTVerifier) parse(raw string) (*tokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(jwtIssuer),
		jwt.WithExpirationRequired(),
	}
	if v.leeway > 0 {
		opts = append(opts, jwt.WithLeeway(v.leeway))
	}

	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken signs a JWT carrying the given claims. Only internal tooling
// and tests mint tokens; the portal's job is verification.
func IssueToken(secret string, subject string, user TokenUser, phiAccess bool, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := tokenClaims{
		Roles:       user.Roles,
		Permissions: user.Permissions,
		Territories: user.Territories,
		MFAVerified: user.MFAVerified,
		PHIAccess:   phiAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    jwtIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
