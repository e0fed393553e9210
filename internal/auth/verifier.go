// Package auth resolves opaque platform credentials into an Identity.
// Tokens are issued by the platform account service; this package only
// verifies them.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pawmart/chat-service/internal/domain"
)

type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

type accessClaims struct {
	jwt.RegisteredClaims
	Role        string `json:"role"`
	DisplayName string `json:"name,omitempty"`
	AvatarURL   string `json:"avatar,omitempty"`
}

// Verify checks signature, expiry and issuer and maps the claims to an
// Identity. Any failure collapses to domain.ErrUnauthorized; callers
// must not proceed with room operations on error.
func (v *Verifier) Verify(tokenString string) (domain.Identity, error) {
	var claims accessClaims
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !token.Valid || claims.Subject == "" {
		return domain.Identity{}, domain.ErrUnauthorized
	}

	role := domain.Role(claims.Role)
	if !role.Valid() {
		return domain.Identity{}, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthorized, claims.Role)
	}

	return domain.Identity{
		UserID:      claims.Subject,
		Role:        role,
		DisplayName: claims.DisplayName,
		AvatarURL:   claims.AvatarURL,
	}, nil
}
