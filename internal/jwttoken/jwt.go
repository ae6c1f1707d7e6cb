// Package jwttoken validates the HMAC-signed bearer tokens issued to
// examination staff and service accounts.
package jwttoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"namereg/internal/platform/config"
	"namereg/pkg/requestcontext"
)

// Service verifies bearer tokens against the shared signing key.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
}

// New creates a token validator from the auth configuration.
func New(cfg config.Auth) *Service {
	return &Service{
		signingKey: []byte(cfg.JWTSigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
	}
}

type tokenClaims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// ValidateToken parses and verifies a token string and returns the caller
// identity. Expiry, issuer and audience are all enforced.
func (s *Service) ValidateToken(tokenString string) (requestcontext.Claims, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return requestcontext.Claims{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return requestcontext.Claims{}, fmt.Errorf("invalid token")
	}

	username := claims.Username
	if username == "" {
		username = claims.Subject
	}
	return requestcontext.Claims{
		Sub:      claims.Subject,
		Username: username,
		Roles:    claims.Roles,
	}, nil
}

// IssueToken mints a signed token, used by tests and local tooling.
func (s *Service) IssueToken(claims requestcontext.Claims, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Username: claims.Username,
		Roles:    claims.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Sub,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	return token.SignedString(s.signingKey)
}
