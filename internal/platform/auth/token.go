package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/errors"
)

// Claims is the bearer token payload. Subject is the user id.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 bearer tokens and turns them into principals.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier creates a verifier. An empty issuer skips the iss check.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses a raw token string.
func (v *TokenVerifier) Verify(raw string) (Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New(errors.ErrCodeUnauthorized, "token has no subject")
	}

	return Principal{UserID: claims.Subject, Roles: claims.Roles}, nil
}

// VerifyHeader accepts an "Authorization: Bearer <token>" value.
func (v *TokenVerifier) VerifyHeader(header string) (Principal, error) {
	if header == "" {
		return Principal{}, errors.New(errors.ErrCodeUnauthorized, "authorization header required")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return Principal{}, errors.New(errors.ErrCodeUnauthorized, "invalid authorization header format")
	}
	return v.Verify(strings.TrimSpace(token))
}

// Issue signs a token for p. Used by tooling and tests.
func (v *TokenVerifier) Issue(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Roles: p.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
