package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scope grants access to a class of endpoints.
type Scope string

// Token scopes. ScopeCommand implies ScopeRead.
const (
	ScopeRead    Scope = "read"
	ScopeCommand Scope = "command"
)

// DefaultTokenTTL applies when no TTL is given.
const DefaultTokenTTL = 24 * time.Hour

// CustomClaims extends JWT standard claims with the vehicle and scope.
type CustomClaims struct {
	jwt.RegisteredClaims
	Vehicle string `json:"vehicle"`
	Scope   Scope  `json:"scope"`
}

// Allows reports whether the token grants scope.
func (c *CustomClaims) Allows(scope Scope) bool {
	if c.Scope == scope {
		return true
	}
	return c.Scope == ScopeCommand && scope == ScopeRead
}

// ValidScope reports whether s is a known scope.
func ValidScope(s Scope) bool {
	return slices.Contains([]Scope{ScopeRead, ScopeCommand}, s)
}

// GenerateAccessToken creates a signed JWT.
//
// Parameters:
//   - subject: Who the token is issued to
//   - vehicle: Vehicle id the token is valid for
//   - scope: Granted scope
//   - secret: HMAC signing secret
//   - ttl: Lifetime; zero uses DefaultTokenTTL
//
// Returns:
//   - string: Compact JWT
//   - error: ErrNoSecret, or a signing failure
func GenerateAccessToken(subject, vehicle string, scope Scope, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Vehicle: vehicle,
		Scope:   scope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a JWT and returns its claims. It checks the
// signature, expiry and required fields.
func ParseToken(tokenString, secret string) (*CustomClaims, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if !ValidScope(claims.Scope) {
		return nil, fmt.Errorf("%w: unknown scope %q", ErrTokenInvalid, claims.Scope)
	}
	return claims, nil
}
