// Package auth issues and verifies the signed session tokens handed to
// clients after login.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/Tarcisio20/meu-gerente/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carries the registered claims plus the identity the middleware
// exposes to handlers. ID (jti) is what logout revokes.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Slug   string `json:"slug"`
}

type Subject struct {
	UserID string
	Slug   string
}

// now is swapped in tests.
var now = time.Now

func GenerateToken(sub Subject, secretKey []byte, validity time.Duration) (string, *Claims, error) {
	issued := now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   sub.UserID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(validity)),
		},
		UserID: sub.UserID,
		Slug:   sub.Slug,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// ParseToken verifies signature and expiry. Expired tokens yield
// common.ErrTokenExpired, anything else unusable common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return secretKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" || claims.ID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
