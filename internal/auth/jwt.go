/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/friendsincode/grimnir_player/internal/models"
)

// Role names carried in tokens.
const (
	RoleAdmin      = "admin"
	RoleSubscriber = "subscriber"
)

// Claims extends standard registered claims with the viewer's roles.
type Claims struct {
	UserID string   `json:"uid"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Viewer maps claims onto the identity the access policy understands.
func (c *Claims) Viewer() models.Viewer {
	if c == nil {
		return models.Viewer{}
	}
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	return models.Viewer{
		ID:         id,
		Subscriber: slices.Contains(c.Roles, RoleSubscriber),
		Admin:      slices.Contains(c.Roles, RoleAdmin),
	}
}

// Issue creates JWT token string.
func Issue(secret []byte, claims Claims, ttl time.Duration) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Subject:   claims.UserID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Parse validates token string. Only HS256 is accepted.
func Parse(secret []byte, token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
