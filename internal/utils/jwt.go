// Package utils issues access tokens for local development and tests.
// Production tokens come from the external identity service and share
// the HS256 secret.
package utils

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken is a signed JWT and its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// Subject describes who the token is for.
type Subject struct {
	UserID uint64
	Role   string // CUSTOMER or ADMIN
	Email  string // optional; used for guest notifications
}

// NewAccessToken signs an HS256 JWT with sub, role, email, exp and iat
// claims.
func NewAccessToken(secret string, s Subject, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(s.UserID, 10),
		"role": s.Role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	if s.Email != "" {
		claims["email"] = s.Email
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
