package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryFromJWT reads the exp claim of a JWT access token. The signature is
// not verified: the device only needs to know when to ask for a new token.
func ExpiryFromJWT(accessToken string) (time.Time, error) {
	parser := jwt.NewParser()
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("JWT expiration (exp) claim missing")
	}
	return claims.ExpiresAt.Time, nil
}
