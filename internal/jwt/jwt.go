// Package jwt issues the HS256 service tokens used to authenticate
// API callers. Tokens signed by stored ECDSA keys live in
// internal/jose; this package is only the service's own auth.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const tokenDuration = 24 * time.Hour

// GenerateJWT returns a signed HS256 token identifying the user.
func GenerateJWT(userID string, jwtSecret string) (string, error) {
	claims := jwt.MapClaims{
		"id":  userID,
		"exp": time.Now().Add(tokenDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

// ValidateJWT checks the token signature and expiry and returns the
// user id claim.
func ValidateJWT(tokenStr string, jwtSecret string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	if err := claims.Valid(); err != nil {
		return "", err
	}

	userID, ok := claims["id"].(string)
	if !ok || userID == "" {
		return "", errors.New("token has no user id")
	}

	return userID, nil
}
