package utils

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/postpilot/publisher/internal/transfer"
)

// GenerateSchedulerToken issues the bearer token the external scheduler
// presents on the internal endpoints.
func GenerateSchedulerToken(secretKey, scope string, tokenDuration time.Duration) (string, error) {
	claims := transfer.SchedulerClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "publisher",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(secretKey))
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return signedToken, nil
}

func ValidateSchedulerToken(secretKey, tokenString string) (*transfer.SchedulerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &transfer.SchedulerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if claims, ok := token.Claims.(*transfer.SchedulerClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
