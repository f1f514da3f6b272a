package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and validates the HS256 session tokens used by the
// REST API and the realtime socket upgrade.
type TokenService struct {
	secret   []byte
	tokenTTL time.Duration
}

func NewTokenService(secret string, tokenTTL time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("token secret cannot be empty")
	}
	if tokenTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &TokenService{secret: []byte(secret), tokenTTL: tokenTTL}, nil
}

func (s *TokenService) Issue(userID uuid.UUID, displayName string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:      userID.String(),
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *TokenService) Validate(tokenString string) (uuid.UUID, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}

	return userID, nil
}
