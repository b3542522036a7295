// Package auth issues and validates the player tokens used by the signaling
// handshake.
package auth

import (
	"fmt"
	"time"

	"github.com/dkeye/voicesync/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Bot      bool   `json:"bot"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

func (i *Issuer) Issue(p domain.Player) (string, error) {
	now := time.Now()
	claims := Claims{
		PlayerID: string(p.ID),
		Name:     p.Name,
		Bot:      p.IsBot,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(p.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (i *Issuer) Validate(tokenString string) (domain.Player, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return domain.Player{}, fmt.Errorf("%w: invalid token", domain.ErrNotAuthenticated)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return domain.Player{}, fmt.Errorf("%w: invalid token claims", domain.ErrNotAuthenticated)
	}
	id, err := domain.ParsePlayerID(claims.PlayerID)
	if err != nil {
		return domain.Player{}, fmt.Errorf("%w: %v", domain.ErrNotAuthenticated, err)
	}
	return domain.Player{ID: id, Name: claims.Name, IsBot: claims.Bot}, nil
}
