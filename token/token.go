// Package token signs and verifies the bearer tokens backing reconnection
// grants. A token encodes which connection may resume which session slot;
// possession within the expiry window is the whole capability.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers every verification failure: bad signature, expired,
// malformed. The distinction is deliberately not surfaced to clients.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the capability tuple carried by a reconnection token.
type Claims struct {
	ConnectionID string `json:"cid"`
	SessionID    string `json:"sid"`
	Slot         int    `json:"slot"`
	DisplayName  string `json:"name"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 reconnection tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner creates a signer whose tokens expire after ttl, the reconnection
// window.
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// TTL is the token lifetime.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Issue signs a token granting connID the right to resume the given session
// slot.
func (s *Signer) Issue(connID, sessionID string, slot int, displayName string) (string, error) {
	now := time.Now()
	claims := Claims{
		ConnectionID: connID,
		SessionID:    sessionID,
		Slot:         slot,
		DisplayName:  displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign reconnection token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the decoded claims. Any
// failure collapses to ErrInvalidToken.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
