package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// ScopeSync grants access to the /sync endpoints.
const ScopeSync = "sync"

type OperatorClaims struct {
	jwt.RegisteredClaims
	StoreID string `json:"store_id,omitempty"`
	Scope   string `json:"scope"`
}

type TokenManager struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
}

func NewTokenManager(signingKey []byte, ttl time.Duration, issuer string) *TokenManager {
	return &TokenManager{signingKey: signingKey, ttl: ttl, issuer: issuer}
}

// GenerateOperatorToken issues a token for an operator. Scopes are stored comma separated.
func (m *TokenManager) GenerateOperatorToken(operator, storeID string, scopes ...string) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   operator,
			Issuer:    m.issuer,
		},
		StoreID: storeID,
		Scope:   strings.Join(scopes, ","),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingKey)
}

func (m *TokenManager) ValidateOperatorToken(tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (c *OperatorClaims) HasScope(required string) bool {
	scopes := strings.Split(c.Scope, ",")
	for _, scope := range scopes {
		if strings.TrimSpace(scope) == required {
			return true
		}
	}
	return false
}
