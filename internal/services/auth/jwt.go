package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

// ServiceTokenManager signs and validates the HMAC tokens that internal
// tooling presents on the audit routes. Tokens carry a service name and a
// scope list; there are no end-user identities here.
type ServiceTokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type ServiceClaims struct {
	Service string
	Scopes  []string
}

type tokenClaims struct {
	Service string   `json:"svc"`
	Scopes  []string `json:"scopes"`
	jwt.RegisteredClaims
}

func NewServiceTokenManager(secret string, ttl time.Duration) *ServiceTokenManager {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &ServiceTokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *ServiceTokenManager) Generate(service string, scopes []string) (string, time.Time, error) {
	if len(m.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("jwt secret is empty")
	}
	if strings.TrimSpace(service) == "" {
		return "", time.Time{}, fmt.Errorf("service name is empty")
	}

	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := tokenClaims{
		Service: service,
		Scopes:  scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   service,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign service token: %w", err)
	}

	return signed, expiresAt, nil
}

func (m *ServiceTokenManager) Parse(raw string) (ServiceClaims, error) {
	if strings.TrimSpace(raw) == "" {
		return ServiceClaims{}, ErrUnauthorized
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil || token == nil || !token.Valid {
		return ServiceClaims{}, ErrUnauthorized
	}
	if strings.TrimSpace(claims.Service) == "" {
		return ServiceClaims{}, ErrUnauthorized
	}

	return ServiceClaims{
		Service: claims.Service,
		Scopes:  claims.Scopes,
	}, nil
}

func (c ServiceClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
