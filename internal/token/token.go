// Package token issues and verifies the HS256 session tokens handed to
// devices after register or login.
package token

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
)

const issuer = "shopledger"

// Claims carries the identity of one device session.
type Claims struct {
	jwtlib.RegisteredClaims
	ClientID        string `json:"clientId"`
	PhoneNumber     string `json:"phoneNumber"`
	DeviceSessionID string `json:"deviceSessionId"`
}

type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue signs a token for p that expires ttl after now.
func (m *Manager) Issue(p domain.Principal, now time.Time) (string, time.Time, error) {
	if p.ClientID == "" || p.SessionID == "" {
		return "", time.Time{}, errors.New("token: principal requires client and session")
	}
	expiresAt := now.UTC().Add(m.ttl)
	claims := Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			Subject:   p.ClientID,
			ID:        p.SessionID,
			IssuedAt:  jwtlib.NewNumericDate(now.UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		ClientID:        p.ClientID,
		PhoneNumber:     p.PhoneNumber,
		DeviceSessionID: p.SessionID,
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies signature, issuer and expiry. Any failure is reported as
// apperr.ErrInvalidToken so callers never leak the jwt error text.
func (m *Manager) Parse(raw string) (domain.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Principal{}, apperr.ErrInvalidToken
	}
	claims := &Claims{}
	tok, err := jwtlib.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(issuer), jwtlib.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return domain.Principal{}, apperr.ErrInvalidToken
	}
	if claims.ClientID == "" || claims.DeviceSessionID == "" || claims.Subject != claims.ClientID {
		return domain.Principal{}, apperr.ErrInvalidToken
	}
	return domain.Principal{
		ClientID:    claims.ClientID,
		PhoneNumber: claims.PhoneNumber,
		SessionID:   claims.DeviceSessionID,
	}, nil
}
