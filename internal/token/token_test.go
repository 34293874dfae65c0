package token

import (
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndParseRoundTrip(t *testing.T) {
	m := NewManager(testSecret, time.Hour)
	p := domain.Principal{ClientID: "cli_1", PhoneNumber: "+15550001", SessionID: "ses_1"}

	raw, exp, err := m.Issue(p, time.Now())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	got, err := m.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m := NewManager(testSecret, time.Minute)
	raw, _, err := m.Issue(domain.Principal{ClientID: "cli_1", SessionID: "ses_1"}, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = m.Parse(raw)
	assert.True(t, errors.Is(err, apperr.ErrInvalidToken))
}

func TestParseRejectsForeignSecret(t *testing.T) {
	raw, _, err := NewManager("another-secret-another-secret-xx", time.Hour).
		Issue(domain.Principal{ClientID: "cli_1", SessionID: "ses_1"}, time.Now())
	require.NoError(t, err)

	_, err = NewManager(testSecret, time.Hour).Parse(raw)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestParseRejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "cli_1",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		ClientID:        "cli_1",
		DeviceSessionID: "ses_1",
	}
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewManager(testSecret, time.Hour).Parse(raw)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestParseRejectsMissingSession(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "cli_1",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		ClientID: "cli_1",
	}
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewManager(testSecret, time.Hour).Parse(raw)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestIssueRequiresSession(t *testing.T) {
	_, _, err := NewManager(testSecret, time.Hour).Issue(domain.Principal{ClientID: "cli_1"}, time.Now())
	assert.Error(t, err)
	_, err = NewManager(testSecret, time.Hour).Parse("   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}
