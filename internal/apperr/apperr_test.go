package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("load invoice: %w", NotFoundf("invoice %s", "inv_1"))

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "invoice inv_1", Message(err))
}

func TestNamedCodesMatchOnlyThemselves(t *testing.T) {
	err := Detail(ErrOtpInvalid, "%d attempts left", 3)

	assert.True(t, errors.Is(err, ErrOtpInvalid))
	assert.False(t, errors.Is(err, ErrOtpExpired))
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.Equal(t, "otp_invalid", CodeOf(err))
}

func TestTransientClassification(t *testing.T) {
	raw := errors.New("dial tcp: connection refused")
	assert.Equal(t, KindTransient, KindOf(Transient(raw)))
	assert.Equal(t, KindTransient, KindOf(fmt.Errorf("query: %w", context.DeadlineExceeded)))
	assert.Equal(t, KindInternal, KindOf(raw))

	conflict := Conflictf("duplicate")
	assert.Equal(t, conflict, Transient(conflict))
	assert.Nil(t, Transient(nil))
}
