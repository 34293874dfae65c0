package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+*******1234", MaskPhone("+15550001234"))
	assert.Equal(t, "****", MaskPhone("123"))
}

func TestLogSenderHidesCodeUnlessRevealed(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	delivered, err := NewLogSender(logger, false).SendOtp(context.Background(), "+15550001234", "4821")
	require.NoError(t, err)
	assert.False(t, delivered)
	assert.NotContains(t, buf.String(), "4821")
	assert.Contains(t, buf.String(), "1234")

	buf.Reset()
	_, err = NewLogSender(logger, true).SendOtp(context.Background(), "+15550001234", "4821")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "code=4821")
}
