package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/cache"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/recommendation"
	"shopledger/backend/internal/store/memory"
	"shopledger/backend/internal/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// captureSender records the last code sent to each phone.
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
	fail  error
}

func (c *captureSender) SendOtp(_ context.Context, phone string, code string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return false, c.fail
	}
	c.codes[phone] = code
	return true, nil
}

func (c *captureSender) last(phone string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[phone]
}

func newTestService(t *testing.T) (*Service, *memory.Store, *captureSender) {
	t.Helper()
	return newTestServiceWith(t, Settings{OtpTTL: 10 * time.Minute, OtpMaxAttempts: 5, OtpLength: 4})
}

func newTestServiceWith(t *testing.T, settings Settings) (*Service, *memory.Store, *captureSender) {
	t.Helper()
	repo := memory.New()
	sender := &captureSender{codes: make(map[string]string)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(repo, cache.NewMemoryOtpStore(), sender, token.NewManager(testSecret, 24*time.Hour),
		recommendation.NewEngine(), settings, logger)
	return svc, repo, sender
}

// signUp registers phone and returns a context carrying the new principal.
func signUp(t *testing.T, svc *Service, sender *captureSender, phone string) (context.Context, domain.AuthResponse) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.IssueOtp(ctx, domain.IssueOtpRequest{PhoneNumber: phone, Purpose: domain.OtpPurposeRegister})
	require.NoError(t, err)

	resp, err := svc.Register(ctx, domain.RegisterRequest{
		PhoneNumber:  phone,
		Otp:          sender.last(phone),
		DeviceID:     "device-1",
		Name:         "Owner " + phone,
		BusinessName: "Shop " + phone,
	})
	require.NoError(t, err)

	return WithPrincipal(ctx, domain.Principal{
		ClientID:    resp.Client.ID,
		PhoneNumber: resp.Client.PhoneNumber,
		SessionID:   resp.Session.ID,
	}), resp
}

func mustItem(t *testing.T, svc *Service, ctx context.Context, name string, price int64, stock int, dealers ...string) domain.Item {
	t.Helper()
	item, err := svc.CreateItem(ctx, domain.ItemCreateRequest{
		Name:             name,
		Price:            decimal.NewFromInt(price),
		Stock:            stock,
		LowStockQuantity: 2,
		DealerIDs:        dealers,
	})
	require.NoError(t, err)
	return item
}

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func assertAmount(t *testing.T, want int64, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, decimal.NewFromInt(want).Equal(got), append([]any{"want %d, got %s", want, got.String()}, msgAndArgs...)...)
}

func TestOperationsRequirePrincipal(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ListItems(context.Background())
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = svc.CreateCart(context.Background())
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestAuditTrailRecordsLedgerMutations(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, _ := signUp(t, svc, sender, "9990000100")
	item := mustItem(t, svc, ctx, "Soap", 40, 10)

	_, err := svc.GenerateInvoice(ctx, domain.InvoiceCreateRequest{
		Products: []domain.InvoiceProductInput{{ItemID: item.ID, Quantity: 1}},
		Customer: domain.CustomerRef{Name: "Walk-in"},
	})
	require.NoError(t, err)

	logs, err := svc.ListAuditLogs(ctx, 10)
	require.NoError(t, err)
	actions := make([]string, 0, len(logs))
	for _, entry := range logs {
		actions = append(actions, entry.Action)
		assert.Equal(t, "9990000100", entry.Actor)
	}
	assert.Contains(t, actions, "invoice_create")
	assert.Contains(t, actions, "client_register")
}
