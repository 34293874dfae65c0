package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/cache"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/recommendation"
	"shopledger/backend/internal/service"
	"shopledger/backend/internal/store/memory"
	"shopledger/backend/internal/token"
)

type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *captureSender) SendOtp(_ context.Context, phone string, code string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[phone] = code
	return true, nil
}

func (c *captureSender) last(phone string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[phone]
}

type testServer struct {
	handler http.Handler
	sender  *captureSender
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sender := &captureSender{codes: make(map[string]string)}
	svc := service.New(memory.New(), cache.NewMemoryOtpStore(), sender,
		token.NewManager("0123456789abcdef0123456789abcdef", time.Hour), recommendation.NewEngine(),
		service.Settings{OtpTTL: 10 * time.Minute, OtpMaxAttempts: 5, OtpLength: 4}, logger)
	api := New(svc, Options{AllowedOrigin: "http://localhost:3000", OtpRateLimit: rateLimit, Logger: logger})
	return &testServer{handler: api.Handler(), sender: sender}
}

func (s *testServer) do(t *testing.T, method string, path string, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T, phone string) domain.AuthResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/otp", "", domain.IssueOtpRequest{PhoneNumber: phone, Purpose: domain.OtpPurposeRegister})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{
		PhoneNumber: phone, Otp: s.sender.last(phone), DeviceID: "device-1", Name: "Owner",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp domain.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, 100)
	rec := srv.do(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflightShortCircuits(t *testing.T) {
	srv := newTestServer(t, 100)
	rec := srv.do(t, http.MethodOptions, "/api/v1/items", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestProtectedRouteRequiresBearer(t *testing.T) {
	srv := newTestServer(t, 100)
	rec := srv.do(t, http.MethodGet, "/api/v1/items", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "invalid_token", body.Error.Code)
	assert.Equal(t, "unauthorized", body.Error.Kind)
}

func TestLoginOnNewDeviceRevokesOldToken(t *testing.T) {
	srv := newTestServer(t, 100)
	first := srv.register(t, "+919800000001")

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/otp", "", domain.IssueOtpRequest{PhoneNumber: "+919800000001", Purpose: domain.OtpPurposeLogin})
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = srv.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		PhoneNumber: "+919800000001", Otp: srv.sender.last("+919800000001"), DeviceID: "device-2",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second domain.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))

	rec = srv.do(t, http.MethodGet, "/api/v1/profile", first.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session_inactive", decodeError(t, rec).Error.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/profile", second.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	srv := newTestServer(t, 100)
	auth := srv.register(t, "+919800000002")

	rec := srv.do(t, http.MethodPost, "/api/v1/auth/logout", auth.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/auth/logout", auth.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStrictDecodingAndValidation(t *testing.T) {
	srv := newTestServer(t, 100)
	auth := srv.register(t, "+919800000003")

	rec := srv.do(t, http.MethodPost, "/api/v1/items", auth.Token, `{"name":"Rice","price":"10","colour":"red"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", decodeError(t, rec).Error.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/items", auth.Token, `{"price":"10"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "validation", body.Error.Kind)
	assert.Contains(t, body.Error.Message, "Name")

	rec = srv.do(t, http.MethodPost, "/api/v1/auth/otp", "", `{"phone_number":"+919800000009","purpose":"reset"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestOtpRoutesAreRateLimited(t *testing.T) {
	srv := newTestServer(t, 2)
	req := domain.IssueOtpRequest{PhoneNumber: "+919800000004", Purpose: domain.OtpPurposeRegister}

	for i := 0; i < 2; i++ {
		rec := srv.do(t, http.MethodPost, "/api/v1/auth/otp", "", req)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := srv.do(t, http.MethodPost, "/api/v1/auth/otp", "", req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeError(t, rec).Error.Code)
}

func TestInvoiceAndPaymentOverHTTP(t *testing.T) {
	srv := newTestServer(t, 100)
	auth := srv.register(t, "+919800000005")

	rec := srv.do(t, http.MethodPost, "/api/v1/items", auth.Token, map[string]any{"name": "Rice", "price": "100", "stock": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Item domain.Item `json:"item"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = srv.do(t, http.MethodPost, "/api/v1/invoices", auth.Token, map[string]any{
		"products": []map[string]any{{"item_id": created.Item.ID, "quantity": 2}},
		"customer": map[string]any{"name": "Asha", "phone": "9000000001"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var invoice struct {
		Invoice domain.Invoice `json:"invoice"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &invoice))
	assert.Equal(t, "200", invoice.Invoice.TotalAmount.String())

	rec = srv.do(t, http.MethodPost, "/api/v1/payments", auth.Token, map[string]any{
		"invoice_id": invoice.Invoice.ID, "amount": "200", "method": "Cash",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var paid domain.PaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paid))
	assert.True(t, paid.Invoice.IsFinalized)

	rec = srv.do(t, http.MethodGet, "/api/v1/payments?from=2000-01-01", auth.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history domain.PaymentHistory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Equal(t, 1, history.Count)

	rec = srv.do(t, http.MethodGet, "/api/v1/payments?from=yesterday", auth.Token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/invoices/inv_missing", auth.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Error.Kind)
}

func TestSyncReplayAndMetrics(t *testing.T) {
	srv := newTestServer(t, 100)
	auth := srv.register(t, "+919800000006")

	payload := map[string]any{"item": map[string]any{"create": []map[string]any{{"name": "Salt", "price": "5", "stock": 3}}}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", strings.NewReader(mustJSON(t, payload)))
	req.Header.Set("Authorization", "Bearer "+auth.Token)
	req.Header.Set("Idempotency-Key", "batch-1")
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first domain.SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.False(t, first.Replayed)
	assert.Equal(t, 1, first.Manifest.Items.Counts.Created)

	payload["idempotency_key"] = "batch-1"
	rec = srv.do(t, http.MethodPost, "/api/v1/sync", auth.Token, payload)
	require.Equal(t, http.StatusOK, rec.Code)
	var second domain.SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Manifest, second.Manifest)
	assert.Len(t, second.Snapshot.Items, 1)

	rec = srv.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	text := rec.Body.String()
	assert.Contains(t, text, `shopledger_sync_batches_total{outcome="applied"} 1`)
	assert.Contains(t, text, `shopledger_sync_batches_total{outcome="replayed"} 1`)
	assert.Contains(t, text, `shopledger_http_requests_total{code="200",route="/api/v1/sync"}`)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperr.NotFoundf("x"), http.StatusNotFound},
		{apperr.ErrInvalidTransition, http.StatusConflict},
		{apperr.Validationf("x"), http.StatusUnprocessableEntity},
		{apperr.ErrOtpExpired, http.StatusUnauthorized},
		{apperr.ErrAccountInactive, http.StatusForbidden},
		{apperr.Transient(errors.New("db down")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), "%v", tt.err)
	}

	rec := httptest.NewRecorder()
	writeError(rec, slog.New(slog.NewTextHandler(io.Discard, nil)), apperr.Transient(errors.New("dial tcp: refused")))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	body := decodeError(t, rec)
	assert.Equal(t, "transient", body.Error.Kind)
	assert.NotContains(t, body.Error.Message, "refused")
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}
