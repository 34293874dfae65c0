package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/unrolled/secure"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/service"
)

const maxBodyBytes = 1 << 20

type Options struct {
	AllowedOrigin string
	// OtpRateLimit caps OTP and login calls per client IP per minute.
	OtpRateLimit int
	Production   bool
	Logger       *slog.Logger
	Metrics      *Metrics
}

type API struct {
	service  *service.Service
	validate *validator.Validate
	opts     Options
	logger   *slog.Logger
	metrics  *Metrics
}

func New(svc *service.Service, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.OtpRateLimit < 1 {
		opts.OtpRateLimit = 5
	}
	return &API{
		service:  svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		a.secureHeaders(),
		a.cors,
		a.metrics.Middleware,
		a.accessLog,
	)

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(a.opts.OtpRateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeError(w, a.logger, apperr.New(apperr.KindTransient, "rate_limited", "too many attempts, retry later"))
				}),
			))
			r.Post("/auth/otp", a.handleIssueOtp)
			r.Post("/auth/otp/verify", a.handleVerifyOtp)
			r.Post("/auth/register", a.handleRegister)
			r.Post("/auth/login", a.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Post("/auth/logout", a.handleLogout)
			r.Get("/auth/sessions", a.handleSessions)

			r.Get("/profile", a.handleGetProfile)
			r.Patch("/profile", a.handleUpdateProfile)
			r.Put("/profile/customer-fields", a.handleCustomerFields)

			r.Route("/item-groups", func(r chi.Router) {
				r.Get("/", a.handleListItemGroups)
				r.Post("/", a.handleCreateItemGroup)
				r.Patch("/{groupID}", a.handleUpdateItemGroup)
				r.Delete("/{groupID}", a.handleDeleteItemGroup)
			})
			r.Route("/items", func(r chi.Router) {
				r.Get("/", a.handleListItems)
				r.Post("/", a.handleCreateItem)
				r.Get("/low-stock", a.handleLowStock)
				r.Get("/reorder-suggestions", a.handleReorderSuggestions)
				r.Get("/{itemID}", a.handleGetItem)
				r.Patch("/{itemID}", a.handleUpdateItem)
				r.Delete("/{itemID}", a.handleDeleteItem)
			})
			r.Route("/customers", func(r chi.Router) {
				r.Get("/", a.handleListCustomers)
				r.Post("/", a.handleCreateCustomer)
				r.Get("/{customerID}", a.handleGetCustomer)
				r.Patch("/{customerID}", a.handleUpdateCustomer)
				r.Get("/{customerID}/invoices", a.handleCustomerInvoices)
				r.Get("/{customerID}/purchase-history", a.handlePurchaseHistory)
			})
			r.Route("/carts", func(r chi.Router) {
				r.Post("/", a.handleCreateCart)
				r.Get("/{cartID}", a.handleGetCart)
				r.Post("/{cartID}/items", a.handleAddCartItem)
				r.Delete("/{cartID}/items", a.handleClearCart)
				r.Delete("/{cartID}/items/{lineID}", a.handleRemoveCartItem)
			})
			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", a.handleListInvoices)
				r.Post("/", a.handleCreateInvoice)
				r.Get("/{invoiceID}", a.handleGetInvoice)
			})
			r.Route("/payments", func(r chi.Router) {
				r.Get("/", a.handlePaymentHistory)
				r.Post("/", a.handleRecordPayment)
			})
			r.Route("/dealers", func(r chi.Router) {
				r.Get("/", a.handleListDealers)
				r.Post("/", a.handleCreateDealer)
				r.Get("/{dealerID}", a.handleGetDealer)
				r.Patch("/{dealerID}", a.handleUpdateDealer)
				r.Get("/{dealerID}/summary", a.handleDealerSummary)
				r.Get("/{dealerID}/payments", a.handleListDealerPayments)
				r.Post("/{dealerID}/payments", a.handleRecordDealerPayment)
			})
			r.Route("/dealer-orders", func(r chi.Router) {
				r.Get("/", a.handleListDealerOrders)
				r.Post("/", a.handleCreateDealerOrder)
				r.Get("/{orderID}", a.handleGetDealerOrder)
				r.Get("/{orderID}/payment-status", a.handleOrderPaymentStatus)
				r.Post("/{orderID}/deliver", a.handleDeliverOrder)
				r.Post("/{orderID}/cancel", a.handleCancelOrder)
			})

			r.Post("/sync", a.handleSync)
			r.Get("/sync/snapshot", a.handleSnapshot)
			r.Get("/dashboard", a.handleDashboard)
			r.Get("/audit-logs", a.handleAuditLogs)
		})
	})

	return r
}

func (a *API) secureHeaders() func(http.Handler) http.Handler {
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           a.opts.Production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !a.opts.Production,
	})
	return sec.Handler
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.opts.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.InfoContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("route", routePattern(r)),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(startedAt)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

// decode reads a strict JSON body into dest and runs its validate tags.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dest any) error {
	return a.decodeBody(w, r, dest, false)
}

// decodeOptional treats an empty body as the zero request.
func (a *API) decodeOptional(w http.ResponseWriter, r *http.Request, dest any) error {
	return a.decodeBody(w, r, dest, true)
}

func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, dest any, optional bool) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return apperr.Wrap(apperr.KindValidation, "invalid_body", "request body is not valid json: "+err.Error(), err)
		}
	}
	if err := a.validate.Struct(dest); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Validationf("%v", err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Namespace(), fe.Tag()))
	}
	return apperr.Validationf("%s", strings.Join(parts, "; "))
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseTimeParam accepts RFC3339 timestamps or plain dates (UTC midnight).
func parseTimeParam(raw string, name string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apperr.Validationf("%s must be an RFC3339 timestamp or YYYY-MM-DD date", name)
}

func statusFor(err error) int {
	if apperr.CodeOf(err) == "invalid_body" {
		return http.StatusBadRequest
	}
	if apperr.CodeOf(err) == "rate_limited" {
		return http.StatusTooManyRequests
	}
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	kind := apperr.KindOf(err)
	msg := apperr.Message(err)
	// 5xx bodies stay generic; the cause goes to the log.
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.Int("status", status), slog.Any("error", err))
		if kind == apperr.KindTransient {
			w.Header().Set("Retry-After", "1")
			msg = "service temporarily unavailable"
		} else {
			msg = "internal server error"
		}
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    apperr.CodeOf(err),
			"kind":    kind,
			"message": msg,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
