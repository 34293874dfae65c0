package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/cache"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/notify"
	"shopledger/backend/internal/recommendation"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/token"
	"shopledger/backend/internal/xid"
)

type principalContextKey struct{}

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(domain.Principal)
	return p, ok
}

// Settings is the slice of process configuration the core depends on.
type Settings struct {
	OtpTTL         time.Duration
	OtpMaxAttempts int
	OtpLength      int
	// OtpStaticCode replaces generated codes; only honoured outside production.
	OtpStaticCode string
}

func (s Settings) withDefaults() Settings {
	if s.OtpTTL <= 0 {
		s.OtpTTL = 10 * time.Minute
	}
	if s.OtpMaxAttempts < 1 {
		s.OtpMaxAttempts = 5
	}
	if s.OtpLength < 4 {
		s.OtpLength = 4
	}
	return s
}

type Service struct {
	repo        store.Repository
	otps        cache.OtpStore
	sender      notify.Sender
	tokens      *token.Manager
	recommender *recommendation.Engine
	settings    Settings
	logger      *slog.Logger
	now         func() time.Time
}

func New(
	repo store.Repository,
	otps cache.OtpStore,
	sender notify.Sender,
	tokens *token.Manager,
	recommender *recommendation.Engine,
	settings Settings,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if otps == nil {
		otps = cache.NewMemoryOtpStore()
	}
	if sender == nil {
		sender = notify.NewLogSender(logger, false)
	}
	if recommender == nil {
		recommender = recommendation.NewEngine()
	}

	return &Service{
		repo:        repo,
		otps:        otps,
		sender:      sender,
		tokens:      tokens,
		recommender: recommender,
		settings:    settings.withDefaults(),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// principal returns the caller attached by the auth middleware, or Unauthorized.
func principal(ctx context.Context) (domain.Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.ClientID == "" {
		return domain.Principal{}, apperr.ErrUnauthorized
	}
	return p, nil
}

func (s *Service) logAudit(ctx context.Context, clientID string, action string, entityType string, entityID string, detail string) {
	actor := "system"
	if p, ok := PrincipalFromContext(ctx); ok && p.PhoneNumber != "" {
		actor = p.PhoneNumber
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		ClientID:   clientID,
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log write failed",
			slog.String("action", action),
			slog.String("entity", entityType+"/"+entityID),
			slog.Any("error", err),
		)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, p.ClientID, limit)
}

// notFound names the entity behind a bare store miss; errors that already carry
// their own message pass through.
func notFound(err error, entity string, id string) error {
	var e *apperr.Error
	if errors.As(err, &e) && e == store.ErrNotFound {
		return apperr.NotFoundf("%s %s not found", entity, id)
	}
	return err
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}

func normalizeMethod(method string) string {
	return strings.ToLower(defaultString(strings.TrimSpace(method), "cash"))
}
