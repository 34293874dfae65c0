package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"shopledger/backend/internal/cache"
	"shopledger/backend/internal/config"
	"shopledger/backend/internal/httpapi"
	"shopledger/backend/internal/notify"
	"shopledger/backend/internal/recommendation"
	"shopledger/backend/internal/service"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/store/memory"
	pgstore "shopledger/backend/internal/store/postgres"
	"shopledger/backend/internal/token"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Error("invalid security configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, cfg.StorageTimeout)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return fmt.Errorf("migrate postgres: %w", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.New()
		logger.Info("repository: in-memory")
	}

	otps := cache.OtpStore(cache.NewMemoryOtpStore())
	if cfg.RedisAddr != "" {
		redisStore := cache.NewRedisOtpStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisStore.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, keeping otp sessions in memory", slog.Any("error", err))
			_ = redisStore.Close()
		} else {
			otps = redisStore
			closers = append(closers, redisStore.Close)
			logger.Info("otp store: redis")
		}
	} else {
		logger.Info("otp store: in-memory")
	}

	svc := service.New(
		repo,
		otps,
		notify.NewLogSender(logger, !cfg.IsProduction()),
		token.NewManager(cfg.JWTSecret, cfg.TokenTTL),
		recommendation.NewEngine(),
		service.Settings{
			OtpTTL:         cfg.OtpTTL,
			OtpMaxAttempts: cfg.OtpMaxAttempts,
			OtpLength:      cfg.OtpLength,
			OtpStaticCode:  cfg.OtpStaticCode,
		},
		logger,
	)
	api := httpapi.New(svc, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		OtpRateLimit:  cfg.OtpRateLimit,
		Production:    cfg.IsProduction(),
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("shopledger backend listening", slog.String("addr", cfg.Address()), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-sig:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.Any("error", err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", slog.Any("error", err))
		}
	}

	logger.Info("server stopped")
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be set and at least 32 characters")
	}
	if cfg.OtpTTL < time.Minute || cfg.OtpTTL > time.Hour {
		return fmt.Errorf("OTP_TTL must be between 1m and 1h, got %s", cfg.OtpTTL)
	}
	if cfg.OtpMaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.TokenTTL < 7*24*time.Hour || cfg.TokenTTL > 30*24*time.Hour {
		return fmt.Errorf("TOKEN_TTL must be between 7 and 30 days, got %s", cfg.TokenTTL)
	}
	if cfg.IsProduction() && cfg.OtpStaticCode != "" {
		return fmt.Errorf("OTP_STATIC_CODE must not be set in production")
	}
	return nil
}
