package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppEnv        string `envconfig:"APP_ENV" default:"development"`
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	StorageTimeout time.Duration `envconfig:"STORAGE_TIMEOUT" default:"5s"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	JWTSecret string        `envconfig:"JWT_SECRET"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"720h"`

	OtpTTL         time.Duration `envconfig:"OTP_TTL" default:"10m"`
	OtpMaxAttempts int           `envconfig:"OTP_MAX_ATTEMPTS" default:"5"`
	OtpLength      int           `envconfig:"OTP_LENGTH" default:"4"`
	OtpStaticCode  string        `envconfig:"OTP_STATIC_CODE"`
	OtpRateLimit   int           `envconfig:"OTP_RATE_LIMIT" default:"5"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	cfg.OtpStaticCode = strings.TrimSpace(cfg.OtpStaticCode)
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}
