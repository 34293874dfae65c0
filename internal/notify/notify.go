// Package notify delivers one-time passwords to a phone number.
package notify

import (
	"context"
	"log/slog"
)

// Sender delivers an OTP. Delivered reports whether a real channel carried the
// message; a sender that only logs returns false.
type Sender interface {
	SendOtp(ctx context.Context, phoneNumber string, code string) (delivered bool, err error)
}

// LogSender writes the masked destination to the log and never fails. Codes
// are only logged outside production.
type LogSender struct {
	Logger      *slog.Logger
	RevealCodes bool
}

func NewLogSender(logger *slog.Logger, revealCodes bool) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{Logger: logger, RevealCodes: revealCodes}
}

func (s *LogSender) SendOtp(ctx context.Context, phoneNumber string, code string) (bool, error) {
	attrs := []any{slog.String("phone", MaskPhone(phoneNumber))}
	if s.RevealCodes {
		attrs = append(attrs, slog.String("code", code))
	}
	s.Logger.InfoContext(ctx, "otp issued", attrs...)
	return false, nil
}

// MaskPhone keeps the last four digits.
func MaskPhone(phone string) string {
	r := []rune(phone)
	if len(r) <= 4 {
		return "****"
	}
	for i := 0; i < len(r)-4; i++ {
		if r[i] != '+' {
			r[i] = '*'
		}
	}
	return string(r)
}
