// Package apperr classifies failures so callers can branch on a kind
// (and a finer code) instead of matching message text.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindTransient    Kind = "transient"
	KindInternal     Kind = "internal"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on code, so a sentinel matches any error built with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Code == "" {
		return false
	}
	return e.Code == t.Code
}

func New(kind Kind, code string, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code string, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Generic sentinels, one per kind. Code equals the kind name.
var (
	ErrNotFound     = New(KindNotFound, string(KindNotFound), "not found")
	ErrConflict     = New(KindConflict, string(KindConflict), "conflict")
	ErrValidation   = New(KindValidation, string(KindValidation), "validation failed")
	ErrUnauthorized = New(KindUnauthorized, string(KindUnauthorized), "unauthorized")
	ErrForbidden    = New(KindForbidden, string(KindForbidden), "forbidden")
	ErrTransient    = New(KindTransient, string(KindTransient), "temporarily unavailable")
)

// Named failures of the core.
var (
	ErrOtpNotFound         = New(KindNotFound, "otp_not_found", "no pending otp for this phone")
	ErrOtpExpired          = New(KindUnauthorized, "otp_expired", "otp expired")
	ErrOtpInvalid          = New(KindUnauthorized, "otp_invalid", "otp does not match")
	ErrOtpAttemptsExceeded = New(KindUnauthorized, "otp_attempts_exceeded", "too many otp attempts")
	ErrOtpSendFailed       = New(KindTransient, "otp_send_failed", "otp could not be delivered")
	ErrAlreadyLoggedOut    = New(KindConflict, "already_logged_out", "session is not active")
	ErrSessionInactive     = New(KindUnauthorized, "session_inactive", "session is no longer active")
	ErrAccountInactive     = New(KindForbidden, "account_inactive", "account is inactive")
	ErrInvalidToken        = New(KindUnauthorized, "invalid_token", "invalid or expired token")
	ErrInvalidTransition   = New(KindConflict, "invalid_state_transition", "invalid state transition")
	ErrCartFinalized       = New(KindConflict, "cart_finalized", "cart is already finalized")
	ErrSyncInProgress      = New(KindConflict, "sync_in_progress", "sync batch is still being processed")
)

func NotFoundf(format string, args ...any) error {
	return New(KindNotFound, string(KindNotFound), fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) error {
	return New(KindConflict, string(KindConflict), fmt.Sprintf(format, args...))
}

func Validationf(format string, args ...any) error {
	return New(KindValidation, string(KindValidation), fmt.Sprintf(format, args...))
}

func Forbiddenf(format string, args ...any) error {
	return New(KindForbidden, string(KindForbidden), fmt.Sprintf(format, args...))
}

// Transient marks a storage failure as retryable by the caller.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Wrap(KindTransient, string(KindTransient), "storage unavailable", err)
}

// Detail annotates a named failure with more context, keeping its kind and code.
func Detail(base *Error, format string, args ...any) error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: base.Message + ": " + fmt.Sprintf(format, args...)}
}

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindInternal
}

func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return string(KindOf(err))
}

// Message returns the user-facing message, without wrapped driver detail.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
