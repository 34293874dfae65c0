package cache

import (
	"context"
	"sync"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
)

// OtpStore keeps at most one OTP session per (phone, purpose).
type OtpStore interface {
	// Put replaces any existing session for the same phone and purpose.
	Put(ctx context.Context, session domain.OtpSession) error
	Get(ctx context.Context, phone string, purpose domain.OtpPurpose) (*domain.OtpSession, bool, error)
	// IncrementAttempts returns the new attempt count, or apperr.ErrOtpNotFound.
	IncrementAttempts(ctx context.Context, phone string, purpose domain.OtpPurpose) (int, error)
	MarkVerified(ctx context.Context, phone string, purpose domain.OtpPurpose) error
	// Take removes the session only while it still carries otpHash and reports whether it did.
	Take(ctx context.Context, phone string, purpose domain.OtpPurpose, otpHash string) (bool, error)
	Delete(ctx context.Context, phone string, purpose domain.OtpPurpose) error
}

type MemoryOtpStore struct {
	mu       sync.Mutex
	sessions map[string]domain.OtpSession
}

func NewMemoryOtpStore() *MemoryOtpStore {
	return &MemoryOtpStore{sessions: make(map[string]domain.OtpSession)}
}

func (m *MemoryOtpStore) Put(_ context.Context, session domain.OtpSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[otpKey(session.PhoneNumber, session.Purpose)] = session
	return nil
}

func (m *MemoryOtpStore) Get(_ context.Context, phone string, purpose domain.OtpPurpose) (*domain.OtpSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[otpKey(phone, purpose)]
	if !ok {
		return nil, false, nil
	}
	return &session, true, nil
}

func (m *MemoryOtpStore) IncrementAttempts(_ context.Context, phone string, purpose domain.OtpPurpose) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := otpKey(phone, purpose)
	session, ok := m.sessions[key]
	if !ok {
		return 0, apperr.ErrOtpNotFound
	}
	session.Attempts++
	m.sessions[key] = session
	return session.Attempts, nil
}

func (m *MemoryOtpStore) MarkVerified(_ context.Context, phone string, purpose domain.OtpPurpose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := otpKey(phone, purpose)
	session, ok := m.sessions[key]
	if !ok {
		return apperr.ErrOtpNotFound
	}
	session.IsVerified = true
	m.sessions[key] = session
	return nil
}

func (m *MemoryOtpStore) Take(_ context.Context, phone string, purpose domain.OtpPurpose, otpHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := otpKey(phone, purpose)
	session, ok := m.sessions[key]
	if !ok || session.OtpHash != otpHash {
		return false, nil
	}
	delete(m.sessions, key)
	return true, nil
}

func (m *MemoryOtpStore) Delete(_ context.Context, phone string, purpose domain.OtpPurpose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, otpKey(phone, purpose))
	return nil
}

func otpKey(phone string, purpose domain.OtpPurpose) string {
	return "otp:" + string(purpose) + ":" + phone
}
