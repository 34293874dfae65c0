package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/xid"
)

// IssueOtp replaces any pending OTP for (phone, purpose) and hands the new code
// to the sender. A delivery failure drops the fresh session again.
func (s *Service) IssueOtp(ctx context.Context, req domain.IssueOtpRequest) (domain.IssueOtpResponse, error) {
	phone, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return domain.IssueOtpResponse{}, err
	}
	if !req.Purpose.Valid() {
		return domain.IssueOtpResponse{}, apperr.Validationf("purpose must be register or login")
	}

	client, err := s.clientByPhone(ctx, phone)
	if err != nil {
		return domain.IssueOtpResponse{}, err
	}
	switch req.Purpose {
	case domain.OtpPurposeRegister:
		if client != nil {
			return domain.IssueOtpResponse{}, apperr.Conflictf("phone number %s is already registered", phone)
		}
	case domain.OtpPurposeLogin:
		if client == nil {
			return domain.IssueOtpResponse{}, apperr.NotFoundf("no account for phone number %s", phone)
		}
		if !client.IsActive {
			return domain.IssueOtpResponse{}, apperr.ErrAccountInactive
		}
	}

	code, err := s.generateCode()
	if err != nil {
		return domain.IssueOtpResponse{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return domain.IssueOtpResponse{}, err
	}

	now := s.now()
	session := domain.OtpSession{
		PhoneNumber: phone,
		Purpose:     req.Purpose,
		OtpHash:     string(hash),
		ExpiresAt:   now.Add(s.settings.OtpTTL),
		CreatedAt:   now,
	}
	if err := s.otps.Put(ctx, session); err != nil {
		return domain.IssueOtpResponse{}, err
	}

	delivered, err := s.sender.SendOtp(ctx, phone, code)
	if err != nil {
		if delErr := s.otps.Delete(ctx, phone, req.Purpose); delErr != nil {
			s.logger.WarnContext(ctx, "otp cleanup after send failure", "error", delErr)
		}
		return domain.IssueOtpResponse{}, apperr.Wrap(apperr.KindTransient, apperr.ErrOtpSendFailed.Code, apperr.ErrOtpSendFailed.Message, err)
	}

	return domain.IssueOtpResponse{
		PhoneNumber: phone,
		Purpose:     req.Purpose,
		ExpiresAt:   session.ExpiresAt,
		Delivered:   delivered,
	}, nil
}

func (s *Service) VerifyOtp(ctx context.Context, req domain.VerifyOtpRequest) error {
	phone, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return err
	}
	if !req.Purpose.Valid() {
		return apperr.Validationf("purpose must be register or login")
	}
	return s.verifyOtp(ctx, phone, req.Otp, req.Purpose, req.Consume)
}

func (s *Service) verifyOtp(ctx context.Context, phone string, code string, purpose domain.OtpPurpose, consume bool) error {
	session, ok, err := s.otps.Get(ctx, phone, purpose)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrOtpNotFound
	}

	if !s.now().Before(session.ExpiresAt) {
		s.dropOtp(ctx, phone, purpose)
		return apperr.ErrOtpExpired
	}
	if session.Attempts >= s.settings.OtpMaxAttempts {
		s.dropOtp(ctx, phone, purpose)
		return apperr.ErrOtpAttemptsExceeded
	}

	if bcrypt.CompareHashAndPassword([]byte(session.OtpHash), []byte(strings.TrimSpace(code))) != nil {
		attempts, err := s.otps.IncrementAttempts(ctx, phone, purpose)
		if err != nil {
			return err
		}
		if attempts >= s.settings.OtpMaxAttempts {
			s.dropOtp(ctx, phone, purpose)
			return apperr.ErrOtpAttemptsExceeded
		}
		return apperr.ErrOtpInvalid
	}

	if consume {
		taken, err := s.otps.Take(ctx, phone, purpose, session.OtpHash)
		if err != nil {
			return err
		}
		if !taken {
			return apperr.ErrOtpNotFound
		}
		return nil
	}
	return s.otps.MarkVerified(ctx, phone, purpose)
}

func (s *Service) dropOtp(ctx context.Context, phone string, purpose domain.OtpPurpose) {
	if err := s.otps.Delete(ctx, phone, purpose); err != nil {
		s.logger.WarnContext(ctx, "otp purge failed", "purpose", string(purpose), "error", err)
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (domain.AuthResponse, error) {
	phone, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return domain.AuthResponse{}, err
	}
	name := strings.TrimSpace(req.Name)
	deviceID := strings.TrimSpace(req.DeviceID)
	if name == "" || deviceID == "" {
		return domain.AuthResponse{}, apperr.Validationf("name and device_id are required")
	}

	existing, err := s.clientByPhone(ctx, phone)
	if err != nil {
		return domain.AuthResponse{}, err
	}
	if existing != nil {
		return domain.AuthResponse{}, apperr.Conflictf("phone number %s is already registered", phone)
	}
	if err := s.verifyOtp(ctx, phone, req.Otp, domain.OtpPurposeRegister, true); err != nil {
		return domain.AuthResponse{}, err
	}

	now := s.now()
	client, err := s.repo.CreateClient(ctx, domain.Client{
		ID:           xid.New("cli"),
		PhoneNumber:  phone,
		Name:         name,
		BusinessName: strings.TrimSpace(req.BusinessName),
		Email:        strings.TrimSpace(req.Email),
		Address:      strings.TrimSpace(req.Address),
		GSTIN:        strings.ToUpper(strings.TrimSpace(req.GSTIN)),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return domain.AuthResponse{}, err
	}

	resp, err := s.openSession(ctx, *client, deviceID)
	if err != nil {
		return domain.AuthResponse{}, err
	}
	s.logAudit(WithPrincipal(ctx, domain.Principal{ClientID: client.ID, PhoneNumber: phone}),
		client.ID, "client_register", "client", client.ID, "device="+deviceID)
	return resp, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (domain.AuthResponse, error) {
	phone, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return domain.AuthResponse{}, err
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		return domain.AuthResponse{}, apperr.Validationf("device_id is required")
	}

	client, err := s.clientByPhone(ctx, phone)
	if err != nil {
		return domain.AuthResponse{}, err
	}
	if client == nil {
		return domain.AuthResponse{}, apperr.NotFoundf("no account for phone number %s", phone)
	}
	if !client.IsActive {
		return domain.AuthResponse{}, apperr.ErrAccountInactive
	}
	if err := s.verifyOtp(ctx, phone, req.Otp, domain.OtpPurposeLogin, true); err != nil {
		return domain.AuthResponse{}, err
	}

	resp, err := s.openSession(ctx, *client, deviceID)
	if err != nil {
		return domain.AuthResponse{}, err
	}
	s.logAudit(WithPrincipal(ctx, domain.Principal{ClientID: client.ID, PhoneNumber: phone}),
		client.ID, "client_login", "device_session", resp.Session.ID, "device="+deviceID)
	return resp, nil
}

// openSession activates a fresh session for the device; the store deactivates
// every other session of the client in the same step.
func (s *Service) openSession(ctx context.Context, client domain.Client, deviceID string) (domain.AuthResponse, error) {
	if s.tokens == nil {
		return domain.AuthResponse{}, errors.New("service: token manager is not configured")
	}
	now := s.now()
	session, err := s.repo.ActivateDeviceSession(ctx, domain.DeviceSession{
		ID:         xid.New("ses"),
		ClientID:   client.ID,
		DeviceID:   deviceID,
		IsActive:   true,
		CreatedAt:  now,
		LastSeenAt: now,
	})
	if err != nil {
		return domain.AuthResponse{}, err
	}

	signed, expiresAt, err := s.tokens.Issue(domain.Principal{
		ClientID:    client.ID,
		PhoneNumber: client.PhoneNumber,
		SessionID:   session.ID,
	}, now)
	if err != nil {
		return domain.AuthResponse{}, err
	}
	return domain.AuthResponse{Token: signed, ExpiresAt: expiresAt, Client: client, Session: *session}, nil
}

// Logout deactivates the session only while it is active for the client.
func (s *Service) Logout(ctx context.Context, clientID string, sessionID string) error {
	session, err := s.repo.DeactivateDeviceSession(ctx, clientID, sessionID, s.now())
	if err != nil {
		return err
	}
	s.logAudit(ctx, clientID, "client_logout", "device_session", session.ID, "device="+session.DeviceID)
	return nil
}

// Authenticate resolves a bearer token to its principal and refreshes the
// session's last-seen time.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (domain.Principal, error) {
	if s.tokens == nil {
		return domain.Principal{}, apperr.ErrInvalidToken
	}
	p, err := s.tokens.Parse(rawToken)
	if err != nil {
		return domain.Principal{}, err
	}

	session, err := s.repo.GetDeviceSession(ctx, p.ClientID, p.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Principal{}, apperr.ErrSessionInactive
	}
	if err != nil {
		return domain.Principal{}, err
	}
	if !session.IsActive {
		return domain.Principal{}, apperr.ErrSessionInactive
	}

	client, err := s.repo.GetClientByID(ctx, p.ClientID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Principal{}, apperr.ErrInvalidToken
	}
	if err != nil {
		return domain.Principal{}, err
	}
	if !client.IsActive {
		return domain.Principal{}, apperr.ErrAccountInactive
	}

	if err := s.repo.TouchDeviceSession(ctx, p.ClientID, p.SessionID, s.now()); err != nil {
		return domain.Principal{}, err
	}
	return p, nil
}

func (s *Service) ListDeviceSessions(ctx context.Context) ([]domain.DeviceSession, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDeviceSessions(ctx, p.ClientID)
}

func (s *Service) GetProfile(ctx context.Context) (domain.Client, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.Client{}, err
	}
	client, err := s.repo.GetClientByID(ctx, p.ClientID)
	if err != nil {
		return domain.Client{}, err
	}
	return *client, nil
}

func (s *Service) UpdateProfile(ctx context.Context, req domain.ProfileUpdateRequest) (domain.Client, error) {
	client, err := s.GetProfile(ctx)
	if err != nil {
		return domain.Client{}, err
	}

	if name := trimPtr(req.Name); name != nil {
		if *name == "" {
			return domain.Client{}, apperr.Validationf("name cannot be empty")
		}
		client.Name = *name
	}
	if v := trimPtr(req.BusinessName); v != nil {
		client.BusinessName = *v
	}
	if v := trimPtr(req.Email); v != nil {
		client.Email = *v
	}
	if v := trimPtr(req.Address); v != nil {
		client.Address = *v
	}
	if v := trimPtr(req.GSTIN); v != nil {
		client.GSTIN = strings.ToUpper(*v)
	}
	client.UpdatedAt = s.now()

	updated, err := s.repo.UpdateClient(ctx, client)
	if err != nil {
		return domain.Client{}, err
	}
	s.logAudit(ctx, client.ID, "profile_update", "client", client.ID, "")
	return *updated, nil
}

func (s *Service) UpdateCustomerFieldSettings(ctx context.Context, settings domain.CustomerFieldSettings) (domain.Client, error) {
	client, err := s.GetProfile(ctx)
	if err != nil {
		return domain.Client{}, err
	}
	client.CustomerFieldSettings = settings
	client.UpdatedAt = s.now()

	updated, err := s.repo.UpdateClient(ctx, client)
	if err != nil {
		return domain.Client{}, err
	}
	s.logAudit(ctx, client.ID, "customer_fields_update", "client", client.ID,
		fmt.Sprintf("address=%t,email=%t,gstin=%t", settings.AddressMandatory, settings.EmailMandatory, settings.GSTINMandatory))
	return *updated, nil
}

func (s *Service) clientByPhone(ctx context.Context, phone string) (*domain.Client, error) {
	client, err := s.repo.GetClientByPhone(ctx, phone)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return client, err
}

func (s *Service) generateCode() (string, error) {
	if s.settings.OtpStaticCode != "" {
		return s.settings.OtpStaticCode, nil
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s.settings.OtpLength)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", s.settings.OtpLength, n.Int64()), nil
}

// normalizePhone keeps digits and a leading plus sign.
func normalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", apperr.Validationf("phone number contains invalid character %q", r)
		}
	}
	phone := b.String()
	if digits := strings.TrimPrefix(phone, "+"); len(digits) < 6 || len(digits) > 15 {
		return "", apperr.Validationf("phone number must have 6 to 15 digits")
	}
	return phone, nil
}
