package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
)

const clientColumns = `id, phone_number, name, business_name, email, address, gstin, is_active,
	address_mandatory, email_mandatory, gstin_mandatory, created_at, updated_at`

func scanClient(row scanner) (domain.Client, error) {
	var c domain.Client
	err := row.Scan(&c.ID, &c.PhoneNumber, &c.Name, &c.BusinessName, &c.Email, &c.Address, &c.GSTIN, &c.IsActive,
		&c.CustomerFieldSettings.AddressMandatory, &c.CustomerFieldSettings.EmailMandatory,
		&c.CustomerFieldSettings.GSTINMandatory, &c.CreatedAt, &c.UpdatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, err
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	if client.ID == "" || client.PhoneNumber == "" {
		return nil, apperr.Validationf("client requires id and phone number")
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	client.CreatedAt = utcNow(client.CreatedAt)
	client.UpdatedAt = utcNow(client.UpdatedAt)
	settings := client.CustomerFieldSettings
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, client.ID, client.PhoneNumber, client.Name, client.BusinessName, client.Email, client.Address, client.GSTIN,
		client.IsActive, settings.AddressMandatory, settings.EmailMandatory, settings.GSTINMandatory,
		client.CreatedAt, client.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflictf("phone number %s is already registered", client.PhoneNumber)
		}
		return nil, classify(err)
	}
	return &client, nil
}

func (s *Store) GetClientByID(ctx context.Context, clientID string) (*domain.Client, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	client, err := scanClient(s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, clientID))
	if err != nil {
		return nil, classify(err)
	}
	return &client, nil
}

func (s *Store) GetClientByPhone(ctx context.Context, phone string) (*domain.Client, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	client, err := scanClient(s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE phone_number = $1`, phone))
	if err != nil {
		return nil, classify(err)
	}
	return &client, nil
}

// UpdateClient never changes the phone number; it is the login identity.
func (s *Store) UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	settings := client.CustomerFieldSettings
	updated, err := scanClient(s.db.QueryRowContext(ctx, `
		UPDATE clients
		SET name = $2, business_name = $3, email = $4, address = $5, gstin = $6, is_active = $7,
			address_mandatory = $8, email_mandatory = $9, gstin_mandatory = $10, updated_at = $11
		WHERE id = $1
		RETURNING `+clientColumns,
		client.ID, client.Name, client.BusinessName, client.Email, client.Address, client.GSTIN, client.IsActive,
		settings.AddressMandatory, settings.EmailMandatory, settings.GSTINMandatory, utcNow(client.UpdatedAt)))
	if err != nil {
		return nil, classify(err)
	}
	return &updated, nil
}

const sessionColumns = `id, client_id, device_id, is_active, created_at, last_seen_at, deactivated_at`

func scanSession(row scanner) (domain.DeviceSession, error) {
	var (
		d           domain.DeviceSession
		deactivated sql.NullTime
	)
	err := row.Scan(&d.ID, &d.ClientID, &d.DeviceID, &d.IsActive, &d.CreatedAt, &d.LastSeenAt, &deactivated)
	d.CreatedAt = d.CreatedAt.UTC()
	d.LastSeenAt = d.LastSeenAt.UTC()
	d.DeactivatedAt = timePtr(deactivated)
	return d, err
}

// ActivateDeviceSession locks the client row so concurrent logins of the same
// client apply one after the other; the partial unique index backs the rule.
func (s *Store) ActivateDeviceSession(ctx context.Context, session domain.DeviceSession) (*domain.DeviceSession, error) {
	if session.ID == "" || session.ClientID == "" || session.DeviceID == "" {
		return nil, apperr.Validationf("session requires id, client and device")
	}
	session.CreatedAt = utcNow(session.CreatedAt)
	if session.LastSeenAt.IsZero() {
		session.LastSeenAt = session.CreatedAt
	}

	var saved domain.DeviceSession
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var id string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM clients WHERE id = $1 FOR UPDATE`, session.ClientID).Scan(&id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE device_sessions
			SET is_active = false, deactivated_at = $3
			WHERE client_id = $1 AND is_active AND id <> $2
		`, session.ClientID, session.ID, session.CreatedAt); err != nil {
			return err
		}

		var err error
		saved, err = scanSession(tx.QueryRowContext(ctx, `
			INSERT INTO device_sessions (id, client_id, device_id, is_active, created_at, last_seen_at)
			VALUES ($1,$2,$3,true,$4,$5)
			ON CONFLICT (id) DO UPDATE SET is_active = true, deactivated_at = NULL, last_seen_at = EXCLUDED.last_seen_at
			RETURNING `+sessionColumns,
			session.ID, session.ClientID, session.DeviceID, session.CreatedAt, session.LastSeenAt))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) GetDeviceSession(ctx context.Context, clientID string, sessionID string) (*domain.DeviceSession, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	session, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM device_sessions WHERE client_id = $1 AND id = $2
	`, clientID, sessionID))
	if err != nil {
		return nil, classify(err)
	}
	return &session, nil
}

func (s *Store) ListDeviceSessions(ctx context.Context, clientID string) ([]domain.DeviceSession, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM device_sessions WHERE client_id = $1 ORDER BY created_at
	`, clientID)
	if err != nil {
		return nil, classify(err)
	}
	sessions, err := collect(rows, scanSession)
	return sessions, classify(err)
}

func (s *Store) DeactivateDeviceSession(ctx context.Context, clientID string, sessionID string, at time.Time) (*domain.DeviceSession, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	session, err := scanSession(s.db.QueryRowContext(ctx, `
		UPDATE device_sessions
		SET is_active = false, deactivated_at = $3
		WHERE client_id = $1 AND id = $2 AND is_active
		RETURNING `+sessionColumns,
		clientID, sessionID, at.UTC()))
	if err != nil {
		err = classify(err)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrAlreadyLoggedOut
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) TouchDeviceSession(ctx context.Context, clientID string, sessionID string, at time.Time) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE device_sessions
		SET last_seen_at = GREATEST(last_seen_at, $3)
		WHERE client_id = $1 AND id = $2
	`, clientID, sessionID, at.UTC())
	if err != nil {
		return classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
