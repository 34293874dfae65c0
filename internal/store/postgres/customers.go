package postgres

import (
	"context"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
)

const customerColumns = `id, client_id, name, phone, address, email, gstin, is_active, created_at, updated_at`

func scanCustomer(row scanner) (domain.ClientCustomer, error) {
	var c domain.ClientCustomer
	err := row.Scan(&c.ID, &c.ClientID, &c.Name, &c.Phone, &c.Address, &c.Email, &c.GSTIN, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, err
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.ClientCustomer) (*domain.ClientCustomer, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	saved, err := scanCustomer(s.db.QueryRowContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING `+customerColumns,
		customer.ID, customer.ClientID, customer.Name, customer.Phone, customer.Address, customer.Email,
		customer.GSTIN, customer.IsActive, utcNow(customer.CreatedAt), utcNow(customer.UpdatedAt)))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflictf("customer phone %s already exists", customer.Phone)
		}
		return nil, classify(err)
	}
	return &saved, nil
}

func (s *Store) GetCustomer(ctx context.Context, clientID string, customerID string) (*domain.ClientCustomer, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	customer, err := scanCustomer(s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+` FROM customers WHERE client_id = $1 AND id = $2
	`, clientID, customerID))
	if err != nil {
		return nil, classify(err)
	}
	return &customer, nil
}

func (s *Store) FindCustomerByPhone(ctx context.Context, clientID string, phone string) (*domain.ClientCustomer, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	customer, err := scanCustomer(s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+` FROM customers WHERE client_id = $1 AND phone = $2 AND phone <> ''
	`, clientID, phone))
	if err != nil {
		return nil, classify(err)
	}
	return &customer, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.ClientCustomer) (*domain.ClientCustomer, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	saved, err := scanCustomer(s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $3, phone = $4, address = $5, email = $6, gstin = $7, is_active = $8, updated_at = $9
		WHERE client_id = $1 AND id = $2
		RETURNING `+customerColumns,
		customer.ClientID, customer.ID, customer.Name, customer.Phone, customer.Address, customer.Email,
		customer.GSTIN, customer.IsActive, utcNow(customer.UpdatedAt)))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflictf("customer phone %s already exists", customer.Phone)
		}
		return nil, classify(err)
	}
	return &saved, nil
}

func (s *Store) ListCustomers(ctx context.Context, clientID string) ([]domain.ClientCustomer, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+` FROM customers WHERE client_id = $1 ORDER BY created_at, id
	`, clientID)
	if err != nil {
		return nil, classify(err)
	}
	customers, err := collect(rows, scanCustomer)
	return customers, classify(err)
}
