package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
)

const invoiceColumns = `id, client_id, invoice_number, customer_id, customer_name, customer_phone, cart_id, products,
	total_amount, paid_amount, is_finalized, note, created_at, updated_at`

func scanInvoice(row scanner) (domain.Invoice, error) {
	var (
		inv      domain.Invoice
		products []byte
	)
	if err := row.Scan(&inv.ID, &inv.ClientID, &inv.InvoiceNumber, &inv.CustomerID, &inv.CustomerName,
		&inv.CustomerPhone, &inv.CartID, &products, &inv.TotalAmount, &inv.PaidAmount, &inv.IsFinalized, &inv.Note,
		&inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return domain.Invoice{}, err
	}
	inv.Products = []domain.InvoiceProduct{}
	if len(products) > 0 {
		if err := json.Unmarshal(products, &inv.Products); err != nil {
			return domain.Invoice{}, err
		}
	}
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return inv, nil
}

const paymentColumns = `id, client_id, invoice_id, customer_id, amount, method, note, paid_at`

func scanPayment(row scanner) (domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.ClientID, &p.InvoiceID, &p.CustomerID, &p.Amount, &p.Method, &p.Note, &p.PaidAt)
	p.PaidAt = p.PaidAt.UTC()
	return p, err
}

const historyColumns = `id, client_id, customer_id, invoice_id, invoice_number, total_amount, item_count, purchased_at`

func scanHistory(row scanner) (domain.PurchaseHistory, error) {
	var h domain.PurchaseHistory
	err := row.Scan(&h.ID, &h.ClientID, &h.CustomerID, &h.InvoiceID, &h.InvoiceNumber, &h.TotalAmount, &h.ItemCount,
		&h.PurchasedAt)
	h.PurchasedAt = h.PurchasedAt.UTC()
	return h, err
}

// CreateInvoice writes the invoice, its opening payment, stock decrements, the
// cart finalization and purchase history in one transaction. The client row
// lock serializes invoice numbering per client.
func (s *Store) CreateInvoice(ctx context.Context, create store.InvoiceCreate) (*domain.Invoice, error) {
	inv := create.Invoice
	if inv.ID == "" || inv.ClientID == "" {
		return nil, apperr.Validationf("invoice requires id and client")
	}
	products, err := jsonValue(inv.Products)
	if err != nil {
		return nil, err
	}
	inv.CreatedAt = utcNow(inv.CreatedAt)
	inv.UpdatedAt = inv.CreatedAt
	clientID := inv.ClientID

	var saved domain.Invoice
	err = s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var seq int
		if err := tx.QueryRowContext(ctx, `SELECT invoice_seq FROM clients WHERE id = $1 FOR UPDATE`, clientID).Scan(&seq); err != nil {
			return err
		}
		if c := create.NewCustomer; c != nil {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO customers (`+customerColumns+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			`, c.ID, clientID, c.Name, c.Phone, c.Address, c.Email, c.GSTIN, c.IsActive, utcNow(c.CreatedAt), utcNow(c.UpdatedAt))
			if isUniqueViolation(err) {
				return apperr.Conflictf("customer phone %s already exists", c.Phone)
			}
			if err != nil {
				return err
			}
			inv.CustomerID = c.ID
		} else {
			var found string
			err := tx.QueryRowContext(ctx, `SELECT id FROM customers WHERE client_id = $1 AND id = $2`, clientID, inv.CustomerID).Scan(&found)
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFoundf("customer %s not found", inv.CustomerID)
			}
			if err != nil {
				return err
			}
		}

		if create.CartID != "" {
			var finalized bool
			err := tx.QueryRowContext(ctx, `
				SELECT is_finalized FROM carts WHERE client_id = $1 AND id = $2 FOR UPDATE
			`, clientID, create.CartID).Scan(&finalized)
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFoundf("cart %s not found", create.CartID)
			}
			if err != nil {
				return err
			}
			if finalized {
				return apperr.ErrCartFinalized
			}
		}

		if inv.InvoiceNumber == "" {
			number, next, err := nextInvoiceNumber(ctx, tx, clientID, seq)
			if err != nil {
				return err
			}
			inv.InvoiceNumber = number
			if _, err := tx.ExecContext(ctx, `UPDATE clients SET invoice_seq = $2 WHERE id = $1`, clientID, next); err != nil {
				return err
			}
		}

		saved, err = scanInvoice(tx.QueryRowContext(ctx, `
			INSERT INTO invoices (`+invoiceColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			RETURNING `+invoiceColumns,
			inv.ID, clientID, inv.InvoiceNumber, inv.CustomerID, inv.CustomerName, inv.CustomerPhone, create.CartID,
			products, inv.TotalAmount, inv.PaidAmount, inv.IsFinalized, inv.Note, inv.CreatedAt, inv.UpdatedAt))
		if isUniqueViolation(err) {
			return apperr.Conflictf("invoice number %s already exists", inv.InvoiceNumber)
		}
		if err != nil {
			return err
		}

		if p := create.OpeningPayment; p != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO payments (`+paymentColumns+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`, p.ID, clientID, saved.ID, saved.CustomerID, p.Amount, p.Method, p.Note, utcNow(p.PaidAt)); err != nil {
				return err
			}
		}
		if err := applyStock(ctx, tx, clientID, create.Stock, saved.CreatedAt); err != nil {
			return err
		}
		if create.CartID != "" {
			if _, err := tx.ExecContext(ctx, `
				UPDATE carts SET is_finalized = true, invoice_id = $3, updated_at = $4
				WHERE client_id = $1 AND id = $2 AND NOT is_finalized
			`, clientID, create.CartID, saved.ID, saved.CreatedAt); err != nil {
				return err
			}
		}
		if saved.IsFinalized && create.HistoryID != "" {
			return writeHistory(ctx, tx, domain.NewPurchaseHistory(create.HistoryID, saved, saved.CreatedAt))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// nextInvoiceNumber skips numbers already taken by caller-supplied invoices.
func nextInvoiceNumber(ctx context.Context, tx *sql.Tx, clientID string, seq int) (string, int, error) {
	for {
		seq++
		candidate := domain.FormatInvoiceNumber(seq)
		var taken bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM invoices WHERE client_id = $1 AND invoice_number = $2)
		`, clientID, candidate).Scan(&taken); err != nil {
			return "", 0, err
		}
		if !taken {
			return candidate, seq, nil
		}
	}
}

// writeHistory is write-once per invoice.
func writeHistory(ctx context.Context, tx *sql.Tx, h domain.PurchaseHistory) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO purchase_history (`+historyColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (invoice_id) DO NOTHING
	`, h.ID, h.ClientID, h.CustomerID, h.InvoiceID, h.InvoiceNumber, h.TotalAmount, h.ItemCount, h.PurchasedAt.UTC())
	return err
}

func (s *Store) GetInvoice(ctx context.Context, clientID string, invoiceID string) (*domain.Invoice, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	inv, err := scanInvoice(s.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+` FROM invoices WHERE client_id = $1 AND id = $2
	`, clientID, invoiceID))
	if err != nil {
		return nil, classify(err)
	}
	return &inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, clientID string, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	limit := sql.NullInt64{Int64: int64(filter.Limit), Valid: filter.Limit > 0}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE client_id = $1
			AND ($2 = '' OR customer_id = $2)
			AND ($3 = '' OR ($3 = 'pending' AND paid_amount < total_amount) OR ($3 = 'paid' AND paid_amount >= total_amount))
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, clientID, filter.CustomerID, filter.Status, limit)
	if err != nil {
		return nil, classify(err)
	}
	invoices, err := collect(rows, scanInvoice)
	return invoices, classify(err)
}

// RecordPayment increments paid_amount in place under the invoice row lock and
// writes history only on the transition to finalized.
func (s *Store) RecordPayment(ctx context.Context, payment domain.Payment, historyID string) (*domain.Invoice, error) {
	if !payment.Amount.IsPositive() {
		return nil, apperr.Validationf("payment amount must be positive")
	}
	payment.PaidAt = utcNow(payment.PaidAt)

	var saved domain.Invoice
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var wasFinalized bool
		err := tx.QueryRowContext(ctx, `
			SELECT is_finalized FROM invoices WHERE client_id = $1 AND id = $2 FOR UPDATE
		`, payment.ClientID, payment.InvoiceID).Scan(&wasFinalized)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFoundf("invoice %s not found", payment.InvoiceID)
		}
		if err != nil {
			return err
		}

		saved, err = scanInvoice(tx.QueryRowContext(ctx, `
			UPDATE invoices
			SET paid_amount = paid_amount + $3,
				is_finalized = paid_amount + $3 >= total_amount,
				updated_at = $4
			WHERE client_id = $1 AND id = $2
			RETURNING `+invoiceColumns,
			payment.ClientID, payment.InvoiceID, payment.Amount, payment.PaidAt))
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO payments (`+paymentColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, payment.ID, payment.ClientID, payment.InvoiceID, saved.CustomerID, payment.Amount, payment.Method,
			payment.Note, payment.PaidAt); err != nil {
			return err
		}

		if !wasFinalized && saved.IsFinalized && historyID != "" {
			return writeHistory(ctx, tx, domain.NewPurchaseHistory(historyID, saved, payment.PaidAt))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) ListPayments(ctx context.Context, clientID string, filter domain.PaymentFilter) ([]domain.Payment, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE client_id = $1
			AND ($2 = '' OR invoice_id = $2)
			AND ($3 = '' OR customer_id = $3)
			AND ($4::timestamptz IS NULL OR paid_at >= $4)
			AND ($5::timestamptz IS NULL OR paid_at < $5)
		ORDER BY paid_at, id
	`, clientID, filter.InvoiceID, filter.CustomerID, nullTime(filter.From), nullTime(filter.To))
	if err != nil {
		return nil, classify(err)
	}
	payments, err := collect(rows, scanPayment)
	return payments, classify(err)
}

func (s *Store) ListPurchaseHistory(ctx context.Context, clientID string, customerID string) ([]domain.PurchaseHistory, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+historyColumns+` FROM purchase_history
		WHERE client_id = $1 AND ($2 = '' OR customer_id = $2)
		ORDER BY purchased_at, id
	`, clientID, customerID)
	if err != nil {
		return nil, classify(err)
	}
	history, err := collect(rows, scanHistory)
	return history, classify(err)
}

