package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
)

const dealerColumns = `id, client_id, name, phone, email, address, gstin, is_active, created_at, updated_at`

func scanDealer(row scanner) (domain.Dealer, error) {
	var d domain.Dealer
	err := row.Scan(&d.ID, &d.ClientID, &d.Name, &d.Phone, &d.Email, &d.Address, &d.GSTIN, &d.IsActive,
		&d.CreatedAt, &d.UpdatedAt)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, err
}

func (s *Store) CreateDealer(ctx context.Context, dealer domain.Dealer) (*domain.Dealer, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	created := utcNow(dealer.CreatedAt)
	saved, err := scanDealer(s.db.QueryRowContext(ctx, `
		INSERT INTO dealers (`+dealerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING `+dealerColumns,
		dealer.ID, dealer.ClientID, dealer.Name, dealer.Phone, dealer.Email, dealer.Address, dealer.GSTIN,
		dealer.IsActive, created, created))
	if err != nil {
		return nil, classify(err)
	}
	return &saved, nil
}

func (s *Store) GetDealer(ctx context.Context, clientID string, dealerID string) (*domain.Dealer, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	dealer, err := scanDealer(s.db.QueryRowContext(ctx, `
		SELECT `+dealerColumns+` FROM dealers WHERE client_id = $1 AND id = $2
	`, clientID, dealerID))
	if err != nil {
		return nil, classify(err)
	}
	return &dealer, nil
}

func (s *Store) UpdateDealer(ctx context.Context, dealer domain.Dealer) (*domain.Dealer, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	saved, err := scanDealer(s.db.QueryRowContext(ctx, `
		UPDATE dealers
		SET name = $3, phone = $4, email = $5, address = $6, gstin = $7, is_active = $8, updated_at = $9
		WHERE client_id = $1 AND id = $2
		RETURNING `+dealerColumns,
		dealer.ClientID, dealer.ID, dealer.Name, dealer.Phone, dealer.Email, dealer.Address, dealer.GSTIN,
		dealer.IsActive, utcNow(dealer.UpdatedAt)))
	if err != nil {
		return nil, classify(err)
	}
	return &saved, nil
}

func (s *Store) ListDealers(ctx context.Context, clientID string, includeInactive bool) ([]domain.Dealer, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dealerColumns+` FROM dealers
		WHERE client_id = $1 AND (is_active OR $2)
		ORDER BY created_at, id
	`, clientID, includeInactive)
	if err != nil {
		return nil, classify(err)
	}
	dealers, err := collect(rows, scanDealer)
	return dealers, classify(err)
}

const orderColumns = `id, client_id, dealer_id, status, total_amount, due_date, note, created_at, delivered_at,
	delivered_by, delivery_note, cancelled_at, cancel_reason`

func scanOrder(row scanner) (domain.DealerOrder, error) {
	var (
		o         domain.DealerOrder
		total     decimal.NullDecimal
		due       sql.NullTime
		delivered sql.NullTime
		cancelled sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.ClientID, &o.DealerID, &o.Status, &total, &due, &o.Note, &o.CreatedAt, &delivered,
		&o.DeliveredBy, &o.DeliveryNote, &cancelled, &o.CancelReason); err != nil {
		return domain.DealerOrder{}, err
	}
	if total.Valid {
		o.TotalAmount = &total.Decimal
	}
	o.DueDate = timePtr(due)
	o.DeliveredAt = timePtr(delivered)
	o.CancelledAt = timePtr(cancelled)
	o.CreatedAt = o.CreatedAt.UTC()
	o.Items = []domain.DealerOrderItem{}
	return o, nil
}

const orderLineColumns = `id, order_id, item_id, item_name, quantity, unit_cost`

func scanOrderLine(row scanner) (domain.DealerOrderItem, error) {
	var line domain.DealerOrderItem
	err := row.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.ItemName, &line.Quantity, &line.UnitCost)
	return line, err
}

// attachLines fills Items for every order with one query.
func attachLines(ctx context.Context, q queryer, orders []domain.DealerOrder) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+orderLineColumns+` FROM dealer_order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return err
	}
	lines, err := collect(rows, scanOrderLine)
	if err != nil {
		return err
	}
	byOrder := make(map[string][]domain.DealerOrderItem, len(orders))
	for _, line := range lines {
		byOrder[line.OrderID] = append(byOrder[line.OrderID], line)
	}
	for i := range orders {
		if found, ok := byOrder[orders[i].ID]; ok {
			orders[i].Items = found
		}
	}
	return nil
}

func loadOrder(ctx context.Context, q queryer, clientID string, orderID string, lock bool) (domain.DealerOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM dealer_orders WHERE client_id = $1 AND id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	order, err := scanOrder(q.QueryRowContext(ctx, query, clientID, orderID))
	if err != nil {
		return domain.DealerOrder{}, err
	}
	orders := []domain.DealerOrder{order}
	if err := attachLines(ctx, q, orders); err != nil {
		return domain.DealerOrder{}, err
	}
	return orders[0], nil
}

func (s *Store) CreateDealerOrder(ctx context.Context, order domain.DealerOrder) (*domain.DealerOrder, error) {
	if len(order.Items) == 0 {
		return nil, apperr.Validationf("dealer order requires at least one line")
	}
	if order.Status == "" {
		order.Status = domain.DealerOrderPending
	}
	order.CreatedAt = utcNow(order.CreatedAt)

	var saved domain.DealerOrder
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var found string
		err := tx.QueryRowContext(ctx, `SELECT id FROM dealers WHERE client_id = $1 AND id = $2`,
			order.ClientID, order.DealerID).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFoundf("dealer %s not found", order.DealerID)
		}
		if err != nil {
			return err
		}

		var total any
		if order.TotalAmount != nil {
			total = *order.TotalAmount
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dealer_orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULL,'','',NULL,'')
		`, order.ID, order.ClientID, order.DealerID, order.Status, total, nullTime(order.DueDate), order.Note,
			order.CreatedAt); err != nil {
			return err
		}

		for i, line := range order.Items {
			if line.Quantity < 1 {
				return apperr.Validationf("order quantity must be positive")
			}
			var exists bool
			if err := tx.QueryRowContext(ctx, `
				SELECT EXISTS (SELECT 1 FROM items WHERE client_id = $1 AND id = $2)
			`, order.ClientID, line.ItemID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return apperr.NotFoundf("item %s not found", line.ItemID)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO dealer_order_items (id, order_id, item_id, item_name, quantity, unit_cost, position)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
			`, line.ID, order.ID, line.ItemID, line.ItemName, line.Quantity, line.UnitCost, i); err != nil {
				return err
			}
		}

		saved, err = loadOrder(ctx, tx, order.ClientID, order.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) GetDealerOrder(ctx context.Context, clientID string, orderID string) (*domain.DealerOrder, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	order, err := loadOrder(ctx, s.db, clientID, orderID, false)
	if err != nil {
		return nil, classify(err)
	}
	return &order, nil
}

func (s *Store) ListDealerOrders(ctx context.Context, clientID string, filter domain.DealerOrderFilter) ([]domain.DealerOrder, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM dealer_orders
		WHERE client_id = $1 AND ($2 = '' OR dealer_id = $2) AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC, id DESC
	`, clientID, filter.DealerID, string(filter.Status))
	if err != nil {
		return nil, classify(err)
	}
	orders, err := collect(rows, scanOrder)
	if err != nil {
		return nil, classify(err)
	}
	if err := attachLines(ctx, s.db, orders); err != nil {
		return nil, classify(err)
	}
	return orders, nil
}

// DeliverDealerOrder holds the order row lock across the status check and the
// stock increment, so concurrent deliveries apply stock once.
func (s *Store) DeliverDealerOrder(ctx context.Context, clientID string, orderID string, delivery domain.OrderDelivery) (*domain.DealerOrder, error) {
	at := utcNow(delivery.DeliveredAt)

	var saved domain.DealerOrder
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		order, err := loadOrder(ctx, tx, clientID, orderID, true)
		if err != nil {
			return err
		}
		if order.Status != domain.DealerOrderPending {
			return apperr.Detail(apperr.ErrInvalidTransition, "order is %s", order.Status)
		}

		adjustments := make([]domain.StockAdjustment, 0, len(order.Items))
		for _, line := range order.Items {
			adjustments = append(adjustments, domain.StockAdjustment{ItemID: line.ItemID, Delta: line.Quantity})
		}
		if err := applyStock(ctx, tx, clientID, adjustments, at); err != nil {
			return err
		}

		var total any
		if delivery.TotalAmount != nil {
			total = *delivery.TotalAmount
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE dealer_orders
			SET status = $3, delivered_at = $4, delivered_by = $5, delivery_note = $6,
				total_amount = COALESCE($7, total_amount), due_date = COALESCE($8, due_date)
			WHERE client_id = $1 AND id = $2
		`, clientID, orderID, domain.DealerOrderDelivered, at, strings.TrimSpace(delivery.DeliveredBy), delivery.Note,
			total, nullTime(delivery.DueDate)); err != nil {
			return err
		}

		saved, err = loadOrder(ctx, tx, clientID, orderID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) CancelDealerOrder(ctx context.Context, clientID string, orderID string, reason string, at time.Time) (*domain.DealerOrder, error) {
	at = utcNow(at)

	var saved domain.DealerOrder
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		order, err := loadOrder(ctx, tx, clientID, orderID, true)
		if err != nil {
			return err
		}
		if order.Status != domain.DealerOrderPending {
			return apperr.Detail(apperr.ErrInvalidTransition, "order is %s", order.Status)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE dealer_orders SET status = $3, cancelled_at = $4, cancel_reason = $5
			WHERE client_id = $1 AND id = $2
		`, clientID, orderID, domain.DealerOrderCancelled, at, reason); err != nil {
			return err
		}
		saved, err = loadOrder(ctx, tx, clientID, orderID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

const dealerPaymentColumns = `id, client_id, dealer_id, order_id, amount, method, note, paid_at`

func scanDealerPayment(row scanner) (domain.DealerPayment, error) {
	var p domain.DealerPayment
	err := row.Scan(&p.ID, &p.ClientID, &p.DealerID, &p.OrderID, &p.Amount, &p.Method, &p.Note, &p.PaidAt)
	p.PaidAt = p.PaidAt.UTC()
	return p, err
}

func (s *Store) CreateDealerPayment(ctx context.Context, payment domain.DealerPayment) (*domain.DealerPayment, error) {
	if !payment.Amount.IsPositive() {
		return nil, apperr.Validationf("payment amount must be positive")
	}
	payment.PaidAt = utcNow(payment.PaidAt)

	var saved domain.DealerPayment
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var found string
		err := tx.QueryRowContext(ctx, `SELECT id FROM dealers WHERE client_id = $1 AND id = $2`,
			payment.ClientID, payment.DealerID).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFoundf("dealer %s not found", payment.DealerID)
		}
		if err != nil {
			return err
		}

		if payment.OrderID != "" {
			var status domain.DealerOrderStatus
			err := tx.QueryRowContext(ctx, `
				SELECT status FROM dealer_orders WHERE client_id = $1 AND id = $2 AND dealer_id = $3 FOR SHARE
			`, payment.ClientID, payment.OrderID, payment.DealerID).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFoundf("order %s not found for dealer %s", payment.OrderID, payment.DealerID)
			}
			if err != nil {
				return err
			}
			if status == domain.DealerOrderCancelled {
				return apperr.Detail(apperr.ErrInvalidTransition, "order is cancelled")
			}
		}

		saved, err = scanDealerPayment(tx.QueryRowContext(ctx, `
			INSERT INTO dealer_payments (`+dealerPaymentColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING `+dealerPaymentColumns,
			payment.ID, payment.ClientID, payment.DealerID, payment.OrderID, payment.Amount, payment.Method,
			payment.Note, payment.PaidAt))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) ListDealerPayments(ctx context.Context, clientID string, dealerID string, orderID string) ([]domain.DealerPayment, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dealerPaymentColumns+` FROM dealer_payments
		WHERE client_id = $1 AND ($2 = '' OR dealer_id = $2) AND ($3 = '' OR order_id = $3)
		ORDER BY paid_at, id
	`, clientID, dealerID, orderID)
	if err != nil {
		return nil, classify(err)
	}
	payments, err := collect(rows, scanDealerPayment)
	return payments, classify(err)
}

var _ store.DealerStore = (*Store)(nil)
