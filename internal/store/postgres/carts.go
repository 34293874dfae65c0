package postgres

import (
	"context"
	"database/sql"
	"time"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
)

const cartColumns = `id, client_id, total_amount, item_count, is_finalized, invoice_id, created_at, updated_at`

const cartLineColumns = `id, cart_id, item_id, name, price, quantity, is_active, added_at`

func scanCart(row scanner) (domain.Cart, error) {
	var c domain.Cart
	err := row.Scan(&c.ID, &c.ClientID, &c.TotalAmount, &c.ItemCount, &c.IsFinalized, &c.InvoiceID,
		&c.CreatedAt, &c.UpdatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, err
}

func scanCartLine(row scanner) (domain.CartItem, error) {
	var line domain.CartItem
	err := row.Scan(&line.ID, &line.CartID, &line.ItemID, &line.Name, &line.Price, &line.Quantity, &line.IsActive,
		&line.AddedAt)
	line.AddedAt = line.AddedAt.UTC()
	return line, err
}

// loadCart reads a cart with its lines. lock takes the cart row for update.
func loadCart(ctx context.Context, q queryer, clientID string, cartID string, lock bool) (domain.Cart, error) {
	query := `SELECT ` + cartColumns + ` FROM carts WHERE client_id = $1 AND id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	cart, err := scanCart(q.QueryRowContext(ctx, query, clientID, cartID))
	if err != nil {
		return domain.Cart{}, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+cartLineColumns+` FROM cart_items WHERE cart_id = $1 ORDER BY position
	`, cart.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Items, err = collect(rows, scanCartLine)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Recalculate()
	return cart, nil
}

func (s *Store) CreateCart(ctx context.Context, cart domain.Cart) (*domain.Cart, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	cart.Items = []domain.CartItem{}
	cart.Recalculate()
	saved, err := scanCart(s.db.QueryRowContext(ctx, `
		INSERT INTO carts (`+cartColumns+`)
		VALUES ($1,$2,$3,$4,false,'',$5,$6)
		RETURNING `+cartColumns,
		cart.ID, cart.ClientID, cart.TotalAmount, cart.ItemCount, utcNow(cart.CreatedAt), utcNow(cart.UpdatedAt)))
	if err != nil {
		return nil, classify(err)
	}
	saved.Items = []domain.CartItem{}
	return &saved, nil
}

func (s *Store) GetCart(ctx context.Context, clientID string, cartID string) (*domain.Cart, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	cart, err := loadCart(ctx, s.db, clientID, cartID, false)
	if err != nil {
		return nil, classify(err)
	}
	return &cart, nil
}

func (s *Store) AddCartItem(ctx context.Context, clientID string, cartID string, line domain.CartItem) (*domain.Cart, error) {
	return s.mutateCart(ctx, clientID, cartID, func(ctx context.Context, tx *sql.Tx, cart domain.Cart) error {
		for _, existing := range cart.Items {
			if existing.IsActive && existing.ItemID == line.ItemID {
				_, err := tx.ExecContext(ctx, `UPDATE cart_items SET quantity = quantity + $2 WHERE id = $1`,
					existing.ID, line.Quantity)
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cart_items (id, cart_id, item_id, name, price, quantity, is_active, added_at)
			VALUES ($1,$2,$3,$4,$5,$6,true,$7)
		`, line.ID, cart.ID, line.ItemID, line.Name, line.Price, line.Quantity, utcNow(line.AddedAt))
		return err
	})
}

func (s *Store) RemoveCartItem(ctx context.Context, clientID string, cartID string, lineID string) (*domain.Cart, error) {
	return s.mutateCart(ctx, clientID, cartID, func(ctx context.Context, tx *sql.Tx, cart domain.Cart) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE cart_items SET is_active = false WHERE cart_id = $1 AND id = $2 AND is_active
		`, cart.ID, lineID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperr.NotFoundf("cart line %s not found", lineID)
		}
		return nil
	})
}

func (s *Store) ClearCart(ctx context.Context, clientID string, cartID string) (*domain.Cart, error) {
	return s.mutateCart(ctx, clientID, cartID, func(ctx context.Context, tx *sql.Tx, cart domain.Cart) error {
		_, err := tx.ExecContext(ctx, `UPDATE cart_items SET is_active = false WHERE cart_id = $1`, cart.ID)
		return err
	})
}

// mutateCart locks the cart, rejects finalized carts, runs fn and stores the
// recomputed totals.
func (s *Store) mutateCart(ctx context.Context, clientID string, cartID string, fn func(context.Context, *sql.Tx, domain.Cart) error) (*domain.Cart, error) {
	var saved domain.Cart
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cart, err := loadCart(ctx, tx, clientID, cartID, true)
		if err != nil {
			return err
		}
		if cart.IsFinalized {
			return apperr.ErrCartFinalized
		}
		if err := fn(ctx, tx, cart); err != nil {
			return err
		}

		saved, err = loadCart(ctx, tx, clientID, cartID, false)
		if err != nil {
			return err
		}
		saved.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE carts SET total_amount = $2, item_count = $3, updated_at = $4 WHERE id = $1
		`, saved.ID, saved.TotalAmount, saved.ItemCount, saved.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}
