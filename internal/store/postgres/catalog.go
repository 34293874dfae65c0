package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
)

const groupColumns = `id, client_id, name, description, is_active, created_at, updated_at`

func scanGroup(row scanner) (domain.ItemGroup, error) {
	var g domain.ItemGroup
	err := row.Scan(&g.ID, &g.ClientID, &g.Name, &g.Description, &g.IsActive, &g.CreatedAt, &g.UpdatedAt)
	g.CreatedAt = g.CreatedAt.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return g, err
}

func (s *Store) CreateItemGroup(ctx context.Context, group domain.ItemGroup) (*domain.ItemGroup, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	saved, err := scanGroup(s.db.QueryRowContext(ctx, `
		INSERT INTO item_groups (`+groupColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING `+groupColumns,
		group.ID, group.ClientID, group.Name, group.Description, group.IsActive,
		utcNow(group.CreatedAt), utcNow(group.UpdatedAt)))
	if err != nil {
		return nil, classify(err)
	}
	return &saved, nil
}

func (s *Store) GetItemGroup(ctx context.Context, clientID string, groupID string) (*domain.ItemGroup, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	group, err := scanGroup(s.db.QueryRowContext(ctx, `
		SELECT `+groupColumns+` FROM item_groups WHERE client_id = $1 AND id = $2
	`, clientID, groupID))
	if err != nil {
		return nil, classify(err)
	}
	return &group, nil
}

func (s *Store) UpdateItemGroup(ctx context.Context, group domain.ItemGroup) (*domain.ItemGroup, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	saved, err := scanGroup(s.db.QueryRowContext(ctx, `
		UPDATE item_groups
		SET name = $3, description = $4, is_active = $5, updated_at = $6
		WHERE client_id = $1 AND id = $2
		RETURNING `+groupColumns,
		group.ClientID, group.ID, group.Name, group.Description, group.IsActive, utcNow(group.UpdatedAt)))
	if err != nil {
		return nil, classify(err)
	}
	return &saved, nil
}

func (s *Store) ListItemGroups(ctx context.Context, clientID string, includeInactive bool) ([]domain.ItemGroup, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+groupColumns+` FROM item_groups
		WHERE client_id = $1 AND (is_active OR $2)
		ORDER BY created_at, id
	`, clientID, includeInactive)
	if err != nil {
		return nil, classify(err)
	}
	groups, err := collect(rows, scanGroup)
	return groups, classify(err)
}

const itemColumns = `id, client_id, name, sku, unit, price, stock, low_stock_quantity, group_id, dealer_ids,
	is_active, created_at, updated_at`

func scanItem(row scanner) (domain.Item, error) {
	var (
		item    domain.Item
		dealers []byte
	)
	if err := row.Scan(&item.ID, &item.ClientID, &item.Name, &item.SKU, &item.Unit, &item.Price, &item.Stock,
		&item.LowStockQuantity, &item.GroupID, &dealers, &item.IsActive, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return domain.Item{}, err
	}
	item.DealerIDs = []string{}
	if len(dealers) > 0 {
		if err := json.Unmarshal(dealers, &item.DealerIDs); err != nil {
			return domain.Item{}, err
		}
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.Stock < 0 {
		return nil, apperr.Validationf("stock cannot be negative")
	}
	dealers, err := jsonValue(nonNil(item.DealerIDs))
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	saved, err := scanItem(s.db.QueryRowContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING `+itemColumns,
		item.ID, item.ClientID, item.Name, item.SKU, item.Unit, item.Price, item.Stock, item.LowStockQuantity,
		item.GroupID, dealers, item.IsActive, utcNow(item.CreatedAt), utcNow(item.UpdatedAt)))
	if err != nil {
		return nil, classify(err)
	}
	return &saved, nil
}

func (s *Store) GetItem(ctx context.Context, clientID string, itemID string) (*domain.Item, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	item, err := scanItem(s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM items WHERE client_id = $1 AND id = $2
	`, clientID, itemID))
	if err != nil {
		return nil, classify(err)
	}
	return &item, nil
}

func (s *Store) GetItemsByIDs(ctx context.Context, clientID string, itemIDs []string) (map[string]domain.Item, error) {
	result := make(map[string]domain.Item, len(itemIDs))
	if len(itemIDs) == 0 {
		return result, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM items WHERE client_id = $1 AND id = ANY($2)
	`, clientID, itemIDs)
	if err != nil {
		return nil, classify(err)
	}
	items, err := collect(rows, scanItem)
	if err != nil {
		return nil, classify(err)
	}
	for _, item := range items {
		result[item.ID] = item
	}
	return result, nil
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item, stock *int) (*domain.Item, error) {
	var newStock sql.NullInt64
	if stock != nil {
		if *stock < 0 {
			return nil, apperr.Validationf("stock cannot be negative")
		}
		newStock = sql.NullInt64{Int64: int64(*stock), Valid: true}
	}
	dealers, err := jsonValue(nonNil(item.DealerIDs))
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	saved, err := scanItem(s.db.QueryRowContext(ctx, `
		UPDATE items
		SET name = $3, sku = $4, unit = $5, price = $6, stock = COALESCE($7, stock), low_stock_quantity = $8,
			group_id = $9, dealer_ids = $10, is_active = $11, updated_at = $12
		WHERE client_id = $1 AND id = $2
		RETURNING `+itemColumns,
		item.ClientID, item.ID, item.Name, item.SKU, item.Unit, item.Price, newStock, item.LowStockQuantity,
		item.GroupID, dealers, item.IsActive, utcNow(item.UpdatedAt)))
	if err != nil {
		return nil, classify(err)
	}
	return &saved, nil
}

func (s *Store) ListItems(ctx context.Context, clientID string, includeInactive bool) ([]domain.Item, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE client_id = $1 AND (is_active OR $2)
		ORDER BY created_at, id
	`, clientID, includeInactive)
	if err != nil {
		return nil, classify(err)
	}
	items, err := collect(rows, scanItem)
	return items, classify(err)
}

// applyStock folds the deltas per item and applies them in one statement,
// flooring at zero. A missing item fails the whole batch.
func applyStock(ctx context.Context, tx *sql.Tx, clientID string, adjustments []domain.StockAdjustment, at time.Time) error {
	ids, deltas := foldAdjustments(adjustments)
	if len(ids) == 0 {
		return nil
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE items AS i
		SET stock = GREATEST(i.stock + d.delta, 0), updated_at = $4
		FROM unnest($2::text[], $3::bigint[]) AS d(item_id, delta)
		WHERE i.client_id = $1 AND i.id = d.item_id
	`, clientID, ids, deltas, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(affected) != len(ids) {
		return apperr.NotFoundf("stock adjustment references an unknown item")
	}
	return nil
}

func foldAdjustments(adjustments []domain.StockAdjustment) ([]string, []int64) {
	index := make(map[string]int, len(adjustments))
	ids := make([]string, 0, len(adjustments))
	deltas := make([]int64, 0, len(adjustments))
	for _, adj := range adjustments {
		if i, ok := index[adj.ItemID]; ok {
			deltas[i] += int64(adj.Delta)
			continue
		}
		index[adj.ItemID] = len(ids)
		ids = append(ids, adj.ItemID)
		deltas = append(deltas, int64(adj.Delta))
	}
	return ids, deltas
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

var _ store.CatalogStore = (*Store)(nil)
