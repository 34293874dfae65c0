package service

import (
	"context"
	"strings"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/xid"
)

func (s *Service) CreateItemGroup(ctx context.Context, req domain.ItemGroupCreateRequest) (domain.ItemGroup, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.ItemGroup{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.ItemGroup{}, apperr.Validationf("group name is required")
	}

	now := s.now()
	created, err := s.repo.CreateItemGroup(ctx, domain.ItemGroup{
		ID:          xid.New("grp"),
		ClientID:    p.ClientID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.ItemGroup{}, err
	}
	return *created, nil
}

func (s *Service) UpdateItemGroup(ctx context.Context, groupID string, req domain.ItemGroupUpdateRequest) (domain.ItemGroup, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.ItemGroup{}, err
	}
	group, err := s.repo.GetItemGroup(ctx, p.ClientID, groupID)
	if err != nil {
		return domain.ItemGroup{}, notFound(err, "item group", groupID)
	}

	updated := *group
	if name := trimPtr(req.Name); name != nil {
		if *name == "" {
			return domain.ItemGroup{}, apperr.Validationf("group name cannot be empty")
		}
		updated.Name = *name
	}
	if desc := trimPtr(req.Description); desc != nil {
		updated.Description = *desc
	}
	if req.IsActive != nil {
		updated.IsActive = *req.IsActive
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdateItemGroup(ctx, updated)
	if err != nil {
		return domain.ItemGroup{}, err
	}
	return *saved, nil
}

// DeleteItemGroup deactivates the group. Items keep their groupId.
func (s *Service) DeleteItemGroup(ctx context.Context, groupID string) error {
	inactive := false
	_, err := s.UpdateItemGroup(ctx, groupID, domain.ItemGroupUpdateRequest{IsActive: &inactive})
	return err
}

func (s *Service) ListItemGroups(ctx context.Context) ([]domain.ItemGroup, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListItemGroups(ctx, p.ClientID, false)
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.Item, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.Item{}, err
	}
	item, err := s.createItem(ctx, p.ClientID, req)
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

func (s *Service) createItem(ctx context.Context, clientID string, req domain.ItemCreateRequest) (*domain.Item, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validationf("item name is required")
	}
	if req.Price.IsNegative() {
		return nil, apperr.Validationf("price cannot be negative")
	}
	if req.Stock < 0 || req.LowStockQuantity < 0 {
		return nil, apperr.Validationf("stock and low_stock_quantity cannot be negative")
	}

	groupID := strings.TrimSpace(req.GroupID)
	dealerIDs := dedupe(req.DealerIDs)
	if err := s.checkItemRefs(ctx, clientID, groupID, dealerIDs); err != nil {
		return nil, err
	}

	now := s.now()
	return s.repo.CreateItem(ctx, domain.Item{
		ID:               xid.New("itm"),
		ClientID:         clientID,
		Name:             name,
		SKU:              strings.TrimSpace(req.SKU),
		Unit:             strings.TrimSpace(req.Unit),
		Price:            req.Price,
		Stock:            req.Stock,
		LowStockQuantity: req.LowStockQuantity,
		GroupID:          groupID,
		DealerIDs:        dealerIDs,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

func (s *Service) GetItem(ctx context.Context, itemID string) (domain.Item, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.Item{}, err
	}
	item, err := s.repo.GetItem(ctx, p.ClientID, itemID)
	if err != nil {
		return domain.Item{}, notFound(err, "item", itemID)
	}
	return *item, nil
}

func (s *Service) UpdateItem(ctx context.Context, itemID string, req domain.ItemUpdateRequest) (domain.Item, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.Item{}, err
	}
	item, err := s.updateItem(ctx, p.ClientID, itemID, req)
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

// updateItem applies only the supplied fields.
func (s *Service) updateItem(ctx context.Context, clientID string, itemID string, req domain.ItemUpdateRequest) (*domain.Item, error) {
	existing, err := s.repo.GetItem(ctx, clientID, itemID)
	if err != nil {
		return nil, notFound(err, "item", itemID)
	}

	item := *existing
	if name := trimPtr(req.Name); name != nil {
		if *name == "" {
			return nil, apperr.Validationf("item name cannot be empty")
		}
		item.Name = *name
	}
	if sku := trimPtr(req.SKU); sku != nil {
		item.SKU = *sku
	}
	if unit := trimPtr(req.Unit); unit != nil {
		item.Unit = *unit
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, apperr.Validationf("price cannot be negative")
		}
		item.Price = *req.Price
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, apperr.Validationf("stock cannot be negative")
		}
	}
	if req.LowStockQuantity != nil {
		if *req.LowStockQuantity < 0 {
			return nil, apperr.Validationf("low_stock_quantity cannot be negative")
		}
		item.LowStockQuantity = *req.LowStockQuantity
	}

	groupID, dealerIDs := "", []string(nil)
	if req.GroupID != nil {
		item.GroupID = strings.TrimSpace(*req.GroupID)
		groupID = item.GroupID
	}
	if req.DealerIDs != nil {
		item.DealerIDs = dedupe(*req.DealerIDs)
		dealerIDs = item.DealerIDs
	}
	if err := s.checkItemRefs(ctx, clientID, groupID, dealerIDs); err != nil {
		return nil, err
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}
	item.UpdatedAt = s.now()

	return s.repo.UpdateItem(ctx, item, req.Stock)
}

func (s *Service) DeleteItem(ctx context.Context, itemID string) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	_, err = s.deleteItem(ctx, p.ClientID, itemID)
	return err
}

// deleteItem is a soft delete; invoices and orders keep resolving the row.
func (s *Service) deleteItem(ctx context.Context, clientID string, itemID string) (*domain.Item, error) {
	inactive := false
	return s.updateItem(ctx, clientID, itemID, domain.ItemUpdateRequest{IsActive: &inactive})
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListItems(ctx, p.ClientID, false)
}

func (s *Service) LowStockItems(ctx context.Context) ([]domain.Item, error) {
	items, err := s.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]domain.Item, 0)
	for _, item := range items {
		if item.IsLowStock() {
			low = append(low, item)
		}
	}
	return low, nil
}

func (s *Service) ReorderSuggestions(ctx context.Context) (domain.ReorderSuggestionResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}
	items, err := s.repo.ListItems(ctx, p.ClientID, false)
	if err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}
	orders, err := s.repo.ListDealerOrders(ctx, p.ClientID, domain.DealerOrderFilter{})
	if err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}
	return s.recommender.Suggest(items, orders, s.now()), nil
}

// checkItemRefs requires the group and every dealer to be active rows of the client.
func (s *Service) checkItemRefs(ctx context.Context, clientID string, groupID string, dealerIDs []string) error {
	if groupID != "" {
		group, err := s.repo.GetItemGroup(ctx, clientID, groupID)
		if err != nil {
			return notFound(err, "item group", groupID)
		}
		if !group.IsActive {
			return apperr.Validationf("item group %s is inactive", groupID)
		}
	}
	for _, dealerID := range dealerIDs {
		dealer, err := s.repo.GetDealer(ctx, clientID, dealerID)
		if err != nil {
			return notFound(err, "dealer", dealerID)
		}
		if !dealer.IsActive {
			return apperr.Validationf("dealer %s is inactive", dealerID)
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
