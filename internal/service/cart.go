package service

import (
	"context"
	"strings"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/xid"
)

func (s *Service) CreateCart(ctx context.Context) (domain.Cart, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	now := s.now()
	cart, err := s.repo.CreateCart(ctx, domain.Cart{
		ID:        xid.New("crt"),
		ClientID:  p.ClientID,
		CreatedAt: now,
		UpdatedAt: now,
		Items:     []domain.CartItem{},
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return *cart, nil
}

func (s *Service) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	cart, err := s.repo.GetCart(ctx, p.ClientID, cartID)
	if err != nil {
		return domain.Cart{}, notFound(err, "cart", cartID)
	}
	return *cart, nil
}

// AddCartItem snapshots the item's name and price into the line. Stock is not
// touched until the cart becomes an invoice.
func (s *Service) AddCartItem(ctx context.Context, cartID string, req domain.CartAddItemRequest) (domain.Cart, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	if req.Quantity < 1 {
		return domain.Cart{}, apperr.Validationf("quantity must be positive")
	}
	itemID := strings.TrimSpace(req.ItemID)
	item, err := s.repo.GetItem(ctx, p.ClientID, itemID)
	if err != nil {
		return domain.Cart{}, notFound(err, "item", itemID)
	}
	if !item.IsActive {
		return domain.Cart{}, apperr.Validationf("item %s is inactive", itemID)
	}

	cart, err := s.repo.AddCartItem(ctx, p.ClientID, cartID, domain.CartItem{
		ID:       xid.New("cln"),
		ItemID:   item.ID,
		Name:     item.Name,
		Price:    item.Price,
		Quantity: req.Quantity,
		IsActive: true,
		AddedAt:  s.now(),
	})
	if err != nil {
		return domain.Cart{}, notFound(err, "cart", cartID)
	}
	return *cart, nil
}

func (s *Service) RemoveCartItem(ctx context.Context, cartID string, lineID string) (domain.Cart, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	cart, err := s.repo.RemoveCartItem(ctx, p.ClientID, cartID, lineID)
	if err != nil {
		return domain.Cart{}, notFound(err, "cart", cartID)
	}
	return *cart, nil
}

func (s *Service) ClearCart(ctx context.Context, cartID string) (domain.Cart, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	cart, err := s.repo.ClearCart(ctx, p.ClientID, cartID)
	if err != nil {
		return domain.Cart{}, notFound(err, "cart", cartID)
	}
	return *cart, nil
}
