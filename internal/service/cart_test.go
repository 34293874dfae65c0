package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
)

func TestCartLinesKeepPriceSnapshot(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, _ := signUp(t, svc, sender, "9992000001")
	item := mustItem(t, svc, ctx, "Milk", 30, 40)

	cart, err := svc.CreateCart(ctx)
	require.NoError(t, err)
	cart, err = svc.AddCartItem(ctx, cart.ID, domain.CartAddItemRequest{ItemID: item.ID, Quantity: 2})
	require.NoError(t, err)
	assertAmount(t, 60, cart.TotalAmount)

	price := decimal.NewFromInt(45)
	_, err = svc.UpdateItem(ctx, item.ID, domain.ItemUpdateRequest{Price: &price})
	require.NoError(t, err)

	cart, err = svc.AddCartItem(ctx, cart.ID, domain.CartAddItemRequest{ItemID: item.ID, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, cart.ActiveItems(), 1)
	assertAmount(t, 30, cart.Items[0].Price, "line keeps the price from when it was added")
	assertAmount(t, 90, cart.TotalAmount)
	assert.Equal(t, 3, cart.ItemCount)

	got, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Stock, "carts reserve no stock")
}

func TestRemoveAndClearRecomputeTotals(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, _ := signUp(t, svc, sender, "9992000002")
	bread := mustItem(t, svc, ctx, "Bread", 25, 10)
	eggs := mustItem(t, svc, ctx, "Eggs", 6, 100)

	cart, err := svc.CreateCart(ctx)
	require.NoError(t, err)
	cart, err = svc.AddCartItem(ctx, cart.ID, domain.CartAddItemRequest{ItemID: bread.ID, Quantity: 2})
	require.NoError(t, err)
	cart, err = svc.AddCartItem(ctx, cart.ID, domain.CartAddItemRequest{ItemID: eggs.ID, Quantity: 12})
	require.NoError(t, err)
	assertAmount(t, 122, cart.TotalAmount)

	cart, err = svc.RemoveCartItem(ctx, cart.ID, cart.Items[0].ID)
	require.NoError(t, err)
	assertAmount(t, 72, cart.TotalAmount)
	assert.Equal(t, 12, cart.ItemCount)

	_, err = svc.RemoveCartItem(ctx, cart.ID, cart.Items[0].ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	cart, err = svc.ClearCart(ctx, cart.ID)
	require.NoError(t, err)
	assert.True(t, cart.TotalAmount.IsZero())
	assert.Zero(t, cart.ItemCount)
}

func TestAddCartItemRejectsInactiveItemsAndBadQuantity(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, _ := signUp(t, svc, sender, "9992000003")
	item := mustItem(t, svc, ctx, "Old", 10, 10)
	require.NoError(t, svc.DeleteItem(ctx, item.ID))

	cart, err := svc.CreateCart(ctx)
	require.NoError(t, err)

	_, err = svc.AddCartItem(ctx, cart.ID, domain.CartAddItemRequest{ItemID: item.ID, Quantity: 1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.AddCartItem(ctx, cart.ID, domain.CartAddItemRequest{ItemID: item.ID, Quantity: 0})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.AddCartItem(ctx, "crt_missing", domain.CartAddItemRequest{ItemID: "itm_missing", Quantity: 1})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestInvoicedCartIsTerminal(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, _ := signUp(t, svc, sender, "9992000004")
	item := mustItem(t, svc, ctx, "Pen", 10, 10)

	cart, err := svc.CreateCart(ctx)
	require.NoError(t, err)
	cart, err = svc.AddCartItem(ctx, cart.ID, domain.CartAddItemRequest{ItemID: item.ID, Quantity: 1})
	require.NoError(t, err)

	inv, err := svc.GenerateInvoice(ctx, domain.InvoiceCreateRequest{CartID: cart.ID, Customer: domain.CustomerRef{Name: "Walk-in"}})
	require.NoError(t, err)

	cart, err = svc.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	assert.True(t, cart.IsFinalized)
	assert.Equal(t, inv.ID, cart.InvoiceID)

	_, err = svc.AddCartItem(ctx, cart.ID, domain.CartAddItemRequest{ItemID: item.ID, Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrCartFinalized)
	_, err = svc.ClearCart(ctx, cart.ID)
	assert.ErrorIs(t, err, apperr.ErrCartFinalized)
	_, err = svc.GenerateInvoice(ctx, domain.InvoiceCreateRequest{CartID: cart.ID, Customer: domain.CustomerRef{Name: "Walk-in"}})
	assert.ErrorIs(t, err, apperr.ErrCartFinalized)
}
