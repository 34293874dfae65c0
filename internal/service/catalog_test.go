package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/cache"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/recommendation"
	"shopledger/backend/internal/store/memory"
	"shopledger/backend/internal/token"
)

func TestCreateItemValidatesReferences(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, _ := signUp(t, svc, sender, "9991000001")

	group, err := svc.CreateItemGroup(ctx, domain.ItemGroupCreateRequest{Name: "Grains"})
	require.NoError(t, err)
	dealer, err := svc.CreateDealer(ctx, domain.DealerCreateRequest{Name: "Wholesale Co"})
	require.NoError(t, err)

	item, err := svc.CreateItem(ctx, domain.ItemCreateRequest{
		Name:      " Basmati ",
		Price:     decimal.RequireFromString("82.50"),
		Stock:     12,
		GroupID:   group.ID,
		DealerIDs: []string{dealer.ID, dealer.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "Basmati", item.Name)
	assert.Equal(t, []string{dealer.ID}, item.DealerIDs)
	assert.True(t, item.IsActive)

	_, err = svc.CreateItem(ctx, domain.ItemCreateRequest{Name: "Ghost", DealerIDs: []string{"dlr_missing"}})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	require.NoError(t, svc.DeleteItemGroup(ctx, group.ID))
	_, err = svc.CreateItem(ctx, domain.ItemCreateRequest{Name: "Jasmine", GroupID: group.ID})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	groups, err := svc.ListItemGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestCreateItemRejectsNegativeValues(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, _ := signUp(t, svc, sender, "9991000002")

	cases := []domain.ItemCreateRequest{
		{Name: ""},
		{Name: "Neg price", Price: decimal.NewFromInt(-1)},
		{Name: "Neg stock", Stock: -1},
		{Name: "Neg low", LowStockQuantity: -3},
	}
	for _, req := range cases {
		_, err := svc.CreateItem(ctx, req)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), req.Name)
	}
}

func TestUpdateItemAppliesOnlySuppliedFields(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, _ := signUp(t, svc, sender, "9991000003")
	item := mustItem(t, svc, ctx, "Tea", 120, 30)

	price := decimal.NewFromInt(135)
	updated, err := svc.UpdateItem(ctx, item.ID, domain.ItemUpdateRequest{Price: &price})
	require.NoError(t, err)
	assertAmount(t, 135, updated.Price)
	assert.Equal(t, "Tea", updated.Name)
	assert.Equal(t, 30, updated.Stock)
	assert.Equal(t, 2, updated.LowStockQuantity)

	negative := -4
	_, err = svc.UpdateItem(ctx, item.ID, domain.ItemUpdateRequest{Stock: &negative})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	got, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, got.Stock)
}

func TestDeleteItemIsSoft(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, _ := signUp(t, svc, sender, "9991000004")
	keep := mustItem(t, svc, ctx, "Keep", 10, 5)
	drop := mustItem(t, svc, ctx, "Drop", 10, 5)

	require.NoError(t, svc.DeleteItem(ctx, drop.ID))

	items, err := svc.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, keep.ID, items[0].ID)

	got, err := svc.GetItem(ctx, drop.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestCatalogIsTenantScoped(t *testing.T) {
	svc, _, sender := newTestService(t)
	owner, _ := signUp(t, svc, sender, "9991000005")
	other, _ := signUp(t, svc, sender, "9991000006")
	item := mustItem(t, svc, owner, "Private", 10, 5)

	_, err := svc.GetItem(other, item.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	price := decimal.NewFromInt(1)
	_, err = svc.UpdateItem(other, item.ID, domain.ItemUpdateRequest{Price: &price})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	items, err := svc.ListItems(other)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestLowStockAndReorderSuggestions(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, _ := signUp(t, svc, sender, "9991000007")
	dealer, err := svc.CreateDealer(ctx, domain.DealerCreateRequest{Name: "Supplier"})
	require.NoError(t, err)

	low := mustItem(t, svc, ctx, "Low", 10, 1, dealer.ID)
	mustItem(t, svc, ctx, "Plenty", 10, 50, dealer.ID)

	items, err := svc.LowStockItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, low.ID, items[0].ID)

	resp, err := svc.ReorderSuggestions(ctx)
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, low.ID, resp.Suggestions[0].ItemID)
	assert.Equal(t, dealer.ID, resp.Suggestions[0].DealerID)
	assert.Equal(t, 3, resp.Suggestions[0].SuggestedQty)
}

// interleavingRepo runs afterGetItem once, after the first GetItem returns.
type interleavingRepo struct {
	*memory.Store
	afterGetItem func()
}

func (r *interleavingRepo) GetItem(ctx context.Context, clientID string, itemID string) (*domain.Item, error) {
	item, err := r.Store.GetItem(ctx, clientID, itemID)
	if hook := r.afterGetItem; hook != nil {
		r.afterGetItem = nil
		hook()
	}
	return item, err
}

func TestUpdateItemKeepsConcurrentStockChanges(t *testing.T) {
	repo := &interleavingRepo{Store: memory.New()}
	sender := &captureSender{codes: make(map[string]string)}
	svc := New(repo, cache.NewMemoryOtpStore(), sender, token.NewManager(testSecret, 24*time.Hour),
		recommendation.NewEngine(), Settings{OtpTTL: 10 * time.Minute, OtpMaxAttempts: 5, OtpLength: 4},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, _ := signUp(t, svc, sender, "9991000009")
	item := mustItem(t, svc, ctx, "Rice", 50, 5)
	dealer, err := svc.CreateDealer(ctx, domain.DealerCreateRequest{Name: "Mill"})
	require.NoError(t, err)
	order, err := svc.CreateDealerOrder(ctx, domain.DealerOrderCreateRequest{
		DealerID: dealer.ID,
		Lines:    []domain.DealerOrderLineInput{{ItemID: item.ID, Quantity: 10}},
	})
	require.NoError(t, err)

	repo.afterGetItem = func() {
		_, err := svc.MarkDelivered(ctx, order.ID, domain.DeliverOrderRequest{})
		require.NoError(t, err)
	}
	price := decimal.NewFromInt(55)
	updated, err := svc.UpdateItem(ctx, item.ID, domain.ItemUpdateRequest{Price: &price})
	require.NoError(t, err)
	assertAmount(t, 55, updated.Price)
	assert.Equal(t, 15, updated.Stock)

	repo.afterGetItem = func() {
		_, err := svc.GenerateInvoice(ctx, domain.InvoiceCreateRequest{
			Products: []domain.InvoiceProductInput{{ItemID: item.ID, Quantity: 4}},
			Customer: domain.CustomerRef{Name: "Walk-in"},
		})
		require.NoError(t, err)
	}
	require.NoError(t, svc.DeleteItem(ctx, item.ID))

	got, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, 11, got.Stock)
}
