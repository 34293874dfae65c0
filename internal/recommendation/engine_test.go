package recommendation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopledger/backend/internal/domain"
)

func item(id string, stock, low int, dealers ...string) domain.Item {
	return domain.Item{ID: id, Name: id, Stock: stock, LowStockQuantity: low, DealerIDs: dealers, IsActive: true}
}

func TestSuggestSubtractsPendingOrders(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	items := []domain.Item{
		item("rice", 2, 10, "d1"),
		item("salt", 50, 10, "d1"),
		item("oil", 0, 5, "d2"),
	}
	orders := []domain.DealerOrder{
		{
			DealerID:  "d1",
			Status:    domain.DealerOrderPending,
			CreatedAt: now.Add(-time.Hour),
			Items:     []domain.DealerOrderItem{{ItemID: "rice", Quantity: 8, UnitCost: decimal.NewFromInt(40)}},
		},
	}

	resp := NewEngine().Suggest(items, orders, now)
	require.Len(t, resp.Suggestions, 2)

	rice := resp.Suggestions[0]
	assert.Equal(t, "rice", rice.ItemID)
	assert.Equal(t, 8, rice.OnOrder)
	assert.Equal(t, 10, rice.SuggestedQty)
	assert.True(t, decimal.NewFromInt(400).Equal(rice.EstimatedCost))

	oil := resp.Suggestions[1]
	assert.Equal(t, "d2", oil.DealerID)
	assert.Equal(t, 10, oil.SuggestedQty)
	assert.True(t, oil.EstimatedCost.IsZero())
	assert.Equal(t, now, resp.GeneratedAt)
}

func TestSuggestSkipsCoveredAndInactiveItems(t *testing.T) {
	covered := item("flour", 1, 4, "d1")
	inactive := item("sugar", 0, 4, "d1")
	inactive.IsActive = false
	orders := []domain.DealerOrder{
		{Status: domain.DealerOrderPending, Items: []domain.DealerOrderItem{{ItemID: "flour", Quantity: 7}}},
		{Status: domain.DealerOrderCancelled, Items: []domain.DealerOrderItem{{ItemID: "flour", Quantity: 100}}},
	}

	resp := NewEngine().Suggest([]domain.Item{covered, inactive}, orders, time.Now())
	assert.Empty(t, resp.Suggestions)
	assert.NotNil(t, resp.Suggestions)
}

func TestSuggestPrefersLastLinkedSupplier(t *testing.T) {
	now := time.Now()
	orders := []domain.DealerOrder{
		{DealerID: "d2", Status: domain.DealerOrderDelivered, CreatedAt: now.Add(-48 * time.Hour),
			Items: []domain.DealerOrderItem{{ItemID: "tea", Quantity: 5, UnitCost: decimal.NewFromInt(12)}}},
		{DealerID: "d3", Status: domain.DealerOrderDelivered, CreatedAt: now.Add(-24 * time.Hour),
			Items: []domain.DealerOrderItem{{ItemID: "tea", Quantity: 5, UnitCost: decimal.NewFromInt(11)}}},
	}

	resp := NewEngine().Suggest([]domain.Item{item("tea", 1, 3, "d1", "d2")}, orders, now)
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, "d1", resp.Suggestions[0].DealerID, "d3 is no longer linked to the item")
	assert.True(t, decimal.NewFromInt(11).Equal(resp.Suggestions[0].LastUnitCost))
}
