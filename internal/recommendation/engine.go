// Package recommendation turns low-stock items and dealer order history into
// reorder suggestions.
package recommendation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"shopledger/backend/internal/domain"
)

type Engine struct {
	// Multiplier scales the low-stock level into the target stock; default 2.
	Multiplier int
}

func NewEngine() *Engine {
	return &Engine{Multiplier: 2}
}

// Suggest proposes a quantity per low-stock active item. Quantities already on
// pending orders count toward the target, and items covered by them are skipped.
func (e *Engine) Suggest(items []domain.Item, orders []domain.DealerOrder, now time.Time) domain.ReorderSuggestionResponse {
	multiplier := e.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}

	onOrder := make(map[string]int)
	lastCost := make(map[string]costMark)
	for _, order := range orders {
		for _, line := range order.Items {
			if order.Status == domain.DealerOrderPending {
				onOrder[line.ItemID] += line.Quantity
			}
			if order.Status == domain.DealerOrderCancelled || line.UnitCost.IsZero() {
				continue
			}
			if mark, ok := lastCost[line.ItemID]; !ok || order.CreatedAt.After(mark.at) {
				lastCost[line.ItemID] = costMark{cost: line.UnitCost, dealerID: order.DealerID, at: order.CreatedAt}
			}
		}
	}

	suggestions := make([]domain.ReorderSuggestion, 0)
	for _, item := range items {
		if !item.IsActive || !item.IsLowStock() {
			continue
		}
		target := multiplier * max(item.LowStockQuantity, 1)
		qty := target - item.Stock - onOrder[item.ID]
		if qty <= 0 {
			continue
		}
		mark := lastCost[item.ID]
		suggestion := domain.ReorderSuggestion{
			ItemID:        item.ID,
			Name:          item.Name,
			DealerID:      preferredDealer(item, mark.dealerID),
			Stock:         item.Stock,
			LowStockLevel: item.LowStockQuantity,
			OnOrder:       onOrder[item.ID],
			SuggestedQty:  qty,
			LastUnitCost:  mark.cost,
			EstimatedCost: mark.cost.Mul(decimal.NewFromInt(int64(qty))),
		}
		suggestions = append(suggestions, suggestion)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].DealerID != suggestions[j].DealerID {
			return suggestions[i].DealerID < suggestions[j].DealerID
		}
		return shortfall(suggestions[i]) > shortfall(suggestions[j])
	})
	return domain.ReorderSuggestionResponse{GeneratedAt: now.UTC(), Suggestions: suggestions}
}

type costMark struct {
	cost     decimal.Decimal
	dealerID string
	at       time.Time
}

// preferredDealer keeps the last supplier if it is still linked to the item,
// otherwise the first linked dealer.
func preferredDealer(item domain.Item, lastDealer string) string {
	if lastDealer != "" && item.HasDealer(lastDealer) {
		return lastDealer
	}
	if len(item.DealerIDs) > 0 {
		return item.DealerIDs[0]
	}
	return ""
}

func shortfall(s domain.ReorderSuggestion) float64 {
	if s.LowStockLevel <= 0 {
		return 1
	}
	return clamp(1-float64(s.Stock)/float64(s.LowStockLevel), 0, 1)
}

func clamp(val float64, minVal float64, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
