package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/xid"
)

func (s *Service) CreateDealer(ctx context.Context, req domain.DealerCreateRequest) (domain.Dealer, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.Dealer{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Dealer{}, apperr.Validationf("dealer name is required")
	}

	now := s.now()
	dealer, err := s.repo.CreateDealer(ctx, domain.Dealer{
		ID:        xid.New("dlr"),
		ClientID:  p.ClientID,
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		Address:   strings.TrimSpace(req.Address),
		GSTIN:     strings.ToUpper(strings.TrimSpace(req.GSTIN)),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Dealer{}, err
	}
	return *dealer, nil
}

func (s *Service) UpdateDealer(ctx context.Context, dealerID string, req domain.DealerUpdateRequest) (domain.Dealer, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.Dealer{}, err
	}
	existing, err := s.repo.GetDealer(ctx, p.ClientID, dealerID)
	if err != nil {
		return domain.Dealer{}, notFound(err, "dealer", dealerID)
	}

	dealer := *existing
	if name := trimPtr(req.Name); name != nil {
		if *name == "" {
			return domain.Dealer{}, apperr.Validationf("dealer name cannot be empty")
		}
		dealer.Name = *name
	}
	if v := trimPtr(req.Phone); v != nil {
		dealer.Phone = *v
	}
	if v := trimPtr(req.Email); v != nil {
		dealer.Email = *v
	}
	if v := trimPtr(req.Address); v != nil {
		dealer.Address = *v
	}
	if v := trimPtr(req.GSTIN); v != nil {
		dealer.GSTIN = strings.ToUpper(*v)
	}
	if req.IsActive != nil {
		dealer.IsActive = *req.IsActive
	}
	dealer.UpdatedAt = s.now()

	saved, err := s.repo.UpdateDealer(ctx, dealer)
	if err != nil {
		return domain.Dealer{}, err
	}
	return *saved, nil
}

func (s *Service) GetDealer(ctx context.Context, dealerID string) (domain.Dealer, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.Dealer{}, err
	}
	dealer, err := s.repo.GetDealer(ctx, p.ClientID, dealerID)
	if err != nil {
		return domain.Dealer{}, notFound(err, "dealer", dealerID)
	}
	return *dealer, nil
}

func (s *Service) ListDealers(ctx context.Context) ([]domain.Dealer, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDealers(ctx, p.ClientID, false)
}

// CreateDealerOrder accepts only items associated with the dealer.
func (s *Service) CreateDealerOrder(ctx context.Context, req domain.DealerOrderCreateRequest) (domain.DealerOrder, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.DealerOrder{}, err
	}
	dealerID := strings.TrimSpace(req.DealerID)
	dealer, err := s.repo.GetDealer(ctx, p.ClientID, dealerID)
	if err != nil {
		return domain.DealerOrder{}, notFound(err, "dealer", dealerID)
	}
	if !dealer.IsActive {
		return domain.DealerOrder{}, apperr.Validationf("dealer %s is inactive", dealerID)
	}
	if len(req.Lines) == 0 {
		return domain.DealerOrder{}, apperr.Validationf("dealer order requires at least one line")
	}

	ids := make([]string, 0, len(req.Lines))
	for _, line := range req.Lines {
		ids = append(ids, strings.TrimSpace(line.ItemID))
	}
	catalog, err := s.repo.GetItemsByIDs(ctx, p.ClientID, ids)
	if err != nil {
		return domain.DealerOrder{}, err
	}

	orderID := xid.New("dor")
	lines := make([]domain.DealerOrderItem, 0, len(req.Lines))
	for i, line := range req.Lines {
		if line.Quantity < 1 {
			return domain.DealerOrder{}, apperr.Validationf("line %d quantity must be positive", i)
		}
		item, ok := catalog[ids[i]]
		if !ok {
			return domain.DealerOrder{}, apperr.NotFoundf("item %s not found", ids[i])
		}
		if !item.HasDealer(dealerID) {
			return domain.DealerOrder{}, apperr.Validationf("item %s is not supplied by dealer %s", item.ID, dealerID)
		}
		cost := decimal.Zero
		if line.UnitCost != nil {
			if line.UnitCost.IsNegative() {
				return domain.DealerOrder{}, apperr.Validationf("line %d unit cost cannot be negative", i)
			}
			cost = *line.UnitCost
		}
		lines = append(lines, domain.DealerOrderItem{
			ID:       xid.New("doi"),
			OrderID:  orderID,
			ItemID:   item.ID,
			ItemName: item.Name,
			Quantity: line.Quantity,
			UnitCost: cost,
		})
	}

	order, err := s.repo.CreateDealerOrder(ctx, domain.DealerOrder{
		ID:        orderID,
		ClientID:  p.ClientID,
		DealerID:  dealerID,
		Status:    domain.DealerOrderPending,
		Note:      strings.TrimSpace(req.Note),
		CreatedAt: s.now(),
		Items:     lines,
	})
	if err != nil {
		return domain.DealerOrder{}, err
	}
	s.logAudit(ctx, p.ClientID, "dealer_order_create", "dealer_order", order.ID,
		fmt.Sprintf("dealer=%s,lines=%d", dealerID, len(lines)))
	return *order, nil
}

func (s *Service) GetDealerOrder(ctx context.Context, orderID string) (domain.DealerOrder, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.DealerOrder{}, err
	}
	order, err := s.repo.GetDealerOrder(ctx, p.ClientID, orderID)
	if err != nil {
		return domain.DealerOrder{}, notFound(err, "dealer order", orderID)
	}
	return *order, nil
}

func (s *Service) ListDealerOrders(ctx context.Context, filter domain.DealerOrderFilter) ([]domain.DealerOrder, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	switch filter.Status {
	case "", domain.DealerOrderPending, domain.DealerOrderDelivered, domain.DealerOrderCancelled:
	default:
		return nil, apperr.Validationf("unknown order status %s", filter.Status)
	}
	return s.repo.ListDealerOrders(ctx, p.ClientID, filter)
}

// MarkDelivered moves a pending order to delivered. The store applies every
// line's stock increment in the same guarded write, so a second call fails.
func (s *Service) MarkDelivered(ctx context.Context, orderID string, req domain.DeliverOrderRequest) (domain.DealerOrder, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.DealerOrder{}, err
	}
	if req.TotalAmount != nil && req.TotalAmount.IsNegative() {
		return domain.DealerOrder{}, apperr.Validationf("total_amount cannot be negative")
	}

	order, err := s.repo.DeliverDealerOrder(ctx, p.ClientID, orderID, domain.OrderDelivery{
		DeliveredBy: defaultString(p.PhoneNumber, "system"),
		DeliveredAt: s.now(),
		Note:        strings.TrimSpace(req.Note),
		TotalAmount: req.TotalAmount,
		DueDate:     req.DueDate,
	})
	if err != nil {
		return domain.DealerOrder{}, notFound(err, "dealer order", orderID)
	}
	s.logAudit(ctx, p.ClientID, "dealer_order_deliver", "dealer_order", order.ID,
		fmt.Sprintf("dealer=%s,lines=%d", order.DealerID, len(order.Items)))
	return *order, nil
}

func (s *Service) CancelOrder(ctx context.Context, orderID string, req domain.CancelOrderRequest) (domain.DealerOrder, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.DealerOrder{}, err
	}
	order, err := s.repo.CancelDealerOrder(ctx, p.ClientID, orderID, strings.TrimSpace(req.Reason), s.now())
	if err != nil {
		return domain.DealerOrder{}, notFound(err, "dealer order", orderID)
	}
	s.logAudit(ctx, p.ClientID, "dealer_order_cancel", "dealer_order", order.ID, "reason="+order.CancelReason)
	return *order, nil
}

func (s *Service) RecordDealerPayment(ctx context.Context, dealerID string, req domain.DealerPaymentRequest) (domain.DealerPayment, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.DealerPayment{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.DealerPayment{}, apperr.Validationf("payment amount must be positive")
	}

	payment, err := s.repo.CreateDealerPayment(ctx, domain.DealerPayment{
		ID:       xid.New("dpy"),
		ClientID: p.ClientID,
		DealerID: strings.TrimSpace(dealerID),
		OrderID:  strings.TrimSpace(req.OrderID),
		Amount:   req.Amount,
		Method:   normalizeMethod(req.Method),
		Note:     strings.TrimSpace(req.Note),
		PaidAt:   s.now(),
	})
	if err != nil {
		return domain.DealerPayment{}, err
	}
	s.logAudit(ctx, p.ClientID, "dealer_payment_record", "dealer", payment.DealerID,
		fmt.Sprintf("payment=%s,order=%s,amount=%s", payment.ID, payment.OrderID, payment.Amount))
	return *payment, nil
}

func (s *Service) ListDealerPayments(ctx context.Context, dealerID string, orderID string) ([]domain.DealerPayment, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDealerPayments(ctx, p.ClientID, dealerID, orderID)
}

// DealerSummary reports order counts and the payable balance, floored at zero.
func (s *Service) DealerSummary(ctx context.Context, dealerID string) (domain.DealerSummary, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.DealerSummary{}, err
	}
	dealer, err := s.repo.GetDealer(ctx, p.ClientID, dealerID)
	if err != nil {
		return domain.DealerSummary{}, notFound(err, "dealer", dealerID)
	}
	orders, err := s.repo.ListDealerOrders(ctx, p.ClientID, domain.DealerOrderFilter{DealerID: dealerID})
	if err != nil {
		return domain.DealerSummary{}, err
	}
	payments, err := s.repo.ListDealerPayments(ctx, p.ClientID, dealerID, "")
	if err != nil {
		return domain.DealerSummary{}, err
	}

	summary := summarizeDealer(orders, payments)
	summary.Dealer = *dealer
	return summary, nil
}

func summarizeDealer(orders []domain.DealerOrder, payments []domain.DealerPayment) domain.DealerSummary {
	summary := domain.DealerSummary{OrderCount: len(orders), TotalOrdered: decimal.Zero, TotalPaid: decimal.Zero}
	for _, order := range orders {
		switch order.Status {
		case domain.DealerOrderPending:
			summary.PendingOrders++
		case domain.DealerOrderDelivered:
			summary.DeliveredOrders++
		case domain.DealerOrderCancelled:
			summary.CancelledOrders++
			continue
		}
		if order.TotalAmount != nil {
			summary.TotalOrdered = summary.TotalOrdered.Add(*order.TotalAmount)
		}
	}
	for _, payment := range payments {
		summary.TotalPaid = summary.TotalPaid.Add(payment.Amount)
	}
	summary.Payable = floorZero(summary.TotalOrdered.Sub(summary.TotalPaid))
	return summary
}

func (s *Service) OrderPaymentStatus(ctx context.Context, orderID string) (domain.OrderPaymentSummary, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.OrderPaymentSummary{}, err
	}
	order, err := s.repo.GetDealerOrder(ctx, p.ClientID, orderID)
	if err != nil {
		return domain.OrderPaymentSummary{}, notFound(err, "dealer order", orderID)
	}
	payments, err := s.repo.ListDealerPayments(ctx, p.ClientID, order.DealerID, order.ID)
	if err != nil {
		return domain.OrderPaymentSummary{}, err
	}

	paid := decimal.Zero
	for _, payment := range payments {
		paid = paid.Add(payment.Amount)
	}
	return domain.OrderPaymentSummary{
		OrderID:     order.ID,
		DealerID:    order.DealerID,
		Status:      orderPaymentStatus(order.TotalAmount, paid),
		TotalAmount: order.TotalAmount,
		TotalPaid:   paid,
		Remaining:   orderRemaining(order.TotalAmount, paid),
	}, nil
}

func orderPaymentStatus(total *decimal.Decimal, paid decimal.Decimal) domain.OrderPaymentStatus {
	switch {
	case total == nil:
		return domain.OrderPaymentNoBill
	case paid.IsZero():
		return domain.OrderPaymentPending
	case paid.LessThan(*total):
		return domain.OrderPaymentPartial
	default:
		return domain.OrderPaymentPaid
	}
}

func orderRemaining(total *decimal.Decimal, paid decimal.Decimal) decimal.Decimal {
	if total == nil {
		return decimal.Zero
	}
	return floorZero(total.Sub(paid))
}

func floorZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
