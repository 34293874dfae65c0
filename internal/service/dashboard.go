package service

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"shopledger/backend/internal/domain"
)

// Dashboard aggregates the ledger for the caller. It reads only.
func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.Dashboard{}, err
	}

	var (
		invoices  []domain.Invoice
		items     []domain.Item
		customers []domain.ClientCustomer
		orders    []domain.DealerOrder
		payments  []domain.DealerPayment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		invoices, err = s.repo.ListInvoices(gctx, p.ClientID, domain.InvoiceFilter{})
		return err
	})
	g.Go(func() (err error) {
		items, err = s.repo.ListItems(gctx, p.ClientID, false)
		return err
	})
	g.Go(func() (err error) {
		customers, err = s.repo.ListCustomers(gctx, p.ClientID)
		return err
	})
	g.Go(func() (err error) {
		orders, err = s.repo.ListDealerOrders(gctx, p.ClientID, domain.DealerOrderFilter{})
		return err
	})
	g.Go(func() (err error) {
		payments, err = s.repo.ListDealerPayments(gctx, p.ClientID, "", "")
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Dashboard{}, err
	}

	dash := domain.Dashboard{
		InvoiceCount:  len(invoices),
		TotalSales:    decimal.Zero,
		TotalReceived: decimal.Zero,
		Receivable:    decimal.Zero,
		DealerPayable: decimal.Zero,
		CustomerCount: len(customers),
	}
	for _, inv := range invoices {
		dash.TotalSales = dash.TotalSales.Add(inv.TotalAmount)
		dash.TotalReceived = dash.TotalReceived.Add(inv.PaidAmount)
		dash.Receivable = dash.Receivable.Add(inv.PendingAmount())
		if !inv.IsFinalized {
			dash.PendingInvoices++
		}
	}
	for _, item := range items {
		if item.IsLowStock() {
			dash.LowStockItems++
		}
	}

	ordersByDealer := make(map[string][]domain.DealerOrder)
	for _, order := range orders {
		ordersByDealer[order.DealerID] = append(ordersByDealer[order.DealerID], order)
		if order.Status == domain.DealerOrderPending {
			dash.PendingDeliveries++
		}
	}
	paymentsByDealer := make(map[string][]domain.DealerPayment)
	for _, payment := range payments {
		paymentsByDealer[payment.DealerID] = append(paymentsByDealer[payment.DealerID], payment)
	}
	// floored per dealer
	for dealerID, dealerOrders := range ordersByDealer {
		dash.DealerPayable = dash.DealerPayable.Add(summarizeDealer(dealerOrders, paymentsByDealer[dealerID]).Payable)
	}
	return dash, nil
}
