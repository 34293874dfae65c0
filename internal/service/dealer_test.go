package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
)

func newDealerWithItems(t *testing.T, svc *Service, ctx context.Context) (domain.Dealer, domain.Item, domain.Item) {
	t.Helper()
	dealer, err := svc.CreateDealer(ctx, domain.DealerCreateRequest{Name: "Metro Traders", Phone: "9876511111"})
	require.NoError(t, err)
	flour := mustItem(t, svc, ctx, "Flour", 40, 3, dealer.ID)
	dal := mustItem(t, svc, ctx, "Dal", 90, 0, dealer.ID)
	return dealer, flour, dal
}

func TestDeliveryIncrementsStockExactlyOnce(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, resp := signUp(t, svc, sender, "9994000001")
	dealer, flour, dal := newDealerWithItems(t, svc, ctx)

	order, err := svc.CreateDealerOrder(ctx, domain.DealerOrderCreateRequest{
		DealerID: dealer.ID,
		Lines: []domain.DealerOrderLineInput{
			{ItemID: flour.ID, Quantity: 10, UnitCost: dec(32)},
			{ItemID: dal.ID, Quantity: 5},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DealerOrderPending, order.Status)
	assert.Nil(t, order.TotalAmount)

	delivered, err := svc.MarkDelivered(ctx, order.ID, domain.DeliverOrderRequest{TotalAmount: dec(770), Note: "all boxes"})
	require.NoError(t, err)
	assert.Equal(t, domain.DealerOrderDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)
	assert.Equal(t, resp.Client.PhoneNumber, delivered.DeliveredBy)
	require.NotNil(t, delivered.TotalAmount)
	assertAmount(t, 770, *delivered.TotalAmount)

	gotFlour, err := svc.GetItem(ctx, flour.ID)
	require.NoError(t, err)
	assert.Equal(t, 13, gotFlour.Stock)
	gotDal, err := svc.GetItem(ctx, dal.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, gotDal.Stock)

	_, err = svc.MarkDelivered(ctx, order.ID, domain.DeliverOrderRequest{})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = svc.CancelOrder(ctx, order.ID, domain.CancelOrderRequest{Reason: "late"})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	gotFlour, err = svc.GetItem(ctx, flour.ID)
	require.NoError(t, err)
	assert.Equal(t, 13, gotFlour.Stock, "a rejected second delivery changes nothing")
}

func TestCancelledOrderIsTerminal(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, _ := signUp(t, svc, sender, "9994000002")
	dealer, flour, _ := newDealerWithItems(t, svc, ctx)

	order, err := svc.CreateDealerOrder(ctx, domain.DealerOrderCreateRequest{
		DealerID: dealer.ID,
		Lines:    []domain.DealerOrderLineInput{{ItemID: flour.ID, Quantity: 4}},
	})
	require.NoError(t, err)

	cancelled, err := svc.CancelOrder(ctx, order.ID, domain.CancelOrderRequest{Reason: " out of stock "})
	require.NoError(t, err)
	assert.Equal(t, domain.DealerOrderCancelled, cancelled.Status)
	assert.Equal(t, "out of stock", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = svc.MarkDelivered(ctx, order.ID, domain.DeliverOrderRequest{})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = svc.CancelOrder(ctx, order.ID, domain.CancelOrderRequest{})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = svc.RecordDealerPayment(ctx, dealer.ID, domain.DealerPaymentRequest{OrderID: order.ID, Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	got, err := svc.GetItem(ctx, flour.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)

	pending, err := svc.ListDealerOrders(ctx, domain.DealerOrderFilter{Status: domain.DealerOrderPending})
	require.NoError(t, err)
	assert.Empty(t, pending)
	_, err = svc.ListDealerOrders(ctx, domain.DealerOrderFilter{Status: "lost"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDealerOrderValidation(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, _ := signUp(t, svc, sender, "9994000003")
	dealer, flour, _ := newDealerWithItems(t, svc, ctx)
	unlinked := mustItem(t, svc, ctx, "Soap", 25, 10)

	_, err := svc.CreateDealerOrder(ctx, domain.DealerOrderCreateRequest{
		DealerID: dealer.ID,
		Lines:    []domain.DealerOrderLineInput{{ItemID: unlinked.ID, Quantity: 1}},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, apperr.Message(err), "not supplied by dealer")

	invalid := map[string]domain.DealerOrderCreateRequest{
		"no lines": {DealerID: dealer.ID},
		"zero quantity": {DealerID: dealer.ID, Lines: []domain.DealerOrderLineInput{{ItemID: flour.ID, Quantity: 0}}},
		"negative cost": {DealerID: dealer.ID, Lines: []domain.DealerOrderLineInput{{ItemID: flour.ID, Quantity: 1, UnitCost: dec(-2)}}},
	}
	for name, req := range invalid {
		_, err := svc.CreateDealerOrder(ctx, req)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), name)
	}

	_, err = svc.CreateDealerOrder(ctx, domain.DealerOrderCreateRequest{
		DealerID: "dlr_missing",
		Lines:    []domain.DealerOrderLineInput{{ItemID: flour.ID, Quantity: 1}},
	})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	inactive := false
	_, err = svc.UpdateDealer(ctx, dealer.ID, domain.DealerUpdateRequest{IsActive: &inactive})
	require.NoError(t, err)
	_, err = svc.CreateDealerOrder(ctx, domain.DealerOrderCreateRequest{
		DealerID: dealer.ID,
		Lines:    []domain.DealerOrderLineInput{{ItemID: flour.ID, Quantity: 1}},
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	order, err := svc.ListDealerOrders(ctx, domain.DealerOrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestOrderPaymentStatusProgression(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, _ := signUp(t, svc, sender, "9994000004")
	dealer, flour, _ := newDealerWithItems(t, svc, ctx)

	order, err := svc.CreateDealerOrder(ctx, domain.DealerOrderCreateRequest{
		DealerID: dealer.ID,
		Lines:    []domain.DealerOrderLineInput{{ItemID: flour.ID, Quantity: 20}},
	})
	require.NoError(t, err)

	status, err := svc.OrderPaymentStatus(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaymentNoBill, status.Status)
	assert.True(t, status.Remaining.IsZero())

	_, err = svc.MarkDelivered(ctx, order.ID, domain.DeliverOrderRequest{TotalAmount: dec(500)})
	require.NoError(t, err)
	status, err = svc.OrderPaymentStatus(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaymentPending, status.Status)
	assertAmount(t, 500, status.Remaining)

	pay := func(amount int64) {
		t.Helper()
		_, err := svc.RecordDealerPayment(ctx, dealer.ID, domain.DealerPaymentRequest{OrderID: order.ID, Amount: decimal.NewFromInt(amount)})
		require.NoError(t, err)
	}
	pay(200)
	status, err = svc.OrderPaymentStatus(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaymentPartial, status.Status)
	assertAmount(t, 300, status.Remaining)

	pay(300)
	status, err = svc.OrderPaymentStatus(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaymentPaid, status.Status)

	pay(50)
	status, err = svc.OrderPaymentStatus(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaymentPaid, status.Status)
	assert.True(t, status.Remaining.IsZero(), "remaining is floored at zero")
	assertAmount(t, 550, status.TotalPaid)

	summary, err := svc.DealerSummary(ctx, dealer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.OrderCount)
	assert.Equal(t, 1, summary.DeliveredOrders)
	assertAmount(t, 500, summary.TotalOrdered)
	assertAmount(t, 550, summary.TotalPaid)
	assert.True(t, summary.Payable.IsZero(), "payable is floored at zero")
}

func TestDealerSummaryExcludesCancelledOrders(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, _ := signUp(t, svc, sender, "9994000005")
	dealer, flour, dal := newDealerWithItems(t, svc, ctx)

	kept, err := svc.CreateDealerOrder(ctx, domain.DealerOrderCreateRequest{
		DealerID: dealer.ID,
		Lines:    []domain.DealerOrderLineInput{{ItemID: flour.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	dropped, err := svc.CreateDealerOrder(ctx, domain.DealerOrderCreateRequest{
		DealerID: dealer.ID,
		Lines:    []domain.DealerOrderLineInput{{ItemID: dal.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	_, err = svc.CreateDealerOrder(ctx, domain.DealerOrderCreateRequest{
		DealerID: dealer.ID,
		Lines:    []domain.DealerOrderLineInput{{ItemID: dal.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = svc.MarkDelivered(ctx, kept.ID, domain.DeliverOrderRequest{TotalAmount: dec(300)})
	require.NoError(t, err)
	_, err = svc.CancelOrder(ctx, dropped.ID, domain.CancelOrderRequest{})
	require.NoError(t, err)
	_, err = svc.RecordDealerPayment(ctx, dealer.ID, domain.DealerPaymentRequest{Amount: decimal.NewFromInt(120)})
	require.NoError(t, err)

	summary, err := svc.DealerSummary(ctx, dealer.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.OrderCount)
	assert.Equal(t, 1, summary.PendingOrders)
	assert.Equal(t, 1, summary.DeliveredOrders)
	assert.Equal(t, 1, summary.CancelledOrders)
	assertAmount(t, 300, summary.TotalOrdered)
	assertAmount(t, 180, summary.Payable)

	_, err = svc.RecordDealerPayment(ctx, dealer.ID, domain.DealerPaymentRequest{Amount: decimal.Zero})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.RecordDealerPayment(ctx, "dlr_missing", domain.DealerPaymentRequest{Amount: decimal.NewFromInt(1)})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	payments, err := svc.ListDealerPayments(ctx, dealer.ID, "")
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestDashboardAggregatesLedger(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx, _ := signUp(t, svc, sender, "9994000006")
	dealer, flour, dal := newDealerWithItems(t, svc, ctx)
	other, err := svc.CreateDealer(ctx, domain.DealerCreateRequest{Name: "Second Source"})
	require.NoError(t, err)
	oil := mustItem(t, svc, ctx, "Oil", 150, 30, other.ID)

	_, err = svc.GenerateInvoice(ctx, domain.InvoiceCreateRequest{
		Products:   []domain.InvoiceProductInput{{ItemID: flour.ID, Quantity: 1}},
		Customer:   domain.CustomerRef{Name: "A"},
		PaidAmount: dec(40),
	})
	require.NoError(t, err)
	_, err = svc.GenerateInvoice(ctx, domain.InvoiceCreateRequest{
		Products:   []domain.InvoiceProductInput{{ItemID: oil.ID, Quantity: 2}},
		Customer:   domain.CustomerRef{Name: "B"},
		PaidAmount: dec(100),
	})
	require.NoError(t, err)

	first, err := svc.CreateDealerOrder(ctx, domain.DealerOrderCreateRequest{
		DealerID: dealer.ID,
		Lines:    []domain.DealerOrderLineInput{{ItemID: dal.ID, Quantity: 10}},
	})
	require.NoError(t, err)
	_, err = svc.MarkDelivered(ctx, first.ID, domain.DeliverOrderRequest{TotalAmount: dec(400)})
	require.NoError(t, err)
	second, err := svc.CreateDealerOrder(ctx, domain.DealerOrderCreateRequest{
		DealerID: other.ID,
		Lines:    []domain.DealerOrderLineInput{{ItemID: oil.ID, Quantity: 5}},
	})
	require.NoError(t, err)
	_, err = svc.MarkDelivered(ctx, second.ID, domain.DeliverOrderRequest{TotalAmount: dec(100)})
	require.NoError(t, err)
	_, err = svc.RecordDealerPayment(ctx, other.ID, domain.DealerPaymentRequest{Amount: decimal.NewFromInt(250)})
	require.NoError(t, err)
	_, err = svc.CreateDealerOrder(ctx, domain.DealerOrderCreateRequest{
		DealerID: dealer.ID,
		Lines:    []domain.DealerOrderLineInput{{ItemID: flour.ID, Quantity: 3}},
	})
	require.NoError(t, err)

	dash, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dash.InvoiceCount)
	assertAmount(t, 340, dash.TotalSales)
	assertAmount(t, 140, dash.TotalReceived)
	assertAmount(t, 200, dash.Receivable)
	assert.Equal(t, 1, dash.PendingInvoices)
	assert.Equal(t, 2, dash.CustomerCount)
	assert.Equal(t, 1, dash.PendingDeliveries)
	assert.Equal(t, 1, dash.LowStockItems)
	assertAmount(t, 400, dash.DealerPayable, "an overpaid dealer does not offset another")

	empty, _ := signUp(t, svc, sender, "9994000007")
	dash, err = svc.Dashboard(empty)
	require.NoError(t, err)
	assert.Zero(t, dash.InvoiceCount)
	assert.True(t, dash.DealerPayable.IsZero())
}
