package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/xid"
)

// GenerateInvoice converts a cart or a direct product list into an invoice.
func (s *Service) GenerateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}
	inv, err := s.generateInvoice(ctx, p.ClientID, req, nil)
	if err != nil {
		return domain.Invoice{}, err
	}
	return *inv, nil
}

// generateInvoice is shared by the online path and sync. localItems maps
// batch-local item ids to the ids created earlier in the same sync batch.
func (s *Service) generateInvoice(ctx context.Context, clientID string, req domain.InvoiceCreateRequest, localItems map[string]string) (*domain.Invoice, error) {
	client, err := s.repo.GetClientByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if req.Customer.Empty() {
		return nil, apperr.Validationf("customer id, phone or name is required")
	}

	cartID := strings.TrimSpace(req.CartID)
	var products []domain.InvoiceProduct
	if cartID != "" {
		products, err = s.productsFromCart(ctx, clientID, cartID)
	} else {
		products, err = s.productsFromInput(ctx, clientID, req.Products, localItems)
	}
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, product := range products {
		total = total.Add(product.Total)
	}
	if req.TotalAmount != nil {
		if req.TotalAmount.IsNegative() {
			return nil, apperr.Validationf("total_amount cannot be negative")
		}
		total = *req.TotalAmount
	}
	paid := decimal.Zero
	if req.PaidAmount != nil {
		if req.PaidAmount.IsNegative() {
			return nil, apperr.Validationf("paid_amount cannot be negative")
		}
		paid = *req.PaidAmount
	}

	customer, fresh, err := s.resolveCustomer(ctx, *client, req.Customer)
	if err != nil {
		return nil, err
	}

	now := s.now()
	inv := domain.Invoice{
		ID:            xid.New("inv"),
		ClientID:      clientID,
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		CustomerID:    customer.ID,
		CustomerName:  customer.Name,
		CustomerPhone: customer.Phone,
		CartID:        cartID,
		Products:      products,
		TotalAmount:   total,
		PaidAmount:    paid,
		Note:          strings.TrimSpace(req.Note),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inv.Refinalize()

	create := store.InvoiceCreate{
		Invoice:   inv,
		Stock:     saleAdjustments(products),
		CartID:    cartID,
		HistoryID: xid.New("phs"),
	}
	if fresh {
		create.NewCustomer = customer
	}
	if paid.IsPositive() {
		create.OpeningPayment = &domain.Payment{
			ID:     xid.New("pay"),
			Amount: paid,
			Method: normalizeMethod(req.PaymentMethod),
			Note:   "paid at invoice creation",
			PaidAt: now,
		}
	}

	created, err := s.repo.CreateInvoice(ctx, create)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, clientID, "invoice_create", "invoice", created.ID,
		fmt.Sprintf("number=%s,total=%s,paid=%s,customer=%s", created.InvoiceNumber, created.TotalAmount, created.PaidAmount, created.CustomerID))
	return created, nil
}

func (s *Service) productsFromCart(ctx context.Context, clientID string, cartID string) ([]domain.InvoiceProduct, error) {
	cart, err := s.repo.GetCart(ctx, clientID, cartID)
	if err != nil {
		return nil, notFound(err, "cart", cartID)
	}
	if cart.IsFinalized {
		return nil, apperr.ErrCartFinalized
	}
	lines := cart.ActiveItems()
	if len(lines) == 0 {
		return nil, apperr.Validationf("cart %s is empty", cartID)
	}

	products := make([]domain.InvoiceProduct, 0, len(lines))
	for _, line := range lines {
		products = append(products, domain.InvoiceProduct{
			ItemID:   line.ItemID,
			Name:     line.Name,
			Cost:     line.Price,
			Quantity: line.Quantity,
			Total:    line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))),
		})
	}
	return products, nil
}

// productsFromInput fills missing names and costs from the catalog at this instant.
func (s *Service) productsFromInput(ctx context.Context, clientID string, inputs []domain.InvoiceProductInput, localItems map[string]string) ([]domain.InvoiceProduct, error) {
	if len(inputs) == 0 {
		return nil, apperr.Validationf("invoice requires a cart or at least one product")
	}

	itemIDs := make([]string, len(inputs))
	lookup := make([]string, 0, len(inputs))
	for i, in := range inputs {
		id := strings.TrimSpace(in.ItemID)
		if id == "" && in.LocalItemID != "" {
			mapped, ok := localItems[in.LocalItemID]
			if !ok {
				return nil, apperr.Validationf("product %d references unknown local item %s", i, in.LocalItemID)
			}
			id = mapped
		}
		itemIDs[i] = id
		if id != "" {
			lookup = append(lookup, id)
		}
	}
	catalog, err := s.repo.GetItemsByIDs(ctx, clientID, lookup)
	if err != nil {
		return nil, err
	}

	products := make([]domain.InvoiceProduct, 0, len(inputs))
	for i, in := range inputs {
		if in.Quantity < 1 {
			return nil, apperr.Validationf("product %d quantity must be positive", i)
		}
		product := domain.InvoiceProduct{ItemID: itemIDs[i], Name: strings.TrimSpace(in.Name), Quantity: in.Quantity}
		if in.Cost != nil {
			product.Cost = *in.Cost
		}
		if product.ItemID != "" {
			item, ok := catalog[product.ItemID]
			if !ok {
				return nil, apperr.NotFoundf("item %s not found", product.ItemID)
			}
			if product.Name == "" {
				product.Name = item.Name
			}
			if in.Cost == nil {
				product.Cost = item.Price
			}
		} else if product.Name == "" || in.Cost == nil {
			return nil, apperr.Validationf("product %d needs an item id or a name and cost", i)
		}
		if product.Cost.IsNegative() {
			return nil, apperr.Validationf("product %d cost cannot be negative", i)
		}
		product.Total = product.Cost.Mul(decimal.NewFromInt(int64(product.Quantity)))
		products = append(products, product)
	}
	return products, nil
}

// saleAdjustments folds product lines into one negative delta per item.
func saleAdjustments(products []domain.InvoiceProduct) []domain.StockAdjustment {
	index := make(map[string]int)
	out := make([]domain.StockAdjustment, 0, len(products))
	for _, product := range products {
		if product.ItemID == "" {
			continue
		}
		if i, ok := index[product.ItemID]; ok {
			out[i].Delta -= product.Quantity
			continue
		}
		index[product.ItemID] = len(out)
		out = append(out, domain.StockAdjustment{ItemID: product.ItemID, Delta: -product.Quantity})
	}
	return out
}

// RecordPayment appends a payment. Overpayment is accepted and accumulates past
// the invoice total.
func (s *Service) RecordPayment(ctx context.Context, req domain.PaymentCreateRequest) (domain.PaymentResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	return s.recordPayment(ctx, p.ClientID, req, nil)
}

func (s *Service) recordPayment(ctx context.Context, clientID string, req domain.PaymentCreateRequest, localInvoices map[string]string) (domain.PaymentResponse, error) {
	invoiceID := strings.TrimSpace(req.InvoiceID)
	if invoiceID == "" && req.InvoiceLocalID != "" {
		mapped, ok := localInvoices[req.InvoiceLocalID]
		if !ok {
			return domain.PaymentResponse{}, apperr.Validationf("payment references unknown local invoice %s", req.InvoiceLocalID)
		}
		invoiceID = mapped
	}
	if invoiceID == "" {
		return domain.PaymentResponse{}, apperr.Validationf("invoice_id is required")
	}
	if !req.Amount.IsPositive() {
		return domain.PaymentResponse{}, apperr.Validationf("payment amount must be positive")
	}

	payment := domain.Payment{
		ID:        xid.New("pay"),
		ClientID:  clientID,
		InvoiceID: invoiceID,
		Amount:    req.Amount,
		Method:    normalizeMethod(req.Method),
		Note:      strings.TrimSpace(req.Note),
		PaidAt:    s.now(),
	}
	inv, err := s.repo.RecordPayment(ctx, payment, xid.New("phs"))
	if err != nil {
		return domain.PaymentResponse{}, notFound(err, "invoice", invoiceID)
	}
	payment.CustomerID = inv.CustomerID

	if inv.PaidAmount.GreaterThan(inv.TotalAmount) {
		s.logger.InfoContext(ctx, "invoice overpaid",
			"invoice_id", inv.ID, "total", inv.TotalAmount.String(), "paid", inv.PaidAmount.String())
	}
	s.logAudit(ctx, clientID, "payment_record", "invoice", inv.ID,
		fmt.Sprintf("payment=%s,amount=%s,method=%s,finalized=%t", payment.ID, payment.Amount, payment.Method, inv.IsFinalized))
	return domain.PaymentResponse{Payment: payment, Invoice: *inv}, nil
}

func (s *Service) GetInvoice(ctx context.Context, invoiceID string) (domain.InvoiceBalance, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.InvoiceBalance{}, err
	}
	inv, err := s.repo.GetInvoice(ctx, p.ClientID, invoiceID)
	if err != nil {
		return domain.InvoiceBalance{}, notFound(err, "invoice", invoiceID)
	}
	return domain.InvoiceBalance{Invoice: *inv, PendingAmount: inv.PendingAmount()}, nil
}

func (s *Service) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkInvoiceStatus(filter.Status); err != nil {
		return nil, err
	}
	return s.repo.ListInvoices(ctx, p.ClientID, filter)
}

// CustomerInvoices lists a customer's invoices with pending balances; status is
// "", "pending" or "paid".
func (s *Service) CustomerInvoices(ctx context.Context, customerID string, status string) (domain.CustomerInvoicesResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.CustomerInvoicesResponse{}, err
	}
	if err := checkInvoiceStatus(status); err != nil {
		return domain.CustomerInvoicesResponse{}, err
	}
	if _, err := s.repo.GetCustomer(ctx, p.ClientID, customerID); err != nil {
		return domain.CustomerInvoicesResponse{}, notFound(err, "customer", customerID)
	}
	invoices, err := s.repo.ListInvoices(ctx, p.ClientID, domain.InvoiceFilter{CustomerID: customerID, Status: status})
	if err != nil {
		return domain.CustomerInvoicesResponse{}, err
	}

	resp := domain.CustomerInvoicesResponse{
		CustomerID:    customerID,
		Status:        defaultString(status, "all"),
		Invoices:      make([]domain.InvoiceBalance, 0, len(invoices)),
		TotalAmount:   decimal.Zero,
		PaidAmount:    decimal.Zero,
		PendingAmount: decimal.Zero,
	}
	for _, inv := range invoices {
		pending := inv.PendingAmount()
		resp.Invoices = append(resp.Invoices, domain.InvoiceBalance{Invoice: inv, PendingAmount: pending})
		resp.TotalAmount = resp.TotalAmount.Add(inv.TotalAmount)
		resp.PaidAmount = resp.PaidAmount.Add(inv.PaidAmount)
		resp.PendingAmount = resp.PendingAmount.Add(pending)
	}
	return resp, nil
}

func (s *Service) PaymentHistory(ctx context.Context, filter domain.PaymentFilter) (domain.PaymentHistory, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.PaymentHistory{}, err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return domain.PaymentHistory{}, apperr.Validationf("to must not be before from")
	}
	payments, err := s.repo.ListPayments(ctx, p.ClientID, filter)
	if err != nil {
		return domain.PaymentHistory{}, err
	}
	return summarizePayments(payments), nil
}

func summarizePayments(payments []domain.Payment) domain.PaymentHistory {
	history := domain.PaymentHistory{
		Payments:      payments,
		Count:         len(payments),
		TotalPaid:     decimal.Zero,
		AverageAmount: decimal.Zero,
		ByMethod:      make(map[string]decimal.Decimal),
	}
	for i, payment := range payments {
		history.TotalPaid = history.TotalPaid.Add(payment.Amount)
		history.ByMethod[payment.Method] = history.ByMethod[payment.Method].Add(payment.Amount)
		at := payments[i].PaidAt
		if history.FirstPaymentAt == nil || at.Before(*history.FirstPaymentAt) {
			history.FirstPaymentAt = &at
		}
		if history.LastPaymentAt == nil || at.After(*history.LastPaymentAt) {
			history.LastPaymentAt = &at
		}
	}
	if history.Count > 0 {
		history.AverageAmount = history.TotalPaid.DivRound(decimal.NewFromInt(int64(history.Count)), 2)
	}
	return history
}

func (s *Service) ListPurchaseHistory(ctx context.Context, customerID string) ([]domain.PurchaseHistory, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPurchaseHistory(ctx, p.ClientID, customerID)
}

func checkInvoiceStatus(status string) error {
	switch status {
	case "", "pending", "paid":
		return nil
	default:
		return apperr.Validationf("status must be pending or paid")
	}
}
