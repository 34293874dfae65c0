package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
)

type Store struct {
	mu             sync.RWMutex
	clients        map[string]domain.Client
	clientByPhone  map[string]string
	sessions       *table[domain.DeviceSession]
	groups         *table[domain.ItemGroup]
	items          *table[domain.Item]
	customers      *table[domain.ClientCustomer]
	carts          *table[domain.Cart]
	invoices       *table[domain.Invoice]
	invoiceNumbers map[string]map[string]string
	invoiceSeq     map[string]int
	payments       *table[domain.Payment]
	history        *table[domain.PurchaseHistory]
	dealers        *table[domain.Dealer]
	orders         *table[domain.DealerOrder]
	dealerPayments *table[domain.DealerPayment]
	syncBatches    map[string]domain.SyncBatch
	auditLogs      []domain.AuditLog
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		clients:        make(map[string]domain.Client),
		clientByPhone:  make(map[string]string),
		sessions:       newTable[domain.DeviceSession](cloneSession),
		groups:         newTable[domain.ItemGroup](nil),
		items:          newTable[domain.Item](cloneItem),
		customers:      newTable[domain.ClientCustomer](nil),
		carts:          newTable[domain.Cart](cloneCart),
		invoices:       newTable[domain.Invoice](cloneInvoice),
		invoiceNumbers: make(map[string]map[string]string),
		invoiceSeq:     make(map[string]int),
		payments:       newTable[domain.Payment](nil),
		history:        newTable[domain.PurchaseHistory](nil),
		dealers:        newTable[domain.Dealer](nil),
		orders:         newTable[domain.DealerOrder](cloneOrder),
		dealerPayments: newTable[domain.DealerPayment](nil),
		syncBatches:    make(map[string]domain.SyncBatch),
	}
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client.ID == "" || client.PhoneNumber == "" {
		return nil, apperr.Validationf("client requires id and phone number")
	}
	if _, exists := s.clientByPhone[client.PhoneNumber]; exists {
		return nil, apperr.Conflictf("phone number %s is already registered", client.PhoneNumber)
	}
	if _, exists := s.clients[client.ID]; exists {
		return nil, apperr.Conflictf("client %s already exists", client.ID)
	}
	stampCreated(&client.CreatedAt, &client.UpdatedAt)
	s.clients[client.ID] = client
	s.clientByPhone[client.PhoneNumber] = client.ID
	return &client, nil
}

func (s *Store) GetClientByID(_ context.Context, clientID string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &client, nil
}

func (s *Store) GetClientByPhone(_ context.Context, phone string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.clientByPhone[phone]
	if !ok {
		return nil, store.ErrNotFound
	}
	client := s.clients[id]
	return &client, nil
}

func (s *Store) UpdateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.clients[client.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// phone number is the login identity and never changes through an update
	client.PhoneNumber = existing.PhoneNumber
	client.CreatedAt = existing.CreatedAt
	if client.UpdatedAt.IsZero() {
		client.UpdatedAt = time.Now().UTC()
	}
	s.clients[client.ID] = client
	return &client, nil
}

func (s *Store) ActivateDeviceSession(_ context.Context, session domain.DeviceSession) (*domain.DeviceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ID == "" || session.ClientID == "" || session.DeviceID == "" {
		return nil, apperr.Validationf("session requires id, client and device")
	}
	if _, ok := s.clients[session.ClientID]; !ok {
		return nil, store.ErrNotFound
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastSeenAt.IsZero() {
		session.LastSeenAt = session.CreatedAt
	}

	for _, other := range s.sessions.list(session.ClientID, func(d domain.DeviceSession) bool { return d.IsActive }) {
		if other.ID == session.ID {
			continue
		}
		at := session.CreatedAt
		other.IsActive = false
		other.DeactivatedAt = &at
		s.sessions.put(other.ClientID, other.ID, other)
	}

	session.IsActive = true
	session.DeactivatedAt = nil
	if !s.sessions.put(session.ClientID, session.ID, session) {
		s.sessions.insert(session.ClientID, session.ID, session)
	}
	saved, _ := s.sessions.get(session.ClientID, session.ID)
	return &saved, nil
}

func (s *Store) GetDeviceSession(_ context.Context, clientID string, sessionID string) (*domain.DeviceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions.get(clientID, sessionID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &session, nil
}

func (s *Store) ListDeviceSessions(_ context.Context, clientID string) ([]domain.DeviceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sessions.list(clientID, nil), nil
}

func (s *Store) DeactivateDeviceSession(_ context.Context, clientID string, sessionID string, at time.Time) (*domain.DeviceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions.get(clientID, sessionID)
	if !ok || !session.IsActive {
		return nil, apperr.ErrAlreadyLoggedOut
	}
	session.IsActive = false
	session.DeactivatedAt = &at
	s.sessions.put(clientID, sessionID, session)
	return &session, nil
}

func (s *Store) TouchDeviceSession(_ context.Context, clientID string, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions.get(clientID, sessionID)
	if !ok {
		return store.ErrNotFound
	}
	if at.After(session.LastSeenAt) {
		session.LastSeenAt = at
		s.sessions.put(clientID, sessionID, session)
	}
	return nil
}

func (s *Store) CreateItemGroup(_ context.Context, group domain.ItemGroup) (*domain.ItemGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stampCreated(&group.CreatedAt, &group.UpdatedAt)
	if !s.groups.insert(group.ClientID, group.ID, group) {
		return nil, apperr.Conflictf("item group %s already exists", group.ID)
	}
	return &group, nil
}

func (s *Store) GetItemGroup(_ context.Context, clientID string, groupID string) (*domain.ItemGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, ok := s.groups.get(clientID, groupID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &group, nil
}

func (s *Store) UpdateItemGroup(_ context.Context, group domain.ItemGroup) (*domain.ItemGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.groups.put(group.ClientID, group.ID, group) {
		return nil, store.ErrNotFound
	}
	return &group, nil
}

func (s *Store) ListItemGroups(_ context.Context, clientID string, includeInactive bool) ([]domain.ItemGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.groups.list(clientID, func(g domain.ItemGroup) bool { return includeInactive || g.IsActive }), nil
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.Stock < 0 {
		return nil, apperr.Validationf("stock cannot be negative")
	}
	stampCreated(&item.CreatedAt, &item.UpdatedAt)
	if !s.items.insert(item.ClientID, item.ID, item) {
		return nil, apperr.Conflictf("item %s already exists", item.ID)
	}
	saved, _ := s.items.get(item.ClientID, item.ID)
	return &saved, nil
}

func (s *Store) GetItem(_ context.Context, clientID string, itemID string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items.get(clientID, itemID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (s *Store) GetItemsByIDs(_ context.Context, clientID string, itemIDs []string) (map[string]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Item, len(itemIDs))
	for _, id := range itemIDs {
		if item, ok := s.items.get(clientID, id); ok {
			result[id] = item
		}
	}
	return result, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.Item, stock *int) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items.get(item.ClientID, item.ID)
	if !ok {
		return nil, store.ErrNotFound
	}
	item.Stock = existing.Stock
	if stock != nil {
		if *stock < 0 {
			return nil, apperr.Validationf("stock cannot be negative")
		}
		item.Stock = *stock
	}
	item.CreatedAt = existing.CreatedAt
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	s.items.put(item.ClientID, item.ID, item)
	saved, _ := s.items.get(item.ClientID, item.ID)
	return &saved, nil
}

func (s *Store) ListItems(_ context.Context, clientID string, includeInactive bool) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.items.list(clientID, func(i domain.Item) bool { return includeInactive || i.IsActive }), nil
}

func (s *Store) checkStockTargets(clientID string, adjustments []domain.StockAdjustment) error {
	for _, adj := range adjustments {
		if _, ok := s.items.get(clientID, adj.ItemID); !ok {
			return apperr.NotFoundf("item %s not found", adj.ItemID)
		}
	}
	return nil
}

// applyStock assumes checkStockTargets passed.
func (s *Store) applyStock(clientID string, adjustments []domain.StockAdjustment, at time.Time) {
	for _, adj := range adjustments {
		item, _ := s.items.get(clientID, adj.ItemID)
		item.Stock += adj.Delta
		if item.Stock < 0 {
			item.Stock = 0
		}
		item.UpdatedAt = at
		s.items.put(clientID, item.ID, item)
	}
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.ClientCustomer) (*domain.ClientCustomer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Phone != "" && s.customerByPhone(customer.ClientID, customer.Phone, "") {
		return nil, apperr.Conflictf("customer with phone %s already exists", customer.Phone)
	}
	stampCreated(&customer.CreatedAt, &customer.UpdatedAt)
	if !s.customers.insert(customer.ClientID, customer.ID, customer) {
		return nil, apperr.Conflictf("customer %s already exists", customer.ID)
	}
	return &customer, nil
}

func (s *Store) customerByPhone(clientID string, phone string, exceptID string) bool {
	return s.customers.count(clientID, func(c domain.ClientCustomer) bool {
		return c.Phone == phone && c.ID != exceptID
	}) > 0
}

func (s *Store) GetCustomer(_ context.Context, clientID string, customerID string) (*domain.ClientCustomer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers.get(clientID, customerID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) FindCustomerByPhone(_ context.Context, clientID string, phone string) (*domain.ClientCustomer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := s.customers.list(clientID, func(c domain.ClientCustomer) bool { return c.Phone == phone })
	if phone == "" || len(matches) == 0 {
		return nil, store.ErrNotFound
	}
	return &matches[0], nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.ClientCustomer) (*domain.ClientCustomer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers.get(customer.ClientID, customer.ID)
	if !ok {
		return nil, store.ErrNotFound
	}
	if customer.Phone != "" && s.customerByPhone(customer.ClientID, customer.Phone, customer.ID) {
		return nil, apperr.Conflictf("customer with phone %s already exists", customer.Phone)
	}
	customer.CreatedAt = existing.CreatedAt
	if customer.UpdatedAt.IsZero() {
		customer.UpdatedAt = time.Now().UTC()
	}
	s.customers.put(customer.ClientID, customer.ID, customer)
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, clientID string) ([]domain.ClientCustomer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.customers.list(clientID, nil), nil
}

func (s *Store) CreateCart(_ context.Context, cart domain.Cart) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stampCreated(&cart.CreatedAt, &cart.UpdatedAt)
	cart.Recalculate()
	if !s.carts.insert(cart.ClientID, cart.ID, cart) {
		return nil, apperr.Conflictf("cart %s already exists", cart.ID)
	}
	saved, _ := s.carts.get(cart.ClientID, cart.ID)
	return &saved, nil
}

func (s *Store) GetCart(_ context.Context, clientID string, cartID string) (*domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts.get(clientID, cartID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &cart, nil
}

func (s *Store) AddCartItem(_ context.Context, clientID string, cartID string, line domain.CartItem) (*domain.Cart, error) {
	return s.mutateCart(clientID, cartID, func(cart *domain.Cart) error {
		for i := range cart.Items {
			existing := &cart.Items[i]
			if existing.IsActive && existing.ItemID == line.ItemID {
				existing.Quantity += line.Quantity
				return nil
			}
		}
		line.CartID = cart.ID
		line.IsActive = true
		cart.Items = append(cart.Items, line)
		return nil
	})
}

func (s *Store) RemoveCartItem(_ context.Context, clientID string, cartID string, lineID string) (*domain.Cart, error) {
	return s.mutateCart(clientID, cartID, func(cart *domain.Cart) error {
		for i := range cart.Items {
			if cart.Items[i].ID == lineID && cart.Items[i].IsActive {
				cart.Items[i].IsActive = false
				return nil
			}
		}
		return apperr.NotFoundf("cart line %s not found", lineID)
	})
}

func (s *Store) ClearCart(_ context.Context, clientID string, cartID string) (*domain.Cart, error) {
	return s.mutateCart(clientID, cartID, func(cart *domain.Cart) error {
		for i := range cart.Items {
			cart.Items[i].IsActive = false
		}
		return nil
	})
}

func (s *Store) mutateCart(clientID string, cartID string, fn func(cart *domain.Cart) error) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts.get(clientID, cartID)
	if !ok {
		return nil, store.ErrNotFound
	}
	if cart.IsFinalized {
		return nil, apperr.ErrCartFinalized
	}
	if err := fn(&cart); err != nil {
		return nil, err
	}
	cart.Recalculate()
	cart.UpdatedAt = time.Now().UTC()
	s.carts.put(clientID, cartID, cart)
	return &cart, nil
}

func (s *Store) CreateInvoice(_ context.Context, create store.InvoiceCreate) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv := create.Invoice
	if inv.ID == "" || inv.ClientID == "" {
		return nil, apperr.Validationf("invoice requires id and client")
	}
	clientID := inv.ClientID
	if _, ok := s.clients[clientID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, exists := s.invoices.get(clientID, inv.ID); exists {
		return nil, apperr.Conflictf("invoice %s already exists", inv.ID)
	}
	if c := create.NewCustomer; c != nil {
		if _, exists := s.customers.get(clientID, c.ID); exists {
			return nil, apperr.Conflictf("customer %s already exists", c.ID)
		}
		if c.Phone != "" && s.customerByPhone(clientID, c.Phone, "") {
			return nil, apperr.Conflictf("customer with phone %s already exists", c.Phone)
		}
	} else if _, ok := s.customers.get(clientID, inv.CustomerID); !ok {
		return nil, apperr.NotFoundf("customer %s not found", inv.CustomerID)
	}

	var cart domain.Cart
	if create.CartID != "" {
		var ok bool
		cart, ok = s.carts.get(clientID, create.CartID)
		if !ok {
			return nil, apperr.NotFoundf("cart %s not found", create.CartID)
		}
		if cart.IsFinalized {
			return nil, apperr.ErrCartFinalized
		}
	}
	if err := s.checkStockTargets(clientID, create.Stock); err != nil {
		return nil, err
	}

	numbers := s.invoiceNumbers[clientID]
	if numbers == nil {
		numbers = make(map[string]string)
		s.invoiceNumbers[clientID] = numbers
	}
	if inv.InvoiceNumber != "" {
		if _, taken := numbers[inv.InvoiceNumber]; taken {
			return nil, apperr.Conflictf("invoice number %s already exists", inv.InvoiceNumber)
		}
	} else {
		for {
			s.invoiceSeq[clientID]++
			candidate := domain.FormatInvoiceNumber(s.invoiceSeq[clientID])
			if _, taken := numbers[candidate]; !taken {
				inv.InvoiceNumber = candidate
				break
			}
		}
	}

	if c := create.NewCustomer; c != nil {
		customer := *c
		customer.ClientID = clientID
		stampCreated(&customer.CreatedAt, &customer.UpdatedAt)
		s.customers.insert(clientID, customer.ID, customer)
		inv.CustomerID = customer.ID
	}
	stampCreated(&inv.CreatedAt, &inv.UpdatedAt)
	s.invoices.insert(clientID, inv.ID, inv)
	numbers[inv.InvoiceNumber] = inv.ID

	if p := create.OpeningPayment; p != nil {
		payment := *p
		payment.ClientID = clientID
		payment.InvoiceID = inv.ID
		payment.CustomerID = inv.CustomerID
		s.payments.insert(clientID, payment.ID, payment)
	}
	s.applyStock(clientID, create.Stock, inv.CreatedAt)
	if create.CartID != "" {
		cart.IsFinalized = true
		cart.InvoiceID = inv.ID
		cart.UpdatedAt = inv.CreatedAt
		s.carts.put(clientID, cart.ID, cart)
	}
	if inv.IsFinalized && create.HistoryID != "" {
		s.writeHistory(domain.NewPurchaseHistory(create.HistoryID, inv, inv.CreatedAt))
	}

	saved, _ := s.invoices.get(clientID, inv.ID)
	return &saved, nil
}

// writeHistory keeps purchase history write-once per invoice.
func (s *Store) writeHistory(entry domain.PurchaseHistory) {
	exists := s.history.count(entry.ClientID, func(h domain.PurchaseHistory) bool { return h.InvoiceID == entry.InvoiceID }) > 0
	if exists {
		return
	}
	s.history.insert(entry.ClientID, entry.ID, entry)
}

func (s *Store) GetInvoice(_ context.Context, clientID string, invoiceID string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices.get(clientID, invoiceID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

func (s *Store) ListInvoices(_ context.Context, clientID string, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.invoices.list(clientID, func(inv domain.Invoice) bool {
		if filter.CustomerID != "" && inv.CustomerID != filter.CustomerID {
			return false
		}
		paid := inv.PaidAmount.GreaterThanOrEqual(inv.TotalAmount)
		switch filter.Status {
		case "pending":
			return !paid
		case "paid":
			return paid
		}
		return true
	})
	slices.Reverse(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) RecordPayment(_ context.Context, payment domain.Payment, historyID string) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !payment.Amount.IsPositive() {
		return nil, apperr.Validationf("payment amount must be positive")
	}
	inv, ok := s.invoices.get(payment.ClientID, payment.InvoiceID)
	if !ok {
		return nil, apperr.NotFoundf("invoice %s not found", payment.InvoiceID)
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}
	payment.CustomerID = inv.CustomerID
	if !s.payments.insert(payment.ClientID, payment.ID, payment) {
		return nil, apperr.Conflictf("payment %s already exists", payment.ID)
	}

	wasFinalized := inv.IsFinalized
	inv.PaidAmount = inv.PaidAmount.Add(payment.Amount)
	inv.Refinalize()
	inv.UpdatedAt = payment.PaidAt
	s.invoices.put(inv.ClientID, inv.ID, inv)

	if !wasFinalized && inv.IsFinalized && historyID != "" {
		s.writeHistory(domain.NewPurchaseHistory(historyID, inv, payment.PaidAt))
	}
	return &inv, nil
}

func (s *Store) ListPayments(_ context.Context, clientID string, filter domain.PaymentFilter) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.payments.list(clientID, func(p domain.Payment) bool {
		if filter.InvoiceID != "" && p.InvoiceID != filter.InvoiceID {
			return false
		}
		if filter.CustomerID != "" && p.CustomerID != filter.CustomerID {
			return false
		}
		if filter.From != nil && p.PaidAt.Before(*filter.From) {
			return false
		}
		if filter.To != nil && !p.PaidAt.Before(*filter.To) {
			return false
		}
		return true
	})
	slices.SortStableFunc(result, func(a, b domain.Payment) int { return a.PaidAt.Compare(b.PaidAt) })
	return result, nil
}

func (s *Store) ListPurchaseHistory(_ context.Context, clientID string, customerID string) ([]domain.PurchaseHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.history.list(clientID, func(h domain.PurchaseHistory) bool {
		return customerID == "" || h.CustomerID == customerID
	}), nil
}

func (s *Store) CreateDealer(_ context.Context, dealer domain.Dealer) (*domain.Dealer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stampCreated(&dealer.CreatedAt, &dealer.UpdatedAt)
	if !s.dealers.insert(dealer.ClientID, dealer.ID, dealer) {
		return nil, apperr.Conflictf("dealer %s already exists", dealer.ID)
	}
	return &dealer, nil
}

func (s *Store) GetDealer(_ context.Context, clientID string, dealerID string) (*domain.Dealer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dealer, ok := s.dealers.get(clientID, dealerID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &dealer, nil
}

func (s *Store) UpdateDealer(_ context.Context, dealer domain.Dealer) (*domain.Dealer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.dealers.get(dealer.ClientID, dealer.ID)
	if !ok {
		return nil, store.ErrNotFound
	}
	dealer.CreatedAt = existing.CreatedAt
	s.dealers.put(dealer.ClientID, dealer.ID, dealer)
	return &dealer, nil
}

func (s *Store) ListDealers(_ context.Context, clientID string, includeInactive bool) ([]domain.Dealer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.dealers.list(clientID, func(d domain.Dealer) bool { return includeInactive || d.IsActive }), nil
}

func (s *Store) CreateDealerOrder(_ context.Context, order domain.DealerOrder) (*domain.DealerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(order.Items) == 0 {
		return nil, apperr.Validationf("dealer order requires at least one line")
	}
	if _, ok := s.dealers.get(order.ClientID, order.DealerID); !ok {
		return nil, apperr.NotFoundf("dealer %s not found", order.DealerID)
	}
	for _, line := range order.Items {
		if line.Quantity < 1 {
			return nil, apperr.Validationf("order quantity must be positive")
		}
		if _, ok := s.items.get(order.ClientID, line.ItemID); !ok {
			return nil, apperr.NotFoundf("item %s not found", line.ItemID)
		}
	}
	if order.Status == "" {
		order.Status = domain.DealerOrderPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.Items = append([]domain.DealerOrderItem{}, order.Items...)
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	if !s.orders.insert(order.ClientID, order.ID, order) {
		return nil, apperr.Conflictf("dealer order %s already exists", order.ID)
	}
	saved, _ := s.orders.get(order.ClientID, order.ID)
	return &saved, nil
}

func (s *Store) GetDealerOrder(_ context.Context, clientID string, orderID string) (*domain.DealerOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders.get(clientID, orderID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &order, nil
}

func (s *Store) ListDealerOrders(_ context.Context, clientID string, filter domain.DealerOrderFilter) ([]domain.DealerOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.orders.list(clientID, func(o domain.DealerOrder) bool {
		if filter.DealerID != "" && o.DealerID != filter.DealerID {
			return false
		}
		return filter.Status == "" || o.Status == filter.Status
	})
	slices.Reverse(result)
	return result, nil
}

func (s *Store) DeliverDealerOrder(_ context.Context, clientID string, orderID string, delivery domain.OrderDelivery) (*domain.DealerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders.get(clientID, orderID)
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.DealerOrderPending {
		return nil, apperr.Detail(apperr.ErrInvalidTransition, "order is %s", order.Status)
	}

	adjustments := make([]domain.StockAdjustment, 0, len(order.Items))
	for _, line := range order.Items {
		adjustments = append(adjustments, domain.StockAdjustment{ItemID: line.ItemID, Delta: line.Quantity})
	}
	if err := s.checkStockTargets(clientID, adjustments); err != nil {
		return nil, err
	}

	if delivery.DeliveredAt.IsZero() {
		delivery.DeliveredAt = time.Now().UTC()
	}
	s.applyStock(clientID, adjustments, delivery.DeliveredAt)

	order.Status = domain.DealerOrderDelivered
	order.DeliveredAt = &delivery.DeliveredAt
	order.DeliveredBy = strings.TrimSpace(delivery.DeliveredBy)
	order.DeliveryNote = delivery.Note
	if delivery.TotalAmount != nil {
		total := *delivery.TotalAmount
		order.TotalAmount = &total
	}
	if delivery.DueDate != nil {
		due := *delivery.DueDate
		order.DueDate = &due
	}
	s.orders.put(clientID, orderID, order)
	saved, _ := s.orders.get(clientID, orderID)
	return &saved, nil
}

func (s *Store) CancelDealerOrder(_ context.Context, clientID string, orderID string, reason string, at time.Time) (*domain.DealerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders.get(clientID, orderID)
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.DealerOrderPending {
		return nil, apperr.Detail(apperr.ErrInvalidTransition, "order is %s", order.Status)
	}
	order.Status = domain.DealerOrderCancelled
	order.CancelledAt = &at
	order.CancelReason = reason
	s.orders.put(clientID, orderID, order)
	saved, _ := s.orders.get(clientID, orderID)
	return &saved, nil
}

func (s *Store) CreateDealerPayment(_ context.Context, payment domain.DealerPayment) (*domain.DealerPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !payment.Amount.IsPositive() {
		return nil, apperr.Validationf("payment amount must be positive")
	}
	if _, ok := s.dealers.get(payment.ClientID, payment.DealerID); !ok {
		return nil, apperr.NotFoundf("dealer %s not found", payment.DealerID)
	}
	if payment.OrderID != "" {
		order, ok := s.orders.get(payment.ClientID, payment.OrderID)
		if !ok || order.DealerID != payment.DealerID {
			return nil, apperr.NotFoundf("order %s not found for dealer %s", payment.OrderID, payment.DealerID)
		}
		if order.Status == domain.DealerOrderCancelled {
			return nil, apperr.Detail(apperr.ErrInvalidTransition, "order is cancelled")
		}
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}
	if !s.dealerPayments.insert(payment.ClientID, payment.ID, payment) {
		return nil, apperr.Conflictf("dealer payment %s already exists", payment.ID)
	}
	return &payment, nil
}

func (s *Store) ListDealerPayments(_ context.Context, clientID string, dealerID string, orderID string) ([]domain.DealerPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.dealerPayments.list(clientID, func(p domain.DealerPayment) bool {
		if dealerID != "" && p.DealerID != dealerID {
			return false
		}
		return orderID == "" || p.OrderID == orderID
	}), nil
}

func (s *Store) ReserveSyncBatch(_ context.Context, batch domain.SyncBatch) (*domain.SyncBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := syncKey(batch.ClientID, batch.IdempotencyKey)
	if existing, ok := s.syncBatches[key]; ok {
		return cloneSyncBatch(existing), store.ErrConflict
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	batch.Completed = false
	batch.Manifest = nil
	s.syncBatches[key] = batch
	return cloneSyncBatch(batch), nil
}

func (s *Store) CompleteSyncBatch(_ context.Context, clientID string, key string, manifest domain.SyncManifest, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.syncBatches[syncKey(clientID, key)]
	if !ok {
		return store.ErrNotFound
	}
	batch.Completed = true
	batch.Manifest = &manifest
	batch.CompletedAt = &at
	s.syncBatches[syncKey(clientID, key)] = *cloneSyncBatch(batch)
	return nil
}

func (s *Store) ReleaseSyncBatch(_ context.Context, clientID string, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.syncBatches, syncKey(clientID, key))
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, clientID string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 32)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.ClientID != clientID {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func stampCreated(createdAt *time.Time, updatedAt *time.Time) {
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		*updatedAt = *createdAt
	}
}

func syncKey(clientID string, key string) string {
	return clientID + "\x00" + key
}

func cloneSession(src domain.DeviceSession) domain.DeviceSession {
	dup := src
	if src.DeactivatedAt != nil {
		at := *src.DeactivatedAt
		dup.DeactivatedAt = &at
	}
	return dup
}

func cloneItem(src domain.Item) domain.Item {
	dup := src
	dup.DealerIDs = append([]string{}, src.DealerIDs...)
	return dup
}

func cloneCart(src domain.Cart) domain.Cart {
	dup := src
	dup.Items = append([]domain.CartItem{}, src.Items...)
	return dup
}

func cloneInvoice(src domain.Invoice) domain.Invoice {
	dup := src
	dup.Products = append([]domain.InvoiceProduct{}, src.Products...)
	return dup
}

func cloneOrder(src domain.DealerOrder) domain.DealerOrder {
	dup := src
	dup.Items = append([]domain.DealerOrderItem{}, src.Items...)
	if src.TotalAmount != nil {
		total := *src.TotalAmount
		dup.TotalAmount = &total
	}
	if src.DueDate != nil {
		due := *src.DueDate
		dup.DueDate = &due
	}
	if src.DeliveredAt != nil {
		at := *src.DeliveredAt
		dup.DeliveredAt = &at
	}
	if src.CancelledAt != nil {
		at := *src.CancelledAt
		dup.CancelledAt = &at
	}
	return dup
}

func cloneSyncBatch(src domain.SyncBatch) *domain.SyncBatch {
	dup := src
	if src.Manifest != nil {
		manifest := *src.Manifest
		dup.Manifest = &manifest
	}
	if src.CompletedAt != nil {
		at := *src.CompletedAt
		dup.CompletedAt = &at
	}
	return &dup
}
