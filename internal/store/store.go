package store

import (
	"context"
	"time"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
)

var (
	ErrNotFound = apperr.ErrNotFound
	ErrConflict = apperr.ErrConflict
)

// ClientStore holds tenant roots. These are the only calls not scoped by clientID.
type ClientStore interface {
	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	GetClientByID(ctx context.Context, clientID string) (*domain.Client, error)
	GetClientByPhone(ctx context.Context, phone string) (*domain.Client, error)
	UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
}

type SessionStore interface {
	// ActivateDeviceSession deactivates every other session of the client and stores
	// the given one as active, as a single atomic step.
	ActivateDeviceSession(ctx context.Context, session domain.DeviceSession) (*domain.DeviceSession, error)
	GetDeviceSession(ctx context.Context, clientID string, sessionID string) (*domain.DeviceSession, error)
	ListDeviceSessions(ctx context.Context, clientID string) ([]domain.DeviceSession, error)
	// DeactivateDeviceSession only flips an active session; an inactive one yields apperr.ErrAlreadyLoggedOut.
	DeactivateDeviceSession(ctx context.Context, clientID string, sessionID string, at time.Time) (*domain.DeviceSession, error)
	TouchDeviceSession(ctx context.Context, clientID string, sessionID string, at time.Time) error
}

type CatalogStore interface {
	CreateItemGroup(ctx context.Context, group domain.ItemGroup) (*domain.ItemGroup, error)
	GetItemGroup(ctx context.Context, clientID string, groupID string) (*domain.ItemGroup, error)
	UpdateItemGroup(ctx context.Context, group domain.ItemGroup) (*domain.ItemGroup, error)
	ListItemGroups(ctx context.Context, clientID string, includeInactive bool) ([]domain.ItemGroup, error)

	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	GetItem(ctx context.Context, clientID string, itemID string) (*domain.Item, error)
	GetItemsByIDs(ctx context.Context, clientID string, itemIDs []string) (map[string]domain.Item, error)
	// UpdateItem writes item's fields; the stored stock is replaced only when stock is non-nil.
	UpdateItem(ctx context.Context, item domain.Item, stock *int) (*domain.Item, error)
	ListItems(ctx context.Context, clientID string, includeInactive bool) ([]domain.Item, error)
}

type CustomerStore interface {
	CreateCustomer(ctx context.Context, customer domain.ClientCustomer) (*domain.ClientCustomer, error)
	GetCustomer(ctx context.Context, clientID string, customerID string) (*domain.ClientCustomer, error)
	FindCustomerByPhone(ctx context.Context, clientID string, phone string) (*domain.ClientCustomer, error)
	UpdateCustomer(ctx context.Context, customer domain.ClientCustomer) (*domain.ClientCustomer, error)
	ListCustomers(ctx context.Context, clientID string) ([]domain.ClientCustomer, error)
}

type CartStore interface {
	CreateCart(ctx context.Context, cart domain.Cart) (*domain.Cart, error)
	GetCart(ctx context.Context, clientID string, cartID string) (*domain.Cart, error)
	// AddCartItem merges into an active line of the same item (keeping its price snapshot)
	// or appends the line, then recomputes totals. Finalized carts yield apperr.ErrCartFinalized.
	AddCartItem(ctx context.Context, clientID string, cartID string, line domain.CartItem) (*domain.Cart, error)
	RemoveCartItem(ctx context.Context, clientID string, cartID string, lineID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, clientID string, cartID string) (*domain.Cart, error)
}

// InvoiceCreate is everything that must land together when an invoice is generated.
type InvoiceCreate struct {
	Invoice domain.Invoice
	// NewCustomer, when set, is inserted in the same step as the invoice's customer.
	NewCustomer    *domain.ClientCustomer
	OpeningPayment *domain.Payment
	Stock          []domain.StockAdjustment
	// CartID, when set, is finalized in the same step; an already finalized cart aborts the create.
	CartID string
	// HistoryID names the purchase history row written when the invoice is born finalized.
	HistoryID string
}

type InvoiceStore interface {
	// CreateInvoice assigns the next per-client invoice number when none is set.
	CreateInvoice(ctx context.Context, create InvoiceCreate) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, clientID string, invoiceID string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, clientID string, filter domain.InvoiceFilter) ([]domain.Invoice, error)
	// RecordPayment appends the payment and increments paid_amount atomically. A purchase
	// history row (historyID) is written only when this payment moves the invoice to finalized.
	RecordPayment(ctx context.Context, payment domain.Payment, historyID string) (*domain.Invoice, error)
	ListPayments(ctx context.Context, clientID string, filter domain.PaymentFilter) ([]domain.Payment, error)
	ListPurchaseHistory(ctx context.Context, clientID string, customerID string) ([]domain.PurchaseHistory, error)
}

type DealerStore interface {
	CreateDealer(ctx context.Context, dealer domain.Dealer) (*domain.Dealer, error)
	GetDealer(ctx context.Context, clientID string, dealerID string) (*domain.Dealer, error)
	UpdateDealer(ctx context.Context, dealer domain.Dealer) (*domain.Dealer, error)
	ListDealers(ctx context.Context, clientID string, includeInactive bool) ([]domain.Dealer, error)

	CreateDealerOrder(ctx context.Context, order domain.DealerOrder) (*domain.DealerOrder, error)
	GetDealerOrder(ctx context.Context, clientID string, orderID string) (*domain.DealerOrder, error)
	ListDealerOrders(ctx context.Context, clientID string, filter domain.DealerOrderFilter) ([]domain.DealerOrder, error)
	// DeliverDealerOrder moves pending -> delivered and increments every line's item stock
	// in one batched write. Any other status yields apperr.ErrInvalidTransition.
	DeliverDealerOrder(ctx context.Context, clientID string, orderID string, delivery domain.OrderDelivery) (*domain.DealerOrder, error)
	CancelDealerOrder(ctx context.Context, clientID string, orderID string, reason string, at time.Time) (*domain.DealerOrder, error)

	CreateDealerPayment(ctx context.Context, payment domain.DealerPayment) (*domain.DealerPayment, error)
	ListDealerPayments(ctx context.Context, clientID string, dealerID string, orderID string) ([]domain.DealerPayment, error)
}

type SyncStore interface {
	// ReserveSyncBatch claims an idempotency key. An existing key returns the stored batch
	// and apperr.ErrConflict.
	ReserveSyncBatch(ctx context.Context, batch domain.SyncBatch) (*domain.SyncBatch, error)
	CompleteSyncBatch(ctx context.Context, clientID string, key string, manifest domain.SyncManifest, at time.Time) error
	ReleaseSyncBatch(ctx context.Context, clientID string, key string) error
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, clientID string, limit int) ([]domain.AuditLog, error)
}

type Repository interface {
	ClientStore
	SessionStore
	CatalogStore
	CustomerStore
	CartStore
	InvoiceStore
	DealerStore
	SyncStore
	AuditStore
}
