package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type CustomerFieldSettings struct {
	AddressMandatory bool `json:"address_mandatory"`
	EmailMandatory   bool `json:"email_mandatory"`
	GSTINMandatory   bool `json:"gstin_mandatory"`
}

type Client struct {
	ID                    string                `json:"id"`
	PhoneNumber           string                `json:"phone_number"`
	Name                  string                `json:"name"`
	BusinessName          string                `json:"business_name"`
	Email                 string                `json:"email"`
	Address               string                `json:"address"`
	GSTIN                 string                `json:"gstin"`
	IsActive              bool                  `json:"is_active"`
	CustomerFieldSettings CustomerFieldSettings `json:"customer_field_settings"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

type DeviceSession struct {
	ID            string     `json:"id"`
	ClientID      string     `json:"client_id"`
	DeviceID      string     `json:"device_id"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	LastSeenAt    time.Time  `json:"last_seen_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

type OtpPurpose string

const (
	OtpPurposeRegister OtpPurpose = "register"
	OtpPurposeLogin    OtpPurpose = "login"
)

func (p OtpPurpose) Valid() bool {
	return p == OtpPurposeRegister || p == OtpPurposeLogin
}

type OtpSession struct {
	PhoneNumber string     `json:"phone_number"`
	Purpose     OtpPurpose `json:"purpose"`
	OtpHash     string     `json:"otp_hash"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Attempts    int        `json:"attempts"`
	IsVerified  bool       `json:"is_verified"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Principal is the authenticated caller resolved from a session token.
type Principal struct {
	ClientID    string `json:"client_id"`
	PhoneNumber string `json:"phone_number"`
	SessionID   string `json:"session_id"`
}

type ItemGroup struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Item struct {
	ID               string          `json:"id"`
	ClientID         string          `json:"client_id"`
	Name             string          `json:"name"`
	SKU              string          `json:"sku"`
	Unit             string          `json:"unit"`
	Price            decimal.Decimal `json:"price"`
	Stock            int             `json:"stock"`
	LowStockQuantity int             `json:"low_stock_quantity"`
	GroupID          string          `json:"group_id,omitempty"`
	DealerIDs        []string        `json:"dealer_ids"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (i Item) IsLowStock() bool {
	return i.Stock <= i.LowStockQuantity
}

func (i Item) HasDealer(dealerID string) bool {
	for _, id := range i.DealerIDs {
		if id == dealerID {
			return true
		}
	}
	return false
}

// StockAdjustment is a signed stock delta; stores apply it atomically and never below zero.
type StockAdjustment struct {
	ItemID string `json:"item_id"`
	Delta  int    `json:"delta"`
}

type Cart struct {
	ID          string          `json:"id"`
	ClientID    string          `json:"client_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"item_count"`
	IsFinalized bool            `json:"is_finalized"`
	InvoiceID   string          `json:"invoice_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Items       []CartItem      `json:"items"`
}

type CartItem struct {
	ID        string          `json:"id"`
	CartID    string          `json:"cart_id"`
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
	IsActive  bool            `json:"is_active"`
	AddedAt   time.Time       `json:"added_at"`
}

// Recalculate rebuilds cart totals from its active lines.
func (c *Cart) Recalculate() {
	total := decimal.Zero
	count := 0
	for i := range c.Items {
		line := &c.Items[i]
		line.LineTotal = line.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		if !line.IsActive {
			continue
		}
		total = total.Add(line.LineTotal)
		count += line.Quantity
	}
	if total.IsNegative() {
		total = decimal.Zero
	}
	c.TotalAmount = total
	c.ItemCount = count
}

func (c Cart) ActiveItems() []CartItem {
	out := make([]CartItem, 0, len(c.Items))
	for _, line := range c.Items {
		if line.IsActive {
			out = append(out, line)
		}
	}
	return out
}

type InvoiceProduct struct {
	ItemID   string          `json:"item_id,omitempty"`
	Name     string          `json:"name"`
	Cost     decimal.Decimal `json:"cost"`
	Quantity int             `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
}

type Invoice struct {
	ID            string           `json:"id"`
	ClientID      string           `json:"client_id"`
	InvoiceNumber string           `json:"invoice_number"`
	CustomerID    string           `json:"customer_id"`
	CustomerName  string           `json:"customer_name"`
	CustomerPhone string           `json:"customer_phone"`
	CartID        string           `json:"cart_id,omitempty"`
	Products      []InvoiceProduct `json:"products"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	PaidAmount    decimal.Decimal  `json:"paid_amount"`
	IsFinalized   bool             `json:"is_finalized"`
	Note          string           `json:"note,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (inv Invoice) PendingAmount() decimal.Decimal {
	pending := inv.TotalAmount.Sub(inv.PaidAmount)
	if pending.IsNegative() {
		return decimal.Zero
	}
	return pending
}

func (inv *Invoice) Refinalize() {
	inv.IsFinalized = inv.PaidAmount.GreaterThanOrEqual(inv.TotalAmount)
}

type Payment struct {
	ID         string          `json:"id"`
	ClientID   string          `json:"client_id"`
	InvoiceID  string          `json:"invoice_id"`
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Note       string          `json:"note,omitempty"`
	PaidAt     time.Time       `json:"paid_at"`
}

type ClientCustomer struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Email     string    `json:"email"`
	GSTIN     string    `json:"gstin"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PurchaseHistory struct {
	ID            string          `json:"id"`
	ClientID      string          `json:"client_id"`
	CustomerID    string          `json:"customer_id"`
	InvoiceID     string          `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	ItemCount     int             `json:"item_count"`
	PurchasedAt   time.Time       `json:"purchased_at"`
}

// NewPurchaseHistory derives the write-once history row of a finalized invoice.
func NewPurchaseHistory(id string, inv Invoice, at time.Time) PurchaseHistory {
	count := 0
	for _, p := range inv.Products {
		count += p.Quantity
	}
	return PurchaseHistory{
		ID:            id,
		ClientID:      inv.ClientID,
		CustomerID:    inv.CustomerID,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		TotalAmount:   inv.TotalAmount,
		ItemCount:     count,
		PurchasedAt:   at,
	}
}

type Dealer struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	GSTIN     string    `json:"gstin"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DealerOrderStatus string

const (
	DealerOrderPending   DealerOrderStatus = "pending"
	DealerOrderDelivered DealerOrderStatus = "delivered"
	DealerOrderCancelled DealerOrderStatus = "cancelled"
)

type DealerOrder struct {
	ID           string            `json:"id"`
	ClientID     string            `json:"client_id"`
	DealerID     string            `json:"dealer_id"`
	Status       DealerOrderStatus `json:"status"`
	TotalAmount  *decimal.Decimal  `json:"total_amount,omitempty"`
	DueDate      *time.Time        `json:"due_date,omitempty"`
	Note         string            `json:"note,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	DeliveredAt  *time.Time        `json:"delivered_at,omitempty"`
	DeliveredBy  string            `json:"delivered_by,omitempty"`
	DeliveryNote string            `json:"delivery_note,omitempty"`
	CancelledAt  *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason string            `json:"cancel_reason,omitempty"`
	Items        []DealerOrderItem `json:"items"`
}

type DealerOrderItem struct {
	ID       string          `json:"id"`
	OrderID  string          `json:"order_id"`
	ItemID   string          `json:"item_id"`
	ItemName string          `json:"item_name"`
	Quantity int             `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// OrderDelivery carries the audit and billing fields set on pending -> delivered.
type OrderDelivery struct {
	DeliveredBy string
	DeliveredAt time.Time
	Note        string
	TotalAmount *decimal.Decimal
	DueDate     *time.Time
}

type DealerPayment struct {
	ID       string          `json:"id"`
	ClientID string          `json:"client_id"`
	DealerID string          `json:"dealer_id"`
	OrderID  string          `json:"order_id,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Method   string          `json:"method"`
	Note     string          `json:"note,omitempty"`
	PaidAt   time.Time       `json:"paid_at"`
}

type OrderPaymentStatus string

const (
	OrderPaymentNoBill  OrderPaymentStatus = "no-bill"
	OrderPaymentPending OrderPaymentStatus = "pending"
	OrderPaymentPartial OrderPaymentStatus = "partial"
	OrderPaymentPaid    OrderPaymentStatus = "paid"
)

type AuditLog struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

type SyncBatch struct {
	ClientID       string        `json:"client_id"`
	IdempotencyKey string        `json:"idempotency_key"`
	Completed      bool          `json:"completed"`
	Manifest       *SyncManifest `json:"manifest,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

type InvoiceFilter struct {
	CustomerID string
	// Status is "", "pending" (paid < total) or "paid" (paid >= total).
	Status string
	Limit  int
}

type PaymentFilter struct {
	InvoiceID  string
	CustomerID string
	From       *time.Time
	To         *time.Time
}

type DealerOrderFilter struct {
	DealerID string
	Status   DealerOrderStatus
}

func FormatInvoiceNumber(seq int) string {
	return fmt.Sprintf("INV-%06d", seq)
}
