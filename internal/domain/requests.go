package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type IssueOtpRequest struct {
	PhoneNumber string     `json:"phone_number" validate:"required,min=6,max=20"`
	Purpose     OtpPurpose `json:"purpose" validate:"required,oneof=register login"`
}

type IssueOtpResponse struct {
	PhoneNumber string     `json:"phone_number"`
	Purpose     OtpPurpose `json:"purpose"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Delivered   bool       `json:"delivered"`
}

type VerifyOtpRequest struct {
	PhoneNumber string     `json:"phone_number" validate:"required,min=6,max=20"`
	Otp         string     `json:"otp" validate:"required,numeric"`
	Purpose     OtpPurpose `json:"purpose" validate:"required,oneof=register login"`
	Consume     bool       `json:"consume"`
}

type RegisterRequest struct {
	PhoneNumber  string `json:"phone_number" validate:"required,min=6,max=20"`
	Otp          string `json:"otp" validate:"required,numeric"`
	DeviceID     string `json:"device_id" validate:"required,max=128"`
	Name         string `json:"name" validate:"required,max=120"`
	BusinessName string `json:"business_name" validate:"max=160"`
	Email        string `json:"email" validate:"omitempty,email"`
	Address      string `json:"address" validate:"max=500"`
	GSTIN        string `json:"gstin" validate:"omitempty,len=15"`
}

type LoginRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=6,max=20"`
	Otp         string `json:"otp" validate:"required,numeric"`
	DeviceID    string `json:"device_id" validate:"required,max=128"`
}

type AuthResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Client    Client        `json:"client"`
	Session   DeviceSession `json:"session"`
}

type ProfileUpdateRequest struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	BusinessName *string `json:"business_name,omitempty" validate:"omitempty,max=160"`
	Email        *string `json:"email,omitempty" validate:"omitempty,max=254"`
	Address      *string `json:"address,omitempty" validate:"omitempty,max=500"`
	GSTIN        *string `json:"gstin,omitempty" validate:"omitempty,max=15"`
}

type ItemGroupCreateRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=500"`
}

type ItemGroupUpdateRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

type ItemCreateRequest struct {
	LocalID          string          `json:"local_id,omitempty"`
	Name             string          `json:"name" validate:"required,max=160"`
	SKU              string          `json:"sku" validate:"max=64"`
	Unit             string          `json:"unit" validate:"max=32"`
	Price            decimal.Decimal `json:"price"`
	Stock            int             `json:"stock" validate:"gte=0"`
	LowStockQuantity int             `json:"low_stock_quantity" validate:"gte=0"`
	GroupID          string          `json:"group_id,omitempty"`
	DealerIDs        []string        `json:"dealer_ids,omitempty"`
}

// ItemUpdateRequest is partial: nil fields are left untouched.
type ItemUpdateRequest struct {
	Name             *string          `json:"name,omitempty" validate:"omitempty,min=1,max=160"`
	SKU              *string          `json:"sku,omitempty" validate:"omitempty,max=64"`
	Unit             *string          `json:"unit,omitempty" validate:"omitempty,max=32"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	Stock            *int             `json:"stock,omitempty" validate:"omitempty,gte=0"`
	LowStockQuantity *int             `json:"low_stock_quantity,omitempty" validate:"omitempty,gte=0"`
	GroupID          *string          `json:"group_id,omitempty"`
	DealerIDs        *[]string        `json:"dealer_ids,omitempty"`
	IsActive         *bool            `json:"is_active,omitempty"`
}

type CartAddItemRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

// CustomerRef resolves an invoice customer by id, then phone, then name.
type CustomerRef struct {
	CustomerID string `json:"customer_id,omitempty"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Name       string `json:"name,omitempty" validate:"omitempty,max=160"`
	Address    string `json:"address,omitempty" validate:"omitempty,max=500"`
	Email      string `json:"email,omitempty" validate:"omitempty,max=254"`
	GSTIN      string `json:"gstin,omitempty" validate:"omitempty,max=15"`
}

func (r CustomerRef) Empty() bool {
	return r.CustomerID == "" && r.Phone == "" && r.Name == ""
}

type CustomerCreateRequest struct {
	Name    string `json:"name" validate:"required,max=160"`
	Phone   string `json:"phone" validate:"max=20"`
	Address string `json:"address" validate:"max=500"`
	Email   string `json:"email" validate:"omitempty,email"`
	GSTIN   string `json:"gstin" validate:"max=15"`
}

type CustomerUpdateRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,min=1,max=160"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=500"`
	Email   *string `json:"email,omitempty" validate:"omitempty,max=254"`
	GSTIN   *string `json:"gstin,omitempty" validate:"omitempty,max=15"`
}

type InvoiceProductInput struct {
	ItemID      string           `json:"item_id,omitempty"`
	LocalItemID string           `json:"local_item_id,omitempty"`
	Name        string           `json:"name,omitempty" validate:"omitempty,max=160"`
	Cost        *decimal.Decimal `json:"cost,omitempty"`
	Quantity    int              `json:"quantity" validate:"gt=0"`
}

// InvoiceCreateRequest builds an invoice from CartID or, when empty, from Products.
type InvoiceCreateRequest struct {
	LocalID       string                `json:"local_id,omitempty"`
	CartID        string                `json:"cart_id,omitempty"`
	Products      []InvoiceProductInput `json:"products,omitempty" validate:"omitempty,dive"`
	Customer      CustomerRef           `json:"customer"`
	TotalAmount   *decimal.Decimal      `json:"total_amount,omitempty"`
	PaidAmount    *decimal.Decimal      `json:"paid_amount,omitempty"`
	PaymentMethod string                `json:"payment_method,omitempty" validate:"omitempty,max=32"`
	InvoiceNumber string                `json:"invoice_number,omitempty" validate:"omitempty,max=40"`
	Note          string                `json:"note,omitempty" validate:"omitempty,max=500"`
}

type PaymentCreateRequest struct {
	LocalID        string          `json:"local_id,omitempty"`
	InvoiceID      string          `json:"invoice_id,omitempty"`
	InvoiceLocalID string          `json:"invoice_local_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method,omitempty" validate:"omitempty,max=32"`
	Note           string          `json:"note,omitempty" validate:"omitempty,max=500"`
}

type PaymentResponse struct {
	Payment Payment `json:"payment"`
	Invoice Invoice `json:"invoice"`
}

type InvoiceBalance struct {
	Invoice
	PendingAmount decimal.Decimal `json:"pending_amount"`
}

type CustomerInvoicesResponse struct {
	CustomerID    string           `json:"customer_id"`
	Status        string           `json:"status"`
	Invoices      []InvoiceBalance `json:"invoices"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	PaidAmount    decimal.Decimal  `json:"paid_amount"`
	PendingAmount decimal.Decimal  `json:"pending_amount"`
}

type PaymentHistory struct {
	Payments       []Payment                  `json:"payments"`
	Count          int                        `json:"count"`
	TotalPaid      decimal.Decimal            `json:"total_paid"`
	AverageAmount  decimal.Decimal            `json:"average_amount"`
	ByMethod       map[string]decimal.Decimal `json:"by_method"`
	FirstPaymentAt *time.Time                 `json:"first_payment_at,omitempty"`
	LastPaymentAt  *time.Time                 `json:"last_payment_at,omitempty"`
}

type DealerCreateRequest struct {
	Name    string `json:"name" validate:"required,max=160"`
	Phone   string `json:"phone" validate:"max=20"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"max=500"`
	GSTIN   string `json:"gstin" validate:"max=15"`
}

type DealerUpdateRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=160"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email    *string `json:"email,omitempty" validate:"omitempty,max=254"`
	Address  *string `json:"address,omitempty" validate:"omitempty,max=500"`
	GSTIN    *string `json:"gstin,omitempty" validate:"omitempty,max=15"`
	IsActive *bool   `json:"is_active,omitempty"`
}

type DealerOrderLineInput struct {
	ItemID   string           `json:"item_id" validate:"required"`
	Quantity int              `json:"quantity" validate:"gt=0"`
	UnitCost *decimal.Decimal `json:"unit_cost,omitempty"`
}

type DealerOrderCreateRequest struct {
	DealerID string                 `json:"dealer_id" validate:"required"`
	Lines    []DealerOrderLineInput `json:"lines" validate:"required,min=1,dive"`
	Note     string                 `json:"note,omitempty" validate:"omitempty,max=500"`
}

type DeliverOrderRequest struct {
	TotalAmount *decimal.Decimal `json:"total_amount,omitempty"`
	DueDate     *time.Time       `json:"due_date,omitempty"`
	Note        string           `json:"note,omitempty" validate:"omitempty,max=500"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type DealerPaymentRequest struct {
	OrderID string          `json:"order_id,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"method,omitempty" validate:"omitempty,max=32"`
	Note    string          `json:"note,omitempty" validate:"omitempty,max=500"`
}

type DealerSummary struct {
	Dealer          Dealer          `json:"dealer"`
	OrderCount      int             `json:"order_count"`
	PendingOrders   int             `json:"pending_orders"`
	DeliveredOrders int             `json:"delivered_orders"`
	CancelledOrders int             `json:"cancelled_orders"`
	TotalOrdered    decimal.Decimal `json:"total_ordered"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	Payable         decimal.Decimal `json:"payable"`
}

type OrderPaymentSummary struct {
	OrderID     string             `json:"order_id"`
	DealerID    string             `json:"dealer_id"`
	Status      OrderPaymentStatus `json:"status"`
	TotalAmount *decimal.Decimal   `json:"total_amount,omitempty"`
	TotalPaid   decimal.Decimal    `json:"total_paid"`
	Remaining   decimal.Decimal    `json:"remaining"`
}

type ReorderSuggestion struct {
	ItemID        string          `json:"item_id"`
	Name          string          `json:"name"`
	DealerID      string          `json:"dealer_id,omitempty"`
	Stock         int             `json:"stock"`
	LowStockLevel int             `json:"low_stock_level"`
	OnOrder       int             `json:"on_order"`
	SuggestedQty  int             `json:"suggested_qty"`
	LastUnitCost  decimal.Decimal `json:"last_unit_cost"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
}

type ReorderSuggestionResponse struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Suggestions []ReorderSuggestion `json:"suggestions"`
}

type Dashboard struct {
	InvoiceCount      int             `json:"invoice_count"`
	TotalSales        decimal.Decimal `json:"total_sales"`
	TotalReceived     decimal.Decimal `json:"total_received"`
	Receivable        decimal.Decimal `json:"receivable"`
	DealerPayable     decimal.Decimal `json:"dealer_payable"`
	LowStockItems     int             `json:"low_stock_items"`
	CustomerCount     int             `json:"customer_count"`
	PendingInvoices   int             `json:"pending_invoices"`
	PendingDeliveries int             `json:"pending_deliveries"`
}
