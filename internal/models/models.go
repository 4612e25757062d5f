package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog item. StockUnits is the single source of
// truth for availability; it is only mutated inside transactions that also
// append an inventory movement.
type Product struct {
	ID           int64           `db:"id" json:"id"`
	Code         string          `db:"code" json:"code"`
	Name         string          `db:"name" json:"name"`
	CostPrice    decimal.Decimal `db:"cost_price" json:"cost_price"`
	VATRate      decimal.Decimal `db:"vat_rate" json:"vat_rate"`
	CashbackRate decimal.Decimal `db:"cashback_rate" json:"cashback_rate"`
	StockUnits   int             `db:"stock_units" json:"stock_units"`
	ReorderLevel int             `db:"reorder_level" json:"reorder_level"`
	IsActive     bool            `db:"is_active" json:"is_active"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// PricingTier is a quantity band for a product. MaxQuantity is NULL for the
// open-ended top band.
type PricingTier struct {
	ID           int64           `db:"id" json:"id"`
	ProductID    int64           `db:"product_id" json:"product_id"`
	TierName     string          `db:"tier_name" json:"tier_name"`
	MinQuantity  int             `db:"min_quantity" json:"min_quantity"`
	MaxQuantity  sql.NullInt64   `db:"max_quantity" json:"max_quantity,omitempty"`
	SellingPrice decimal.Decimal `db:"selling_price" json:"selling_price"`
}

// Contains reports whether the tier's quantity band covers q.
func (t PricingTier) Contains(q int) bool {
	if q < t.MinQuantity {
		return false
	}
	return !t.MaxQuantity.Valid || q <= int(t.MaxQuantity.Int64)
}

// Order represents a placed order. Monetary fields are the VAT-exclusive
// subtotal, VAT amount, their sum, and the cashback earned.
type Order struct {
	ID             int64           `db:"id" json:"id"`
	OrderNumber    string          `db:"order_number" json:"order_number"`
	CustomerID     int64           `db:"customer_id" json:"customer_id"`
	SalesAgentID   sql.NullInt64   `db:"sales_agent_id" json:"sales_agent_id,omitempty"`
	Status         string          `db:"status" json:"status"`
	PaymentStatus  string          `db:"payment_status" json:"payment_status"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	VATAmount      decimal.Decimal `db:"vat_amount" json:"vat_amount"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	CashbackAmount decimal.Decimal `db:"cashback_amount" json:"cashback_amount"`
	ShippingAddr   string          `db:"shipping_address" json:"shipping_address"`
	BillingAddr    sql.NullString  `db:"billing_address" json:"billing_address,omitempty"`
	Notes          sql.NullString  `db:"notes" json:"notes,omitempty"`
	TrackingNumber sql.NullString  `db:"tracking_number" json:"tracking_number,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem is one priced line of an order, immutable once placed.
type OrderItem struct {
	ID             int64           `db:"id" json:"id"`
	OrderID        int64           `db:"order_id" json:"order_id"`
	ProductID      int64           `db:"product_id" json:"product_id"`
	Quantity       int             `db:"quantity" json:"quantity"`
	UnitPrice      decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice     decimal.Decimal `db:"total_price" json:"total_price"`
	CashbackAmount decimal.Decimal `db:"cashback_amount" json:"cashback_amount"`
}

// CustomerAgentSequence counts a customer's orders under one sales agent.
// The counter is the sole input to commission rate selection.
type CustomerAgentSequence struct {
	CustomerID    int64     `db:"customer_id" json:"customer_id"`
	SalesAgentID  int64     `db:"sales_agent_id" json:"sales_agent_id"`
	OrderSequence int       `db:"order_sequence" json:"order_sequence"`
	LastOrderDate time.Time `db:"last_order_date" json:"last_order_date"`
}

// Commission records a pending payout for a sales agent on one order.
type Commission struct {
	ID               int64           `db:"id" json:"id"`
	SalesAgentID     int64           `db:"sales_agent_id" json:"sales_agent_id"`
	CustomerID       int64           `db:"customer_id" json:"customer_id"`
	OrderID          int64           `db:"order_id" json:"order_id"`
	OrderSequence    int             `db:"order_sequence" json:"order_sequence"`
	Rate             decimal.Decimal `db:"rate" json:"rate"`
	OrderAmount      decimal.Decimal `db:"order_amount" json:"order_amount"`
	CommissionAmount decimal.Decimal `db:"commission_amount" json:"commission_amount"`
	Status           string          `db:"status" json:"status"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// WalletTransaction is one append-only row of the wallet ledger. The user's
// balance is always derived by summation over these rows; BalanceBefore and
// BalanceAfter are audit snapshots, never authoritative.
type WalletTransaction struct {
	ID            int64           `db:"id" json:"id"`
	UserID        int64           `db:"user_id" json:"user_id"`
	Type          string          `db:"transaction_type" json:"transaction_type"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before" json:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after" json:"balance_after"`
	ReferenceType sql.NullString  `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID   sql.NullInt64   `db:"reference_id" json:"reference_id,omitempty"`
	Description   string          `db:"description" json:"description"`
	Status        string          `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// InventoryMovement is one append-only audit row for a stock mutation.
// Quantity is signed: positive for in/adjust-up, negative for out/adjust-down.
type InventoryMovement struct {
	ID            int64          `db:"id" json:"id"`
	ProductID     int64          `db:"product_id" json:"product_id"`
	MovementType  string         `db:"movement_type" json:"movement_type"`
	Quantity      int            `db:"quantity" json:"quantity"`
	ReferenceType sql.NullString `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID   sql.NullInt64  `db:"reference_id" json:"reference_id,omitempty"`
	Notes         sql.NullString `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// Payment tracks one gateway payment attempt, keyed by the gateway's
// checkout/transaction reference for callback idempotency.
type Payment struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	Provider    string          `db:"provider" json:"provider"`
	ExternalRef string          `db:"external_ref" json:"external_ref"`
	PhoneNumber string          `db:"phone_number" json:"phone_number"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Status      string          `db:"status" json:"status"`
	ResultDesc  sql.NullString  `db:"result_desc" json:"result_desc,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Payment statuses on the order
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Gateway payment row statuses
const (
	GatewayPaymentPending   = "pending"
	GatewayPaymentCompleted = "completed"
	GatewayPaymentFailed    = "failed"
)

// Payment providers
const (
	ProviderMpesa = "mpesa"
	ProviderKCB   = "kcb"
)

// Wallet transaction types
const (
	WalletTxCredit     = "credit"
	WalletTxDebit      = "debit"
	WalletTxCashback   = "cashback"
	WalletTxWithdrawal = "withdrawal"
)

// Wallet transaction statuses
const (
	WalletTxCompleted = "completed"
	WalletTxReversed  = "reversed"
)

// Inventory movement types
const (
	MovementIn         = "in"
	MovementOut        = "out"
	MovementAdjustment = "adjustment"
)

// Movement reference types
const (
	MovementRefOrder             = "order"
	MovementRefOrderCancellation = "order_cancellation"
	MovementRefManualAdjustment  = "manual_adjustment"
)

// Commission statuses
const (
	CommissionPending   = "pending"
	CommissionPaid      = "paid"
	CommissionCancelled = "cancelled"
)

// CancellableStatuses are the order statuses a cancellation is permitted from.
var CancellableStatuses = map[string]bool{
	OrderStatusPending:    true,
	OrderStatusConfirmed:  true,
	OrderStatusProcessing: true,
}

// statusRank orders the forward path of the order lifecycle.
var statusRank = map[string]int{
	OrderStatusPending:    0,
	OrderStatusConfirmed:  1,
	OrderStatusProcessing: 2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

// ValidStatusTransition reports whether an order may move from one status to
// another: forward along the lifecycle, or to cancelled from an early status.
func ValidStatusTransition(from, to string) bool {
	if to == OrderStatusCancelled {
		return CancellableStatuses[from]
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank == fromRank+1
}

// ValidPaymentTransition reports whether an order's payment status may move
// from one state to another. Paid and failed are reached from pending only;
// refunded is the sole exit from paid.
func ValidPaymentTransition(from, to string) bool {
	switch to {
	case PaymentStatusPaid:
		return from == PaymentStatusPending
	case PaymentStatusFailed:
		return from == PaymentStatusPending
	case PaymentStatusRefunded:
		return from == PaymentStatusPaid
	}
	return false
}
