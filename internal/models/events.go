package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated     = "ORDER_CREATED"
	EventTypeOrderCancelled   = "ORDER_CANCELLED"
	EventTypePaymentConfirmed = "PAYMENT_CONFIRMED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
	EventTypeCashbackCredited = "CASHBACK_CREDITED"
	EventTypeStockMoved       = "STOCK_MOVED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published after the order transaction commits
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  int64           `json:"customer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Cashback    decimal.Decimal `json:"cashback"`
	Items       []OrderItemData `json:"items"`
}

// OrderCancelledEvent published when an order is cancelled and stock restored
type OrderCancelledEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	CustomerID int64  `json:"customer_id"`
	Reason     string `json:"reason"`
}

// PaymentConfirmedEvent published when a gateway callback marks a payment paid
type PaymentConfirmedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	PaymentID   int64           `json:"payment_id"`
	Provider    string          `json:"provider"`
	ExternalRef string          `json:"external_ref"`
	Amount      decimal.Decimal `json:"amount"`
}

// PaymentFailedEvent published on a terminal gateway failure callback
type PaymentFailedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	PaymentID   int64  `json:"payment_id"`
	Provider    string `json:"provider"`
	ExternalRef string `json:"external_ref"`
	Reason      string `json:"reason"`
}

// CashbackCreditedEvent published when cashback lands in the wallet ledger
type CashbackCreditedEvent struct {
	BaseEvent
	UserID  int64           `json:"user_id"`
	OrderID int64           `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// StockMovedEvent published for every committed stock mutation. StockAfter
// is the counter value after the movement; the snapshot worker mirrors it
// into Redis.
type StockMovedEvent struct {
	BaseEvent
	ProductID    int64  `json:"product_id"`
	MovementType string `json:"movement_type"`
	Quantity     int    `json:"quantity"`
	StockAfter   int    `json:"stock_after"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
