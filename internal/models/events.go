package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated     = "ORDER_CREATED"
	EventTypeOrderApproved    = "ORDER_APPROVED"
	EventTypeOrderCancelled   = "ORDER_CANCELLED"
	EventTypeStockDecremented = "STOCK_DECREMENTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is built from a cart
type OrderCreatedEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	UserID  string          `json:"user_id"`
	Total   decimal.Decimal `json:"total"`
	Freight decimal.Decimal `json:"freight"`
	Items   []OrderItemData `json:"items"`
}

// OrderApprovedEvent published when a payment approval is applied
type OrderApprovedEvent struct {
	BaseEvent
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	PaymentID string          `json:"payment_id"`
	Total     decimal.Decimal `json:"total"`
}

// OrderCancelledEvent published when lazy expiry cancels a pending order
type OrderCancelledEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Reason  string `json:"reason"`
}

// StockDecrementedEvent published for each line decremented on approval
type StockDecrementedEvent struct {
	BaseEvent
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	NewStock  int    `json:"new_stock"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
