package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated         = "ORDER_CREATED"
	EventTypeOrderStatusChanged   = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled       = "ORDER_CANCELLED"
	EventTypeOrderArchived        = "ORDER_ARCHIVED"
	EventTypeMessageCreated       = "MESSAGE_CREATED"
	EventTypeMessageStatusChanged = "MESSAGE_STATUS_CHANGED"
	EventTypeMessageArchived      = "MESSAGE_ARCHIVED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published after checkout commits
type OrderCreatedEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
	Items   []StockLine     `json:"items"`
}

// OrderStatusChangedEvent published on every order status change
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID   string      `json:"order_id"`
	OldStatus OrderStatus `json:"old_status"`
	NewStatus OrderStatus `json:"new_status"`
}

// OrderCancelledEvent published when stock was restored for an order
type OrderCancelledEvent struct {
	BaseEvent
	OrderID string      `json:"order_id"`
	Items   []StockLine `json:"items"`
	Skipped []string    `json:"skipped,omitempty"`
}

// ArchivedEvent published when an order or message moves to history
type ArchivedEvent struct {
	BaseEvent
	ID     string `json:"id"`
	Status string `json:"status"`
}

// MessageCreatedEvent published when the contact form is submitted
type MessageCreatedEvent struct {
	BaseEvent
	MessageID string `json:"message_id"`
	Service   string `json:"service"`
}

// MessageStatusChangedEvent published on every message status change
type MessageStatusChangedEvent struct {
	BaseEvent
	MessageID string        `json:"message_id"`
	OldStatus MessageStatus `json:"old_status"`
	NewStatus MessageStatus `json:"new_status"`
}

// StockLine is a product stock movement carried by events
type StockLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Stock     int    `json:"stock"`
}
