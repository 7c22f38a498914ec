package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle position of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusContacted OrderStatus = "contacted"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether s belongs to the order status domain.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusContacted, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Next returns the status reached by advancing from s.
func (s OrderStatus) Next() (OrderStatus, bool) {
	switch s {
	case OrderStatusPending:
		return OrderStatusContacted, true
	case OrderStatusContacted:
		return OrderStatusCompleted, true
	}
	return "", false
}

// CanTransitionTo reports whether the workflow allows moving from s to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if next == OrderStatusCancelled {
		return !s.Terminal()
	}
	n, ok := s.Next()
	return ok && n == next
}

// OrderItem is a line item snapshot taken at checkout; price is fixed at order time.
type OrderItem struct {
	ProductID string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// MoneyScale is the number of decimal places stored for prices and totals
const MoneyScale = 2

// ValidMoney reports whether d is non-negative and fits MoneyScale without rounding.
func ValidMoney(d decimal.Decimal) bool {
	return !d.IsNegative() && d.Equal(d.Round(MoneyScale))
}

// Subtotal returns price * quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderItems is stored as a JSONB document
type OrderItems []OrderItem

// Value implements driver.Valuer.
func (items OrderItems) Value() (driver.Value, error) {
	if items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(items)
}

// Scan implements sql.Scanner.
func (items *OrderItems) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*items = OrderItems{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported order items type %T", src)
	}
	return json.Unmarshal(data, items)
}

// Total sums every line item subtotal.
func (items OrderItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Quantities merges quantities per product id, preserving first-seen order.
func (items OrderItems) Quantities() ([]string, map[string]int) {
	ids := make([]string, 0, len(items))
	qty := make(map[string]int, len(items))
	for _, item := range items {
		if _, seen := qty[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		qty[item.ProductID] += item.Quantity
	}
	return ids, qty
}

// Order represents a customer checkout request
type Order struct {
	ID            string          `db:"id" json:"id"`
	Items         OrderItems      `db:"items" json:"items"`
	Total         decimal.Decimal `db:"total" json:"total"`
	CustomerName  string          `db:"customer_name" json:"customerName"`
	CustomerPhone string          `db:"customer_phone" json:"customerPhone"`
	CustomerEmail string          `db:"customer_email" json:"customerEmail"`
	Notes         string          `db:"notes" json:"notes"`
	Status        OrderStatus     `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// ArchivedOrder is an immutable copy of an order moved to history
type ArchivedOrder struct {
	Order
	ArchivedAt time.Time `db:"archived_at" json:"archivedAt"`
}
