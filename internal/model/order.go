package model

import (
	"fmt"
	"time"
)

// OrderStatus tracks a tailoring order through the workshop.
type OrderStatus string

const (
	OrderReceived   OrderStatus = "received"
	OrderInProgress OrderStatus = "in_progress"
	OrderReady      OrderStatus = "ready"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderReceived, OrderInProgress, OrderReady, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// Order is a piece of tailoring work commissioned by a customer.
type Order struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customer_id"`
	Status     OrderStatus `json:"status"`
	Total      float64     `json:"total"`
	OrderedAt  time.Time   `json:"ordered_at"`
	DeliveryAt *time.Time  `json:"delivery_at,omitempty"`
	Notes      string      `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Dirty bool `json:"-"`
}

// Validate checks the order's field values.
func (o *Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("id is required")
	}
	if o.CustomerID == "" {
		return fmt.Errorf("customer_id is required")
	}
	if !o.Status.Valid() {
		return fmt.Errorf("invalid status %q", o.Status)
	}
	if o.Total < 0 {
		return fmt.Errorf("total cannot be negative (got %.2f)", o.Total)
	}
	return nil
}

// OrderPatch describes a partial update to an order. Nil fields are
// left unchanged.
type OrderPatch struct {
	Status     *OrderStatus
	Total      *float64
	DeliveryAt *time.Time
	Notes      *string
}
