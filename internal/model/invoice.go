package model

import (
	"fmt"
	"time"
)

// InvoiceStatus tracks how much of an invoice has been paid.
type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePartial InvoiceStatus = "partial"
	InvoicePaid    InvoiceStatus = "paid"
)

// Valid reports whether s is a known invoice status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoicePending, InvoicePartial, InvoicePaid:
		return true
	}
	return false
}

// Invoice is a bill issued to a customer.
//
// Number is assigned locally from the store's counter when the invoice
// is created; it is unique per store instance. The id remains the
// globally unique key used for sync.
type Invoice struct {
	ID         string        `json:"id"`
	Number     string        `json:"invoice_number"`
	CustomerID string        `json:"customer_id"`
	Total      float64       `json:"total"`
	PaidAmount float64       `json:"paid_amount"`
	Status     InvoiceStatus `json:"status"`
	IssuedAt   time.Time     `json:"issued_at"`
	DueAt      *time.Time    `json:"due_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Dirty bool `json:"-"`
}

// Validate checks the invoice's field values.
func (i *Invoice) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("id is required")
	}
	if i.Number == "" {
		return fmt.Errorf("invoice_number is required")
	}
	if i.CustomerID == "" {
		return fmt.Errorf("customer_id is required")
	}
	if i.Total < 0 {
		return fmt.Errorf("total cannot be negative (got %.2f)", i.Total)
	}
	if i.PaidAmount < 0 {
		return fmt.Errorf("paid_amount cannot be negative (got %.2f)", i.PaidAmount)
	}
	if i.PaidAmount > i.Total {
		return fmt.Errorf("paid_amount %.2f exceeds total %.2f", i.PaidAmount, i.Total)
	}
	if !i.Status.Valid() {
		return fmt.Errorf("invalid status %q", i.Status)
	}
	return nil
}

// StatusForPayment derives the invoice status from amounts.
func StatusForPayment(total, paid float64) InvoiceStatus {
	switch {
	case paid <= 0:
		return InvoicePending
	case paid < total:
		return InvoicePartial
	default:
		return InvoicePaid
	}
}

// InvoicePatch describes a partial update to an invoice. Nil fields
// are left unchanged. Number, customer linkage, and identity fields
// cannot be patched.
type InvoicePatch struct {
	Total      *float64
	PaidAmount *float64
	Status     *InvoiceStatus
	DueAt      *time.Time
}
