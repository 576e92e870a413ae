package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Customer is a client of the tailoring shop.
//
// Measurements is an opaque JSON blob (chest, waist, sleeve, etc.)
// maintained by the presentation layer; the sync engine treats it as
// a single replicated field.
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Label   string `json:"label,omitempty"`
	Notes   string `json:"notes,omitempty"`

	Measurements json.RawMessage `json:"measurements,omitempty"`

	// TotalSpent is the running sum of payments recorded against
	// this customer's invoices.
	TotalSpent float64 `json:"total_spent"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Dirty is local-only: true means this record has changes not
	// yet confirmed present on the remote store.
	Dirty bool `json:"-"`
}

// Validate checks the customer's field values.
func (c *Customer) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(c.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(c.Name))
	}
	if c.TotalSpent < 0 {
		return fmt.Errorf("total_spent cannot be negative (got %.2f)", c.TotalSpent)
	}
	if len(c.Measurements) > 0 && !json.Valid(c.Measurements) {
		return fmt.Errorf("measurements must be valid JSON")
	}
	return nil
}

// CustomerPatch describes a partial update to a customer. Nil fields
// are left unchanged.
type CustomerPatch struct {
	Name         *string
	Phone        *string
	Address      *string
	Label        *string
	Notes        *string
	Measurements json.RawMessage
	TotalSpent   *float64
}
