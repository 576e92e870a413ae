// Package model provides the synchronized record types for stitchsync.
//
// Three entity kinds are synchronized between the local store and the
// remote backend: customers, invoices, and orders. All three share the
// same lifecycle: created locally with a locally-generated id, stamped
// with created/updated timestamps, and carried over the wire inside an
// Envelope. The updated_at timestamp is the sole conflict-resolution
// signal (last write wins).
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies one of the synchronized entity kinds.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindInvoice  Kind = "invoice"
	KindOrder    Kind = "order"
)

// Kinds returns all synchronized entity kinds in push order.
func Kinds() []Kind {
	return []Kind{KindCustomer, KindInvoice, KindOrder}
}

// Valid reports whether k names a known entity kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCustomer, KindInvoice, KindOrder:
		return true
	}
	return false
}

// ParseKind converts a user-supplied string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown entity kind %q (want customer, invoice, or order)", s)
	}
	return k, nil
}

// NewID returns a locally-generated globally unique record id.
//
// Records may be created while offline, so ids must never require a
// remote round-trip.
func NewID() string {
	return uuid.NewString()
}

// Envelope is the kind-agnostic record shape used by the sync engine
// and the remote gateway. Payload holds the entity-specific fields as
// JSON; the local-only dirty flag is never part of an envelope.
type Envelope struct {
	Kind      Kind            `json:"kind"`
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Deleted reports whether this envelope carries a tombstone.
func (e *Envelope) Deleted() bool {
	return e.DeletedAt != nil
}

// Validate checks the envelope's common fields.
func (e *Envelope) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("invalid kind %q", e.Kind)
	}
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if e.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	return nil
}
