// Package pos holds the point-of-sale business operations built on top
// of the record store. Everything here is local-only: the sync engine
// picks up the resulting dirty records on its own schedule.
package pos

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aliakbrhasan/stitchsync/internal/model"
	"github.com/aliakbrhasan/stitchsync/internal/store"
)

// Service wraps the store with tailoring-shop business rules.
type Service struct {
	store  *store.Store
	logger *log.Logger
}

// New creates a POS service. If logger is nil, a default logger
// writing to stderr is used.
func New(st *store.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[pos] ", log.LstdFlags)
	}
	return &Service{store: st, logger: logger}
}

// RecordPayment applies a payment against an invoice: the paid amount
// grows, the status is re-derived (pending, partial, paid), and the
// customer's running total_spent is increased by the same amount.
//
// Overpayment is rejected; amounts must be positive.
func (s *Service) RecordPayment(ctx context.Context, invoiceID string, amount float64) (*model.Invoice, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive (got %.2f)", amount)
	}

	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	remaining := inv.Total - inv.PaidAmount
	if amount > remaining {
		return nil, fmt.Errorf("payment %.2f exceeds remaining balance %.2f on invoice %s",
			amount, remaining, inv.Number)
	}

	newPaid := inv.PaidAmount + amount
	newStatus := model.StatusForPayment(inv.Total, newPaid)

	updated, err := s.store.UpdateInvoice(ctx, invoiceID, model.InvoicePatch{
		PaidAmount: &newPaid,
		Status:     &newStatus,
	})
	if err != nil {
		return nil, err
	}

	// Keep the customer's lifetime total in step. The invoice update
	// above already committed; a failure here leaves totals one
	// payment behind, which the next payment's read-modify-write does
	// not compound.
	cust, err := s.store.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		s.logger.Printf("Warning: invoice %s paid but customer %s not found: %v",
			inv.Number, inv.CustomerID, err)
		return updated, nil
	}
	newTotal := cust.TotalSpent + amount
	if _, err := s.store.UpdateCustomer(ctx, cust.ID, model.CustomerPatch{TotalSpent: &newTotal}); err != nil {
		s.logger.Printf("Warning: failed to update total spent for customer %s: %v", cust.ID, err)
	}

	s.logger.Printf("Payment of %.2f recorded on %s (status %s)", amount, updated.Number, updated.Status)
	return updated, nil
}

// CustomerSummary aggregates a customer's standing across invoices and
// orders.
type CustomerSummary struct {
	Customer     *model.Customer `json:"customer"`
	InvoiceCount int             `json:"invoice_count"`
	Outstanding  float64         `json:"outstanding"`
	OrderCount   int             `json:"order_count"`
	OpenOrders   int             `json:"open_orders"`
}

// Summary returns the customer's standing: invoice and order counts,
// and the total unpaid balance across their invoices.
func (s *Service) Summary(ctx context.Context, customerID string) (*CustomerSummary, error) {
	cust, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	invoices, err := s.store.ListInvoices(ctx, customerID)
	if err != nil {
		return nil, err
	}
	orders, err := s.store.ListOrders(ctx, customerID)
	if err != nil {
		return nil, err
	}

	summary := &CustomerSummary{
		Customer:     cust,
		InvoiceCount: len(invoices),
		OrderCount:   len(orders),
	}
	for _, inv := range invoices {
		summary.Outstanding += inv.Total - inv.PaidAmount
	}
	for _, o := range orders {
		if o.Status != model.OrderDelivered && o.Status != model.OrderCancelled {
			summary.OpenOrders++
		}
	}
	return summary, nil
}
