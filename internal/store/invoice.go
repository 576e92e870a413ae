package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aliakbrhasan/stitchsync/internal/model"
)

const invoiceColumns = `id, invoice_number, customer_id, total, paid_amount,
       status, issued_at, due_at, created_at, updated_at, dirty`

// InsertInvoice persists a new invoice.
//
// The invoice number is assigned from the store's local counter in the
// same transaction as the insert, so numbering works offline. The
// status defaults from the paid amount when unset.
func (s *Store) InsertInvoice(ctx context.Context, inv *model.Invoice) (*model.Invoice, error) {
	now := time.Now()
	if inv.ID == "" {
		inv.ID = model.NewID()
	}
	if inv.IssuedAt.IsZero() {
		inv.IssuedAt = now
	}
	if inv.Status == "" {
		inv.Status = model.StatusForPayment(inv.Total, inv.PaidAmount)
	}
	inv.CreatedAt = now
	inv.UpdatedAt = now
	inv.Dirty = true

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if inv.Number == "" {
			n, err := nextCounter(tx, "invoice_number")
			if err != nil {
				return err
			}
			inv.Number = fmt.Sprintf("INV-%06d", n)
		}
		if err := inv.Validate(); err != nil {
			return fmt.Errorf("invalid invoice: %w", err)
		}

		query := `
		INSERT INTO invoices (id, invoice_number, customer_id, total,
			paid_amount, status, issued_at, due_at, created_at, updated_at, dirty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		`
		if _, err := tx.ExecContext(ctx, query,
			inv.ID, inv.Number, inv.CustomerID, inv.Total, inv.PaidAmount,
			string(inv.Status), inv.IssuedAt.Format(timeFormat),
			timeToNullString(inv.DueAt),
			inv.CreatedAt.Format(timeFormat), inv.UpdatedAt.Format(timeFormat),
		); err != nil {
			return fmt.Errorf("failed to insert invoice: %w", err)
		}
		return appendChange(ctx, tx, model.KindInvoice, inv.ID, OpCreate, now)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// UpdateInvoice merges the patch into an existing invoice. Identity,
// number, and customer linkage are immutable. Returns ErrNotFound when
// the id does not exist (or is tombstoned).
func (s *Store) UpdateInvoice(ctx context.Context, id string, patch model.InvoicePatch) (*model.Invoice, error) {
	now := time.Now()
	sets := []string{"updated_at = ?", "dirty = 1"}
	args := []interface{}{now.Format(timeFormat)}

	if patch.Total != nil {
		sets = append(sets, "total = ?")
		args = append(args, *patch.Total)
	}
	if patch.PaidAmount != nil {
		sets = append(sets, "paid_amount = ?")
		args = append(args, *patch.PaidAmount)
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, fmt.Errorf("invalid invoice status %q", *patch.Status)
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.DueAt != nil {
		sets = append(sets, "due_at = ?")
		args = append(args, patch.DueAt.Format(timeFormat))
	}
	args = append(args, id)

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		query := "UPDATE invoices SET " + strings.Join(sets, ", ") +
			" WHERE id = ? AND deleted_at IS NULL"
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update invoice %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("invoice %s: %w", id, ErrNotFound)
		}
		return appendChange(ctx, tx, model.KindInvoice, id, OpUpdate, now)
	})
	if err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, id)
}

// GetInvoice retrieves an invoice by id, excluding tombstoned rows.
func (s *Store) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
	          WHERE id = ? AND deleted_at IS NULL`
	row := s.conn.QueryRowContext(ctx, query, id)
	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice %s: %w", id, err)
	}
	return inv, nil
}

// ListInvoices returns all live invoices, newest created first. When
// customerID is non-empty, only that customer's invoices are returned.
func (s *Store) ListInvoices(ctx context.Context, customerID string) ([]*model.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE deleted_at IS NULL`
	var args []interface{}
	if customerID != "" {
		query += " AND customer_id = ?"
		args = append(args, customerID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}
	return invoices, nil
}

func scanInvoice(row rowScanner) (*model.Invoice, error) {
	var inv model.Invoice
	var status, issuedAt, createdAt, updatedAt string
	var dueAt sql.NullString
	var dirty int

	err := row.Scan(
		&inv.ID, &inv.Number, &inv.CustomerID, &inv.Total, &inv.PaidAmount,
		&status, &issuedAt, &dueAt, &createdAt, &updatedAt, &dirty,
	)
	if err != nil {
		return nil, err
	}

	inv.Status = model.InvoiceStatus(status)
	inv.IssuedAt = parseTime(issuedAt)
	inv.DueAt = nullStringToTime(dueAt)
	inv.CreatedAt = parseTime(createdAt)
	inv.UpdatedAt = parseTime(updatedAt)
	inv.Dirty = dirty != 0
	return &inv, nil
}
