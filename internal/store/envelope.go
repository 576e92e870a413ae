package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aliakbrhasan/stitchsync/internal/model"
)

// This file is the sync-facing surface of the store: kind-agnostic
// operations over Envelope values. Unlike the UI-facing CRUD above,
// these paths include tombstoned rows, because deletions replicate.

// Delete soft-deletes a record of any kind: the row gets a deleted_at
// tombstone, updated_at is bumped, and the row is marked dirty so the
// deletion propagates on the next sync pass. A missing or already
// deleted id is a silent no-op; callers must not assume existence.
func (s *Store) Delete(ctx context.Context, kind model.Kind, id string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	now := time.Now()

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(
			`UPDATE %s SET deleted_at = ?, updated_at = ?, dirty = 1
			 WHERE id = ? AND deleted_at IS NULL`, table)
		res, err := tx.ExecContext(ctx, query,
			now.Format(timeFormat), now.Format(timeFormat), id)
		if err != nil {
			return fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check delete result: %w", err)
		}
		if n == 0 {
			return nil
		}
		return appendChange(ctx, tx, kind, id, OpDelete, now)
	})
}

// MarkClean clears the dirty flag after a confirmed push. Idempotent.
func (s *Store) MarkClean(ctx context.Context, kind model.Kind, id string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf("UPDATE %s SET dirty = 0 WHERE id = ?", table)
	if _, err := s.conn.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark %s %s clean: %w", kind, id, err)
	}
	return nil
}

// DirtyCount returns the number of unreconciled records across all
// entity kinds.
func (s *Store) DirtyCount(ctx context.Context) (int, error) {
	total := 0
	for _, kind := range model.Kinds() {
		table, err := tableFor(kind)
		if err != nil {
			return 0, err
		}
		var n int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE dirty = 1", table)
		if err := s.conn.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to count dirty %s rows: %w", kind, err)
		}
		total += n
	}
	return total, nil
}

// ListDirty returns envelopes for every unreconciled record of the
// given kind, tombstones included. Order is unspecified.
func (s *Store) ListDirty(ctx context.Context, kind model.Kind) ([]model.Envelope, error) {
	return s.listEnvelopes(ctx, kind, "dirty = 1", nil)
}

// ListAllEnvelopes returns every record of the given kind, tombstones
// included. Used by backup export. Order is unspecified.
func (s *Store) ListAllEnvelopes(ctx context.Context, kind model.Kind) ([]model.Envelope, error) {
	return s.listEnvelopes(ctx, kind, "1 = 1", nil)
}

// GetEnvelope retrieves one record of any kind as an envelope,
// tombstones included. Returns ErrNotFound when the id is unknown.
func (s *Store) GetEnvelope(ctx context.Context, kind model.Kind, id string) (*model.Envelope, error) {
	envs, err := s.listEnvelopes(ctx, kind, "id = ?", []interface{}{id})
	if err != nil {
		return nil, err
	}
	if len(envs) == 0 {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return &envs[0], nil
}

// listEnvelopes queries one kind's table and wraps each row in an
// Envelope with the entity-specific fields marshaled into Payload.
func (s *Store) listEnvelopes(ctx context.Context, kind model.Kind, where string, args []interface{}) ([]model.Envelope, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var columns string
	switch kind {
	case model.KindCustomer:
		columns = customerColumns
	case model.KindInvoice:
		columns = invoiceColumns
	case model.KindOrder:
		columns = orderColumns
	}

	query := fmt.Sprintf("SELECT %s, deleted_at FROM %s WHERE %s", columns, table, where)
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s envelopes: %w", kind, err)
	}
	defer rows.Close()

	var envs []model.Envelope
	for rows.Next() {
		env, err := scanEnvelope(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s envelope: %w", kind, err)
		}
		envs = append(envs, *env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s envelopes: %w", kind, err)
	}
	return envs, nil
}

// envelopeScanner scans typed columns plus the trailing deleted_at.
type envelopeScanner struct {
	rows *sql.Rows
	// deletedAt receives the extra column after the typed scan
	// destinations; populated by Scan below.
	deletedAt sql.NullString
}

func (e *envelopeScanner) Scan(dest ...interface{}) error {
	dest = append(dest, &e.deletedAt)
	return e.rows.Scan(dest...)
}

func scanEnvelope(kind model.Kind, rows *sql.Rows) (*model.Envelope, error) {
	scanner := &envelopeScanner{rows: rows}

	var (
		payload   interface{}
		id        string
		createdAt time.Time
		updatedAt time.Time
	)

	switch kind {
	case model.KindCustomer:
		c, err := scanCustomer(scanner)
		if err != nil {
			return nil, err
		}
		payload, id, createdAt, updatedAt = c, c.ID, c.CreatedAt, c.UpdatedAt
	case model.KindInvoice:
		inv, err := scanInvoice(scanner)
		if err != nil {
			return nil, err
		}
		payload, id, createdAt, updatedAt = inv, inv.ID, inv.CreatedAt, inv.UpdatedAt
	case model.KindOrder:
		o, err := scanOrder(scanner)
		if err != nil {
			return nil, err
		}
		payload, id, createdAt, updatedAt = o, o.ID, o.CreatedAt, o.UpdatedAt
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}

	return &model.Envelope{
		Kind:      kind,
		ID:        id,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		DeletedAt: nullStringToTime(scanner.deletedAt),
		Payload:   raw,
	}, nil
}

// ApplyEnvelope writes a full record from an envelope, inserting or
// replacing by id. The sync engine applies pulled remote records with
// dirty=false (pulled data is already reconciled); backup restore
// applies with dirty=true so restored rows re-push. The change log is
// not written: it records local mutations only.
func (s *Store) ApplyEnvelope(ctx context.Context, env *model.Envelope, dirty bool) error {
	if err := env.Validate(); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}

	dirtyVal := 0
	if dirty {
		dirtyVal = 1
	}

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		switch env.Kind {
		case model.KindCustomer:
			return applyCustomer(ctx, tx, env, dirtyVal)
		case model.KindInvoice:
			return applyInvoice(ctx, tx, env, dirtyVal)
		case model.KindOrder:
			return applyOrder(ctx, tx, env, dirtyVal)
		default:
			return fmt.Errorf("unknown entity kind %q", env.Kind)
		}
	})
}

func applyCustomer(ctx context.Context, tx *sql.Tx, env *model.Envelope, dirty int) error {
	var c model.Customer
	if err := json.Unmarshal(env.Payload, &c); err != nil {
		return fmt.Errorf("failed to unmarshal customer payload: %w", err)
	}

	query := `
	INSERT INTO customers (id, name, phone, address, label, notes,
		measurements, total_spent, created_at, updated_at, deleted_at, dirty)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		phone = excluded.phone,
		address = excluded.address,
		label = excluded.label,
		notes = excluded.notes,
		measurements = excluded.measurements,
		total_spent = excluded.total_spent,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		dirty = excluded.dirty
	`
	_, err := tx.ExecContext(ctx, query,
		env.ID, c.Name, c.Phone, c.Address, c.Label, c.Notes,
		rawJSONToNullString(c.Measurements), c.TotalSpent,
		env.CreatedAt.Format(timeFormat), env.UpdatedAt.Format(timeFormat),
		timeToNullString(env.DeletedAt), dirty,
	)
	if err != nil {
		return fmt.Errorf("failed to apply customer %s: %w", env.ID, err)
	}
	return nil
}

func applyInvoice(ctx context.Context, tx *sql.Tx, env *model.Envelope, dirty int) error {
	var inv model.Invoice
	if err := json.Unmarshal(env.Payload, &inv); err != nil {
		return fmt.Errorf("failed to unmarshal invoice payload: %w", err)
	}

	query := `
	INSERT INTO invoices (id, invoice_number, customer_id, total, paid_amount,
		status, issued_at, due_at, created_at, updated_at, deleted_at, dirty)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		invoice_number = excluded.invoice_number,
		customer_id = excluded.customer_id,
		total = excluded.total,
		paid_amount = excluded.paid_amount,
		status = excluded.status,
		issued_at = excluded.issued_at,
		due_at = excluded.due_at,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		dirty = excluded.dirty
	`
	_, err := tx.ExecContext(ctx, query,
		env.ID, inv.Number, inv.CustomerID, inv.Total, inv.PaidAmount,
		string(inv.Status), inv.IssuedAt.Format(timeFormat),
		timeToNullString(inv.DueAt),
		env.CreatedAt.Format(timeFormat), env.UpdatedAt.Format(timeFormat),
		timeToNullString(env.DeletedAt), dirty,
	)
	if err != nil {
		return fmt.Errorf("failed to apply invoice %s: %w", env.ID, err)
	}
	return nil
}

func applyOrder(ctx context.Context, tx *sql.Tx, env *model.Envelope, dirty int) error {
	var o model.Order
	if err := json.Unmarshal(env.Payload, &o); err != nil {
		return fmt.Errorf("failed to unmarshal order payload: %w", err)
	}

	query := `
	INSERT INTO orders (id, customer_id, status, total, ordered_at,
		delivery_at, notes, created_at, updated_at, deleted_at, dirty)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		customer_id = excluded.customer_id,
		status = excluded.status,
		total = excluded.total,
		ordered_at = excluded.ordered_at,
		delivery_at = excluded.delivery_at,
		notes = excluded.notes,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		dirty = excluded.dirty
	`
	_, err := tx.ExecContext(ctx, query,
		env.ID, o.CustomerID, string(o.Status), o.Total,
		o.OrderedAt.Format(timeFormat), timeToNullString(o.DeliveryAt), o.Notes,
		env.CreatedAt.Format(timeFormat), env.UpdatedAt.Format(timeFormat),
		timeToNullString(env.DeletedAt), dirty,
	)
	if err != nil {
		return fmt.Errorf("failed to apply order %s: %w", env.ID, err)
	}
	return nil
}
