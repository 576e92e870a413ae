package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aliakbrhasan/stitchsync/internal/model"
)

const orderColumns = `id, customer_id, status, total, ordered_at, delivery_at,
       notes, created_at, updated_at, dirty`

// InsertOrder persists a new tailoring order.
func (s *Store) InsertOrder(ctx context.Context, o *model.Order) (*model.Order, error) {
	now := time.Now()
	if o.ID == "" {
		o.ID = model.NewID()
	}
	if o.OrderedAt.IsZero() {
		o.OrderedAt = now
	}
	if o.Status == "" {
		o.Status = model.OrderReceived
	}
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Dirty = true

	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("invalid order: %w", err)
	}

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		query := `
		INSERT INTO orders (id, customer_id, status, total, ordered_at,
			delivery_at, notes, created_at, updated_at, dirty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		`
		if _, err := tx.ExecContext(ctx, query,
			o.ID, o.CustomerID, string(o.Status), o.Total,
			o.OrderedAt.Format(timeFormat), timeToNullString(o.DeliveryAt),
			o.Notes, o.CreatedAt.Format(timeFormat), o.UpdatedAt.Format(timeFormat),
		); err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		return appendChange(ctx, tx, model.KindOrder, o.ID, OpCreate, now)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateOrder merges the patch into an existing order. Returns
// ErrNotFound when the id does not exist (or is tombstoned).
func (s *Store) UpdateOrder(ctx context.Context, id string, patch model.OrderPatch) (*model.Order, error) {
	now := time.Now()
	sets := []string{"updated_at = ?", "dirty = 1"}
	args := []interface{}{now.Format(timeFormat)}

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, fmt.Errorf("invalid order status %q", *patch.Status)
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Total != nil {
		sets = append(sets, "total = ?")
		args = append(args, *patch.Total)
	}
	if patch.DeliveryAt != nil {
		sets = append(sets, "delivery_at = ?")
		args = append(args, patch.DeliveryAt.Format(timeFormat))
	}
	if patch.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *patch.Notes)
	}
	args = append(args, id)

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		query := "UPDATE orders SET " + strings.Join(sets, ", ") +
			" WHERE id = ? AND deleted_at IS NULL"
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update order %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		return appendChange(ctx, tx, model.KindOrder, id, OpUpdate, now)
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, id)
}

// GetOrder retrieves an order by id, excluding tombstoned rows.
func (s *Store) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE id = ? AND deleted_at IS NULL`
	row := s.conn.QueryRowContext(ctx, query, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return o, nil
}

// ListOrders returns all live orders, newest created first. When
// customerID is non-empty, only that customer's orders are returned.
func (s *Store) ListOrders(ctx context.Context, customerID string) ([]*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE deleted_at IS NULL`
	var args []interface{}
	if customerID != "" {
		query += " AND customer_id = ?"
		args = append(args, customerID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var o model.Order
	var status, orderedAt, createdAt, updatedAt string
	var deliveryAt sql.NullString
	var dirty int

	err := row.Scan(
		&o.ID, &o.CustomerID, &status, &o.Total, &orderedAt,
		&deliveryAt, &o.Notes, &createdAt, &updatedAt, &dirty,
	)
	if err != nil {
		return nil, err
	}

	o.Status = model.OrderStatus(status)
	o.OrderedAt = parseTime(orderedAt)
	o.DeliveryAt = nullStringToTime(deliveryAt)
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	o.Dirty = dirty != 0
	return &o, nil
}
