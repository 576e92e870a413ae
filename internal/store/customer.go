package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aliakbrhasan/stitchsync/internal/model"
)

const customerColumns = `id, name, phone, address, label, notes, measurements,
       total_spent, created_at, updated_at, dirty`

// InsertCustomer persists a new customer.
//
// The id, timestamps, and dirty flag are assigned here: callers fill in
// only the domain fields. The insert and its change-log entry commit in
// one transaction. Never blocks on the network.
func (s *Store) InsertCustomer(ctx context.Context, c *model.Customer) (*model.Customer, error) {
	now := time.Now()
	if c.ID == "" {
		c.ID = model.NewID()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Dirty = true

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid customer: %w", err)
	}

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		query := `
		INSERT INTO customers (id, name, phone, address, label, notes,
			measurements, total_spent, created_at, updated_at, dirty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		`
		if _, err := tx.ExecContext(ctx, query,
			c.ID, c.Name, c.Phone, c.Address, c.Label, c.Notes,
			rawJSONToNullString(c.Measurements), c.TotalSpent,
			c.CreatedAt.Format(timeFormat), c.UpdatedAt.Format(timeFormat),
		); err != nil {
			return fmt.Errorf("failed to insert customer: %w", err)
		}
		return appendChange(ctx, tx, model.KindCustomer, c.ID, OpCreate, now)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCustomer merges the patch into an existing customer, bumping
// updated_at and marking the row dirty. Returns ErrNotFound when the
// id does not exist (or is tombstoned).
func (s *Store) UpdateCustomer(ctx context.Context, id string, patch model.CustomerPatch) (*model.Customer, error) {
	now := time.Now()
	sets := []string{"updated_at = ?", "dirty = 1"}
	args := []interface{}{now.Format(timeFormat)}

	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Phone != nil {
		sets = append(sets, "phone = ?")
		args = append(args, *patch.Phone)
	}
	if patch.Address != nil {
		sets = append(sets, "address = ?")
		args = append(args, *patch.Address)
	}
	if patch.Label != nil {
		sets = append(sets, "label = ?")
		args = append(args, *patch.Label)
	}
	if patch.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *patch.Notes)
	}
	if patch.Measurements != nil {
		sets = append(sets, "measurements = ?")
		args = append(args, string(patch.Measurements))
	}
	if patch.TotalSpent != nil {
		sets = append(sets, "total_spent = ?")
		args = append(args, *patch.TotalSpent)
	}
	args = append(args, id)

	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		query := "UPDATE customers SET " + strings.Join(sets, ", ") +
			" WHERE id = ? AND deleted_at IS NULL"
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update customer %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		return appendChange(ctx, tx, model.KindCustomer, id, OpUpdate, now)
	})
	if err != nil {
		return nil, err
	}
	return s.GetCustomer(ctx, id)
}

// GetCustomer retrieves a customer by id, excluding tombstoned rows.
func (s *Store) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers
	          WHERE id = ? AND deleted_at IS NULL`
	row := s.conn.QueryRowContext(ctx, query, id)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer %s: %w", id, err)
	}
	return c, nil
}

// ListCustomers returns all live customers, newest created first.
func (s *Store) ListCustomers(ctx context.Context) ([]*model.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers
	          WHERE deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customers: %w", err)
	}
	return customers, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCustomer(row rowScanner) (*model.Customer, error) {
	var c model.Customer
	var measurements sql.NullString
	var createdAt, updatedAt string
	var dirty int

	err := row.Scan(
		&c.ID, &c.Name, &c.Phone, &c.Address, &c.Label, &c.Notes,
		&measurements, &c.TotalSpent, &createdAt, &updatedAt, &dirty,
	)
	if err != nil {
		return nil, err
	}

	if measurements.Valid && measurements.String != "" {
		c.Measurements = []byte(measurements.String)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	c.Dirty = dirty != 0
	return &c, nil
}

// rawJSONToNullString stores an optional JSON blob as a nullable TEXT.
func rawJSONToNullString(raw []byte) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
