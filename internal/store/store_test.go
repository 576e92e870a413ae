package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/aliakbrhasan/stitchsync/internal/model"
)

// testStore opens a store backed by a temp file.
func testStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// addCustomer inserts a minimal customer for tests that need one.
func addCustomer(t *testing.T, st *Store, name string) *model.Customer {
	t.Helper()
	c, err := st.InsertCustomer(context.Background(), &model.Customer{Name: name})
	if err != nil {
		t.Fatalf("InsertCustomer() failed: %v", err)
	}
	return c
}

// TestOpen_CreatesSchema tests database creation and table setup
func TestOpen_CreatesSchema(t *testing.T) {
	st := testStore(t)

	tables := []string{"customers", "invoices", "orders", "change_log", "sync_state", "counters"}
	for _, table := range tables {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := st.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

// TestOpen_Reopen tests that an existing database opens cleanly
func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	c := addCustomer(t, st, "Ahmed")
	if err := st.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	st2, err := Open(path)
	if err != nil {
		t.Fatalf("Second Open() failed: %v", err)
	}
	defer st2.Close()

	got, err := st2.GetCustomer(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetCustomer() after reopen failed: %v", err)
	}
	if got.Name != "Ahmed" {
		t.Errorf("Name = %q, want %q", got.Name, "Ahmed")
	}
}

// TestInsertCustomer_AssignsIdentity tests that inserts fill id, timestamps and dirty
func TestInsertCustomer_AssignsIdentity(t *testing.T) {
	st := testStore(t)
	c := addCustomer(t, st, "Ahmed")

	if c.ID == "" {
		t.Error("ID not assigned")
	}
	if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
		t.Error("timestamps not assigned")
	}
	if !c.Dirty {
		t.Error("new customer not marked dirty")
	}
}

// TestInsertCustomer_Invalid tests that validation runs before insert
func TestInsertCustomer_Invalid(t *testing.T) {
	st := testStore(t)
	if _, err := st.InsertCustomer(context.Background(), &model.Customer{}); err == nil {
		t.Error("InsertCustomer() accepted empty name")
	}
}

// TestUpdateCustomer_Patch tests partial updates
func TestUpdateCustomer_Patch(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	c := addCustomer(t, st, "Ahmed")

	phone := "0770-123-456"
	got, err := st.UpdateCustomer(ctx, c.ID, model.CustomerPatch{Phone: &phone})
	if err != nil {
		t.Fatalf("UpdateCustomer() failed: %v", err)
	}
	if got.Phone != phone {
		t.Errorf("Phone = %q, want %q", got.Phone, phone)
	}
	if got.Name != "Ahmed" {
		t.Errorf("Name changed unexpectedly to %q", got.Name)
	}
	if !got.UpdatedAt.After(c.UpdatedAt) {
		t.Error("UpdatedAt did not advance")
	}
	if !got.Dirty {
		t.Error("updated customer not marked dirty")
	}
}

// TestUpdateCustomer_NotFound tests the missing-record error
func TestUpdateCustomer_NotFound(t *testing.T) {
	st := testStore(t)
	name := "X"
	_, err := st.UpdateCustomer(context.Background(), "no-such-id", model.CustomerPatch{Name: &name})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateCustomer() error = %v, want ErrNotFound", err)
	}
}

// TestGetCustomer_NotFound tests the missing-record error on reads
func TestGetCustomer_NotFound(t *testing.T) {
	st := testStore(t)
	if _, err := st.GetCustomer(context.Background(), "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCustomer() error = %v, want ErrNotFound", err)
	}
}

// TestInsertInvoice_Numbering tests sequential local invoice numbers
func TestInsertInvoice_Numbering(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	c := addCustomer(t, st, "Ahmed")

	first, err := st.InsertInvoice(ctx, &model.Invoice{CustomerID: c.ID, Total: 100})
	if err != nil {
		t.Fatalf("InsertInvoice() failed: %v", err)
	}
	second, err := st.InsertInvoice(ctx, &model.Invoice{CustomerID: c.ID, Total: 50})
	if err != nil {
		t.Fatalf("Second InsertInvoice() failed: %v", err)
	}

	if first.Number != "INV-000001" {
		t.Errorf("first Number = %q, want INV-000001", first.Number)
	}
	if second.Number != "INV-000002" {
		t.Errorf("second Number = %q, want INV-000002", second.Number)
	}
}

// TestInsertInvoice_DerivesStatus tests status derivation from amounts
func TestInsertInvoice_DerivesStatus(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	c := addCustomer(t, st, "Ahmed")

	inv, err := st.InsertInvoice(ctx, &model.Invoice{CustomerID: c.ID, Total: 100, PaidAmount: 100})
	if err != nil {
		t.Fatalf("InsertInvoice() failed: %v", err)
	}
	if inv.Status != model.InvoicePaid {
		t.Errorf("Status = %v, want %v", inv.Status, model.InvoicePaid)
	}
}

// TestInsertOrder_DefaultStatus tests the initial workshop status
func TestInsertOrder_DefaultStatus(t *testing.T) {
	st := testStore(t)
	c := addCustomer(t, st, "Ahmed")

	o, err := st.InsertOrder(context.Background(), &model.Order{CustomerID: c.ID, Total: 75})
	if err != nil {
		t.Fatalf("InsertOrder() failed: %v", err)
	}
	if o.Status != model.OrderReceived {
		t.Errorf("Status = %v, want %v", o.Status, model.OrderReceived)
	}
}

// TestListInvoices_CustomerFilter tests per-customer invoice listing
func TestListInvoices_CustomerFilter(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	a := addCustomer(t, st, "Ahmed")
	b := addCustomer(t, st, "Basim")

	if _, err := st.InsertInvoice(ctx, &model.Invoice{CustomerID: a.ID, Total: 10}); err != nil {
		t.Fatalf("InsertInvoice() failed: %v", err)
	}
	if _, err := st.InsertInvoice(ctx, &model.Invoice{CustomerID: b.ID, Total: 20}); err != nil {
		t.Fatalf("InsertInvoice() failed: %v", err)
	}

	got, err := st.ListInvoices(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListInvoices() failed: %v", err)
	}
	if len(got) != 1 || got[0].CustomerID != a.ID {
		t.Errorf("ListInvoices(%s) returned %d invoices", a.ID, len(got))
	}

	all, err := st.ListInvoices(ctx, "")
	if err != nil {
		t.Fatalf("ListInvoices(all) failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListInvoices(all) returned %d invoices, want 2", len(all))
	}
}

// TestLastSyncAt_RoundTrip tests the sync watermark
func TestLastSyncAt_RoundTrip(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	got, err := st.LastSyncAt(ctx)
	if err != nil {
		t.Fatalf("LastSyncAt() failed: %v", err)
	}
	if got != nil {
		t.Errorf("LastSyncAt() = %v before any sync, want nil", got)
	}

	c := addCustomer(t, st, "Ahmed")
	if err := st.SetLastSyncAt(ctx, c.CreatedAt); err != nil {
		t.Fatalf("SetLastSyncAt() failed: %v", err)
	}

	got, err = st.LastSyncAt(ctx)
	if err != nil {
		t.Fatalf("LastSyncAt() after set failed: %v", err)
	}
	if got == nil || !got.Equal(c.CreatedAt) {
		t.Errorf("LastSyncAt() = %v, want %v", got, c.CreatedAt)
	}
}
