package sync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/aliakbrhasan/stitchsync/internal/model"
	"github.com/aliakbrhasan/stitchsync/internal/store"
)

// fakeGateway is an in-memory remote store. Records are keyed by
// kind/id. failUpserts makes every upsert fail; blockUpserts makes
// upserts wait until released, to exercise overlapping passes.
type fakeGateway struct {
	mu      stdsync.Mutex
	records map[model.Kind]map[string]model.Envelope

	configured  bool
	failUpserts bool
	failID      string
	upserts     int

	blockUpserts chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		records:    make(map[model.Kind]map[string]model.Envelope),
		configured: true,
	}
}

func (g *fakeGateway) Probe(ctx context.Context) error { return nil }

func (g *fakeGateway) Configured() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.configured
}

func (g *fakeGateway) Upsert(ctx context.Context, env model.Envelope) error {
	if g.blockUpserts != nil {
		select {
		case <-g.blockUpserts:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.upserts++
	if g.failUpserts || (g.failID != "" && env.ID == g.failID) {
		return errors.New("backend unavailable")
	}
	if g.records[env.Kind] == nil {
		g.records[env.Kind] = make(map[string]model.Envelope)
	}
	g.records[env.Kind][env.ID] = env
	return nil
}

func (g *fakeGateway) ListUpdatedSince(ctx context.Context, kind model.Kind, since *time.Time) ([]model.Envelope, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []model.Envelope
	for _, env := range g.records[kind] {
		out = append(out, env)
	}
	return out, nil
}

// put seeds a remote record directly, bypassing Upsert.
func (g *fakeGateway) put(env model.Envelope) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.records[env.Kind] == nil {
		g.records[env.Kind] = make(map[string]model.Envelope)
	}
	g.records[env.Kind][env.ID] = env
}

// fakeMonitor is a settable connectivity flag.
type fakeMonitor struct{ online bool }

func (m *fakeMonitor) Online() bool { return m.online }

// testEngine wires an engine over a temp store, an online monitor and
// a healthy fake gateway.
func testEngine(t *testing.T) (*Engine, *store.Store, *fakeGateway, *fakeMonitor) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	gw := newFakeGateway()
	mon := &fakeMonitor{online: true}
	logger := log.New(io.Discard, "", 0)
	e := New(st, gw, mon, DefaultOptions(), logger)
	return e, st, gw, mon
}

// customerEnvelope builds a remote customer envelope with the given
// name and updated time.
func customerEnvelope(t *testing.T, id, name string, updatedAt time.Time) model.Envelope {
	t.Helper()
	payload, err := json.Marshal(&model.Customer{
		ID:        id,
		Name:      name,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return model.Envelope{
		Kind:      model.KindCustomer,
		ID:        id,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
		Payload:   payload,
	}
}

// TestSync_OfflineGuard tests that an offline pass touches nothing
func TestSync_OfflineGuard(t *testing.T) {
	e, st, gw, mon := testEngine(t)
	mon.online = false

	if _, err := st.InsertCustomer(context.Background(), &model.Customer{Name: "Ahmed"}); err != nil {
		t.Fatalf("InsertCustomer() failed: %v", err)
	}

	_, err := e.Sync(context.Background())
	if !errors.Is(err, ErrOffline) {
		t.Fatalf("Sync() error = %v, want ErrOffline", err)
	}
	if gw.upserts != 0 {
		t.Errorf("offline Sync() made %d gateway calls", gw.upserts)
	}
	count, _ := st.DirtyCount(context.Background())
	if count != 1 {
		t.Errorf("DirtyCount() = %d after offline sync, want 1", count)
	}
}

// TestSync_NotConfiguredGuard tests the permanently-offline mode
func TestSync_NotConfiguredGuard(t *testing.T) {
	e, _, gw, _ := testEngine(t)
	gw.configured = false

	if _, err := e.Sync(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Sync() error = %v, want ErrNotConfigured", err)
	}
}

// TestSync_PushesDirtyRecords tests the basic offline-edit-then-sync flow
func TestSync_PushesDirtyRecords(t *testing.T) {
	e, st, gw, _ := testEngine(t)
	ctx := context.Background()

	c, err := st.InsertCustomer(ctx, &model.Customer{Name: "Ahmed"})
	if err != nil {
		t.Fatalf("InsertCustomer() failed: %v", err)
	}

	res, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if !res.Success || res.SyncedCount != 1 || res.Failed != 0 {
		t.Errorf("Result = %+v, want 1 synced", res)
	}

	if _, ok := gw.records[model.KindCustomer][c.ID]; !ok {
		t.Error("record not present on remote after sync")
	}
	count, _ := st.DirtyCount(ctx)
	if count != 0 {
		t.Errorf("DirtyCount() = %d after sync, want 0", count)
	}
	pending, _ := st.ListUnacknowledged(ctx)
	if len(pending) != 0 {
		t.Errorf("%d change log entries unacknowledged after sync", len(pending))
	}

	status, err := e.Status(ctx)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if status.LastSyncAt == nil {
		t.Error("LastSyncAt not recorded")
	}
}

// TestSync_SecondPassIsEmpty tests push idempotence across passes
func TestSync_SecondPassIsEmpty(t *testing.T) {
	e, st, _, _ := testEngine(t)
	ctx := context.Background()

	if _, err := st.InsertCustomer(ctx, &model.Customer{Name: "Ahmed"}); err != nil {
		t.Fatalf("InsertCustomer() failed: %v", err)
	}
	if _, err := e.Sync(ctx); err != nil {
		t.Fatalf("first Sync() failed: %v", err)
	}

	res, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("second Sync() failed: %v", err)
	}
	if res.SyncedCount != 0 {
		t.Errorf("second pass pushed %d records, want 0", res.SyncedCount)
	}
}

// TestSync_PartialFailureRetains tests that failed records stay queued
func TestSync_PartialFailureRetains(t *testing.T) {
	e, st, gw, _ := testEngine(t)
	ctx := context.Background()

	if _, err := st.InsertCustomer(ctx, &model.Customer{Name: "Ahmed"}); err != nil {
		t.Fatalf("InsertCustomer() failed: %v", err)
	}
	gw.failUpserts = true

	res, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if !res.Success {
		t.Error("pass with per-record failures should still complete")
	}
	if res.Failed != 1 || res.SyncedCount != 0 {
		t.Errorf("Result = %+v, want 1 failed", res)
	}

	count, _ := st.DirtyCount(ctx)
	if count != 1 {
		t.Errorf("DirtyCount() = %d after failed push, want 1", count)
	}

	// Once the backend recovers the record goes through.
	gw.failUpserts = false
	res, err = e.Sync(ctx)
	if err != nil {
		t.Fatalf("recovery Sync() failed: %v", err)
	}
	if res.SyncedCount != 1 {
		t.Errorf("recovery pass pushed %d, want 1", res.SyncedCount)
	}
}

// TestSync_OneFailureDoesNotAbortPass tests that a failing record does
// not stop the rest of the pass
func TestSync_OneFailureDoesNotAbortPass(t *testing.T) {
	e, st, gw, _ := testEngine(t)
	ctx := context.Background()

	c, err := st.InsertCustomer(ctx, &model.Customer{Name: "Ahmed"})
	if err != nil {
		t.Fatalf("InsertCustomer() failed: %v", err)
	}
	first, err := st.InsertOrder(ctx, &model.Order{CustomerID: c.ID, Total: 30})
	if err != nil {
		t.Fatalf("InsertOrder() failed: %v", err)
	}
	second, err := st.InsertOrder(ctx, &model.Order{CustomerID: c.ID, Total: 40})
	if err != nil {
		t.Fatalf("InsertOrder() failed: %v", err)
	}
	if err := st.MarkClean(ctx, model.KindCustomer, c.ID); err != nil {
		t.Fatalf("MarkClean() failed: %v", err)
	}

	gw.failID = second.ID

	res, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if !res.Success {
		t.Error("pass with one failing record should still complete")
	}
	if res.SyncedCount != 1 || res.Failed != 1 {
		t.Errorf("Result = %+v, want 1 synced and 1 failed", res)
	}
	if _, ok := gw.records[model.KindOrder][first.ID]; !ok {
		t.Error("healthy record not pushed past the failing one")
	}

	// Only the failed record stays queued.
	dirty, err := st.ListDirty(ctx, model.KindOrder)
	if err != nil {
		t.Fatalf("ListDirty() failed: %v", err)
	}
	if len(dirty) != 1 || dirty[0].ID != second.ID {
		t.Fatalf("ListDirty() = %d records, want only the failed order", len(dirty))
	}

	// The next pass retries just that record.
	gw.failID = ""
	res, err = e.Sync(ctx)
	if err != nil {
		t.Fatalf("retry Sync() failed: %v", err)
	}
	if res.SyncedCount != 1 || res.Failed != 0 {
		t.Errorf("retry Result = %+v, want exactly the failed order pushed", res)
	}
}

// TestSync_MutualExclusion tests that overlapping passes are dropped
func TestSync_MutualExclusion(t *testing.T) {
	e, st, gw, _ := testEngine(t)
	ctx := context.Background()

	if _, err := st.InsertCustomer(ctx, &model.Customer{Name: "Ahmed"}); err != nil {
		t.Fatalf("InsertCustomer() failed: %v", err)
	}

	gw.blockUpserts = make(chan struct{})
	started := make(chan struct{})
	done := make(chan Result, 1)
	go func() {
		close(started)
		res, _ := e.Sync(ctx)
		done <- res
	}()
	<-started

	// Wait for the first pass to reach the gateway.
	deadline := time.After(2 * time.Second)
	for {
		status, err := e.Status(ctx)
		if err != nil {
			t.Fatalf("Status() failed: %v", err)
		}
		if status.Syncing {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first pass never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := e.Sync(ctx); !errors.Is(err, ErrAlreadySyncing) {
		t.Errorf("overlapping Sync() error = %v, want ErrAlreadySyncing", err)
	}

	close(gw.blockUpserts)
	select {
	case res := <-done:
		if res.SyncedCount != 1 {
			t.Errorf("first pass pushed %d, want 1", res.SyncedCount)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never finished")
	}

	status, _ := e.Status(ctx)
	if status.Syncing {
		t.Error("Syncing still true after pass finished")
	}
}

// TestPull_NewerRemoteWins tests last-write-wins for newer remote copies
func TestPull_NewerRemoteWins(t *testing.T) {
	e, st, gw, _ := testEngine(t)
	ctx := context.Background()

	c, err := st.InsertCustomer(ctx, &model.Customer{Name: "Ahmed"})
	if err != nil {
		t.Fatalf("InsertCustomer() failed: %v", err)
	}
	if err := st.MarkClean(ctx, model.KindCustomer, c.ID); err != nil {
		t.Fatalf("MarkClean() failed: %v", err)
	}

	gw.put(customerEnvelope(t, c.ID, "Ahmed Hassan", c.UpdatedAt.Add(time.Minute)))

	res, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if res.Pulled != 1 {
		t.Errorf("Pulled = %d, want 1", res.Pulled)
	}

	got, err := st.GetCustomer(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomer() failed: %v", err)
	}
	if got.Name != "Ahmed Hassan" {
		t.Errorf("Name = %q, want remote copy applied", got.Name)
	}
	if got.Dirty {
		t.Error("pulled record marked dirty")
	}
}

// TestPull_OlderRemoteLoses tests that stale remote copies are ignored
func TestPull_OlderRemoteLoses(t *testing.T) {
	e, st, gw, _ := testEngine(t)
	ctx := context.Background()

	c, err := st.InsertCustomer(ctx, &model.Customer{Name: "Ahmed"})
	if err != nil {
		t.Fatalf("InsertCustomer() failed: %v", err)
	}
	if err := st.MarkClean(ctx, model.KindCustomer, c.ID); err != nil {
		t.Fatalf("MarkClean() failed: %v", err)
	}

	gw.put(customerEnvelope(t, c.ID, "Stale Name", c.UpdatedAt.Add(-time.Minute)))

	res, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if res.Pulled != 0 {
		t.Errorf("Pulled = %d, want 0", res.Pulled)
	}

	got, _ := st.GetCustomer(ctx, c.ID)
	if got.Name != "Ahmed" {
		t.Errorf("Name = %q, local copy should win", got.Name)
	}
}

// TestPull_TieKeepsLocal tests that equal timestamps keep the local copy
func TestPull_TieKeepsLocal(t *testing.T) {
	e, st, gw, _ := testEngine(t)
	ctx := context.Background()

	c, err := st.InsertCustomer(ctx, &model.Customer{Name: "Ahmed"})
	if err != nil {
		t.Fatalf("InsertCustomer() failed: %v", err)
	}
	if err := st.MarkClean(ctx, model.KindCustomer, c.ID); err != nil {
		t.Fatalf("MarkClean() failed: %v", err)
	}

	gw.put(customerEnvelope(t, c.ID, "Tied Name", c.UpdatedAt))

	res, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if res.Pulled != 0 {
		t.Errorf("Pulled = %d on timestamp tie, want 0", res.Pulled)
	}
	got, _ := st.GetCustomer(ctx, c.ID)
	if got.Name != "Ahmed" {
		t.Errorf("Name = %q, want local copy kept on tie", got.Name)
	}
}

// TestPull_RemoteOnlySkipped tests the default ignore of unknown records
func TestPull_RemoteOnlySkipped(t *testing.T) {
	e, st, gw, _ := testEngine(t)
	ctx := context.Background()

	gw.put(customerEnvelope(t, "remote-only", "Unknown Here", time.Now().UTC()))

	res, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if res.Pulled != 0 {
		t.Errorf("Pulled = %d, want 0 without adoption", res.Pulled)
	}
	if _, err := st.GetCustomer(ctx, "remote-only"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("remote-only record materialized: err = %v", err)
	}
}

// TestPull_AdoptRemote tests opting in to remote-only materialization
func TestPull_AdoptRemote(t *testing.T) {
	e, st, gw, _ := testEngine(t)
	e.opts.AdoptRemote = true
	ctx := context.Background()

	gw.put(customerEnvelope(t, "remote-only", "New Here", time.Now().UTC()))

	res, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if res.Pulled != 1 {
		t.Errorf("Pulled = %d, want 1 with adoption", res.Pulled)
	}
	got, err := st.GetCustomer(ctx, "remote-only")
	if err != nil {
		t.Fatalf("GetCustomer() failed: %v", err)
	}
	if got.Name != "New Here" || got.Dirty {
		t.Errorf("adopted record = %+v", got)
	}
}

// TestSync_TombstonePropagates tests that local deletes reach the remote
func TestSync_TombstonePropagates(t *testing.T) {
	e, st, gw, _ := testEngine(t)
	ctx := context.Background()

	c, err := st.InsertCustomer(ctx, &model.Customer{Name: "Ahmed"})
	if err != nil {
		t.Fatalf("InsertCustomer() failed: %v", err)
	}
	if _, err := e.Sync(ctx); err != nil {
		t.Fatalf("first Sync() failed: %v", err)
	}

	if err := st.Delete(ctx, model.KindCustomer, c.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	res, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("second Sync() failed: %v", err)
	}
	if res.SyncedCount != 1 {
		t.Errorf("tombstone pass pushed %d, want 1", res.SyncedCount)
	}

	remote := gw.records[model.KindCustomer][c.ID]
	if !remote.Deleted() {
		t.Error("remote copy is not a tombstone")
	}
}

// TestPull_RemoteTombstoneApplies tests that remote deletions land locally
func TestPull_RemoteTombstoneApplies(t *testing.T) {
	e, st, gw, _ := testEngine(t)
	ctx := context.Background()

	c, err := st.InsertCustomer(ctx, &model.Customer{Name: "Ahmed"})
	if err != nil {
		t.Fatalf("InsertCustomer() failed: %v", err)
	}
	if err := st.MarkClean(ctx, model.KindCustomer, c.ID); err != nil {
		t.Fatalf("MarkClean() failed: %v", err)
	}

	env := customerEnvelope(t, c.ID, "Ahmed", c.UpdatedAt.Add(time.Minute))
	deletedAt := env.UpdatedAt
	env.DeletedAt = &deletedAt
	gw.put(env)

	if _, err := e.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if _, err := st.GetCustomer(ctx, c.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetCustomer() error = %v after remote tombstone, want ErrNotFound", err)
	}
}

// TestSync_OfflineEditThenReconnect tests queue-while-offline end to end
func TestSync_OfflineEditThenReconnect(t *testing.T) {
	e, st, gw, mon := testEngine(t)
	ctx := context.Background()

	mon.online = false
	c, err := st.InsertCustomer(ctx, &model.Customer{Name: "Ahmed"})
	if err != nil {
		t.Fatalf("InsertCustomer() failed: %v", err)
	}
	phone := "0770-000-111"
	if _, err := st.UpdateCustomer(ctx, c.ID, model.CustomerPatch{Phone: &phone}); err != nil {
		t.Fatalf("UpdateCustomer() failed: %v", err)
	}

	if _, err := e.Sync(ctx); !errors.Is(err, ErrOffline) {
		t.Fatalf("offline Sync() error = %v, want ErrOffline", err)
	}

	mon.online = true
	res, err := e.Sync(ctx)
	if err != nil {
		t.Fatalf("reconnect Sync() failed: %v", err)
	}
	if res.SyncedCount != 1 {
		t.Errorf("reconnect pass pushed %d, want 1", res.SyncedCount)
	}

	var remote model.Customer
	env := gw.records[model.KindCustomer][c.ID]
	if err := json.Unmarshal(env.Payload, &remote); err != nil {
		t.Fatalf("remote payload unmarshal failed: %v", err)
	}
	if remote.Phone != phone {
		t.Errorf("remote Phone = %q, want the offline edit", remote.Phone)
	}
}
