package daemon

import (
	"context"
	"io"
	"log"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/aliakbrhasan/stitchsync/internal/connectivity"
	"github.com/aliakbrhasan/stitchsync/internal/model"
	"github.com/aliakbrhasan/stitchsync/internal/store"
	syncengine "github.com/aliakbrhasan/stitchsync/internal/sync"
)

// memGateway accepts every upsert and returns nothing on pull.
type memGateway struct {
	mu      stdsync.Mutex
	upserts int
}

func (g *memGateway) Probe(ctx context.Context) error { return nil }
func (g *memGateway) Configured() bool                { return true }
func (g *memGateway) SetAuth(baseURL, token string)   {}

func (g *memGateway) Upsert(ctx context.Context, env model.Envelope) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upserts++
	return nil
}

func (g *memGateway) ListUpdatedSince(ctx context.Context, kind model.Kind, since *time.Time) ([]model.Envelope, error) {
	return nil, nil
}

// testDaemon wires a daemon over a temp store and in-memory gateway.
func testDaemon(t *testing.T) (*Daemon, *store.Store, *memGateway, *connectivity.Monitor) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	quiet := log.New(io.Discard, "", 0)
	gw := &memGateway{}
	monitor := connectivity.New(gw, &connectivity.Config{
		Interval: time.Minute,
		Timeout:  time.Second,
		Logger:   quiet,
	})
	engine := syncengine.New(st, gw, monitor, syncengine.DefaultOptions(), quiet)

	cfg := DefaultConfig()
	cfg.Logger = quiet

	d, err := New(st, engine, monitor, gw, nil, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	return d, st, gw, monitor
}

// TestNew_Validation tests required collaborators
func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, nil, nil, nil, nil, nil); err == nil {
		t.Error("New() accepted nil store")
	}
}

// TestStart_BadConfigDir tests cleanup when the config watch cannot start
func TestStart_BadConfigDir(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	quiet := log.New(io.Discard, "", 0)
	gw := &memGateway{}
	monitor := connectivity.New(gw, &connectivity.Config{
		Interval: time.Minute,
		Timeout:  time.Second,
		Logger:   quiet,
	})
	engine := syncengine.New(st, gw, monitor, syncengine.DefaultOptions(), quiet)

	cfg := DefaultConfig()
	cfg.Logger = quiet
	cfg.ConfigFile = filepath.Join(t.TempDir(), "no-such-dir", "stitch.yaml")

	d, err := New(st, engine, monitor, gw, nil, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("Start() succeeded with an unwatchable config directory")
	}

	// The failed start must not leak its internal context.
	select {
	case <-d.ctx.Done():
	default:
		t.Error("daemon context still live after failed Start()")
	}
}

// TestMaybeSync_PushesPending tests the auto-sync trigger
func TestMaybeSync_PushesPending(t *testing.T) {
	d, st, gw, monitor := testDaemon(t)
	monitor.SetOnline(true)

	if _, err := st.InsertCustomer(context.Background(), &model.Customer{Name: "Ahmed"}); err != nil {
		t.Fatalf("InsertCustomer() failed: %v", err)
	}

	d.maybeSync()

	if gw.upserts != 1 {
		t.Errorf("gateway saw %d upserts, want 1", gw.upserts)
	}
	count, _ := st.DirtyCount(context.Background())
	if count != 0 {
		t.Errorf("DirtyCount() = %d after auto-sync, want 0", count)
	}
}

// TestMaybeSync_SkipsOffline tests that offline terminals stay quiet
func TestMaybeSync_SkipsOffline(t *testing.T) {
	d, st, gw, _ := testDaemon(t)

	if _, err := st.InsertCustomer(context.Background(), &model.Customer{Name: "Ahmed"}); err != nil {
		t.Fatalf("InsertCustomer() failed: %v", err)
	}

	d.maybeSync()

	if gw.upserts != 0 {
		t.Errorf("offline daemon made %d upserts", gw.upserts)
	}
}

// TestMaybeSync_SkipsWhenClean tests that idle terminals do not sync
func TestMaybeSync_SkipsWhenClean(t *testing.T) {
	d, _, gw, monitor := testDaemon(t)
	monitor.SetOnline(true)

	d.maybeSync()

	if gw.upserts != 0 {
		t.Errorf("clean store triggered %d upserts", gw.upserts)
	}
}
