package connectivity

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProber flips between healthy and failing on demand.
type fakeProber struct {
	fail   atomic.Bool
	probes atomic.Int64
}

func (p *fakeProber) Probe(ctx context.Context) error {
	p.probes.Add(1)
	if p.fail.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func quietConfig(interval time.Duration) *Config {
	return &Config{
		Interval: interval,
		Timeout:  time.Second,
		Logger:   log.New(io.Discard, "", 0),
	}
}

// TestMonitor_StartsOffline tests the initial state before any probe
func TestMonitor_StartsOffline(t *testing.T) {
	m := New(&fakeProber{}, quietConfig(time.Minute))
	if m.Online() {
		t.Error("Online() = true before any probe")
	}
}

// TestProbeNow_Transitions tests flag transitions in both directions
func TestProbeNow_Transitions(t *testing.T) {
	p := &fakeProber{}
	m := New(p, quietConfig(time.Minute))
	ctx := context.Background()

	if got := m.ProbeNow(ctx); !got {
		t.Fatal("ProbeNow() = false with healthy prober")
	}
	if !m.Online() {
		t.Error("Online() = false after successful probe")
	}

	p.fail.Store(true)
	if got := m.ProbeNow(ctx); got {
		t.Fatal("ProbeNow() = true with failing prober")
	}
	if m.Online() {
		t.Error("Online() = true after failed probe")
	}
}

// TestSetOnline_Override tests the reactive host-signal path
func TestSetOnline_Override(t *testing.T) {
	m := New(&fakeProber{}, quietConfig(time.Minute))
	m.SetOnline(true)
	if !m.Online() {
		t.Error("Online() = false after SetOnline(true)")
	}
	m.SetOnline(false)
	if m.Online() {
		t.Error("Online() = true after SetOnline(false)")
	}
}

// TestRun_ProbesOnTicks tests the polling loop
func TestRun_ProbesOnTicks(t *testing.T) {
	p := &fakeProber{}
	m := New(p, quietConfig(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for p.probes.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d probes before deadline", p.probes.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
