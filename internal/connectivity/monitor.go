// Package connectivity maintains the "is the remote reachable" signal.
//
// The monitor refreshes its flag on a fixed period by issuing a
// lightweight probe against the remote gateway. Online() never performs
// I/O: it only reports the last known value, so it is safe to call from
// any hot path. A failed probe flips the flag to false and nothing
// else; probe errors never escape the monitor.
package connectivity

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"time"
)

// Prober is the minimal connectivity check the monitor needs. The
// remote gateway satisfies it; an unconfigured gateway simply fails
// every probe, which reads as permanently offline.
type Prober interface {
	Probe(ctx context.Context) error
}

// Config holds monitor settings.
type Config struct {
	// Interval between probes.
	Interval time.Duration

	// Timeout applied to each individual probe.
	Timeout time.Duration

	// Logger for state transitions. Nil means a default stderr logger.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
		Logger:   log.New(os.Stderr, "[connectivity] ", log.LstdFlags),
	}
}

// Monitor tracks remote reachability.
type Monitor struct {
	prober Prober
	config *Config
	online atomic.Bool
}

// New creates a monitor around the given prober. A nil config uses
// DefaultConfig. The monitor starts offline until the first probe
// succeeds.
func New(prober Prober, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}
	return &Monitor{prober: prober, config: config}
}

// Online returns the last known reachability. Non-blocking, no I/O.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// SetOnline overrides the flag. This is the reactive entry point for
// host online/offline signals; the next probe tick re-verifies.
func (m *Monitor) SetOnline(online bool) {
	m.flip(online, "host signal")
}

// ProbeNow performs one probe synchronously, updates the flag, and
// returns the new value. One-shot commands use this instead of waiting
// for the polling loop.
func (m *Monitor) ProbeNow(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	err := m.prober.Probe(probeCtx)
	m.flip(err == nil, "probe")
	if err != nil {
		m.config.Logger.Printf("Probe failed: %v", err)
	}
	return m.online.Load()
}

// Run probes immediately and then on every tick until ctx is
// cancelled. Intended to be run on its own goroutine by the scheduler.
func (m *Monitor) Run(ctx context.Context) {
	m.ProbeNow(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProbeNow(ctx)
		}
	}
}

// flip stores the new value, logging only actual transitions.
func (m *Monitor) flip(online bool, cause string) {
	if m.online.Swap(online) != online {
		if online {
			m.config.Logger.Printf("Remote reachable (%s)", cause)
		} else {
			m.config.Logger.Printf("Remote unreachable (%s)", cause)
		}
	}
}
