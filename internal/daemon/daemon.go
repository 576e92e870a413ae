// Package daemon runs the background loops that keep a shop
// terminal converging with the remote backend.
//
// The daemon:
// 1. Probes connectivity on a fixed interval
// 2. Triggers a sync pass whenever the terminal is online with pending changes
// 3. Watches the config file and applies credential changes without a restart
// 4. Pushes sync results to the live dashboard
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	stdsync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aliakbrhasan/stitchsync/internal/config"
	"github.com/aliakbrhasan/stitchsync/internal/connectivity"
	"github.com/aliakbrhasan/stitchsync/internal/dashboard"
	"github.com/aliakbrhasan/stitchsync/internal/store"
	syncengine "github.com/aliakbrhasan/stitchsync/internal/sync"
)

// Config holds daemon settings.
type Config struct {
	// SyncInterval is how often to check for pending changes and
	// trigger a sync pass.
	SyncInterval time.Duration

	// DebounceInterval is how long to wait after a config file event
	// before reloading. Editors write config files in bursts.
	DebounceInterval time.Duration

	// ConfigFile is the config file to watch for credential changes.
	// Empty disables watching.
	ConfigFile string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     60 * time.Second,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Gateway is the remote surface the daemon reconfigures on config
// reloads.
type Gateway interface {
	SetAuth(baseURL, token string)
}

// Daemon orchestrates connectivity probing, scheduled sync passes and
// config reloads.
type Daemon struct {
	store     *store.Store
	engine    *syncengine.Engine
	monitor   *connectivity.Monitor
	gateway   Gateway
	dashboard *dashboard.Server
	config    *Config

	watcher *fsnotify.Watcher

	reloadAt   time.Time
	reloadMu   stdsync.Mutex
	reloadWant bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// New creates a daemon. The dashboard may be nil when not serving one.
func New(st *store.Store, engine *syncengine.Engine, monitor *connectivity.Monitor, gateway Gateway, dash *dashboard.Server, cfg *Config) (*Daemon, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if monitor == nil {
		return nil, fmt.Errorf("monitor cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		store:     st,
		engine:    engine,
		monitor:   monitor,
		gateway:   gateway,
		dashboard: dash,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
	}

	if cfg.ConfigFile != "" && gateway != nil {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
		d.watcher = watcher
	}

	return d, nil
}

// Start begins the daemon's operation.
//
// This blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if d.watcher != nil {
		// Watch the directory rather than the file: editors replace
		// files on save, which drops a direct file watch.
		dir := filepath.Dir(d.config.ConfigFile)
		if err := d.watcher.Add(dir); err != nil {
			// No goroutines are running yet; release the context and
			// the watcher fd before bailing.
			stopErr := d.Stop()
			if stopErr != nil {
				d.config.Logger.Printf("Error during cleanup: %v", stopErr)
			}
			return fmt.Errorf("failed to watch config directory: %w", err)
		}
		d.config.Logger.Printf("Watching config: %s", d.config.ConfigFile)

		d.wg.Add(2)
		go d.watchConfigEvents()
		go d.processReloads()
	}

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.monitor.Run(d.ctx)
	}()
	go d.syncLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// syncLoop triggers sync passes on a fixed interval when the terminal
// is online with pending changes.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.maybeSync()
		}
	}
}

// maybeSync runs one sync pass when there is work and a connection.
func (d *Daemon) maybeSync() {
	if !d.monitor.Online() {
		return
	}

	pending, err := d.store.DirtyCount(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Error counting pending changes: %v", err)
		return
	}
	if pending == 0 {
		return
	}

	d.config.Logger.Printf("Auto-sync: %d pending change(s)", pending)
	result, err := d.engine.Sync(d.ctx)
	if err != nil {
		// Overlap with a manual sync or a dropped connection is
		// routine; the next tick retries.
		if errors.Is(err, syncengine.ErrAlreadySyncing) || errors.Is(err, syncengine.ErrOffline) {
			return
		}
		d.config.Logger.Printf("Auto-sync failed: %v", err)
		return
	}

	if d.dashboard != nil {
		d.dashboard.Broadcast(dashboard.NewEvent(dashboard.EventSyncComplete, result))
		if status, err := d.engine.Status(d.ctx); err == nil {
			d.dashboard.Broadcast(dashboard.NewEvent(dashboard.EventStatus, status))
		}
	}
}

// watchConfigEvents monitors the config directory and queues reloads.
func (d *Daemon) watchConfigEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(d.config.ConfigFile) {
				continue
			}

			d.reloadMu.Lock()
			d.reloadWant = true
			d.reloadAt = time.Now()
			d.reloadMu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processReloads applies queued config reloads after the debounce
// window passes.
func (d *Daemon) processReloads() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.reloadMu.Lock()
			want := d.reloadWant && time.Since(d.reloadAt) >= d.config.DebounceInterval
			if want {
				d.reloadWant = false
			}
			d.reloadMu.Unlock()

			if want {
				d.reloadConfig()
			}
		}
	}
}

// reloadConfig re-reads the config file and applies remote credentials.
func (d *Daemon) reloadConfig() {
	cfg, err := config.Load(d.config.ConfigFile)
	if err != nil {
		d.config.Logger.Printf("Config reload failed: %v", err)
		return
	}

	d.gateway.SetAuth(cfg.Remote.URL, cfg.Remote.Token)
	d.config.Logger.Printf("Config reloaded: remote %s", cfg.Remote.URL)
}
