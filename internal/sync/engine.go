package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/aliakbrhasan/stitchsync/internal/model"
	"github.com/aliakbrhasan/stitchsync/internal/store"
)

var (
	// ErrOffline means the connectivity monitor reports the remote as
	// unreachable; the pass was not attempted.
	ErrOffline = errors.New("remote unreachable")

	// ErrAlreadySyncing means another pass is in flight; this request
	// was dropped, not queued.
	ErrAlreadySyncing = errors.New("sync already running")

	// ErrNotConfigured means no remote credentials are available; the
	// system operates in permanently-offline mode.
	ErrNotConfigured = errors.New("remote store not configured")
)

// Gateway is the engine's view of the remote authoritative store.
// *remote.Client satisfies it; tests substitute fakes.
type Gateway interface {
	Probe(ctx context.Context) error
	Configured() bool
	Upsert(ctx context.Context, env model.Envelope) error
	ListUpdatedSince(ctx context.Context, kind model.Kind, since *time.Time) ([]model.Envelope, error)
}

// Monitor is the engine's view of the connectivity signal.
type Monitor interface {
	Online() bool
}

// Options tunes a sync engine.
type Options struct {
	// CallTimeout bounds each individual gateway call. A timed-out
	// call counts as that record's failure; the pass continues.
	CallTimeout time.Duration

	// AdoptRemote materializes remote-only records locally during the
	// pull phase. Off by default: a single-terminal shop only pulls
	// updates to records it already has.
	AdoptRemote bool
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{CallTimeout: 10 * time.Second}
}

// Result summarizes one sync pass.
type Result struct {
	// Success is true when the pass ran to completion, even if some
	// individual records failed.
	Success bool `json:"success"`

	// SyncedCount is the number of records pushed to the remote.
	SyncedCount int `json:"synced_count"`

	// Pulled is the number of remote records applied locally.
	Pulled int `json:"pulled"`

	// Failed counts per-record push failures and per-kind pull
	// failures. Failed records stay dirty and retry next pass.
	Failed int `json:"failed"`

	// Message is the human-readable summary shown to the user. Never
	// a stack trace.
	Message string `json:"message"`
}

// Status is the engine state reported to the UI layer.
type Status struct {
	Online         bool       `json:"is_online"`
	Syncing        bool       `json:"is_syncing"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	PendingChanges int        `json:"pending_changes_count"`
}

// Engine orchestrates reconciliation passes.
type Engine struct {
	store   *store.Store
	gateway Gateway
	monitor Monitor
	opts    Options
	logger  *log.Logger

	// syncing enforces at-most-one concurrent pass system-wide.
	syncing atomic.Bool
}

// New creates a sync engine. All collaborators are injected so tests
// can run multiple isolated instances. If logger is nil, a default
// logger writing to stderr is used.
func New(st *store.Store, gw Gateway, mon Monitor, opts Options, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultOptions().CallTimeout
	}
	return &Engine{
		store:   st,
		gateway: gw,
		monitor: mon,
		opts:    opts,
		logger:  logger,
	}
}

// Sync runs one reconciliation pass.
//
// The guards run before anything else: when offline, unconfigured, or
// when a pass is already in flight, Sync returns the matching sentinel
// error without touching the store or the gateway. Otherwise the pass
// always runs to completion; per-record failures are reported in the
// Result, never as an error.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	if !e.gateway.Configured() {
		return Result{Message: "sync failed: no remote store configured"}, ErrNotConfigured
	}
	if !e.monitor.Online() {
		return Result{Message: "sync failed: offline"}, ErrOffline
	}
	if !e.syncing.CompareAndSwap(false, true) {
		return Result{Message: "sync already running"}, ErrAlreadySyncing
	}
	defer e.syncing.Store(false)

	return e.run(ctx), nil
}

// Force runs the same push-then-pull pass as Sync. It exists as the
// user-invocable "try again now" affordance; the online and
// mutual-exclusion guards still apply.
func (e *Engine) Force(ctx context.Context) (Result, error) {
	return e.Sync(ctx)
}

// Status reports the current engine state for the UI layer.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	pending, err := e.store.DirtyCount(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to count pending changes: %w", err)
	}
	last, err := e.store.LastSyncAt(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read last sync time: %w", err)
	}
	return Status{
		Online:         e.monitor.Online(),
		Syncing:        e.syncing.Load(),
		LastSyncAt:     last,
		PendingChanges: pending,
	}, nil
}

// run executes push then pull. Push must complete first so a record
// pushed in this pass is seen by the pull as already matching instead
// of being downgraded.
func (e *Engine) run(ctx context.Context) Result {
	start := time.Now()

	pushed, pushFailed := e.push(ctx)
	pulled, pullFailed := e.pull(ctx)

	if err := e.store.SetLastSyncAt(ctx, time.Now()); err != nil {
		e.logger.Printf("Warning: failed to record sync time: %v", err)
	}

	res := Result{
		Success:     true,
		SyncedCount: pushed,
		Pulled:      pulled,
		Failed:      pushFailed + pullFailed,
	}
	if res.Failed > 0 {
		res.Message = fmt.Sprintf("synced %d record(s), pulled %d, %d failed (will retry)",
			res.SyncedCount, res.Pulled, res.Failed)
	} else {
		res.Message = fmt.Sprintf("synced %d record(s), pulled %d", res.SyncedCount, res.Pulled)
	}

	e.logger.Printf("Pass complete in %v: %s", time.Since(start).Round(time.Millisecond), res.Message)
	return res
}

// push uploads every dirty record. Individual failures are logged and
// counted; the record stays dirty for the next cycle.
func (e *Engine) push(ctx context.Context) (pushed, failed int) {
	for _, kind := range model.Kinds() {
		dirty, err := e.store.ListDirty(ctx, kind)
		if err != nil {
			e.logger.Printf("Warning: failed to list dirty %s records: %v", kind, err)
			failed++
			continue
		}

		for _, env := range dirty {
			callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
			err := e.gateway.Upsert(callCtx, env)
			cancel()

			if err != nil {
				e.logger.Printf("Warning: failed to push %s %s: %v", kind, env.ID, err)
				failed++
				continue
			}

			if err := e.store.MarkClean(ctx, kind, env.ID); err != nil {
				// The upsert landed; a retry next pass is harmless
				// because upserts are idempotent.
				e.logger.Printf("Warning: failed to mark %s %s clean: %v", kind, env.ID, err)
				failed++
				continue
			}
			if err := e.store.AcknowledgeRecord(ctx, kind, env.ID); err != nil {
				e.logger.Printf("Warning: failed to acknowledge change log for %s %s: %v", kind, env.ID, err)
			}
			pushed++
		}
	}
	return pushed, failed
}

// pull fetches the full remote set per kind and applies last-write-wins:
// a remote record is applied only when strictly newer than the local
// copy; ties keep the local value. Remote-only records are skipped
// unless AdoptRemote is set. Applied records are written clean.
func (e *Engine) pull(ctx context.Context) (applied, failed int) {
	for _, kind := range model.Kinds() {
		callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		remotes, err := e.gateway.ListUpdatedSince(callCtx, kind, nil)
		cancel()

		if err != nil {
			e.logger.Printf("Warning: failed to pull %s records: %v", kind, err)
			failed++
			continue
		}

		for _, env := range remotes {
			local, err := e.store.GetEnvelope(ctx, kind, env.ID)
			if errors.Is(err, store.ErrNotFound) {
				if !e.opts.AdoptRemote {
					continue
				}
				if err := e.store.ApplyEnvelope(ctx, &env, false); err != nil {
					e.logger.Printf("Warning: failed to adopt %s %s: %v", kind, env.ID, err)
					failed++
					continue
				}
				applied++
				continue
			}
			if err != nil {
				e.logger.Printf("Warning: failed to load local %s %s: %v", kind, env.ID, err)
				failed++
				continue
			}

			if !env.UpdatedAt.After(local.UpdatedAt) {
				continue
			}

			if err := e.store.ApplyEnvelope(ctx, &env, false); err != nil {
				e.logger.Printf("Warning: failed to apply %s %s: %v", kind, env.ID, err)
				failed++
				continue
			}
			applied++
		}
	}
	return applied, failed
}
