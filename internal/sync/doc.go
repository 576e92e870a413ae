// Package sync implements the reconciliation engine between the local
// record store and the remote authoritative store.
//
// One sync pass runs push-then-pull:
//
//  1. Push: every dirty record of every entity kind is upserted to the
//     remote store. A successful upsert clears the record's dirty flag
//     and acknowledges its change-log entries. One record's failure
//     never aborts the pass; the record simply stays dirty and is
//     retried on the next cycle.
//  2. Pull: the full remote set of each kind is fetched and merged
//     with last-write-wins: a remote record replaces the local copy
//     only when its updated_at is strictly newer. Ties keep the local
//     value. Because push runs first, a record pushed moments earlier
//     comes back with a matching timestamp and is left untouched.
//
// Exactly one pass may run at a time, enforced by an atomic flag that
// is checked and set at pass entry and always cleared on exit. A pass
// requested while another is running is dropped, not queued. A pass
// requested while offline is dropped too; both guards return without
// touching the store or the gateway.
//
// Entity kinds are pushed in dependency order (customers before the
// invoices and orders that reference them) so a fresh remote store
// never sees a dangling customer id from a single pass.
//
// The engine is designed to be called repeatedly forever: none of its
// error returns are fatal to the process.
package sync
