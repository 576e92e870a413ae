package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aliakbrhasan/stitchsync/internal/model"
)

// Op identifies the kind of local mutation recorded in the change log.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ChangeEntry is one append-only audit record. Entries are written in
// the same transaction as the mutation they describe and are never
// modified afterwards, except for the acknowledged flag.
//
// The change log is an audit trail: reconciliation is driven by the
// per-row dirty flag, not by replaying the log. An entry is marked
// acknowledged once the record it names has been pushed successfully.
type ChangeEntry struct {
	Seq          int64      `json:"seq"`
	Kind         model.Kind `json:"kind"`
	RecordID     string     `json:"record_id"`
	Op           Op         `json:"op"`
	At           time.Time  `json:"at"`
	Acknowledged bool       `json:"acknowledged"`
}

// appendChange adds one change-log entry inside the mutation's own
// transaction. This must never fail on the happy path; a failure here
// rolls the mutation back with it.
func appendChange(ctx context.Context, tx *sql.Tx, kind model.Kind, recordID string, op Op, at time.Time) error {
	query := `INSERT INTO change_log (kind, record_id, op, at, acknowledged)
	          VALUES (?, ?, ?, ?, 0)`
	if _, err := tx.ExecContext(ctx, query, string(kind), recordID, string(op), at.Format(timeFormat)); err != nil {
		return fmt.Errorf("failed to append change log entry: %w", err)
	}
	return nil
}

// ListChanges returns the most recent change-log entries, newest first.
// limit <= 0 returns everything.
func (s *Store) ListChanges(ctx context.Context, limit int) ([]ChangeEntry, error) {
	query := `SELECT seq, kind, record_id, op, at, acknowledged
	          FROM change_log ORDER BY seq DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list change log: %w", err)
	}
	defer rows.Close()
	return scanChanges(rows)
}

// ListUnacknowledged returns entries not yet confirmed pushed, oldest
// first.
func (s *Store) ListUnacknowledged(ctx context.Context) ([]ChangeEntry, error) {
	query := `SELECT seq, kind, record_id, op, at, acknowledged
	          FROM change_log WHERE acknowledged = 0 ORDER BY seq ASC`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unacknowledged changes: %w", err)
	}
	defer rows.Close()
	return scanChanges(rows)
}

// AcknowledgeRecord marks every pending entry for one record as
// acknowledged. Called after the record's push succeeds. Idempotent.
func (s *Store) AcknowledgeRecord(ctx context.Context, kind model.Kind, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `UPDATE change_log SET acknowledged = 1
	          WHERE kind = ? AND record_id = ? AND acknowledged = 0`
	if _, err := s.conn.ExecContext(ctx, query, string(kind), recordID); err != nil {
		return fmt.Errorf("failed to acknowledge changes for %s %s: %w", kind, recordID, err)
	}
	return nil
}

func scanChanges(rows *sql.Rows) ([]ChangeEntry, error) {
	var entries []ChangeEntry
	for rows.Next() {
		var e ChangeEntry
		var kind, op, at string
		var ack int
		if err := rows.Scan(&e.Seq, &kind, &e.RecordID, &op, &at, &ack); err != nil {
			return nil, fmt.Errorf("failed to scan change log entry: %w", err)
		}
		e.Kind = model.Kind(kind)
		e.Op = Op(op)
		e.At = parseTime(at)
		e.Acknowledged = ack != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change log: %w", err)
	}
	return entries, nil
}
