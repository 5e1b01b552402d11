package store

import (
	"context"
	"fmt"

	"github.com/lazypower/tiermem/internal/eviction"
)

// RecordEvictions appends recs to the eviction log.
func (db *DB) RecordEvictions(ctx context.Context, recs []eviction.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin evictions: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO evictions (trace_id, tier, reason, strength, at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare eviction insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, r.TraceID, r.Tier, string(r.Reason), r.Strength, millis(r.At)); err != nil {
			return fmt.Errorf("insert eviction %s: %w", r.TraceID, err)
		}
	}
	return tx.Commit()
}

// ListEvictions returns the most recent evictions, newest first.
// A non-empty reason filters the log.
func (db *DB) ListEvictions(ctx context.Context, reason eviction.Reason, limit int) ([]eviction.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT trace_id, tier, reason, strength, at FROM evictions"
	args := []any{}
	if reason != "" {
		query += " WHERE reason = ?"
		args = append(args, string(reason))
	}
	query += " ORDER BY at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list evictions: %w", err)
	}
	defer rows.Close()

	var recs []eviction.Record
	for rows.Next() {
		var r eviction.Record
		var reasonText string
		var at int64
		if err := rows.Scan(&r.TraceID, &r.Tier, &reasonText, &r.Strength, &at); err != nil {
			return nil, fmt.Errorf("scan eviction: %w", err)
		}
		r.Reason = eviction.Reason(reasonText)
		r.At = fromMillis(at)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// EvictionCounts returns the logged evictions grouped by reason.
func (db *DB) EvictionCounts(ctx context.Context) (map[eviction.Reason]int, error) {
	rows, err := db.QueryContext(ctx, "SELECT reason, COUNT(*) FROM evictions GROUP BY reason")
	if err != nil {
		return nil, fmt.Errorf("count evictions: %w", err)
	}
	defer rows.Close()

	counts := make(map[eviction.Reason]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("scan eviction count: %w", err)
		}
		counts[eviction.Reason(reason)] = n
	}
	return counts, rows.Err()
}
