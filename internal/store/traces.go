package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/lazypower/tiermem/internal/memory"
)

// encodeVector converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeVector(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeVector converts a binary BLOB back to []float64.
func decodeVector(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// SaveSnapshot replaces the stored snapshot with traces in one transaction.
// Associations are written once per pair; links to traces outside the
// snapshot are dropped.
func (db *DB) SaveSnapshot(ctx context.Context, traces []memory.Trace) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM associations"); err != nil {
		return fmt.Errorf("clear associations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM traces"); err != nil {
		return fmt.Errorf("clear traces: %w", err)
	}

	insTrace, err := tx.PrepareContext(ctx, `
		INSERT INTO traces (id, content, vector, dimensions, tier, strength, decay_rate, history,
		                    frequency, access_count, valence, tags,
		                    created_at, last_accessed, tier_entered_at, decayed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare trace insert: %w", err)
	}
	defer insTrace.Close()

	ids := make(map[string]bool, len(traces))
	for _, t := range traces {
		content, err := json.Marshal(t.Content)
		if err != nil {
			return fmt.Errorf("marshal content %s: %w", t.ID, err)
		}
		history, err := json.Marshal(t.History)
		if err != nil {
			return fmt.Errorf("marshal history %s: %w", t.ID, err)
		}
		tags, err := json.Marshal(t.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags %s: %w", t.ID, err)
		}
		var decayedAt any
		if !t.DecayedAt.IsZero() {
			decayedAt = millis(t.DecayedAt)
		}
		if _, err := insTrace.ExecContext(ctx,
			t.ID, string(content), encodeVector(t.Vector), len(t.Vector), t.Tier.String(),
			t.Strength, t.DecayRate, string(history),
			t.Frequency, t.AccessCount, t.EmotionalValence, string(tags),
			millis(t.CreatedAt), millis(t.LastAccessed), millis(t.TierEnteredAt), decayedAt,
		); err != nil {
			return fmt.Errorf("insert trace %s: %w", t.ID, err)
		}
		ids[t.ID] = true
	}

	insAssoc, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO associations (trace_id, other_id, weight) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare association insert: %w", err)
	}
	defer insAssoc.Close()

	for _, t := range traces {
		for other, w := range t.Associations {
			if t.ID >= other || !ids[other] {
				continue
			}
			if _, err := insAssoc.ExecContext(ctx, t.ID, other, w); err != nil {
				return fmt.Errorf("insert association %s-%s: %w", t.ID, other, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored traces ordered by creation time, with
// associations filled in on both ends. Links to missing traces are skipped.
func (db *DB) LoadSnapshot(ctx context.Context) ([]memory.Trace, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, content, vector, tier, strength, decay_rate, history,
		       frequency, access_count, valence, tags,
		       created_at, last_accessed, tier_entered_at, decayed_at
		FROM traces ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("load traces: %w", err)
	}
	defer rows.Close()

	var traces []memory.Trace
	pos := make(map[string]int)
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		pos[t.ID] = len(traces)
		traces = append(traces, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	arows, err := db.QueryContext(ctx, "SELECT trace_id, other_id, weight FROM associations")
	if err != nil {
		return nil, fmt.Errorf("load associations: %w", err)
	}
	defer arows.Close()

	for arows.Next() {
		var a, b string
		var w float64
		if err := arows.Scan(&a, &b, &w); err != nil {
			return nil, fmt.Errorf("scan association: %w", err)
		}
		i, ok := pos[a]
		j, ok2 := pos[b]
		if !ok || !ok2 {
			continue
		}
		link(&traces[i], b, w)
		link(&traces[j], a, w)
	}
	return traces, arows.Err()
}

func link(t *memory.Trace, other string, w float64) {
	if t.Associations == nil {
		t.Associations = make(map[string]float64)
	}
	t.Associations[other] = w
}

func scanTrace(rows *sql.Rows) (memory.Trace, error) {
	var (
		t                          memory.Trace
		content, tier              string
		history, tags              sql.NullString
		blob                       []byte
		created, accessed, entered int64
		decayed                    sql.NullInt64
	)
	if err := rows.Scan(&t.ID, &content, &blob, &tier, &t.Strength, &t.DecayRate, &history,
		&t.Frequency, &t.AccessCount, &t.EmotionalValence, &tags,
		&created, &accessed, &entered, &decayed); err != nil {
		return t, fmt.Errorf("scan trace: %w", err)
	}

	if err := json.Unmarshal([]byte(content), &t.Content); err != nil {
		return t, fmt.Errorf("trace %s content: %w", t.ID, err)
	}
	if history.Valid {
		if err := json.Unmarshal([]byte(history.String), &t.History); err != nil {
			return t, fmt.Errorf("trace %s history: %w", t.ID, err)
		}
	}
	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &t.Tags); err != nil {
			return t, fmt.Errorf("trace %s tags: %w", t.ID, err)
		}
	}
	var err error
	if t.Tier, err = memory.ParseTier(tier); err != nil {
		return t, fmt.Errorf("trace %s: %w", t.ID, err)
	}

	t.Vector = decodeVector(blob)
	t.CreatedAt = fromMillis(created)
	t.LastAccessed = fromMillis(accessed)
	t.TierEnteredAt = fromMillis(entered)
	if decayed.Valid {
		t.DecayedAt = fromMillis(decayed.Int64)
	}
	return t, nil
}

// TraceCount returns the number of traces in the stored snapshot.
func (db *DB) TraceCount(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM traces").Scan(&n)
	return n, err
}
