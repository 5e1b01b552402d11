package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "traces: snapshot of the trace store",
		SQL: `
CREATE TABLE traces (
    id               TEXT PRIMARY KEY,
    content          TEXT NOT NULL,
    vector           BLOB NOT NULL,
    dimensions       INTEGER NOT NULL,
    tier             TEXT NOT NULL CHECK (tier IN ('working', 'short_term', 'long_term', 'permanent')),

    -- Strength and decay
    strength         REAL NOT NULL CHECK (strength >= 0 AND strength <= 100),
    decay_rate       REAL NOT NULL,
    history          TEXT,

    -- Usage
    frequency        INTEGER NOT NULL DEFAULT 1,
    access_count     INTEGER NOT NULL DEFAULT 0,
    valence          REAL NOT NULL DEFAULT 0,
    tags             TEXT,

    created_at       INTEGER NOT NULL,
    last_accessed    INTEGER NOT NULL,
    tier_entered_at  INTEGER NOT NULL,
    decayed_at       INTEGER
);

CREATE INDEX idx_traces_tier     ON traces(tier);
CREATE INDEX idx_traces_strength ON traces(strength DESC);
`,
	},
	{
		Version:     2,
		Description: "associations: weighted links between traces",
		SQL: `
CREATE TABLE associations (
    trace_id  TEXT NOT NULL,
    other_id  TEXT NOT NULL,
    weight    REAL NOT NULL,
    PRIMARY KEY (trace_id, other_id),
    FOREIGN KEY (trace_id) REFERENCES traces(id) ON DELETE CASCADE,
    FOREIGN KEY (other_id) REFERENCES traces(id) ON DELETE CASCADE,
    CHECK (trace_id < other_id)
);

CREATE INDEX idx_assoc_other ON associations(other_id);
`,
	},
	{
		Version:     3,
		Description: "evictions: log of removed traces",
		SQL: `
CREATE TABLE evictions (
    id        INTEGER PRIMARY KEY,
    trace_id  TEXT NOT NULL,
    tier      TEXT NOT NULL,
    reason    TEXT NOT NULL,
    strength  REAL NOT NULL,
    at        INTEGER NOT NULL
);

CREATE INDEX idx_evictions_at     ON evictions(at DESC);
CREATE INDEX idx_evictions_reason ON evictions(reason);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
