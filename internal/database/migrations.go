package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    command TEXT NOT NULL,
    provider TEXT,
    model TEXT,
    template_version TEXT,
    status TEXT NOT NULL DEFAULT 'running' CHECK(status IN ('running', 'done', 'failed')),
    row_count INTEGER DEFAULT 0,
    merge_stats TEXT,
    error TEXT,
    started_at TEXT DEFAULT (datetime('now')),
    finished_at TEXT
);

CREATE TABLE IF NOT EXISTS review_rows (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    review_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    gmap_id TEXT,
    name TEXT,
    address TEXT,
    category TEXT,
    hours TEXT,
    time TEXT,
    rating INTEGER,
    text TEXT NOT NULL,
    extra TEXT,
    PRIMARY KEY (run_id, review_id)
);

CREATE TABLE IF NOT EXISTS results (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    review_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    kind TEXT NOT NULL CHECK(kind IN ('ok', 'transport_failure', 'decode_failure')),
    flagged INTEGER DEFAULT 0,
    relevance TEXT,
    quality TEXT,
    outcome TEXT NOT NULL,
    signals TEXT,
    signal_kinds TEXT,
    cached INTEGER DEFAULT 0,
    elapsed_ms INTEGER DEFAULT 0,
    classified_at TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (run_id, review_id)
);

CREATE TABLE IF NOT EXISTS metrics (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    dimension TEXT NOT NULL,
    accuracy REAL NOT NULL,
    macro_f1 REAL NOT NULL,
    body TEXT NOT NULL,
    PRIMARY KEY (run_id, dimension)
);

CREATE INDEX IF NOT EXISTS idx_results_kind ON results(run_id, kind);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "run reports",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS reports (
    run_id TEXT PRIMARY KEY REFERENCES runs(id) ON DELETE CASCADE,
    body_markdown TEXT NOT NULL,
    generated_at TEXT DEFAULT (datetime('now'))
);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
