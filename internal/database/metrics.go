package database

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/TobiSchelling/reviewguard/internal/score"
)

// SaveMetrics stores the agreement report of a run, one row per dimension.
func (db *DB) SaveMetrics(runID string, report score.Report) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return eris.Wrap(err, "begin save metrics")
	}
	for dim, d := range report {
		body, err := json.Marshal(d)
		if err != nil {
			tx.Rollback()
			return eris.Wrapf(err, "encoding %s", dim)
		}
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO metrics (run_id, dimension, accuracy, macro_f1, body)
			VALUES (?, ?, ?, ?, ?)`,
			runID, dim, d.Accuracy, d.MacroF1, string(body),
		); err != nil {
			tx.Rollback()
			return eris.Wrapf(err, "inserting metrics %s", dim)
		}
	}
	return eris.Wrap(tx.Commit(), "commit metrics")
}

// GetMetrics returns the agreement report of a run. A run that was never
// validated has an empty report.
func (db *DB) GetMetrics(runID string) (score.Report, error) {
	rows, err := db.conn.Query("SELECT dimension, body FROM metrics WHERE run_id = ?", runID)
	if err != nil {
		return nil, eris.Wrapf(err, "listing metrics of run %s", runID)
	}
	defer rows.Close()

	report := score.Report{}
	for rows.Next() {
		var dim, body string
		if err := rows.Scan(&dim, &body); err != nil {
			return nil, eris.Wrap(err, "scanning metrics")
		}
		var d score.Dimension
		if err := json.Unmarshal([]byte(body), &d); err != nil {
			return nil, eris.Wrapf(err, "decoding metrics %s", dim)
		}
		report[dim] = d
	}
	return report, rows.Err()
}

// SaveReport stores the rendered markdown report of a run.
func (db *DB) SaveReport(runID, markdown string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO reports (run_id, body_markdown) VALUES (?, ?)",
		runID, markdown,
	)
	return eris.Wrapf(err, "saving report of run %s", runID)
}

// GetReport returns the markdown report of a run, or "" when none was saved.
func (db *DB) GetReport(runID string) (string, error) {
	var body string
	err := db.conn.QueryRow("SELECT body_markdown FROM reports WHERE run_id = ?", runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "reading report of run %s", runID)
	}
	return body, nil
}
