package database

import (
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = eris.New("run not found")

const runColumns = `id, command, provider, model, template_version, status, row_count,
	merge_stats, error, started_at, finished_at`

// InsertRun records the start of a run.
func (db *DB) InsertRun(r Run) error {
	status := r.Status
	if status == "" {
		status = StatusRunning
	}
	_, err := db.conn.Exec(
		`INSERT INTO runs (id, command, provider, model, template_version, status, row_count, merge_stats)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Command, r.Provider, r.Model, r.TemplateVersion, status, r.RowCount, r.MergeStats,
	)
	return eris.Wrapf(err, "inserting run %s", r.ID)
}

// FinishRun marks a run done, or failed when runErr is not nil.
func (db *DB) FinishRun(id string, rowCount int, runErr error) error {
	status := StatusDone
	var msg *string
	if runErr != nil {
		status = StatusFailed
		s := runErr.Error()
		msg = &s
	}
	res, err := db.conn.Exec(
		`UPDATE runs SET status = ?, row_count = ?, error = ?, finished_at = datetime('now')
		WHERE id = ?`,
		status, rowCount, msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "finishing run %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrRunNotFound, "run %s", id)
	}
	return nil
}

// SetMergeStats stores the merge counters of a run as JSON.
func (db *DB) SetMergeStats(id, statsJSON string) error {
	_, err := db.conn.Exec("UPDATE runs SET merge_stats = ? WHERE id = ?", statsJSON, id)
	return eris.Wrapf(err, "storing merge stats for run %s", id)
}

// GetRun returns a run by id, or ErrRunNotFound.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.conn.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "reading run %s", id)
	}
	return r, nil
}

// GetRuns returns all runs, newest first.
func (db *DB) GetRuns() ([]Run, error) {
	rows, err := db.conn.Query("SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, rowid DESC")
	if err != nil {
		return nil, eris.Wrap(err, "listing runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "scanning run")
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetLatestRun returns the most recently started run, or nil when there is
// none.
func (db *DB) GetLatestRun() (*Run, error) {
	row := db.conn.QueryRow("SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1")
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "reading latest run")
	}
	return r, nil
}

// DeleteRun removes a run with all its rows, results, metrics and report.
func (db *DB) DeleteRun(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return eris.Wrap(err, "begin delete")
	}
	for _, table := range []string{"reports", "metrics", "results", "review_rows", "runs"} {
		col := "run_id"
		if table == "runs" {
			col = "id"
		}
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE "+col+" = ?", id); err != nil {
			tx.Rollback()
			return eris.Wrapf(err, "deleting %s of run %s", table, id)
		}
	}
	return eris.Wrap(tx.Commit(), "commit delete")
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM runs", &s.Runs},
		{"SELECT COUNT(*) FROM runs WHERE status = 'done'", &s.FinishedRuns},
		{"SELECT COUNT(*) FROM review_rows", &s.Rows},
		{"SELECT COUNT(*) FROM results", &s.Results},
		{"SELECT COUNT(*) FROM results WHERE kind != 'ok'", &s.Failures},
		{"SELECT COUNT(*) FROM reports", &s.Reports},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, eris.Wrap(err, "reading stats")
		}
	}

	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	if err := s.Scan(&r.ID, &r.Command, &r.Provider, &r.Model, &r.TemplateVersion, &r.Status,
		&r.RowCount, &r.MergeStats, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
