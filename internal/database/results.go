package database

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/TobiSchelling/reviewguard/internal/classify"
	"github.com/TobiSchelling/reviewguard/internal/signals"
	"github.com/TobiSchelling/reviewguard/internal/verdict"
)

// SaveResults stores one result per row. Saving again for the same run and
// review id replaces the earlier result.
func (db *DB) SaveResults(runID string, results []classify.Result) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return eris.Wrap(err, "begin save results")
	}
	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO results
		(run_id, review_id, idx, kind, flagged, relevance, quality, outcome, signals, signal_kinds, cached, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return eris.Wrap(err, "preparing result insert")
	}
	defer stmt.Close()

	for _, r := range results {
		outcome, err := json.Marshal(r.Outcome)
		if err != nil {
			tx.Rollback()
			return eris.Wrapf(err, "encoding outcome of %s", r.RowID)
		}
		sig, err := json.Marshal(r.Signals)
		if err != nil {
			tx.Rollback()
			return eris.Wrapf(err, "encoding signals of %s", r.RowID)
		}

		var relevance, quality *string
		flagged := false
		if d := r.Outcome.Decision; r.Outcome.OK() {
			relevance, quality = &d.Relevance, &d.Quality
			flagged = d.Flagged()
		}

		if _, err := stmt.Exec(runID, r.RowID, r.Index, string(r.Outcome.Kind), flagged, relevance, quality,
			string(outcome), string(sig), r.Signals.String(), r.Cached, r.Elapsed.Milliseconds()); err != nil {
			tx.Rollback()
			return eris.Wrapf(err, "inserting result %s", r.RowID)
		}
	}
	return eris.Wrap(tx.Commit(), "commit results")
}

// GetResults returns the results of a run in index order.
func (db *DB) GetResults(runID string) ([]classify.Result, error) {
	return db.queryResults("WHERE run_id = ?", runID)
}

// GetFailures returns the transport and decode failures of a run.
func (db *DB) GetFailures(runID string) ([]classify.Result, error) {
	return db.queryResults("WHERE run_id = ? AND kind != 'ok'", runID)
}

// GetFlagged returns results that violate a policy or fired a signal.
func (db *DB) GetFlagged(runID string) ([]classify.Result, error) {
	return db.queryResults("WHERE run_id = ? AND (flagged = 1 OR signal_kinds != '')", runID)
}

func (db *DB) queryResults(where string, args ...any) ([]classify.Result, error) {
	rows, err := db.conn.Query(
		`SELECT review_id, idx, outcome, signals, cached, elapsed_ms FROM results `+where+` ORDER BY idx`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "listing results")
	}
	defer rows.Close()

	var out []classify.Result
	for rows.Next() {
		var (
			r         classify.Result
			outcome   string
			sig       *string
			elapsedMS int64
		)
		if err := rows.Scan(&r.RowID, &r.Index, &outcome, &sig, &r.Cached, &elapsedMS); err != nil {
			return nil, eris.Wrap(err, "scanning result")
		}
		if err := json.Unmarshal([]byte(outcome), &r.Outcome); err != nil {
			r.Outcome = verdict.Outcome{Kind: verdict.KindDecodeFailure, Err: "stored outcome is unreadable"}
		}
		if sig != nil {
			var rep signals.Report
			if err := json.Unmarshal([]byte(*sig), &rep); err == nil {
				r.Signals = rep
			}
		}
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetResultStats counts the stored results of a run.
func (db *DB) GetResultStats(runID string) (*ResultStats, error) {
	row := db.conn.QueryRow(
		`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN kind = 'ok' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(flagged), 0),
			COALESCE(SUM(CASE WHEN kind = 'transport_failure' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'decode_failure' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(cached), 0)
		FROM results WHERE run_id = ?`, runID,
	)

	var s ResultStats
	if err := row.Scan(&s.Total, &s.OK, &s.Flagged, &s.TransportFailures, &s.DecodeFailures, &s.Cached); err != nil {
		return nil, eris.Wrapf(err, "reading result stats of run %s", runID)
	}
	return &s, nil
}

// SignalCounts returns how often each signal kind fired in a run.
func (db *DB) SignalCounts(runID string) (map[string]int, error) {
	rows, err := db.conn.Query(
		"SELECT signal_kinds FROM results WHERE run_id = ? AND signal_kinds != ''", runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "listing signals")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kinds string
		if err := rows.Scan(&kinds); err != nil {
			return nil, eris.Wrap(err, "scanning signals")
		}
		for _, k := range strings.Split(kinds, ",") {
			counts[k]++
		}
	}
	return counts, rows.Err()
}
