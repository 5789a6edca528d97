package database

import (
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/TobiSchelling/reviewguard/internal/records"
)

// SaveRows stores the cleaned rows of a run, replacing rows with the same
// review id.
func (db *DB) SaveRows(runID string, rows []records.Row) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return eris.Wrap(err, "begin save rows")
	}
	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO review_rows
		(run_id, review_id, idx, gmap_id, name, address, category, hours, time, rating, text, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return eris.Wrap(err, "preparing row insert")
	}
	defer stmt.Close()

	for _, r := range rows {
		category, _ := json.Marshal(r.Categories)
		hours, _ := json.Marshal(r.Hours)
		var extra *string
		if len(r.Extra) > 0 {
			b, err := json.Marshal(r.Extra)
			if err != nil {
				tx.Rollback()
				return eris.Wrapf(err, "encoding extra columns of %s", r.ID)
			}
			s := string(b)
			extra = &s
		}
		if _, err := stmt.Exec(runID, r.ID, r.Index, r.LocationID, r.Name, r.Address,
			string(category), string(hours), r.Time, r.Rating, r.Text, extra); err != nil {
			tx.Rollback()
			return eris.Wrapf(err, "inserting row %s", r.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "commit rows")
}

// GetRows returns the rows of a run in index order.
func (db *DB) GetRows(runID string) ([]records.Row, error) {
	rows, err := db.conn.Query(
		`SELECT review_id, idx, gmap_id, name, address, category, hours, time, rating, text, extra
		FROM review_rows WHERE run_id = ? ORDER BY idx`, runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "listing rows of run %s", runID)
	}
	defer rows.Close()

	var out []records.Row
	for rows.Next() {
		var (
			r                         records.Row
			gmapID, name, address     sql.NullString
			category, hours, timeText sql.NullString
			rating                    sql.NullInt64
			extra                     sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Index, &gmapID, &name, &address, &category, &hours,
			&timeText, &rating, &r.Text, &extra); err != nil {
			return nil, eris.Wrap(err, "scanning row")
		}
		r.LocationID = gmapID.String
		r.Name = name.String
		r.Address = address.String
		r.Time = timeText.String
		if rating.Valid {
			n := int(rating.Int64)
			r.Rating = &n
		}
		if category.Valid {
			_ = json.Unmarshal([]byte(category.String), &r.Categories)
		}
		if hours.Valid {
			_ = json.Unmarshal([]byte(hours.String), &r.Hours)
		}
		if extra.Valid {
			_ = json.Unmarshal([]byte(extra.String), &r.Extra)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
