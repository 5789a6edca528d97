package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/TobiSchelling/reviewguard/internal/canon"
	"github.com/TobiSchelling/reviewguard/internal/classify"
	"github.com/TobiSchelling/reviewguard/internal/records"
)

// Format selects the table encoding.
type Format string

const (
	CSV   Format = "csv"
	JSONL Format = "jsonl"
)

// FormatOf picks the format from a file extension; .jsonl and .json mean
// JSON lines, anything else CSV.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".json":
		return JSONL
	}
	return CSV
}

// WriteRows writes the cleaned review table.
func WriteRows(w io.Writer, f Format, rows []records.Row) error {
	header := records.Header(rows)
	return write(w, f, header, len(rows), func(i int) []string {
		return rows[i].Cells(header)
	})
}

// WriteResults writes rows followed by their result columns. Results are
// matched to rows by review id.
func WriteResults(w io.Writer, f Format, rows []records.Row, results []classify.Result) error {
	header := append(records.Header(rows), ResultColumns...)
	joined := Join(rows, results)
	base := len(header) - len(ResultColumns)
	return write(w, f, header, len(rows), func(i int) []string {
		cells := rows[i].Cells(header[:base])
		return append(cells, ResultCells(joined[i])...)
	})
}

func write(w io.Writer, f Format, header []string, n int, record func(int) []string) error {
	if f == JSONL {
		return writeJSONL(w, header, n, record)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "writing csv header")
	}
	for i := range n {
		if err := cw.Write(record(i)); err != nil {
			return eris.Wrapf(err, "writing csv record %d", i)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "flushing csv")
}

// writeJSONL writes one object per record with keys in header order. Cells
// that hold a JSON array or object are embedded as JSON; all others are
// strings.
func writeJSONL(w io.Writer, header []string, n int, record func(int) []string) error {
	bw := bufio.NewWriter(w)
	keys := make([][]byte, len(header))
	for i, h := range header {
		k, err := json.Marshal(h)
		if err != nil {
			return eris.Wrap(err, "encoding column name")
		}
		keys[i] = k
	}

	var line bytes.Buffer
	for i := range n {
		line.Reset()
		line.WriteByte('{')
		for j, cell := range record(i) {
			if j > 0 {
				line.WriteByte(',')
			}
			line.Write(keys[j])
			line.WriteByte(':')
			if embedded(cell) {
				line.WriteString(cell)
				continue
			}
			v, err := json.Marshal(cell)
			if err != nil {
				return eris.Wrapf(err, "encoding record %d", i)
			}
			line.Write(v)
		}
		line.WriteString("}\n")
		if _, err := bw.Write(line.Bytes()); err != nil {
			return eris.Wrap(err, "writing jsonl")
		}
	}
	return eris.Wrap(bw.Flush(), "flushing jsonl")
}

func embedded(cell string) bool {
	if !strings.HasPrefix(cell, "[") && !strings.HasPrefix(cell, "{") {
		return false
	}
	return json.Valid([]byte(cell))
}

// ReadRows reads a CSV review table. Columns in drop are discarded; other
// columns outside the cleaned schema are kept on each row as passthrough.
func ReadRows(r io.Reader, drop []string) ([]records.Row, []string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, eris.Wrap(ErrMissingColumns, "empty table")
	}
	if err != nil {
		return nil, nil, eris.Wrap(err, "reading csv header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows []records.Row
	for pos := 0; ; pos++ {
		cells, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, eris.Wrapf(err, "reading csv record %d", pos)
		}
		row, err := records.FromCells(header, cells, pos, drop)
		if err != nil {
			return nil, nil, err
		}
		if row.ID == "" {
			row.ID = records.ReviewKey(row.LocationID, "", int64(row.Index))
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

// ReadJSONL reads a JSON-lines review table. The header is the union of
// object keys in first-seen order; a key missing from a line reads as an
// empty cell. String values are taken as-is, arrays and objects keep their
// JSON text and null reads as empty.
func ReadJSONL(r io.Reader, drop []string) ([]records.Row, []string, error) {
	var (
		header []string
		index  = make(map[string]int)
		lines  []map[string]string
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if n == 1 {
			line = bytes.TrimPrefix(line, []byte("\ufeff"))
		}
		if len(line) == 0 {
			continue
		}
		keys, values, err := decodeObject(line)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "reading jsonl line %d", n)
		}
		rec := make(map[string]string, len(keys))
		for i, k := range keys {
			if _, ok := index[k]; !ok {
				index[k] = len(header)
				header = append(header, k)
			}
			rec[k] = values[i]
		}
		lines = append(lines, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "reading jsonl")
	}
	if len(header) == 0 {
		return nil, nil, eris.Wrap(ErrMissingColumns, "empty table")
	}

	rows := make([]records.Row, 0, len(lines))
	for pos, rec := range lines {
		cells := make([]string, len(header))
		for i, h := range header {
			cells[i] = rec[h]
		}
		row, err := records.FromCells(header, cells, pos, drop)
		if err != nil {
			return nil, nil, err
		}
		if row.ID == "" {
			row.ID = records.ReviewKey(row.LocationID, "", int64(row.Index))
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

// decodeObject returns the keys of one JSON object in document order with
// each value rendered as a cell.
func decodeObject(data []byte) ([]string, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, eris.New("line is not a JSON object")
	}

	var keys, values []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, eris.New("object key is not a string")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, eris.Wrapf(err, "value of %q", key)
		}
		keys = append(keys, key)
		values = append(values, cellOf(raw))
	}
	return keys, values, nil
}

func cellOf(raw json.RawMessage) string {
	switch {
	case len(raw) == 0, string(raw) == "null":
		return ""
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// ReadFile reads a review table from path, choosing CSV or JSON lines by
// extension.
func ReadFile(path string, drop []string) ([]records.Row, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	if FormatOf(path) == JSONL {
		return ReadJSONL(f, drop)
	}
	return ReadRows(f, drop)
}

// LoadReviews reads a review table for classification. The table must have
// a text column; review text is canonicalized and rows left without text
// are dropped. The number of dropped rows is returned.
func LoadReviews(path string, drop []string) ([]records.Row, int, error) {
	rows, header, err := ReadFile(path, drop)
	if err != nil {
		return nil, 0, err
	}
	if err := RequireColumns(header, "text"); err != nil {
		return nil, 0, eris.Wrapf(err, "input table %s", path)
	}

	kept := rows[:0]
	for _, row := range rows {
		row.Text = canon.Canonicalize(row.Text)
		if row.Text == "" {
			continue
		}
		kept = append(kept, row)
	}
	return kept, len(rows) - len(kept), nil
}

// WriteFile creates path (and its directory) and hands it to fn.
func WriteFile(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "creating directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "creating %s", path)
	}
	if err := fn(f); err != nil {
		f.Close()
		return eris.Wrapf(err, "writing %s", path)
	}
	return eris.Wrapf(f.Close(), "closing %s", path)
}
