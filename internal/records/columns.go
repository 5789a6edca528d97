package records

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Columns is the header of a cleaned review table, in output order.
var Columns = []string{
	"review_id", "index", "gmap_id", "name", "address", "latitude", "longitude",
	"category", "hours", "time", "rating", "text",
}

var builtin = func() map[string]bool {
	m := make(map[string]bool, len(Columns))
	for _, c := range Columns {
		m[c] = true
	}
	return m
}()

// Header returns Columns followed by the passthrough column names of the
// first row that has any.
func Header(rows []Row) []string {
	header := append([]string(nil), Columns...)
	for _, r := range rows {
		if len(r.Extra) == 0 {
			continue
		}
		for _, c := range r.Extra {
			header = append(header, c.Name)
		}
		break
	}
	return header
}

// Cells renders the row under header. Unknown names render empty.
func (r Row) Cells(header []string) []string {
	cells := make([]string, len(header))
	for i, name := range header {
		cells[i] = r.cell(name)
	}
	return cells
}

func (r Row) cell(name string) string {
	switch name {
	case "review_id":
		return r.ID
	case "index":
		return strconv.Itoa(r.Index)
	case "gmap_id":
		return r.LocationID
	case "name":
		return r.Name
	case "address":
		return r.Address
	case "latitude":
		return formatFloat(r.Latitude)
	case "longitude":
		return formatFloat(r.Longitude)
	case "category":
		if r.Categories == nil {
			return ""
		}
		b, _ := json.Marshal(r.Categories)
		return string(b)
	case "hours":
		if r.Hours == nil {
			return ""
		}
		b, _ := json.Marshal(r.Hours)
		return string(b)
	case "time":
		return r.Time
	case "rating":
		if r.Rating == nil {
			return ""
		}
		return strconv.Itoa(*r.Rating)
	case "text":
		return r.Text
	}
	v, _ := r.Get(name)
	return v
}

// FromCells rebuilds a row from a table record. Columns outside the cleaned
// schema are kept as passthrough unless listed in drop. When the table has no
// index column the record position is used.
func FromCells(header, cells []string, position int, drop []string) (Row, error) {
	if len(cells) != len(header) {
		return Row{}, eris.Errorf("record %d has %d cells, header has %d", position, len(cells), len(header))
	}
	dropped := make(map[string]bool, len(drop))
	for _, d := range drop {
		dropped[d] = true
	}

	row := Row{Index: position}
	for i, name := range header {
		v := cells[i]
		if !builtin[name] {
			if !dropped[name] {
				row.Extra = append(row.Extra, Column{Name: name, Value: v})
			}
			continue
		}
		if err := row.set(name, v); err != nil {
			return Row{}, eris.Wrapf(err, "record %d column %s", position, name)
		}
	}
	return row, nil
}

func (r *Row) set(name, v string) error {
	switch name {
	case "review_id":
		r.ID = v
	case "index":
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return eris.Wrap(err, "parsing index")
		}
		r.Index = n
	case "gmap_id":
		r.LocationID = v
	case "name":
		r.Name = v
	case "address":
		r.Address = v
	case "latitude":
		r.Latitude = parseFloat(v)
	case "longitude":
		r.Longitude = parseFloat(v)
	case "category":
		r.Categories = parseList(v)
	case "hours":
		r.Hours = parseHours(v)
	case "time":
		r.Time = v
	case "rating":
		if n, err := strconv.Atoi(strings.TrimSuffix(v, ".0")); err == nil {
			r.Rating = &n
		}
	case "text":
		r.Text = v
	}
	return nil
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func parseFloat(v string) *float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

// parseList reads a JSON array, a Python style list literal, or a single
// plain value.
func parseList(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if strings.HasPrefix(v, "[") {
		var out []string
		if err := json.Unmarshal([]byte(v), &out); err == nil {
			return out
		}
		if err := json.Unmarshal([]byte(pythonToJSON(v)), &out); err == nil {
			return out
		}
	}
	return []string{v}
}

func parseHours(v string) []DayHours {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	var out []DayHours
	if err := json.Unmarshal([]byte(v), &out); err == nil {
		return out
	}
	if err := json.Unmarshal([]byte(pythonToJSON(v)), &out); err == nil {
		return out
	}
	return []DayHours{{Day: v}}
}

// pythonToJSON converts a single-quoted list literal into JSON. It only
// handles the flat string lists pandas writes for list cells.
func pythonToJSON(v string) string {
	var b strings.Builder
	inSingle := false
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c == '\'' && !inSingle:
			inSingle = true
			b.WriteByte('"')
		case c == '\'' && inSingle:
			inSingle = false
			b.WriteByte('"')
		case c == '"' && inSingle:
			b.WriteString(`\"`)
		case c == '\\' && inSingle && i+1 < len(v):
			b.WriteByte(c)
			b.WriteByte(v[i+1])
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
