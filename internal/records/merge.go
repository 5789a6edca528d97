// Package records holds the review and location types and the merge that
// turns the two raw exports into cleaned, deduplicated rows.
package records

import (
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"

	"github.com/TobiSchelling/reviewguard/internal/canon"
)

// TimestampLayout is the rendered review time, e.g. "2022-09-06 08:25:00 EDT".
const TimestampLayout = "2006-01-02 15:04:05 MST"

// DefaultRequired lists the fields a row must have to survive the merge.
var DefaultRequired = []string{"name", "category", "address", "hours", "text", "time"}

var reviewNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("reviewguard:review"))

// MergeOptions controls Merge. A nil Location renders times in UTC; an empty
// Required uses DefaultRequired.
type MergeOptions struct {
	Location *time.Location
	Required []string
}

// MergeStats counts what happened to each input review.
type MergeStats struct {
	Locations          int `json:"locations"`
	DuplicateLocations int `json:"duplicate_locations"`
	Reviews            int `json:"reviews"`
	Unmatched          int `json:"unmatched"`
	Joined             int `json:"joined"`
	MissingFields      int `json:"missing_fields"`
	EmptyOrNone        int `json:"empty_or_none"`
	Duplicates         int `json:"duplicates"`
	Kept               int `json:"kept"`
}

// Merge inner-joins reviews onto locations, canonicalizes review text,
// renders timestamps, drops incomplete, empty and "none" rows, and removes
// duplicate bodies keeping the first. Rows come out in location order, then
// review order within a location; Index is the position in the joined table
// before any row was dropped.
func Merge(locations []Location, reviews []Review, opts MergeOptions) ([]Row, MergeStats) {
	stats := MergeStats{Locations: len(locations), Reviews: len(reviews)}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	required := opts.Required
	if len(required) == 0 {
		required = DefaultRequired
	}

	order := make([]string, 0, len(locations))
	byID := make(map[string]*Location, len(locations))
	for i := range locations {
		id := locations[i].LocationID
		if _, dup := byID[id]; dup {
			stats.DuplicateLocations++
			continue
		}
		byID[id] = &locations[i]
		order = append(order, id)
	}

	grouped := make(map[string][]*Review, len(byID))
	for i := range reviews {
		id := reviews[i].LocationID
		if _, ok := byID[id]; !ok {
			stats.Unmatched++
			continue
		}
		grouped[id] = append(grouped[id], &reviews[i])
	}

	var rows []Row
	seen := make(map[string]bool)
	index := 0
	for _, id := range order {
		l := byID[id]
		for _, rv := range grouped[id] {
			row := joinRow(l, rv, loc)
			row.Index = index
			index++
			stats.Joined++

			if missing(l, rv, required) {
				stats.MissingFields++
				continue
			}
			if row.Text == "" || strings.EqualFold(row.Text, "none") {
				stats.EmptyOrNone++
				continue
			}
			if seen[row.Text] {
				stats.Duplicates++
				continue
			}
			seen[row.Text] = true
			rows = append(rows, row)
		}
	}
	stats.Kept = len(rows)

	return rows, stats
}

// FormatTimestamp renders an epoch-millisecond time in loc. Milliseconds are
// floored to whole seconds.
func FormatTimestamp(ms int64, loc *time.Location) string {
	sec := ms / 1000
	if ms < 0 && ms%1000 != 0 {
		sec--
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(sec, 0).In(loc).Format(TimestampLayout)
}

// ReviewKey derives a stable id for reviews that do not carry one.
func ReviewKey(locationID, userID string, ms int64) string {
	name := locationID + "|" + userID + "|" + strconv.FormatInt(ms, 10)
	return uuid.NewSHA1(reviewNamespace, []byte(name)).String()
}

func joinRow(l *Location, rv *Review, loc *time.Location) Row {
	row := Row{
		ID:         rv.ReviewID,
		LocationID: l.LocationID,
		Name:       deref(l.Name),
		Address:    deref(l.Address),
		Latitude:   l.Latitude,
		Longitude:  l.Longitude,
		Categories: l.Categories,
		Hours:      l.Hours,
		Rating:     rv.Rating,
	}
	var ms int64
	if rv.Time != nil {
		ms = *rv.Time
		row.Time = FormatTimestamp(ms, loc)
	}
	if row.ID == "" {
		row.ID = ReviewKey(l.LocationID, rv.UserID, ms)
	}
	if rv.Text != nil {
		row.Text = canon.Canonicalize(*rv.Text)
	}
	return row
}

func missing(l *Location, rv *Review, required []string) bool {
	for _, field := range required {
		switch field {
		case "name":
			if blank(l.Name) {
				return true
			}
		case "address":
			if blank(l.Address) {
				return true
			}
		case "category":
			if len(l.Categories) == 0 {
				return true
			}
		case "hours":
			if len(l.Hours) == 0 {
				return true
			}
		case "text":
			if rv.Text == nil {
				return true
			}
		case "time":
			if rv.Time == nil {
				return true
			}
		case "rating":
			if rv.Rating == nil {
				return true
			}
		case "latitude":
			if l.Latitude == nil {
				return true
			}
		case "longitude":
			if l.Longitude == nil {
				return true
			}
		}
	}
	return false
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
