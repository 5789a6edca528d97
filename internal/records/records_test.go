package records

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func strp(s string) *string { return &s }
func i64p(n int64) *int64   { return &n }
func intp(n int) *int       { return &n }

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("loading timezone: %v", err)
	}
	return loc
}

func testLocation(id, name string) Location {
	return Location{
		LocationID: id,
		Name:       strp(name),
		Address:    strp(name + ", 1 Main St, Burlington, VT 05401"),
		Categories: []string{"Restaurant"},
		Hours:      []DayHours{{Day: "Monday", Hours: "7AM–7PM"}},
	}
}

func testReview(locID, user, text string, ms int64) Review {
	return Review{LocationID: locID, UserID: user, Text: strp(text), Time: i64p(ms), Rating: intp(5)}
}

func TestFormatTimestamp(t *testing.T) {
	loc := newYork(t)
	tests := []struct {
		ms   int64
		want string
	}{
		{1662467100000, "2022-09-06 08:25:00 EDT"},
		{1700000000999, "2023-11-14 17:13:20 EST"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.ms, loc); got != tt.want {
			t.Errorf("FormatTimestamp(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
	if got := FormatTimestamp(-1, time.UTC); got != "1969-12-31 23:59:59 UTC" {
		t.Errorf("expected floored negative time, got %q", got)
	}
}

func TestMergeJoinsAndCleans(t *testing.T) {
	locations := []Location{testLocation("a", "Alpha Diner"), testLocation("b", "Beta Cafe")}
	reviews := []Review{
		testReview("b", "u1", "Great   coffee — “best” in town", 1662467100000),
		testReview("a", "u2", "Pancakes\n\nwere fine", 1700000000000),
		testReview("zzz", "u3", "orphan review", 1700000000000),
	}

	rows, stats := Merge(locations, reviews, MergeOptions{Location: newYork(t)})

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	// location order, then review order
	if rows[0].Name != "Alpha Diner" || rows[1].Name != "Beta Cafe" {
		t.Errorf("unexpected order: %q, %q", rows[0].Name, rows[1].Name)
	}
	if rows[0].Text != "Pancakes were fine" {
		t.Errorf("expected whitespace collapsed, got %q", rows[0].Text)
	}
	if rows[1].Text != `Great coffee - "best" in town` {
		t.Errorf("expected canonical text, got %q", rows[1].Text)
	}
	if rows[1].Time != "2022-09-06 08:25:00 EDT" {
		t.Errorf("unexpected time %q", rows[1].Time)
	}
	if rows[0].ID == "" || rows[0].ID == rows[1].ID {
		t.Errorf("expected distinct derived ids, got %q and %q", rows[0].ID, rows[1].ID)
	}

	want := MergeStats{Locations: 2, Reviews: 3, Unmatched: 1, Joined: 2, Kept: 2}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeDropsAndDedupes(t *testing.T) {
	noHours := testLocation("c", "Gamma Bar")
	noHours.Hours = nil

	locations := []Location{testLocation("a", "Alpha Diner"), noHours, testLocation("a", "Alpha Again")}
	noText := testReview("a", "u4", "", 1)
	noText.Text = nil
	reviews := []Review{
		testReview("a", "u1", "Nice  place", 1000),
		testReview("a", "u2", " Nice place ", 2000),
		testReview("a", "u3", "None", 3000),
		testReview("a", "u5", "   ", 4000),
		noText,
		testReview("c", "u6", "Cold beer", 5000),
	}

	rows, stats := Merge(locations, reviews, MergeOptions{})

	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Text != "Nice place" || rows[0].Index != 0 {
		t.Errorf("expected first occurrence kept, got %+v", rows[0])
	}

	want := MergeStats{
		Locations:          3,
		DuplicateLocations: 1,
		Reviews:            6,
		Joined:             6,
		MissingFields:      2,
		EmptyOrNone:        2,
		Duplicates:         1,
		Kept:               1,
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeKeepsExplicitReviewID(t *testing.T) {
	rv := testReview("a", "u1", "ok", 1000)
	rv.ReviewID = "r-42"
	rows, _ := Merge([]Location{testLocation("a", "Alpha")}, []Review{rv}, MergeOptions{})
	if len(rows) != 1 || rows[0].ID != "r-42" {
		t.Fatalf("expected explicit id kept, got %+v", rows)
	}
}

func TestReviewKeyStable(t *testing.T) {
	a := ReviewKey("loc", "user", 1700000000000)
	b := ReviewKey("loc", "user", 1700000000000)
	c := ReviewKey("loc", "user", 1700000000001)
	if a != b {
		t.Errorf("expected stable key, got %q and %q", a, b)
	}
	if a == c {
		t.Error("expected different key for different time")
	}
}

func TestDayHoursJSON(t *testing.T) {
	var loc Location
	data := `{"gmap_id":"x","name":"Diner","hours":[["Monday","7AM–7PM"],["Sunday","Closed"]],"category":["Diner"]}`
	if err := json.Unmarshal([]byte(data), &loc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []DayHours{{Day: "Monday", Hours: "7AM–7PM"}, {Day: "Sunday", Hours: "Closed"}}
	if diff := cmp.Diff(want, loc.Hours); diff != "" {
		t.Errorf("hours mismatch (-want +got):\n%s", diff)
	}

	row := Row{Hours: loc.Hours}
	if got := row.HoursText(); got != "Monday: 7AM–7PM; Sunday: Closed" {
		t.Errorf("unexpected hours text %q", got)
	}
}

func TestCellsRoundTrip(t *testing.T) {
	lat := 44.47
	row := Row{
		ID:         "r1",
		Index:      7,
		LocationID: "g1",
		Name:       "Alpha",
		Address:    "1 Main St",
		Latitude:   &lat,
		Categories: []string{"Diner", "Cafe"},
		Hours:      []DayHours{{Day: "Monday", Hours: "Closed"}},
		Time:       "2022-09-06 08:25:00 EDT",
		Rating:     intp(4),
		Text:       "Fine",
		Extra:      []Column{{Name: "Relevance Score", Value: "High"}},
	}
	header := Header([]Row{row})
	cells := row.Cells(header)

	got, err := FromCells(header, cells, 99, nil)
	if err != nil {
		t.Fatalf("FromCells: %v", err)
	}
	if diff := cmp.Diff(row, got); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestFromCellsPythonLists(t *testing.T) {
	header := []string{"name", "category", "hours", "text", "price"}
	cells := []string{"Alpha", "['Pizza restaurant', 'Bar']", "[['Monday', '11AM–9PM']]", "Good", "$$"}

	row, err := FromCells(header, cells, 3, []string{"price"})
	if err != nil {
		t.Fatalf("FromCells: %v", err)
	}
	if diff := cmp.Diff([]string{"Pizza restaurant", "Bar"}, row.Categories); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}
	if row.HoursText() != "Monday: 11AM–9PM" {
		t.Errorf("unexpected hours %q", row.HoursText())
	}
	if row.Index != 3 {
		t.Errorf("expected positional index 3, got %d", row.Index)
	}
	if len(row.Extra) != 0 {
		t.Errorf("expected dropped column to be gone, got %+v", row.Extra)
	}

	if _, err := FromCells(header, cells[:2], 0, nil); err == nil {
		t.Error("expected error for short record")
	}
}

func TestCategoryCounts(t *testing.T) {
	rows := []Row{
		{Categories: []string{"Pizza", "Bar"}, Text: "a"},
		{Categories: []string{"Pizza"}, Text: "b"},
		{Categories: []string{"Pizza"}, Text: "b"},
		{Categories: []string{"Cafe"}, Text: "c"},
	}
	want := []CategoryCount{
		{Category: "Pizza", UniqueReviews: 2},
		{Category: "Bar", UniqueReviews: 1},
		{Category: "Cafe", UniqueReviews: 1},
	}
	if diff := cmp.Diff(want, CategoryCounts(rows)); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}
