package records

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// DayHours is one entry of a location's opening hours, e.g. Monday / 7AM–7PM.
type DayHours struct {
	Day   string
	Hours string
}

// UnmarshalJSON accepts the ["Monday", "7AM–7PM"] pair form used by exports.
func (d *DayHours) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err == nil {
		switch len(pair) {
		case 0:
			return nil
		case 1:
			d.Day = pair[0]
			return nil
		default:
			d.Day, d.Hours = pair[0], pair[1]
			return nil
		}
	}
	var obj struct {
		Day   string `json:"day"`
		Hours string `json:"hours"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return eris.Wrap(err, "decoding opening hours")
	}
	d.Day, d.Hours = obj.Day, obj.Hours
	return nil
}

// MarshalJSON writes the pair form back out.
func (d DayHours) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{d.Day, d.Hours})
}

// Location is one line of the metadata export.
type Location struct {
	LocationID      string     `json:"gmap_id"`
	Name            *string    `json:"name"`
	Address         *string    `json:"address"`
	Description     *string    `json:"description"`
	Latitude        *float64   `json:"latitude"`
	Longitude       *float64   `json:"longitude"`
	Categories      []string   `json:"category"`
	AvgRating       *float64   `json:"avg_rating"`
	NumReviews      *int       `json:"num_of_reviews"`
	Price           *string    `json:"price"`
	Hours           []DayHours `json:"hours"`
	State           *string    `json:"state"`
	URL             *string    `json:"url"`
	Misc            any        `json:"MISC"`
	RelativeResults []string   `json:"relative_results"`
}

// Review is one line of the review export.
type Review struct {
	ReviewID   string  `json:"review_id,omitempty"`
	LocationID string  `json:"gmap_id"`
	UserID     string  `json:"user_id"`
	UserName   *string `json:"name"`
	Time       *int64  `json:"time"`
	Rating     *int    `json:"rating"`
	Text       *string `json:"text"`
	Pics       any     `json:"pics"`
	Response   any     `json:"resp"`
}

// Column is a passthrough cell carried from a tabular input.
type Column struct {
	Name  string
	Value string
}

// Row is a cleaned review joined with its location. It is the unit every
// later stage works on.
type Row struct {
	ID         string
	Index      int
	LocationID string
	Name       string
	Address    string
	Latitude   *float64
	Longitude  *float64
	Categories []string
	Hours      []DayHours
	Time       string
	Rating     *int
	Text       string
	Extra      []Column
}

// CategoryText renders the category list for prompts and reports.
func (r Row) CategoryText() string {
	return strings.Join(r.Categories, ", ")
}

// HoursText renders opening hours as "Monday: 7AM–7PM; Tuesday: Closed".
func (r Row) HoursText() string {
	parts := make([]string, 0, len(r.Hours))
	for _, h := range r.Hours {
		if h.Hours == "" {
			parts = append(parts, h.Day)
			continue
		}
		parts = append(parts, h.Day+": "+h.Hours)
	}
	return strings.Join(parts, "; ")
}

// Get returns a passthrough column by name.
func (r Row) Get(name string) (string, bool) {
	for _, c := range r.Extra {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}
