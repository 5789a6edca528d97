package signals

import (
	"sort"
	"strings"
)

// Report is the combined output of every detector for one text.
type Report struct {
	URLs         []string            `json:"urls,omitempty"`
	Emails       []string            `json:"emails,omitempty"`
	Phones       []string            `json:"phones,omitempty"`
	Handles      map[string][]string `json:"handles,omitempty"`
	Promo        bool                `json:"promo,omitempty"`
	CallToAction bool                `json:"call_to_action,omitempty"`
}

// Scan runs all detectors over text.
func Scan(text string) Report {
	return Report{
		URLs:         FindURLs(text),
		Emails:       FindEmails(text),
		Phones:       FindPhoneNumbers(text),
		Handles:      FindSocialHandles(text),
		Promo:        HasPromoLanguage(text),
		CallToAction: HasCallToAction(text),
	}
}

// Flagged reports whether any detector fired.
func (r Report) Flagged() bool {
	return len(r.URLs) > 0 || len(r.Emails) > 0 || len(r.Phones) > 0 ||
		len(r.Handles) > 0 || r.Promo || r.CallToAction
}

// Kinds lists the detectors that fired, in a fixed order, e.g.
// "url,phone,handle:dm,promo".
func (r Report) Kinds() []string {
	var kinds []string
	if len(r.URLs) > 0 {
		kinds = append(kinds, "url")
	}
	if len(r.Emails) > 0 {
		kinds = append(kinds, "email")
	}
	if len(r.Phones) > 0 {
		kinds = append(kinds, "phone")
	}
	handles := make([]string, 0, len(r.Handles))
	for k := range r.Handles {
		handles = append(handles, k)
	}
	sort.Strings(handles)
	for _, k := range handles {
		kinds = append(kinds, "handle:"+k)
	}
	if r.Promo {
		kinds = append(kinds, "promo")
	}
	if r.CallToAction {
		kinds = append(kinds, "cta")
	}
	return kinds
}

// String renders Kinds as a comma separated list.
func (r Report) String() string {
	return strings.Join(r.Kinds(), ",")
}

// Redact masks URLs, emails and phone numbers so audit output does not repeat
// contact details.
func Redact(text string) string {
	text = urlPattern.ReplaceAllString(text, "[url]")
	text = emailPattern.ReplaceAllString(text, "[email]")
	return phonePattern.ReplaceAllString(text, "[phone]")
}
