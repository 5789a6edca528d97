// Package verdict decodes the judge's reply into a Decision and classifies
// every row's result as ok, transport failure or decode failure.
package verdict

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Kind tags an Outcome.
type Kind string

const (
	KindOK               Kind = "ok"
	KindTransportFailure Kind = "transport_failure"
	KindDecodeFailure    Kind = "decode_failure"
)

var (
	// ErrTransport wraps any failure to obtain a reply from the judge.
	ErrTransport = eris.New("transport failure")
	// ErrDecode wraps a reply that is not a usable JSON object.
	ErrDecode = eris.New("decode failure")
)

// Policy flag names, as used in replies and output columns.
const (
	FlagAdvertisement = "advertisement"
	FlagIrrelevant    = "irrelevant"
	FlagFalseReview   = "false_review"
	FlagVulgarity     = "vulgarity"
)

// Decision is the structured judgement for one review. Ratings are
// normalized labels; scores are nil when the judge did not give them.
type Decision struct {
	Advertisement     bool     `json:"advertisement"`
	Irrelevant        bool     `json:"irrelevant"`
	FalseReview       bool     `json:"false_review"`
	Vulgarity         bool     `json:"vulgarity"`
	Relevance         string   `json:"relevance"`
	Quality           string   `json:"quality"`
	Justification     string   `json:"justification"`
	RelevanceScore    *float64 `json:"relevance_score,omitempty"`
	QualityScore      *float64 `json:"quality_score,omitempty"`
	VisitedLikelihood *float64 `json:"visited_likelihood,omitempty"`
}

// Flags lists the violated policies in a fixed order.
func (d Decision) Flags() []string {
	var flags []string
	if d.Advertisement {
		flags = append(flags, FlagAdvertisement)
	}
	if d.Irrelevant {
		flags = append(flags, FlagIrrelevant)
	}
	if d.FalseReview {
		flags = append(flags, FlagFalseReview)
	}
	if d.Vulgarity {
		flags = append(flags, FlagVulgarity)
	}
	return flags
}

// Flagged reports whether any policy was violated.
func (d Decision) Flagged() bool {
	return d.Advertisement || d.Irrelevant || d.FalseReview || d.Vulgarity
}

// Outcome is the result for one row. Decision is set only when Kind is
// KindOK. Raw holds the judge's text whenever there was any, so decode
// failures can be inspected. Drift lists values outside the closed
// vocabulary; it never turns an ok outcome into a failure.
type Outcome struct {
	Kind     Kind      `json:"kind"`
	Decision *Decision `json:"decision,omitempty"`
	Raw      string    `json:"raw,omitempty"`
	Err      string    `json:"error,omitempty"`
	Drift    []string  `json:"drift,omitempty"`
}

// OK reports whether a decision was decoded.
func (o Outcome) OK() bool {
	return o.Kind == KindOK && o.Decision != nil
}

// Failed reports whether the outcome is a transport or decode failure.
func (o Outcome) Failed() bool {
	return !o.OK()
}

// TransportFailure builds the outcome for a judge call that produced no text.
func TransportFailure(err error) Outcome {
	msg := "no reply"
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Kind: KindTransportFailure, Err: firstLine(msg)}
}

func decodeFailure(raw, reason string) Outcome {
	return Outcome{Kind: KindDecodeFailure, Raw: raw, Err: reason}
}

// Cause returns the failure as an error wrapping ErrTransport or ErrDecode,
// or nil for an ok outcome.
func (o Outcome) Cause() error {
	switch o.Kind {
	case KindTransportFailure:
		return eris.Wrap(ErrTransport, o.Err)
	case KindDecodeFailure:
		return eris.Wrap(ErrDecode, o.Err)
	}
	if o.Decision == nil {
		return eris.Wrap(ErrDecode, "missing decision")
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
