package verdict

import (
	"errors"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
)

const canonicalReply = `{"advertisement": false, "irrelevant": false, "false_review": false, "vulgarity": false,
"relevance": "high", "quality": "Medium", "justification": "Specific dishes and staff.",
"relevance_score": 90, "quality_score": 70, "visited_likelihood": 95}`

func TestDecodePlain(t *testing.T) {
	out := Decode(canonicalReply)
	if !out.OK() {
		t.Fatalf("expected ok outcome, got %+v", out)
	}
	d := out.Decision
	if d.Relevance != "high" {
		t.Errorf("expected relevance 'high', got %q", d.Relevance)
	}
	if d.Quality != "average" {
		t.Errorf("expected quality normalized to 'average', got %q", d.Quality)
	}
	if d.Flagged() {
		t.Errorf("expected no flags, got %v", d.Flags())
	}
	if d.RelevanceScore == nil || *d.RelevanceScore != 90 {
		t.Errorf("expected relevance score 90, got %v", d.RelevanceScore)
	}
	if d.VisitedLikelihood == nil || *d.VisitedLikelihood != 95 {
		t.Errorf("expected visited likelihood 95, got %v", d.VisitedLikelihood)
	}
	if len(out.Drift) != 0 {
		t.Errorf("expected no drift, got %v", out.Drift)
	}
}

func TestDecodeFencedMatchesPlain(t *testing.T) {
	plain := Decode(canonicalReply)
	for _, raw := range []string{
		"```json\n" + canonicalReply + "\n```",
		"```\n" + canonicalReply + "\n```",
		"```JSON " + canonicalReply + "```",
		"  \n" + canonicalReply + "  \n",
	} {
		out := Decode(raw)
		if !out.OK() {
			t.Fatalf("expected ok for %q, got %+v", raw, out)
		}
		if *out.Decision.RelevanceScore != *plain.Decision.RelevanceScore ||
			out.Decision.Relevance != plain.Decision.Relevance ||
			out.Decision.Quality != plain.Decision.Quality ||
			out.Decision.Justification != plain.Decision.Justification {
			t.Errorf("fenced decode differs from plain for %q", raw)
		}
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{
		"not json at all",
		`{"relevance": "high"`,
		"[1, 2, 3]",
		"",
		"null",
		`{"foo": "bar"}`,
	} {
		out := Decode(raw)
		if out.Kind != KindDecodeFailure {
			t.Errorf("expected decode failure for %q, got %q", raw, out.Kind)
			continue
		}
		if out.Raw != raw {
			t.Errorf("expected raw text preserved for %q, got %q", raw, out.Raw)
		}
		if out.Decision != nil {
			t.Errorf("expected no decision for %q", raw)
		}
		if !eris.Is(out.Cause(), ErrDecode) {
			t.Errorf("expected cause to wrap ErrDecode, got %v", out.Cause())
		}
	}
}

func TestDecodeNarratedReply(t *testing.T) {
	raw := "Sure! Here is the evaluation:\n" + canonicalReply + "\nLet me know if you need more."
	out := Decode(raw)
	if !out.OK() {
		t.Fatalf("expected embedded object to decode, got %+v", out)
	}
	if out.Decision.Relevance != "high" {
		t.Errorf("expected relevance 'high', got %q", out.Decision.Relevance)
	}
}

func TestDecodeLegacyPolicyFlags(t *testing.T) {
	raw := `{"relevance": "low", "quality": "low", "policy_flags": ["advertisement", "False Review", "spam"],
"justification": ["Links to a website.", "No visit details."]}`
	out := Decode(raw)
	if !out.OK() {
		t.Fatalf("expected ok, got %+v", out)
	}
	d := out.Decision
	if !d.Advertisement || !d.FalseReview || d.Irrelevant || d.Vulgarity {
		t.Errorf("unexpected flags %v", d.Flags())
	}
	if d.Justification != "Links to a website. No visit details." {
		t.Errorf("expected joined justification, got %q", d.Justification)
	}
	if len(out.Drift) != 1 || out.Drift[0] != "policy_flags=spam" {
		t.Errorf("expected unknown flag as drift, got %v", out.Drift)
	}
}

func TestDecodeDriftIsSoft(t *testing.T) {
	raw := `{"advertisement": false, "irrelevant": false, "false_review": false, "vulgarity": false,
"relevance": "Excellent", "quality": "high", "justification": "x"}`
	out := Decode(raw)
	if !out.OK() {
		t.Fatalf("expected drift to stay ok, got %+v", out)
	}
	if out.Decision.Relevance != "excellent" {
		t.Errorf("expected drifted label kept verbatim (folded), got %q", out.Decision.Relevance)
	}
	if len(out.Drift) != 1 || !strings.HasPrefix(out.Drift[0], "relevance=") {
		t.Errorf("expected relevance drift, got %v", out.Drift)
	}
}

func TestDecodeFlaggedDefaultsToNotApplicable(t *testing.T) {
	out := Decode(`{"advertisement": true, "irrelevant": false, "false_review": false, "vulgarity": "no", "justification": "promo code"}`)
	if !out.OK() {
		t.Fatalf("expected ok, got %+v", out)
	}
	if out.Decision.Relevance != "n/a" || out.Decision.Quality != "n/a" {
		t.Errorf("expected n/a ratings, got %q/%q", out.Decision.Relevance, out.Decision.Quality)
	}
	if len(out.Drift) != 0 {
		t.Errorf("expected no drift, got %v", out.Drift)
	}
}

func TestDecodeScoreKeysFromLabelNames(t *testing.T) {
	out := Decode(`{"Relevance Score": "HIGH", "Quality Score": "avg", "quality_score": "40"}`)
	if !out.OK() {
		t.Fatalf("expected ok, got %+v", out)
	}
	if out.Decision.Relevance != "high" || out.Decision.Quality != "average" {
		t.Errorf("unexpected ratings %q/%q", out.Decision.Relevance, out.Decision.Quality)
	}
	if out.Decision.QualityScore == nil || *out.Decision.QualityScore != 40 {
		t.Errorf("expected quality score from string, got %v", out.Decision.QualityScore)
	}
}

func TestTransportFailure(t *testing.T) {
	out := TransportFailure(errors.New("context deadline exceeded\nmore detail"))
	if out.Kind != KindTransportFailure {
		t.Fatalf("expected transport failure, got %q", out.Kind)
	}
	if out.Raw != "" {
		t.Errorf("expected empty raw, got %q", out.Raw)
	}
	if out.Err != "context deadline exceeded" {
		t.Errorf("expected first line of error, got %q", out.Err)
	}
	if !eris.Is(out.Cause(), ErrTransport) {
		t.Errorf("expected cause to wrap ErrTransport, got %v", out.Cause())
	}
	if out.OK() {
		t.Error("expected failure not to be ok")
	}
}
