package verdict

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/TobiSchelling/reviewguard/internal/score"
)

var (
	openFence  = regexp.MustCompile("(?i)^```[a-z0-9_+-]*[ \t]*\r?\n?")
	closeFence = regexp.MustCompile("\\s*```\\s*$")
)

var flagAliases = map[string]string{
	"advertisement":      FlagAdvertisement,
	"advertisements":     FlagAdvertisement,
	"ad":                 FlagAdvertisement,
	"ads":                FlagAdvertisement,
	"promotion":          FlagAdvertisement,
	"irrelevant":         FlagIrrelevant,
	"irrelevant_content": FlagIrrelevant,
	"false_review":       FlagFalseReview,
	"false_reviews":      FlagFalseReview,
	"fake_review":        FlagFalseReview,
	"rant":               FlagFalseReview,
	"vulgarity":          FlagVulgarity,
	"profanity":          FlagVulgarity,
}

// StripFences removes a leading ``` fence (with optional language tag) and a
// trailing ``` fence. Text without fences is only trimmed.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = openFence.ReplaceAllString(s, "")
	s = closeFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Decode turns a raw judge reply into an Outcome. It never panics: text that
// is not a JSON object, even after fence stripping and a retry on the
// outermost {...} span, becomes a decode failure carrying raw.
func Decode(raw string) Outcome {
	text := StripFences(raw)
	if text == "" {
		return decodeFailure(raw, "empty reply")
	}

	obj, err := parseObject(text)
	if err != nil {
		start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}')
		if start < 0 || end <= start {
			return decodeFailure(raw, err.Error())
		}
		obj, err = parseObject(text[start : end+1])
		if err != nil {
			return decodeFailure(raw, err.Error())
		}
	}

	d, drift, ok := toDecision(obj)
	if !ok {
		return decodeFailure(raw, "reply has none of the expected fields")
	}
	return Outcome{Kind: KindOK, Decision: &d, Raw: raw, Drift: drift}
}

func parseObject(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if rest := strings.TrimSpace(text[dec.InputOffset():]); rest != "" {
		return nil, eris.New("trailing data after JSON object")
	}
	if obj == nil {
		return nil, eris.New("reply is not a JSON object")
	}
	return obj, nil
}

func toDecision(obj map[string]any) (Decision, []string, bool) {
	var d Decision
	var drift []string
	recognized := false

	setFlag := func(name string, v bool) {
		switch name {
		case FlagAdvertisement:
			d.Advertisement = d.Advertisement || v
		case FlagIrrelevant:
			d.Irrelevant = d.Irrelevant || v
		case FlagFalseReview:
			d.FalseReview = d.FalseReview || v
		case FlagVulgarity:
			d.Vulgarity = d.Vulgarity || v
		}
	}

	for _, name := range []string{FlagAdvertisement, FlagIrrelevant, FlagFalseReview, FlagVulgarity} {
		v, ok := obj[name]
		if !ok {
			continue
		}
		recognized = true
		b, ok := asBool(v)
		if !ok {
			drift = append(drift, fmt.Sprintf("%s=%v", name, v))
			continue
		}
		setFlag(name, b)
	}

	if v, ok := obj["policy_flags"]; ok {
		recognized = true
		items, _ := v.([]any)
		for _, item := range items {
			s, _ := item.(string)
			key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
			name, known := flagAliases[key]
			if !known {
				drift = append(drift, "policy_flags="+s)
				continue
			}
			setFlag(name, true)
		}
	}

	var relOK, qualOK bool
	d.Relevance, relOK = rating(obj, "relevance", score.Relevance)
	d.Quality, qualOK = rating(obj, "quality", score.Quality)
	recognized = recognized || relOK || qualOK

	for _, r := range []struct {
		name  string
		value string
		found bool
	}{{"relevance", d.Relevance, relOK}, {"quality", d.Quality, qualOK}} {
		if r.found && !score.IsRating(r.value) {
			drift = append(drift, r.name+"="+r.value)
		}
	}
	if d.Flagged() {
		if !relOK {
			d.Relevance = score.NotApplicable
		}
		if !qualOK {
			d.Quality = score.NotApplicable
		}
	} else {
		if !relOK {
			drift = append(drift, "relevance missing")
		}
		if !qualOK {
			drift = append(drift, "quality missing")
		}
	}

	d.RelevanceScore = number(obj, "relevance_score", score.Relevance)
	d.QualityScore = number(obj, "quality_score", score.Quality)
	d.VisitedLikelihood = number(obj, "visited_likelihood")

	if v, ok := obj["justification"]; ok {
		recognized = true
		d.Justification = joinText(v)
	}

	return d, drift, recognized
}

// rating finds the first string value under keys and normalizes it.
func rating(obj map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok {
			return score.NormalizeLabel(s), true
		}
	}
	return "", false
}

// number finds the first numeric value under keys.
func number(obj map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return &f
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "y", "1":
			return true, true
		case "false", "no", "n", "0", "":
			return false, true
		}
	case json.Number:
		switch b.String() {
		case "1":
			return true, true
		case "0":
			return false, true
		}
	case nil:
		return false, true
	}
	return false, false
}

func joinText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := joinText(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
