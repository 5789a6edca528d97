// Package score normalizes rating labels and measures agreement between judge
// output and human ground truth.
package score

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
)

const (
	Low           = "low"
	Average       = "average"
	High          = "high"
	NotApplicable = "n/a"
)

// Dimension names as they appear in ground-truth tables and metrics files.
const (
	Relevance = "Relevance Score"
	Quality   = "Quality Score"
)

// Labels is the closed rating vocabulary in confusion-matrix order.
var Labels = []string{Low, Average, High}

var synonyms = map[string]string{
	"avg":            Average,
	"med":            Average,
	"medium":         Average,
	"mid":            Average,
	"moderate":       Average,
	"na":             NotApplicable,
	"not applicable": NotApplicable,
	"none":           NotApplicable,
}

// ErrLengthMismatch is returned when truth and prediction lists differ in
// length.
var ErrLengthMismatch = eris.New("truth and prediction lengths differ")

// NormalizeLabel trims and case-folds s and maps known synonyms onto the
// vocabulary. Anything else passes through folded, so drift stays visible.
func NormalizeLabel(s string) string {
	folded := cases.Fold().String(strings.TrimSpace(s))
	folded = strings.Join(strings.Fields(folded), " ")
	if mapped, ok := synonyms[folded]; ok {
		return mapped
	}
	return folded
}

// IsLabel reports whether s, already normalized, is in Labels.
func IsLabel(s string) bool {
	return labelIndex(s) >= 0
}

// IsRating reports whether s, already normalized, is a label or n/a.
func IsRating(s string) bool {
	return s == NotApplicable || IsLabel(s)
}

func labelIndex(s string) int {
	for i, l := range Labels {
		if l == s {
			return i
		}
	}
	return -1
}

// LabelStats is precision, recall and F1 for one label.
type LabelStats struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Dimension is the agreement on one rated dimension.
type Dimension struct {
	Accuracy        float64               `json:"accuracy"`
	MacroF1         float64               `json:"macro_f1"`
	Labels          []string              `json:"labels"`
	ConfusionMatrix [][]int               `json:"confusion_matrix"`
	PerLabel        map[string]LabelStats `json:"per_label"`
	Support         int                   `json:"support"`
	Unscored        int                   `json:"unscored"`
}

// Report maps dimension name to its agreement.
type Report map[string]Dimension

// Score compares truth with pred pairwise. Both sides are normalized first.
// A pair agrees when both sides are the same rating, n/a included; error
// markers and drift labels never agree. Pairs where either side is outside
// Labels are left out of the confusion matrix and counted as Unscored. Rows
// of the matrix are truth, columns are predictions, both in Labels order.
// Precision, recall and F1 are 0 when their denominator is 0.
func Score(truth, pred []string) (Dimension, error) {
	if len(truth) != len(pred) {
		return Dimension{}, eris.Wrapf(ErrLengthMismatch, "%d truth vs %d predicted", len(truth), len(pred))
	}

	n := len(Labels)
	d := Dimension{
		Labels:          append([]string(nil), Labels...),
		ConfusionMatrix: make([][]int, n),
		PerLabel:        make(map[string]LabelStats, n),
		Support:         len(truth),
	}
	for i := range d.ConfusionMatrix {
		d.ConfusionMatrix[i] = make([]int, n)
	}

	truthCount := make([]int, n)
	predCount := make([]int, n)
	correct := 0
	for i := range truth {
		tl, pl := NormalizeLabel(truth[i]), NormalizeLabel(pred[i])
		if tl == pl && IsRating(tl) {
			correct++
		}
		t, p := labelIndex(tl), labelIndex(pl)
		if t >= 0 {
			truthCount[t]++
		}
		if p >= 0 {
			predCount[p]++
		}
		if t < 0 || p < 0 {
			d.Unscored++
			continue
		}
		d.ConfusionMatrix[t][p]++
	}

	if len(truth) > 0 {
		d.Accuracy = float64(correct) / float64(len(truth))
	}

	var sumF1 float64
	for i, label := range Labels {
		tp := d.ConfusionMatrix[i][i]
		s := LabelStats{
			Precision: ratio(tp, predCount[i]),
			Recall:    ratio(tp, truthCount[i]),
			Support:   truthCount[i],
		}
		if s.Precision+s.Recall > 0 {
			s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
		}
		d.PerLabel[label] = s
		sumF1 += s.F1
	}
	d.MacroF1 = sumF1 / float64(n)

	return d, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
