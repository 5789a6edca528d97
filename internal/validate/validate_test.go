package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/reviewguard/internal/classify"
	"github.com/TobiSchelling/reviewguard/internal/llm"
	"github.com/TobiSchelling/reviewguard/internal/prompt"
	"github.com/TobiSchelling/reviewguard/internal/score"
	"github.com/TobiSchelling/reviewguard/internal/table"
)

// textProvider answers with the reply whose key appears in the request.
type textProvider map[string]string

func (p textProvider) Complete(_ context.Context, msgs prompt.Messages) (string, error) {
	last := msgs[len(msgs)-1].Content
	for key, reply := range p {
		if strings.Contains(last, `"`+key+`"`) {
			return reply, nil
		}
	}
	return "", eris.New("no scripted reply")
}

func (p textProvider) IsConfigured() bool { return true }
func (p textProvider) Name() string       { return "text" }
func (p textProvider) Model() string      { return "text-1" }

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ground_truth.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func classifier(p llm.Provider) *classify.Classifier {
	return classify.NewClassifier(llm.NewGateway(p, time.Second), prompt.DefaultTemplate())
}

const groundTruth = `review_id,text,name,Relevance Score,Quality Score
a,first review,Diner,Low,High
b,second review,Diner,High,Average
c,third review,Diner,Medium,Low
`

func TestValidateScoresAgainstLabels(t *testing.T) {
	gt, err := LoadGroundTruth(writeCSV(t, groundTruth), Options{}, nil)
	require.NoError(t, err)

	p := textProvider{
		"first review":  `{"relevance":"low","quality":"high"}`,
		"second review": `{"relevance":"high","quality":"average"}`,
		"third review":  `{"relevance":"high","quality":"low"}`,
	}
	res, err := Validate(context.Background(), classifier(p), gt, Options{Workers: 2})
	require.NoError(t, err)
	require.Len(t, res.Results, 3)

	rel := res.Report[score.Relevance]
	assert.InDelta(t, 2.0/3.0, rel.Accuracy, 1e-9)
	assert.Equal(t, [][]int{{1, 0, 0}, {0, 0, 1}, {0, 0, 1}}, rel.ConfusionMatrix)

	qual := res.Report[score.Quality]
	assert.Equal(t, 1.0, qual.Accuracy)
	assert.Equal(t, 1.0, qual.MacroF1)
}

func TestValidateFailedRowsCountAsMisses(t *testing.T) {
	gt, err := LoadGroundTruth(writeCSV(t, groundTruth), Options{}, nil)
	require.NoError(t, err)

	p := textProvider{
		"first review":  `{"relevance":"low","quality":"high"}`,
		"second review": "not json",
	}
	res, err := Validate(context.Background(), classifier(p), gt, Options{})
	require.NoError(t, err)

	rel := res.Report[score.Relevance]
	assert.InDelta(t, 1.0/3.0, rel.Accuracy, 1e-9)
	assert.Equal(t, 2, rel.Unscored)
	assert.Equal(t, 3, rel.Support)
}

func TestValidateLimit(t *testing.T) {
	gt, err := LoadGroundTruth(writeCSV(t, groundTruth), Options{}, nil)
	require.NoError(t, err)

	p := textProvider{"first review": `{"relevance":"low","quality":"high"}`}
	res, err := Validate(context.Background(), classifier(p), gt, Options{Limit: 1})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "a", res.Rows[0].ID)
	assert.Equal(t, 1.0, res.Report[score.Relevance].Accuracy)
}

func TestLoadGroundTruthMissingColumns(t *testing.T) {
	path := writeCSV(t, "text,Relevance Score\nhello,low\n")

	_, err := LoadGroundTruth(path, Options{}, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, table.ErrMissingColumns))
	assert.Contains(t, err.Error(), "Quality Score")
}

func TestLoadGroundTruthCustomColumns(t *testing.T) {
	path := writeCSV(t, "text,rel,qual\nhello,low,high\n")

	gt, err := LoadGroundTruth(path, Options{RelevanceColumn: "rel", QualityColumn: "qual"}, nil)
	require.NoError(t, err)
	require.Len(t, gt.Rows, 1)
	v, ok := gt.Rows[0].Get("rel")
	assert.True(t, ok)
	assert.Equal(t, "low", v)
}

func TestWriteMetricsShape(t *testing.T) {
	d, err := score.Score([]string{"low"}, []string{"low"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteMetrics(&buf, score.Report{score.Relevance: d}))

	var got map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Contains(t, got, "Relevance Score")
	assert.Equal(t, 1.0, got["Relevance Score"]["accuracy"])
	assert.Equal(t, []any{"low", "average", "high"}, got["Relevance Score"]["labels"])
}
