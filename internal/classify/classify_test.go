package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/TobiSchelling/reviewguard/internal/llm"
	"github.com/TobiSchelling/reviewguard/internal/prompt"
	"github.com/TobiSchelling/reviewguard/internal/records"
	"github.com/TobiSchelling/reviewguard/internal/verdict"
)

// scriptedProvider answers from a table keyed by review text and records
// every request it receives.
type scriptedProvider struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	delay   func(text string) time.Duration
	seen    []string
}

func (s *scriptedProvider) Complete(ctx context.Context, msgs prompt.Messages) (string, error) {
	last := msgs[len(msgs)-1].Content
	var text string
	for key := range s.replies {
		if strings.Contains(last, `"`+key+`"`) {
			text = key
		}
	}
	for key := range s.errs {
		if strings.Contains(last, `"`+key+`"`) {
			text = key
		}
	}

	s.mu.Lock()
	s.seen = append(s.seen, text)
	s.mu.Unlock()

	if s.delay != nil {
		select {
		case <-time.After(s.delay(text)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err, ok := s.errs[text]; ok {
		return "", err
	}
	return s.replies[text], nil
}

func (s *scriptedProvider) IsConfigured() bool { return true }
func (s *scriptedProvider) Name() string       { return "scripted" }
func (s *scriptedProvider) Model() string      { return "script-1" }

func newClassifier(p llm.Provider) *Classifier {
	return NewClassifier(llm.NewGateway(p, time.Second), prompt.DefaultTemplate())
}

func testRows(n int) []records.Row {
	rows := make([]records.Row, n)
	for i := range rows {
		rows[i] = records.Row{
			ID:    fmt.Sprintf("r%d", i),
			Index: i,
			Name:  "Diner",
			Text:  fmt.Sprintf("review number %d", i),
		}
	}
	return rows
}

func okReply(relevance string) string {
	return fmt.Sprintf(`{"advertisement":false,"irrelevant":false,"false_review":false,"vulgarity":false,`+
		`"relevance":%q,"quality":"average","justification":"fine"}`, relevance)
}

func TestClassifyDecodesReply(t *testing.T) {
	row := records.Row{ID: "a", Index: 3, Name: "Diner", Text: "Visit www.eggs.com for a coupon"}
	p := &scriptedProvider{replies: map[string]string{row.Text: "```json\n" + okReply("high") + "\n```"}}

	res := newClassifier(p).Classify(context.Background(), row)

	require.True(t, res.Outcome.OK())
	assert.Equal(t, "a", res.RowID)
	assert.Equal(t, 3, res.Index)
	assert.Equal(t, "high", res.Outcome.Decision.Relevance)
	assert.Equal(t, "average", res.Outcome.Decision.Quality)
	assert.True(t, res.Signals.Flagged())
	assert.Equal(t, []string{"www.eggs.com"}, res.Signals.URLs)
}

func TestClassifyTransportFailure(t *testing.T) {
	row := records.Row{ID: "a", Text: "slow"}
	p := &scriptedProvider{errs: map[string]error{"slow": errors.New("429 rate limited\nretry later")}}

	res := newClassifier(p).Classify(context.Background(), row)

	assert.Equal(t, verdict.KindTransportFailure, res.Outcome.Kind)
	assert.Empty(t, res.Outcome.Raw)
	assert.Contains(t, res.Outcome.Err, "429")
	assert.NotContains(t, res.Outcome.Err, "retry later")
}

func TestClassifyDecodeFailureKeepsRaw(t *testing.T) {
	row := records.Row{ID: "a", Text: "odd"}
	p := &scriptedProvider{replies: map[string]string{"odd": "I think this review is fine."}}

	res := newClassifier(p).Classify(context.Background(), row)

	assert.Equal(t, verdict.KindDecodeFailure, res.Outcome.Kind)
	assert.Equal(t, "I think this review is fine.", res.Outcome.Raw)
	assert.Nil(t, res.Outcome.Decision)
}

func TestClassifyWithoutGateway(t *testing.T) {
	res := NewClassifier(nil, prompt.DefaultTemplate()).Classify(context.Background(), records.Row{ID: "a"})
	assert.Equal(t, verdict.KindTransportFailure, res.Outcome.Kind)
}

func TestRunSequentialKeepsOrder(t *testing.T) {
	rows := testRows(4)
	p := &scriptedProvider{replies: map[string]string{}}
	for _, r := range rows {
		p.replies[r.Text] = okReply("low")
	}

	results, err := Run(context.Background(), newClassifier(p), rows, Options{Workers: 1})
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, rows[i].ID, r.RowID)
	}
	assert.Equal(t, []string{rows[0].Text, rows[1].Text, rows[2].Text, rows[3].Text}, p.seen)
}

func TestRunParallelAlignsResultsByID(t *testing.T) {
	defer goleak.VerifyNone(t)

	rows := testRows(12)
	p := &scriptedProvider{
		replies: map[string]string{},
		// Earlier rows finish last.
		delay: func(text string) time.Duration {
			var n int
			fmt.Sscanf(text, "review number %d", &n)
			return time.Duration(12-n) * 3 * time.Millisecond
		},
	}
	labels := []string{"low", "average", "high"}
	for i, r := range rows {
		p.replies[r.Text] = okReply(labels[i%3])
	}

	var progress []int
	var mu sync.Mutex
	results, err := Run(context.Background(), newClassifier(p), rows, Options{
		Workers: 4,
		Progress: func(done, total int) {
			mu.Lock()
			progress = append(progress, done)
			mu.Unlock()
			assert.Equal(t, 12, total)
		},
	})
	require.NoError(t, err)
	require.Len(t, results, len(rows))

	for i, r := range results {
		assert.Equal(t, rows[i].ID, r.RowID)
		assert.Equal(t, rows[i].Index, r.Index)
		require.True(t, r.Outcome.OK(), "row %d", i)
		assert.Equal(t, labels[i%3], r.Outcome.Decision.Relevance)
	}
	assert.Len(t, progress, 12)
	assert.Equal(t, 12, progress[len(progress)-1])
}

func TestRunCancelledRowsStillYieldResults(t *testing.T) {
	defer goleak.VerifyNone(t)

	rows := testRows(6)
	p := &scriptedProvider{replies: map[string]string{}}
	for _, r := range rows {
		p.replies[r.Text] = okReply("high")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 3} {
		results, err := Run(ctx, newClassifier(p), rows, Options{Workers: workers})
		require.NoError(t, err)
		require.Len(t, results, 6)
		for i, r := range results {
			assert.Equal(t, rows[i].ID, r.RowID)
			assert.Equal(t, verdict.KindTransportFailure, r.Outcome.Kind)
			assert.Contains(t, r.Outcome.Err, "context canceled")
		}
	}
	assert.Empty(t, p.seen)
}

func TestRunRejectsDuplicateIDs(t *testing.T) {
	rows := testRows(2)
	rows[1].ID = rows[0].ID

	_, err := Run(context.Background(), newClassifier(&scriptedProvider{}), rows, Options{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicateID))
}

func TestSummarize(t *testing.T) {
	flagged := verdict.Decision{Advertisement: true, Relevance: "n/a", Quality: "n/a"}
	clean := verdict.Decision{Relevance: "high", Quality: "low"}
	results := []Result{
		{Outcome: verdict.Outcome{Kind: verdict.KindOK, Decision: &flagged}},
		{Outcome: verdict.Outcome{Kind: verdict.KindOK, Decision: &clean, Drift: []string{"great"}}, Cached: true},
		{Outcome: verdict.Outcome{Kind: verdict.KindTransportFailure}},
		{Outcome: verdict.Outcome{Kind: verdict.KindDecodeFailure}},
	}

	s := Summarize(results)
	assert.Equal(t, Summary{
		Processed:         4,
		OK:                2,
		Flagged:           1,
		TransportFailures: 1,
		DecodeFailures:    1,
		Drift:             1,
		Cached:            1,
	}, s)
}

func TestSample(t *testing.T) {
	rows := testRows(10)

	got, err := Sample(rows, 4, 3, 42)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, r := range got {
		assert.GreaterOrEqual(t, r.Index, 4)
	}

	again, err := Sample(rows, 4, 3, 42)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	all, err := Sample(rows, 8, 50, 1)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = Sample(rows, 10, 1, 1)
	assert.Error(t, err)
}
