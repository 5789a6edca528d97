package database

// Run statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Run is one invocation of a command that classified or validated rows.
type Run struct {
	ID              string
	Command         string
	Provider        *string
	Model           *string
	TemplateVersion *string
	Status          string
	RowCount        int
	MergeStats      *string // JSON
	Error           *string
	StartedAt       *string
	FinishedAt      *string
}

// ResultStats counts the stored results of a run.
type ResultStats struct {
	Total             int
	OK                int
	Flagged           int
	TransportFailures int
	DecodeFailures    int
	Cached            int
}

// Stats contains aggregate database statistics.
type Stats struct {
	Runs         int
	FinishedRuns int
	Rows         int
	Results      int
	Failures     int
	Reports      int
}
