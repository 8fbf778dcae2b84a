package models

import (
	"fmt"
	"time"
)

// Status tags the outcome of one pipeline stage.
type Status int

const (
	StatusSuccess Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StageResult is the only value passed between pipeline stages.
type StageResult struct {
	Status Status
	ISBN   string
	Reason string
}

// Success reports a completed stage for isbn.
func Success(isbn string) StageResult {
	return StageResult{Status: StatusSuccess, ISBN: isbn}
}

// Skipped reports a stage that did no work.
func Skipped(isbn, reason string) StageResult {
	return StageResult{Status: StatusSkipped, ISBN: isbn, Reason: reason}
}

// Failed reports a stage that gave up on isbn.
func Failed(isbn string, err error) StageResult {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return StageResult{Status: StatusFailed, ISBN: isbn, Reason: reason}
}

// OK reports whether the downstream stage should run.
func (r StageResult) OK() bool {
	return r.Status == StatusSuccess
}

func (r StageResult) String() string {
	if r.Reason == "" {
		return fmt.Sprintf("%s %s", r.ISBN, r.Status)
	}
	return fmt.Sprintf("%s %s: %s", r.ISBN, r.Status, r.Reason)
}

// ChainOutcome summarises one fetch, parse and embed run for a single ISBN.
type ChainOutcome struct {
	RunID      string        `json:"run_id"`
	ISBN       string        `json:"isbn"`
	Fetch      StageResult   `json:"-"`
	Parse      StageResult   `json:"-"`
	Embed      StageResult   `json:"-"`
	FetchState string        `json:"fetch"`
	ParseState string        `json:"parse"`
	EmbedState string        `json:"embed"`
	Reason     string        `json:"reason,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	FinishedAt time.Time     `json:"finished_at"`
}

// NewChainOutcome fills the flattened state columns from the stage results.
func NewChainOutcome(runID, isbn string, fetch, parse, embed StageResult, elapsed time.Duration) *ChainOutcome {
	out := &ChainOutcome{
		RunID:      runID,
		ISBN:       isbn,
		Fetch:      fetch,
		Parse:      parse,
		Embed:      embed,
		FetchState: fetch.Status.String(),
		ParseState: parse.Status.String(),
		EmbedState: embed.Status.String(),
		Duration:   elapsed,
		FinishedAt: time.Now(),
	}
	for _, r := range []StageResult{fetch, parse, embed} {
		if r.Status == StatusFailed {
			out.Reason = r.Reason
			break
		}
	}
	return out
}

// Succeeded reports whether every stage succeeded.
func (o *ChainOutcome) Succeeded() bool {
	return o.Fetch.OK() && o.Parse.OK() && o.Embed.OK()
}

// CSVHeader lists the report columns.
func (o *ChainOutcome) CSVHeader() []string {
	return []string{"run_id", "isbn", "fetch", "parse", "embed", "reason", "duration", "finished_at"}
}

// CSVRecord renders the outcome as a report row.
func (o *ChainOutcome) CSVRecord() []string {
	return []string{
		o.RunID,
		o.ISBN,
		o.FetchState,
		o.ParseState,
		o.EmbedState,
		o.Reason,
		o.Duration.String(),
		o.FinishedAt.Format(time.RFC3339),
	}
}

// RunResult holds the overall result of one coordinator run.
type RunResult struct {
	RunID       string
	Categories  []int
	StartTime   time.Time
	EndTime     time.Time
	Discovered  int
	New         int
	Dispatched  int
	NothingToDo bool
}
