package model

import (
	"fmt"
	"time"
)

// ItemKind tells which level of the input document a WorkItem was built from.
type ItemKind string

const (
	KindJob     ItemKind = "job"
	KindCompany ItemKind = "company"
)

// WorkItem is one unit of work sent through the external call.
// Job items carry exactly one Job; company items carry every job of the company.
type WorkItem struct {
	Key     string
	Kind    ItemKind
	Company Company
	Jobs    []Job
}

// Job returns the posting of a job-level item.
func (w WorkItem) Job() (Job, bool) {
	if w.Kind != KindJob || len(w.Jobs) != 1 {
		return Job{}, false
	}
	return w.Jobs[0], true
}

// Lead is a scored prospect surfaced in run reports.
type Lead struct {
	Key            string
	Company        string
	Title          string
	Score          int
	Recommendation string
}

// RunReport is the end-of-run tally of one pipeline run.
type RunReport struct {
	RunID      string
	Pipeline   string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int // items enumerated
	Skipped    int // already succeeded in the checkpoint
	Succeeded  int
	Failed     int
	Tokens     int
	Flushes    int
	TopLeads   []Lead
}

// Processed is the number of items dispatched during the run.
func (r RunReport) Processed() int {
	return r.Succeeded + r.Failed
}

// Duration is the wall-clock time of the run.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Tally formats the end-of-run counts, e.g. "6 success / 1 failure / 7 total".
func (r RunReport) Tally() string {
	return fmt.Sprintf("%d success / %d failure / %d total", r.Succeeded, r.Failed, r.Processed())
}
