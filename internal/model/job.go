package model

import (
	"context"
	"strings"
	"time"
)

// Company is a prospect account as it appears in the input document.
type Company struct {
	Name      string `json:"name" yaml:"name"`
	Website   string `json:"website,omitempty" yaml:"website"`
	LinkedIn  string `json:"linkedin,omitempty" yaml:"linkedin"`
	Industry  string `json:"industry,omitempty" yaml:"industry"`
	Employees string `json:"employees,omitempty" yaml:"employees"`

	// GreenhouseBoard is the public Greenhouse board token; when set, jobs are
	// read from the board instead of the jobs-data provider.
	GreenhouseBoard string `json:"greenhouse_board,omitempty" yaml:"greenhouse_board"`
}

// Job is a single job posting returned by the jobs-data provider.
type Job struct {
	Title        string `json:"job_title"`
	Location     string `json:"location,omitempty"`
	Description  string `json:"description,omitempty"`
	DateCreation string `json:"date_creation,omitempty"`
	LastSeen     string `json:"last_seen,omitempty"`
	URL          string `json:"job_url,omitempty"`
	BoardURL     string `json:"job_board_url,omitempty"`
	Board        string `json:"job_board,omitempty"`
}

// SourceURL returns the most specific link to the posting, or "" if none.
func (j Job) SourceURL() string {
	if j.URL != "" {
		return j.URL
	}
	return j.BoardURL
}

// PostedAt parses DateCreation. The provider mixes RFC 3339 timestamps and
// bare dates; nil means the date is absent or unparseable.
func (j Job) PostedAt() *time.Time {
	s := strings.TrimSpace(j.DateCreation)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// CompanyJobs is one provider response for a company.
type CompanyJobs struct {
	Jobs             []Job
	Total            int
	CreditsRemaining *int
	CreditsCost      int
}

// JobsFetcher fetches job postings for a company from the jobs-data provider.
type JobsFetcher interface {
	FetchCompanyJobs(ctx context.Context, company Company) (CompanyJobs, error)
}

// JobFilter decides whether a job is worth sending through a pipeline.
type JobFilter interface {
	Match(job Job) bool
}

// CheckpointBackend persists the full checkpoint map. Load returns an empty map
// when nothing has been persisted yet.
type CheckpointBackend interface {
	Load(ctx context.Context) (map[string]Result, error)
	Save(ctx context.Context, entries map[string]Result) error
}

// RunLedger keeps a history of pipeline runs.
type RunLedger interface {
	RecordRun(ctx context.Context, report RunReport) error
	ListRuns(ctx context.Context, limit int) ([]RunReport, error)
}

// Notifier delivers the end-of-run report.
type Notifier interface {
	Notify(report RunReport) error
}
