// Package export turns the input document and the pipeline checkpoints into
// the frontend data document.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/amishk599/leadradar/internal/analysis"
	"github.com/amishk599/leadradar/internal/config"
	"github.com/amishk599/leadradar/internal/fsutil"
	"github.com/amishk599/leadradar/internal/model"
	"github.com/amishk599/leadradar/internal/source"
)

// DataStore is the document consumed by the frontend.
type DataStore struct {
	Companies map[string]*CompanyView `json:"companies"`
	Metadata  Metadata                `json:"metadata"`
}

// Metadata spans the completion times of every result in the document.
type Metadata struct {
	Started   time.Time `json:"started"`
	Completed time.Time `json:"completed"`
	TotalJobs int       `json:"total_jobs"`
}

// CompanyView is one company with everything known about it.
type CompanyView struct {
	Name           string                  `json:"name"`
	Industry       string                  `json:"industry"`
	Website        string                  `json:"website"`
	Employees      string                  `json:"employees"`
	LinkedIn       string                  `json:"linkedin"`
	Jobs           []JobView               `json:"jobs"`
	TrendsAnalysis *analysis.TrendAnalysis `json:"trends_analysis,omitempty"`
	News           *analysis.NewsReport    `json:"news,omitempty"`
	Interviews     *analysis.NewsReport    `json:"interviews,omitempty"`
}

// JobView is a posting and, when the jobs pipeline succeeded on it, its analysis.
type JobView struct {
	Key         string                `json:"key"`
	JobTitle    string                `json:"job_title"`
	JobURL      string                `json:"job_url"`
	JobBoard    string                `json:"job_board"`
	Location    string                `json:"location"`
	Date        string                `json:"date"`
	Description string                `json:"description"`
	Analysis    *analysis.JobAnalysis `json:"analysis"`
	Success     bool                  `json:"success"`
}

// Results holds the checkpoint contents of each pipeline, keyed by identity key.
type Results map[string]map[string]model.Result

// Build assembles the data document. Every company of doc appears, with its
// postings in enumeration order; pipelines without a result for a company
// leave the matching section empty. now fills the metadata when no result exists.
func Build(doc *source.Document, filter model.JobFilter, results Results, now time.Time, logger *slog.Logger) *DataStore {
	enum := source.NewEnumerator(doc, filter)
	ds := &DataStore{Companies: make(map[string]*CompanyView)}

	for item := range enum.AllCompanyItems() {
		c := item.Company
		ds.Companies[c.Name] = &CompanyView{
			Name:      c.Name,
			Industry:  c.Industry,
			Website:   c.Website,
			Employees: c.Employees,
			LinkedIn:  c.LinkedIn,
			Jobs:      []JobView{},
		}
	}

	var span timeSpan
	for item := range enum.JobItems() {
		job, _ := item.Job()
		view := JobView{
			Key:         item.Key,
			JobTitle:    job.Title,
			JobURL:      job.SourceURL(),
			JobBoard:    job.Board,
			Location:    job.Location,
			Date:        job.DateCreation,
			Description: job.Description,
		}
		if r, ok := results[config.PipelineJobs][item.Key]; ok && r.Succeeded() {
			var rec analysis.JobRecord
			if err := json.Unmarshal(r.Payload(), &rec); err != nil {
				logger.Warn("skipping undecodable job analysis", "key", item.Key, "error", err)
			} else {
				view.Analysis = &rec.Analysis
				view.Success = true
				span.add(r.CompletedAt)
			}
		}
		company, ok := ds.Companies[item.Company.Name]
		if !ok {
			logger.Warn("skipping job of unknown company", "key", item.Key)
			continue
		}
		company.Jobs = append(company.Jobs, view)
		ds.Metadata.TotalJobs++
	}

	for name, company := range ds.Companies {
		if r, ok := results[config.PipelineTrends][name]; ok && r.Succeeded() {
			var t analysis.TrendAnalysis
			if decode(logger, config.PipelineTrends, r, &t) {
				company.TrendsAnalysis = &t
				span.add(r.CompletedAt)
			}
		}
		if r, ok := results[config.PipelineNews][name]; ok && r.Succeeded() {
			var n analysis.NewsReport
			if decode(logger, config.PipelineNews, r, &n) {
				company.News = &n
				span.add(r.CompletedAt)
			}
		}
		if r, ok := results[config.PipelineInterviews][name]; ok && r.Succeeded() {
			var n analysis.NewsReport
			if decode(logger, config.PipelineInterviews, r, &n) {
				company.Interviews = &n
				span.add(r.CompletedAt)
			}
		}
	}

	ds.Metadata.Started, ds.Metadata.Completed = span.bounds(now)
	return ds
}

func decode(logger *slog.Logger, pipeline string, r model.Result, v any) bool {
	if err := json.Unmarshal(r.Payload(), v); err != nil {
		logger.Warn("skipping undecodable result", "pipeline", pipeline, "key", r.Key, "error", err)
		return false
	}
	return true
}

type timeSpan struct {
	first, last time.Time
}

func (s *timeSpan) add(t time.Time) {
	if t.IsZero() {
		return
	}
	if s.first.IsZero() || t.Before(s.first) {
		s.first = t
	}
	if t.After(s.last) {
		s.last = t
	}
}

func (s timeSpan) bounds(now time.Time) (time.Time, time.Time) {
	if s.first.IsZero() {
		return now, now
	}
	return s.first, s.last
}

// Names returns the company names sorted alphabetically.
func (ds *DataStore) Names() []string {
	names := make([]string, 0, len(ds.Companies))
	for name := range ds.Companies {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Write saves ds to path atomically.
func Write(path string, ds *DataStore) error {
	if err := fsutil.WriteJSON(path, ds); err != nil {
		return fmt.Errorf("write data document: %w", err)
	}
	return nil
}

// Loader reads the input document and the checkpoints on demand, so long-lived
// readers always see the latest flushed state.
type Loader struct {
	DocPath  string
	Filter   model.JobFilter
	Backends map[string]model.CheckpointBackend
	Logger   *slog.Logger
}

// Results loads the checkpoint of one pipeline.
func (l *Loader) Results(ctx context.Context, pipeline string) (map[string]model.Result, error) {
	b, ok := l.Backends[pipeline]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPipeline, pipeline)
	}
	entries, err := b.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s results: %w", pipeline, err)
	}
	return entries, nil
}

// DataStore builds the data document from the current files.
func (l *Loader) DataStore(ctx context.Context) (*DataStore, error) {
	doc, err := source.Load(l.DocPath)
	if err != nil {
		return nil, err
	}
	results := make(Results, len(l.Backends))
	for name := range l.Backends {
		entries, err := l.Results(ctx, name)
		if err != nil {
			return nil, err
		}
		results[name] = entries
	}
	return Build(doc, l.Filter, results, time.Now().UTC(), l.Logger), nil
}

// Pipelines returns the configured pipeline names, sorted.
func (l *Loader) Pipelines() []string {
	names := make([]string, 0, len(l.Backends))
	for name := range l.Backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
