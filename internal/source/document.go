package source

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"sort"

	"github.com/amishk599/leadradar/internal/fsutil"
	"github.com/amishk599/leadradar/internal/model"
)

// Document is the input file written by `leadradar fetch`: a companies
// collection, each entry with its job postings.
type Document struct {
	TotalCompanies    int            `json:"total_companies"`
	TotalJobs         int            `json:"total_jobs"`
	CompaniesWithJobs int            `json:"companies_with_jobs"`
	FetchedAt         string         `json:"fetched_at,omitempty"`
	Companies         []CompanyEntry `json:"companies"`
}

// CompanyEntry is one company and the outcome of fetching its jobs.
type CompanyEntry struct {
	Company          model.Company `json:"company"`
	Success          bool          `json:"success"`
	Error            string        `json:"error,omitempty"`
	NbJobs           int           `json:"nb_jobs"`
	CreditsRemaining *int          `json:"credits_remaining,omitempty"`
	CreditsCost      int           `json:"credits_cost,omitempty"`
	Jobs             []model.Job   `json:"jobs"`
}

// Load reads and decodes the input document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse input document %s: %w", path, err)
	}
	return &doc, nil
}

// Enumerator turns a Document into WorkItems. A nil filter passes every job.
type Enumerator struct {
	doc    *Document
	filter model.JobFilter
}

// NewEnumerator returns an enumerator over doc.
func NewEnumerator(doc *Document, filter model.JobFilter) *Enumerator {
	return &Enumerator{doc: doc, filter: filter}
}

// JobItems yields one WorkItem per distinct job posting. The sequence can be
// ranged over any number of times and yields the same keys every time.
// Entries without a company name are skipped, as in the company sequences.
func (e *Enumerator) JobItems() iter.Seq[model.WorkItem] {
	return func(yield func(model.WorkItem) bool) {
		collisions := e.baseKeyCounts()
		emitted := make(map[string]bool)

		for _, entry := range e.doc.Companies {
			if entry.Company.Name == "" {
				continue
			}
			for _, job := range entry.Jobs {
				if !e.match(job) {
					continue
				}
				key := JobKey(entry.Company.Name, job)
				if collisions[key] > 1 {
					key += "#" + jobFingerprint(job)
				}
				if emitted[key] {
					continue
				}
				emitted[key] = true

				item := model.WorkItem{
					Key:     key,
					Kind:    model.KindJob,
					Company: entry.Company,
					Jobs:    []model.Job{job},
				}
				if !yield(item) {
					return
				}
			}
		}
	}
}

// CompanyItems yields one WorkItem per company that has at least one job left
// after filtering. Companies listed twice are merged under one key.
func (e *Enumerator) CompanyItems() iter.Seq[model.WorkItem] {
	return func(yield func(model.WorkItem) bool) {
		order := make([]string, 0, len(e.doc.Companies))
		byName := make(map[string]*model.WorkItem)

		for _, entry := range e.doc.Companies {
			name := entry.Company.Name
			if name == "" {
				continue
			}
			item, ok := byName[name]
			if !ok {
				item = &model.WorkItem{Key: name, Kind: model.KindCompany, Company: entry.Company}
				byName[name] = item
				order = append(order, name)
			}
			for _, job := range entry.Jobs {
				if e.match(job) {
					item.Jobs = append(item.Jobs, job)
				}
			}
		}

		for _, name := range order {
			item := byName[name]
			if len(item.Jobs) == 0 {
				continue
			}
			sortJobs(item.Jobs)
			if !yield(*item) {
				return
			}
		}
	}
}

// AllCompanyItems is like CompanyItems but also yields companies without jobs;
// news and interview searches do not depend on postings.
func (e *Enumerator) AllCompanyItems() iter.Seq[model.WorkItem] {
	return func(yield func(model.WorkItem) bool) {
		seen := make(map[string]bool)
		for _, entry := range e.doc.Companies {
			name := entry.Company.Name
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			if !yield(model.WorkItem{Key: name, Kind: model.KindCompany, Company: entry.Company}) {
				return
			}
		}
	}
}

func (e *Enumerator) match(job model.Job) bool {
	return e.filter == nil || e.filter.Match(job)
}

// baseKeyCounts counts distinct postings per base key, so colliding titles get
// a content suffix no matter where they sit in the document.
func (e *Enumerator) baseKeyCounts() map[string]int {
	distinct := make(map[string]map[string]bool)
	for _, entry := range e.doc.Companies {
		if entry.Company.Name == "" {
			continue
		}
		for _, job := range entry.Jobs {
			if !e.match(job) {
				continue
			}
			key := JobKey(entry.Company.Name, job)
			if distinct[key] == nil {
				distinct[key] = make(map[string]bool)
			}
			distinct[key][jobFingerprint(job)] = true
		}
	}
	counts := make(map[string]int, len(distinct))
	for k, fps := range distinct {
		counts[k] = len(fps)
	}
	return counts
}

// JobKey is the base identity key of a posting: "<company>_<title>".
func JobKey(company string, job model.Job) string {
	return company + "_" + job.Title
}

// jobFingerprint hashes the immutable fields that tell two same-titled
// postings apart.
func jobFingerprint(job model.Job) string {
	h := sha256.Sum256([]byte(job.SourceURL() + "|" + job.Location + "|" + job.DateCreation))
	return hex.EncodeToString(h[:4])
}

// sortJobs orders postings newest first, so prompts built from a prefix of the
// list see the most recent hiring.
func sortJobs(jobs []model.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].DateCreation != jobs[j].DateCreation {
			return jobs[i].DateCreation > jobs[j].DateCreation
		}
		return jobs[i].Title < jobs[j].Title
	})
}

// Save writes doc to path atomically.
func Save(path string, doc *Document) error {
	if err := fsutil.WriteJSON(path, doc); err != nil {
		return fmt.Errorf("save input document: %w", err)
	}
	return nil
}
