package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/amishk599/leadradar/internal/model"
)

const DefaultGreenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

// greenhouseJob represents a single job in the Greenhouse API response.
type greenhouseJob struct {
	ID             int64              `json:"id"`
	Title          string             `json:"title"`
	Location       greenhouseLocation `json:"location"`
	AbsoluteURL    string             `json:"absolute_url"`
	FirstPublished string             `json:"first_published"`
	UpdatedAt      string             `json:"updated_at"`
	Content        string             `json:"content"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

// greenhouseResponse is the top-level Greenhouse jobs API response.
type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

// GreenhouseFetcher reads postings from a company's public Greenhouse board.
// It needs no API key and returns full descriptions.
type GreenhouseFetcher struct {
	baseURL string
	client  *http.Client
}

// NewGreenhouseFetcher creates a fetcher. An empty baseURL uses the public API.
func NewGreenhouseFetcher(baseURL string, client *http.Client) *GreenhouseFetcher {
	if baseURL == "" {
		baseURL = DefaultGreenhouseBaseURL
	}
	return &GreenhouseFetcher{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// FetchCompanyJobs retrieves every posting on the company's board and
// normalizes it into the provider Job shape.
func (f *GreenhouseFetcher) FetchCompanyJobs(ctx context.Context, company model.Company) (model.CompanyJobs, error) {
	board := company.GreenhouseBoard
	if board == "" {
		return model.CompanyJobs{}, fmt.Errorf("greenhouse fetch for %s: no board token: %w", company.Name, model.ErrUnprocessable)
	}

	reqURL := fmt.Sprintf("%s/%s/jobs?content=true", f.baseURL, board)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.CompanyJobs{}, fmt.Errorf("greenhouse fetch for %s: %w", board, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return model.CompanyJobs{}, fmt.Errorf("greenhouse fetch for %s: %w", board, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.CompanyJobs{}, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: model.ParseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("greenhouse fetch for %s: %s", board, strings.TrimSpace(string(body))),
		}
	}

	var ghResp greenhouseResponse
	if err := json.NewDecoder(resp.Body).Decode(&ghResp); err != nil {
		return model.CompanyJobs{}, fmt.Errorf("greenhouse fetch for %s: %v: %w", board, err, model.ErrMalformedResponse)
	}

	jobs := make([]model.Job, 0, len(ghResp.Jobs))
	for _, gj := range ghResp.Jobs {
		created := gj.FirstPublished
		if created == "" {
			created = gj.UpdatedAt
		}
		jobs = append(jobs, model.Job{
			Title:        gj.Title,
			Location:     gj.Location.Name,
			Description:  extractText(gj.Content),
			DateCreation: created,
			LastSeen:     gj.UpdatedAt,
			URL:          gj.AbsoluteURL,
			BoardURL:     fmt.Sprintf("https://boards.greenhouse.io/%s", board),
			Board:        ProviderGreenhouse,
		})
	}
	return model.CompanyJobs{Jobs: jobs, Total: len(jobs)}, nil
}

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// extractText converts an HTML or HTML-encoded string to plain text.
// Greenhouse double-encodes content, so entities are unescaped before tags
// are stripped.
func extractText(content string) string {
	unescaped := html.UnescapeString(content)
	plain := htmlTagRegex.ReplaceAllString(unescaped, " ")
	return strings.Join(strings.Fields(plain), " ")
}

// Router sends each company to the Greenhouse fetcher when it has a board
// token and to the default fetcher otherwise.
type Router struct {
	Default    model.JobsFetcher
	Greenhouse model.JobsFetcher
}

// FetchCompanyJobs delegates to the fetcher serving company.
func (r *Router) FetchCompanyJobs(ctx context.Context, company model.Company) (model.CompanyJobs, error) {
	if company.GreenhouseBoard != "" && r.Greenhouse != nil {
		return r.Greenhouse.FetchCompanyJobs(ctx, company)
	}
	return r.Default.FetchCompanyJobs(ctx, company)
}
