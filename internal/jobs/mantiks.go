package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/amishk599/leadradar/internal/model"
)

const DefaultMantiksBaseURL = "https://api.mantiks.io"

// Provider names used for rate limiting.
const (
	ProviderMantiks    = "mantiks"
	ProviderGreenhouse = "greenhouse"
)

// languageSuffixes are stripped from company websites before querying; the
// provider indexes the bare domain.
var languageSuffixes = []string{"/fr/", "/en/", "/de/", "/es/", "/it/"}

// mantiksResponse is the /company/jobs response body.
type mantiksResponse struct {
	Jobs             []model.Job `json:"jobs"`
	NbJobs           int         `json:"nb_jobs"`
	CreditsRemaining *int        `json:"credits_remaining"`
	CreditsCost      int         `json:"credits_cost"`
}

// MantiksFetcher fetches a company's recent job postings from the Mantiks API.
type MantiksFetcher struct {
	baseURL   string
	apiKey    string
	keywords  []string
	ageInDays int
	client    *http.Client
}

// NewMantiksFetcher creates a fetcher. keywords restrict job titles; ageInDays
// bounds posting age and is required by the provider.
func NewMantiksFetcher(baseURL, apiKey string, keywords []string, ageInDays int, client *http.Client) *MantiksFetcher {
	if baseURL == "" {
		baseURL = DefaultMantiksBaseURL
	}
	return &MantiksFetcher{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		keywords:  keywords,
		ageInDays: ageInDays,
		client:    client,
	}
}

// FetchCompanyJobs retrieves the postings of one company.
func (f *MantiksFetcher) FetchCompanyJobs(ctx context.Context, company model.Company) (model.CompanyJobs, error) {
	params := url.Values{}
	params.Set("website", CleanWebsite(company.Website))
	params.Set("age_in_days", strconv.Itoa(f.ageInDays))
	for _, kw := range f.keywords {
		params.Add("keyword", kw)
	}
	if company.LinkedIn != "" {
		params.Set("linkedin_url", company.LinkedIn)
	}

	reqURL := f.baseURL + "/company/jobs?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.CompanyJobs{}, fmt.Errorf("mantiks fetch for %s: %w", company.Name, err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-api-key", f.apiKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return model.CompanyJobs{}, fmt.Errorf("mantiks fetch for %s: %w", company.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.CompanyJobs{}, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: model.ParseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("mantiks fetch for %s: %s", company.Name, strings.TrimSpace(string(body))),
		}
	}

	var mr mantiksResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return model.CompanyJobs{}, fmt.Errorf("mantiks fetch for %s: %v: %w", company.Name, err, model.ErrMalformedResponse)
	}

	total := mr.NbJobs
	if total == 0 {
		total = len(mr.Jobs)
	}
	return model.CompanyJobs{
		Jobs:             mr.Jobs,
		Total:            total,
		CreditsRemaining: mr.CreditsRemaining,
		CreditsCost:      mr.CreditsCost,
	}, nil
}

// CleanWebsite strips a trailing language path such as "/fr/" from a website URL.
func CleanWebsite(website string) string {
	w := strings.TrimSpace(website)
	for _, suffix := range languageSuffixes {
		if strings.HasSuffix(w, suffix) {
			return strings.TrimSuffix(w, suffix) + "/"
		}
	}
	return w
}
