package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/amishk599/leadradar/internal/model"
	"github.com/amishk599/leadradar/internal/retry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMantiksFetcher_Success(t *testing.T) {
	var gotQuery map[string][]string
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotKey = r.Header.Get("x-api-key")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"nb_jobs": 2, "credits_remaining": 97, "credits_cost": 3, "jobs": [
			{"job_title": "Brand Designer", "location": "NYC", "description": "Figma", "date_creation": "2025-04-02T10:00:00", "job_board": "linkedin"},
			{"job_title": "E-commerce Lead", "job_url": "https://careers.acme.com/2"}
		]}`)
	}))
	defer srv.Close()

	f := NewMantiksFetcher(srv.URL, "secret", []string{"marketing", "creative"}, 365, srv.Client())
	got, err := f.FetchCompanyJobs(context.Background(), model.Company{
		Name:     "Acme",
		Website:  "https://acme.com/fr/",
		LinkedIn: "https://linkedin.com/company/acme",
	})
	if err != nil {
		t.Fatalf("FetchCompanyJobs: %v", err)
	}

	if gotPath != "/company/jobs" || gotKey != "secret" {
		t.Errorf("path=%q key=%q", gotPath, gotKey)
	}
	if w := gotQuery["website"]; len(w) != 1 || w[0] != "https://acme.com/" {
		t.Errorf("website = %v, want language suffix stripped", w)
	}
	if !slices.Equal(gotQuery["keyword"], []string{"marketing", "creative"}) {
		t.Errorf("keyword = %v, want repeated params", gotQuery["keyword"])
	}
	if gotQuery["age_in_days"][0] != "365" || gotQuery["linkedin_url"][0] != "https://linkedin.com/company/acme" {
		t.Errorf("query = %v", gotQuery)
	}

	if got.Total != 2 || len(got.Jobs) != 2 || got.CreditsCost != 3 {
		t.Fatalf("got = %+v", got)
	}
	if got.CreditsRemaining == nil || *got.CreditsRemaining != 97 {
		t.Errorf("credits remaining = %v", got.CreditsRemaining)
	}
	if got.Jobs[0].Title != "Brand Designer" || got.Jobs[1].SourceURL() != "https://careers.acme.com/2" {
		t.Errorf("jobs = %+v", got.Jobs)
	}
}

func TestMantiksFetcher_OmitsEmptyLinkedIn(t *testing.T) {
	var hasLinkedIn bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasLinkedIn = r.URL.Query()["linkedin_url"]
		io.WriteString(w, `{"jobs": []}`)
	}))
	defer srv.Close()

	f := NewMantiksFetcher(srv.URL, "k", nil, 30, srv.Client())
	if _, err := f.FetchCompanyJobs(context.Background(), model.Company{Name: "Acme", Website: "acme.com"}); err != nil {
		t.Fatalf("FetchCompanyJobs: %v", err)
	}
	if hasLinkedIn {
		t.Error("linkedin_url sent for a company without LinkedIn")
	}
}

func TestMantiksFetcher_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, "slow down")
	}))
	defer srv.Close()

	f := NewMantiksFetcher(srv.URL, "k", nil, 30, srv.Client())
	_, err := f.FetchCompanyJobs(context.Background(), model.Company{Name: "Acme"})

	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != 429 || httpErr.RetryAfter != 3*time.Second {
		t.Errorf("httpErr = %+v", httpErr)
	}
}

func TestMantiksFetcher_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>maintenance</html>")
	}))
	defer srv.Close()

	f := NewMantiksFetcher(srv.URL, "k", nil, 30, srv.Client())
	if _, err := f.FetchCompanyJobs(context.Background(), model.Company{Name: "Acme"}); !errors.Is(err, model.ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestCleanWebsite(t *testing.T) {
	tests := map[string]string{
		"https://acme.com/fr/":  "https://acme.com/",
		"https://acme.com/en/":  "https://acme.com/",
		"https://acme.com/shop": "https://acme.com/shop",
		" acme.com ":            "acme.com",
		"":                      "",
	}
	for in, want := range tests {
		if got := CleanWebsite(in); got != want {
			t.Errorf("CleanWebsite(%q) = %q, want %q", in, got, want)
		}
	}
}

// scriptedFetcher returns a canned result or error per company name.
type scriptedFetcher struct {
	results map[string]model.CompanyJobs
	errs    map[string]error
	calls   int
}

func (f *scriptedFetcher) FetchCompanyJobs(_ context.Context, c model.Company) (model.CompanyJobs, error) {
	f.calls++
	if err := f.errs[c.Name]; err != nil {
		return model.CompanyJobs{}, err
	}
	return f.results[c.Name], nil
}

func TestBuildDocument_RecordsFailuresWithoutAborting(t *testing.T) {
	f := &scriptedFetcher{
		results: map[string]model.CompanyJobs{
			"Acme":   {Jobs: []model.Job{{Title: "A"}, {Title: "B"}}, Total: 2},
			"Zenith": {Jobs: []model.Job{}, Total: 0},
		},
		errs: map[string]error{"Broken": &model.HTTPError{StatusCode: 404}},
	}
	companies := []model.Company{{Name: "Acme"}, {Name: "Broken"}, {Name: "Zenith"}}

	doc, err := BuildDocument(context.Background(), f, companies, discardLogger())
	if err != nil {
		t.Fatalf("BuildDocument: %v", err)
	}
	if len(doc.Companies) != 3 || doc.TotalCompanies != 3 {
		t.Fatalf("companies = %d", len(doc.Companies))
	}
	if doc.TotalJobs != 2 || doc.CompaniesWithJobs != 1 {
		t.Errorf("totals = %d jobs / %d with jobs", doc.TotalJobs, doc.CompaniesWithJobs)
	}
	broken := doc.Companies[1]
	if broken.Success || broken.Error == "" || broken.Jobs == nil {
		t.Errorf("broken entry = %+v", broken)
	}
	if !doc.Companies[0].Success || doc.Companies[0].NbJobs != 2 {
		t.Errorf("acme entry = %+v", doc.Companies[0])
	}
}

func TestBuildDocument_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &scriptedFetcher{}
	doc, err := BuildDocument(ctx, f, []model.Company{{Name: "Acme"}}, discardLogger())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if f.calls != 0 || len(doc.Companies) != 0 {
		t.Errorf("calls=%d entries=%d after cancel", f.calls, len(doc.Companies))
	}
}

type countingWaiter struct{ n int }

func (w *countingWaiter) Wait(_ context.Context, provider string) error {
	if provider != "mantiks" {
		return errors.New("unexpected provider " + provider)
	}
	w.n++
	return nil
}

func TestDecorators(t *testing.T) {
	inner := &scriptedFetcher{errs: map[string]error{"Acme": &model.HTTPError{StatusCode: 502}}}
	waiter := &countingWaiter{}

	f := NewRetryFetcher(
		NewRateLimitedFetcher(inner, waiter, ProviderMantiks),
		retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond},
		discardLogger(),
	)
	if _, err := f.FetchCompanyJobs(context.Background(), model.Company{Name: "Acme"}); err == nil {
		t.Fatal("expected error after retries")
	}
	if inner.calls != 3 || waiter.n != 3 {
		t.Errorf("calls=%d waits=%d, want 3/3 (every attempt is rate limited)", inner.calls, waiter.n)
	}
}
