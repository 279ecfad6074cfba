package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/amishk599/leadradar/internal/ai"
	"github.com/amishk599/leadradar/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCompleter replies with a fixed response and records every request.
type fakeCompleter struct {
	mu       sync.Mutex
	resp     ai.Response
	err      error
	requests []ai.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req ai.Request) (ai.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

func jobItem(description string) model.WorkItem {
	return model.WorkItem{
		Key:     "Acme_Content Manager",
		Kind:    model.KindJob,
		Company: model.Company{Name: "Acme", Industry: "Furniture"},
		Jobs: []model.Job{{
			Title:       "Content Manager",
			Location:    "Paris",
			Description: description,
			URL:         "https://jobs.example.com/1",
		}},
	}
}

func TestJobAnalyzer_Success(t *testing.T) {
	llm := &fakeCompleter{resp: ai.Response{
		Content: `{"relevance_score": 8, "sales_recommendation": " Pitch volume. ",
			"tools_ecosystem": {"design_tools": [{"tool": "Photoshop", "evidence": "expert in Photoshop"}]}}`,
		Tokens: 900,
	}}
	a := NewJobAnalyzer(llm, "", discardLogger())

	got, err := a.Analyze(context.Background(), jobItem("We ship 10k SKUs a year. Photoshop required."))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Tokens != 900 {
		t.Errorf("tokens = %d, want 900", got.Tokens)
	}

	var rec JobRecord
	if err := json.Unmarshal(got.Payload, &rec); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if rec.CompanyName != "Acme" || rec.Title != "Content Manager" || rec.URL != "https://jobs.example.com/1" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Analysis.RelevanceScore != 8 || rec.Analysis.SalesRecommendation != "Pitch volume." {
		t.Errorf("analysis = %+v", rec.Analysis)
	}
	if rec.Analysis.ToolsEcosystem == nil || rec.Analysis.ToolsEcosystem.DesignTools[0].Tool != "Photoshop" {
		t.Errorf("tools = %+v", rec.Analysis.ToolsEcosystem)
	}

	req := llm.requests[0]
	if !req.JSON || req.Temperature != jobTemperature || req.MaxTokens != jobMaxTokens {
		t.Errorf("request = %+v", req)
	}
	if !strings.Contains(req.Prompt, "COMPANY: Acme") || !strings.Contains(req.System, DefaultProduct) {
		t.Errorf("prompt not rendered:\n%s", req.Prompt)
	}
}

func TestJobAnalyzer_TruncatesDescription(t *testing.T) {
	llm := &fakeCompleter{resp: ai.Response{Content: `{"relevance_score": 3}`}}
	a := NewJobAnalyzer(llm, "", discardLogger())

	long := strings.Repeat("é", jobDescriptionLimit+500)
	if _, err := a.Analyze(context.Background(), jobItem(long)); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if n := strings.Count(llm.requests[0].Prompt, "é"); n != jobDescriptionLimit {
		t.Errorf("description runes in prompt = %d, want %d", n, jobDescriptionLimit)
	}
	if !utf8.ValidString(llm.requests[0].Prompt) {
		t.Error("truncation split a rune")
	}
}

func TestParseJobAnalysis(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantScore int
		wantErr   bool
	}{
		{"valid", `{"relevance_score": 7}`, 7, false},
		{"fractional rounds", `{"relevance_score": 6.6}`, 7, false},
		{"above range clamps", `{"relevance_score": 14}`, 10, false},
		{"below range clamps", `{"relevance_score": 0}`, 1, false},
		{"missing score", `{"sales_recommendation": "call"}`, 0, true},
		{"not json", "Sure! Here is the analysis", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseJobAnalysis(tt.content)
			if tt.wantErr {
				if !errors.Is(err, model.ErrMalformedResponse) {
					t.Fatalf("err = %v, want ErrMalformedResponse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.RelevanceScore != tt.wantScore {
				t.Errorf("score = %d, want %d", got.RelevanceScore, tt.wantScore)
			}
		})
	}
}

func TestJobAnalyzer_RejectsUnprocessableItems(t *testing.T) {
	llm := &fakeCompleter{}
	a := NewJobAnalyzer(llm, "", discardLogger())

	if _, err := a.Analyze(context.Background(), jobItem("   ")); !errors.Is(err, model.ErrUnprocessable) {
		t.Errorf("empty description: err = %v", err)
	}
	company := model.WorkItem{Key: "Acme", Kind: model.KindCompany, Company: model.Company{Name: "Acme"}}
	if _, err := a.Analyze(context.Background(), company); !errors.Is(err, model.ErrUnprocessable) {
		t.Errorf("company item: err = %v", err)
	}
	if len(llm.requests) != 0 {
		t.Errorf("llm called %d times for unprocessable items", len(llm.requests))
	}
}

func TestJobAnalyzer_PropagatesProviderError(t *testing.T) {
	llm := &fakeCompleter{err: &model.HTTPError{StatusCode: 503}}
	a := NewJobAnalyzer(llm, "", discardLogger())

	_, err := a.Analyze(context.Background(), jobItem("desc"))
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 503 {
		t.Fatalf("err = %v, want wrapped HTTPError 503", err)
	}
}

func companyItem(n int) model.WorkItem {
	jobs := make([]model.Job, n)
	for i := range jobs {
		jobs[i] = model.Job{
			Title:        "Role",
			Description:  strings.Repeat("x", trendDescriptionLimit+100),
			DateCreation: "2025-03-01",
		}
	}
	return model.WorkItem{Key: "Acme", Kind: model.KindCompany, Company: model.Company{Name: "Acme"}, Jobs: jobs}
}

func TestTrendAnalyzer_Success(t *testing.T) {
	llm := &fakeCompleter{resp: ai.Response{
		Content: `{"company_name": "ACME INC", "overall_signal_strength": 7.4, "overall_summary": "Scaling e-commerce.",
			"trends": {"digital_growth_product": {"signal_strength": 8, "hiring_velocity": "fast"},
			           "visual_content_creative": {"signal_strength": 12}}}`,
		Tokens: 1200,
	}}
	a := NewTrendAnalyzer(llm, "", discardLogger())

	got, err := a.Analyze(context.Background(), companyItem(25))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	var tr TrendAnalysis
	if err := json.Unmarshal(got.Payload, &tr); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if tr.CompanyName != "Acme" {
		t.Errorf("company = %q, want name from the work item", tr.CompanyName)
	}
	if tr.OverallSignalStrength != 7 || tr.Trends.VisualContentCreative.SignalStrength != 10 {
		t.Errorf("scores = %d/%d", tr.OverallSignalStrength, tr.Trends.VisualContentCreative.SignalStrength)
	}
	if tr.AnalysisPeriod.TotalJobs != 25 {
		t.Errorf("total jobs = %d, want 25", tr.AnalysisPeriod.TotalJobs)
	}

	prompt := llm.requests[0].Prompt
	if n := strings.Count(prompt, "--- JOB "); n != trendJobLimit {
		t.Errorf("jobs in prompt = %d, want %d", n, trendJobLimit)
	}
	if strings.Contains(prompt, strings.Repeat("x", trendDescriptionLimit+1)) {
		t.Error("description not truncated")
	}
	if !strings.Contains(prompt, "Date: 2025-03-01") || !strings.Contains(prompt, "(25 total, 20 shown)") {
		t.Errorf("prompt missing dates or counts")
	}
}

func TestTrendAnalyzer_MissingSignalIsMalformed(t *testing.T) {
	llm := &fakeCompleter{resp: ai.Response{Content: `{"overall_summary": "nothing"}`}}
	a := NewTrendAnalyzer(llm, "", discardLogger())
	if _, err := a.Analyze(context.Background(), companyItem(1)); !errors.Is(err, model.ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestTrendAnalyzer_NoJobs(t *testing.T) {
	a := NewTrendAnalyzer(&fakeCompleter{}, "", discardLogger())
	if _, err := a.Analyze(context.Background(), companyItem(0)); !errors.Is(err, model.ErrUnprocessable) {
		t.Fatalf("err = %v, want ErrUnprocessable", err)
	}
}

func TestNewsAnalyzer_DropsUnverifiedURLs(t *testing.T) {
	search := &fakeCompleter{resp: ai.Response{
		Content:   "Acme opened a store, see https://press.example.com/acme-store for details.",
		Citations: []string{"https://news.example.com/acme-series-b/"},
		Tokens:    300,
	}}
	structurer := &fakeCompleter{resp: ai.Response{
		Content: `{"items": [
			{"title": "Series B", "url": "https://news.example.com/acme-series-b", "relevance_score": 6},
			{"title": "New store", "url": "https://press.example.com/acme-store", "relevance_score": 9.2},
			{"title": "Invented", "url": "https://made-up.example.com/x", "relevance_score": 10},
			{"title": "No link", "url": "", "relevance_score": 5}
		]}`,
		Tokens: 200,
	}}
	a, err := NewNewsAnalyzer(KindNews, search, structurer, "", discardLogger())
	if err != nil {
		t.Fatalf("NewNewsAnalyzer: %v", err)
	}

	got, err := a.Analyze(context.Background(), model.WorkItem{Key: "Acme", Kind: model.KindCompany, Company: model.Company{Name: "Acme", Website: "acme.com"}})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Tokens != 500 {
		t.Errorf("tokens = %d, want search + structure = 500", got.Tokens)
	}

	var rep NewsReport
	if err := json.Unmarshal(got.Payload, &rep); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if len(rep.Items) != 2 || rep.Dropped != 2 {
		t.Fatalf("items=%d dropped=%d, want 2/2", len(rep.Items), rep.Dropped)
	}
	if rep.Items[0].Title != "New store" || rep.Items[0].RelevanceScore != 9 {
		t.Errorf("items not sorted by score: %+v", rep.Items)
	}
	if rep.Kind != "news" || rep.TopScore() != 9 {
		t.Errorf("kind=%q top=%d", rep.Kind, rep.TopScore())
	}

	if !strings.Contains(search.requests[0].Prompt, "Acme (acme.com)") {
		t.Errorf("search prompt = %q", search.requests[0].Prompt)
	}
	structured := structurer.requests[0]
	if !structured.JSON || !strings.Contains(structured.Prompt, "- https://news.example.com/acme-series-b/") {
		t.Errorf("structure request missing JSON mode or citations:\n%s", structured.Prompt)
	}
}

func TestNewsAnalyzer_EmptySearchIsMalformed(t *testing.T) {
	search := &fakeCompleter{resp: ai.Response{Content: "  "}}
	structurer := &fakeCompleter{}
	a, _ := NewNewsAnalyzer(KindInterviews, search, structurer, "", discardLogger())

	_, err := a.Analyze(context.Background(), model.WorkItem{Key: "Acme", Company: model.Company{Name: "Acme"}})
	if !errors.Is(err, model.ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
	if len(structurer.requests) != 0 {
		t.Error("structuring step ran without search content")
	}
}

func TestNewsAnalyzer_InterviewsTemplate(t *testing.T) {
	search := &fakeCompleter{resp: ai.Response{Content: "CEO Jane Doe spoke at https://pod.example.com/ep1"}}
	structurer := &fakeCompleter{resp: ai.Response{Content: `{"items": [{"title": "Ep 1", "url": "https://pod.example.com/ep1",
		"executive_name": "Jane Doe", "executive_title": "CEO", "relevance_score": 8}]}`}}
	a, _ := NewNewsAnalyzer(KindInterviews, search, structurer, "", discardLogger())

	got, err := a.Analyze(context.Background(), model.WorkItem{Key: "Acme", Company: model.Company{Name: "Acme"}})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !strings.Contains(search.requests[0].Prompt, "executives of Acme") {
		t.Errorf("interviews search prompt = %q", search.requests[0].Prompt)
	}

	lead, ok := NewsLead(model.Result{Key: "Acme", Outcome: got})
	if !ok || lead.Score != 8 || lead.Title != "Ep 1" {
		t.Errorf("lead = %+v ok=%v", lead, ok)
	}
}

func TestNewNewsAnalyzer_UnknownKind(t *testing.T) {
	if _, err := NewNewsAnalyzer("podcasts", nil, nil, "", discardLogger()); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestLeads_SkipFailures(t *testing.T) {
	failed := model.Result{Key: "k", Outcome: model.Failure{Reason: "boom", Attempts: 3}}
	for name, fn := range map[string]func(model.Result) (model.Lead, bool){"job": JobLead, "trend": TrendLead, "news": NewsLead} {
		if _, ok := fn(failed); ok {
			t.Errorf("%s lead extracted from a failure", name)
		}
	}

	payload, _ := json.Marshal(JobRecord{
		CompanyName: "Acme",
		Job:         model.Job{Title: "Designer"},
		Analysis:    JobAnalysis{RelevanceScore: 9, SalesRecommendation: "Call the CMO"},
	})
	lead, ok := JobLead(model.Result{Key: "Acme_Designer", Outcome: model.Success{Payload: payload}})
	if !ok || lead.Company != "Acme" || lead.Title != "Designer" || lead.Score != 9 {
		t.Errorf("lead = %+v ok=%v", lead, ok)
	}
}

func TestNewsAnalyzer_LookbackAndExecutives(t *testing.T) {
	search := &fakeCompleter{resp: ai.Response{Content: "CEO Jane Doe spoke at https://pod.example.com/ep1"}}
	structurer := &fakeCompleter{resp: ai.Response{Content: `{"items": [{"title": "Ep 1", "url": "https://pod.example.com/ep1", "relevance_score": 8}],
		"key_executives_identified": [{"name": "Jane Doe", "title": "CEO", "content_count": 1}, {"name": " "}]}`}}
	a, _ := NewNewsAnalyzer(KindInterviews, search, structurer, "", discardLogger())
	a.WithLookback(30)

	got, err := a.Analyze(context.Background(), model.WorkItem{Key: "Acme", Company: model.Company{Name: "Acme"}})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !strings.Contains(search.requests[0].Prompt, "last 30 days") {
		t.Errorf("search prompt missing lookback: %q", search.requests[0].Prompt)
	}
	var rep NewsReport
	if err := json.Unmarshal(got.Payload, &rep); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if len(rep.KeyExecutives) != 1 || rep.KeyExecutives[0].Name != "Jane Doe" {
		t.Errorf("executives = %+v", rep.KeyExecutives)
	}
}

func TestNewsAnalyzer_NoLookbackAsksForRecentNews(t *testing.T) {
	search := &fakeCompleter{resp: ai.Response{Content: "nothing new"}}
	structurer := &fakeCompleter{resp: ai.Response{Content: `{"items": []}`}}
	a, _ := NewNewsAnalyzer(KindNews, search, structurer, "", discardLogger())

	if _, err := a.Analyze(context.Background(), model.WorkItem{Key: "Acme", Company: model.Company{Name: "Acme"}}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if p := search.requests[0].Prompt; !strings.Contains(p, "recent news about Acme") || strings.Contains(p, "days") {
		t.Errorf("search prompt = %q", p)
	}
}

func TestMergeNewsReports(t *testing.T) {
	prior := NewsReport{
		CompanyName: "Acme",
		Kind:        "interviews",
		Items: []NewsItem{
			{Title: "Old podcast", URL: "https://pod.example.com/ep1", PublishedDate: "2025-01-10", RelevanceScore: 5},
			{Title: "Keynote", URL: "https://conf.example.com/talk", PublishedDate: "2025-03-02", RelevanceScore: 7},
			{Title: "Undated post", URL: "https://blog.example.com/post", RelevanceScore: 9},
		},
		KeyExecutives: []Executive{{Name: "Jane Doe", Title: "CMO", ContentCount: 2}},
		Citations:     []string{"https://pod.example.com/ep1", "https://conf.example.com/talk"},
	}
	fresh := NewsReport{
		CompanyName: "Acme",
		Kind:        "interviews",
		Items: []NewsItem{
			{Title: "Podcast, updated", URL: "https://pod.example.com/ep1/", PublishedDate: "2025-01-10", RelevanceScore: 6},
			{Title: "Webinar", URL: "https://web.example.com/w", PublishedDate: "2025-05-20", RelevanceScore: 4},
		},
		KeyExecutives: []Executive{{Name: "jane doe", Title: "CEO", ContentCount: 1}, {Name: "Max Roe", Title: "VP E-commerce"}},
		Citations:     []string{"https://pod.example.com/ep1/", "https://web.example.com/w"},
		Dropped:       1,
	}

	got := MergeNewsReports(prior, fresh)

	var titles []string
	for _, it := range got.Items {
		titles = append(titles, it.Title)
	}
	want := []string{"Webinar", "Keynote", "Podcast, updated", "Undated post"}
	if strings.Join(titles, "|") != strings.Join(want, "|") {
		t.Errorf("items = %v, want %v", titles, want)
	}
	if len(got.Citations) != 3 {
		t.Errorf("citations = %v, want the union of 3 URLs", got.Citations)
	}
	if len(got.KeyExecutives) != 2 {
		t.Fatalf("executives = %+v", got.KeyExecutives)
	}
	if jane := got.KeyExecutives[0]; jane.Title != "CEO" || jane.ContentCount != 2 {
		t.Errorf("jane = %+v, want fresh title and the larger count", jane)
	}
	if got.Dropped != 1 || got.CompanyName != "Acme" {
		t.Errorf("report = %+v", got)
	}
}

func TestRefreshNews(t *testing.T) {
	fresh := NewsReport{CompanyName: "Acme", Kind: "news", Items: []NewsItem{{Title: "New", URL: "https://n.example.com/2", PublishedDate: "2025-06-01"}}}
	freshPayload, _ := json.Marshal(fresh)
	op := func(context.Context, model.WorkItem) (model.Success, error) {
		return model.Success{Payload: freshPayload, Tokens: 40}, nil
	}
	prior := NewsReport{CompanyName: "Acme", Kind: "news", Items: []NewsItem{{Title: "Old", URL: "https://n.example.com/1", PublishedDate: "2025-02-01"}}}
	priorPayload, _ := json.Marshal(prior)
	results := map[string]model.Result{
		"Acme": {Key: "Acme", Outcome: model.Success{Payload: priorPayload}},
		"Beta": {Key: "Beta", Outcome: model.Failure{Reason: "boom", Attempts: 3}},
	}
	lookup := func(key string) (model.Result, bool) {
		r, ok := results[key]
		return r, ok
	}
	refresh := RefreshNews(op, lookup)

	for key, want := range map[string]int{"Acme": 2, "Beta": 1, "Cedar": 1} {
		got, err := refresh(context.Background(), model.WorkItem{Key: key})
		if err != nil {
			t.Fatalf("%s: %v", key, err)
		}
		var rep NewsReport
		if err := json.Unmarshal(got.Payload, &rep); err != nil {
			t.Fatalf("%s payload: %v", key, err)
		}
		if len(rep.Items) != want || rep.Items[0].Title != "New" || got.Tokens != 40 {
			t.Errorf("%s: items = %+v tokens = %d, want %d items, newest first", key, rep.Items, got.Tokens, want)
		}
	}
}

func TestRefreshNews_PropagatesError(t *testing.T) {
	boom := errors.New("search down")
	op := func(context.Context, model.WorkItem) (model.Success, error) { return model.Success{}, boom }
	called := false
	lookup := func(string) (model.Result, bool) {
		called = true
		return model.Result{}, false
	}

	if _, err := RefreshNews(op, lookup)(context.Background(), model.WorkItem{Key: "Acme"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the analyzer error", err)
	}
	if called {
		t.Error("prior result looked up after a failed analysis")
	}
}
