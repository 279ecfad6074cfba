package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/amishk599/leadradar/internal/ai"
	"github.com/amishk599/leadradar/internal/model"
)

// NewsKind selects what the news analyzer searches for.
type NewsKind string

const (
	KindNews       NewsKind = "news"
	KindInterviews NewsKind = "interviews"
)

const (
	searchTemperature    = 0.2
	searchMaxTokens      = 4000
	structureTemperature = 0.1
	searchSystemPrompt   = "You are a research expert. Search the web thoroughly and report detailed findings with the real URLs of your sources."
)

// NewsAnalyzer finds recent articles or executive interviews about a company in
// two steps: a web search that returns citations, then an LLM pass that
// structures the search text into scored items.
type NewsAnalyzer struct {
	kind       NewsKind
	search     ai.Completer
	structurer ai.Completer
	product    string
	days       int
	logger     *slog.Logger
	now        func() time.Time
}

// NewNewsAnalyzer creates a news or interviews analyzer.
func NewNewsAnalyzer(kind NewsKind, search, structurer ai.Completer, product string, logger *slog.Logger) (*NewsAnalyzer, error) {
	if kind != KindNews && kind != KindInterviews {
		return nil, fmt.Errorf("unknown news kind %q", kind)
	}
	if product == "" {
		product = DefaultProduct
	}
	return &NewsAnalyzer{
		kind:       kind,
		search:     search,
		structurer: structurer,
		product:    product,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// WithLookback restricts searches to content published in the last days.
// Zero asks for recent content without a fixed window.
func (a *NewsAnalyzer) WithLookback(days int) *NewsAnalyzer {
	a.days = max(days, 0)
	return a
}

// Analyze searches and structures news for a company-level WorkItem.
func (a *NewsAnalyzer) Analyze(ctx context.Context, item model.WorkItem) (model.Success, error) {
	company := item.Company
	if company.Name == "" {
		return model.Success{}, fmt.Errorf("item %q has no company name: %w", item.Key, model.ErrUnprocessable)
	}

	searchPrompt, err := render("search_"+string(a.kind)+".tmpl", struct {
		Company, Website, Industry string
		Days                       int
	}{company.Name, company.Website, company.Industry, a.days})
	if err != nil {
		return model.Success{}, err
	}
	found, err := a.search.Complete(ctx, ai.Request{
		System:      searchSystemPrompt,
		Prompt:      searchPrompt,
		Temperature: searchTemperature,
		MaxTokens:   searchMaxTokens,
	})
	if err != nil {
		return model.Success{}, fmt.Errorf("search: %w", err)
	}
	if strings.TrimSpace(found.Content) == "" {
		return model.Success{}, fmt.Errorf("search returned no content: %w", model.ErrMalformedResponse)
	}

	structurePrompt, err := render("structure_"+string(a.kind)+".tmpl", struct {
		Company, Product, Content string
		Citations                 []string
	}{company.Name, a.product, found.Content, found.Citations})
	if err != nil {
		return model.Success{}, err
	}
	structured, err := a.structurer.Complete(ctx, ai.Request{
		Prompt:      structurePrompt,
		Temperature: structureTemperature,
		JSON:        true,
	})
	if err != nil {
		return model.Success{}, fmt.Errorf("structure: %w", err)
	}

	var reply struct {
		Items         []rawNewsItem `json:"items"`
		KeyExecutives []Executive   `json:"key_executives_identified"`
	}
	if err := decodeReply(structured.Content, &reply); err != nil {
		return model.Success{}, err
	}

	report := NewsReport{
		CompanyName: company.Name,
		Kind:        string(a.kind),
		SearchDate:  a.now().UTC(),
		Citations:   found.Citations,
		Items:       []NewsItem{},
	}
	for _, e := range reply.KeyExecutives {
		if strings.TrimSpace(e.Name) != "" {
			report.KeyExecutives = append(report.KeyExecutives, e)
		}
	}
	for _, raw := range reply.Items {
		if !urlVerified(raw.URL, found.Content, found.Citations) {
			report.Dropped++
			continue
		}
		report.Items = append(report.Items, raw.item())
	}
	slices.SortStableFunc(report.Items, func(x, y NewsItem) int { return y.RelevanceScore - x.RelevanceScore })

	payload, err := encodePayload(report)
	if err != nil {
		return model.Success{}, err
	}

	tokens := found.Tokens + structured.Tokens
	a.logger.Debug("news structured",
		"key", item.Key,
		"kind", a.kind,
		"items", len(report.Items),
		"dropped", report.Dropped,
		"tokens", tokens,
	)
	return model.Success{Payload: payload, Tokens: tokens}, nil
}

// rawNewsItem accepts fractional scores from the structuring step.
type rawNewsItem struct {
	NewsItem
	RelevanceScore float64 `json:"relevance_score"`
}

func (r rawNewsItem) item() NewsItem {
	it := r.NewsItem
	it.RelevanceScore = clampScore(r.RelevanceScore, 1, 10)
	return it
}

// urlVerified reports whether u was produced by the search step, either as a
// citation or verbatim in the search text. Trailing slashes are ignored.
func urlVerified(u, content string, citations []string) bool {
	norm := normURL(u)
	if norm == "" {
		return false
	}
	for _, c := range citations {
		if normURL(c) == norm {
			return true
		}
	}
	return strings.Contains(content, norm)
}

func normURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}
