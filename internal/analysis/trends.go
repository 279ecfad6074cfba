package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amishk599/leadradar/internal/ai"
	"github.com/amishk599/leadradar/internal/model"
)

const (
	trendJobLimit         = 20
	trendDescriptionLimit = 1500
	trendTemperature      = 0.3
	trendMaxTokens        = 3000
)

// TrendAnalyzer reads all recent postings of a company together and extracts
// hiring trends in two categories.
type TrendAnalyzer struct {
	llm     ai.Completer
	product string
	logger  *slog.Logger
	now     func() time.Time
}

// NewTrendAnalyzer creates a trend analyzer backed by llm.
func NewTrendAnalyzer(llm ai.Completer, product string, logger *slog.Logger) *TrendAnalyzer {
	if product == "" {
		product = DefaultProduct
	}
	return &TrendAnalyzer{llm: llm, product: product, logger: logger, now: time.Now}
}

type trendJob struct {
	Title, Location, Date, Description string
}

// Analyze runs the trends prompt for a company-level WorkItem.
func (a *TrendAnalyzer) Analyze(ctx context.Context, item model.WorkItem) (model.Success, error) {
	if item.Kind != model.KindCompany || len(item.Jobs) == 0 {
		return model.Success{}, fmt.Errorf("company %q has no jobs to analyze: %w", item.Key, model.ErrUnprocessable)
	}

	system, err := render("trends_system.tmpl", struct{ Product string }{a.product})
	if err != nil {
		return model.Success{}, err
	}
	prompt, err := render("trends_user.tmpl", struct {
		Company, Industry, Employees string
		JobCount                     int
		Jobs                         []trendJob
	}{
		Company:   item.Company.Name,
		Industry:  orNA(item.Company.Industry),
		Employees: orNA(item.Company.Employees),
		JobCount:  len(item.Jobs),
		Jobs:      summarizeJobs(item.Jobs),
	})
	if err != nil {
		return model.Success{}, err
	}

	resp, err := a.llm.Complete(ctx, ai.Request{
		System:      system,
		Prompt:      prompt,
		Temperature: trendTemperature,
		MaxTokens:   trendMaxTokens,
		JSON:        true,
	})
	if err != nil {
		return model.Success{}, fmt.Errorf("llm complete: %w", err)
	}

	trends, err := parseTrendAnalysis(resp.Content)
	if err != nil {
		return model.Success{}, err
	}
	trends.CompanyName = item.Company.Name
	if trends.AnalysisPeriod.TotalJobs == 0 {
		trends.AnalysisPeriod.TotalJobs = len(item.Jobs)
	}
	trends.AnalyzedAt = a.now().UTC()

	payload, err := encodePayload(trends)
	if err != nil {
		return model.Success{}, err
	}

	a.logger.Debug("trends analyzed", "key", item.Key, "signal", trends.OverallSignalStrength, "tokens", resp.Tokens)
	return model.Success{Payload: payload, Tokens: resp.Tokens}, nil
}

// summarizeJobs keeps the first trendJobLimit postings with shortened descriptions.
// Jobs arrive newest first from the enumerator.
func summarizeJobs(jobs []model.Job) []trendJob {
	out := make([]trendJob, 0, min(len(jobs), trendJobLimit))
	for _, j := range jobs[:min(len(jobs), trendJobLimit)] {
		date := "Unknown"
		if t := j.PostedAt(); t != nil {
			date = t.Format("2006-01-02")
		}
		out = append(out, trendJob{
			Title:       orNA(j.Title),
			Location:    orNA(j.Location),
			Date:        date,
			Description: truncateRunes(orNA(j.Description), trendDescriptionLimit),
		})
	}
	return out
}

func parseTrendAnalysis(content string) (TrendAnalysis, error) {
	var raw struct {
		TrendAnalysis
		OverallSignalStrength *float64 `json:"overall_signal_strength"`
	}
	if err := decodeReply(content, &raw); err != nil {
		return TrendAnalysis{}, err
	}
	if raw.OverallSignalStrength == nil {
		return TrendAnalysis{}, fmt.Errorf("reply has no overall_signal_strength: %w", model.ErrMalformedResponse)
	}
	t := raw.TrendAnalysis
	t.OverallSignalStrength = clampScore(*raw.OverallSignalStrength, 0, 10)
	t.Trends.DigitalGrowthProduct.SignalStrength = min(max(t.Trends.DigitalGrowthProduct.SignalStrength, 0), 10)
	t.Trends.VisualContentCreative.SignalStrength = min(max(t.Trends.VisualContentCreative.SignalStrength, 0), 10)
	return t, nil
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
