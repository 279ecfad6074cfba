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
	jobDescriptionLimit = 12000
	jobTemperature      = 0.2
	jobMaxTokens        = 3000
)

// JobAnalyzer scores one job posting and extracts personas, pain points and tools.
type JobAnalyzer struct {
	llm     ai.Completer
	product string
	logger  *slog.Logger
	now     func() time.Time
}

// NewJobAnalyzer creates an analyzer backed by llm. An empty product uses DefaultProduct.
func NewJobAnalyzer(llm ai.Completer, product string, logger *slog.Logger) *JobAnalyzer {
	if product == "" {
		product = DefaultProduct
	}
	return &JobAnalyzer{llm: llm, product: product, logger: logger, now: time.Now}
}

// rawJobAnalysis accepts fractional or missing scores so they can be validated.
type rawJobAnalysis struct {
	RelevanceScore      *float64                  `json:"relevance_score"`
	ValueProposition    *ValueProposition         `json:"value_proposition"`
	TeamStructure       map[string]DepartmentTeam `json:"team_structure"`
	ToolsEcosystem      *ToolsEcosystem           `json:"tools_ecosystem"`
	SalesRecommendation string                    `json:"sales_recommendation"`
}

// Analyze runs the job-analysis prompt for a job-level WorkItem.
func (a *JobAnalyzer) Analyze(ctx context.Context, item model.WorkItem) (model.Success, error) {
	job, ok := item.Job()
	if !ok {
		return model.Success{}, fmt.Errorf("item %q is not a job item: %w", item.Key, model.ErrUnprocessable)
	}
	if strings.TrimSpace(job.Description) == "" {
		return model.Success{}, fmt.Errorf("job %q has no description: %w", item.Key, model.ErrUnprocessable)
	}

	system, err := render("job_system.tmpl", struct{ Product string }{a.product})
	if err != nil {
		return model.Success{}, err
	}
	location := job.Location
	if location == "" {
		location = "N/A"
	}
	prompt, err := render("job_user.tmpl", struct {
		Company, Title, Location, Description string
	}{item.Company.Name, job.Title, location, truncateRunes(job.Description, jobDescriptionLimit)})
	if err != nil {
		return model.Success{}, err
	}

	resp, err := a.llm.Complete(ctx, ai.Request{
		System:      system,
		Prompt:      prompt,
		Temperature: jobTemperature,
		MaxTokens:   jobMaxTokens,
		JSON:        true,
	})
	if err != nil {
		return model.Success{}, fmt.Errorf("llm complete: %w", err)
	}

	analysis, err := parseJobAnalysis(resp.Content)
	if err != nil {
		return model.Success{}, err
	}

	payload, err := encodePayload(JobRecord{
		CompanyName: item.Company.Name,
		Job:         job,
		Analysis:    analysis,
		AnalyzedAt:  a.now().UTC(),
	})
	if err != nil {
		return model.Success{}, err
	}

	a.logger.Debug("job analyzed", "key", item.Key, "score", analysis.RelevanceScore, "tokens", resp.Tokens)
	return model.Success{Payload: payload, Tokens: resp.Tokens}, nil
}

// parseJobAnalysis validates the LLM reply. A missing score makes the reply
// malformed; out-of-range scores are clamped to 1..10.
func parseJobAnalysis(content string) (JobAnalysis, error) {
	var raw rawJobAnalysis
	if err := decodeReply(content, &raw); err != nil {
		return JobAnalysis{}, err
	}
	if raw.RelevanceScore == nil {
		return JobAnalysis{}, fmt.Errorf("reply has no relevance_score: %w", model.ErrMalformedResponse)
	}
	return JobAnalysis{
		RelevanceScore:      clampScore(*raw.RelevanceScore, 1, 10),
		ValueProposition:    raw.ValueProposition,
		TeamStructure:       raw.TeamStructure,
		ToolsEcosystem:      raw.ToolsEcosystem,
		SalesRecommendation: strings.TrimSpace(raw.SalesRecommendation),
	}, nil
}
