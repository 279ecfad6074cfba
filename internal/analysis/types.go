package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/amishk599/leadradar/internal/model"
)

// Evidence is one extracted fact backed by a quote from the source text.
type Evidence struct {
	Insight   string `json:"insight,omitempty"`
	Role      string `json:"role,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Relevance string `json:"relevance,omitempty"`
	Evidence  string `json:"evidence"`
}

type EfficiencyConversion struct {
	VolumeScale       []Evidence `json:"volume_scale,omitempty"`
	SpeedTimeToMarket []Evidence `json:"speed_time_to_market,omitempty"`
	ConversionRevenue []Evidence `json:"conversion_revenue,omitempty"`
}

type BrandCreativity struct {
	BrandConsistency   []Evidence `json:"brand_consistency,omitempty"`
	CreativeDirection  []Evidence `json:"creative_direction,omitempty"`
	PhotographyStaging []Evidence `json:"photography_staging,omitempty"`
}

type ValueProposition struct {
	EfficiencyConversion *EfficiencyConversion `json:"efficiency_conversion,omitempty"`
	BrandCreativity      *BrandCreativity      `json:"brand_creativity,omitempty"`
}

type DepartmentTeam struct {
	KeyDecisionMakers []Evidence `json:"key_decision_makers,omitempty"`
	Managers          []Evidence `json:"managers,omitempty"`
	Collaborators     []Evidence `json:"collaborators,omitempty"`
}

type ToolsEcosystem struct {
	DesignTools        []Evidence `json:"design_tools,omitempty"`
	ThreeDTools        []Evidence `json:"3d_tools,omitempty"`
	EcommercePlatforms []Evidence `json:"ecommerce_platforms,omitempty"`
}

// JobAnalysis is the structured reading of one job posting.
type JobAnalysis struct {
	RelevanceScore      int                       `json:"relevance_score"`
	ValueProposition    *ValueProposition         `json:"value_proposition,omitempty"`
	TeamStructure       map[string]DepartmentTeam `json:"team_structure,omitempty"`
	ToolsEcosystem      *ToolsEcosystem           `json:"tools_ecosystem,omitempty"`
	SalesRecommendation string                    `json:"sales_recommendation,omitempty"`
}

// JobRecord is the checkpoint payload of the jobs pipeline.
type JobRecord struct {
	CompanyName string `json:"company_name"`
	model.Job
	Analysis   JobAnalysis `json:"analysis"`
	AnalyzedAt time.Time   `json:"analyzed_at"`
}

// TrendCategory is one hiring-trend dimension.
type TrendCategory struct {
	SignalStrength int      `json:"signal_strength"`
	JobCount       int      `json:"job_count"`
	KeyRoles       []string `json:"key_roles"`
	Evolution      string   `json:"evolution"`
	NewThemes      []string `json:"new_themes"`
	HiringVelocity string   `json:"hiring_velocity"`
	Evidence       []string `json:"evidence"`
}

type AnalysisPeriod struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	TotalJobs int    `json:"total_jobs"`
}

// TrendAnalysis is the checkpoint payload of the trends pipeline.
type TrendAnalysis struct {
	CompanyName           string         `json:"company_name"`
	AnalysisPeriod        AnalysisPeriod `json:"analysis_period"`
	OverallSignalStrength int            `json:"overall_signal_strength"`
	OverallSummary        string         `json:"overall_summary"`
	Trends                struct {
		DigitalGrowthProduct  TrendCategory `json:"digital_growth_product"`
		VisualContentCreative TrendCategory `json:"visual_content_creative"`
	} `json:"trends"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// NewsItem is an article or an executive interview.
type NewsItem struct {
	Title           string   `json:"title"`
	Source          string   `json:"source"`
	URL             string   `json:"url"`
	PublishedDate   string   `json:"published_date"`
	Summary         string   `json:"summary"`
	RelevanceScore  int      `json:"relevance_score"`
	RelevanceReason string   `json:"relevance_reason,omitempty"`
	KeyInsights     []string `json:"key_insights,omitempty"`
	Category        string   `json:"category,omitempty"`
	Format          string   `json:"format,omitempty"`
	ExecutiveName   string   `json:"executive_name,omitempty"`
	ExecutiveTitle  string   `json:"executive_title,omitempty"`
	KeyQuotes       []string `json:"key_quotes,omitempty"`
}

// Executive is a decision maker surfaced by the interviews search.
type Executive struct {
	Name         string `json:"name"`
	Title        string `json:"title,omitempty"`
	Relevance    string `json:"relevance,omitempty"`
	ContentCount int    `json:"content_count,omitempty"`
}

// NewsReport is the checkpoint payload of the news and interviews pipelines.
type NewsReport struct {
	CompanyName   string      `json:"company_name"`
	Kind          string      `json:"kind"`
	SearchDate    time.Time   `json:"search_date"`
	Items         []NewsItem  `json:"items"`
	KeyExecutives []Executive `json:"key_executives_identified,omitempty"`
	Citations     []string    `json:"citations,omitempty"`
	Dropped       int         `json:"dropped_unverified,omitempty"`
}

// TopScore returns the highest item relevance, or 0 for an empty report.
func (r NewsReport) TopScore() int {
	top := 0
	for _, it := range r.Items {
		top = max(top, it.RelevanceScore)
	}
	return top
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// clampScore rounds v and forces it into [lo, hi].
func clampScore(v float64, lo, hi int) int {
	n := int(math.Round(v))
	return min(max(n, lo), hi)
}

// decodeReply unmarshals an LLM reply. Any decode failure is a malformed
// response so the dispatcher retries it.
func decodeReply(content string, v any) error {
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return fmt.Errorf("decode reply: %v: %w", err, model.ErrMalformedResponse)
	}
	return nil
}

// encodePayload marshals a checkpoint payload.
func encodePayload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}
