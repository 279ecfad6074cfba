package analysis

import (
	"encoding/json"

	"github.com/amishk599/leadradar/internal/model"
)

// JobLead reads a jobs-pipeline payload.
func JobLead(r model.Result) (model.Lead, bool) {
	var rec JobRecord
	if !decodeSuccess(r, &rec) {
		return model.Lead{}, false
	}
	return model.Lead{
		Key:            r.Key,
		Company:        rec.CompanyName,
		Title:          rec.Title,
		Score:          rec.Analysis.RelevanceScore,
		Recommendation: rec.Analysis.SalesRecommendation,
	}, true
}

// TrendLead reads a trends-pipeline payload.
func TrendLead(r model.Result) (model.Lead, bool) {
	var t TrendAnalysis
	if !decodeSuccess(r, &t) {
		return model.Lead{}, false
	}
	return model.Lead{
		Key:            r.Key,
		Company:        t.CompanyName,
		Title:          "hiring trends",
		Score:          t.OverallSignalStrength,
		Recommendation: t.OverallSummary,
	}, true
}

// NewsLead reads a news or interviews payload; the lead is the top item.
func NewsLead(r model.Result) (model.Lead, bool) {
	var rep NewsReport
	if !decodeSuccess(r, &rep) || len(rep.Items) == 0 {
		return model.Lead{}, false
	}
	top := rep.Items[0]
	for _, it := range rep.Items[1:] {
		if it.RelevanceScore > top.RelevanceScore {
			top = it
		}
	}
	return model.Lead{
		Key:            r.Key,
		Company:        rep.CompanyName,
		Title:          top.Title,
		Score:          top.RelevanceScore,
		Recommendation: top.RelevanceReason,
	}, true
}

func decodeSuccess(r model.Result, v any) bool {
	payload := r.Payload()
	if payload == nil {
		return false
	}
	return json.Unmarshal(payload, v) == nil
}
