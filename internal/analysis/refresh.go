package analysis

import (
	"context"
	"slices"
	"strings"

	"github.com/amishk599/leadradar/internal/model"
)

// NewsOp analyzes one company-level WorkItem.
type NewsOp func(ctx context.Context, item model.WorkItem) (model.Success, error)

// RefreshNews wraps op so each fresh report is merged into the successful
// result prior returns for the same key. Keys without a usable prior result
// keep the fresh report as is.
func RefreshNews(op NewsOp, prior func(key string) (model.Result, bool)) NewsOp {
	return func(ctx context.Context, item model.WorkItem) (model.Success, error) {
		got, err := op(ctx, item)
		if err != nil {
			return got, err
		}
		old, ok := prior(item.Key)
		if !ok {
			return got, nil
		}
		var before NewsReport
		if !decodeSuccess(old, &before) {
			return got, nil
		}
		var fresh NewsReport
		if err := decodeReply(string(got.Payload), &fresh); err != nil {
			return model.Success{}, err
		}
		payload, err := encodePayload(MergeNewsReports(before, fresh))
		if err != nil {
			return model.Success{}, err
		}
		got.Payload = payload
		return got, nil
	}
}

// MergeNewsReports folds fresh into prior. Items are matched by URL, the fresh
// copy wins, and the result is ordered newest first. Citations are unioned and
// executives are matched by name.
func MergeNewsReports(prior, fresh NewsReport) NewsReport {
	merged := fresh
	if merged.CompanyName == "" {
		merged.CompanyName = prior.CompanyName
	}
	if merged.Kind == "" {
		merged.Kind = prior.Kind
	}

	merged.Items = make([]NewsItem, 0, len(prior.Items)+len(fresh.Items))
	byURL := make(map[string]int)
	for _, it := range slices.Concat(prior.Items, fresh.Items) {
		u := normURL(it.URL)
		if i, ok := byURL[u]; ok && u != "" {
			merged.Items[i] = it
			continue
		}
		byURL[u] = len(merged.Items)
		merged.Items = append(merged.Items, it)
	}
	slices.SortStableFunc(merged.Items, newerFirst)

	merged.Citations = nil
	seen := make(map[string]bool)
	for _, c := range slices.Concat(prior.Citations, fresh.Citations) {
		if n := normURL(c); n != "" && !seen[n] {
			seen[n] = true
			merged.Citations = append(merged.Citations, c)
		}
	}

	merged.KeyExecutives = nil
	byName := make(map[string]int)
	for _, e := range slices.Concat(prior.KeyExecutives, fresh.KeyExecutives) {
		name := strings.ToLower(strings.TrimSpace(e.Name))
		if name == "" {
			continue
		}
		if i, ok := byName[name]; ok {
			merged.KeyExecutives[i] = mergeExecutive(merged.KeyExecutives[i], e)
			continue
		}
		byName[name] = len(merged.KeyExecutives)
		merged.KeyExecutives = append(merged.KeyExecutives, e)
	}
	return merged
}

// mergeExecutive keeps the fresh fields that are set.
func mergeExecutive(old, fresh Executive) Executive {
	out := old
	if fresh.Title != "" {
		out.Title = fresh.Title
	}
	if fresh.Relevance != "" {
		out.Relevance = fresh.Relevance
	}
	out.ContentCount = max(old.ContentCount, fresh.ContentCount)
	return out
}

// newerFirst orders items by published date, newest first, undated last.
// Same-day items keep the higher relevance first.
func newerFirst(a, b NewsItem) int {
	da, db := strings.TrimSpace(a.PublishedDate), strings.TrimSpace(b.PublishedDate)
	switch {
	case da == db:
		return b.RelevanceScore - a.RelevanceScore
	case da == "":
		return 1
	case db == "":
		return -1
	}
	return strings.Compare(db, da)
}
