package filter

import (
	"strings"

	"github.com/amishk599/leadradar/internal/model"
)

// PostingFilter decides which job postings are worth an LLM call. Title and
// location keywords are case-insensitive substrings; empty include lists match
// everything, exclude lists always win.
type PostingFilter struct {
	titleKeywords        []string
	titleExcludeKeywords []string
	locations            []string
	excludeLocations     []string
	minDescription       int
}

// NewPostingFilter returns a filter over title, location and description length.
// minDescription is the minimum description length in runes; zero disables the check.
func NewPostingFilter(titleKeywords, titleExcludeKeywords, locations, excludeLocations []string, minDescription int) *PostingFilter {
	return &PostingFilter{
		titleKeywords:        lowerAll(titleKeywords),
		titleExcludeKeywords: lowerAll(titleExcludeKeywords),
		locations:            lowerAll(locations),
		excludeLocations:     lowerAll(excludeLocations),
		minDescription:       minDescription,
	}
}

// Match returns true if the job passes every configured criterion.
func (f *PostingFilter) Match(job model.Job) bool {
	title := strings.ToLower(job.Title)
	location := strings.ToLower(job.Location)

	if containsAny(title, f.titleExcludeKeywords) {
		return false
	}
	if len(f.titleKeywords) > 0 && !containsAny(title, f.titleKeywords) {
		return false
	}
	if containsAny(location, f.excludeLocations) {
		return false
	}
	if len(f.locations) > 0 && !containsAny(location, f.locations) {
		return false
	}
	if f.minDescription > 0 && len([]rune(strings.TrimSpace(job.Description))) < f.minDescription {
		return false
	}
	return true
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
