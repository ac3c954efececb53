// Package search filters paper collections.
package search

import (
	"strings"

	"literature-manager/internal/model"
)

// CategoryAll disables the category filter.
const CategoryAll = "all"

// Filter holds the conjunctive query criteria. Zero values match everything.
type Filter struct {
	Search   string `json:"search,omitempty"`
	Category string `json:"category,omitempty"`
	Year     int    `json:"year,omitempty"`
	Author   string `json:"author,omitempty"`
}

// IsEmpty reports whether f matches every paper.
func (f Filter) IsEmpty() bool {
	return strings.TrimSpace(f.Search) == "" &&
		(f.Category == "" || f.Category == CategoryAll) &&
		f.Year == 0 &&
		strings.TrimSpace(f.Author) == ""
}

// Apply returns the papers matching f, in their original order.
func Apply(papers []model.Paper, f Filter) []model.Paper {
	text := strings.ToLower(strings.TrimSpace(f.Search))
	author := strings.ToLower(strings.TrimSpace(f.Author))

	out := make([]model.Paper, 0, len(papers))
	for _, p := range papers {
		if text != "" && !matchesText(p, text) {
			continue
		}
		if f.Category != "" && f.Category != CategoryAll && p.ResearchArea != f.Category {
			continue
		}
		if f.Year != 0 && p.Year != f.Year {
			continue
		}
		if author != "" && !anyContains(p.Authors, author) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesText(p model.Paper, needle string) bool {
	return strings.Contains(strings.ToLower(p.Title), needle) ||
		anyContains(p.Authors, needle) ||
		strings.Contains(strings.ToLower(p.Abstract), needle) ||
		anyContains(p.Keywords, needle)
}

// needle must already be lower-cased.
func anyContains(values []string, needle string) bool {
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}
