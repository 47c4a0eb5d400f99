// Package query compiles listing parameters and AI-derived search parameters
// into store filters, and shapes search answers.
package query

import (
	"strings"

	"github.com/hyperjump/toolkeeper/internal/filter"
	"github.com/hyperjump/toolkeeper/internal/models"
)

// CompileList builds the filter for the direct listing parameters. Every supplied
// parameter adds one clause; the clauses are ANDed. No parameters yields an empty
// filter that matches the whole collection.
func CompileList(p models.ListParams) filter.Expr {
	var clauses filter.And
	if name := strings.TrimSpace(p.Name); name != "" {
		clauses = append(clauses, filter.Contains("name", name))
	}
	if categories := SplitList(p.Category); len(categories) > 0 {
		clauses = append(clauses, CategoryIn(categories))
	}
	if locations := SplitList(p.Location); len(locations) > 0 {
		clauses = append(clauses, filter.In{Field: "location", Values: locations})
	}
	if statuses := SplitList(p.Status); len(statuses) > 0 {
		clauses = append(clauses, filter.In{Field: "status", Values: statuses})
	}
	if tags := SplitList(p.Tags); len(tags) > 0 {
		clauses = append(clauses, TagsMatch(tags))
	}
	return clauses
}

// SplitList splits a comma-separated list, trimming items and dropping empty ones.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// CategoryIn matches tools whose category is one of names, whether the category is
// stored as a plain name or as a {name} object.
func CategoryIn(names []string) filter.Expr {
	return filter.Or{
		filter.In{Field: "category", Values: names},
		filter.In{Field: "category.name", Values: names},
	}
}

// TagsMatch matches tools carrying any of the given tags, compared trimmed and
// case-insensitively, whether tags are stored as names or as {_id, name} documents.
func TagsMatch(tags []string) filter.Expr {
	clauses := make(filter.Or, 0, 2*len(tags))
	for _, tag := range tags {
		clauses = append(clauses, filter.Anchored("tags", tag), filter.Anchored("tags.name", tag))
	}
	return clauses
}
