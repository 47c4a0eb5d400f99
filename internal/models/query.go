package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Search statuses reported in SearchResult.Status.
const (
	SearchStatusOK          = "ok"
	SearchStatusUnfulfilled = "could not be fulfilled"
)

// ListParams are the direct filters accepted by the tool listing endpoint.
// Category, Location, Status and Tags are comma-separated lists.
type ListParams struct {
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
	Location string `json:"location,omitempty"`
	Status   string `json:"status,omitempty"`
	Tags     string `json:"tags,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Normalize clamps Limit into [1, maxLimit] (defaultLimit when unset) and Offset to >= 0.
func (p *ListParams) Normalize(defaultLimit, maxLimit int) {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// ListResponse is one page of tools.
type ListResponse struct {
	Tools  []*Tool `json:"tools"`
	Total  int64   `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// SearchRequest is the body of a free-text search.
type SearchRequest struct {
	Query string `json:"query" validate:"required"`
}

// Validate ensures the search query is not blank.
func (r *SearchRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}

// SearchParameters is the structured form of a free-text query. It is never persisted.
type SearchParameters struct {
	ToolNames           []string `json:"toolNames"`
	Categories          []string `json:"categories"`
	Locations           []string `json:"locations"`
	Statuses            []string `json:"statuses"`
	RequestedParameters []string `json:"requestedParameters"`
}

// UnmarshalJSON treats any field that is not an array of strings as empty.
func (p *SearchParameters) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = SearchParameters{
		ToolNames:           stringList(raw["toolNames"]),
		Categories:          stringList(raw["categories"]),
		Locations:           stringList(raw["locations"]),
		Statuses:            stringList(raw["statuses"]),
		RequestedParameters: stringList(raw["requestedParameters"]),
	}
	return nil
}

// IsEmpty reports whether no field carries a value.
func (p *SearchParameters) IsEmpty() bool {
	return len(p.ToolNames) == 0 && len(p.Categories) == 0 && len(p.Locations) == 0 &&
		len(p.Statuses) == 0 && len(p.RequestedParameters) == 0
}

// stringList keeps the non-blank string elements of a JSON array; anything else yields nil.
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SearchResult is the answer to a free-text search. An empty Tools list always
// comes with SearchStatusUnfulfilled.
type SearchResult struct {
	Tools      []map[string]any  `json:"tools"`
	Status     string            `json:"status"`
	Message    string            `json:"message,omitempty"`
	Parameters *SearchParameters `json:"searchParameters,omitempty"`
	QueryTime  int64             `json:"query_time_ms"`
}
