// Package models defines core data structures for tools, categories, tags, and searches.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultStatus is assigned to tools created without an explicit status.
const DefaultStatus = "available"

// DateLayout is the canonical on-disk form of a tool's purchase date.
const DateLayout = "2006-01-02"

// Specification is one measured attribute of a tool, e.g. {weight, 2.5, kg}.
// Value is either a number or a string.
type Specification struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// Tool is the canonical tool record. Category and Tags always hold plain names.
type Tool struct {
	ID             string          `json:"_id,omitempty"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Brand          string          `json:"brand,omitempty"`
	Model          string          `json:"model,omitempty"`
	Quantity       float64         `json:"quantity"`
	Location       string          `json:"location"`
	Status         string          `json:"status"`
	PurchaseDate   string          `json:"purchaseDate,omitempty"`
	Specifications []Specification `json:"specifications"`
	Tags           []string        `json:"tags"`
	Maintenance    []string        `json:"maintenance"`
	Description    string          `json:"description,omitempty"`
	CreatedAt      *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time      `json:"updatedAt,omitempty"`
}

// legacyTool mirrors every field name any schema era has written.
type legacyTool struct {
	ID             string          `json:"_id"`
	Name           string          `json:"name"`
	Category       json.RawMessage `json:"category"`
	Brand          string          `json:"brand"`
	Model          string          `json:"model"`
	Quantity       json.RawMessage `json:"quantity"`
	Location       string          `json:"location"`
	Rack           string          `json:"rack"`
	Status         string          `json:"status"`
	PurchaseDate   string          `json:"purchaseDate"`
	Specifications json.RawMessage `json:"specifications"`
	Specs          json.RawMessage `json:"specs"`
	Specification  json.RawMessage `json:"specification"`
	Tags           json.RawMessage `json:"tags"`
	Maintenance    []string        `json:"maintenance"`
	Description    string          `json:"description"`
	CreatedAt      *time.Time      `json:"createdAt"`
	UpdatedAt      *time.Time      `json:"updatedAt"`
}

// UnmarshalJSON reads any stored variant of a tool: category as a name or as a
// {name} object, tags as names or {_id, name} sub-documents, specifications under
// any of its aliases, and location under its older "rack" name.
func (t *Tool) UnmarshalJSON(data []byte) error {
	var raw legacyTool
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	category, err := decodeNameRef(raw.Category)
	if err != nil {
		return fmt.Errorf("category: %w", err)
	}
	tags, err := decodeNameList(raw.Tags)
	if err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	quantity, err := decodeQuantity(raw.Quantity)
	if err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	var specs []Specification
	for _, candidate := range []json.RawMessage{raw.Specifications, raw.Specs, raw.Specification} {
		if isNull(candidate) {
			continue
		}
		if err := json.Unmarshal(candidate, &specs); err != nil {
			return fmt.Errorf("specifications: %w", err)
		}
		break
	}
	location := raw.Location
	if location == "" {
		location = raw.Rack
	}
	*t = Tool{
		ID:             raw.ID,
		Name:           raw.Name,
		Category:       category,
		Brand:          raw.Brand,
		Model:          raw.Model,
		Quantity:       quantity,
		Location:       location,
		Status:         raw.Status,
		PurchaseDate:   raw.PurchaseDate,
		Specifications: specs,
		Tags:           tags,
		Maintenance:    raw.Maintenance,
		Description:    raw.Description,
		CreatedAt:      raw.CreatedAt,
		UpdatedAt:      raw.UpdatedAt,
	}
	return nil
}

// Document returns the tool as a generic document suitable for a store.
func (t *Tool) Document() (map[string]any, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool: %w", err)
	}
	doc := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to convert tool: %w", err)
	}
	return doc, nil
}

// DecodeTool converts a stored document into a Tool, accepting every schema variant.
func DecodeTool(doc map[string]any) (*Tool, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	var tool Tool
	if err := json.Unmarshal(data, &tool); err != nil {
		return nil, fmt.Errorf("failed to decode tool: %w", err)
	}
	return &tool, nil
}

// ParseDate parses a purchase date given as YYYY-MM-DD or RFC3339 and returns it in
// canonical form.
func ParseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateLayout, time.RFC3339Nano, time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC().Format(DateLayout), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeNameRef accepts "name" or {"name": "..."}.
func decodeNameRef(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name, nil
	}
	var ref struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", err
	}
	return ref.Name, nil
}

// decodeNameList accepts ["a", "b"] or [{"name": "a"}, {"name": "b"}], or a mix.
func decodeNameList(raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		name, err := decodeNameRef(item)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func decodeQuantity(raw json.RawMessage) (float64, error) {
	if isNull(raw) {
		return 0, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, fmt.Errorf("quantity %q is not finite", s)
	}
	return n, nil
}
