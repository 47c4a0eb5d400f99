// Package cli formats API results for the toolkeeper command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/toolkeeper/internal/models"
	"github.com/hyperjump/toolkeeper/pkg/utils"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one tool per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is indented JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const maxDescription = 120

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteSearchResults writes a search answer to w in the given format.
func WriteSearchResults(w io.Writer, result *models.SearchResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	if len(result.Tools) == 0 {
		msg := result.Message
		if msg == "" {
			msg = result.Status
		}
		fmt.Fprintf(w, "No tools found: %s (%dms)\n", msg, result.QueryTime)
		return nil
	}
	tools := make([]*models.Tool, 0, len(result.Tools))
	for _, doc := range result.Tools {
		tool, err := models.DecodeTool(doc)
		if err != nil {
			return err
		}
		tools = append(tools, tool)
	}
	if format == OutputCompact {
		writeCompact(w, tools)
		return nil
	}
	fmt.Fprintf(w, "\nFound %d tools in %dms\n\n", len(tools), result.QueryTime)
	for _, tool := range tools {
		writeOneTool(w, tool)
	}
	return nil
}

// WriteToolList writes one page of a tool listing.
func WriteToolList(w io.Writer, page *models.ListResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, page)
	case OutputCompact:
		writeCompact(w, page.Tools)
	default:
		fmt.Fprintf(w, "\nShowing %d of %d tools (offset %d)\n\n", len(page.Tools), page.Total, page.Offset)
		for _, tool := range page.Tools {
			writeOneTool(w, tool)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCompact(w io.Writer, tools []*models.Tool) {
	for _, tool := range tools {
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\n",
			tool.ID, tool.Name, tool.Brand, tool.Model, tool.Location, tool.Status)
	}
}

func writeOneTool(w io.Writer, tool *models.Tool) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "%s", tool.Name)
	if brand := strings.TrimSpace(tool.Brand + " " + tool.Model); brand != "" {
		fmt.Fprintf(w, " (%s)", brand)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "ID: %s\n", tool.ID)
	if tool.Category != "" {
		fmt.Fprintf(w, "Category: %s\n", tool.Category)
	}
	if tool.Location != "" || tool.Status != "" {
		fmt.Fprintf(w, "Location: %s | Status: %s | Quantity: %g\n", tool.Location, tool.Status, tool.Quantity)
	}
	for _, spec := range tool.Specifications {
		fmt.Fprintf(w, "  %s: %v%s\n", spec.Name, spec.Value, unitSuffix(spec.Unit))
	}
	if len(tool.Tags) > 0 {
		fmt.Fprintf(w, "Tags: %s\n", strings.Join(tool.Tags, ", "))
	}
	if tool.Description != "" {
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(tool.Description, maxDescription))
	}
	fmt.Fprintln(w)
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}
