// Package importer loads tools from spreadsheets.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/toolkeeper/internal/models"
	"github.com/hyperjump/toolkeeper/internal/normalize"
)

// ErrNoRows is returned for a sheet without a header row.
var ErrNoRows = errors.New("sheet has no header row")

// Creator stores one raw tool record. *inventory.Service satisfies it.
type Creator interface {
	Create(ctx context.Context, input map[string]any) (*models.Tool, error)
}

// RowError describes a row that could not be imported. Row is 1-based as shown
// in spreadsheet programs.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// Report summarizes an import run.
type Report struct {
	Sheet    string     `json:"sheet"`
	Imported []string   `json:"imported"`
	Failed   []RowError `json:"-"`
}

// Importer reads spreadsheet rows and creates a tool from each.
type Importer struct {
	creator Creator
	logger  *zap.Logger
}

// New creates an Importer.
func New(creator Creator, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{creator: creator, logger: logger}
}

// Import reads sheet (the first sheet when empty) from an .xlsx stream. Rows that
// fail normalization are reported, not fatal; a store failure stops the run.
func (i *Importer) Import(ctx context.Context, r io.Reader, sheet string) (*Report, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet: %w", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrNoRows
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	records, err := Records(rows)
	if err != nil {
		return nil, err
	}

	report := &Report{Sheet: sheet, Imported: []string{}}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		tool, err := i.creator.Create(ctx, rec.Fields)
		if err != nil {
			if !isRowError(err) {
				return report, fmt.Errorf("row %d: %w", rec.Row, err)
			}
			i.logger.Warn("Skipping row", zap.Int("row", rec.Row), zap.Error(err))
			report.Failed = append(report.Failed, RowError{Row: rec.Row, Err: err})
			continue
		}
		i.logger.Debug("Imported row", zap.Int("row", rec.Row), zap.String("id", tool.ID))
		report.Imported = append(report.Imported, tool.ID)
	}
	return report, nil
}

// isRowError reports whether err rejects the row itself rather than the store.
func isRowError(err error) bool {
	var nerr *normalize.Error
	return errors.As(err, &nerr) && nerr.IsValidation()
}

// Record is one data row keyed by header.
type Record struct {
	Row    int
	Fields map[string]any
}

// Records converts raw rows into records. The first row holds the field names;
// blank rows are skipped and blank cells are left out.
func Records(rows [][]string) ([]Record, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	var out []Record
	for n, row := range rows[1:] {
		fields := make(map[string]any)
		for col, cell := range row {
			if col >= len(header) || header[col] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			fields[header[col]] = cellValue(header[col], cell)
		}
		if len(fields) == 0 {
			continue
		}
		out = append(out, Record{Row: n + 2, Fields: fields})
	}
	return out, nil
}

func cellValue(field, cell string) any {
	switch field {
	case "specifications", "specs", "specification":
		return ParseSpecifications(cell)
	case "purchaseDate":
		return spreadsheetDate(cell)
	case "maintenance":
		return splitList(cell)
	}
	return cell
}

// ParseSpecifications reads a JSON array or a "name=value unit; ..." list. Text it
// cannot read is returned unchanged so the normalizer reports it.
func ParseSpecifications(cell string) any {
	if strings.HasPrefix(cell, "[") {
		var specs []any
		dec := json.NewDecoder(strings.NewReader(cell))
		dec.UseNumber()
		if err := dec.Decode(&specs); err == nil {
			return specs
		}
		return cell
	}
	var specs []any
	for _, part := range strings.Split(cell, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, rest, ok := strings.Cut(part, "=")
		name, rest = strings.TrimSpace(name), strings.TrimSpace(rest)
		if !ok || name == "" {
			return cell
		}
		spec := map[string]any{"name": name}
		value, unit, _ := strings.Cut(rest, " ")
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			spec["value"] = n
			if unit = strings.TrimSpace(unit); unit != "" {
				spec["unit"] = unit
			}
		} else {
			spec["value"] = rest
		}
		specs = append(specs, spec)
	}
	return specs
}

var spreadsheetDateLayouts = []string{"1/2/06", "1/2/2006", "01-02-06", "2006/01/02", "02.01.2006"}

// spreadsheetDate rewrites the short date formats spreadsheets display into the
// canonical layout.
func spreadsheetDate(cell string) string {
	for _, layout := range spreadsheetDateLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t.Format(models.DateLayout)
		}
	}
	return cell
}

func splitList(cell string) []any {
	var out []any
	for _, item := range strings.Split(cell, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
