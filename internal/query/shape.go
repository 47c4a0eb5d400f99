package query

import (
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/toolkeeper/internal/models"
	"github.com/hyperjump/toolkeeper/internal/storage"
)

// Shape builds the answer to a search from the tools its filter matched. Tools are
// returned in canonical form. When the query asked about specific attributes,
// each tool is reduced to its identity, brand, model and the matching
// specifications. An empty answer is always the soft-fail shape. Documents that
// cannot be read as tools are skipped and logged.
func Shape(docs []storage.Document, plan *Plan, logger *zap.Logger) *models.SearchResult {
	if logger == nil {
		logger = zap.NewNop()
	}
	result := &models.SearchResult{
		Tools:      []map[string]any{},
		Status:     models.SearchStatusOK,
		Parameters: plan.Parameters,
	}
	if plan.Unfulfilled {
		return unfulfilled(result, MessageNoTool)
	}

	requested := plan.Requested()
	for _, doc := range docs {
		tool, err := models.DecodeTool(doc)
		if err != nil {
			logger.Warn("Skipping unreadable tool document", zap.Any("id", doc[storage.IDField]), zap.Error(err))
			continue
		}
		if len(requested) > 0 {
			result.Tools = append(result.Tools, project(tool, requested))
			continue
		}
		canonical, err := tool.Document()
		if err != nil {
			logger.Warn("Skipping tool that cannot be encoded", zap.String("id", tool.ID), zap.Error(err))
			continue
		}
		result.Tools = append(result.Tools, canonical)
	}

	if len(result.Tools) == 0 {
		return unfulfilled(result, MessageNoResults)
	}
	return result
}

func unfulfilled(result *models.SearchResult, message string) *models.SearchResult {
	result.Tools = []map[string]any{}
	result.Status = models.SearchStatusUnfulfilled
	result.Message = message
	return result
}

// project keeps the summary fields and the specifications named in requested.
func project(tool *models.Tool, requested []string) map[string]any {
	wanted := make(map[string]struct{}, len(requested))
	for _, r := range requested {
		wanted[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	specs := make([]models.Specification, 0, len(tool.Specifications))
	for _, spec := range tool.Specifications {
		if _, ok := wanted[strings.ToLower(strings.TrimSpace(spec.Name))]; ok {
			specs = append(specs, spec)
		}
	}
	return map[string]any{
		storage.IDField:  tool.ID,
		"name":           tool.Name,
		"brand":          tool.Brand,
		"model":          tool.Model,
		"specifications": specs,
	}
}
