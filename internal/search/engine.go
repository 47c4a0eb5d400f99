// Package search answers free-text questions about the inventory.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/toolkeeper/internal/ai"
	"github.com/hyperjump/toolkeeper/internal/filter"
	"github.com/hyperjump/toolkeeper/internal/inventory"
	"github.com/hyperjump/toolkeeper/internal/models"
	"github.com/hyperjump/toolkeeper/internal/query"
	"github.com/hyperjump/toolkeeper/internal/storage"
)

// Engine turns a question into search parameters with the assistant, compiles
// them into a filter, and shapes the matching tools into an answer.
type Engine struct {
	storage    storage.Storage
	assistant  *ai.Assistant
	compiler   *query.Compiler
	logger     *zap.Logger
	maxResults int
}

// NewEngine creates a search engine. assistant may be nil, in which case every
// search fails with ai.ErrUnavailable.
func NewEngine(store storage.Storage, assistant *ai.Assistant, logger *zap.Logger, maxResults int) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		storage:    store,
		assistant:  assistant,
		compiler:   query.NewCompiler(store, logger),
		logger:     logger,
		maxResults: maxResults,
	}
}

// Search answers req. A failed or malformed parameter extraction is treated as
// empty parameters rather than an error.
func (e *Engine) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResult, error) {
	startTime := time.Now()
	if err := ProcessQuery(req); err != nil {
		return nil, err
	}
	if e.assistant == nil {
		return nil, ai.ErrUnavailable
	}

	facets, err := inventory.LoadFacets(ctx, e.storage)
	if err != nil {
		return nil, err
	}
	params, err := e.assistant.SearchParameters(ctx, req.Query, facets)
	if err != nil {
		e.logger.Warn("Search parameter extraction failed, searching without parameters",
			zap.String("query", req.Query), zap.Error(err))
		params = &models.SearchParameters{}
	}
	if params.IsEmpty() {
		e.logger.Debug("No search parameters extracted", zap.String("query", req.Query))
	}

	plan, err := e.compiler.CompileSearch(ctx, req.Query, params)
	if err != nil {
		return nil, err
	}

	var docs []storage.Document
	if !plan.Unfulfilled {
		docs, err = e.storage.Find(ctx, storage.CollectionTools, plan.Filter, storage.FindOptions{Limit: e.maxResults})
		if err != nil {
			return nil, fmt.Errorf("failed to find tools: %w", err)
		}
	}

	result := query.Shape(docs, plan, e.logger)
	result.QueryTime = time.Since(startTime).Milliseconds()
	e.logger.Debug("Search completed",
		zap.String("query", req.Query),
		zap.String("strategy", string(plan.Strategy)),
		zap.String("inferred_tool", plan.Tool),
		zap.Bool("unfiltered", !plan.Unfulfilled && filter.IsEmpty(plan.Filter)),
		zap.Int("results", len(result.Tools)),
		zap.Int64("query_time_ms", result.QueryTime))
	return result, nil
}
