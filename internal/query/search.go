package query

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/toolkeeper/internal/filter"
	"github.com/hyperjump/toolkeeper/internal/models"
	"github.com/hyperjump/toolkeeper/internal/storage"
)

// Strategy names the fallback layer that produced a Plan.
type Strategy string

const (
	StrategyToolNames Strategy = "toolNames"
	StrategyInferred  Strategy = "inferredTool"
	StrategyBroad     Strategy = "broad"
	StrategyAll       Strategy = "all"
	StrategyNoMatch   Strategy = "unresolved"
)

// Messages attached to soft-fail answers.
const (
	MessageNoTool    = "no known tool is mentioned in the query"
	MessageNoResults = "no tools matched the query"
)

// Plan is a compiled free-text search.
type Plan struct {
	Strategy   Strategy
	Filter     filter.Expr
	Parameters *models.SearchParameters
	// Tool is the tool name inferred from the query text, if any.
	Tool string
	// Unfulfilled is set when the search cannot be answered; the store need not be queried.
	Unfulfilled bool
}

// Requested returns the attribute names the query asked about.
func (p *Plan) Requested() []string {
	if p.Parameters == nil {
		return nil
	}
	return p.Parameters.RequestedParameters
}

// Compiler turns AI-derived search parameters into a Plan.
type Compiler struct {
	storage storage.Storage
	logger  *zap.Logger
}

// NewCompiler creates a Compiler. The store is consulted for known tool names.
func NewCompiler(store storage.Storage, logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{storage: store, logger: logger}
}

// CompileSearch applies the fallback layers in order:
//  1. toolNames: exact name match on any listed name, nothing else consulted.
//  2. requestedParameters: find a known tool name inside the query text and match
//     it exactly; without one the plan is unfulfilled.
//  3. categories, locations and statuses: OR within each, AND across them.
//  4. nothing supplied: the empty filter, matching every tool.
//
// A nil params behaves as empty parameters.
func (c *Compiler) CompileSearch(ctx context.Context, text string, params *models.SearchParameters) (*Plan, error) {
	if params == nil {
		params = &models.SearchParameters{}
	}
	plan := &Plan{Parameters: params}

	if len(params.ToolNames) > 0 {
		plan.Strategy = StrategyToolNames
		plan.Filter = filter.AnyAnchored("name", params.ToolNames)
		return plan, nil
	}

	if len(params.RequestedParameters) > 0 {
		tool, err := c.InferTool(ctx, text)
		if err != nil {
			return nil, err
		}
		if tool == "" {
			c.logger.Debug("No tool inferred from query", zap.String("query", text))
			plan.Strategy = StrategyNoMatch
			plan.Unfulfilled = true
			return plan, nil
		}
		plan.Strategy = StrategyInferred
		plan.Tool = tool
		plan.Filter = filter.Anchored("name", tool)
		return plan, nil
	}

	var clauses filter.And
	if len(params.Categories) > 0 {
		clauses = append(clauses, CategoryIn(params.Categories))
	}
	if len(params.Locations) > 0 {
		clauses = append(clauses, filter.In{Field: "location", Values: params.Locations})
	}
	if len(params.Statuses) > 0 {
		clauses = append(clauses, filter.In{Field: "status", Values: params.Statuses})
	}
	plan.Filter = clauses
	if len(clauses) == 0 {
		plan.Strategy = StrategyAll
	} else {
		plan.Strategy = StrategyBroad
	}
	return plan, nil
}

// InferTool returns the first known tool name contained in text, compared
// case-insensitively, or "" when none is.
func (c *Compiler) InferTool(ctx context.Context, text string) (string, error) {
	names, err := c.storage.Distinct(ctx, storage.CollectionTools, "name")
	if err != nil {
		return "", fmt.Errorf("failed to list tool names: %w", err)
	}
	lowered := strings.ToLower(text)
	for _, name := range names {
		candidate := strings.ToLower(strings.TrimSpace(name))
		if candidate != "" && strings.Contains(lowered, candidate) {
			return name, nil
		}
	}
	return "", nil
}
