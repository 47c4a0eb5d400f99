package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/toolkeeper/internal/models"
)

const searchInstruction = `You translate questions about a tool inventory into search parameters.
Answer with a single JSON object and nothing else, using exactly these keys, each an array of strings:
"toolNames" (tool names the user names explicitly),
"categories", "locations", "statuses" (values taken only from the allowed lists),
"requestedParameters" (specification names the user asks about, such as "weight" or "voltage").
Use an empty array for anything the question does not mention.`

const draftInstruction = `You turn a free-text description of a tool into an inventory record.
Answer with a single JSON object and nothing else, with the keys
"name", "category", "brand", "model", "purchaseDate" (YYYY-MM-DD), "quantity" (number),
"location", "status", "specifications" (array of {"name", "value", "unit"}),
"tags" (array of strings), "maintenance" (array of strings) and "description".
Pick "category" and "status" from the allowed lists when one fits.`

// Assistant asks a Generator for structured answers about the inventory.
type Assistant struct {
	generator Generator
	logger    *zap.Logger
	timeout   time.Duration
}

// NewAssistant creates an Assistant. A zero timeout leaves calls bounded only by ctx.
func NewAssistant(generator Generator, logger *zap.Logger, timeout time.Duration) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{generator: generator, logger: logger, timeout: timeout}
}

// SearchParameters extracts search parameters from a free-text query. facets
// lists the values currently stored, which the model is asked to choose from.
func (a *Assistant) SearchParameters(ctx context.Context, text string, facets models.Facets) (*models.SearchParameters, error) {
	prompt := fmt.Sprintf("Allowed categories: %s\nAllowed locations: %s\nAllowed statuses: %s\n\nQuestion: %s",
		list(facets.Categories), list(facets.Locations), list(facets.Statuses), text)

	raw, err := a.generate(ctx, searchInstruction, prompt)
	if err != nil {
		return nil, err
	}
	var params models.SearchParameters
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	a.logger.Debug("Extracted search parameters",
		zap.String("query", text),
		zap.Strings("toolNames", params.ToolNames),
		zap.Strings("requestedParameters", params.RequestedParameters))
	return &params, nil
}

// DraftTool asks the model for a tool record described by text. The draft is
// unvalidated and must go through the normalizer.
func (a *Assistant) DraftTool(ctx context.Context, text string, allowed models.Facets) (map[string]any, error) {
	prompt := fmt.Sprintf("Allowed categories: %s\nAllowed statuses: %s\n\nDescription: %s",
		list(allowed.Categories), list(allowed.Statuses), text)

	raw, err := a.generate(ctx, draftInstruction, prompt)
	if err != nil {
		return nil, err
	}
	draft := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&draft); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return draft, nil
}

func (a *Assistant) generate(ctx context.Context, system, prompt string) ([]byte, error) {
	if a == nil || a.generator == nil {
		return nil, ErrUnavailable
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	start := time.Now()
	answer, err := a.generator.Generate(ctx, system, prompt)
	if err != nil {
		a.logger.Warn("AI call failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, err
	}
	a.logger.Debug("AI call completed", zap.Duration("elapsed", time.Since(start)))
	body := ExtractJSON(answer)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object in answer", ErrMalformedResponse)
	}
	return []byte(body), nil
}

// ExtractJSON returns the outermost JSON object in answer, ignoring Markdown code
// fences and surrounding prose. It returns "" when there is none.
func ExtractJSON(answer string) string {
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start < 0 || end < start {
		return ""
	}
	return answer[start : end+1]
}

func list(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}
