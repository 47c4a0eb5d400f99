package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/toolkeeper/internal/config"
	"github.com/hyperjump/toolkeeper/internal/models"
)

// fakeGenerator answers every prompt with a fixed reply and records the last prompt.
type fakeGenerator struct {
	reply  string
	err    error
	system string
	prompt string
}

func (f *fakeGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	f.system, f.prompt = system, prompt
	return f.reply, f.err
}

func TestAssistant_SearchParameters(t *testing.T) {
	gen := &fakeGenerator{reply: "```json\n{\"toolNames\": [\"Drill\"], \"categories\": \"Power\", \"statuses\": [\"available\", 3], \"requestedParameters\": null}\n```"}
	a := NewAssistant(gen, nil, time.Second)

	params, err := a.SearchParameters(context.Background(), "is the drill available?", models.Facets{
		Categories: []string{"Power", "Hand"},
		Statuses:   []string{"available"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Drill"}, params.ToolNames)
	assert.Empty(t, params.Categories)
	assert.Equal(t, []string{"available"}, params.Statuses)
	assert.Empty(t, params.RequestedParameters)

	assert.Contains(t, gen.prompt, "Allowed categories: Power, Hand")
	assert.Contains(t, gen.prompt, "Allowed locations: (none)")
	assert.Contains(t, gen.prompt, "is the drill available?")
	assert.Contains(t, gen.system, "requestedParameters")
}

func TestAssistant_malformed(t *testing.T) {
	for _, reply := range []string{"I cannot help with that", "{not json}", "[1, 2]"} {
		a := NewAssistant(&fakeGenerator{reply: reply}, nil, 0)
		_, err := a.SearchParameters(context.Background(), "q", models.Facets{})
		assert.True(t, errors.Is(err, ErrMalformedResponse), "reply %q: %v", reply, err)
	}
}

func TestAssistant_unavailable(t *testing.T) {
	var nilAssistant *Assistant
	_, err := nilAssistant.SearchParameters(context.Background(), "q", models.Facets{})
	assert.True(t, errors.Is(err, ErrUnavailable))

	failing := NewAssistant(&fakeGenerator{err: ErrUnavailable}, nil, 0)
	_, err = failing.DraftTool(context.Background(), "q", models.Facets{})
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestAssistant_DraftTool(t *testing.T) {
	gen := &fakeGenerator{reply: `Here you go: {"name": "Hammer", "quantity": 2, "specs": [{"name": "weight", "value": 0.5, "unit": "kg"}], "tags": ["hand"]}`}
	a := NewAssistant(gen, nil, 0)

	draft, err := a.DraftTool(context.Background(), "two claw hammers, half a kilo", models.Facets{Categories: []string{"Hand"}})
	require.NoError(t, err)
	assert.Equal(t, "Hammer", draft["name"])
	assert.Equal(t, json.Number("2"), draft["quantity"])
	assert.Contains(t, draft, "specs")
	assert.True(t, strings.Contains(gen.prompt, "Allowed categories: Hand"))
}

func TestAssistant_timeout(t *testing.T) {
	slow := generatorFunc(func(ctx context.Context, system, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	a := NewAssistant(slow, nil, 10*time.Millisecond)
	_, err := a.SearchParameters(context.Background(), "q", models.Facets{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

type generatorFunc func(ctx context.Context, system, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a": {"b": 1}}`, ExtractJSON("```json\n{\"a\": {\"b\": 1}}\n```"))
	assert.Equal(t, "", ExtractJSON("no object"))
	assert.Equal(t, "", ExtractJSON("} backwards {"))
}

func TestNewGenerator_requiresKey(t *testing.T) {
	_, err := NewGenerator(context.Background(), config.AIConfig{Provider: config.ProviderGemini})
	assert.True(t, errors.Is(err, ErrUnavailable))

	gen, err := NewGenerator(context.Background(), config.AIConfig{Provider: config.ProviderOpenAI, APIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGenerator{}, gen)
}
