package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hyperjump/toolkeeper/internal/ai"
	"github.com/hyperjump/toolkeeper/internal/models"
	"github.com/hyperjump/toolkeeper/internal/storage"
)

type stubGenerator struct {
	reply string
	err   error
}

func (s stubGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	return s.reply, s.err
}

func newStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "tools.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	tools := []storage.Document{
		{"name": "Cordless Drill", "category": "Power", "location": "A1", "status": "available", "brand": "Makita",
			"specifications": []any{
				map[string]any{"name": "weight", "value": 1.7, "unit": "kg"},
				map[string]any{"name": "voltage", "value": 18, "unit": "V"},
			}},
		{"name": "Hammer", "category": map[string]any{"name": "Hand"}, "location": "B2", "status": "in use"},
		{"name": "Saw", "category": "Hand", "location": "B2", "status": "available"},
	}
	for _, doc := range tools {
		if _, err := store.InsertOne(ctx, storage.CollectionTools, doc); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func newEngine(t *testing.T, reply string) *Engine {
	t.Helper()
	assistant := ai.NewAssistant(stubGenerator{reply: reply}, nil, 0)
	return NewEngine(newStore(t), assistant, nil, 100)
}

func TestEngine_Search_toolNames(t *testing.T) {
	engine := newEngine(t, `{"toolNames": ["hammer"]}`)
	result, err := engine.Search(context.Background(), &models.SearchRequest{Query: "where is the hammer?"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != models.SearchStatusOK || len(result.Tools) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Tools[0]["name"] != "Hammer" || result.Tools[0]["category"] != "Hand" {
		t.Errorf("tool = %v", result.Tools[0])
	}
	if result.Parameters == nil || len(result.Parameters.ToolNames) != 1 {
		t.Errorf("parameters should be echoed: %+v", result.Parameters)
	}
}

func TestEngine_Search_requestedParameter(t *testing.T) {
	engine := newEngine(t, "```json\n{\"toolNames\": [], \"requestedParameters\": [\"weight\"]}\n```")
	result, err := engine.Search(context.Background(), &models.SearchRequest{Query: "How heavy is the cordless drill?"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Tools) != 1 {
		t.Fatalf("expected one tool, got %+v", result)
	}
	specs, ok := result.Tools[0]["specifications"].([]models.Specification)
	if !ok || len(specs) != 1 || specs[0].Name != "weight" {
		t.Errorf("specifications = %#v", result.Tools[0]["specifications"])
	}
	if _, ok := result.Tools[0]["location"]; ok {
		t.Error("location should not be projected")
	}
}

func TestEngine_Search_softFail(t *testing.T) {
	engine := newEngine(t, `{"requestedParameters": ["weight"]}`)
	result, err := engine.Search(context.Background(), &models.SearchRequest{Query: "how heavy is the welder"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != models.SearchStatusUnfulfilled || len(result.Tools) != 0 || result.Tools == nil {
		t.Errorf("expected soft fail, got %+v", result)
	}
}

func TestEngine_Search_broad(t *testing.T) {
	engine := newEngine(t, `{"categories": ["Hand"], "statuses": ["available"]}`)
	result, err := engine.Search(context.Background(), &models.SearchRequest{Query: "available hand tools"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Tools) != 1 || result.Tools[0]["name"] != "Saw" {
		t.Errorf("expected Saw, got %+v", result.Tools)
	}
}

func TestEngine_Search_malformedAnswerDegradesToEverything(t *testing.T) {
	engine := newEngine(t, "sorry, I can't do that")
	result, err := engine.Search(context.Background(), &models.SearchRequest{Query: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != models.SearchStatusOK || len(result.Tools) != 3 {
		t.Errorf("expected whole collection, got %+v", result)
	}
}

func TestEngine_Search_failedCallDegrades(t *testing.T) {
	assistant := ai.NewAssistant(stubGenerator{err: ai.ErrUnavailable}, nil, 0)
	engine := NewEngine(newStore(t), assistant, nil, 2)
	result, err := engine.Search(context.Background(), &models.SearchRequest{Query: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Tools) != 2 {
		t.Errorf("expected results capped at 2, got %d", len(result.Tools))
	}
}

func TestEngine_Search_logsPlan(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	assistant := ai.NewAssistant(stubGenerator{reply: `{"requestedParameters": ["voltage"]}`}, nil, 0)
	engine := NewEngine(newStore(t), assistant, zap.New(core), 100)

	if _, err := engine.Search(context.Background(), &models.SearchRequest{Query: "voltage of the cordless drill"}); err != nil {
		t.Fatal(err)
	}
	done := logs.FilterMessage("Search completed").All()
	if len(done) != 1 {
		t.Fatalf("expected one completion log, got %d", len(done))
	}
	fields := done[0].ContextMap()
	if fields["inferred_tool"] != "Cordless Drill" {
		t.Errorf("inferred_tool = %v", fields["inferred_tool"])
	}
	if fields["unfiltered"] != false {
		t.Errorf("unfiltered = %v", fields["unfiltered"])
	}

	logs.TakeAll()
	engine.assistant = ai.NewAssistant(stubGenerator{reply: `{}`}, nil, 0)
	if _, err := engine.Search(context.Background(), &models.SearchRequest{Query: "everything"}); err != nil {
		t.Fatal(err)
	}
	if logs.FilterMessage("No search parameters extracted").Len() != 1 {
		t.Error("expected empty parameters to be logged")
	}
	done = logs.FilterMessage("Search completed").All()
	if len(done) != 1 || done[0].ContextMap()["unfiltered"] != true {
		t.Errorf("expected an unfiltered search, got %+v", done)
	}
}

func TestEngine_Search_noAssistant(t *testing.T) {
	engine := NewEngine(newStore(t), nil, nil, 10)
	_, err := engine.Search(context.Background(), &models.SearchRequest{Query: "drill"})
	if !errors.Is(err, ai.ErrUnavailable) {
		t.Errorf("err = %v, want ai.ErrUnavailable", err)
	}
}

func TestProcessQuery(t *testing.T) {
	req := &models.SearchRequest{Query: "  drill  "}
	if err := ProcessQuery(req); err != nil {
		t.Fatal(err)
	}
	if req.Query != "drill" {
		t.Errorf("query = %q, want trimmed", req.Query)
	}
	for _, bad := range []*models.SearchRequest{nil, {Query: "   "}} {
		if err := ProcessQuery(bad); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("ProcessQuery(%v) = %v, want ErrInvalidQuery", bad, err)
		}
	}
}
