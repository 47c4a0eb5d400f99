// Package inventory implements tool CRUD on top of the normalizer and the document store.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/toolkeeper/internal/ai"
	"github.com/hyperjump/toolkeeper/internal/auth"
	"github.com/hyperjump/toolkeeper/internal/models"
	"github.com/hyperjump/toolkeeper/internal/normalize"
	"github.com/hyperjump/toolkeeper/internal/query"
	"github.com/hyperjump/toolkeeper/internal/storage"
)

// ErrEmptyText is returned when create-from-text receives blank text.
var ErrEmptyText = errors.New("text cannot be empty")

// Service manages tools, categories and tags.
type Service struct {
	storage      storage.Storage
	normalizer   *normalize.Normalizer
	assistant    *ai.Assistant
	logger       *zap.Logger
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

// NewService creates a Service. assistant may be nil, which disables CreateFromText.
func NewService(
	store storage.Storage,
	normalizer *normalize.Normalizer,
	assistant *ai.Assistant,
	logger *zap.Logger,
	defaultLimit, maxLimit int,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		storage:      store,
		normalizer:   normalizer,
		assistant:    assistant,
		logger:       logger,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		now:          time.Now,
	}
}

// AIEnabled reports whether an assistant is configured.
func (s *Service) AIEnabled() bool {
	return s.assistant != nil
}

// List returns one page of tools matching the listing parameters.
func (s *Service) List(ctx context.Context, params models.ListParams) (*models.ListResponse, error) {
	params.Normalize(s.defaultLimit, s.maxLimit)
	f := query.CompileList(params)

	total, err := s.storage.Count(ctx, storage.CollectionTools, f)
	if err != nil {
		return nil, fmt.Errorf("failed to count tools: %w", err)
	}
	docs, err := s.storage.Find(ctx, storage.CollectionTools, f, storage.FindOptions{Limit: params.Limit, Offset: params.Offset})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	tools := make([]*models.Tool, 0, len(docs))
	for _, doc := range docs {
		tool, err := models.DecodeTool(doc)
		if err != nil {
			s.logger.Warn("Skipping unreadable tool", zap.Any("id", doc[storage.IDField]), zap.Error(err))
			continue
		}
		tools = append(tools, tool)
	}
	return &models.ListResponse{Tools: tools, Total: total, Limit: params.Limit, Offset: params.Offset}, nil
}

// Get returns a tool by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Tool, error) {
	doc, err := s.storage.Get(ctx, storage.CollectionTools, id)
	if err != nil {
		return nil, err
	}
	return models.DecodeTool(doc)
}

// Create normalizes input and stores the resulting tool.
func (s *Service) Create(ctx context.Context, input map[string]any) (*models.Tool, error) {
	tool, err := s.normalizer.Normalize(ctx, input)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	tool.CreatedAt, tool.UpdatedAt = &now, &now

	doc, err := tool.Document()
	if err != nil {
		return nil, err
	}
	id, err := s.storage.InsertOne(ctx, storage.CollectionTools, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to store tool: %w", err)
	}
	tool.ID = id
	s.logger.Info("Created tool", zap.String("id", id), zap.String("name", tool.Name), userField(ctx))
	return tool, nil
}

// Update normalizes input and replaces the tool with the given ID. The original
// creation time is kept.
func (s *Service) Update(ctx context.Context, id string, input map[string]any) (*models.Tool, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tool, err := s.normalizer.Normalize(ctx, input)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	tool.ID = id
	tool.CreatedAt = existing.CreatedAt
	tool.UpdatedAt = &now

	doc, err := tool.Document()
	if err != nil {
		return nil, err
	}
	if err := s.storage.UpdateOne(ctx, storage.CollectionTools, id, doc); err != nil {
		return nil, fmt.Errorf("failed to update tool: %w", err)
	}
	s.logger.Info("Updated tool", zap.String("id", id), userField(ctx))
	return tool, nil
}

// Delete removes a tool by ID.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.storage.DeleteOne(ctx, storage.CollectionTools, id); err != nil {
		return err
	}
	s.logger.Info("Deleted tool", zap.String("id", id), userField(ctx))
	return nil
}

// Categories returns every category.
func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	docs, err := s.storage.Find(ctx, storage.CollectionCategories, nil, storage.FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	out := make([]models.Category, 0, len(docs))
	for _, doc := range docs {
		var c models.Category
		if err := decodeInto(doc, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Tags returns every tag.
func (s *Service) Tags(ctx context.Context) ([]models.Tag, error) {
	docs, err := s.storage.Find(ctx, storage.CollectionTags, nil, storage.FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	out := make([]models.Tag, 0, len(docs))
	for _, doc := range docs {
		var t models.Tag
		if err := decodeInto(doc, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Facets returns the distinct categories, locations and statuses in use.
func (s *Service) Facets(ctx context.Context) (models.Facets, error) {
	return LoadFacets(ctx, s.storage)
}

// CreateFromText asks the assistant to draft a tool from text, then creates it
// exactly as Create would.
func (s *Service) CreateFromText(ctx context.Context, text string) (*models.Tool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if s.assistant == nil {
		return nil, ai.ErrUnavailable
	}
	facets, err := s.Facets(ctx)
	if err != nil {
		return nil, err
	}
	draft, err := s.assistant.DraftTool(ctx, text, facets)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, draft)
}

// LoadFacets reads the facet values concurrently. Categories come from the category
// collection and from the tools themselves, so legacy {name} categories count.
func LoadFacets(ctx context.Context, store storage.Storage) (models.Facets, error) {
	var (
		facets               models.Facets
		known, plain, legacy []string
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		known, err = store.Distinct(ctx, storage.CollectionCategories, "name")
		return err
	})
	g.Go(func() (err error) {
		plain, err = store.Distinct(ctx, storage.CollectionTools, "category")
		return err
	})
	g.Go(func() (err error) {
		legacy, err = store.Distinct(ctx, storage.CollectionTools, "category.name")
		return err
	})
	g.Go(func() (err error) {
		facets.Locations, err = store.Distinct(ctx, storage.CollectionTools, "location")
		return err
	})
	g.Go(func() (err error) {
		facets.Statuses, err = store.Distinct(ctx, storage.CollectionTools, "status")
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Facets{}, fmt.Errorf("failed to load facets: %w", err)
	}
	facets.Categories = mergeSorted(known, mergeSorted(plain, legacy))
	if facets.Locations == nil {
		facets.Locations = []string{}
	}
	if facets.Statuses == nil {
		facets.Statuses = []string{}
	}
	return facets, nil
}

// mergeSorted merges two sorted, duplicate-free lists.
func mergeSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i >= len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

// userField names the authenticated caller, if any, in change logs.
func userField(ctx context.Context) zap.Field {
	if username, ok := auth.UsernameFromContext(ctx); ok {
		return zap.String("user", username)
	}
	return zap.Skip()
}
