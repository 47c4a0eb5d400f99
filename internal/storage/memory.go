package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hyperjump/toolkeeper/internal/filter"
)

// MemoryStorage implements Storage in process memory. It evaluates filters with
// filter.Matches and enforces the same unique keys as SQLiteStorage.
type MemoryStorage struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	order []string
	docs  map[string]Document
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	m := &MemoryStorage{collections: make(map[string]*memoryCollection)}
	for name := range uniqueFields {
		m.collections[name] = &memoryCollection{docs: make(map[string]Document)}
	}
	return m
}

func (m *MemoryStorage) collection(name string) (*memoryCollection, error) {
	if err := checkCollection(name); err != nil {
		return nil, err
	}
	return m.collections[name], nil
}

// Find returns documents matching f in insertion order.
func (m *MemoryStorage) Find(ctx context.Context, collection string, f filter.Expr, opts FindOptions) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.collection(collection)
	if err != nil {
		return nil, err
	}
	var out []Document
	skipped := 0
	for _, id := range c.order {
		doc := c.docs[id]
		if !filter.Matches(f, doc) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, copyDocument(doc))
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

// FindOne returns the first document matching f.
func (m *MemoryStorage) FindOne(ctx context.Context, collection string, f filter.Expr) (Document, error) {
	docs, err := m.Find(ctx, collection, f, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// Get returns a document by ID.
func (m *MemoryStorage) Get(ctx context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.collection(collection)
	if err != nil {
		return nil, err
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return copyDocument(doc), nil
}

// InsertOne stores a document.
func (m *MemoryStorage) InsertOne(ctx context.Context, collection string, doc Document) (string, error) {
	normalized, err := normalizeDocument(doc)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.collection(collection)
	if err != nil {
		return "", err
	}
	id, _ := normalized[IDField].(string)
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := c.docs[id]; exists {
		return "", fmt.Errorf("%w: %s/%s", ErrDuplicateKey, collection, id)
	}
	if err := c.checkUnique(collection, "", normalized); err != nil {
		return "", err
	}
	normalized[IDField] = id
	c.docs[id] = normalized
	c.order = append(c.order, id)
	return id, nil
}

// InsertMany stores every document it can.
func (m *MemoryStorage) InsertMany(ctx context.Context, collection string, docs []Document) ([]string, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	return insertEach(ctx, m, collection, docs)
}

// UpdateOne replaces an existing document.
func (m *MemoryStorage) UpdateOne(ctx context.Context, collection, id string, doc Document) error {
	normalized, err := normalizeDocument(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	if _, ok := c.docs[id]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err := c.checkUnique(collection, id, normalized); err != nil {
		return err
	}
	normalized[IDField] = id
	c.docs[id] = normalized
	return nil
}

// DeleteOne removes a document by ID.
func (m *MemoryStorage) DeleteOne(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	if _, ok := c.docs[id]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Distinct returns the sorted distinct non-empty string values of field.
func (m *MemoryStorage) Distinct(ctx context.Context, collection, field string) ([]string, error) {
	if _, err := filter.SplitField(field); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.collection(collection)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var values []string
	for _, id := range c.order {
		for _, v := range filter.ResolveText(c.docs[id], field) {
			if _, dup := seen[v]; dup || v == "" {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
	}
	sort.Strings(values)
	return values, nil
}

// Count returns the number of documents matching f.
func (m *MemoryStorage) Count(ctx context.Context, collection string, f filter.Expr) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.collection(collection)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, id := range c.order {
		if filter.Matches(f, c.docs[id]) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (m *MemoryStorage) Close() error {
	return nil
}

// checkUnique rejects doc when another document (other than selfID) holds the same unique key.
func (c *memoryCollection) checkUnique(collection, selfID string, doc Document) error {
	field := uniqueFields[collection]
	if field == "" {
		return nil
	}
	key, ok := doc[field].(string)
	if !ok {
		return nil
	}
	for id, existing := range c.docs {
		if id == selfID {
			continue
		}
		if other, ok := existing[field].(string); ok && other == key {
			return fmt.Errorf("%w: %s.%s=%v", ErrDuplicateKey, collection, field, key)
		}
	}
	return nil
}

// normalizeDocument round-trips doc through JSON so stored values have the same
// shapes SQLiteStorage returns (json.Number, []any, map[string]any).
func normalizeDocument(doc Document) (Document, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	out := make(Document)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return out, nil
}

func copyDocument(doc Document) Document {
	out, err := normalizeDocument(doc)
	if err != nil {
		return doc
	}
	return out
}
