// Package storage defines the document store used for tools, categories, tags, and users.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/toolkeeper/internal/filter"
)

// Collection names.
const (
	CollectionTools      = "tools"
	CollectionCategories = "categories"
	CollectionTags       = "tags"
	CollectionUsers      = "users"
)

// IDField is the document key holding the document ID.
const IDField = "_id"

// uniqueFields maps each known collection to its unique key ("" for none).
var uniqueFields = map[string]string{
	CollectionTools:      "",
	CollectionCategories: "name",
	CollectionTags:       "name",
	CollectionUsers:      "username",
}

var (
	// ErrNotFound is returned when no document matches.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicateKey is returned when a write violates a collection's unique key.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrUnknownCollection is returned for collection names the store does not manage.
	ErrUnknownCollection = errors.New("unknown collection")
)

// Document is a schemaless record. IDField carries its ID on reads.
type Document = map[string]any

// FindOptions bounds a Find. Documents are returned in insertion order.
type FindOptions struct {
	Limit  int
	Offset int
}

// Storage defines document persistence operations.
type Storage interface {
	// Find returns documents matching f; a nil or empty f matches everything.
	Find(ctx context.Context, collection string, f filter.Expr, opts FindOptions) ([]Document, error)
	// FindOne returns the first document matching f or ErrNotFound.
	FindOne(ctx context.Context, collection string, f filter.Expr) (Document, error)
	// Get returns the document with the given ID or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)
	// InsertOne stores doc and returns its ID. A doc without IDField gets a new one.
	InsertOne(ctx context.Context, collection string, doc Document) (string, error)
	// InsertMany stores every doc it can; failures are reported in a *BulkInsertError
	// alongside the IDs of the documents that were stored.
	InsertMany(ctx context.Context, collection string, docs []Document) ([]string, error)
	// UpdateOne replaces the document with the given ID.
	UpdateOne(ctx context.Context, collection, id string, doc Document) error
	// DeleteOne removes the document with the given ID.
	DeleteOne(ctx context.Context, collection, id string) error
	// Distinct returns the distinct non-empty string values of field, sorted.
	Distinct(ctx context.Context, collection, field string) ([]string, error)
	// Count returns the number of documents matching f.
	Count(ctx context.Context, collection string, f filter.Expr) (int64, error)

	Close() error
}

// BulkFailure is one rejected document of an InsertMany.
type BulkFailure struct {
	Index int
	Err   error
}

// BulkInsertError reports the documents an InsertMany could not store.
type BulkInsertError struct {
	Failures []BulkFailure
}

func (e *BulkInsertError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, fmt.Sprintf("#%d: %v", f.Index, f.Err))
	}
	return fmt.Sprintf("bulk insert: %d failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *BulkInsertError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// OnlyDuplicates reports whether every failure is a unique-key conflict.
func (e *BulkInsertError) OnlyDuplicates() bool {
	for _, f := range e.Failures {
		if !errors.Is(f.Err, ErrDuplicateKey) {
			return false
		}
	}
	return true
}

// IsDuplicateOnly reports whether err is a duplicate-key conflict, or a bulk insert
// error made only of such conflicts.
func IsDuplicateOnly(err error) bool {
	var bulk *BulkInsertError
	if errors.As(err, &bulk) {
		return bulk.OnlyDuplicates()
	}
	return errors.Is(err, ErrDuplicateKey)
}

func checkCollection(collection string) error {
	if _, ok := uniqueFields[collection]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return nil
}

// insertEach is the best-effort InsertMany shared by the implementations.
func insertEach(ctx context.Context, s Storage, collection string, docs []Document) ([]string, error) {
	ids := make([]string, 0, len(docs))
	var bulk BulkInsertError
	for i, doc := range docs {
		id, err := s.InsertOne(ctx, collection, doc)
		if err != nil {
			bulk.Failures = append(bulk.Failures, BulkFailure{Index: i, Err: err})
			continue
		}
		ids = append(ids, id)
	}
	if len(bulk.Failures) > 0 {
		return ids, &bulk
	}
	return ids, nil
}
