// Package normalize turns loosely structured tool descriptions into canonical
// tool records, creating the categories and tags they reference.
package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/toolkeeper/internal/filter"
	"github.com/hyperjump/toolkeeper/internal/models"
	"github.com/hyperjump/toolkeeper/internal/storage"
)

// RequiredFields lists the fields every tool must supply, in reporting order.
var RequiredFields = []string{
	"name", "category", "brand", "model", "purchaseDate",
	"quantity", "location", "specifications", "tags",
}

// specAliases are the accepted names for specifications, highest priority first.
var specAliases = []string{"specifications", "specs", "specification"}

// Normalizer validates tool input and ensures referenced categories and tags exist.
type Normalizer struct {
	storage       storage.Storage
	logger        *zap.Logger
	now           func() time.Time
	defaultStatus string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithClock overrides the time source used for createdAt stamps.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithDefaultStatus sets the status given to tools that do not supply one.
func WithDefaultStatus(status string) Option {
	return func(n *Normalizer) {
		if status = strings.TrimSpace(status); status != "" {
			n.defaultStatus = status
		}
	}
}

// New creates a Normalizer backed by store.
func New(store storage.Storage, opts ...Option) *Normalizer {
	n := &Normalizer{
		storage:       store,
		logger:        zap.NewNop(),
		now:           time.Now,
		defaultStatus: models.DefaultStatus,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize validates input and returns the canonical tool. Input is never modified.
// Categories and tags are created before returning and are not removed if the
// caller later fails to persist the tool.
func (n *Normalizer) Normalize(ctx context.Context, input map[string]any) (*models.Tool, error) {
	fields := ResolveAliases(input)

	if missing := missingFields(fields); len(missing) > 0 {
		return nil, &Error{Kind: MissingFields, Fields: missing}
	}

	tool, invalid := parseFields(fields)
	if len(invalid) > 0 {
		return nil, &Error{Kind: InvalidFields, Fields: invalid}
	}
	if tool.Category == "" {
		return nil, &Error{Kind: InvalidCategory, Fields: []string{"category"}}
	}
	if tool.Status == "" {
		tool.Status = n.defaultStatus
	}

	if err := n.EnsureCategory(ctx, tool.Category); err != nil {
		return nil, err
	}
	if err := n.EnsureTags(ctx, tool.Tags); err != nil {
		return nil, err
	}
	return tool, nil
}

// EnsureCategory creates the named category unless it already exists.
func (n *Normalizer) EnsureCategory(ctx context.Context, name string) error {
	_, err := n.storage.FindOne(ctx, storage.CollectionCategories, filter.Eq("name", name))
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to look up category %q: %w", name, err)
	}
	_, err = n.storage.InsertOne(ctx, storage.CollectionCategories, storage.Document{
		"name":      name,
		"createdAt": n.now().UTC(),
	})
	if err != nil {
		if storage.IsDuplicateOnly(err) {
			n.logger.Debug("Category created concurrently", zap.String("category", name))
			return nil
		}
		return fmt.Errorf("failed to create category %q: %w", name, err)
	}
	n.logger.Info("Created category", zap.String("category", name))
	return nil
}

// EnsureTags creates every tag in names that does not exist yet. Names may repeat.
func (n *Normalizer) EnsureTags(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	existing, err := n.storage.Find(ctx, storage.CollectionTags, filter.In{Field: "name", Values: names}, storage.FindOptions{})
	if err != nil {
		return &Error{Kind: TagCreationFailed, Err: fmt.Errorf("failed to look up tags: %w", err)}
	}
	known := make(map[string]struct{}, len(existing))
	for _, doc := range existing {
		if name, ok := doc["name"].(string); ok {
			known[name] = struct{}{}
		}
	}

	now := n.now().UTC()
	var docs []storage.Document
	for _, name := range names {
		if _, ok := known[name]; ok {
			continue
		}
		known[name] = struct{}{}
		docs = append(docs, storage.Document{"name": name, "createdAt": now})
	}
	if len(docs) == 0 {
		return nil
	}

	created, err := n.storage.InsertMany(ctx, storage.CollectionTags, docs)
	if err != nil && !storage.IsDuplicateOnly(err) {
		return &Error{Kind: TagCreationFailed, Err: err}
	}
	if err != nil {
		n.logger.Debug("Some tags were created concurrently", zap.Error(err))
	}
	if len(created) > 0 {
		n.logger.Info("Created tags", zap.Int("count", len(created)))
	}
	return nil
}

// ResolveAliases returns a copy of input in which the first present specification
// alias is stored under "specifications" and the others are removed. The legacy
// "rack" field fills "location" when location is absent.
func ResolveAliases(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = v
	}
	var specs any
	for _, alias := range specAliases {
		if v, ok := out[alias]; ok && !isAbsent(v) && specs == nil {
			specs = v
		}
		delete(out, alias)
	}
	if specs != nil {
		out["specifications"] = specs
	}
	if rack, ok := out["rack"]; ok {
		if isAbsent(out["location"]) {
			out["location"] = rack
		}
		delete(out, "rack")
	}
	return out
}

func missingFields(fields map[string]any) []string {
	var missing []string
	for _, name := range RequiredFields {
		v := fields[name]
		if name == "tags" {
			if len(tagNames(v)) == 0 && !isMalformedTags(v) {
				missing = append(missing, name)
			}
			continue
		}
		if isAbsent(v) {
			missing = append(missing, name)
		}
	}
	return missing
}

// isAbsent treats nil, empty strings and empty arrays as absent. Whitespace-only
// strings are present and rejected later by field-specific checks.
func isAbsent(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case []map[string]any:
		return len(x) == 0
	default:
		return false
	}
}

// parseFields converts every field to its canonical type and reports the fields
// that could not be converted.
func parseFields(fields map[string]any) (*models.Tool, []string) {
	var invalid []string
	text := func(name string) string {
		s, ok := scalarText(fields[name])
		s = strings.TrimSpace(s)
		if !ok || s == "" {
			invalid = append(invalid, name)
		}
		return s
	}

	tool := &models.Tool{
		Name:     text("name"),
		Category: categoryName(fields["category"]),
		Brand:    text("brand"),
		Model:    text("model"),
		Location: text("location"),
	}

	if date, ok := scalarText(fields["purchaseDate"]); !ok {
		invalid = append(invalid, "purchaseDate")
	} else if parsed, err := models.ParseDate(date); err != nil {
		invalid = append(invalid, "purchaseDate")
	} else {
		tool.PurchaseDate = parsed
	}

	if q, ok := quantity(fields["quantity"]); ok {
		tool.Quantity = q
	} else {
		invalid = append(invalid, "quantity")
	}

	if specs, ok := specifications(fields["specifications"]); ok {
		tool.Specifications = specs
	} else {
		invalid = append(invalid, "specifications")
	}

	if isMalformedTags(fields["tags"]) {
		invalid = append(invalid, "tags")
	}
	tool.Tags = tagNames(fields["tags"])

	if status, ok := fields["status"]; ok && status != nil {
		s, ok := scalarText(status)
		if !ok {
			invalid = append(invalid, "status")
		}
		tool.Status = strings.TrimSpace(s)
	}

	tool.Maintenance = []string{}
	if m, ok := fields["maintenance"]; ok && m != nil {
		steps, ok := stringItems(m)
		if !ok {
			invalid = append(invalid, "maintenance")
		}
		tool.Maintenance = steps
	}

	if d, ok := fields["description"]; ok && d != nil {
		s, ok := scalarText(d)
		if !ok {
			invalid = append(invalid, "description")
		}
		tool.Description = s
	}

	return tool, invalid
}

// scalarText renders strings and numbers as text.
func scalarText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	default:
		return "", false
	}
}

// categoryName accepts a name or a legacy {name} object.
func categoryName(v any) string {
	if m, ok := v.(map[string]any); ok {
		v = m["name"]
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func quantity(v any) (float64, bool) {
	var q float64
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		q = f
	case float64:
		q = x
	case int:
		q = float64(x)
	case int64:
		q = float64(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		q = f
	default:
		return 0, false
	}
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0, false
	}
	return q, q >= 0
}

// specifications keeps entries as given; each must be an object.
func specifications(v any) ([]models.Specification, bool) {
	var items []any
	switch x := v.(type) {
	case []any:
		items = x
	case []map[string]any:
		for _, m := range x {
			items = append(items, m)
		}
	case []models.Specification:
		return x, true
	default:
		return nil, false
	}
	specs := make([]models.Specification, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		name, _ := scalarText(m["name"])
		unit, _ := scalarText(m["unit"])
		specs = append(specs, models.Specification{Name: name, Value: m["value"], Unit: unit})
	}
	return specs, true
}

// tagNames returns the trimmed, non-empty tag names of v, which may be an array of
// names, an array of {name} objects, or a comma-separated string.
func tagNames(v any) []string {
	var raw []any
	switch x := v.(type) {
	case string:
		for _, part := range strings.Split(x, ",") {
			raw = append(raw, part)
		}
	case []string:
		for _, s := range x {
			raw = append(raw, s)
		}
	case []any:
		raw = x
	}
	names := make([]string, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			item = m["name"]
		}
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			names = append(names, s)
		}
	}
	return names
}

// isMalformedTags reports whether v holds something other than names.
func isMalformedTags(v any) bool {
	switch x := v.(type) {
	case nil, string, []string:
		return false
	case []any:
		for _, item := range x {
			if m, ok := item.(map[string]any); ok {
				item = m["name"]
			}
			if _, ok := item.(string); !ok {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func stringItems(v any) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case string:
		if strings.TrimSpace(x) == "" {
			return []string{}, true
		}
		return []string{x}, true
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return out, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return []string{}, false
	}
}
