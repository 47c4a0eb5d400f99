// Package migrate rewrites stored tools into the canonical record shape.
package migrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/toolkeeper/internal/models"
	"github.com/hyperjump/toolkeeper/internal/normalize"
	"github.com/hyperjump/toolkeeper/internal/storage"
)

// Report summarizes a migration run.
type Report struct {
	Scanned int      `json:"scanned"`
	Updated []string `json:"updated"`
	Failed  []string `json:"failed"`
}

// Migrator converts legacy tool documents: object categories and tag
// sub-documents become names, specification aliases and "rack" are renamed, and
// dates are rewritten in the canonical layout. Referenced categories and tags are
// created when missing.
type Migrator struct {
	storage       storage.Storage
	normalizer    *normalize.Normalizer
	logger        *zap.Logger
	defaultStatus string
}

// New creates a Migrator.
func New(store storage.Storage, normalizer *normalize.Normalizer, logger *zap.Logger, defaultStatus string) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultStatus == "" {
		defaultStatus = models.DefaultStatus
	}
	return &Migrator{storage: store, normalizer: normalizer, logger: logger, defaultStatus: defaultStatus}
}

// Run migrates every tool. With dryRun set nothing is written and the report
// lists the tools that would change. Running it twice changes nothing the second
// time.
func (m *Migrator) Run(ctx context.Context, dryRun bool) (*Report, error) {
	docs, err := m.storage.Find(ctx, storage.CollectionTools, nil, storage.FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to load tools: %w", err)
	}
	report := &Report{Updated: []string{}, Failed: []string{}}
	for _, doc := range docs {
		report.Scanned++
		id, _ := doc[storage.IDField].(string)

		tool, err := models.DecodeTool(doc)
		if err != nil {
			m.logger.Warn("Unreadable tool", zap.String("id", id), zap.Error(err))
			report.Failed = append(report.Failed, id)
			continue
		}
		m.canonicalize(tool)
		canonical, err := tool.Document()
		if err != nil {
			return report, err
		}

		changed, err := differs(doc, canonical)
		if err != nil {
			return report, err
		}
		if dryRun {
			if changed {
				report.Updated = append(report.Updated, id)
			}
			continue
		}
		if tool.Category != "" {
			if err := m.normalizer.EnsureCategory(ctx, tool.Category); err != nil {
				return report, err
			}
		}
		if err := m.normalizer.EnsureTags(ctx, tool.Tags); err != nil {
			return report, err
		}
		if !changed {
			continue
		}
		if err := m.storage.UpdateOne(ctx, storage.CollectionTools, id, canonical); err != nil {
			return report, fmt.Errorf("failed to update tool %s: %w", id, err)
		}
		m.logger.Info("Migrated tool", zap.String("id", id), zap.String("name", tool.Name))
		report.Updated = append(report.Updated, id)
	}
	return report, nil
}

func (m *Migrator) canonicalize(tool *models.Tool) {
	tool.Category = strings.TrimSpace(tool.Category)
	if tool.Status == "" {
		tool.Status = m.defaultStatus
	}
	if date, err := models.ParseDate(tool.PurchaseDate); err == nil {
		tool.PurchaseDate = date
	}
	tags := make([]string, 0, len(tool.Tags))
	for _, tag := range tool.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	tool.Tags = tags
	if tool.Specifications == nil {
		tool.Specifications = []models.Specification{}
	}
	if tool.Maintenance == nil {
		tool.Maintenance = []string{}
	}
}

// differs compares two documents by their JSON encoding, which sorts keys.
func differs(a, b storage.Document) (bool, error) {
	left, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(left, right), nil
}
