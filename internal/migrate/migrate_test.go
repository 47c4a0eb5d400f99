package migrate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/toolkeeper/internal/filter"
	"github.com/hyperjump/toolkeeper/internal/models"
	"github.com/hyperjump/toolkeeper/internal/normalize"
	"github.com/hyperjump/toolkeeper/internal/storage"
)

func seed(t *testing.T, store storage.Storage) (legacy, canonical, broken string) {
	t.Helper()
	ctx := context.Background()
	var err error
	legacy, err = store.InsertOne(ctx, storage.CollectionTools, storage.Document{
		"name":         "Old Saw",
		"category":     map[string]any{"name": "Antique"},
		"tags":         []any{map[string]any{"_id": "t1", "name": "hand"}, map[string]any{"name": " "}},
		"specs":        []any{map[string]any{"name": "Length", "value": 50, "unit": "cm"}},
		"rack":         "R2",
		"quantity":     "2",
		"purchaseDate": "2020-05-01T00:00:00Z",
	})
	require.NoError(t, err)

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tool := &models.Tool{
		Name: "Drill", Category: "Power", Brand: "Makita", Model: "DF333D", Quantity: 1,
		Location: "A1", Status: "available", PurchaseDate: "2023-04-12",
		Specifications: []models.Specification{{Name: "Voltage", Value: 12, Unit: "V"}},
		Tags:           []string{"cordless"}, Maintenance: []string{}, CreatedAt: &created,
	}
	doc, err := tool.Document()
	require.NoError(t, err)
	canonical, err = store.InsertOne(ctx, storage.CollectionTools, doc)
	require.NoError(t, err)

	broken, err = store.InsertOne(ctx, storage.CollectionTools, storage.Document{"name": "Broken", "quantity": "lots"})
	require.NoError(t, err)
	return legacy, canonical, broken
}

func TestMigrator_Run(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	legacy, _, broken := seed(t, store)
	m := New(store, normalize.New(store), nil, "")

	report, err := m.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, []string{legacy}, report.Updated)
	assert.Equal(t, []string{broken}, report.Failed)

	doc, err := store.Get(ctx, storage.CollectionTools, legacy)
	require.NoError(t, err)
	assert.Equal(t, "Antique", doc["category"])
	assert.Equal(t, "R2", doc["location"])
	assert.Equal(t, "2020-05-01", doc["purchaseDate"])
	assert.Equal(t, "available", doc["status"])
	assert.NotContains(t, doc, "specs")
	assert.NotContains(t, doc, "rack")
	assert.Len(t, doc["specifications"], 1)
	assert.Equal(t, []any{"hand"}, doc["tags"])

	for _, c := range []struct{ collection, name string }{
		{storage.CollectionCategories, "Antique"},
		{storage.CollectionCategories, "Power"},
		{storage.CollectionTags, "hand"},
		{storage.CollectionTags, "cordless"},
	} {
		_, err := store.FindOne(ctx, c.collection, filter.Eq("name", c.name))
		assert.NoError(t, err, "%s %s", c.collection, c.name)
	}

	again, err := m.Run(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, again.Updated, "second run is a no-op")
}

func TestMigrator_DryRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	legacy, _, _ := seed(t, store)

	report, err := New(store, normalize.New(store), nil, "in stock").Run(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{legacy}, report.Updated)

	doc, err := store.Get(ctx, storage.CollectionTools, legacy)
	require.NoError(t, err)
	assert.Contains(t, doc, "rack", "dry run writes nothing")
	n, err := store.Count(ctx, storage.CollectionCategories, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
