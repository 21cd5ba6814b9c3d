package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmem/mcp-graphmem-go/internal/apptype"
	"github.com/graphmem/mcp-graphmem-go/internal/embeddings"
)

func TestMigrationBackfillsUnindexed(t *testing.T) {
	// Writes land without a provider, so nothing gets indexed.
	f := setupGraph(t, nil)
	ctx := context.Background()

	_, err := f.engine.CreateEntities(ctx, []apptype.EntityInput{
		{Name: "Ann", Labels: []string{"Person"}, Observations: []string{"works at Acme"}},
		{Name: "Bob", Labels: []string{"Person"}, Observations: []string{"works at Globex"}},
		{Name: "Acme", Labels: []string{"Company"}},
	})
	require.NoError(t, err)

	n, err := f.store.CountUnindexed(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	// A provider comes online; the worker drains the backlog.
	idx := NewIndexer(f.store, embeddings.NewHashProvider(testDims))
	worker := NewMigrationWorker(f.store, idx)

	migrated, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, migrated)

	n, err = f.store.CountUnindexed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	entities, err := f.store.ListEntities(ctx)
	require.NoError(t, err)
	for _, e := range entities {
		assert.True(t, e.FullyIndexed(), "entity %s", e.Name)
	}

	// Vector search works once the backlog is gone.
	router := NewRouter(f.store, idx)
	g, err := router.VectorSearch(ctx, "works at Acme", "content", 10, 0.3)
	require.NoError(t, err)
	assert.NotEmpty(t, g.Entities)
}

func TestMigrateUnindexedRespectsBatchSize(t *testing.T) {
	f := setupGraph(t, nil)
	ctx := context.Background()

	_, err := f.engine.CreateEntities(ctx, []apptype.EntityInput{
		{Name: "a", Labels: []string{"T"}},
		{Name: "b", Labels: []string{"T"}},
		{Name: "c", Labels: []string{"T"}},
	})
	require.NoError(t, err)

	idx := NewIndexer(f.store, embeddings.NewHashProvider(testDims))

	migrated, err := idx.MigrateUnindexed(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, migrated)

	n, err := f.store.CountUnindexed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	migrated, err = idx.MigrateUnindexed(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, migrated)
}

func TestMigrationSkipsFailingEntities(t *testing.T) {
	f := setupGraph(t, nil)
	ctx := context.Background()

	_, err := f.engine.CreateEntities(ctx, []apptype.EntityInput{
		{Name: "Ann", Labels: []string{"Person"}},
	})
	require.NoError(t, err)

	idx := NewIndexer(f.store, &failingProvider{dims: testDims})
	migrated, err := idx.MigrateUnindexed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, migrated)

	// The backlog survives for a later, healthier run.
	n, err := f.store.CountUnindexed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMigrationWithoutProviderIsNoop(t *testing.T) {
	f := setupGraph(t, nil)
	ctx := context.Background()

	_, err := f.engine.CreateEntities(ctx, []apptype.EntityInput{
		{Name: "Ann", Labels: []string{"Person"}},
	})
	require.NoError(t, err)

	migrated, err := f.indexer.MigrateUnindexed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, migrated)

	worker := NewMigrationWorker(f.store, f.indexer)
	migrated, err = worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, migrated)
}

func TestRenderViews(t *testing.T) {
	e := apptype.Entity{
		Name:         "Ann",
		Labels:       apptype.NewLabelSet("Person"),
		Observations: []string{"works at Acme", "lives in Berlin"},
	}
	views := RenderViews(e)
	assert.Equal(t, "Ann is a Memory, Person. works at Acme lives in Berlin", views[apptype.KindContent])
	assert.Equal(t, "works at Acme lives in Berlin", views[apptype.KindObservations])
	assert.Equal(t, "Ann (Memory, Person)", views[apptype.KindIdentity])

	// No observations: the observation view falls back to the name so
	// the entity still embeds to something meaningful.
	bare := apptype.Entity{Name: "Acme", Labels: apptype.NewLabelSet("Company")}
	views = RenderViews(bare)
	assert.Equal(t, "Acme", views[apptype.KindObservations])
}
