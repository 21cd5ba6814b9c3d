package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmem/mcp-graphmem-go/internal/apptype"
)

func seedPeople(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	_, err := f.engine.CreateEntities(ctx, []apptype.EntityInput{
		{Name: "Ann", Labels: []string{"Person"}, Observations: []string{"works at Acme as an engineer"}},
		{Name: "Bob", Labels: []string{"Person"}, Observations: []string{"works at Acme as a designer"}},
		{Name: "Quartz", Labels: []string{"Mineral"}, Observations: []string{"igneous specimen from the catalog"}},
	})
	require.NoError(t, err)
	_, err = f.engine.CreateRelations(ctx, []apptype.Relation{
		{From: "Ann", To: "Bob", RelationType: "KNOWS"},
	})
	require.NoError(t, err)
}

func TestReadGraph(t *testing.T) {
	f := setupGraphWithHash(t)
	seedPeople(t, f)

	g, err := f.router.ReadGraph(context.Background())
	require.NoError(t, err)
	assert.Len(t, g.Entities, 3)
	assert.Len(t, g.Relations, 1)
}

func TestFindNodesSubgraph(t *testing.T) {
	f := setupGraphWithHash(t)
	seedPeople(t, f)
	ctx := context.Background()

	g, err := f.router.FindNodes(ctx, []string{"Ann", "Bob", "Ghost"})
	require.NoError(t, err)
	assert.Len(t, g.Entities, 2)
	require.Len(t, g.Relations, 1)
	assert.Equal(t, "KNOWS", g.Relations[0].RelationType)

	// A relation needs both endpoints in the result to appear.
	g, err = f.router.FindNodes(ctx, []string{"Ann"})
	require.NoError(t, err)
	assert.Len(t, g.Entities, 1)
	assert.Empty(t, g.Relations)
}

func TestSearchNodes(t *testing.T) {
	f := setupGraphWithHash(t)
	seedPeople(t, f)
	ctx := context.Background()

	g, err := f.router.SearchNodes(ctx, "ACME")
	require.NoError(t, err)
	assert.Len(t, g.Entities, 2)
	assert.Len(t, g.Relations, 1)

	_, err = f.router.SearchNodes(ctx, "")
	assert.True(t, apptype.IsValidation(err))
}

func TestVectorSearchRanksBySimilarity(t *testing.T) {
	f := setupGraphWithHash(t)
	seedPeople(t, f)
	ctx := context.Background()

	g, err := f.router.VectorSearch(ctx, "who works at Acme as an engineer", "content", 10, 0.3)
	require.NoError(t, err)
	require.NotEmpty(t, g.Entities)
	assert.Equal(t, "Ann", g.Entities[0].Name)
	for _, e := range g.Entities {
		assert.NotEqual(t, "Quartz", e.Name)
	}
}

func TestVectorSearchModes(t *testing.T) {
	f := setupGraphWithHash(t)
	seedPeople(t, f)
	ctx := context.Background()

	// The identity view carries name and labels only.
	g, err := f.router.VectorSearch(ctx, "Quartz (Mineral)", "identity", 10, 0.5)
	require.NoError(t, err)
	require.NotEmpty(t, g.Entities)
	assert.Equal(t, "Quartz", g.Entities[0].Name)

	_, err = f.router.VectorSearch(ctx, "anything", "bogus", 10, 0)
	assert.True(t, apptype.IsValidation(err))

	_, err = f.router.VectorSearch(ctx, "", "content", 10, 0)
	assert.True(t, apptype.IsValidation(err))
}

func TestVectorSearchFallsBackWithoutProvider(t *testing.T) {
	f := setupGraph(t, nil)
	ctx := context.Background()

	_, err := f.engine.CreateEntities(ctx, []apptype.EntityInput{
		{Name: "Ann", Labels: []string{"Person"}, Observations: []string{"enjoys hiking"}},
	})
	require.NoError(t, err)

	// Degrades to the substring search, never an error.
	g, err := f.router.VectorSearch(ctx, "hiking", "content", 10, 0)
	require.NoError(t, err)
	require.Len(t, g.Entities, 1)
	assert.Equal(t, "Ann", g.Entities[0].Name)
}

func TestVectorSearchFallsBackOnProviderFailure(t *testing.T) {
	f := setupGraph(t, &failingProvider{dims: testDims})
	ctx := context.Background()

	_, err := f.engine.CreateEntities(ctx, []apptype.EntityInput{
		{Name: "Ann", Labels: []string{"Person"}, Observations: []string{"enjoys hiking"}},
	})
	require.NoError(t, err)

	g, err := f.router.VectorSearch(ctx, "hiking", "content", 10, 0)
	require.NoError(t, err)
	require.Len(t, g.Entities, 1)
	assert.Equal(t, "Ann", g.Entities[0].Name)
}

func TestVectorSearchObservationsFollowsMutations(t *testing.T) {
	f := setupGraphWithHash(t)
	ctx := context.Background()

	_, err := f.engine.CreateEntities(ctx, []apptype.EntityInput{
		{Name: "Ann", Labels: []string{"Person"}},
	})
	require.NoError(t, err)

	_, err = f.engine.AddObservations(ctx, []apptype.ObservationAddition{
		{EntityName: "Ann", Contents: []string{"likes coffee in the morning"}},
	})
	require.NoError(t, err)

	g, err := f.router.VectorSearch(ctx, "likes coffee", "observations", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, g.Entities, 1)
	assert.Equal(t, "Ann", g.Entities[0].Name)

	// Removing the fact re-embeds the entity; the view no longer matches.
	err = f.engine.DeleteObservations(ctx, []apptype.ObservationDeletion{
		{EntityName: "Ann", Observations: []string{"likes coffee in the morning"}},
	})
	require.NoError(t, err)

	g, err = f.router.VectorSearch(ctx, "likes coffee", "observations", 10, 0.5)
	require.NoError(t, err)
	assert.Empty(t, g.Entities)
}

func TestSmartSearchExactLookupFirst(t *testing.T) {
	f := setupGraphWithHash(t)
	seedPeople(t, f)
	ctx := context.Background()

	g, err := f.router.SmartSearch(ctx, "Ann")
	require.NoError(t, err)
	require.Len(t, g.Entities, 1)
	assert.Equal(t, "Ann", g.Entities[0].Name)
}

func TestSmartSearchQuestionRoutesToVector(t *testing.T) {
	t.Setenv("SIMILARITY_THRESHOLD", "0.3")
	f := setupGraphWithHash(t)
	seedPeople(t, f)
	ctx := context.Background()

	g, err := f.router.SmartSearch(ctx, "who works at Acme as an engineer")
	require.NoError(t, err)
	require.NotEmpty(t, g.Entities)
	assert.Equal(t, "Ann", g.Entities[0].Name)
}

func TestSmartSearchFallsBackToText(t *testing.T) {
	f := setupGraphWithHash(t)
	ctx := context.Background()

	_, err := f.engine.CreateEntities(ctx, []apptype.EntityInput{
		{Name: "Ann", Labels: []string{"Person"}, Observations: []string{"enjoys hiking in the northern alps every summer"}},
	})
	require.NoError(t, err)

	// One matching token scores far below the 0.7 threshold, so the
	// vector pass comes back empty and the substring search takes over.
	g, err := f.router.SmartSearch(ctx, "hiking")
	require.NoError(t, err)
	require.Len(t, g.Entities, 1)
	assert.Equal(t, "Ann", g.Entities[0].Name)

	_, err = f.router.SmartSearch(ctx, "")
	assert.True(t, apptype.IsValidation(err))
}
