package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmem/mcp-graphmem-go/internal/apptype"
	"github.com/graphmem/mcp-graphmem-go/internal/embeddings"
)

const testDims = 64

func setupTestStore(t *testing.T) *Store {
	config := NewConfig()
	// Unique in-memory database per test; cache=shared keeps it alive
	// across the connections in the pool.
	config.URL = "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	config.EmbeddingDims = testDims

	s, err := New(config)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

// embedViews builds deterministic test embeddings for all three views.
func embedViews(t *testing.T, texts ...string) map[apptype.EmbeddingKind][]float32 {
	t.Helper()
	kinds := apptype.Kinds()
	require.LessOrEqual(t, len(texts), len(kinds))

	inputs := make([]string, len(kinds))
	for i := range kinds {
		if i < len(texts) {
			inputs[i] = texts[i]
		} else {
			inputs[i] = texts[len(texts)-1]
		}
	}
	vecs, err := embeddings.NewHashProvider(testDims).Embed(context.Background(), inputs)
	require.NoError(t, err)

	out := make(map[apptype.EmbeddingKind][]float32, len(kinds))
	for i, k := range kinds {
		out[k] = vecs[i]
	}
	return out
}

func queryVector(t *testing.T, text string) []float32 {
	t.Helper()
	vecs, err := embeddings.NewHashProvider(testDims).Embed(context.Background(), []string{text})
	require.NoError(t, err)
	return vecs[0]
}

func TestUpsertAndGetEntity(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	added, err := s.UpsertEntity(ctx, "Ann", apptype.NewLabelSet("Person"), []string{"works at Acme", "lives in Berlin"})
	require.NoError(t, err)
	assert.Equal(t, []string{"works at Acme", "lives in Berlin"}, added)

	got, err := s.GetEntities(ctx, []string{"Ann"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ann", got[0].Name)
	assert.Equal(t, apptype.LabelSet{"Memory", "Person"}, got[0].Labels)
	assert.Equal(t, []string{"works at Acme", "lives in Berlin"}, got[0].Observations)
	assert.Nil(t, got[0].IndexedAt)
	assert.False(t, got[0].FullyIndexed())
}

func TestUpsertEmptyNameFails(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.UpsertEntity(context.Background(), "", nil, nil)
	assert.True(t, apptype.IsValidation(err))
}

func TestUpsertMergesLabelsAndObservations(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertEntity(ctx, "Ann", apptype.NewLabelSet("Person"), []string{"obs1"})
	require.NoError(t, err)

	added, err := s.UpsertEntity(ctx, "Ann", apptype.NewLabelSet("Employee"), []string{"obs1", "obs2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"obs2"}, added)

	got, err := s.GetEntities(ctx, []string{"Ann"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, apptype.LabelSet{"Memory", "Person", "Employee"}, got[0].Labels)
	assert.Equal(t, []string{"obs1", "obs2"}, got[0].Observations)
}

func TestMutationInvalidatesEmbeddings(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertEntity(ctx, "Ann", apptype.NewLabelSet("Person"), []string{"obs1"})
	require.NoError(t, err)
	require.NoError(t, s.SetEntityEmbeddings(ctx, "Ann", embedViews(t, "Ann is a Person. obs1")))

	got, err := s.GetEntities(ctx, []string{"Ann"})
	require.NoError(t, err)
	require.True(t, got[0].FullyIndexed())
	require.NotNil(t, got[0].IndexedAt)

	// Any write clears every view at once.
	_, err = s.UpsertEntity(ctx, "Ann", nil, []string{"obs2"})
	require.NoError(t, err)

	got, err = s.GetEntities(ctx, []string{"Ann"})
	require.NoError(t, err)
	assert.False(t, got[0].FullyIndexed())
	assert.Empty(t, got[0].Embeddings)
	assert.Nil(t, got[0].IndexedAt)

	n, err := s.CountUnindexed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSetEntityEmbeddingsRequiresAllViews(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertEntity(ctx, "Ann", nil, nil)
	require.NoError(t, err)

	partial := embedViews(t, "Ann")
	delete(partial, apptype.KindIdentity)
	err = s.SetEntityEmbeddings(ctx, "Ann", partial)
	assert.True(t, apptype.IsValidation(err))

	err = s.SetEntityEmbeddings(ctx, "Ghost", embedViews(t, "Ghost"))
	assert.True(t, apptype.IsNotFound(err))
}

func TestSetEntityEmbeddingsRejectsWrongDims(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertEntity(ctx, "Ann", nil, nil)
	require.NoError(t, err)

	bad := map[apptype.EmbeddingKind][]float32{
		apptype.KindContent:      make([]float32, 3),
		apptype.KindObservations: make([]float32, 3),
		apptype.KindIdentity:     make([]float32, 3),
	}
	err = s.SetEntityEmbeddings(ctx, "Ann", bad)
	assert.True(t, apptype.IsValidation(err))
}

func TestGetEntitiesPreservesOrderAndSkipsMissing(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := s.UpsertEntity(ctx, name, nil, nil)
		require.NoError(t, err)
	}

	got, err := s.GetEntities(ctx, []string{"c", "ghost", "a", "c"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Name)
	assert.Equal(t, "a", got[1].Name)
}

func TestDeleteEntitiesCascades(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Ann", "Acme"} {
		_, err := s.UpsertEntity(ctx, name, nil, []string{"about " + name})
		require.NoError(t, err)
	}
	_, err := s.CreateRelation(ctx, apptype.Relation{From: "Ann", To: "Acme", RelationType: "WORKS_AT"}, nil)
	require.NoError(t, err)

	require.NoError(t, s.DeleteEntities(ctx, []string{"Ann", "ghost"}))

	exists, err := s.EntityExists(ctx, "Ann")
	require.NoError(t, err)
	assert.False(t, exists)

	rels, err := s.AllRelations(ctx)
	require.NoError(t, err)
	assert.Empty(t, rels)

	// The surviving endpoint is untouched.
	got, err := s.GetEntities(ctx, []string{"Acme"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"about Acme"}, got[0].Observations)
}

func TestDeleteObservations(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertEntity(ctx, "Ann", nil, []string{"obs1", "obs2"})
	require.NoError(t, err)
	require.NoError(t, s.SetEntityEmbeddings(ctx, "Ann", embedViews(t, "Ann obs1 obs2")))

	changed, err := s.DeleteObservations(ctx, "Ann", []string{"obs1", "missing"})
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := s.GetEntities(ctx, []string{"Ann"})
	require.NoError(t, err)
	assert.Equal(t, []string{"obs2"}, got[0].Observations)
	assert.False(t, got[0].FullyIndexed())

	// Removing nothing leaves the embeddings alone.
	require.NoError(t, s.SetEntityEmbeddings(ctx, "Ann", embedViews(t, "Ann obs2")))
	changed, err = s.DeleteObservations(ctx, "Ann", []string{"missing"})
	require.NoError(t, err)
	assert.False(t, changed)

	got, err = s.GetEntities(ctx, []string{"Ann"})
	require.NoError(t, err)
	assert.True(t, got[0].FullyIndexed())
}

func TestRelationsLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Ann", "Bob", "Acme"} {
		_, err := s.UpsertEntity(ctx, name, nil, nil)
		require.NoError(t, err)
	}

	added, err := s.CreateRelation(ctx, apptype.Relation{From: "Ann", To: "Acme", RelationType: "WORKS_AT"}, nil)
	require.NoError(t, err)
	assert.True(t, added)

	// Duplicate tuple is a no-op.
	added, err = s.CreateRelation(ctx, apptype.Relation{From: "Ann", To: "Acme", RelationType: "WORKS_AT"}, nil)
	require.NoError(t, err)
	assert.False(t, added)

	// Self-referencing edges are valid data.
	added, err = s.CreateRelation(ctx, apptype.Relation{From: "Bob", To: "Bob", RelationType: "KNOWS"}, nil)
	require.NoError(t, err)
	assert.True(t, added)

	rels, err := s.RelationsForEntities(ctx, []string{"Ann", "Acme"})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "WORKS_AT", rels[0].RelationType)

	// Both endpoints must be in the set for the edge to appear.
	rels, err = s.RelationsForEntities(ctx, []string{"Ann"})
	require.NoError(t, err)
	assert.Empty(t, rels)

	require.NoError(t, s.DeleteRelations(ctx, []apptype.Relation{
		{From: "Ann", To: "Acme", RelationType: "WORKS_AT"},
		{From: "nobody", To: "nowhere", RelationType: "NOPE"},
	}))
	all, err := s.AllRelations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Bob", all[0].From)
}

func TestCreateRelationWithContextEmbedding(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Ann", "Acme"} {
		_, err := s.UpsertEntity(ctx, name, nil, nil)
		require.NoError(t, err)
	}

	added, err := s.CreateRelation(ctx,
		apptype.Relation{From: "Ann", To: "Acme", RelationType: "WORKS_AT"},
		queryVector(t, "Ann WORKS_AT Acme"))
	require.NoError(t, err)
	assert.True(t, added)
}

func TestSearchEntities(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertEntity(ctx, "Ann", apptype.NewLabelSet("Person"), []string{"enjoys hiking"})
	require.NoError(t, err)
	_, err = s.UpsertEntity(ctx, "Acme", apptype.NewLabelSet("Company"), []string{"ships anvils"})
	require.NoError(t, err)

	// Name match, case-insensitive.
	got, err := s.SearchEntities(ctx, "ANN")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ann", got[0].Name)
	assert.Equal(t, []string{"enjoys hiking"}, got[0].Observations)

	// Label match.
	got, err = s.SearchEntities(ctx, "company")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Acme", got[0].Name)

	// Observation match.
	got, err = s.SearchEntities(ctx, "anvils")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Acme", got[0].Name)

	got, err = s.SearchEntities(ctx, "zzz")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.SearchEntities(ctx, "")
	assert.True(t, apptype.IsValidation(err))
}

func TestSimilarEntities(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seed := map[string]string{
		"Ann":    "Ann works at Acme in Berlin",
		"Bob":    "Bob works at Acme in Munich",
		"Quartz": "igneous mineral specimen catalog",
	}
	for name, text := range seed {
		_, err := s.UpsertEntity(ctx, name, nil, []string{text})
		require.NoError(t, err)
		require.NoError(t, s.SetEntityEmbeddings(ctx, name, embedViews(t, text)))
	}
	// An unindexed entity is never a candidate.
	_, err := s.UpsertEntity(ctx, "Pending", nil, []string{"Ann works at Acme in Berlin"})
	require.NoError(t, err)

	scored, err := s.SimilarEntities(ctx, apptype.KindContent, queryVector(t, "who works at Acme"), 10, 0.1)
	require.NoError(t, err)
	require.NotEmpty(t, scored)
	for _, sc := range scored {
		assert.NotEqual(t, "Pending", sc.Entity.Name)
		assert.GreaterOrEqual(t, sc.Score, 0.1)
	}
	for i := 1; i < len(scored); i++ {
		assert.GreaterOrEqual(t, scored[i-1].Score, scored[i].Score)
	}
	assert.Contains(t, []string{"Ann", "Bob"}, scored[0].Entity.Name)

	// A strict threshold filters the mineral catalog out.
	scored, err = s.SimilarEntities(ctx, apptype.KindContent, queryVector(t, "Ann works at Acme in Berlin"), 10, 0.9)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, "Ann", scored[0].Entity.Name)

	// Limit truncates.
	scored, err = s.SimilarEntities(ctx, apptype.KindContent, queryVector(t, "works at Acme"), 1, 0.0)
	require.NoError(t, err)
	assert.Len(t, scored, 1)

	_, err = s.SimilarEntities(ctx, "bogus", queryVector(t, "x"), 1, 0)
	assert.True(t, apptype.IsValidation(err))

	_, err = s.SimilarEntities(ctx, apptype.KindContent, []float32{1, 2}, 1, 0)
	assert.True(t, apptype.IsValidation(err))
}

func TestUnindexedEntities(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := s.UpsertEntity(ctx, name, nil, []string{"text for " + name})
		require.NoError(t, err)
	}
	require.NoError(t, s.SetEntityEmbeddings(ctx, "b", embedViews(t, "text for b")))

	pending, err := s.UnindexedEntities(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, e := range pending {
		assert.NotEqual(t, "b", e.Name)
		assert.NotEmpty(t, e.Observations)
	}

	n, err := s.CountUnindexed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestVectorBlobRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertEntity(ctx, "Ann", nil, []string{"obs"})
	require.NoError(t, err)
	want := embedViews(t, "Ann is a Memory. obs")
	require.NoError(t, s.SetEntityEmbeddings(ctx, "Ann", want))

	got, err := s.GetEntities(ctx, []string{"Ann"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	for _, k := range apptype.Kinds() {
		require.Len(t, got[0].Embeddings[k], testDims)
		for i := range want[k] {
			assert.InDelta(t, want[k][i], got[0].Embeddings[k][i], 1e-6)
		}
	}
}
