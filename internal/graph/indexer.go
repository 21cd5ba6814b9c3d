package graph

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/graphmem/mcp-graphmem-go/internal/apptype"
	"github.com/graphmem/mcp-graphmem-go/internal/embeddings"
	"github.com/graphmem/mcp-graphmem-go/internal/store"
)

// Indexer maintains the three embedding views of every entity. Views
// are recomputed together: an entity is either fully indexed or not
// indexed at all.
type Indexer struct {
	store     *store.Store
	provider  embeddings.Provider
	batchSize int
}

// NewIndexer wires an indexer to its store and provider. provider may
// be nil, in which case every entity stays unindexed until a provider
// is configured and the migration worker catches up.
func NewIndexer(s *store.Store, provider embeddings.Provider) *Indexer {
	if provider != nil && provider.Dimensions() != s.Config().EmbeddingDims {
		provider = embeddings.WrapToDims(provider, s.Config().EmbeddingDims)
	}
	return &Indexer{
		store:     s,
		provider:  provider,
		batchSize: batchSizeFromEnv(),
	}
}

func batchSizeFromEnv() int {
	if v := strings.TrimSpace(os.Getenv("EMBEDDINGS_BATCH_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 16
}

// HasProvider reports whether an embedding provider is configured.
func (ix *Indexer) HasProvider() bool { return ix.provider != nil }

// ProviderName returns the configured provider's name, or "none".
func (ix *Indexer) ProviderName() string {
	if ix.provider == nil {
		return "none"
	}
	return ix.provider.Name()
}

// RenderViews produces the three texts embedded per entity.
//
//	content:      "{name} is a {labels}. {observations}"
//	observations: the observations joined, or the name when there are none
//	identity:     "{name} ({labels})"
func RenderViews(e apptype.Entity) map[apptype.EmbeddingKind]string {
	labels := strings.Join(e.Labels, ", ")
	obs := strings.Join(e.Observations, " ")

	observationsText := obs
	if observationsText == "" {
		observationsText = e.Name
	}

	return map[apptype.EmbeddingKind]string{
		apptype.KindContent:      fmt.Sprintf("%s is a %s. %s", e.Name, labels, obs),
		apptype.KindObservations: observationsText,
		apptype.KindIdentity:     fmt.Sprintf("%s (%s)", e.Name, labels),
	}
}

// Reindex recomputes all three views for one entity and stores them
// atomically. Returns ProviderTimeoutError (wrapped) when the provider
// ran out of time; the entity stays unindexed.
func (ix *Indexer) Reindex(ctx context.Context, name string) error {
	if ix.provider == nil {
		return &apptype.IndexUnavailableError{Cause: fmt.Errorf("no embedding provider configured")}
	}

	entities, err := ix.store.GetEntities(ctx, []string{name})
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		return apptype.NewNotFound("entity", name)
	}

	vecs, err := ix.embedEntity(ctx, entities[0])
	if err != nil {
		return err
	}
	return ix.store.SetEntityEmbeddings(ctx, name, vecs)
}

// embedEntity embeds one entity's three views in a single provider call.
func (ix *Indexer) embedEntity(ctx context.Context, e apptype.Entity) (map[apptype.EmbeddingKind][]float32, error) {
	views := RenderViews(e)
	kinds := apptype.Kinds()

	inputs := make([]string, len(kinds))
	for i, k := range kinds {
		inputs[i] = views[k]
	}

	out, err := ix.provider.Embed(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(out) != len(inputs) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d inputs", len(out), len(inputs))
	}

	vecs := make(map[apptype.EmbeddingKind][]float32, len(kinds))
	for i, k := range kinds {
		vecs[k] = out[i]
	}
	return vecs, nil
}

// ReindexBestEffort recomputes embeddings for the named entities and
// logs instead of failing: a write must never be lost to an embedding
// hiccup, the migration worker picks the entities up later.
func (ix *Indexer) ReindexBestEffort(ctx context.Context, names []string) {
	if ix.provider == nil {
		return
	}
	for _, name := range names {
		if err := ix.Reindex(ctx, name); err != nil {
			log.Printf("Warning: failed to index %s, deferred to migration: %v", name, err)
		}
	}
}

// EmbedQuery embeds a search query once, for reuse across views.
func (ix *Indexer) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if ix.provider == nil {
		return nil, &apptype.IndexUnavailableError{Cause: fmt.Errorf("no embedding provider configured")}
	}
	out, err := ix.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("provider returned %d embeddings for one input", len(out))
	}
	return out[0], nil
}

// RelationContextBestEffort embeds the textual form of an edge for
// relation-context similarity. Failures are logged and yield nil; a
// relation is never rejected over its context vector.
func (ix *Indexer) RelationContextBestEffort(ctx context.Context, rel apptype.Relation) []float32 {
	if ix.provider == nil {
		return nil
	}
	text := fmt.Sprintf("%s %s %s", rel.From, rel.RelationType, rel.To)
	out, err := ix.provider.Embed(ctx, []string{text})
	if err != nil || len(out) != 1 {
		log.Printf("Warning: failed to embed relation context %s: %v", text, err)
		return nil
	}
	return out[0]
}

// MigrateUnindexed backfills embeddings for up to batchSize unindexed
// entities, oldest first, batching provider calls. It returns how many
// entities it fully indexed. Per-entity failures are logged and left
// for the next run.
func (ix *Indexer) MigrateUnindexed(ctx context.Context, batchSize int) (int, error) {
	if ix.provider == nil {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = ix.batchSize
	}

	entities, err := ix.store.UnindexedEntities(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	// A batch runs to completion once started; cancellation is honored
	// between batches by the worker, and mid-flight provider calls stop
	// through ctx on their own.
	migrated := 0
	for _, e := range entities {
		vecs, err := ix.embedEntity(ctx, e)
		if err != nil {
			log.Printf("Warning: migration skipped %s: %v", e.Name, err)
			continue
		}
		if err := ix.store.SetEntityEmbeddings(ctx, e.Name, vecs); err != nil {
			log.Printf("Warning: migration failed to store embeddings for %s: %v", e.Name, err)
			continue
		}
		migrated++
	}
	return migrated, nil
}
