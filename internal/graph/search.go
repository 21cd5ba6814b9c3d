package graph

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/graphmem/mcp-graphmem-go/internal/apptype"
	"github.com/graphmem/mcp-graphmem-go/internal/metrics"
	"github.com/graphmem/mcp-graphmem-go/internal/store"
)

// DefaultThreshold is the minimum similarity score a vector hit must
// reach to be returned.
const DefaultThreshold = 0.7

// Router answers every read operation. Vector search degrades to the
// substring search when the index or provider is unavailable; reads
// never fail over an embedding problem.
type Router struct {
	store     *store.Store
	indexer   *Indexer
	threshold float64
}

// NewRouter builds the search router. The default similarity threshold
// comes from SIMILARITY_THRESHOLD when set.
func NewRouter(s *store.Store, idx *Indexer) *Router {
	threshold := DefaultThreshold
	if v := strings.TrimSpace(os.Getenv("SIMILARITY_THRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			threshold = f
		}
	}
	return &Router{store: s, indexer: idx, threshold: threshold}
}

// ReadGraph returns the entire graph.
func (r *Router) ReadGraph(ctx context.Context) (apptype.KnowledgeGraph, error) {
	entities, err := r.store.ListEntities(ctx)
	if err != nil {
		return apptype.KnowledgeGraph{}, err
	}
	relations, err := r.store.AllRelations(ctx)
	if err != nil {
		return apptype.KnowledgeGraph{}, err
	}
	return apptype.KnowledgeGraph{Entities: entities, Relations: relations}, nil
}

// FindNodes retrieves entities by exact name with the relations among
// them. Missing names are skipped, not errors.
func (r *Router) FindNodes(ctx context.Context, names []string) (apptype.KnowledgeGraph, error) {
	entities, err := r.store.GetEntities(ctx, names)
	if err != nil {
		return apptype.KnowledgeGraph{}, err
	}
	return r.withRelations(ctx, entities)
}

// SearchNodes performs the substring search over names, labels and
// observations and returns matches with their incident relations.
func (r *Router) SearchNodes(ctx context.Context, query string) (apptype.KnowledgeGraph, error) {
	entities, err := r.store.SearchEntities(ctx, query)
	if err != nil {
		return apptype.KnowledgeGraph{}, err
	}
	return r.withRelations(ctx, entities)
}

// VectorSearch ranks entities by cosine similarity of the chosen view.
// mode selects the view (default content). When the provider or the
// vector index cannot serve, the query silently degrades to SearchNodes.
func (r *Router) VectorSearch(ctx context.Context, query, mode string, limit int, threshold float64) (apptype.KnowledgeGraph, error) {
	if query == "" {
		return apptype.KnowledgeGraph{}, apptype.Validationf("search query must not be empty")
	}
	kind := kindForMode(mode)
	if kind == "" {
		return apptype.KnowledgeGraph{}, apptype.Validationf("unknown search mode %q", mode)
	}
	if limit <= 0 {
		limit = 10
	}
	if threshold <= 0 {
		threshold = r.threshold
	}

	scored, err := r.vectorCandidates(ctx, kind, query, limit, threshold)
	if err != nil {
		reason := "index_unavailable"
		if apptype.IsProviderTimeout(err) {
			reason = "provider_timeout"
		}
		metrics.Default().IncSearchFallback(reason)
		log.Printf("Warning: vector search degraded to text search: %v", err)
		return r.SearchNodes(ctx, query)
	}

	entities := make([]apptype.Entity, 0, len(scored))
	for _, sc := range scored {
		entities = append(entities, sc.Entity)
	}
	return r.withRelations(ctx, entities)
}

// vectorCandidates embeds the query and runs the similarity query.
func (r *Router) vectorCandidates(ctx context.Context, kind apptype.EmbeddingKind, query string, limit int, threshold float64) ([]apptype.ScoredEntity, error) {
	vec, err := r.indexer.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.store.SimilarEntities(ctx, kind, vec, limit, threshold)
}

// SmartSearch routes a free-form query the way a human would ask it.
// Short queries try exact name lookups first; question-shaped queries go
// to the content view; everything else tries vector search and falls
// back to the substring search when nothing clears the threshold.
func (r *Router) SmartSearch(ctx context.Context, query string) (apptype.KnowledgeGraph, error) {
	if query == "" {
		return apptype.KnowledgeGraph{}, apptype.Validationf("search query must not be empty")
	}
	tokens := strings.Fields(query)

	if len(tokens) <= 3 {
		names := append([]string{query}, tokens...)
		graph, err := r.FindNodes(ctx, names)
		if err == nil && len(graph.Entities) > 0 {
			return graph, nil
		}
	}

	if len(tokens) > 0 && isInterrogative(tokens[0]) {
		return r.VectorSearch(ctx, query, string(apptype.KindContent), 0, 0)
	}

	graph, err := r.VectorSearch(ctx, query, string(apptype.KindContent), 0, 0)
	if err != nil {
		return apptype.KnowledgeGraph{}, err
	}
	if len(graph.Entities) > 0 {
		return graph, nil
	}

	// An empty vector result over a partly-unindexed graph is not
	// conclusive; the substring search still sees those entities.
	if n, cerr := r.store.CountUnindexed(ctx); cerr == nil && n > 0 {
		metrics.Default().IncSearchFallback("unindexed_entities")
	}
	return r.SearchNodes(ctx, query)
}

func isInterrogative(token string) bool {
	switch strings.ToLower(token) {
	case "what", "who", "where", "when", "why", "how", "which", "tell":
		return true
	}
	return false
}

// kindForMode maps a tool-facing mode string onto an embedding view.
func kindForMode(mode string) apptype.EmbeddingKind {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "content":
		return apptype.KindContent
	case "observations", "observation":
		return apptype.KindObservations
	case "identity", "name":
		return apptype.KindIdentity
	}
	return ""
}

// withRelations completes a set of entities into the canonical subgraph
// shape: the entities plus the relations fully contained in the set.
func (r *Router) withRelations(ctx context.Context, entities []apptype.Entity) (apptype.KnowledgeGraph, error) {
	graph := apptype.KnowledgeGraph{Entities: entities}
	if len(entities) == 0 {
		return graph, nil
	}
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	relations, err := r.store.RelationsForEntities(ctx, names)
	if err != nil {
		return apptype.KnowledgeGraph{}, err
	}
	graph.Relations = relations
	return graph, nil
}
