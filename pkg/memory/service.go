// Package memory provides a library-first API for the knowledge graph
// without MCP transport.
package memory

import (
	"context"

	"github.com/graphmem/mcp-graphmem-go/internal/apptype"
	"github.com/graphmem/mcp-graphmem-go/internal/embeddings"
	"github.com/graphmem/mcp-graphmem-go/internal/graph"
	"github.com/graphmem/mcp-graphmem-go/internal/store"
)

// Service bundles the merge engine, the search router and the indexer
// behind one handle.
type Service struct {
	store   *store.Store
	engine  *graph.Engine
	router  *graph.Router
	indexer *graph.Indexer
}

// NewService constructs a Service with the provided config.
func NewService(cfg *Config) (*Service, error) {
	st, err := store.New(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	provider := cfg.Provider
	if provider == nil {
		provider = embeddings.NewFromEnv()
	}
	idx := graph.NewIndexer(st, provider)
	return &Service{
		store:   st,
		engine:  graph.NewEngine(st, idx),
		router:  graph.NewRouter(st, idx),
		indexer: idx,
	}, nil
}

// Close releases resources.
func (s *Service) Close() error { return s.store.Close() }

// CreateEntities creates or merges entities, returning the newly
// created ones.
func (s *Service) CreateEntities(ctx context.Context, entities []apptype.EntityInput) ([]apptype.Entity, error) {
	return s.engine.CreateEntities(ctx, entities)
}

// CreateRelations creates directed typed relations between existing
// entities, returning the ones actually added.
func (s *Service) CreateRelations(ctx context.Context, relations []apptype.Relation) ([]apptype.Relation, error) {
	return s.engine.CreateRelations(ctx, relations)
}

// AddObservations appends observations, reporting per entity the ones
// that were new.
func (s *Service) AddObservations(ctx context.Context, additions []apptype.ObservationAddition) ([]apptype.ObservationDelta, error) {
	return s.engine.AddObservations(ctx, additions)
}

// DeleteEntities deletes entities and everything incident to them.
func (s *Service) DeleteEntities(ctx context.Context, names []string) error {
	return s.engine.DeleteEntities(ctx, names)
}

// DeleteObservations removes specific observations from entities.
func (s *Service) DeleteObservations(ctx context.Context, deletions []apptype.ObservationDeletion) error {
	return s.engine.DeleteObservations(ctx, deletions)
}

// DeleteRelations deletes exact relation tuples.
func (s *Service) DeleteRelations(ctx context.Context, relations []apptype.Relation) error {
	return s.engine.DeleteRelations(ctx, relations)
}

// ReadGraph returns the whole graph.
func (s *Service) ReadGraph(ctx context.Context) (apptype.KnowledgeGraph, error) {
	return s.router.ReadGraph(ctx)
}

// SearchNodes runs the substring search.
func (s *Service) SearchNodes(ctx context.Context, query string) (apptype.KnowledgeGraph, error) {
	return s.router.SearchNodes(ctx, query)
}

// FindNodes fetches entities by exact name.
func (s *Service) FindNodes(ctx context.Context, names []string) (apptype.KnowledgeGraph, error) {
	return s.router.FindNodes(ctx, names)
}

// VectorSearch runs a semantic search over the chosen embedding view.
func (s *Service) VectorSearch(ctx context.Context, query, mode string, limit int, threshold float64) (apptype.KnowledgeGraph, error) {
	return s.router.VectorSearch(ctx, query, mode, limit, threshold)
}

// SmartSearch routes a free-form query across lookup, vector and text
// search.
func (s *Service) SmartSearch(ctx context.Context, query string) (apptype.KnowledgeGraph, error) {
	return s.router.SmartSearch(ctx, query)
}

// MigrateOnce backfills embeddings for unindexed entities until none
// remain, returning how many were indexed.
func (s *Service) MigrateOnce(ctx context.Context) (int, error) {
	return graph.NewMigrationWorker(s.store, s.indexer).RunOnce(ctx)
}
