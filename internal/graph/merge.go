// Package graph implements the knowledge-graph engine: merge semantics
// for entities and relations, embedding view maintenance, search routing
// and the backfill worker. It sits between the MCP surface and the store.
package graph

import (
	"context"
	"errors"
	"regexp"

	"github.com/graphmem/mcp-graphmem-go/internal/apptype"
	"github.com/graphmem/mcp-graphmem-go/internal/store"
)

// relationTypePattern constrains relation types to identifier-shaped
// strings so edges stay queryable and render cleanly.
var relationTypePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Engine owns graph mutations. Every write merges on the entity name
// and hands the touched entities to the indexer for re-embedding.
type Engine struct {
	store   *store.Store
	indexer *Indexer
}

// NewEngine wires the merge engine to its store and indexer.
func NewEngine(s *store.Store, idx *Indexer) *Engine {
	return &Engine{store: s, indexer: idx}
}

// CreateEntities upserts entities by name. An existing name merges:
// labels union, observations append with duplicates dropped. Only the
// entities that did not exist before the call are returned, echoing
// their post-merge state.
func (g *Engine) CreateEntities(ctx context.Context, inputs []apptype.EntityInput) ([]apptype.Entity, error) {
	var createdNames []string
	var touched []string

	for _, in := range inputs {
		if in.Name == "" {
			return nil, apptype.Validationf("entity name must not be empty")
		}
		if len(in.Labels) == 0 {
			return nil, apptype.Validationf("entity %s must carry at least one label", in.Name)
		}
		existed, err := g.store.EntityExists(ctx, in.Name)
		if err != nil {
			return nil, err
		}
		if _, err := g.store.UpsertEntity(ctx, in.Name, apptype.NewLabelSet(in.Labels...), in.Observations); err != nil {
			return nil, err
		}
		touched = append(touched, in.Name)
		if !existed {
			createdNames = append(createdNames, in.Name)
		}
	}

	g.indexer.ReindexBestEffort(ctx, touched)

	return g.store.GetEntities(ctx, createdNames)
}

// AddObservations appends facts to existing entities. A missing entity
// fails its own item with NotFoundError while the rest of the batch
// proceeds. The result reports per entity exactly the observations that
// were new.
func (g *Engine) AddObservations(ctx context.Context, additions []apptype.ObservationAddition) ([]apptype.ObservationDelta, error) {
	deltas := make([]apptype.ObservationDelta, 0, len(additions))
	var (
		touched []string
		errs    []error
	)
	for _, add := range additions {
		if add.EntityName == "" {
			errs = append(errs, apptype.Validationf("entity name must not be empty"))
			continue
		}
		exists, err := g.store.EntityExists(ctx, add.EntityName)
		if err != nil {
			return deltas, err
		}
		if !exists {
			errs = append(errs, apptype.NewNotFound("entity", add.EntityName))
			continue
		}

		added, err := g.store.UpsertEntity(ctx, add.EntityName, nil, add.Contents)
		if err != nil {
			return deltas, err
		}
		deltas = append(deltas, apptype.ObservationDelta{
			EntityName:        add.EntityName,
			AddedObservations: added,
		})
		touched = append(touched, add.EntityName)
	}

	g.indexer.ReindexBestEffort(ctx, touched)
	return deltas, errors.Join(errs...)
}

// DeleteEntities removes entities, their observations and every edge
// touching them. Unknown names are ignored.
func (g *Engine) DeleteEntities(ctx context.Context, names []string) error {
	return g.store.DeleteEntities(ctx, names)
}

// DeleteObservations removes the given facts from their entities.
// Unknown entities and absent observations are no-ops; entities that
// lost observations are re-embedded.
func (g *Engine) DeleteObservations(ctx context.Context, deletions []apptype.ObservationDeletion) error {
	var touched []string
	for _, del := range deletions {
		if del.EntityName == "" {
			continue
		}
		changed, err := g.store.DeleteObservations(ctx, del.EntityName, del.Observations)
		if err != nil {
			return err
		}
		if changed {
			touched = append(touched, del.EntityName)
		}
	}
	g.indexer.ReindexBestEffort(ctx, touched)
	return nil
}

// CreateRelations adds directed typed edges. Both endpoints must exist;
// items referencing missing entities fail individually while the rest
// of the batch proceeds. Duplicates are no-ops. Only edges the call
// actually added are returned.
func (g *Engine) CreateRelations(ctx context.Context, relations []apptype.Relation) ([]apptype.Relation, error) {
	var (
		created []apptype.Relation
		errs    []error
	)
	for _, rel := range relations {
		if rel.From == "" || rel.To == "" {
			errs = append(errs, apptype.Validationf("relation endpoints must not be empty"))
			continue
		}
		if !relationTypePattern.MatchString(rel.RelationType) {
			errs = append(errs, apptype.Validationf("invalid relation type %q", rel.RelationType))
			continue
		}

		ok, err := g.endpointsExist(ctx, rel)
		if err != nil {
			if apptype.IsNotFound(err) {
				errs = append(errs, err)
				continue
			}
			return created, err
		}
		if !ok {
			continue
		}

		contextVec := g.indexer.RelationContextBestEffort(ctx, rel)
		added, err := g.store.CreateRelation(ctx, rel, contextVec)
		if err != nil {
			return created, err
		}
		if added {
			created = append(created, rel)
		}
	}
	return created, errors.Join(errs...)
}

func (g *Engine) endpointsExist(ctx context.Context, rel apptype.Relation) (bool, error) {
	for _, name := range []string{rel.From, rel.To} {
		exists, err := g.store.EntityExists(ctx, name)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, apptype.NewNotFound("entity", name)
		}
	}
	return true, nil
}

// DeleteRelations removes exact (from, to, type) tuples. Tuples with no
// matching edge are no-ops.
func (g *Engine) DeleteRelations(ctx context.Context, relations []apptype.Relation) error {
	return g.store.DeleteRelations(ctx, relations)
}
