package apptype

// EntityInput is the wire shape for entity creation: caller-supplied
// labels only, base label applied by the engine.
type EntityInput struct {
	Name         string   `json:"name" jsonschema:"The unique name of the entity."`
	Labels       []string `json:"labels" jsonschema:"Type labels for the entity (at least one). The base Memory label is added automatically."`
	Observations []string `json:"observations" jsonschema:"Atomic fact strings attached to the entity."`
}

// CreateEntitiesArgs represents the arguments for the create_entities tool
type CreateEntitiesArgs struct {
	Entities []EntityInput `json:"entities" jsonschema:"A list of entities to create or merge."`
}

// CreateRelationsArgs represents the arguments for the create_relations tool
type CreateRelationsArgs struct {
	Relations []Relation `json:"relations" jsonschema:"A list of directed typed relations; both endpoints must exist."`
}

// AddObservationsArgs represents the arguments for the add_observations tool
type AddObservationsArgs struct {
	Observations []ObservationAddition `json:"observations" jsonschema:"Observations to append per entity."`
}

// DeleteEntitiesArgs represents the arguments for the delete_entities tool
type DeleteEntitiesArgs struct {
	EntityNames []string `json:"entityNames" jsonschema:"Entity names to delete; incident relations are removed as well."`
}

// DeleteObservationsArgs represents the arguments for the delete_observations tool
type DeleteObservationsArgs struct {
	Deletions []ObservationDeletion `json:"deletions" jsonschema:"Observations to remove per entity."`
}

// DeleteRelationsArgs represents the arguments for the delete_relations tool
type DeleteRelationsArgs struct {
	Relations []Relation `json:"relations" jsonschema:"Exact relation tuples to delete."`
}

// ReadGraphArgs represents the arguments for the read_graph tool
type ReadGraphArgs struct{}

// SearchNodesArgs represents the arguments for the search_nodes tool
type SearchNodesArgs struct {
	Query string `json:"query" jsonschema:"Query matched against entity names, labels and observation content."`
}

// FindNodesArgs represents the arguments for the find_nodes and open_nodes tools
type FindNodesArgs struct {
	Names []string `json:"names" jsonschema:"Entity names to retrieve."`
}

// VectorSearchArgs represents the arguments for the vector_search tool
type VectorSearchArgs struct {
	Query     string  `json:"query" jsonschema:"The semantic search query."`
	Mode      string  `json:"mode,omitempty" jsonschema:"Search mode: content (full context), observations (behavior/facts), identity (name/type). Default content."`
	Limit     int     `json:"limit,omitempty" jsonschema:"Maximum number of results (default 10)."`
	Threshold float64 `json:"threshold,omitempty" jsonschema:"Similarity threshold 0.0-1.0 (default 0.7)."`
}

// CreateEntitiesResult reports the entities a call newly created, in
// their post-merge state. Entities that already existed are absent.
type CreateEntitiesResult struct {
	Entities []Entity `json:"entities"`
}

// CreateRelationsResult reports the relations a call actually added.
type CreateRelationsResult struct {
	Relations []Relation `json:"relations"`
}

// AddObservationsResult reports per entity the observations that were new.
type AddObservationsResult struct {
	Results []ObservationDelta `json:"results"`
}

// Health
type HealthArgs struct{}

type HealthResult struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	Revision      string `json:"revision"`
	BuildDate     string `json:"buildDate"`
	EmbeddingDims int    `json:"embeddingDims"`
	Provider      string `json:"provider"`
}
