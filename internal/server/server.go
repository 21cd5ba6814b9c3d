// Package server exposes the knowledge graph over the Model Context
// Protocol, on stdio or SSE transports.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/graphmem/mcp-graphmem-go/internal/apptype"
	"github.com/graphmem/mcp-graphmem-go/internal/buildinfo"
	"github.com/graphmem/mcp-graphmem-go/internal/graph"
	"github.com/graphmem/mcp-graphmem-go/internal/metrics"
	"github.com/graphmem/mcp-graphmem-go/internal/store"
)

// MCPServer handles MCP protocol communication
type MCPServer struct {
	server *mcp.Server
	store  *store.Store
	engine *graph.Engine
	router *graph.Router
	idx    *graph.Indexer
}

// NewMCPServer creates a new MCP server
func NewMCPServer(st *store.Store, engine *graph.Engine, router *graph.Router, idx *graph.Indexer) *MCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "mcp-graphmem-go",
		Version: buildinfo.Version,
	}, nil)

	s := &MCPServer{
		server: server,
		store:  st,
		engine: engine,
		router: router,
		idx:    idx,
	}

	// initialize metrics from env (no-op if disabled)
	metrics.InitFromEnv()
	s.setupToolHandlers()
	return s
}

func mustSchema[T any](name string) *jsonschema.Schema {
	schema, err := jsonschema.For[T]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for %s: %v", name, err))
	}
	return schema
}

// setupToolHandlers registers all MCP tools
func (s *MCPServer) setupToolHandlers() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "create_entities",
		Title:        "Create Entities",
		Description:  "Create or merge entities with labels and observations. Existing names merge: labels union, observations append.",
		InputSchema:  mustSchema[apptype.CreateEntitiesArgs]("CreateEntitiesArgs"),
		OutputSchema: mustSchema[apptype.CreateEntitiesResult]("CreateEntitiesResult"),
	}, s.handleCreateEntities)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "create_relations",
		Title:        "Create Relations",
		Description:  "Create directed typed relations between existing entities.",
		InputSchema:  mustSchema[apptype.CreateRelationsArgs]("CreateRelationsArgs"),
		OutputSchema: mustSchema[apptype.CreateRelationsResult]("CreateRelationsResult"),
	}, s.handleCreateRelations)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "add_observations",
		Title:        "Add Observations",
		Description:  "Append observations to existing entities. Returns only the observations that were new.",
		InputSchema:  mustSchema[apptype.AddObservationsArgs]("AddObservationsArgs"),
		OutputSchema: mustSchema[apptype.AddObservationsResult]("AddObservationsResult"),
	}, s.handleAddObservations)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_entities",
		Title:       "Delete Entities",
		Description: "Delete entities with their observations and incident relations. Unknown names are ignored.",
		InputSchema: mustSchema[apptype.DeleteEntitiesArgs]("DeleteEntitiesArgs"),
	}, s.handleDeleteEntities)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_observations",
		Title:       "Delete Observations",
		Description: "Remove specific observations from entities. Absent observations are ignored.",
		InputSchema: mustSchema[apptype.DeleteObservationsArgs]("DeleteObservationsArgs"),
	}, s.handleDeleteObservations)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_relations",
		Title:       "Delete Relations",
		Description: "Delete exact relation tuples. Non-existent tuples are ignored.",
		InputSchema: mustSchema[apptype.DeleteRelationsArgs]("DeleteRelationsArgs"),
	}, s.handleDeleteRelations)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "read_graph",
		Title:        "Read Graph",
		Description:  "Return the entire knowledge graph.",
		InputSchema:  mustSchema[apptype.ReadGraphArgs]("ReadGraphArgs"),
		OutputSchema: mustSchema[apptype.KnowledgeGraph]("KnowledgeGraph (read)"),
	}, s.handleReadGraph)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "search_nodes",
		Title:        "Search Nodes",
		Description:  "Search entities by name, label or observation substring.",
		InputSchema:  mustSchema[apptype.SearchNodesArgs]("SearchNodesArgs"),
		OutputSchema: mustSchema[apptype.KnowledgeGraph]("KnowledgeGraph (search)"),
	}, s.handleSearchNodes)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "find_nodes",
		Title:        "Find Nodes",
		Description:  "Retrieve entities by exact name with the relations among them.",
		InputSchema:  mustSchema[apptype.FindNodesArgs]("FindNodesArgs"),
		OutputSchema: mustSchema[apptype.KnowledgeGraph]("KnowledgeGraph (find)"),
	}, s.handleFindNodes)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "open_nodes",
		Title:        "Open Nodes",
		Description:  "Alias of find_nodes for clients that use the open_nodes name.",
		InputSchema:  mustSchema[apptype.FindNodesArgs]("FindNodesArgs (open)"),
		OutputSchema: mustSchema[apptype.KnowledgeGraph]("KnowledgeGraph (open)"),
	}, s.handleFindNodes)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "vector_search",
		Title:        "Vector Search",
		Description:  "Semantic search over an embedding view (content, observations or identity). Falls back to text search when no vector index is available.",
		InputSchema:  mustSchema[apptype.VectorSearchArgs]("VectorSearchArgs"),
		OutputSchema: mustSchema[apptype.KnowledgeGraph]("KnowledgeGraph (vector)"),
	}, s.handleVectorSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "smart_search",
		Title:        "Smart Search",
		Description:  "Route a free-form query across exact lookup, semantic search and text search automatically.",
		InputSchema:  mustSchema[apptype.SearchNodesArgs]("SearchNodesArgs (smart)"),
		OutputSchema: mustSchema[apptype.KnowledgeGraph]("KnowledgeGraph (smart)"),
	}, s.handleSmartSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "health_check",
		Title:        "Health Check",
		Description:  "Returns server and configuration information.",
		InputSchema:  mustSchema[apptype.HealthArgs]("HealthArgs"),
		OutputSchema: mustSchema[apptype.HealthResult]("HealthResult"),
	}, s.handleHealth)
}

// handleCreateEntities handles the create_entities tool call
func (s *MCPServer) handleCreateEntities(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.CreateEntitiesArgs],
) (*mcp.CallToolResultFor[apptype.CreateEntitiesResult], error) {
	done := metrics.TimeTool("create_entities")
	var success bool
	defer func() { done(success) }()

	created, err := s.engine.CreateEntities(ctx, params.Arguments.Entities)
	if err != nil {
		return nil, fmt.Errorf("failed to create entities: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.CreateEntitiesResult]{
		Content: []mcp.Content{&mcp.TextContent{
			Text: fmt.Sprintf("Processed %d entities, %d newly created", len(params.Arguments.Entities), len(created)),
		}},
		StructuredContent: apptype.CreateEntitiesResult{Entities: created},
	}, nil
}

// handleCreateRelations handles the create_relations tool call
func (s *MCPServer) handleCreateRelations(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.CreateRelationsArgs],
) (*mcp.CallToolResultFor[apptype.CreateRelationsResult], error) {
	done := metrics.TimeTool("create_relations")
	var success bool
	defer func() { done(success) }()

	created, err := s.engine.CreateRelations(ctx, params.Arguments.Relations)
	if err != nil && len(created) == 0 {
		return nil, fmt.Errorf("failed to create relations: %w", err)
	}
	success = true

	text := fmt.Sprintf("Created %d relations", len(created))
	if err != nil {
		text = fmt.Sprintf("Created %d relations; some failed: %v", len(created), err)
	}
	return &mcp.CallToolResultFor[apptype.CreateRelationsResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: text}},
		StructuredContent: apptype.CreateRelationsResult{Relations: created},
	}, nil
}

// handleAddObservations handles the add_observations tool call
func (s *MCPServer) handleAddObservations(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.AddObservationsArgs],
) (*mcp.CallToolResultFor[apptype.AddObservationsResult], error) {
	done := metrics.TimeTool("add_observations")
	var success bool
	defer func() { done(success) }()

	deltas, err := s.engine.AddObservations(ctx, params.Arguments.Observations)
	if err != nil && len(deltas) == 0 {
		return nil, fmt.Errorf("failed to add observations: %w", err)
	}
	success = true

	text := fmt.Sprintf("Added observations to %d entities", len(deltas))
	if err != nil {
		text = fmt.Sprintf("Added observations to %d entities; some failed: %v", len(deltas), err)
	}
	return &mcp.CallToolResultFor[apptype.AddObservationsResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: text}},
		StructuredContent: apptype.AddObservationsResult{Results: deltas},
	}, nil
}

// handleDeleteEntities handles bulk entity deletion
func (s *MCPServer) handleDeleteEntities(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.DeleteEntitiesArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("delete_entities")
	var success bool
	defer func() { done(success) }()

	if err := s.engine.DeleteEntities(ctx, params.Arguments.EntityNames); err != nil {
		return nil, fmt.Errorf("failed to delete entities: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Deleted %d entities", len(params.Arguments.EntityNames))}},
	}, nil
}

// handleDeleteObservations handles observation deletion
func (s *MCPServer) handleDeleteObservations(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.DeleteObservationsArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("delete_observations")
	var success bool
	defer func() { done(success) }()

	if err := s.engine.DeleteObservations(ctx, params.Arguments.Deletions); err != nil {
		return nil, fmt.Errorf("failed to delete observations: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: "Observations deleted"}},
	}, nil
}

// handleDeleteRelations handles bulk relation deletion
func (s *MCPServer) handleDeleteRelations(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.DeleteRelationsArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("delete_relations")
	var success bool
	defer func() { done(success) }()

	if err := s.engine.DeleteRelations(ctx, params.Arguments.Relations); err != nil {
		return nil, fmt.Errorf("failed to delete relations: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Deleted %d relations", len(params.Arguments.Relations))}},
	}, nil
}

// handleReadGraph handles the read_graph tool call
func (s *MCPServer) handleReadGraph(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.ReadGraphArgs],
) (*mcp.CallToolResultFor[apptype.KnowledgeGraph], error) {
	done := metrics.TimeTool("read_graph")
	var success bool
	defer func() { done(success) }()

	g, err := s.router.ReadGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("read graph failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.KnowledgeGraph]{
		Content:           []mcp.Content{&mcp.TextContent{Text: "Graph read successfully"}},
		StructuredContent: g,
	}, nil
}

// handleSearchNodes handles the search_nodes tool call
func (s *MCPServer) handleSearchNodes(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.SearchNodesArgs],
) (*mcp.CallToolResultFor[apptype.KnowledgeGraph], error) {
	done := metrics.TimeTool("search_nodes")
	var success bool
	defer func() { done(success) }()

	g, err := s.router.SearchNodes(ctx, params.Arguments.Query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.KnowledgeGraph]{
		Content:           []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Found %d entities", len(g.Entities))}},
		StructuredContent: g,
	}, nil
}

// handleFindNodes serves both find_nodes and open_nodes
func (s *MCPServer) handleFindNodes(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.FindNodesArgs],
) (*mcp.CallToolResultFor[apptype.KnowledgeGraph], error) {
	done := metrics.TimeTool("find_nodes")
	var success bool
	defer func() { done(success) }()

	g, err := s.router.FindNodes(ctx, params.Arguments.Names)
	if err != nil {
		return nil, fmt.Errorf("failed to find nodes: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.KnowledgeGraph]{
		Content:           []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Found %d of %d entities", len(g.Entities), len(params.Arguments.Names))}},
		StructuredContent: g,
	}, nil
}

// handleSmartSearch handles the smart_search tool call
func (s *MCPServer) handleSmartSearch(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.SearchNodesArgs],
) (*mcp.CallToolResultFor[apptype.KnowledgeGraph], error) {
	done := metrics.TimeTool("smart_search")
	var success bool
	defer func() { done(success) }()

	g, err := s.router.SmartSearch(ctx, params.Arguments.Query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.KnowledgeGraph]{
		Content:           []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Found %d entities", len(g.Entities))}},
		StructuredContent: g,
	}, nil
}

// handleVectorSearch handles the vector_search tool call
func (s *MCPServer) handleVectorSearch(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.VectorSearchArgs],
) (*mcp.CallToolResultFor[apptype.KnowledgeGraph], error) {
	done := metrics.TimeTool("vector_search")
	var success bool
	defer func() { done(success) }()

	g, err := s.router.VectorSearch(ctx,
		params.Arguments.Query, params.Arguments.Mode,
		params.Arguments.Limit, params.Arguments.Threshold)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.KnowledgeGraph]{
		Content:           []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Found %d entities", len(g.Entities))}},
		StructuredContent: g,
	}, nil
}

// handleHealth returns basic server health information
func (s *MCPServer) handleHealth(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.HealthArgs],
) (*mcp.CallToolResultFor[apptype.HealthResult], error) {
	done := metrics.TimeTool("health_check")
	defer func() { done(true) }()

	res := apptype.HealthResult{
		Name:          "mcp-graphmem-go",
		Version:       buildinfo.Version,
		Revision:      buildinfo.Revision,
		BuildDate:     buildinfo.BuildDate,
		EmbeddingDims: s.store.Config().EmbeddingDims,
		Provider:      s.idx.ProviderName(),
	}
	return &mcp.CallToolResultFor[apptype.HealthResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: "ok"}},
		StructuredContent: res,
	}, nil
}

// Run starts the MCP server with stdio transport
func (s *MCPServer) Run(ctx context.Context) error {
	transport := mcp.NewStdioTransport()
	return s.server.Run(ctx, transport)
}

// RunSSE starts the MCP server over SSE at the given address and endpoint
func (s *MCPServer) RunSSE(ctx context.Context, addr string, endpoint string) error {
	handler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server { return s.server })
	mux := http.NewServeMux()
	mux.Handle(endpoint, handler)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("SSE MCP server listening on %s%s", addr, endpoint)
	return srv.ListenAndServe()
}
