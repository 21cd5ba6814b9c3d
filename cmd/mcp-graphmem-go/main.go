package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/graphmem/mcp-graphmem-go/internal/buildinfo"
	"github.com/graphmem/mcp-graphmem-go/internal/embeddings"
	"github.com/graphmem/mcp-graphmem-go/internal/graph"
	"github.com/graphmem/mcp-graphmem-go/internal/metrics"
	"github.com/graphmem/mcp-graphmem-go/internal/server"
	"github.com/graphmem/mcp-graphmem-go/internal/store"
)

var (
	libsqlURL   string
	authToken   string
	transport   string
	addr        string
	sseEndpoint string
	noMigration bool
)

func main() {
	root := &cobra.Command{
		Use:     "mcp-graphmem-go",
		Short:   "Knowledge graph memory server over MCP",
		Version: fmt.Sprintf("%s (%s, %s)", buildinfo.Version, buildinfo.Revision, buildinfo.BuildDate),
		RunE:    runServe,
	}
	root.Flags().StringVar(&libsqlURL, "libsql-url", "", "libSQL database URL (default: file:./graphmem.db)")
	root.Flags().StringVar(&authToken, "auth-token", "", "Authentication token for remote databases")
	root.Flags().StringVar(&transport, "transport", "stdio", "Transport to use: stdio or sse")
	root.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on when using SSE transport")
	root.Flags().StringVar(&sseEndpoint, "sse-endpoint", "/sse", "SSE endpoint path when using SSE transport")
	root.Flags().BoolVar(&noMigration, "no-migration", false, "Disable the background embedding backfill worker")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Backfill embeddings for unindexed entities and exit",
		RunE:  runMigrate,
	}
	migrate.Flags().StringVar(&libsqlURL, "libsql-url", "", "libSQL database URL (default: file:./graphmem.db)")
	migrate.Flags().StringVar(&authToken, "auth-token", "", "Authentication token for remote databases")
	root.AddCommand(migrate)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// openGraph builds the store, indexer, engine and router from env plus
// flag overrides.
func openGraph() (*store.Store, *graph.Engine, *graph.Router, *graph.Indexer, error) {
	config := store.NewConfig()
	if libsqlURL != "" {
		config.URL = libsqlURL
	}
	if authToken != "" {
		config.AuthToken = authToken
	}

	st, err := store.New(config)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	idx := graph.NewIndexer(st, embeddings.NewFromEnv())
	return st, graph.NewEngine(st, idx), graph.NewRouter(st, idx), idx, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, closing server...")
		cancel()
	}()

	metrics.InitFromEnv()

	st, engine, router, idx, err := openGraph()
	if err != nil {
		return fmt.Errorf("failed to open graph store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()

	if !noMigration && idx.HasProvider() {
		worker := graph.NewMigrationWorker(st, idx)
		go worker.Run(ctx)
	}

	mcpServer := server.NewMCPServer(st, engine, router, idx)

	log.Println("Starting graphmem MCP server...")
	errCh := make(chan error, 1)
	switch transport {
	case "stdio":
		go func() { errCh <- mcpServer.Run(ctx) }()
	case "sse":
		go func() { errCh <- mcpServer.RunSSE(ctx, addr, sseEndpoint) }()
	default:
		return fmt.Errorf("unknown transport: %s (expected: stdio or sse)", transport)
	}

	select {
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Println("Server stopped")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	st, _, _, idx, err := openGraph()
	if err != nil {
		return fmt.Errorf("failed to open graph store: %w", err)
	}
	defer st.Close()

	if !idx.HasProvider() {
		return fmt.Errorf("no embedding provider configured, set EMBEDDINGS_PROVIDER")
	}

	n, err := graph.NewMigrationWorker(st, idx).RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	log.Printf("Indexed %d entities", n)
	return nil
}
