// Package store is the GraphStore adapter: durable persistence of
// entities, relations and their embeddings on libSQL, with per-view
// vector similarity queries and a substring fulltext primitive.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/graphmem/mcp-graphmem-go/internal/apptype"
	"github.com/graphmem/mcp-graphmem-go/internal/metrics"
)

// Store handles all database operations for the knowledge graph.
type Store struct {
	config *Config
	db     *sql.DB

	stmtMu    sync.RWMutex
	stmtCache map[string]*sql.Stmt

	capMu     sync.Mutex
	vectorSQL bool
}

// New opens (or creates) the database and initializes the schema.
func New(config *Config) (*Store, error) {
	if config.EmbeddingDims <= 0 || config.EmbeddingDims > 65536 {
		return nil, fmt.Errorf("embedding dims must be between 1 and 65536, got %d", config.EmbeddingDims)
	}

	dbURL := config.URL
	if !strings.HasPrefix(dbURL, "file:") && config.AuthToken != "" {
		if u, perr := url.Parse(dbURL); perr == nil {
			q := u.Query()
			q.Set("authToken", config.AuthToken)
			u.RawQuery = q.Encode()
			dbURL = u.String()
		}
	}

	db, err := sql.Open("libsql", dbURL)
	if err != nil {
		return nil, &apptype.StoreUnavailableError{Cause: err}
	}

	s := &Store{
		config:    config,
		db:        db,
		stmtCache: make(map[string]*sql.Stmt),
		// ANN SQL is probed lazily; in-memory databases skip it to avoid
		// driver quirks and use the in-process cosine scan.
		vectorSQL: !config.DisableVectorSQL && !strings.Contains(config.URL, "mode=memory"),
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxIdleSec > 0 {
		db.SetConnMaxIdleTime(time.Duration(config.ConnMaxIdleSec) * time.Second)
	}
	if config.ConnMaxLifeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifeSec) * time.Second)
	}

	return s, nil
}

// Config returns the store configuration.
func (s *Store) Config() *Config { return s.config }

// initialize creates tables and indexes if they don't exist.
func (s *Store) initialize() error {
	done := metrics.TimeOp("store_initialize")
	success := false
	defer func() { done(success) }()

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return &apptype.StoreUnavailableError{Cause: err}
	}
	defer tx.Rollback()

	for _, statement := range dynamicSchema(s.config.EmbeddingDims) {
		if _, err := tx.Exec(statement); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return &apptype.StoreUnavailableError{Cause: err}
	}
	success = true
	return nil
}

// getPreparedStmt returns or prepares and caches a statement.
func (s *Store) getPreparedStmt(ctx context.Context, sqlText string) (*sql.Stmt, error) {
	s.stmtMu.RLock()
	stmt, ok := s.stmtCache[sqlText]
	s.stmtMu.RUnlock()
	if ok {
		return stmt, nil
	}

	stmt, err := s.db.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	s.stmtMu.Lock()
	s.stmtCache[sqlText] = stmt
	s.stmtMu.Unlock()
	return stmt, nil
}

// useVectorSQL reports whether the SQL vector functions are in play.
func (s *Store) useVectorSQL() bool {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	return s.vectorSQL
}

// disableVectorSQL records that the libSQL build lacks vector functions.
func (s *Store) disableVectorSQL() {
	s.capMu.Lock()
	s.vectorSQL = false
	s.capMu.Unlock()
}

// Close closes the database connection and cached statements.
func (s *Store) Close() error {
	s.stmtMu.Lock()
	for _, stmt := range s.stmtCache {
		_ = stmt.Close()
	}
	s.stmtCache = make(map[string]*sql.Stmt)
	s.stmtMu.Unlock()
	return s.db.Close()
}
