package graph

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/graphmem/mcp-graphmem-go/internal/metrics"
	"github.com/graphmem/mcp-graphmem-go/internal/store"
)

// MigrationWorker backfills embeddings for entities whose provider call
// failed or timed out at write time. It drains the unindexed set in
// batches and is safe to run alongside live traffic: re-embedding an
// already indexed entity would be a no-op, and it never touches text.
type MigrationWorker struct {
	store     *store.Store
	indexer   *Indexer
	interval  time.Duration
	batchSize int
}

// NewMigrationWorker builds a worker with its scan interval taken from
// MIGRATION_INTERVAL_SEC (default 60s).
func NewMigrationWorker(s *store.Store, idx *Indexer) *MigrationWorker {
	interval := 60 * time.Second
	if v := strings.TrimSpace(os.Getenv("MIGRATION_INTERVAL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			interval = time.Duration(n) * time.Second
		}
	}
	return &MigrationWorker{
		store:     s,
		indexer:   idx,
		interval:  interval,
		batchSize: batchSizeFromEnv(),
	}
}

// Run loops until ctx is cancelled, scanning for unindexed entities
// every interval. A scan that finds work keeps draining batch after
// batch before going back to sleep; cancellation is honored between
// batches so shutdown never waits on a full drain.
func (w *MigrationWorker) Run(ctx context.Context) {
	if !w.indexer.HasProvider() {
		log.Printf("Warning: migration worker idle, no embedding provider configured")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drain runs one migration pass: batches until the unindexed set is
// empty or stops shrinking.
func (w *MigrationWorker) drain(ctx context.Context) {
	pending, err := w.store.CountUnindexed(ctx)
	if err != nil {
		log.Printf("Warning: migration scan failed: %v", err)
		return
	}
	if pending == 0 {
		return
	}

	runID := uuid.NewString()
	log.Printf("migration run %s: %d entities pending", runID, pending)

	total := 0
	for {
		if ctx.Err() != nil {
			return
		}
		migrated, err := w.indexer.MigrateUnindexed(ctx, w.batchSize)
		if err != nil {
			log.Printf("Warning: migration run %s batch failed: %v", runID, err)
			break
		}
		total += migrated
		metrics.Default().AddMigratedEntities(migrated)
		if migrated == 0 {
			// Remaining entities keep failing; leave them for next run.
			break
		}
		remaining, err := w.store.CountUnindexed(ctx)
		if err != nil || remaining == 0 {
			break
		}
	}
	log.Printf("migration run %s: indexed %d entities", runID, total)
}

// RunOnce performs a single migration pass, for tests and for the CLI
// migrate command. Returns the number of entities indexed.
func (w *MigrationWorker) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		migrated, err := w.indexer.MigrateUnindexed(ctx, w.batchSize)
		if err != nil {
			return total, err
		}
		total += migrated
		metrics.Default().AddMigratedEntities(migrated)
		if migrated == 0 {
			return total, nil
		}
	}
}
