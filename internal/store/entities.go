package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/graphmem/mcp-graphmem-go/internal/apptype"
	"github.com/graphmem/mcp-graphmem-go/internal/metrics"
)

// UpsertEntity writes an entity row and its observations. Any mutation
// clears the embedding columns and indexed_at so readers never see
// vectors computed from stale text; the caller reindexes afterwards.
//
// Labels are unioned with what is already stored and observations are
// appended with duplicates ignored. The observations the call actually
// added are returned.
func (s *Store) UpsertEntity(ctx context.Context, name string, labels apptype.LabelSet, observations []string) ([]string, error) {
	done := metrics.TimeOp("upsert_entity")
	success := false
	defer func() { done(success) }()

	if name == "" {
		return nil, apptype.Validationf("entity name must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &apptype.StoreUnavailableError{Cause: err}
	}
	defer tx.Rollback()

	var existingLabels sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT labels FROM entities WHERE name = ?", name).Scan(&existingLabels)
	switch {
	case err == sql.ErrNoRows:
		labelsJSON, merr := json.Marshal(apptype.NewLabelSet(labels...))
		if merr != nil {
			return nil, fmt.Errorf("failed to encode labels: %w", merr)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO entities (name, labels) VALUES (?, ?)", name, string(labelsJSON)); err != nil {
			return nil, fmt.Errorf("failed to insert entity: %w", err)
		}
	case err != nil:
		return nil, &apptype.StoreUnavailableError{Cause: err}
	default:
		var stored []string
		if existingLabels.Valid {
			if uerr := json.Unmarshal([]byte(existingLabels.String), &stored); uerr != nil {
				return nil, fmt.Errorf("failed to decode stored labels for %s: %w", name, uerr)
			}
		}
		merged, _ := apptype.NewLabelSet(stored...).Union(labels)
		labelsJSON, merr := json.Marshal(merged)
		if merr != nil {
			return nil, fmt.Errorf("failed to encode labels: %w", merr)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE entities SET
            labels = ?,
            content_embedding = NULL,
            observation_embedding = NULL,
            identity_embedding = NULL,
            indexed_at = NULL
            WHERE name = ?`, string(labelsJSON), name); err != nil {
			return nil, fmt.Errorf("failed to update entity: %w", err)
		}
	}

	added := make([]string, 0, len(observations))
	for _, obs := range observations {
		if obs == "" {
			continue
		}
		res, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO observations (entity_name, content) VALUES (?, ?)", name, obs)
		if err != nil {
			return nil, fmt.Errorf("failed to insert observation: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added = append(added, obs)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &apptype.StoreUnavailableError{Cause: err}
	}
	success = true
	return added, nil
}

// EntityExists reports whether an entity row is present.
func (s *Store) EntityExists(ctx context.Context, name string) (bool, error) {
	stmt, err := s.getPreparedStmt(ctx, "SELECT 1 FROM entities WHERE name = ?")
	if err != nil {
		return false, err
	}
	var one int
	err = stmt.QueryRowContext(ctx, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &apptype.StoreUnavailableError{Cause: err}
	}
	return true, nil
}

// GetEntities fetches entities by exact name, preserving the order of
// the input. Names with no matching entity are silently skipped.
func (s *Store) GetEntities(ctx context.Context, names []string) ([]apptype.Entity, error) {
	done := metrics.TimeOp("get_entities")
	success := false
	defer func() { done(success) }()

	entities := make([]apptype.Entity, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		entity, err := s.getEntity(ctx, name)
		if err != nil {
			if apptype.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		entities = append(entities, entity)
	}
	success = true
	return entities, nil
}

// getEntity loads a single entity with observations and any stored
// embeddings.
func (s *Store) getEntity(ctx context.Context, name string) (apptype.Entity, error) {
	stmt, err := s.getPreparedStmt(ctx, `SELECT name, labels,
        content_embedding, observation_embedding, identity_embedding, indexed_at
        FROM entities WHERE name = ?`)
	if err != nil {
		return apptype.Entity{}, err
	}
	row := stmt.QueryRowContext(ctx, name)
	entity, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return apptype.Entity{}, apptype.NewNotFound("entity", name)
	}
	if err != nil {
		return apptype.Entity{}, err
	}

	entity.Observations, err = s.getObservations(ctx, name)
	if err != nil {
		return apptype.Entity{}, err
	}
	return entity, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntity decodes an entity row selected with the canonical column
// list (name, labels, the three embedding blobs, indexed_at).
func scanEntity(row rowScanner) (apptype.Entity, error) {
	var (
		entity     apptype.Entity
		labelsJSON string
		blobs      = make([][]byte, 3)
		indexedAt  sql.NullString
	)
	if err := row.Scan(&entity.Name, &labelsJSON, &blobs[0], &blobs[1], &blobs[2], &indexedAt); err != nil {
		return apptype.Entity{}, err
	}

	var stored []string
	if err := json.Unmarshal([]byte(labelsJSON), &stored); err != nil {
		return apptype.Entity{}, fmt.Errorf("failed to decode labels for %s: %w", entity.Name, err)
	}
	entity.Labels = apptype.NewLabelSet(stored...)

	kinds := apptype.Kinds()
	for i, blob := range blobs {
		if len(blob) == 0 {
			continue
		}
		vec, err := extractVector(blob)
		if err != nil {
			return apptype.Entity{}, fmt.Errorf("failed to decode %s embedding for %s: %w", kinds[i], entity.Name, err)
		}
		if entity.Embeddings == nil {
			entity.Embeddings = make(map[apptype.EmbeddingKind][]float32, 3)
		}
		entity.Embeddings[kinds[i]] = vec
	}

	if indexedAt.Valid {
		if t, err := time.Parse("2006-01-02 15:04:05", indexedAt.String); err == nil {
			entity.IndexedAt = &t
		}
	}
	return entity, nil
}

// getObservations returns an entity's observations in insertion order.
func (s *Store) getObservations(ctx context.Context, entityName string) ([]string, error) {
	stmt, err := s.getPreparedStmt(ctx,
		"SELECT content FROM observations WHERE entity_name = ? ORDER BY id")
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, entityName)
	if err != nil {
		return nil, &apptype.StoreUnavailableError{Cause: err}
	}
	defer rows.Close()

	var observations []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		observations = append(observations, content)
	}
	return observations, rows.Err()
}

// ListEntities returns every entity in the graph, observations included.
func (s *Store) ListEntities(ctx context.Context) ([]apptype.Entity, error) {
	done := metrics.TimeOp("list_entities")
	success := false
	defer func() { done(success) }()

	rows, err := s.db.QueryContext(ctx, `SELECT name, labels,
        content_embedding, observation_embedding, identity_embedding, indexed_at
        FROM entities ORDER BY name`)
	if err != nil {
		return nil, &apptype.StoreUnavailableError{Cause: err}
	}
	defer rows.Close()

	var entities []apptype.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entities {
		entities[i].Observations, err = s.getObservations(ctx, entities[i].Name)
		if err != nil {
			return nil, err
		}
	}
	success = true
	return entities, nil
}

// DeleteEntities removes entities with their observations and any
// relation touching them, in one transaction. Missing names are no-ops.
func (s *Store) DeleteEntities(ctx context.Context, names []string) error {
	done := metrics.TimeOp("delete_entities")
	success := false
	defer func() { done(success) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &apptype.StoreUnavailableError{Cause: err}
	}
	defer tx.Rollback()

	for _, name := range names {
		if name == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM relations WHERE source = ? OR target = ?", name, name); err != nil {
			return fmt.Errorf("failed to delete relations for %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM observations WHERE entity_name = ?", name); err != nil {
			return fmt.Errorf("failed to delete observations for %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM entities WHERE name = ?", name); err != nil {
			return fmt.Errorf("failed to delete entity %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return &apptype.StoreUnavailableError{Cause: err}
	}
	success = true
	return nil
}

// DeleteObservations removes specific observations from an entity and
// clears its embeddings for reindexing. Absent observations and absent
// entities are silent no-ops per the delete contract.
func (s *Store) DeleteObservations(ctx context.Context, entityName string, observations []string) (bool, error) {
	done := metrics.TimeOp("delete_observations")
	success := false
	defer func() { done(success) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, &apptype.StoreUnavailableError{Cause: err}
	}
	defer tx.Rollback()

	var removed int64
	for _, obs := range observations {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM observations WHERE entity_name = ? AND content = ?", entityName, obs)
		if err != nil {
			return false, fmt.Errorf("failed to delete observation: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	if removed > 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE entities SET
            content_embedding = NULL,
            observation_embedding = NULL,
            identity_embedding = NULL,
            indexed_at = NULL
            WHERE name = ?`, entityName); err != nil {
			return false, fmt.Errorf("failed to invalidate embeddings for %s: %w", entityName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, &apptype.StoreUnavailableError{Cause: err}
	}
	success = true
	return removed > 0, nil
}

// SetEntityEmbeddings stores all three embedding views atomically and
// stamps indexed_at. Partial view sets are rejected; readers observe
// either a fully indexed entity or an unindexed one.
func (s *Store) SetEntityEmbeddings(ctx context.Context, name string, embeddings map[apptype.EmbeddingKind][]float32) error {
	done := metrics.TimeOp("set_entity_embeddings")
	success := false
	defer func() { done(success) }()

	vecs := make(map[apptype.EmbeddingKind]string, 3)
	for _, kind := range apptype.Kinds() {
		vec, ok := embeddings[kind]
		if !ok {
			return apptype.Validationf("missing %s embedding for %s", kind, name)
		}
		str, err := s.vectorToString(vec)
		if err != nil {
			return err
		}
		vecs[kind] = str
	}

	stmt, err := s.getPreparedStmt(ctx, `UPDATE entities SET
        content_embedding = vector32(?),
        observation_embedding = vector32(?),
        identity_embedding = vector32(?),
        indexed_at = CURRENT_TIMESTAMP
        WHERE name = ?`)
	if err != nil {
		return err
	}
	res, err := stmt.ExecContext(ctx,
		vecs[apptype.KindContent], vecs[apptype.KindObservations], vecs[apptype.KindIdentity], name)
	if err != nil {
		return fmt.Errorf("failed to store embeddings for %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apptype.NewNotFound("entity", name)
	}
	success = true
	return nil
}

// UnindexedEntities returns up to limit entities whose embeddings are
// missing, oldest first, for the migration worker.
func (s *Store) UnindexedEntities(ctx context.Context, limit int) ([]apptype.Entity, error) {
	if limit <= 0 {
		limit = 16
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name, labels,
        content_embedding, observation_embedding, identity_embedding, indexed_at
        FROM entities WHERE indexed_at IS NULL ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, &apptype.StoreUnavailableError{Cause: err}
	}
	defer rows.Close()

	var entities []apptype.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entities {
		entities[i].Observations, err = s.getObservations(ctx, entities[i].Name)
		if err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// CountUnindexed returns the number of entities awaiting embeddings.
func (s *Store) CountUnindexed(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entities WHERE indexed_at IS NULL").Scan(&n)
	if err != nil {
		return 0, &apptype.StoreUnavailableError{Cause: err}
	}
	return n, nil
}
