package store

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/viterin/vek/vek32"

	"github.com/graphmem/mcp-graphmem-go/internal/apptype"
	"github.com/graphmem/mcp-graphmem-go/internal/metrics"
)

// SearchEntities performs a case-insensitive substring match over entity
// names, labels and observation text. Results come back with their
// observations, ordered by name.
func (s *Store) SearchEntities(ctx context.Context, query string) ([]apptype.Entity, error) {
	done := metrics.TimeOp("search_entities")
	success := false
	defer func() { done(success) }()

	if query == "" {
		return nil, apptype.Validationf("search query must not be empty")
	}
	pattern := "%" + strings.ToLower(query) + "%"

	stmt, err := s.getPreparedStmt(ctx, `SELECT DISTINCT e.name, e.labels,
        e.content_embedding, e.observation_embedding, e.identity_embedding, e.indexed_at
        FROM entities e
        LEFT JOIN observations o ON e.name = o.entity_name
        WHERE lower(e.name) LIKE ?
           OR lower(e.labels) LIKE ?
           OR lower(o.content) LIKE ?
        ORDER BY e.name`)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, pattern, pattern, pattern)
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

// SimilarEntities ranks indexed entities by cosine similarity of the
// chosen embedding view against the query vector. Unindexed entities
// are never candidates. Scores are 1 - cosine distance; only results at
// or above threshold are returned, best first, at most limit of them.
//
// The ANN SQL path is tried first; if this libSQL build lacks vector
// functions the store falls back to an in-process scan and remembers.
func (s *Store) SimilarEntities(ctx context.Context, kind apptype.EmbeddingKind, query []float32, limit int, threshold float64) ([]apptype.ScoredEntity, error) {
	done := metrics.TimeOp("similar_entities")
	success := false
	defer func() { done(success) }()

	if !apptype.ValidKind(kind) {
		return nil, apptype.Validationf("unknown embedding kind %q", kind)
	}
	if len(query) != s.config.EmbeddingDims {
		return nil, apptype.Validationf("query vector has %d dimensions, store expects %d",
			len(query), s.config.EmbeddingDims)
	}
	if limit <= 0 {
		limit = 5
	}

	if s.useVectorSQL() {
		scored, err := s.similarSQL(ctx, kind, query, limit, threshold)
		if err == nil {
			success = true
			return scored, nil
		}
		if !isVectorCapabilityError(err) {
			return nil, &apptype.IndexUnavailableError{Cause: err}
		}
		log.Printf("Warning: vector SQL unavailable, using in-process scan: %v", err)
		s.disableVectorSQL()
	}

	scored, err := s.similarScan(ctx, kind, query, limit, threshold)
	if err != nil {
		return nil, err
	}
	success = true
	return scored, nil
}

// similarSQL runs the ranking inside libSQL via vector_distance_cos.
func (s *Store) similarSQL(ctx context.Context, kind apptype.EmbeddingKind, query []float32, limit int, threshold float64) ([]apptype.ScoredEntity, error) {
	column := kindColumn[kind]
	vecStr, err := s.vectorToString(query)
	if err != nil {
		return nil, err
	}

	sqlText := fmt.Sprintf(`SELECT name,
        vector_distance_cos(%s, vector32(?)) AS distance
        FROM entities
        WHERE indexed_at IS NOT NULL
        ORDER BY distance ASC
        LIMIT ?`, column)

	rows, err := s.db.QueryContext(ctx, sqlText, vecStr, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type hit struct {
		name  string
		score float64
	}
	var hits []hit
	for rows.Next() {
		var (
			name     string
			distance float64
		)
		if err := rows.Scan(&name, &distance); err != nil {
			return nil, err
		}
		score := 1 - distance
		if score < threshold {
			continue
		}
		hits = append(hits, hit{name: name, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	scored := make([]apptype.ScoredEntity, 0, len(hits))
	for _, h := range hits {
		entity, err := s.getEntity(ctx, h.name)
		if err != nil {
			if apptype.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		scored = append(scored, apptype.ScoredEntity{Entity: entity, Score: h.score})
	}
	return scored, nil
}

// similarScan decodes every indexed entity's vector and scores it with
// an in-process cosine. Fine at memory-server scale; the SQL path takes
// over on builds that have it.
func (s *Store) similarScan(ctx context.Context, kind apptype.EmbeddingKind, query []float32, limit int, threshold float64) ([]apptype.ScoredEntity, error) {
	column := kindColumn[kind]
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT name, %s FROM entities WHERE indexed_at IS NOT NULL", column))
	if err != nil {
		return nil, &apptype.StoreUnavailableError{Cause: err}
	}
	defer rows.Close()

	type hit struct {
		name  string
		score float64
	}
	var hits []hit
	for rows.Next() {
		var (
			name string
			blob []byte
		)
		if err := rows.Scan(&name, &blob); err != nil {
			return nil, err
		}
		if len(blob) == 0 {
			continue
		}
		vec, err := extractVector(blob)
		if err != nil {
			return nil, err
		}
		if len(vec) != len(query) {
			continue
		}
		score := float64(vek32.CosineSimilarity(query, vec))
		if score < threshold {
			continue
		}
		hits = append(hits, hit{name: name, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	scored := make([]apptype.ScoredEntity, 0, len(hits))
	for _, h := range hits {
		entity, err := s.getEntity(ctx, h.name)
		if err != nil {
			if apptype.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		scored = append(scored, apptype.ScoredEntity{Entity: entity, Score: h.score})
	}
	return scored, nil
}

// isVectorCapabilityError recognizes the errors a libSQL build without
// vector support produces for vector_distance_cos and friends.
func isVectorCapabilityError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such function") ||
		strings.Contains(msg, "vector_distance_cos") ||
		strings.Contains(msg, "vector_top_k") ||
		strings.Contains(msg, "unknown function")
}
