package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/graphmem/mcp-graphmem-go/internal/apptype"
	"github.com/graphmem/mcp-graphmem-go/internal/metrics"
)

// CreateRelation inserts a directed typed edge. An edge that already
// exists is a no-op; the return value reports whether a row was added.
// contextEmbedding may be nil when the provider was unavailable.
func (s *Store) CreateRelation(ctx context.Context, rel apptype.Relation, contextEmbedding []float32) (bool, error) {
	done := metrics.TimeOp("create_relation")
	success := false
	defer func() { done(success) }()

	var (
		res sql.Result
		err error
	)
	if contextEmbedding != nil {
		vecStr, verr := s.vectorToString(contextEmbedding)
		if verr != nil {
			return false, verr
		}
		stmt, serr := s.getPreparedStmt(ctx, `INSERT OR IGNORE INTO relations
            (source, target, relation_type, context_embedding)
            VALUES (?, ?, ?, vector32(?))`)
		if serr != nil {
			return false, serr
		}
		res, err = stmt.ExecContext(ctx, rel.From, rel.To, rel.RelationType, vecStr)
	} else {
		stmt, serr := s.getPreparedStmt(ctx, `INSERT OR IGNORE INTO relations
            (source, target, relation_type) VALUES (?, ?, ?)`)
		if serr != nil {
			return false, serr
		}
		res, err = stmt.ExecContext(ctx, rel.From, rel.To, rel.RelationType)
	}
	if err != nil {
		return false, fmt.Errorf("failed to create relation %s-[%s]->%s: %w",
			rel.From, rel.RelationType, rel.To, err)
	}
	n, _ := res.RowsAffected()
	success = true
	return n > 0, nil
}

// DeleteRelations removes the exact (source, target, type) tuples given.
// Tuples with no matching edge are silent no-ops.
func (s *Store) DeleteRelations(ctx context.Context, relations []apptype.Relation) error {
	done := metrics.TimeOp("delete_relations")
	success := false
	defer func() { done(success) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &apptype.StoreUnavailableError{Cause: err}
	}
	defer tx.Rollback()

	for _, rel := range relations {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM relations WHERE source = ? AND target = ? AND relation_type = ?",
			rel.From, rel.To, rel.RelationType); err != nil {
			return fmt.Errorf("failed to delete relation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return &apptype.StoreUnavailableError{Cause: err}
	}
	success = true
	return nil
}

// RelationsForEntities returns the relations whose endpoints are both
// among the given names, so read results stay self-contained subgraphs.
func (s *Store) RelationsForEntities(ctx context.Context, names []string) ([]apptype.Relation, error) {
	if len(names) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(names))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(`SELECT source, target, relation_type FROM relations
        WHERE source IN (%s) AND target IN (%s) ORDER BY id`, placeholders, placeholders)

	args := make([]any, 0, len(names)*2)
	for _, n := range names {
		args = append(args, n)
	}
	for _, n := range names {
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &apptype.StoreUnavailableError{Cause: err}
	}
	defer rows.Close()

	return scanRelations(rows)
}

// AllRelations returns every relation in the graph.
func (s *Store) AllRelations(ctx context.Context) ([]apptype.Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT source, target, relation_type FROM relations ORDER BY id")
	if err != nil {
		return nil, &apptype.StoreUnavailableError{Cause: err}
	}
	defer rows.Close()

	return scanRelations(rows)
}

func scanRelations(rows *sql.Rows) ([]apptype.Relation, error) {
	var relations []apptype.Relation
	for rows.Next() {
		var rel apptype.Relation
		if err := rows.Scan(&rel.From, &rel.To, &rel.RelationType); err != nil {
			return nil, err
		}
		relations = append(relations, rel)
	}
	return relations, rows.Err()
}
