package store

import "fmt"

// dynamicSchema returns schema DDL using the configured embedding
// dimension. Each entity carries one vector column per embedding view;
// relations carry an optional context embedding.
func dynamicSchema(embeddingDims int) []string {
	if embeddingDims <= 0 {
		embeddingDims = 1024
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS entities (
        name TEXT PRIMARY KEY,
        labels TEXT NOT NULL,
        content_embedding F32_BLOB(%d),
        observation_embedding F32_BLOB(%d),
        identity_embedding F32_BLOB(%d),
        indexed_at DATETIME,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    )`, embeddingDims, embeddingDims, embeddingDims),

		`CREATE TABLE IF NOT EXISTS observations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        entity_name TEXT NOT NULL,
        content TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (entity_name, content),
        FOREIGN KEY (entity_name) REFERENCES entities(name)
    )`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS relations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        source TEXT NOT NULL,
        target TEXT NOT NULL,
        relation_type TEXT NOT NULL,
        context_embedding F32_BLOB(%d),
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (source, target, relation_type),
        FOREIGN KEY (source) REFERENCES entities(name),
        FOREIGN KEY (target) REFERENCES entities(name)
    )`, embeddingDims),

		`CREATE INDEX IF NOT EXISTS idx_entities_created_at ON entities(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_indexed_at ON entities(indexed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_entity ON observations(entity_name)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target)`,

		// Vector indexes, one per embedding view.
		`CREATE INDEX IF NOT EXISTS idx_entities_content_embedding ON entities(libsql_vector_idx(content_embedding))`,
		`CREATE INDEX IF NOT EXISTS idx_entities_observation_embedding ON entities(libsql_vector_idx(observation_embedding))`,
		`CREATE INDEX IF NOT EXISTS idx_entities_identity_embedding ON entities(libsql_vector_idx(identity_embedding))`,
	}
}
