package memory

import (
	"github.com/graphmem/mcp-graphmem-go/internal/embeddings"
	"github.com/graphmem/mcp-graphmem-go/internal/store"
)

// Config exposes a stable wrapper for graph store configuration in
// package mode. Most fields map directly to internal/store.Config.
type Config struct {
	URL           string
	AuthToken     string
	EmbeddingDims int

	MaxOpenConns   int
	MaxIdleConns   int
	ConnMaxIdleSec int
	ConnMaxLifeSec int

	// Provider supplies embeddings for the three views. Nil means take
	// the provider from EMBEDDINGS_PROVIDER; entities stay unindexed
	// when none is configured.
	Provider embeddings.Provider
}

func (c *Config) toInternal() *store.Config {
	return &store.Config{
		URL:            c.URL,
		AuthToken:      c.AuthToken,
		EmbeddingDims:  c.EmbeddingDims,
		MaxOpenConns:   c.MaxOpenConns,
		MaxIdleConns:   c.MaxIdleConns,
		ConnMaxIdleSec: c.ConnMaxIdleSec,
		ConnMaxLifeSec: c.ConnMaxLifeSec,
	}
}

// NewConfig reads the configuration from environment variables.
func NewConfig() *Config {
	internal := store.NewConfig()
	return &Config{
		URL:           internal.URL,
		AuthToken:     internal.AuthToken,
		EmbeddingDims: internal.EmbeddingDims,
	}
}
