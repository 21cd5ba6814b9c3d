package store

import (
	"os"
	"strconv"
)

// Config holds the graph store configuration.
type Config struct {
	URL           string
	AuthToken     string
	EmbeddingDims int

	MaxOpenConns   int
	MaxIdleConns   int
	ConnMaxIdleSec int
	ConnMaxLifeSec int

	// DisableVectorSQL forces the brute-force similarity scan even when
	// the libSQL build ships vector functions. Set automatically for
	// in-memory databases.
	DisableVectorSQL bool
}

// NewConfig creates a new Config from environment variables.
func NewConfig() *Config {
	url := os.Getenv("LIBSQL_URL")
	if url == "" {
		url = "file:./graphmem.db"
	}

	dims := 1024
	if v := os.Getenv("EMBEDDING_DIMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			dims = n
		}
	}

	return &Config{
		URL:           url,
		AuthToken:     os.Getenv("LIBSQL_AUTH_TOKEN"),
		EmbeddingDims: dims,
	}
}
