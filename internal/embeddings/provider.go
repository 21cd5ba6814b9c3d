package embeddings

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider defines a simple embeddings provider interface.
// Implementations should be concurrency-safe.
type Provider interface {
	// Name returns the provider name (e.g., "openai", "ollama").
	Name() string
	// Dimensions returns the embedding dimensionality this provider produces.
	Dimensions() int
	// Embed returns one embedding per input string.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// NewFromEnv constructs a provider based on environment variables.
// EMBEDDINGS_PROVIDER: "openai", "ollama", "gemini", "hash", or empty for
// disabled. The returned provider already carries the per-call timeout
// from EMBEDDINGS_TIMEOUT_MS.
func NewFromEnv() Provider {
	name := strings.ToLower(strings.TrimSpace(os.Getenv("EMBEDDINGS_PROVIDER")))
	var p Provider
	switch name {
	case "openai":
		p = newOpenAIFromEnv()
	case "ollama":
		p = newOllamaFromEnv()
	case "gemini", "google-gemini", "google":
		p = newGeminiFromEnv()
	case "hash", "local-hash":
		p = newHashFromEnv()
	default:
		return nil
	}
	if p == nil {
		return nil
	}
	return WithTimeout(p, timeoutFromEnv())
}

func timeoutFromEnv() time.Duration {
	v := strings.TrimSpace(os.Getenv("EMBEDDINGS_TIMEOUT_MS"))
	if v == "" {
		return 10 * time.Second
	}
	if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return 10 * time.Second
}
