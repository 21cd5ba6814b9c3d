package embeddings

import (
	"context"
	"hash/fnv"
	"os"
	"strconv"
	"strings"

	"github.com/viterin/vek/vek32"
)

// hashProvider produces deterministic bag-of-tokens embeddings without
// any network dependency: each lowercased token increments one hashed
// bucket and the vector is L2-normalized. Texts sharing tokens score
// proportionally to their overlap under cosine similarity. Useful for
// air-gapped deployments and for tests.
type hashProvider struct {
	dims int
}

func newHashFromEnv() Provider {
	dims := 256
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_DIMS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			dims = n
		}
	}
	return NewHashProvider(dims)
}

// NewHashProvider returns the deterministic local provider.
func NewHashProvider(dims int) Provider {
	if dims <= 0 {
		dims = 256
	}
	return &hashProvider{dims: dims}
}

func (p *hashProvider) Name() string    { return "hash" }
func (p *hashProvider) Dimensions() int { return p.dims }

func (p *hashProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		v := make([]float32, p.dims)
		for _, tok := range strings.Fields(strings.ToLower(in)) {
			tok = strings.Trim(tok, ".,;:!?\"'()")
			if tok == "" {
				continue
			}
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			v[int(h.Sum32())%p.dims]++
		}
		if n := vek32.Norm(v); n > 0 {
			vek32.DivNumber_Inplace(v, n)
		}
		out[i] = v
	}
	return out, nil
}
