package embeddings

import (
	"context"
	"errors"
	"time"

	"github.com/graphmem/mcp-graphmem-go/internal/apptype"
)

// timeoutProvider bounds every Embed call with a deadline and converts a
// deadline overrun into a ProviderTimeoutError so the indexing path can
// hand the entity to the migration worker instead of failing the write.
type timeoutProvider struct {
	base    Provider
	timeout time.Duration
}

// WithTimeout wraps base so each Embed call runs under the given budget.
func WithTimeout(base Provider, timeout time.Duration) Provider {
	if base == nil || timeout <= 0 {
		return base
	}
	return &timeoutProvider{base: base, timeout: timeout}
}

func (p *timeoutProvider) Name() string    { return p.base.Name() }
func (p *timeoutProvider) Dimensions() int { return p.base.Dimensions() }

func (p *timeoutProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	vecs, err := p.base.Embed(cctx, inputs)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return nil, &apptype.ProviderTimeoutError{Cause: err}
		}
		return nil, err
	}
	return vecs, nil
}

// adaptingProvider coerces embeddings to a target dimensionality by
// zero-padding or truncating, for databases created under another model.
type adaptingProvider struct {
	base       Provider
	targetDims int
}

// WrapToDims returns a Provider whose vectors are exactly targetDims
// long. If base already matches, base is returned unchanged.
func WrapToDims(base Provider, targetDims int) Provider {
	if base == nil || targetDims <= 0 || base.Dimensions() == targetDims {
		return base
	}
	return &adaptingProvider{base: base, targetDims: targetDims}
}

func (p *adaptingProvider) Name() string    { return p.base.Name() }
func (p *adaptingProvider) Dimensions() int { return p.targetDims }

func (p *adaptingProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	vecs, err := p.base.Embed(ctx, inputs)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		if len(v) == p.targetDims {
			out[i] = v
			continue
		}
		adapted := make([]float32, p.targetDims)
		copy(adapted, v)
		out[i] = adapted
	}
	return out, nil
}
