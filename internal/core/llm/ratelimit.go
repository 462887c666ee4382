package llm

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"github.com/markdave123-py/talktrack/internal/core"
)

var _ core.EmbeddingProvider = (*RateLimitedEmbedder)(nil)

// RateLimitedEmbedder throttles an embedder and splits large inputs into
// sub-batches, preserving input order.
type RateLimitedEmbedder struct {
	inner     core.EmbeddingProvider
	limiter   *rate.Limiter
	batchSize int
}

// NewRateLimitedEmbedder allows rps requests per second; rps <= 0 disables
// throttling and batchSize <= 0 disables splitting.
func NewRateLimitedEmbedder(inner core.EmbeddingProvider, rps float64, batchSize int) *RateLimitedEmbedder {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		inner:     inner,
		limiter:   rate.NewLimiter(limit, burst),
		batchSize: batchSize,
	}
}

func (r *RateLimitedEmbedder) Dimensions() int   { return r.inner.Dimensions() }
func (r *RateLimitedEmbedder) ModelName() string { return r.inner.ModelName() }

func (r *RateLimitedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	size := r.batchSize
	if size <= 0 || size > len(texts) {
		size = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))

		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embed rate limit: %w", err)
		}
		vecs, err := r.inner.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: got %d vectors for %d inputs", core.ErrMalformedEmbedding, len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Close releases the wrapped embedder when it holds a client.
func (r *RateLimitedEmbedder) Close() error {
	if c, ok := r.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
