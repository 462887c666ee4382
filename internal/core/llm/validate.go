package llm

import (
	"fmt"

	"github.com/markdave123-py/talktrack/internal/core"
)

// ValidateEmbeddings checks that vecs holds exactly wantCount vectors of
// length dim.
func ValidateEmbeddings(vecs [][]float32, wantCount, dim int) error {
	if len(vecs) != wantCount {
		return fmt.Errorf("%w: got %d vectors for %d inputs", core.ErrMalformedEmbedding, len(vecs), wantCount)
	}
	for i, v := range vecs {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, expected %d", core.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}
