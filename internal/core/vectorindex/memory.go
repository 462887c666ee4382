package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/markdave123-py/talktrack/internal/core"
	"github.com/markdave123-py/talktrack/internal/models"
)

var _ core.VectorIndex = (*MemoryIndex)(nil)

// MemoryIndex is an in-process cosine index.
type MemoryIndex struct {
	mu      sync.RWMutex
	dim     int
	created bool
	points  map[string]models.EmbeddingPoint
}

func NewMemoryIndex(dim int) *MemoryIndex {
	return &MemoryIndex{dim: dim, points: make(map[string]models.EmbeddingPoint)}
}

func (m *MemoryIndex) EnsureCollection(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = true
	return nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, points []models.EmbeddingPoint) error {
	if err := checkDims(points, m.dim); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		p.Vector = append([]float32(nil), p.Vector...)
		m.points[p.ID] = p
	}
	return nil
}

func (m *MemoryIndex) DeleteByFile(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.FileID() == fileID {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, vector []float32, filter models.Filter, limit int) ([]models.SearchHit, error) {
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, expected %d", core.ErrDimensionMismatch, len(vector), m.dim)
	}

	m.mu.RLock()
	hits := make([]models.SearchHit, 0, len(m.points))
	for _, p := range m.points {
		if !filter.Matches(p.Payload) {
			continue
		}
		hits = append(hits, models.SearchHit{ID: p.ID, Score: cosine(vector, p.Vector), Payload: p.Payload})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Score > hits[j].Score
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Points returns a copy of every stored point.
func (m *MemoryIndex) Points() []models.EmbeddingPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.EmbeddingPoint, 0, len(m.points))
	for _, p := range m.points {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryIndex) Close() error { return nil }

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func checkDims(points []models.EmbeddingPoint, dim int) error {
	for _, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("%w: point %s has dimension %d, expected %d", core.ErrDimensionMismatch, p.ID, len(p.Vector), dim)
		}
	}
	return nil
}
