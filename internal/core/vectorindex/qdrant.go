package vectorindex

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/markdave123-py/talktrack/internal/core"
	"github.com/markdave123-py/talktrack/internal/models"
)

var _ core.VectorIndex = (*QdrantIndex)(nil)

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dim        int
}

// QdrantIndex talks to Qdrant over gRPC.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dim        int
}

func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}
	return &QdrantIndex{client: client, collection: cfg.Collection, dim: cfg.Dim}, nil
}

// EnsureCollection creates the collection when missing and then makes sure
// the fileId payload field carries a keyword index.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", q.collection, err)
	}

	if !exists {
		err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(q.dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection %s: %w", q.collection, err)
		}
	}

	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("collection info %s: %w", q.collection, err)
	}
	if size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize(); size != 0 && size != uint64(q.dim) {
		return fmt.Errorf("collection %s has dimension %d, expected %d: %w", q.collection, size, q.dim, core.ErrDimensionMismatch)
	}
	if _, ok := info.GetPayloadSchema()[models.PayloadFileID]; ok {
		return nil
	}

	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      models.PayloadFileID,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("create fileId index: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, points []models.EmbeddingPoint) error {
	if len(points) == 0 {
		return nil
	}
	if err := checkDims(points, q.dim); err != nil {
		return err
	}

	structs := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		payload, err := qdrant.TryValueMap(p.Payload)
		if err != nil {
			return fmt.Errorf("payload of %s: %w", p.ID, err)
		}
		structs[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (q *QdrantIndex) DeleteByFile(ctx context.Context, fileID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(toQdrantFilter(models.FileFilter(fileID))),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete points of %s: %w", fileID, err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, vector []float32, filter models.Filter, limit int) ([]models.SearchHit, error) {
	if len(vector) != q.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, expected %d", core.ErrDimensionMismatch, len(vector), q.dim)
	}
	if limit <= 0 {
		limit = 10
	}

	res, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         toQdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	hits := make([]models.SearchHit, 0, len(res))
	for _, sp := range res {
		hits = append(hits, models.SearchHit{
			ID:      sp.GetId().GetUuid(),
			Score:   sp.GetScore(),
			Payload: fromValueMap(sp.GetPayload()),
		})
	}
	return hits, nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func toQdrantFilter(f models.Filter) *qdrant.Filter {
	if len(f.Must) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(f.Must))
	for _, c := range f.Must {
		must = append(must, qdrant.NewMatchKeywords(c.Key, c.Match.Any...))
	}
	return &qdrant.Filter{Must: must}
}

func fromValueMap(m map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_StructValue:
		return fromValueMap(k.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		vals := k.ListValue.GetValues()
		out := make([]any, len(vals))
		for i, e := range vals {
			out[i] = fromValue(e)
		}
		return out
	default:
		return nil
	}
}
