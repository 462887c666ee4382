package core

//go:generate mockgen -source=ai.go -destination=ai_mock.go -package=core

import "context"

// EmbeddingProvider converts text into fixed-dimension vectors.
// The output has one vector per input, in input order.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
}
