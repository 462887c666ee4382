package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/markdave123-py/talktrack/internal/core"
)

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)

const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIEmbedder requests embeddings truncated to the configured dimension.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

func NewOpenAIEmbedder(apiKey, model string, dim int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is empty")
	}
	return NewOpenAIEmbedderWithConfig(openai.DefaultConfig(apiKey), model, dim), nil
}

func NewOpenAIEmbedderWithConfig(cfg openai.ClientConfig, model string, dim int) *OpenAIEmbedder {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(cfg), model: model, dim: dim}
}

func (o *OpenAIEmbedder) Dimensions() int   { return o.dim }
func (o *OpenAIEmbedder) ModelName() string { return o.model }

func (o *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: o.dim,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && !retryableStatus(apiErr.HTTPStatusCode) && apiErr.HTTPStatusCode != 0 {
			return nil, core.Permanent(fmt.Errorf("openai embed: %w", err))
		}
		return nil, fmt.Errorf("openai embed: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("%w: openai index %d out of range", core.ErrMalformedEmbedding, d.Index)
		}
		out[d.Index] = d.Embedding
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", core.ErrMalformedEmbedding, len(resp.Data), len(texts))
	}
	return out, nil
}

