package llm

import (
	"context"
	"fmt"

	"github.com/markdave123-py/talktrack/internal/config"
	"github.com/markdave123-py/talktrack/internal/core"
)

// NewEmbedder builds the configured provider wrapped in rate limiting and
// sub-batching.
func NewEmbedder(ctx context.Context, cfg *config.Config) (*RateLimitedEmbedder, error) {
	var (
		inner core.EmbeddingProvider
		err   error
	)

	switch cfg.EmbedProvider {
	case "huggingface", "":
		inner = NewHuggingFaceEmbedder(cfg.HFAPIKey, cfg.HFBaseURL, cfg.EmbedModel, cfg.EmbedDim)
	case "gemini":
		inner, err = NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	case "openai":
		inner, err = NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbedProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s embedder: %w", cfg.EmbedProvider, err)
	}

	return NewRateLimitedEmbedder(inner, cfg.EmbedRPS, cfg.EmbedBatchSize), nil
}
