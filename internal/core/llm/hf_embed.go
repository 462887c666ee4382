package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/markdave123-py/talktrack/internal/core"
)

var _ core.EmbeddingProvider = (*HuggingFaceEmbedder)(nil)

const (
	DefaultHFBaseURL = "https://router.huggingface.co/hf-inference/models"
	DefaultHFModel   = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultHFDim     = 384
)

// HuggingFaceEmbedder calls the inference feature-extraction pipeline.
type HuggingFaceEmbedder struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	dim     int
}

type hfRequest struct {
	Inputs  []string  `json:"inputs"`
	Options hfOptions `json:"options"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type hfError struct {
	Error string `json:"error"`
}

func NewHuggingFaceEmbedder(apiKey, baseURL, model string, dim int) *HuggingFaceEmbedder {
	if baseURL == "" {
		baseURL = DefaultHFBaseURL
	}
	if model == "" {
		model = DefaultHFModel
	}
	if dim <= 0 {
		dim = DefaultHFDim
	}
	return &HuggingFaceEmbedder{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		dim:     dim,
	}
}

func (h *HuggingFaceEmbedder) Dimensions() int   { return h.dim }
func (h *HuggingFaceEmbedder) ModelName() string { return h.model }

func (h *HuggingFaceEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(hfRequest{Inputs: texts, Options: hfOptions{WaitForModel: true}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := h.baseURL + "/" + h.model + "/pipeline/feature-extraction"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		var he hfError
		if json.Unmarshal(raw, &he) == nil && he.Error != "" {
			msg = he.Error
		}
		err := fmt.Errorf("huggingface status %d: %s", resp.StatusCode, msg)
		if retryableStatus(resp.StatusCode) {
			return nil, err
		}
		return nil, core.Permanent(err)
	}

	var vecs [][]float32
	if err := json.Unmarshal(raw, &vecs); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedEmbedding, err)
	}
	return vecs, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}
