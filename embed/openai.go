package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/aluiziolira/bookroad/config"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI embeds through the official OpenAI SDK.
type OpenAI struct {
	client openai.Client
	model  string
	dims   int
}

// NewOpenAI creates an embedder for the OpenAI API. EmbeddingHost overrides
// the base URL when set to something other than the local default.
func NewOpenAI(cfg *config.Config) (*OpenAI, error) {
	if cfg.EmbeddingAPIKey == "" {
		return nil, errors.New("openai embedding provider requires embedding_api_key")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.EmbeddingAPIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout * 3}),
		option.WithMaxRetries(cfg.FetchAttempts),
	}
	if cfg.EmbeddingHost != "" && cfg.EmbeddingHost != config.DefaultConfig().EmbeddingHost {
		opts = append(opts, option.WithBaseURL(cfg.EmbeddingHost))
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  cfg.EmbeddingModel,
		dims:   cfg.EmbeddingDimensions,
	}, nil
}

func (e *OpenAI) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAI) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dims > 0 {
		params.Dimensions = openai.Int(int64(e.dims))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Errorf("openai embeddings error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("openai embeddings error (status %d)", apiErr.StatusCode)
	}
	return err
}

var _ Embedder = (*OpenAI)(nil)
