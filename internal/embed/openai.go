package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI embeds through the OpenAI embeddings endpoint, or any compatible
// server when a base URL is given. The requested width is passed as the
// dimensions parameter.
type OpenAI struct {
	client openai.Client
	model  string
	dims   int
}

// NewOpenAI creates an OpenAI embedder. model defaults to
// text-embedding-3-small.
func NewOpenAI(apiKey, baseURL, model string, dims int) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai embedder: no API key (set embedding.api_key or OPENAI_API_KEY)")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
		dims:   dims,
	}, nil
}

func (o *OpenAI) Model() string   { return "openai:" + o.model }
func (o *OpenAI) Dimensions() int { return o.dims }

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: openai.Int(int64(o.dims)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai returned no embeddings")
	}
	return resp.Data[0].Embedding, nil
}
