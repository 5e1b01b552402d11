package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/lazypower/tiermem/internal/vecmath"
)

// Ollama embeds through a local Ollama server using chromem-go's client.
type Ollama struct {
	model string
	dims  int
	fn    chromem.EmbeddingFunc
}

// NewOllama creates an embedder for model served at baseURL (for example
// http://localhost:11434/api). An empty baseURL uses chromem's default and
// an empty model uses nomic-embed-text.
func NewOllama(baseURL, model string, dims int) *Ollama {
	if model == "" {
		model = "nomic-embed-text"
	}
	return &Ollama{
		model: model,
		dims:  dims,
		fn:    chromem.NewEmbeddingFuncOllama(model, baseURL),
	}
}

func (o *Ollama) Model() string   { return "ollama:" + o.model }
func (o *Ollama) Dimensions() int { return o.dims }

func (o *Ollama) Embed(ctx context.Context, text string) ([]float64, error) {
	vec, err := o.fn(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return vecmath.Float64s(vec), nil
}

// ProbeOllama checks that the server answers and the model produces
// vectors of the expected width.
func ProbeOllama(ctx context.Context, baseURL, model string, dims int) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	vec, err := NewOllama(baseURL, model, dims).Embed(ctx, "probe")
	if err != nil {
		return err
	}
	if len(vec) != dims {
		return fmt.Errorf("model %s returns %d dimensions, configured %d", model, len(vec), dims)
	}
	return nil
}
