// Package embed turns trace content into fixed-length vectors. The memory
// core never embeds anything itself; it calls a vectorizer built here.
package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lazypower/tiermem/internal/config"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
	Dimensions() int
}

// New builds the embedder named by cfg.Provider, producing dims-long
// vectors, wrapped in a cache when cfg.CacheSize is positive.
func New(cfg config.EmbeddingConfig, dims int) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", "hash":
		e = NewHash(dims)
	case "tfidf":
		e = NewTFIDF(cfg.Corpus, dims)
	case "ollama":
		e = NewOllama(cfg.URL, cfg.Model, dims)
	case "openai":
		e, err = NewOpenAI(cfg.APIKey, cfg.URL, cfg.Model, dims)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		return NewCached(e, cfg.CacheSize)
	}
	return e, nil
}

// Text renders opaque content as the text an embedder sees.
func Text(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	if b, err := json.Marshal(content); err == nil {
		return string(b)
	}
	return fmt.Sprint(content)
}

// Vectorizer adapts an Embedder to the content-level function the engine
// calls, checking the returned length.
func Vectorizer(e Embedder) func(ctx context.Context, content any) ([]float64, error) {
	return func(ctx context.Context, content any) ([]float64, error) {
		vec, err := e.Embed(ctx, Text(content))
		if err != nil {
			return nil, fmt.Errorf("embed with %s: %w", e.Model(), err)
		}
		if len(vec) != e.Dimensions() {
			return nil, fmt.Errorf("%s returned %d dimensions, want %d", e.Model(), len(vec), e.Dimensions())
		}
		return vec, nil
	}
}

// tokenize splits text into lowercase tokens, stripping punctuation.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 1 {
			tokens = append(tokens, current.String())
		}
		current.Reset()
	}
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
