package embed

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/tiermem/internal/config"
	"github.com/lazypower/tiermem/internal/vecmath"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"Hello World", 2},
		{"Go developer, prefers minimal dependencies.", 5},
		{"a b c", 0},
		{"SQLite WAL mode", 3},
		{"", 0},
	}
	for _, tt := range tests {
		tokens := tokenize(tt.input)
		if len(tokens) != tt.want {
			t.Errorf("tokenize(%q) = %d tokens %v, want %d", tt.input, len(tokens), tokens, tt.want)
		}
	}
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func TestHash_DeterministicAndNormalized(t *testing.T) {
	h := NewHash(64)
	ctx := context.Background()

	a, err := h.Embed(ctx, "tiered memory with decay")
	require.NoError(t, err)
	b, err := h.Embed(ctx, "tiered memory with decay")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, norm(a), 1e-9)
}

func TestHash_SharedWordsAreCloser(t *testing.T) {
	h := NewHash(300)
	ctx := context.Background()
	base, _ := h.Embed(ctx, "the database connection pool is exhausted")
	near, _ := h.Embed(ctx, "database connection pool exhausted again")
	far, _ := h.Embed(ctx, "sunny weather at the beach")

	assert.Greater(t, vecmath.Cosine(base, near), vecmath.Cosine(base, far))
}

func TestHash_EmptyTextIsZeroVector(t *testing.T) {
	vec, err := NewHash(8).Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 8), vec)
}

func TestTFIDF_FixedWidth(t *testing.T) {
	corpus := []string{
		"go memory store",
		"go retrieval engine",
		"memory decay",
	}
	e := NewTFIDF(corpus, 16)
	assert.Equal(t, 16, e.Dimensions())
	assert.Equal(t, 6, e.VocabularySize())

	vec, err := e.Embed(context.Background(), "memory store")
	require.NoError(t, err)
	assert.Len(t, vec, 16)
	assert.InDelta(t, 1.0, norm(vec), 1e-9)

	unknown, err := e.Embed(context.Background(), "zebra")
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 16), unknown)
}

func TestTFIDF_TruncatesVocabulary(t *testing.T) {
	e := NewTFIDF([]string{"alpha beta gamma delta", "alpha beta", "alpha"}, 2)
	assert.Equal(t, 2, e.VocabularySize())
	_, hasAlpha := e.vocab["alpha"]
	_, hasBeta := e.vocab["beta"]
	assert.True(t, hasAlpha)
	assert.True(t, hasBeta)
}

type countingEmbedder struct {
	calls int
	dims  int
	err   error
}

func (c *countingEmbedder) Model() string   { return "counting" }
func (c *countingEmbedder) Dimensions() int { return c.dims }
func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	v := make([]float64, c.dims)
	v[0] = float64(len(text))
	return v, nil
}

func TestCached_ReusesVectors(t *testing.T) {
	inner := &countingEmbedder{dims: 4}
	c, err := NewCached(inner, 100)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	first, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	c.Wait()

	second, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)

	// Callers may mutate what they get back.
	second[0] = -1
	third, _ := c.Embed(ctx, "hello")
	assert.Equal(t, 5.0, third[0])
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	inner := &countingEmbedder{dims: 4, err: errors.New("down")}
	c, err := NewCached(inner, 100)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Embed(context.Background(), "x")
	assert.Error(t, err)
	c.Wait()
	_, err = c.Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestVectorizer(t *testing.T) {
	v := Vectorizer(NewHash(32))
	vec, err := v(context.Background(), map[string]any{"note": "hello world"})
	require.NoError(t, err)
	assert.Len(t, vec, 32)

	bad := Vectorizer(&shortEmbedder{})
	_, err = bad(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "dimensions"))
}

type shortEmbedder struct{}

func (shortEmbedder) Model() string   { return "short" }
func (shortEmbedder) Dimensions() int { return 4 }
func (shortEmbedder) Embed(context.Context, string) ([]float64, error) {
	return []float64{1}, nil
}

type label string

func (l label) String() string { return "label:" + string(l) }

func TestText(t *testing.T) {
	assert.Equal(t, "", Text(nil))
	assert.Equal(t, "plain", Text("plain"))
	assert.Equal(t, "raw", Text([]byte("raw")))
	assert.Equal(t, "label:x", Text(label("x")))
	assert.Equal(t, `{"a":1}`, Text(map[string]int{"a": 1}))
}

func TestNew(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "hash"}, 16)
	require.NoError(t, err)
	assert.Equal(t, 16, e.Dimensions())

	e, err = New(config.EmbeddingConfig{Provider: "tfidf", Corpus: []string{"a b"}, CacheSize: 10}, 8)
	require.NoError(t, err)
	assert.IsType(t, &Cached{}, e)
	e.(*Cached).Close()

	_, err = New(config.EmbeddingConfig{Provider: "openai"}, 16)
	assert.Error(t, err, "openai without a key")

	_, err = New(config.EmbeddingConfig{Provider: "word2vec"}, 16)
	assert.Error(t, err)
}
