package embed

import (
	"context"
	"math"
	"sort"

	"github.com/lazypower/tiermem/internal/vecmath"
)

// TFIDF generates bag-of-words embeddings over a vocabulary learned from a
// seed corpus. Vectors always have the configured width; when the corpus
// has fewer terms the tail stays zero.
type TFIDF struct {
	vocab map[string]int // term -> slot
	idf   []float64
	dims  int
}

// NewTFIDF learns the dims most document-frequent terms of corpus.
func NewTFIDF(corpus []string, dims int) *TFIDF {
	if dims <= 0 {
		dims = 300
	}

	df := make(map[string]int)
	for _, doc := range corpus {
		seen := make(map[string]bool)
		for _, term := range tokenize(doc) {
			if !seen[term] {
				df[term]++
				seen[term] = true
			}
		}
	}

	type termFreq struct {
		term string
		freq int
	}
	terms := make([]termFreq, 0, len(df))
	for t, f := range df {
		terms = append(terms, termFreq{t, f})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].freq != terms[j].freq {
			return terms[i].freq > terms[j].freq
		}
		return terms[i].term < terms[j].term
	})
	if len(terms) > dims {
		terms = terms[:dims]
	}

	numDocs := math.Max(float64(len(corpus)), 1)
	t := &TFIDF{
		vocab: make(map[string]int, len(terms)),
		idf:   make([]float64, dims),
		dims:  dims,
	}
	for i, tf := range terms {
		t.vocab[tf.term] = i
		// smoothed: log(N/df) + 1
		t.idf[i] = math.Log(numDocs/float64(tf.freq)) + 1
	}
	return t
}

func (t *TFIDF) Model() string   { return "tfidf" }
func (t *TFIDF) Dimensions() int { return t.dims }

// VocabularySize returns how many slots carry a term.
func (t *TFIDF) VocabularySize() int { return len(t.vocab) }

// Embed generates a normalized TF-IDF vector for text. Unknown terms are
// ignored.
func (t *TFIDF) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, t.dims)
	tf := make(map[int]int)
	maxTF := 0
	for _, tok := range tokenize(text) {
		slot, ok := t.vocab[tok]
		if !ok {
			continue
		}
		tf[slot]++
		maxTF = max(maxTF, tf[slot])
	}
	for slot, count := range tf {
		// augmented TF keeps long texts from dominating
		vec[slot] = (0.5 + 0.5*float64(count)/float64(maxTF)) * t.idf[slot]
	}
	vecmath.Normalize(vec)
	return vec, nil
}
