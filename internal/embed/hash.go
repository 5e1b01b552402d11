package embed

import (
	"context"
	"hash/fnv"

	"github.com/lazypower/tiermem/internal/vecmath"
)

// Hash is a dependency-free embedder using signed feature hashing: each
// token adds ±1 to a bucket chosen by its FNV hash. Texts sharing words end
// up close, unrelated texts near orthogonal. Output is L2 normalized.
type Hash struct {
	dims int
}

// NewHash creates a feature-hashing embedder of the given width.
func NewHash(dims int) *Hash {
	if dims <= 0 {
		dims = 300
	}
	return &Hash{dims: dims}
}

func (h *Hash) Model() string   { return "hash" }
func (h *Hash) Dimensions() int { return h.dims }

func (h *Hash) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, h.dims)
	for _, tok := range tokenize(text) {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		i := sum % uint64(h.dims)
		if sum>>63 == 1 {
			vec[i]--
		} else {
			vec[i]++
		}
	}
	vecmath.Normalize(vec)
	return vec, nil
}
