package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/tiermem/internal/config"
	"github.com/lazypower/tiermem/internal/events"
	"github.com/lazypower/tiermem/internal/memory"
)

func roomy(c *config.Config) {
	c.Memory.Capacity = config.PerTier[int]{Working: 100, ShortTerm: 100, LongTerm: 100, Permanent: 100}
}

func ids(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Trace.ID
	}
	return out
}

func TestRetrieve_MinStrengthFilterAndOrder(t *testing.T) {
	h := testEngine(t, nil)
	weak := h.put(t, basis(0))
	mid := h.put(t, basis(0))
	strong := h.put(t, basis(0))
	h.setStrength(weak, 20)
	h.setStrength(mid, 50)
	h.setStrength(strong, 80)

	res, err := h.Retrieve(context.Background(), Query{Vector: basis(0), MinStrength: 40})
	require.NoError(t, err)
	assert.Equal(t, []string{strong, mid}, ids(res.Traces))
	for _, m := range res.Traces {
		assert.InDelta(t, 1.0, m.Similarity, 1e-12)
	}
}

func TestRetrieve_StrengthensReturnedTraces(t *testing.T) {
	h := testEngine(t, nil)
	id := h.put(t, basis(0))
	other := h.put(t, basis(5))
	h.clock.advance(time.Hour)

	res, err := h.Retrieve(context.Background(), Query{Vector: basis(0)})
	require.NoError(t, err)
	require.Len(t, res.Traces, 1)

	tr := h.trace(t, id)
	assert.InDelta(t, 52.5, tr.Strength, 1e-9)
	assert.Equal(t, 2, tr.Frequency)
	assert.Equal(t, 1, tr.AccessCount)
	assert.Equal(t, t0.Add(time.Hour), tr.LastAccessed)
	assert.Equal(t, tr, res.Traces[0].Trace)
	assert.Equal(t, 1, h.rec.Count(events.TraceStrengthened))

	untouched := h.trace(t, other)
	assert.Equal(t, 50.0, untouched.Strength)
	assert.Equal(t, 0, untouched.AccessCount)
}

func TestRetrieve_NoCandidateIsEmptyNotError(t *testing.T) {
	h := testEngine(t, nil)
	h.put(t, basis(0))

	res, err := h.Retrieve(context.Background(), Query{Vector: basis(1)})
	require.NoError(t, err)
	assert.Empty(t, res.Traces)
	assert.Zero(t, res.Confidence)
	assert.Zero(t, h.rec.Count(events.TraceStrengthened))
}

func TestRetrieve_TagGlobsAreAllRequired(t *testing.T) {
	h := testEngine(t, nil)
	prod := h.put(t, basis(0), "deploy/prod", "urgent")
	staging := h.put(t, basis(0), "deploy/staging")
	h.put(t, basis(0), "build")
	ctx := context.Background()

	res, err := h.Retrieve(ctx, Query{Vector: basis(0), Tags: []string{"deploy/*"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{prod, staging}, ids(res.Traces))

	res, err = h.Retrieve(ctx, Query{Vector: basis(0), Tags: []string{"deploy/*", "urgent"}})
	require.NoError(t, err)
	assert.Equal(t, []string{prod}, ids(res.Traces))

	_, err = h.Retrieve(ctx, Query{Vector: basis(0), Tags: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestRetrieve_TimeWindow(t *testing.T) {
	h := testEngine(t, nil)
	early := h.put(t, basis(0))
	h.clock.advance(2 * day)
	late := h.put(t, basis(0))
	ctx := context.Background()
	mid := t0.Add(day)

	res, err := h.Retrieve(ctx, Query{Vector: basis(0), Since: mid})
	require.NoError(t, err)
	assert.Equal(t, []string{late}, ids(res.Traces))

	res, err = h.Retrieve(ctx, Query{Vector: basis(0), Until: mid})
	require.NoError(t, err)
	assert.Equal(t, []string{early}, ids(res.Traces))
}

func TestRetrieve_Limit(t *testing.T) {
	h := testEngine(t, roomy)
	for i := 0; i < 25; i++ {
		h.put(t, basis(0))
	}
	ctx := context.Background()

	res, err := h.Retrieve(ctx, Query{Vector: basis(0), Limit: 3})
	require.NoError(t, err)
	assert.Len(t, res.Traces, 3)

	res, err = h.Retrieve(ctx, Query{Vector: basis(0)})
	require.NoError(t, err)
	assert.Len(t, res.Traces, 20)
}

func TestRetrieve_Confidence(t *testing.T) {
	h := testEngine(t, nil)
	h.put(t, basis(0))

	res, err := h.Retrieve(context.Background(), Query{Vector: basis(0)})
	require.NoError(t, err)
	// strength 50 measured before strengthening, accessed just now
	assert.InDelta(t, 0.6*0.5+0.4*1, res.Confidence, 1e-9)
}

func TestRetrieve_AssociationPaths(t *testing.T) {
	h := testEngine(t, nil)
	mix := make([]float64, dims)
	mix[0], mix[1] = 1/math.Sqrt2, 1/math.Sqrt2
	a := h.put(t, basis(0))
	b := h.put(t, mix)
	c := h.put(t, basis(1))

	res, err := h.Retrieve(context.Background(), Query{Vector: basis(0), Limit: 1, AssociationDepth: 2})
	require.NoError(t, err)
	require.Equal(t, []string{a}, ids(res.Traces))
	assert.Equal(t, []Path{
		{From: a, To: b, Hops: []string{a, b}},
		{From: a, To: c, Hops: []string{a, b, c}},
	}, res.AssociationPaths)
}

func TestRetrieve_RejectsBadQueries(t *testing.T) {
	h := testEngine(t, nil)
	ctx := context.Background()

	_, err := h.Retrieve(ctx, Query{})
	assert.True(t, errors.Is(err, memory.ErrInvalidVector))

	_, err = h.Retrieve(ctx, Query{Vector: []float64{1}})
	assert.True(t, errors.Is(err, memory.ErrInvalidVector))
}
