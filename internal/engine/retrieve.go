package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/gobwas/glob"

	"github.com/lazypower/tiermem/internal/events"
	"github.com/lazypower/tiermem/internal/memory"
	"github.com/lazypower/tiermem/internal/vecmath"
)

// Query describes a retrieval. Either Vector or Text must be set. Every
// supplied filter narrows the candidate set.
type Query struct {
	Text             string    `json:"text,omitempty"`
	Vector           []float64 `json:"vector,omitempty"`
	Tags             []string  `json:"tags,omitempty"` // all required; each may be a glob
	MinStrength      float64   `json:"min_strength,omitempty"`
	Since            time.Time `json:"since,omitzero"`
	Until            time.Time `json:"until,omitzero"`
	AssociationDepth int       `json:"association_depth,omitempty"`
	Limit            int       `json:"limit,omitempty"`
}

// Match is one ranked trace. Trace reflects the record after retrieval
// strengthened it; Score and Similarity were computed before.
type Match struct {
	Trace      memory.Trace `json:"trace"`
	Score      float64      `json:"score"`
	Similarity float64      `json:"similarity"`
}

// Path is an association route from a returned trace. Hops includes both ends.
type Path struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Hops []string `json:"hops"`
}

// Result is the outcome of a retrieval.
type Result struct {
	Traces           []Match `json:"traces"`
	AssociationPaths []Path  `json:"association_paths,omitempty"`
	Confidence       float64 `json:"confidence"`
}

// Retrieve ranks traces against q and strengthens every returned trace.
// No match is an empty result with confidence 0, not an error.
func (e *Engine) Retrieve(ctx context.Context, q Query) (Result, error) {
	vec := q.Vector
	if vec == nil {
		if q.Text == "" {
			return Result{}, fmt.Errorf("%w: query has neither text nor vector", memory.ErrInvalidVector)
		}
		var err error
		if vec, err = e.resolve(ctx, q.Text); err != nil {
			return Result{}, err
		}
	}
	if err := vecmath.Validate(vec, e.cfg.Dimensions); err != nil {
		return Result{}, fmt.Errorf("%w: %v", memory.ErrInvalidVector, err)
	}
	patterns, err := compileTags(q.Tags)
	if err != nil {
		return Result{}, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = e.cfg.ResultLimit
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()

	type candidate struct {
		t     *memory.Trace
		score float64
		sim   float64
	}
	var cands []candidate
	for _, t := range e.store.All() {
		sim := vecmath.Cosine(vec, t.Vector)
		if sim <= e.cfg.CandidateThreshold {
			continue
		}
		if !matchesTags(t, patterns) || t.Strength < q.MinStrength {
			continue
		}
		if !q.Since.IsZero() && t.LastAccessed.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && t.LastAccessed.After(q.Until) {
			continue
		}
		score := 0.4*sim +
			0.3*(t.Strength/memory.MaxStrength) +
			0.2*recency(t, now) +
			0.1*math.Min(float64(t.Frequency)/10, 1)
		cands = append(cands, candidate{t: t, score: score, sim: sim})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].t.CreatedAt.After(cands[j].t.CreatedAt)
	})
	if len(cands) > limit {
		cands = cands[:limit]
	}

	var res Result
	if len(cands) == 0 {
		return res, nil
	}

	var sumStrength, sumRecency float64
	for _, c := range cands {
		sumStrength += c.t.Strength
		sumRecency += recency(c.t, now)
	}
	n := float64(len(cands))
	res.Confidence = 0.6*(sumStrength/n)/memory.MaxStrength + 0.4*(sumRecency/n)

	if q.AssociationDepth > 0 {
		for _, c := range cands {
			for _, hops := range e.reachable(c.t.ID, q.AssociationDepth) {
				res.AssociationPaths = append(res.AssociationPaths, Path{
					From: c.t.ID,
					To:   hops[len(hops)-1],
					Hops: hops,
				})
			}
		}
	}

	res.Traces = make([]Match, len(cands))
	for i, c := range cands {
		e.strengthen(c.t, now)
		res.Traces[i] = Match{Trace: c.t.Clone(), Score: c.score, Similarity: c.sim}
	}
	return res, nil
}

// strengthen applies the retrieval side effect: strength up by the
// configured factor, frequency and access count up, recency now.
func (e *Engine) strengthen(t *memory.Trace, now time.Time) {
	t.SetStrength(t.Strength * e.cfg.StrengthenFactor)
	e.store.Access(t.ID, now)
	e.publish(events.TraceStrengthened, t, now, "")
}

// recency is exp(-age in days) since last access.
func recency(t *memory.Trace, now time.Time) float64 {
	days := now.Sub(t.LastAccessed).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp(-days)
}

func compileTags(tags []string) ([]glob.Glob, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	out := make([]glob.Glob, 0, len(tags))
	for _, tag := range tags {
		g, err := glob.Compile(tag)
		if err != nil {
			return nil, fmt.Errorf("tag filter %q: %w", tag, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// matchesTags reports whether every pattern matches at least one tag.
func matchesTags(t *memory.Trace, patterns []glob.Glob) bool {
	for _, p := range patterns {
		found := false
		for _, tag := range t.Tags {
			if p.Match(tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
