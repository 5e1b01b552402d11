package eviction

import (
	"sort"
	"time"

	"github.com/lazypower/tiermem/internal/config"
	"github.com/lazypower/tiermem/internal/memory"
)

// Victim is a trace nominated for removal.
type Victim struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Reason Reason  `json:"reason"`
}

// Engine scores traces under one policy and nominates victims.
type Engine struct {
	policy  Policy
	weights config.Weights
	trend   int
	rules   []Rule
}

// New builds an eviction engine from configuration.
func New(cfg config.EvictionConfig) (*Engine, error) {
	p, err := ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	trend := cfg.TrendWindow
	if trend < 2 {
		trend = 5
	}
	return &Engine{
		policy:  p,
		weights: cfg.Weights,
		trend:   trend,
		rules:   DefaultRules(cfg),
	}, nil
}

// Policy returns the active policy.
func (e *Engine) Policy() Policy { return e.policy }

// AddRule installs an extra protection rule, keeping priority order.
func (e *Engine) AddRule(r Rule) {
	e.rules = append(e.rules, r)
	sortRules(e.rules)
}

// Protected returns the highest-priority rule matching t, if any.
func (e *Engine) Protected(t *memory.Trace, now time.Time) (Rule, bool) {
	for _, r := range e.rules {
		if r.Match(t, now) {
			return r, true
		}
	}
	return Rule{}, false
}

// Score returns how evictable t is under the active policy. Higher scores
// are evicted first.
func (e *Engine) Score(t *memory.Trace, now time.Time) float64 {
	return e.score(t, TermsFor(t, now))
}

func (e *Engine) score(t *memory.Trace, terms Terms) float64 {
	switch e.policy {
	case LRU:
		return terms.Recency
	case LFU:
		return terms.Frequency
	case Strength:
		return terms.Strength
	}
	w := e.weights
	s := w.Strength*terms.Strength +
		w.Recency*terms.Recency +
		w.Frequency*terms.Frequency +
		w.Emotional*terms.Emotional +
		w.Contextual*terms.Contextual
	if e.policy == Adaptive {
		if t.Declining(e.trend) {
			s += 0.2
		} else {
			s -= 0.1
		}
	}
	return s
}

// reason names the term that contributed most to the score. Emotional and
// contextual dominance, or a zero score, report capacity_limit.
func (e *Engine) reason(terms Terms) Reason {
	switch e.policy {
	case LRU:
		return OldAccess
	case LFU:
		return LowFrequency
	case Strength:
		return LowStrength
	}
	w := e.weights
	best, reason := 0.0, CapacityLimit
	for _, c := range []struct {
		v float64
		r Reason
	}{
		{w.Strength * terms.Strength, LowStrength},
		{w.Recency * terms.Recency, OldAccess},
		{w.Frequency * terms.Frequency, LowFrequency},
	} {
		if c.v > best {
			best, reason = c.v, c.r
		}
	}
	if w.Emotional*terms.Emotional > best || w.Contextual*terms.Contextual > best {
		return CapacityLimit
	}
	return reason
}

// Select nominates up to n unprotected victims from tier. On the indexed
// tiers the LRU and LFU policies walk the indices; everything else ranks
// the tier by score.
func (e *Engine) Select(s *memory.Store, tier memory.Tier, n int, now time.Time) []Victim {
	if n <= 0 {
		return nil
	}
	if tier.Indexed() {
		switch e.policy {
		case LRU:
			var out []Victim
			s.Recency(tier).Oldest(func(id string) bool {
				if v, ok := e.nominate(s, id, now); ok {
					out = append(out, v)
				}
				return len(out) < n
			})
			return out
		case LFU:
			var out []Victim
			s.Frequency(tier).Ascending(func(id string, _ int) bool {
				if v, ok := e.nominate(s, id, now); ok {
					out = append(out, v)
				}
				return len(out) < n
			})
			return out
		}
	}
	return e.Rank(s.SnapshotTier(tier), n, now)
}

func (e *Engine) nominate(s *memory.Store, id string, now time.Time) (Victim, bool) {
	t, ok := s.Get(id)
	if !ok {
		panic("eviction: index references unknown trace " + id)
	}
	if _, protected := e.Protected(t, now); protected {
		return Victim{}, false
	}
	terms := TermsFor(t, now)
	return Victim{ID: id, Score: e.score(t, terms), Reason: e.reason(terms)}, true
}

// Rank scores the unprotected traces and returns the n most evictable.
// Ties go to the least recently accessed, then to the smaller id.
func (e *Engine) Rank(traces []*memory.Trace, n int, now time.Time) []Victim {
	if n <= 0 {
		return nil
	}
	type ranked struct {
		Victim
		last time.Time
	}
	var pool []ranked
	for _, t := range traces {
		if _, protected := e.Protected(t, now); protected {
			continue
		}
		terms := TermsFor(t, now)
		pool = append(pool, ranked{
			Victim: Victim{ID: t.ID, Score: e.score(t, terms), Reason: e.reason(terms)},
			last:   t.LastAccessed,
		})
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Score != pool[j].Score {
			return pool[i].Score > pool[j].Score
		}
		if !pool[i].last.Equal(pool[j].last) {
			return pool[i].last.Before(pool[j].last)
		}
		return pool[i].ID < pool[j].ID
	})
	if len(pool) > n {
		pool = pool[:n]
	}
	out := make([]Victim, len(pool))
	for i, r := range pool {
		out[i] = r.Victim
	}
	return out
}
