package engine

import (
	"time"

	"github.com/lazypower/tiermem/internal/eviction"
	"github.com/lazypower/tiermem/internal/memory"
)

// TierStats describes one tier.
type TierStats struct {
	Count           int     `json:"count"`
	Capacity        int     `json:"capacity"`
	AverageStrength float64 `json:"average_strength"`
	RecencySize     int     `json:"recency_index_size"`
	FrequencySize   int     `json:"frequency_index_size"`
	MinFrequency    int     `json:"min_frequency"`
}

// Stats is a read-only view of the store.
type Stats struct {
	Tiers         map[string]TierStats `json:"tiers"`
	Total         int                  `json:"total"`
	TotalCapacity int                  `json:"total_capacity"`
	Associations  int                  `json:"associations"`
	Evictions     map[string]int       `json:"evictions"`
	Ticks         int                  `json:"ticks"`
	LastTick      time.Time            `json:"last_tick,omitzero"`
	Policy        string               `json:"policy"`
	Pressure      string               `json:"pressure"`
}

// Stats copies counters out under the lock. It never mutates state.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		Tiers:         make(map[string]TierStats, len(memory.Tiers)),
		Total:         e.store.Len(),
		TotalCapacity: e.cfg.TotalCapacity,
		Associations:  e.store.AssociationCount(),
		Evictions:     make(map[string]int, len(eviction.Reasons)),
		Ticks:         e.ticks,
		LastTick:      e.lastTick,
		Policy:        string(e.evict.Policy()),
		Pressure:      e.pressure.String(),
	}
	for _, tier := range memory.Tiers {
		ts := TierStats{
			Count:    e.store.TierLen(tier),
			Capacity: e.cfg.Capacity.For(tier),
		}
		var sum float64
		for t := range e.store.InTier(tier) {
			sum += t.Strength
		}
		if ts.Count > 0 {
			ts.AverageStrength = sum / float64(ts.Count)
		}
		if tier.Indexed() {
			ts.RecencySize = e.store.Recency(tier).Len()
			ts.FrequencySize = e.store.Frequency(tier).Len()
			ts.MinFrequency = e.store.Frequency(tier).MinFrequency()
		}
		s.Tiers[tier.String()] = ts
	}
	for _, reason := range eviction.Reasons {
		s.Evictions[string(reason)] = e.evictions[reason]
	}
	return s
}
