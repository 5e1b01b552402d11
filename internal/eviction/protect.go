package eviction

import (
	"math"
	"sort"
	"time"

	"github.com/lazypower/tiermem/internal/config"
	"github.com/lazypower/tiermem/internal/memory"
)

// Rule exempts matching traces from eviction for the current cycle.
type Rule struct {
	Name     string
	Priority int
	Match    func(t *memory.Trace, now time.Time) bool
}

// DefaultRules builds the standard protection rules from cfg, highest
// priority first.
func DefaultRules(cfg config.EvictionConfig) []Rule {
	rules := []Rule{
		{
			Name:     "permanent_tier",
			Priority: 100,
			Match: func(t *memory.Trace, _ time.Time) bool {
				return t.Tier == memory.Permanent
			},
		},
		{
			Name:     "high_strength",
			Priority: 90,
			Match: func(t *memory.Trace, _ time.Time) bool {
				return t.Strength >= cfg.ProtectionThreshold
			},
		},
		{
			Name:     "recent_access",
			Priority: 80,
			Match: func(t *memory.Trace, now time.Time) bool {
				return now.Sub(t.LastAccessed) < cfg.RecentWindow
			},
		},
		{
			Name:     "emotional_salience",
			Priority: 70,
			Match: func(t *memory.Trace, _ time.Time) bool {
				return math.Abs(t.EmotionalValence) > cfg.ValenceThreshold
			},
		},
		{
			Name:     "high_frequency",
			Priority: 60,
			Match: func(t *memory.Trace, _ time.Time) bool {
				return t.Frequency > cfg.FrequencyThreshold
			},
		},
	}
	sortRules(rules)
	return rules
}

func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
}
