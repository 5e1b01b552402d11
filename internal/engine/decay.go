package engine

import (
	"time"

	"github.com/lazypower/tiermem/internal/memory"
)

// decay lowers t's strength by its rate for the time since it was last
// accessed or last decayed, whichever is later, so consecutive ticks never
// charge the same interval twice. Returns whether strength changed.
func (e *Engine) decay(t *memory.Trace, now time.Time) bool {
	from := t.LastAccessed
	if t.DecayedAt.After(from) {
		from = t.DecayedAt
	}
	elapsed := now.Sub(from)
	if elapsed <= 0 {
		return false
	}
	t.DecayedAt = now
	if t.DecayRate <= 0 || t.Strength == memory.MinStrength {
		return false
	}
	days := elapsed.Hours() / 24
	before := t.Strength
	t.SetStrength(t.Strength - t.DecayRate*days)
	return t.Strength != before
}

func (e *Engine) decayAll(now time.Time, r *TickReport) {
	for _, tier := range memory.Tiers {
		for t := range e.store.InTier(tier) {
			if e.decay(t, now) {
				r.Decayed++
			}
		}
	}
}
