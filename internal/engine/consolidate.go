package engine

import (
	"time"

	"github.com/lazypower/tiermem/internal/events"
	"github.com/lazypower/tiermem/internal/eviction"
	"github.com/lazypower/tiermem/internal/memory"
)

// earned returns the tier t's strength justifies.
func (e *Engine) earned(t *memory.Trace) memory.Tier {
	return e.cfg.Thresholds.Earned(t.Strength)
}

// consolidateAll moves every trace to the tier its strength earns and
// deletes working traces that fell below the hard floor.
func (e *Engine) consolidateAll(now time.Time, r *TickReport) {
	for _, t := range e.store.All() {
		earned := e.earned(t)
		switch {
		case earned > t.Tier:
			r.Promoted += e.promote(t, earned, now)
		case earned < t.Tier:
			e.demote(t, earned, now)
			r.Demoted++
		}
		if t.Tier == memory.Working && t.Strength < e.cfg.HardFloor {
			e.removeTrace(t, eviction.DecayThreshold, now, r)
			r.Deleted++
		}
	}
}

// promote walks t up one tier at a time until it reaches target, emitting
// one event per step. Returns the number of steps.
func (e *Engine) promote(t *memory.Trace, target memory.Tier, now time.Time) int {
	steps := 0
	for t.Tier < target {
		e.transition(t, t.Tier.Next(), now)
		e.publishMove(events.TracePromoted, t, t.Tier-1, now)
		steps++
	}
	return steps
}

// demote moves t straight down to target.
func (e *Engine) demote(t *memory.Trace, target memory.Tier, now time.Time) {
	from := t.Tier
	e.transition(t, target, now)
	e.publishMove(events.TraceDemoted, t, from, now)
}

// transition changes tier and rescales the decay rate by the ratio of the
// tier multipliers.
func (e *Engine) transition(t *memory.Trace, to memory.Tier, now time.Time) {
	from := t.Tier
	t.DecayRate *= e.cfg.DecayMultiplier.For(to) / e.cfg.DecayMultiplier.For(from)
	e.store.Move(t.ID, to, now)
}
