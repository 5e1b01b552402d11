package engine

import (
	"log"
	"sort"
	"time"

	"github.com/lazypower/tiermem/internal/events"
	"github.com/lazypower/tiermem/internal/eviction"
	"github.com/lazypower/tiermem/internal/memory"
)

// enforceAll brings every tier back within capacity, lowest tier first so
// promotions out of an overflowing tier are checked against the next one,
// then applies the global cap.
func (e *Engine) enforceAll(now time.Time, r *TickReport) {
	for _, tier := range memory.Tiers {
		e.enforce(tier, now, r)
	}
	e.enforceTotal(now, r)
}

func (e *Engine) enforce(tier memory.Tier, now time.Time, r *TickReport) {
	capacity := e.cfg.Capacity.For(tier)
	size := e.store.TierLen(tier)
	target := eviction.Target(size, capacity, e.pressure)
	if target == 0 {
		return
	}

	if overflow := size - capacity; overflow > 0 && tier != memory.Permanent {
		promoted := e.relieve(tier, overflow, now, r)
		target -= promoted
	}
	if target <= 0 {
		return
	}

	for _, v := range e.evict.Select(e.store, tier, target, now) {
		t, _ := e.store.Get(v.ID)
		e.removeTrace(t, v.Reason, now, r)
		r.Evicted++
	}

	if left := e.store.TierLen(tier); left > capacity {
		log.Printf("evict: %s holds %d over capacity %d, remaining traces are protected: %v",
			tier, left, capacity, memory.ErrCapacityExhausted)
		r.Exhausted = append(r.Exhausted, tier.String())
	}
}

// relieve promotes up to n traces out of tier, least recently used first,
// choosing only traces whose strength already earns a higher tier. Returns
// how many traces left the tier.
func (e *Engine) relieve(tier memory.Tier, n int, now time.Time, r *TickReport) int {
	var candidates []*memory.Trace
	collect := func(t *memory.Trace) bool {
		if e.earned(t) > tier {
			candidates = append(candidates, t)
		}
		return len(candidates) < n
	}

	if tier.Indexed() {
		e.store.Recency(tier).Oldest(func(id string) bool {
			t, _ := e.store.Get(id)
			return collect(t)
		})
	} else {
		ts := e.store.SnapshotTier(tier)
		sort.SliceStable(ts, func(i, j int) bool {
			return ts[i].LastAccessed.Before(ts[j].LastAccessed)
		})
		for _, t := range ts {
			if !collect(t) {
				break
			}
		}
	}

	for _, t := range candidates {
		r.Promoted += e.promote(t, e.earned(t), now)
	}
	return len(candidates)
}

// enforceTotal evicts across all tiers when the store exceeds the global cap.
func (e *Engine) enforceTotal(now time.Time, r *TickReport) {
	over := e.store.Len() - e.cfg.TotalCapacity
	if over <= 0 {
		return
	}
	victims := e.evict.Rank(e.store.All(), over, now)
	for _, v := range victims {
		t, _ := e.store.Get(v.ID)
		e.removeTrace(t, eviction.CapacityLimit, now, r)
		r.Evicted++
	}
	if len(victims) < over {
		log.Printf("evict: store holds %d over total capacity %d: %v",
			e.store.Len(), e.cfg.TotalCapacity, memory.ErrCapacityExhausted)
		r.Exhausted = append(r.Exhausted, "total")
	}
}

// removeTrace deletes t, counts the reason, emits trace.evicted and queues
// a log record.
func (e *Engine) removeTrace(t *memory.Trace, reason eviction.Reason, now time.Time, r *TickReport) {
	e.store.Remove(t.ID)
	e.evictions[reason]++
	e.publish(events.TraceEvicted, t, now, string(reason))
	r.records = append(r.records, eviction.Record{
		TraceID:  t.ID,
		Tier:     t.Tier.String(),
		Reason:   reason,
		Strength: t.Strength,
		At:       now,
	})
}
