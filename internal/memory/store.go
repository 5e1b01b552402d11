package memory

import (
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/lazypower/tiermem/internal/index"
)

// Store is the canonical map of trace id to trace record.
// It is not safe for concurrent use; the engine serialises access.
type Store struct {
	traces map[string]*Trace
	tiers  map[Tier]map[string]struct{}
	lru    map[Tier]*index.RecencyIndex
	lfu    map[Tier]*index.FrequencyIndex
}

// NewStore creates an empty store with indices for the indexed tiers.
func NewStore() *Store {
	s := &Store{
		traces: make(map[string]*Trace),
		tiers:  make(map[Tier]map[string]struct{}),
		lru:    make(map[Tier]*index.RecencyIndex),
		lfu:    make(map[Tier]*index.FrequencyIndex),
	}
	for _, t := range Tiers {
		s.tiers[t] = make(map[string]struct{})
		if t.Indexed() {
			s.lru[t] = index.NewRecencyIndex()
			s.lfu[t] = index.NewFrequencyIndex()
		}
	}
	return s
}

// Put inserts or overwrites a trace. Associations on the new record are made
// symmetric; edges to unknown ids are dropped, and edges the old record had
// but the new one lacks are removed from the other side.
func (s *Store) Put(t *Trace) {
	if old, ok := s.traces[t.ID]; ok {
		s.unindex(old)
		for other := range old.Associations {
			if _, keep := t.Associations[other]; !keep {
				if o, ok := s.traces[other]; ok {
					delete(o.Associations, t.ID)
				}
			}
		}
	}

	s.traces[t.ID] = t
	s.tiers[t.Tier][t.ID] = struct{}{}
	s.index(t)

	for other, w := range t.Associations {
		o, ok := s.traces[other]
		if !ok || other == t.ID {
			delete(t.Associations, other)
			continue
		}
		if o.Associations == nil {
			o.Associations = make(map[string]float64)
		}
		o.Associations[t.ID] = w
	}
}

// Get returns the live record for id.
func (s *Store) Get(id string) (*Trace, bool) {
	t, ok := s.traces[id]
	return t, ok
}

// Remove deletes id, its index entries and every association pointing at it.
func (s *Store) Remove(id string) bool {
	t, ok := s.traces[id]
	if !ok {
		return false
	}
	s.unindex(t)
	for other := range t.Associations {
		if o, ok := s.traces[other]; ok {
			delete(o.Associations, id)
		}
	}
	delete(s.traces, id)
	return true
}

// Move changes the tier of id, updating tier membership and indices.
func (s *Store) Move(id string, to Tier, at time.Time) bool {
	t, ok := s.traces[id]
	if !ok {
		return false
	}
	if t.Tier == to {
		return true
	}
	s.unindex(t)
	t.Tier = to
	t.TierEnteredAt = at
	s.tiers[to][id] = struct{}{}
	s.index(t)
	return true
}

// Access records a hit on id: frequency and access count go up, the access
// time moves to at, and the tier's indices are touched.
func (s *Store) Access(id string, at time.Time) bool {
	t, ok := s.traces[id]
	if !ok {
		return false
	}
	t.Frequency++
	t.AccessCount++
	t.LastAccessed = at
	if t.Tier.Indexed() {
		s.lru[t.Tier].Touch(id, at)
		s.lfu[t.Tier].Touch(id, at)
	}
	return true
}

// Link creates a symmetric association between a and b.
func (s *Store) Link(a, b string, w float64) bool {
	if a == b {
		return false
	}
	ta, ok := s.traces[a]
	if !ok {
		return false
	}
	tb, ok := s.traces[b]
	if !ok {
		return false
	}
	if ta.Associations == nil {
		ta.Associations = make(map[string]float64)
	}
	if tb.Associations == nil {
		tb.Associations = make(map[string]float64)
	}
	ta.Associations[b] = w
	tb.Associations[a] = w
	return true
}

// InTier yields the traces of one tier. The sequence is lazy and must not be
// consumed across mutations of the store; use SnapshotTier for that.
func (s *Store) InTier(tier Tier) iter.Seq[*Trace] {
	return func(yield func(*Trace) bool) {
		for id := range s.tiers[tier] {
			if !yield(s.traces[id]) {
				return
			}
		}
	}
}

// SnapshotTier returns the traces of one tier ordered by creation time.
func (s *Store) SnapshotTier(tier Tier) []*Trace {
	out := make([]*Trace, 0, len(s.tiers[tier]))
	for t := range s.InTier(tier) {
		out = append(out, t)
	}
	sortByCreation(out)
	return out
}

// All returns every trace ordered by creation time.
func (s *Store) All() []*Trace {
	out := make([]*Trace, 0, len(s.traces))
	for _, t := range s.traces {
		out = append(out, t)
	}
	sortByCreation(out)
	return out
}

// Len returns the number of stored traces.
func (s *Store) Len() int { return len(s.traces) }

// TierLen returns the number of traces in tier.
func (s *Store) TierLen(tier Tier) int { return len(s.tiers[tier]) }

// Recency returns the LRU index of an indexed tier, nil otherwise.
func (s *Store) Recency(tier Tier) *index.RecencyIndex { return s.lru[tier] }

// Frequency returns the LFU index of an indexed tier, nil otherwise.
func (s *Store) Frequency(tier Tier) *index.FrequencyIndex { return s.lfu[tier] }

// AssociationCount returns the number of undirected edges.
func (s *Store) AssociationCount() int {
	n := 0
	for _, t := range s.traces {
		n += len(t.Associations)
	}
	return n / 2
}

// CheckInvariants verifies tier membership, index membership, strength
// bounds and association symmetry.
func (s *Store) CheckInvariants() error {
	members := 0
	for tier, ids := range s.tiers {
		members += len(ids)
		for id := range ids {
			t, ok := s.traces[id]
			if !ok {
				return fmt.Errorf("tier %s lists unknown trace %s", tier, id)
			}
			if t.Tier != tier {
				return fmt.Errorf("trace %s listed in %s but has tier %s", id, tier, t.Tier)
			}
		}
	}
	if members != len(s.traces) {
		return fmt.Errorf("tier membership %d, traces %d", members, len(s.traces))
	}

	for tier, lru := range s.lru {
		lfu := s.lfu[tier]
		if lru.Len() != len(s.tiers[tier]) || lfu.Len() != len(s.tiers[tier]) {
			return fmt.Errorf("tier %s has %d traces, lru %d, lfu %d",
				tier, len(s.tiers[tier]), lru.Len(), lfu.Len())
		}
		for id := range s.tiers[tier] {
			if !lru.Contains(id) || !lfu.Contains(id) {
				return fmt.Errorf("trace %s missing from %s indices", id, tier)
			}
		}
	}

	for id, t := range s.traces {
		if t.Strength < MinStrength || t.Strength > MaxStrength {
			return fmt.Errorf("trace %s strength %f out of bounds", id, t.Strength)
		}
		for other, w := range t.Associations {
			o, ok := s.traces[other]
			if !ok {
				return fmt.Errorf("trace %s associates with unknown %s", id, other)
			}
			if o.Associations[id] != w {
				return fmt.Errorf("association %s-%s is asymmetric", id, other)
			}
		}
	}
	return nil
}

func (s *Store) index(t *Trace) {
	if !t.Tier.Indexed() {
		return
	}
	s.lru[t.Tier].Insert(t.ID, t.LastAccessed)
	s.lfu[t.Tier].Insert(t.ID, t.Frequency, t.LastAccessed)
}

func (s *Store) unindex(t *Trace) {
	delete(s.tiers[t.Tier], t.ID)
	if t.Tier.Indexed() {
		s.lru[t.Tier].Remove(t.ID)
		s.lfu[t.Tier].Remove(t.ID)
	}
}

func sortByCreation(ts []*Trace) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].CreatedAt.Before(ts[j].CreatedAt)
		}
		return ts[i].ID < ts[j].ID
	})
}
