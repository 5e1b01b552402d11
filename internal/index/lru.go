package index

import "time"

// RecencyIndex orders trace ids most-recently-used first.
type RecencyIndex struct {
	arena
	slots map[string]int
	list  *chain
	seq   uint64
}

// NewRecencyIndex returns an empty LRU index.
func NewRecencyIndex() *RecencyIndex {
	return &RecencyIndex{
		slots: make(map[string]int),
		list:  newChain(),
	}
}

// Insert adds id with its last access time, keeping the list ordered by
// access time. Inserting a known id moves it as Touch would.
func (r *RecencyIndex) Insert(id string, at time.Time) {
	if _, ok := r.slots[id]; ok {
		r.Touch(id, at)
		return
	}
	r.seq++
	i := r.alloc(id, at, r.seq)
	r.slots[id] = i
	r.insertOrdered(r.list, i)
}

// Touch marks id as most recently used. Returns false for unknown ids.
func (r *RecencyIndex) Touch(id string, at time.Time) bool {
	i, ok := r.slots[id]
	if !ok {
		return false
	}
	r.nodes[i].at = at
	if r.list.head == i {
		return true
	}
	r.unlink(r.list, i)
	r.pushFront(r.list, i)
	return true
}

// Remove drops id from the index.
func (r *RecencyIndex) Remove(id string) bool {
	i, ok := r.slots[id]
	if !ok {
		return false
	}
	r.unlink(r.list, i)
	r.release(i)
	delete(r.slots, id)
	return true
}

// Victim returns the least recently used id without removing it.
func (r *RecencyIndex) Victim() (string, bool) {
	if r.list.tail == nilSlot {
		return "", false
	}
	return r.nodes[r.list.tail].id, true
}

// Oldest walks ids from least to most recently used until fn returns false.
func (r *RecencyIndex) Oldest(fn func(id string) bool) {
	for cur := r.list.tail; cur != nilSlot; {
		prev := r.nodes[cur].prev
		if !fn(r.nodes[cur].id) {
			return
		}
		cur = prev
	}
}

// IDs returns all ids, most recently used first.
func (r *RecencyIndex) IDs() []string {
	ids := make([]string, 0, r.list.size)
	for cur := r.list.head; cur != nilSlot; cur = r.nodes[cur].next {
		ids = append(ids, r.nodes[cur].id)
	}
	return ids
}

// Contains reports whether id is indexed.
func (r *RecencyIndex) Contains(id string) bool {
	_, ok := r.slots[id]
	return ok
}

// Len returns the number of indexed ids.
func (r *RecencyIndex) Len() int {
	return r.list.size
}
