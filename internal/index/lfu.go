package index

import (
	"sort"
	"time"
)

// FrequencyIndex groups trace ids into buckets by access count. Each bucket is
// a list ordered by last access, so the victim of the minimum bucket is its tail.
type FrequencyIndex struct {
	arena
	slots   map[string]int
	freq    map[string]int
	buckets map[int]*chain
	minFreq int
	seq     uint64
}

// NewFrequencyIndex returns an empty LFU index.
func NewFrequencyIndex() *FrequencyIndex {
	return &FrequencyIndex{
		slots:   make(map[string]int),
		freq:    make(map[string]int),
		buckets: make(map[int]*chain),
	}
}

// Insert adds id at the given access count. Counts below 1 are stored as 1.
// Re-inserting a known id replaces its count and access time.
func (f *FrequencyIndex) Insert(id string, freq int, at time.Time) {
	if freq < 1 {
		freq = 1
	}
	seq := uint64(0)
	if i, ok := f.slots[id]; ok {
		seq = f.nodes[i].seq
		f.Remove(id)
	} else {
		f.seq++
		seq = f.seq
	}

	i := f.alloc(id, at, seq)
	f.slots[id] = i
	f.freq[id] = freq
	f.insertOrdered(f.bucket(freq), i)
	if len(f.slots) == 1 || freq < f.minFreq {
		f.minFreq = freq
	}
}

// Touch moves id from its bucket to bucket+1. Returns false for unknown ids.
func (f *FrequencyIndex) Touch(id string, at time.Time) bool {
	i, ok := f.slots[id]
	if !ok {
		return false
	}
	old := f.freq[id]
	b := f.buckets[old]
	f.unlink(b, i)
	if b.size == 0 {
		delete(f.buckets, old)
		if f.minFreq == old {
			f.minFreq = old + 1
		}
	}

	f.nodes[i].at = at
	f.freq[id] = old + 1
	f.insertOrdered(f.bucket(old+1), i)
	return true
}

// Remove drops id from the index.
func (f *FrequencyIndex) Remove(id string) bool {
	i, ok := f.slots[id]
	if !ok {
		return false
	}
	fr := f.freq[id]
	b := f.buckets[fr]
	f.unlink(b, i)
	f.release(i)
	delete(f.slots, id)
	delete(f.freq, id)

	if b.size == 0 {
		delete(f.buckets, fr)
		if fr == f.minFreq {
			f.recomputeMin()
		}
	}
	return true
}

// recomputeMin rescans bucket keys. Only removal of the last id at the
// minimum count gets here; touches advance the minimum directly.
func (f *FrequencyIndex) recomputeMin() {
	f.minFreq = 0
	for fr := range f.buckets {
		if f.minFreq == 0 || fr < f.minFreq {
			f.minFreq = fr
		}
	}
}

// Victim returns the id with the lowest access count, oldest access first,
// without removing it.
func (f *FrequencyIndex) Victim() (string, bool) {
	b, ok := f.buckets[f.minFreq]
	if !ok || b.tail == nilSlot {
		return "", false
	}
	return f.nodes[b.tail].id, true
}

// Ascending walks ids from the lowest count upwards, oldest access first
// within a count, until fn returns false.
func (f *FrequencyIndex) Ascending(fn func(id string, freq int) bool) {
	counts := make([]int, 0, len(f.buckets))
	for fr := range f.buckets {
		counts = append(counts, fr)
	}
	sort.Ints(counts)

	for _, fr := range counts {
		b := f.buckets[fr]
		for cur := b.tail; cur != nilSlot; {
			prev := f.nodes[cur].prev
			if !fn(f.nodes[cur].id, fr) {
				return
			}
			cur = prev
		}
	}
}

// Frequency returns the recorded access count for id.
func (f *FrequencyIndex) Frequency(id string) (int, bool) {
	fr, ok := f.freq[id]
	return fr, ok
}

// MinFrequency returns the smallest access count present, 0 when empty.
func (f *FrequencyIndex) MinFrequency() int {
	if len(f.slots) == 0 {
		return 0
	}
	return f.minFreq
}

// Contains reports whether id is indexed.
func (f *FrequencyIndex) Contains(id string) bool {
	_, ok := f.slots[id]
	return ok
}

// Len returns the number of indexed ids.
func (f *FrequencyIndex) Len() int {
	return len(f.slots)
}

func (f *FrequencyIndex) bucket(freq int) *chain {
	b, ok := f.buckets[freq]
	if !ok {
		b = newChain()
		f.buckets[freq] = b
	}
	return b
}
