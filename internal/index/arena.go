// Package index provides the auxiliary eviction indices for the working and
// short-term tiers: an LRU recency list and an LFU frequency-bucket structure.
//
// Both are built on an arena of nodes addressed by slot number with explicit
// prev/next slots instead of pointers. Freed slots are recycled, so steady-state
// churn does not allocate.
package index

import "time"

const nilSlot = -1

type node struct {
	id   string
	at   time.Time // last access
	seq  uint64    // index insertion order, kept across moves
	prev int
	next int
}

type arena struct {
	nodes []node
	free  []int
}

func (a *arena) alloc(id string, at time.Time, seq uint64) int {
	n := node{id: id, at: at, seq: seq, prev: nilSlot, next: nilSlot}
	if k := len(a.free); k > 0 {
		i := a.free[k-1]
		a.free = a.free[:k-1]
		a.nodes[i] = n
		return i
	}
	a.nodes = append(a.nodes, n)
	return len(a.nodes) - 1
}

func (a *arena) release(i int) {
	a.nodes[i] = node{prev: nilSlot, next: nilSlot}
	a.free = append(a.free, i)
}

// chain is one doubly linked list threaded through the arena.
// head is the newest entry, tail the oldest.
type chain struct {
	head int
	tail int
	size int
}

func newChain() *chain {
	return &chain{head: nilSlot, tail: nilSlot}
}

func (a *arena) unlink(c *chain, i int) {
	n := &a.nodes[i]
	if n.prev != nilSlot {
		a.nodes[n.prev].next = n.next
	} else {
		if c.head != i {
			panic("index: unlink of node that is not in chain")
		}
		c.head = n.next
	}
	if n.next != nilSlot {
		a.nodes[n.next].prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nilSlot, nilSlot
	c.size--
}

// insertBefore links i in front of slot before; nilSlot appends at the tail.
func (a *arena) insertBefore(c *chain, i, before int) {
	n := &a.nodes[i]
	if before == nilSlot {
		n.prev = c.tail
		n.next = nilSlot
		if c.tail != nilSlot {
			a.nodes[c.tail].next = i
		} else {
			c.head = i
		}
		c.tail = i
		c.size++
		return
	}

	b := &a.nodes[before]
	n.prev = b.prev
	n.next = before
	if b.prev != nilSlot {
		a.nodes[b.prev].next = i
	} else {
		c.head = i
	}
	b.prev = i
	c.size++
}

func (a *arena) pushFront(c *chain, i int) {
	a.insertBefore(c, i, c.head)
}

// insertOrdered places i so the chain stays sorted newest-first by access
// time, ties broken by insertion order. Under a monotonic clock the loop
// exits immediately and this is a plain push to the front.
func (a *arena) insertOrdered(c *chain, i int) {
	cur := c.head
	for cur != nilSlot && a.newer(cur, i) {
		cur = a.nodes[cur].next
	}
	a.insertBefore(c, i, cur)
}

func (a *arena) newer(x, y int) bool {
	nx, ny := &a.nodes[x], &a.nodes[y]
	if !nx.at.Equal(ny.at) {
		return nx.at.After(ny.at)
	}
	return nx.seq > ny.seq
}
