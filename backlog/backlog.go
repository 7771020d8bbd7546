// Package backlog buffers operations whose dependencies have not yet been
// observed by this replica, and replays them once the dependency arrives.
//
// It is used by text (an insertion whose origin byte hasn't arrived yet),
// tree (a Create/Move whose target or destination parent is unknown), and
// content (a text/binary edit for a file that hasn't been created yet).
package backlog

import (
	"log"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultCapacity is the default maximum number of distinct pending
// dependency groups held per backlog, per SPEC_FULL.md's backlog overflow
// policy. Hosts with more peers or a higher expected outstanding-op count
// should scale this up.
const DefaultCapacity = 4096

// Backlog holds, for each dependency of type K not yet observed, the
// ordered list of continuations waiting on it.
type Backlog[K comparable] struct {
	pending *lru.Cache
	name    string
}

// New creates a Backlog with DefaultCapacity. name is used only in the
// diagnostic logged on overflow, to identify which backlog (text, tree,
// content, ...) dropped ops.
func New[K comparable](name string) *Backlog[K] {
	return NewWithCapacity[K](name, DefaultCapacity)
}

// NewWithCapacity creates a Backlog bounded at capacity distinct pending
// dependency groups. When a new dependency would exceed capacity, the
// least-recently-enqueued group is evicted and its ops are permanently
// dropped, per the "fatal for the op" propagation policy.
func NewWithCapacity[K comparable](name string, capacity int) *Backlog[K] {
	b := &Backlog[K]{name: name}
	b.pending, _ = lru.NewWithEvict(capacity, func(key, value interface{}) {
		conts := value.([]func())
		log.Printf("backlog[%s]: evicted dependency group %v with %d pending op(s)", b.name, key, len(conts))
	})
	return b
}

// Enqueue stores a continuation to run once dependency has been observed.
func (b *Backlog[K]) Enqueue(dependency K, continuation func()) {
	var conts []func()
	if v, ok := b.pending.Get(dependency); ok {
		conts = v.([]func())
	}
	conts = append(conts, continuation)
	b.pending.Add(dependency, conts)
}

// Take atomically removes and returns every continuation waiting on
// dependency, in enqueue order, which for ops from a single peer equals
// causal order.
func (b *Backlog[K]) Take(dependency K) []func() {
	v, ok := b.pending.Peek(dependency)
	if !ok {
		return nil
	}
	b.pending.Remove(dependency)
	return v.([]func())
}

// Len reports the number of distinct pending dependency groups.
func (b *Backlog[K]) Len() int {
	return b.pending.Len()
}
