// Package text implements a position-identifier sequence CRDT over bytes,
// used for the contents of text files and for the anchors that cursors and
// selections resolve against.
//
// The design is a replicated growable array (RGA): every inserted byte gets
// a globally unique, totally ordered id; deletions tombstone bytes rather
// than removing them, so an id (and therefore an Anchor built from one)
// stays valid for the lifetime of the document. Concurrent inserts at the
// same position are ordered by comparing ids, which gives every replica
// that has integrated the same ops an identical byte sequence.
package text

import (
	"github.com/opencollab/corefs/backlog"
	"github.com/opencollab/corefs/ids"
)

// ID identifies one inserted byte. Ids are ordered first by Clock (a
// per-peer Lamport counter), then by Peer, which gives a deterministic
// tie-break for concurrent inserts at the same position.
type ID struct {
	Clock uint64
	Peer  ids.PeerId
}

// Greater reports whether id sorts after other under the tie-break order.
func (id ID) Greater(other ID) bool {
	if id.Clock != other.Clock {
		return id.Clock > other.Clock
	}
	return id.Peer > other.Peer
}

// Zero is the id of the (virtual) document head: the position before the
// first byte.
var Zero ID

type node struct {
	id      ID
	origin  ID
	value   byte
	deleted bool
	next    *node
}

// Document is one replica's view of a text CRDT.
type Document struct {
	peer    ids.PeerId
	clock   uint64
	head    *node
	index   map[ID]*node
	backlog *backlog.Backlog[ID]
}

// New creates an empty Document for the given peer.
func New(peer ids.PeerId, bl *backlog.Backlog[ID]) *Document {
	return &Document{peer: peer, index: make(map[ID]*node), backlog: bl}
}

// Insertion is one inserted byte, carrying enough information for a remote
// replica to integrate it without further context.
type Insertion struct {
	ID     ID
	Origin ID
	Value  byte
}

// InsertionOp is the op broadcast for a local or remote insert of a run of
// bytes at a single position.
type InsertionOp struct {
	Bytes []Insertion
}

// DeletionOp is the op broadcast for a local or remote deletion of a
// (possibly non-contiguous, after concurrent edits) set of byte ids.
type DeletionOp struct {
	IDs []ID
}

// Len returns the number of visible bytes in the document.
func (d *Document) Len() int {
	n := 0
	for cur := d.head; cur != nil; cur = cur.next {
		if !cur.deleted {
			n++
		}
	}
	return n
}

// Bytes returns the document's current visible content.
func (d *Document) Bytes() []byte {
	out := make([]byte, 0, d.Len())
	for cur := d.head; cur != nil; cur = cur.next {
		if !cur.deleted {
			out = append(out, cur.value)
		}
	}
	return out
}

// Insert inserts text at localOffset (a visible-byte offset) and returns
// the op to broadcast. Local state is updated immediately.
func (d *Document) Insert(localOffset int, text []byte) InsertionOp {
	origin := d.visibleIDAt(localOffset)

	op := InsertionOp{Bytes: make([]Insertion, len(text))}
	for i, b := range text {
		d.clock++
		id := ID{Clock: d.clock, Peer: d.peer}
		op.Bytes[i] = Insertion{ID: id, Origin: origin, Value: b}
		d.integrateOne(id, origin, b)
		origin = id
	}
	return op
}

// DeleteRange tombstones the visible bytes in [start, end) and returns the
// op to broadcast.
func (d *Document) DeleteRange(start, end int) DeletionOp {
	var ids []ID
	i := 0
	for cur := d.head; cur != nil; cur = cur.next {
		if cur.deleted {
			continue
		}
		if i >= start && i < end {
			cur.deleted = true
			ids = append(ids, cur.id)
		}
		i++
	}
	return DeletionOp{IDs: ids}
}

// visibleIDAt returns the id of the visible byte immediately preceding
// offset, or Zero if offset is 0.
func (d *Document) visibleIDAt(offset int) ID {
	if offset == 0 {
		return Zero
	}
	i := 0
	for cur := d.head; cur != nil; cur = cur.next {
		if cur.deleted {
			continue
		}
		i++
		if i == offset {
			return cur.id
		}
	}
	return Zero
}

// Integrate applies a remote insertion op. It is idempotent under
// redelivery and commutes with concurrent ops. Bytes whose origin has not
// yet been observed are buffered in the backlog and replayed once their
// origin arrives.
func (d *Document) Integrate(op InsertionOp) {
	for _, ins := range op.Bytes {
		d.integrateInsertion(ins)
	}
}

func (d *Document) integrateInsertion(ins Insertion) {
	if _, ok := d.index[ins.ID]; ok {
		return // already integrated: P2 idempotence
	}
	if ins.Origin != Zero {
		if _, ok := d.index[ins.Origin]; !ok {
			d.backlog.Enqueue(ins.Origin, func() { d.integrateInsertion(ins) })
			return
		}
	}
	d.integrateOne(ins.ID, ins.Origin, ins.Value)
	for _, cont := range d.backlog.Take(ins.ID) {
		cont()
	}
}

// integrateOne splices a new node right after origin, skipping past every
// following node whose id sorts after the new one (later siblings and
// their descendants) so that all replicas agree on order regardless of
// delivery order. It also advances the local clock past id.Clock.
func (d *Document) integrateOne(id, origin ID, value byte) {
	n := &node{id: id, origin: origin, value: value}
	d.index[id] = n
	if id.Clock > d.clock {
		d.clock = id.Clock
	}

	var prev *node
	var cur *node
	if origin == Zero {
		cur = d.head
	} else {
		prev = d.index[origin]
		cur = prev.next
	}

	for cur != nil && cur.id.Greater(id) {
		prev = cur
		cur = cur.next
	}

	n.next = cur
	if prev == nil {
		d.head = n
	} else {
		prev.next = n
	}
}

// IntegrateDeletion applies a remote deletion op. An id not yet known is
// ignored, with nothing logged or returned, since a tombstone of a
// never-seen byte has no effect to apply once the byte does arrive: the
// insertion and deletion ops for the same id are always delivered in
// causal (insert-before-delete) order.
func (d *Document) IntegrateDeletion(op DeletionOp) {
	for _, id := range op.IDs {
		if n, ok := d.index[id]; ok {
			n.deleted = true
		}
	}
}

// Anchor is a stable position-identifier into the document: the id of the
// byte immediately preceding the anchor (or Zero for the document start).
// Anchors survive all subsequent inserts and deletes.
type Anchor ID

// AnchorOf returns the stable Anchor for a current visible offset.
func (d *Document) AnchorOf(offset int) Anchor {
	return Anchor(d.visibleIDAt(offset))
}

// OffsetOf resolves an Anchor back to a current visible offset. If the
// byte the anchor names has been deleted, OffsetOf walks backward to the
// nearest still-visible predecessor, per anchor-stability (P4): the offset
// collapses to the start of the deleted range rather than dangling.
func (d *Document) OffsetOf(a Anchor) int {
	id := ID(a)
	if id == Zero {
		return 0
	}
	n, ok := d.index[id]
	if !ok {
		return 0
	}
	for n != nil && n.deleted {
		n = d.predecessor(n)
	}
	if n == nil {
		return 0
	}
	offset := 0
	for cur := d.head; cur != nil; cur = cur.next {
		if cur == n {
			return offset + 1
		}
		if !cur.deleted {
			offset++
		}
	}
	return offset
}

func (d *Document) predecessor(n *node) *node {
	if n.origin == Zero {
		return nil
	}
	return d.index[n.origin]
}
