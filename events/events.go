// Package events delivers a single subscriber's view of the local effects
// of a session.Replica's activity: buffers created, edited, deleted, or
// moved, and cursors/selections created, moved, or removed.
//
// Events are delivered in a pull style (Next blocks for the next event)
// rather than pushed through a callback, so a UI loop can interleave
// event consumption with its own redraw cadence. Ordering is guaranteed
// only within a single file: events for file A and file B may interleave
// in either order relative to each other, matching the per-file causal
// guarantees the rest of the replica provides.
package events

import (
	"context"

	"github.com/opencollab/corefs/annotate"
	"github.com/opencollab/corefs/ids"
	"github.com/opencollab/corefs/tree"
)

// DeletionCause re-exports tree.DeletionCause for subscribers that only
// import events, not tree.
type DeletionCause = tree.DeletionCause

// Kind identifies the shape of an Event.
type Kind uint8

const (
	BufferCreated Kind = iota
	BufferEdited
	BufferDeleted
	BufferMoved
	CursorCreated
	CursorMoved
	CursorRemoved
	SelectionCreated
	SelectionMoved
	SelectionRemoved
)

// Event is one notification delivered to a subscriber. Only the fields
// relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind      Kind
	Node      tree.NodeGID
	Path      ids.AbsolutePath
	Cursor    annotate.CursorID
	Selection annotate.SelectionID
	Peer      ids.PeerId
	Offset    int
	Start     int
	End       int
	// Cause explains a BufferDeleted event (or a BufferMoved event whose
	// move resolved a conflict by removing the losing side), so a host can
	// tell the user why a buffer disappeared.
	Cause DeletionCause
}

// defaultBuffer bounds how far a slow subscriber can lag before Publish
// starts blocking the replica goroutine that produced the event.
const defaultBuffer = 1024

// Stream is one subscriber's event queue.
type Stream struct {
	ch     chan Event
	done   chan struct{}
	closed bool
}

// NewStream creates a Stream with the default buffer size.
func NewStream() *Stream {
	return &Stream{ch: make(chan Event, defaultBuffer), done: make(chan struct{})}
}

// Next blocks until an event is available, ctx is done, or the stream is
// closed, in which case it returns ok=false.
func (s *Stream) Next(ctx context.Context) (Event, bool) {
	select {
	case e, ok := <-s.ch:
		return e, ok
	case <-s.done:
		return Event{}, false
	case <-ctx.Done():
		return Event{}, false
	}
}

// Close stops further delivery to the stream. It is safe to call more
// than once.
func (s *Stream) Close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// publish delivers e to s, dropping it (rather than blocking the
// publisher forever) once s has been closed.
func (s *Stream) publish(e Event) {
	select {
	case s.ch <- e:
	case <-s.done:
	}
}

// Fanout holds every subscriber of one Replica and publishes to all of
// them, the fan-out half of the fan-in pattern store/sync.go uses for
// concurrent multi-store reads.
type Fanout struct {
	streams map[*Stream]struct{}
}

// NewFanout creates an empty Fanout.
func NewFanout() *Fanout {
	return &Fanout{streams: make(map[*Stream]struct{})}
}

// Subscribe creates a new Stream registered with f.
func (f *Fanout) Subscribe() *Stream {
	s := NewStream()
	f.streams[s] = struct{}{}
	return s
}

// Unsubscribe removes and closes s.
func (f *Fanout) Unsubscribe(s *Stream) {
	delete(f.streams, s)
	s.Close()
}

// Publish delivers e to every current subscriber.
func (f *Fanout) Publish(e Event) {
	for s := range f.streams {
		s.publish(e)
	}
}
